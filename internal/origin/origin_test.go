package origin

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	t.Run("normalizes scheme host and default port", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("HTTPS://Example.COM:443")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "https://example.com" {
			t.Fatalf("normalized=%q, want %q", normalized, "https://example.com")
		}
		if host != "example.com" {
			t.Fatalf("host=%q, want %q", host, "example.com")
		}
	})

	t.Run("keeps non-default port and allows trailing slash", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("http://localhost:8000/")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://localhost:8000" || host != "localhost:8000" {
			t.Fatalf("normalized=%q host=%q", normalized, host)
		}
	})

	t.Run("brackets ipv6", func(t *testing.T) {
		normalized, _, ok := NormalizeHeader("http://[::1]:8000")
		if !ok || normalized != "http://[::1]:8000" {
			t.Fatalf("normalized=%q ok=%v", normalized, ok)
		}
	})

	t.Run("allows null origin", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("null")
		if !ok || normalized != "null" || host != "" {
			t.Fatalf("normalized=%q host=%q ok=%v", normalized, host, ok)
		}
	})

	t.Run("rejects malformed origins", func(t *testing.T) {
		cases := []string{
			"",
			"   ",
			"ftp://example.com",
			"https://example.com/path",
			"https://example.com/?q=1",
			"https://user@example.com",
			"https://example.com/#frag",
			"https://example.com:0",
			"https://example.com:99999",
			"http://::1",
		}
		for _, c := range cases {
			if _, _, ok := NormalizeHeader(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})
}

func TestIsAllowed(t *testing.T) {
	normalized, host, ok := NormalizeHeader("https://files.example.com")
	if !ok {
		t.Fatalf("NormalizeHeader ok=false")
	}

	t.Run("default is same host only", func(t *testing.T) {
		if !IsAllowed(normalized, host, "files.example.com", nil) {
			t.Fatalf("expected same-host to be allowed")
		}
		if !IsAllowed(normalized, host, "FILES.example.com:443", nil) {
			t.Fatalf("expected default port to be equivalent")
		}
		if IsAllowed(normalized, host, "files.example.com:8443", nil) {
			t.Fatalf("expected different port to be rejected")
		}
	})

	t.Run("allows star", func(t *testing.T) {
		if !IsAllowed(normalized, host, "whatever:1234", []string{"*"}) {
			t.Fatalf("expected * to allow any origin")
		}
	})

	t.Run("allows explicit origin", func(t *testing.T) {
		if !IsAllowed(normalized, host, "relay.example.com", []string{"https://files.example.com"}) {
			t.Fatalf("expected explicit origin to be allowed")
		}
		if IsAllowed(normalized, host, "relay.example.com", []string{"https://other.example.com"}) {
			t.Fatalf("expected non-matching origin to be rejected")
		}
	})

	t.Run("null never matches by host", func(t *testing.T) {
		if IsAllowed("null", "", "relay.example.com", nil) {
			t.Fatalf("expected null origin to be rejected by the default policy")
		}
	})
}

func TestAllowRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "http://relay.local:8000/ws", nil)
	if !AllowRequest(r, nil) {
		t.Fatalf("expected request without Origin to be allowed")
	}

	r.Header.Set("Origin", "http://relay.local:8000")
	if !AllowRequest(r, nil) {
		t.Fatalf("expected same-host Origin to be allowed")
	}

	r.Header.Set("Origin", "http://evil.example")
	if AllowRequest(r, nil) {
		t.Fatalf("expected cross-origin request to be rejected")
	}

	r.Header.Set("Origin", "not a url")
	if AllowRequest(r, []string{"*"}) {
		t.Fatalf("expected malformed Origin to be rejected even with *")
	}
}

func TestNormalizeAllowList(t *testing.T) {
	allowed, invalid := NormalizeAllowList([]string{" HTTPS://A.example:443 ", "*", "", "ftp://b"})
	if len(allowed) != 2 || allowed[0] != "https://a.example" || allowed[1] != "*" {
		t.Fatalf("allowed=%v", allowed)
	}
	if len(invalid) != 1 || invalid[0] != "ftp://b" {
		t.Fatalf("invalid=%v", invalid)
	}
}
