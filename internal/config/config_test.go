package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(lookupMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.PingInterval != 30*time.Second {
		t.Fatalf("PingInterval=%v, want 30s", cfg.PingInterval)
	}
	if cfg.IdleTimeout != 0 {
		t.Fatalf("IdleTimeout=%v, want 0", cfg.IdleTimeout)
	}
	if cfg.MaxMessageBytes != DefaultMaxMessageBytes {
		t.Fatalf("MaxMessageBytes=%d, want %d", cfg.MaxMessageBytes, DefaultMaxMessageBytes)
	}
	if cfg.ConnectionQueueBytes != DefaultConnectionQueueBytes {
		t.Fatalf("ConnectionQueueBytes=%d, want %d", cfg.ConnectionQueueBytes, DefaultConnectionQueueBytes)
	}
	if cfg.OutboundQueueFrames != DefaultOutboundQueueFrames {
		t.Fatalf("OutboundQueueFrames=%d, want %d", cfg.OutboundQueueFrames, DefaultOutboundQueueFrames)
	}
	if cfg.MaxMessagesPerSecond != 0 || cfg.MaxConnections != 0 {
		t.Fatalf("limits=%d/%d, want unlimited", cfg.MaxMessagesPerSecond, cfg.MaxConnections)
	}
	if cfg.MDNSEnabled {
		t.Fatalf("MDNSEnabled=true, want false")
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("AllowedOrigins=%v, want nil", cfg.AllowedOrigins)
	}
}

func TestProdModeDefaults(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMode: "production"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestPortEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarPort: "9090"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9090" {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, "0.0.0.0:9090")
	}

	cfg, err = load(lookupMap(map[string]string{
		envVarPort:       "9090",
		envVarListenAddr: "127.0.0.1:7000",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Fatalf("ListenAddr=%q, want explicit listen addr to win over PORT", cfg.ListenAddr)
	}

	if _, err := load(lookupMap(map[string]string{envVarPort: "http"}), nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v, want ErrInvalid", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarAllowedOrigins:       "https://A.example:443, *",
		envVarPingInterval:         "10s",
		envVarIdleTimeout:          "25s",
		envVarMaxMessageBytes:      "1024",
		envVarConnectionQueueBytes: "4096",
		envVarOutboundQueueFrames:  "8",
		envVarMaxMessagesPerSecond: "50",
		envVarMaxBytesPerSecond:    "2048",
		envVarMaxConnections:       "3",
		envVarMDNSEnabled:          "true",
		envVarMDNSInstance:         "office",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" || cfg.AllowedOrigins[1] != "*" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
	if cfg.PingInterval != 10*time.Second || cfg.IdleTimeout != 25*time.Second {
		t.Fatalf("ping=%v idle=%v", cfg.PingInterval, cfg.IdleTimeout)
	}
	if cfg.MaxMessageBytes != 1024 || cfg.ConnectionQueueBytes != 4096 || cfg.OutboundQueueFrames != 8 {
		t.Fatalf("sizes=%d/%d/%d", cfg.MaxMessageBytes, cfg.ConnectionQueueBytes, cfg.OutboundQueueFrames)
	}
	if cfg.MaxMessagesPerSecond != 50 || cfg.MaxBytesPerSecond != 2048 || cfg.MaxConnections != 3 {
		t.Fatalf("limits=%d/%d/%d", cfg.MaxMessagesPerSecond, cfg.MaxBytesPerSecond, cfg.MaxConnections)
	}
	if !cfg.MDNSEnabled || cfg.MDNSInstance != "office" {
		t.Fatalf("mdns=%v/%q", cfg.MDNSEnabled, cfg.MDNSInstance)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarListenAddr:   "127.0.0.1:7000",
		envVarPingInterval: "10s",
	}), []string{"--listen-addr", "127.0.0.1:7001", "--ping-interval=5s", "--log-format", "json"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7001" {
		t.Fatalf("ListenAddr=%q, want flag value", cfg.ListenAddr)
	}
	if cfg.PingInterval != 5*time.Second {
		t.Fatalf("PingInterval=%v, want 5s", cfg.PingInterval)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("LogFormat=%q, want json", cfg.LogFormat)
	}
}

func TestConfigFileLayering(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr = "127.0.0.1:6000"
allowed_origins = ["https://files.example.com"]
mode = "prod"

[connection]
ping_interval = "15s"
max_message_bytes = 2048
queue_bytes = 8192
max_connections = 10

[mdns]
enabled = true
instance = "lab"
`)

	cfg, err := load(lookupMap(map[string]string{
		envVarMaxConnections: "20",
	}), []string{"--config", path, "--ping-interval", "12s"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ConfigFile != path {
		t.Fatalf("ConfigFile=%q, want %q", cfg.ConfigFile, path)
	}
	if cfg.ListenAddr != "127.0.0.1:6000" {
		t.Fatalf("ListenAddr=%q, want file value", cfg.ListenAddr)
	}
	if cfg.Mode != ModeProd || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("mode=%q format=%q, want prod/json from file", cfg.Mode, cfg.LogFormat)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://files.example.com" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
	if cfg.PingInterval != 12*time.Second {
		t.Fatalf("PingInterval=%v, want flag to beat file", cfg.PingInterval)
	}
	if cfg.MaxConnections != 20 {
		t.Fatalf("MaxConnections=%d, want env to beat file", cfg.MaxConnections)
	}
	if cfg.MaxMessageBytes != 2048 || cfg.ConnectionQueueBytes != 8192 {
		t.Fatalf("sizes=%d/%d, want file values", cfg.MaxMessageBytes, cfg.ConnectionQueueBytes)
	}
	if cfg.OutboundQueueFrames != DefaultOutboundQueueFrames {
		t.Fatalf("OutboundQueueFrames=%d, want default for unset key", cfg.OutboundQueueFrames)
	}
	if !cfg.MDNSEnabled || cfg.MDNSInstance != "lab" {
		t.Fatalf("mdns=%v/%q", cfg.MDNSEnabled, cfg.MDNSInstance)
	}
}

func TestConfigFileByteRate(t *testing.T) {
	path := writeConfigFile(t, "[connection]\nmax_message_bytes = 1000\nmax_bytes_per_second = 5000\n")
	cfg, err := load(lookupMap(nil), []string{"--config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxBytesPerSecond != 5000 {
		t.Fatalf("MaxBytesPerSecond=%d, want 5000", cfg.MaxBytesPerSecond)
	}

	cfg, err = load(lookupMap(nil), []string{"--config", path, "--max-bytes-per-second", "0"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxBytesPerSecond != 0 {
		t.Fatalf("MaxBytesPerSecond=%d, want flag to disable it", cfg.MaxBytesPerSecond)
	}
}

func TestConfigFileFromEnv(t *testing.T) {
	path := writeConfigFile(t, `listen_addr = "127.0.0.1:6001"`)
	cfg, err := load(lookupMap(map[string]string{envVarConfigFile: path}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:6001" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr)
	}
}

func TestConfigFileErrors(t *testing.T) {
	if _, err := load(lookupMap(nil), []string{"--config", filepath.Join(t.TempDir(), "missing.toml")}); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := writeConfigFile(t, `listen_adr = "typo:1"`)
	if _, err := load(lookupMap(nil), []string{"--config=" + path}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v, want ErrInvalid for unknown key", err)
	}

	path = writeConfigFile(t, "[connection]\nping_interval = \"soon\"\n")
	if _, err := load(lookupMap(nil), []string{"-config", path}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v, want ErrInvalid for bad duration", err)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad mode", map[string]string{envVarMode: "staging"}, nil},
		{"bad log level", nil, []string{"--log-level", "loud"}},
		{"bad origin", map[string]string{envVarAllowedOrigins: "ftp://x"}, nil},
		{"bad listen addr", nil, []string{"--listen-addr", "nohostport"}},
		{"bad public base url", nil, []string{"--public-base-url", "files.example.com"}},
		{"zero ping", nil, []string{"--ping-interval", "0s"}},
		{"idle below ping", nil, []string{"--idle-timeout", "10s"}},
		{"queue below message", nil, []string{"--max-message-bytes", "100", "--connection-queue-bytes", "99"}},
		{"zero outbound frames", nil, []string{"--outbound-queue-frames", "0"}},
		{"negative rate", nil, []string{"--max-messages-per-second", "-1"}},
		{"negative byte rate", nil, []string{"--max-bytes-per-second", "-1"}},
		{"byte rate below message", nil, []string{"--max-message-bytes", "100", "--max-bytes-per-second", "99"}},
		{"negative max connections", nil, []string{"--max-connections", "-1"}},
		{"empty mdns instance", nil, []string{"--mdns", "--mdns-instance", " "}},
		{"bad env int", map[string]string{envVarMaxConnections: "many"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(lookupMap(tc.env), tc.args); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err=%v, want ErrInvalid", err)
			}
		})
	}
}

func TestScanConfigFlag(t *testing.T) {
	cases := []struct {
		args []string
		want string
		ok   bool
	}{
		{[]string{"--config", "a.toml"}, "a.toml", true},
		{[]string{"-config=b.toml"}, "b.toml", true},
		{[]string{"--mode", "prod", "--config=c.toml"}, "c.toml", true},
		{[]string{"--", "--config", "d.toml"}, "", false},
		{[]string{"--config"}, "", false},
		{nil, "", false},
	}
	for _, tc := range cases {
		got, ok := scanConfigFlag(tc.args)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("scanConfigFlag(%v)=(%q,%v), want (%q,%v)", tc.args, got, ok, tc.want, tc.ok)
		}
	}
}
