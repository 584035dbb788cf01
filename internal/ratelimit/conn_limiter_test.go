package ratelimit

import (
	"testing"
	"time"
)

func TestConnLimiter_DisabledIsNil(t *testing.T) {
	l := NewConnLimiter(nil, 0, 0)
	if l != nil {
		t.Fatalf("NewConnLimiter(0, 0)=%v, want nil", l)
	}
	for i := 0; i < 1000; i++ {
		if !l.AllowFrame(1 << 20) {
			t.Fatalf("nil limiter rejected frame %d", i)
		}
	}
}

func TestConnLimiter_FramesPerSecond(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewConnLimiter(clk, 3, 0)

	for i := 0; i < 3; i++ {
		if !l.AllowFrame(10) {
			t.Fatalf("frame %d rejected within burst", i)
		}
	}
	if l.AllowFrame(10) {
		t.Fatalf("expected 4th frame to be rejected")
	}

	clk.Advance(time.Second)
	if !l.AllowFrame(10) {
		t.Fatalf("expected frame after refill")
	}
}

func TestConnLimiter_BytesPerSecond(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewConnLimiter(clk, 0, 100)

	if !l.AllowFrame(60) {
		t.Fatalf("expected first frame within byte budget")
	}
	if l.AllowFrame(60) {
		t.Fatalf("expected second frame to exceed byte budget")
	}
	clk.Advance(600 * time.Millisecond)
	if !l.AllowFrame(60) {
		t.Fatalf("expected frame after partial refill")
	}
}
