package util

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true within burst", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Allow() after exhausting burst = true, want false")
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait should fail once the context expires")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1000, 1)
	if !rl.Allow() {
		t.Fatal("first Allow() = false")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Errorf("Wait returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"WARN", "warn"},
		{"error", "error"},
		{"bogus", "info"},
		{"", "info"},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in).String(); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger("debug", format)
		if err != nil {
			t.Fatalf("NewLogger(%q) returned error: %v", format, err)
		}
		if !logger.Core().Enabled(zap.DebugLevel) {
			t.Errorf("NewLogger(debug, %q) does not enable debug", format)
		}
	}
}
