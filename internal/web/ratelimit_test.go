package web

import (
	"context"
	"testing"
	"time"

	"github.com/JonMunkholm/objimport/internal/config"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	tests := []struct {
		name    string
		advance time.Duration
		ip      string
		want    bool
	}{
		{"first request", 0, "10.0.0.1", true},
		{"second request", 0, "10.0.0.1", true},
		{"over limit", 0, "10.0.0.1", false},
		{"other client", 0, "10.0.0.2", true},
		{"next window", 61 * time.Second, "10.0.0.1", true},
	}
	for _, tt := range tests {
		now = now.Add(tt.advance)
		if got := rl.allow(tt.ip); got != tt.want {
			t.Errorf("%s: allow(%s) = %v, want %v", tt.name, tt.ip, got, tt.want)
		}
	}
}

func TestRateLimiter_Stop(t *testing.T) {
	rl := newRateLimiter(1, time.Hour)
	rl.stop()

	select {
	case <-rl.stopped:
	default:
		t.Fatal("cleanup goroutine still running after stop")
	}

	// A second stop must not panic on the closed channel.
	rl.stop()
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.allow("10.0.0.1")

	now = now.Add(3 * time.Minute)
	rl.allow("10.0.0.2")
	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["10.0.0.1"]; ok {
		t.Error("idle visitor not evicted")
	}
	if _, ok := rl.visitors["10.0.0.2"]; !ok {
		t.Error("active visitor evicted")
	}
}

func TestServer_ShutdownStopsLimiters(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, ImportLimit: 1}
	s, _ := newTestServer(t, cfg)

	if len(s.limiters) != 2 {
		t.Fatalf("server owns %d limiters, want global and import", len(s.limiters))
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for i, rl := range s.limiters {
		select {
		case <-rl.stopped:
		default:
			t.Errorf("limiter %d cleanup still running after shutdown", i)
		}
	}
}
