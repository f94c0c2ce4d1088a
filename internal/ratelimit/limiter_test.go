package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/carebridge/referral-hub/internal/ratelimit"
)

func newLimiter(t *testing.T) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return ratelimit.NewLimiter(client, "test-salt"), mr
}

func TestCheckRateLimit_FixedWindow(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()
	cfg := ratelimit.LimitConfig{Rate: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		d, err := l.CheckRateLimit(ctx, "rl:ip:abc", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if d.Remaining != 3-i {
			t.Errorf("request %d: expected remaining %d, got %d", i, 3-i, d.Remaining)
		}
	}

	d, err := l.CheckRateLimit(ctx, "rl:ip:abc", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Error("fourth request should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", d.Remaining)
	}
	if d.RetryAfter != 60 {
		t.Errorf("expected retry-after 60s, got %d", d.RetryAfter)
	}
}

func TestCheckRateLimit_WindowResets(t *testing.T) {
	l, mr := newLimiter(t)
	ctx := context.Background()
	cfg := ratelimit.LimitConfig{Rate: 1, Window: time.Minute}

	if d, _ := l.CheckRateLimit(ctx, "rl:ip:abc", cfg); !d.Allowed {
		t.Fatal("first request should pass")
	}
	if d, _ := l.CheckRateLimit(ctx, "rl:ip:abc", cfg); d.Allowed {
		t.Fatal("second request should be limited")
	}

	mr.FastForward(time.Minute)

	d, err := l.CheckRateLimit(ctx, "rl:ip:abc", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("window should have reset")
	}
}

func TestCheckRateLimit_KeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()
	cfg := ratelimit.LimitConfig{Rate: 1, Window: time.Minute}

	if d, _ := l.CheckRateLimit(ctx, "rl:ip:one", cfg); !d.Allowed {
		t.Fatal("first key should pass")
	}
	if d, _ := l.CheckRateLimit(ctx, "rl:ip:two", cfg); !d.Allowed {
		t.Error("a different key must not share the window")
	}
}

func TestCheckRateLimit_RedisDown(t *testing.T) {
	l, mr := newLimiter(t)
	mr.Close()

	_, err := l.CheckRateLimit(context.Background(), "rl:ip:abc", ratelimit.LimitConfig{Rate: 1, Window: time.Minute})
	if err != ratelimit.ErrRedisUnavailable {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestHashIP(t *testing.T) {
	l, _ := newLimiter(t)

	a := l.HashIP("203.0.113.9")
	if a == "203.0.113.9" || len(a) != 64 {
		t.Errorf("expected a sha256 hex digest, got %q", a)
	}
	if a != l.HashIP("203.0.113.9") {
		t.Error("hash must be stable for the same input")
	}
	if a == l.HashIP("203.0.113.10") {
		t.Error("distinct IPs must not collide")
	}
}

func TestLimitConfig_YAMLWindow(t *testing.T) {
	var cfg ratelimit.LimitConfig
	if err := yaml.Unmarshal([]byte("rate: 5\nwindow: 15m\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Rate != 5 {
		t.Errorf("expected rate 5, got %d", cfg.Rate)
	}
	if cfg.Window != 15*time.Minute {
		t.Errorf("expected 15m window, got %v", cfg.Window)
	}

	if err := yaml.Unmarshal([]byte("rate: 5\nwindow: soon\n"), &cfg); err == nil {
		t.Error("expected an error for a malformed window")
	}
}
