package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/ratelimit"
)

// limitSource stands in for the hot-reloading config store: the middleware
// must read it on every request, not copy it at construction.
type limitSource struct {
	mu  sync.Mutex
	cfg middleware.RateLimitConfig
}

func (s *limitSource) get() middleware.RateLimitConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *limitSource) set(cfg middleware.RateLimitConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func newRateLimited(t *testing.T, src *limitSource) http.Handler {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := ratelimit.NewLimiter(client, "test-salt")
	m := middleware.NewRateLimitMiddleware(limiter, src.get)
	return m.GlobalLimiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doGet(h http.Handler) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals", nil)
	req.RemoteAddr = "10.0.0.1:4242"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestGlobalLimiter_EnforcesIPLimit(t *testing.T) {
	src := &limitSource{cfg: middleware.RateLimitConfig{
		GlobalIP: ratelimit.LimitConfig{Rate: 2, Window: time.Minute},
	}}
	h := newRateLimited(t, src)

	for i := 1; i <= 2; i++ {
		if code := doGet(h); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := doGet(h); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %d", code)
	}
}

func TestGlobalLimiter_PicksUpReloadedLimits(t *testing.T) {
	src := &limitSource{cfg: middleware.RateLimitConfig{
		GlobalIP: ratelimit.LimitConfig{Rate: 1, Window: time.Minute},
	}}
	h := newRateLimited(t, src)

	if code := doGet(h); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := doGet(h); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 under the old limit, got %d", code)
	}

	// A config reload raises the limit; the very next request must see it.
	src.set(middleware.RateLimitConfig{
		GlobalIP: ratelimit.LimitConfig{Rate: 100, Window: time.Minute},
	})
	if code := doGet(h); code != http.StatusOK {
		t.Fatalf("expected 200 after the limit was raised, got %d", code)
	}
}
