package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/carebridge/referral-hub/internal/ratelimit"
)

type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	current func() RateLimitConfig
}

type RateLimitConfig struct {
	GlobalIP ratelimit.LimitConfig `yaml:"global_ip"`
	User     ratelimit.LimitConfig `yaml:"user"`
	Login    ratelimit.LimitConfig `yaml:"login"`
}

// NewRateLimitMiddleware takes the limits as a getter rather than a value so
// config hot reloads take effect on the next request.
func NewRateLimitMiddleware(l *ratelimit.Limiter, current func() RateLimitConfig) *RateLimitMiddleware {
	if current == nil {
		current = func() RateLimitConfig { return RateLimitConfig{} }
	}
	return &RateLimitMiddleware{limiter: l, current: current}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

// GlobalLimiter applies the per-IP limit, and the per-user limit when the
// request is authenticated. Redis loss fails closed on auth routes and
// open everywhere else.
func (m *RateLimitMiddleware) GlobalLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := m.current()
		ipHash := m.limiter.HashIP(clientIP(r))
		key := fmt.Sprintf("rl:ip:%s", ipHash)

		decision, err := m.limiter.CheckRateLimit(r.Context(), key, cfg.GlobalIP)
		if err == ratelimit.ErrRedisUnavailable {
			if strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
				log.Printf("RateLimit Redis Error (Auth, Fail Closed): %v", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			log.Printf("RateLimit Redis Error (API, Fail Open): %v", err)
			next.ServeHTTP(w, r)
			return
		} else if err != nil {
			log.Printf("RateLimit Error: %v", err)
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			m.writeRateLimitHeaders(w, decision)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		if ac, ok := GetAuthContext(r.Context()); ok {
			userKey := fmt.Sprintf("rl:user:%s", ac.UserID)
			uDecision, err := m.limiter.CheckRateLimit(r.Context(), userKey, cfg.User)
			if err == nil && !uDecision.Allowed {
				m.writeRateLimitHeaders(w, uDecision)
				http.Error(w, "User rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// CheckLogin is called by the login handler once the email is parsed, so
// the limit keys on ip+email rather than body sniffing in middleware.
func (m *RateLimitMiddleware) CheckLogin(r *http.Request, email string) (*ratelimit.Decision, error) {
	key := fmt.Sprintf("rl:login:%s:%s", m.limiter.HashIP(clientIP(r)), m.limiter.HashIP(email))
	return m.limiter.CheckRateLimit(r.Context(), key, m.current().Login)
}

func (m *RateLimitMiddleware) writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}
