package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/carebridge/referral-hub/internal/metrics"
)

// Metrics records request counts and latency per route pattern.
func Metrics(c *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			c.ObserveHTTP(r.Method, r.URL.Path, strconv.Itoa(rw.status), time.Since(start).Seconds())
		})
	}
}
