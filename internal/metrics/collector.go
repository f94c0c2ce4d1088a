package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service's prometheus registry and every instrument
// recorded by the referral pipeline.
type Collector struct {
	registry *prometheus.Registry

	referralTransitions *prometheus.CounterVec
	allocationRetries   prometheus.Counter
	allocationShortages prometheus.Counter
	notificationsSent   *prometheus.CounterVec
	notificationsLost   prometheus.Counter
	feedSubscribers     prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		referralTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referralhub_referral_transitions_total",
			Help: "Referral lifecycle transitions by resulting status.",
		}, []string{"status"}),
		allocationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "referralhub_allocation_conflict_retries_total",
			Help: "Reservation transactions that hit a serialization conflict and were retried.",
		}),
		allocationShortages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "referralhub_allocation_shortages_total",
			Help: "Accept attempts aborted because the live snapshot could not cover the request.",
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referralhub_notifications_total",
			Help: "Inbox notifications enqueued by type.",
		}, []string{"type"}),
		notificationsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "referralhub_notifications_lost_total",
			Help: "Post-commit notification enqueues that failed and were dropped.",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "referralhub_feed_subscribers",
			Help: "Currently connected notification feed subscribers.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referralhub_http_requests_total",
			Help: "HTTP requests by method, route and status class.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "referralhub_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.referralTransitions, c.allocationRetries, c.allocationShortages,
		c.notificationsSent, c.notificationsLost, c.feedSubscribers,
		c.httpRequests, c.httpDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ReferralTransition(status string) {
	c.referralTransitions.WithLabelValues(status).Inc()
}

func (c *Collector) AllocationRetry()    { c.allocationRetries.Inc() }
func (c *Collector) AllocationShortage() { c.allocationShortages.Inc() }

func (c *Collector) NotificationSent(kind string) {
	c.notificationsSent.WithLabelValues(kind).Inc()
}

func (c *Collector) NotificationLost() { c.notificationsLost.Inc() }

func (c *Collector) FeedSubscribed()   { c.feedSubscribers.Inc() }
func (c *Collector) FeedUnsubscribed() { c.feedSubscribers.Dec() }

func (c *Collector) ObserveHTTP(method, route, status string, seconds float64) {
	c.httpRequests.WithLabelValues(method, route, status).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
