package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	activeSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatsync_active_subscriptions",
			Help: "Number of active realtime subscriptions per scope kind.",
		},
		[]string{"kind"},
	)
	brokerSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_broker_subscribers",
			Help: "Number of consumers registered on the in-process broker.",
		},
	)
	eventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_realtime_events_dispatched_total",
			Help: "Realtime events delivered to a scope consumer.",
		},
		[]string{"scope", "kind"},
	)
	eventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_realtime_events_dropped_total",
			Help: "Realtime events dropped before dispatch.",
		},
		[]string{"reason"},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Optimistic sends by outcome (confirmed or rolled_back).",
		},
		[]string{"outcome"},
	)
	readMarkFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_read_mark_failures_total",
			Help: "Failed bulk read-state updates.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		activeSubscriptions,
		brokerSubscribers,
		eventsDispatchedTotal,
		eventsDroppedTotal,
		sendsTotal,
		readMarkFailuresTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncSubscription(kind string) {
	activeSubscriptions.WithLabelValues(kind).Inc()
}

func DecSubscription(kind string) {
	activeSubscriptions.WithLabelValues(kind).Dec()
}

func SetBrokerSubscribers(n int) {
	brokerSubscribers.Set(float64(n))
}

func IncEventDispatched(scope, kind string) {
	eventsDispatchedTotal.WithLabelValues(scope, kind).Inc()
}

func IncEventDropped(reason string) {
	eventsDroppedTotal.WithLabelValues(reason).Inc()
}

func IncSendConfirmed() {
	sendsTotal.WithLabelValues("confirmed").Inc()
}

func IncSendRolledBack() {
	sendsTotal.WithLabelValues("rolled_back").Inc()
}

func IncReadMarkFailure() {
	readMarkFailuresTotal.Inc()
}
