package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techread",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the development server.",
		},
		[]string{"server", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "techread",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "path", "status"},
	)
	transferRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techread",
			Subsystem: "transfer",
			Name:      "requests_total",
			Help:      "Data channel requests issued by the client.",
		},
		[]string{"op", "status", "success"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "techread",
			Subsystem: "transfer",
			Name:      "request_duration_seconds",
			Help:      "Data channel request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "status", "success"},
	)
	sessionOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techread",
			Subsystem: "session",
			Name:      "opens_total",
			Help:      "Control channel open attempts by result.",
		},
		[]string{"result"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techread",
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Control channel messages delivered to callers.",
		},
		[]string{"type", "subtype"},
	)
	untrustedPayloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "techread",
			Subsystem: "transfer",
			Name:      "untrusted_payload_total",
			Help:      "Payload URLs refused by the origin check.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			transferRequests,
			transferDuration,
			sessionOpens,
			messagesReceived,
			untrustedPayloads,
		)
	})
}

func RecordHTTPRequest(server, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordTransfer records one data channel request. status is 0 when no
// response was received.
func RecordTransfer(op string, status int, duration time.Duration, success bool) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	successLabel := strconv.FormatBool(success)
	transferRequests.WithLabelValues(op, statusLabel, successLabel).Inc()
	transferDuration.WithLabelValues(op, statusLabel, successLabel).Observe(duration.Seconds())
}

func RecordSessionOpen(result string) {
	RegisterMetrics()
	sessionOpens.WithLabelValues(result).Inc()
}

func RecordMessage(messageType, subtype string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(messageType, subtype).Inc()
}

func RecordUntrustedPayload() {
	RegisterMetrics()
	untrustedPayloads.Inc()
}
