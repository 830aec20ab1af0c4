package crud

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts CRUD calls per resource and operation.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the client metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mm_crud_requests_total",
				Help: "CRUD calls issued by the console, by resource, operation and status.",
			},
			[]string{"resource", "op", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mm_crud_request_duration_seconds",
				Help:    "Duration of CRUD calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource", "op"},
		),
	}
}

// observe records one call. status 0 means the request never got a response.
func (m *Metrics) observe(resource, op string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(resource, op, label).Inc()
	m.duration.WithLabelValues(resource, op).Observe(elapsed.Seconds())
}
