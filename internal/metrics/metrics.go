package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the todo API.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	todoOperations  *prometheus.CounterVec
	blobOperations  *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		todoOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_operations_total",
				Help: "Total number of todo operations by outcome",
			},
			[]string{"operation", "result"},
		),
		blobOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blob_operations_total",
				Help: "Total number of attachment storage operations by outcome",
			},
			[]string{"operation", "result"},
		),
	}

	registry.MustRegister(
		m.requestDuration,
		m.requestTotal,
		m.todoOperations,
		m.blobOperations,
	)

	return m
}

func (m *Metrics) RecordRequest(method, route, status string, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, route, status).Inc()
}

func (m *Metrics) RecordTodoOperation(operation string, err error) {
	m.todoOperations.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) RecordBlobOperation(operation string, err error) {
	m.blobOperations.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
