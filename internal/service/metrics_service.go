package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the lifecycle engine.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	remindersTotal   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_transitions_total",
		Help: "Total number of registration status transitions",
	}, []string{"from", "to", "forced"})

	remindersTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trial_reminders_total",
		Help: "Total number of trial lesson reminders dispatched",
	})

	registry.MustRegister(requestDuration, requestTotal, transitionsTotal, remindersTotal)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitionsTotal: transitionsTotal,
		remindersTotal:   remindersTotal,
	}
}

// Handler exposes the /metrics endpoint handler.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveTransition records one registration status transition.
func (s *MetricsService) ObserveTransition(from, to models.Status, forced bool) {
	s.transitionsTotal.WithLabelValues(string(from), string(to), strconv.FormatBool(forced)).Inc()
}

// ObserveReminder records one dispatched trial reminder.
func (s *MetricsService) ObserveReminder() {
	s.remindersTotal.Inc()
}
