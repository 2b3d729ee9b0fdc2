package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer,
// the booking engine and the upcoming-instance cache.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	bookings        *prometheus.CounterVec
	bookingFailures *prometheus.CounterVec
	cancellations   *prometheus.CounterVec
	creditsIssued   *prometheus.CounterVec
	creditsUsed     prometheus.Counter
	instances       prometheus.Counter
	attendance      *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_bookings_total",
			Help: "Successful bookings by payment type",
		}, []string{"payment_type"}),
		bookingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_booking_failures_total",
			Help: "Rejected bookings by error code",
		}, []string{"code"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_enrollment_cancellations_total",
			Help: "Cancelled enrollments by origin",
		}, []string{"origin"}),
		creditsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_credits_issued_total",
			Help: "Credits issued by reason",
		}, []string{"reason"}),
		creditsUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_credits_used_total",
			Help: "Credits spent on bookings",
		}),
		instances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_instances_generated_total",
			Help: "Class instances written by template expansion",
		}),
		attendance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_attendance_marked_total",
			Help: "Attendance outcomes recorded by staff",
		}, []string{"status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.bookings, m.bookingFailures, m.cancellations, m.creditsIssued, m.creditsUsed, m.instances, m.attendance,
		m.cacheLatency, m.cacheWrite, m.cacheHits, m.cacheMisses,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

func (m *MetricsService) RecordBooking(paymentType string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(paymentType).Inc()
}

func (m *MetricsService) RecordBookingFailure(code string) {
	if m == nil {
		return
	}
	m.bookingFailures.WithLabelValues(code).Inc()
}

// RecordCancellations counts n enrollments cancelled from origin.
func (m *MetricsService) RecordCancellations(origin string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cancellations.WithLabelValues(origin).Add(float64(n))
}

func (m *MetricsService) RecordCreditIssued(reason string) {
	if m == nil {
		return
	}
	m.creditsIssued.WithLabelValues(reason).Inc()
}

func (m *MetricsService) RecordCreditUsed() {
	if m == nil {
		return
	}
	m.creditsUsed.Inc()
}

// RecordInstancesGenerated counts instances written by an expansion.
func (m *MetricsService) RecordInstancesGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.instances.Add(float64(n))
}

func (m *MetricsService) RecordAttendance(status string) {
	if m == nil {
		return
	}
	m.attendance.WithLabelValues(status).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}
