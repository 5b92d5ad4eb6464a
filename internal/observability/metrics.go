// Package observability exposes operator metrics on an optional loopback
// listener. The trap port never serves metrics; an attacker must see no
// difference between a monitored and an unmonitored deployment.
package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
)

// MetricsManager owns the Prometheus registry and the service metrics.
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry
	started  time.Time

	uptime          prometheus.GaugeFunc
	trapRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	classifications *prometheus.CounterVec
	compositeScore  prometheus.Histogram
	sessionsStarted prometheus.Counter
	storageFailures prometheus.Counter
}

// NewMetricsManager creates a registry with the service and runtime
// collectors registered.
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	mm := &MetricsManager{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}

	mm.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sundew_uptime_seconds",
		Help: "Time since the service started",
	}, func() float64 {
		return time.Since(mm.started).Seconds()
	})

	mm.trapRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sundew_trap_requests_total",
			Help: "Requests handled, by trap surface, method and status",
		},
		[]string{"trap", "method", "status"},
	)

	mm.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sundew_request_duration_seconds",
			Help:    "Request handling duration including the artificial latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trap"},
	)

	mm.classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sundew_classifications_total",
			Help: "Events classified, by assigned class",
		},
		[]string{"class"},
	)

	mm.compositeScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sundew_composite_score",
		Help:    "Distribution of composite fingerprint scores",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	mm.sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sundew_sessions_started_total",
		Help: "Sessions created",
	})

	mm.storageFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sundew_storage_failures_total",
		Help: "Event or session writes that failed",
	})

	mm.registry.MustRegister(
		mm.uptime,
		mm.trapRequests,
		mm.requestDuration,
		mm.classifications,
		mm.compositeScore,
		mm.sessionsStarted,
		mm.storageFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return mm
}

// RecordRequest records one handled request.
func (mm *MetricsManager) RecordRequest(trap models.TrapType, method string, status int, duration time.Duration) {
	mm.trapRequests.WithLabelValues(string(trap), method, strconv.Itoa(status)).Inc()
	mm.requestDuration.WithLabelValues(string(trap)).Observe(duration.Seconds())
}

// RecordClassification records the classification and composite score of
// one event.
func (mm *MetricsManager) RecordClassification(c models.Classification, composite float64) {
	mm.classifications.WithLabelValues(string(c)).Inc()
	mm.compositeScore.Observe(composite)
}

// RecordSessionStarted counts a newly created session.
func (mm *MetricsManager) RecordSessionStarted() {
	mm.sessionsStarted.Inc()
}

// RecordStorageFailure counts a failed persistence attempt.
func (mm *MetricsManager) RecordStorageFailure() {
	mm.storageFailures.Inc()
}

// Handler returns the scrape handler for the registry.
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics listener until ctx is cancelled. Intended for a
// loopback address only.
func (mm *MetricsManager) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mm.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	mm.logger.Infow("Metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
