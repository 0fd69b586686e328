// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// LLMRequestsTotal counts LLM provider calls by provider and outcome.
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM provider requests",
		},
		[]string{"provider", "outcome"},
	)
	// LLMRequestDuration records durations of LLM provider calls.
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM provider request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 60, 120},
		},
		[]string{"provider"},
	)
	// LLMErrorsTotal counts classified LLM errors by kind (domain.LLMErrorKind).
	LLMErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_errors_total",
			Help: "Total LLM provider errors by classified kind",
		},
		[]string{"provider", "kind"},
	)

	// JobsStartedTotal counts grading jobs started.
	JobsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_jobs_started_total",
			Help: "Total number of grading jobs started",
		},
	)
	// JobsInFlight is a gauge of jobs currently running the pipeline.
	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grading_jobs_in_flight",
			Help: "Number of grading jobs currently running",
		},
	)
	// JobsCompletedTotal counts grading jobs that reached Completed.
	JobsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_jobs_completed_total",
			Help: "Total number of grading jobs completed",
		},
	)
	// JobsFailedTotal counts grading jobs that reached Failed, by error code.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_jobs_failed_total",
			Help: "Total number of grading jobs failed, by error code",
		},
		[]string{"code"},
	)
	// JobDuration records end-to-end job duration.
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_job_duration_seconds",
			Help:    "End-to-end grading job duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// CriterionChecksTotal counts criterion checks by pass/fail outcome.
	CriterionChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criterion_checks_total",
			Help: "Total number of criterion checks by outcome",
		},
		[]string{"outcome"},
	)

	// OverallScorePercentage is the histogram of completed jobs' percentage score.
	OverallScorePercentage = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_overall_score_percentage",
			Help:    "Distribution of completed jobs' overall percentage score",
			Buckets: []float64{0, 20, 40, 60, 75, 90, 100},
		},
	)

	// BroadcasterDroppedEventsTotal counts events dropped due to a full
	// per-subscriber buffer (spec.md §4.4 lossy overflow).
	BroadcasterDroppedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_dropped_events_total",
			Help: "Total number of events dropped by the per-job broadcaster due to a full subscriber buffer",
		},
	)
)

var registerOnce sync.Once

// InitMetrics registers all Prometheus metrics with the default registry.
// Safe to call more than once per process.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(LLMRequestsTotal)
		prometheus.MustRegister(LLMRequestDuration)
		prometheus.MustRegister(LLMErrorsTotal)
		prometheus.MustRegister(JobsStartedTotal)
		prometheus.MustRegister(JobsInFlight)
		prometheus.MustRegister(JobsCompletedTotal)
		prometheus.MustRegister(JobsFailedTotal)
		prometheus.MustRegister(JobDuration)
		prometheus.MustRegister(CriterionChecksTotal)
		prometheus.MustRegister(OverallScorePercentage)
		prometheus.MustRegister(BroadcasterDroppedEventsTotal)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// StartJob increments the started counter and the in-flight gauge.
func StartJob() {
	JobsStartedTotal.Inc()
	JobsInFlight.Inc()
}

// CompleteJob marks a job complete: decrements in-flight, increments
// completed, and observes its duration and percentage score.
func CompleteJob(durationSeconds float64, percentage int) {
	JobsInFlight.Dec()
	JobsCompletedTotal.Inc()
	JobDuration.Observe(durationSeconds)
	OverallScorePercentage.Observe(float64(percentage))
}

// FailJob marks a job failed by decrementing in-flight and incrementing the
// failed counter under a normalized error code label.
func FailJob(durationSeconds float64, code string) {
	JobsInFlight.Dec()
	JobDuration.Observe(durationSeconds)
	if code == "" {
		code = "UNKNOWN"
	}
	JobsFailedTotal.WithLabelValues(strings.ToUpper(code)).Inc()
}

// RecordCriterionCheck records the pass/fail outcome of one criterion check.
func RecordCriterionCheck(passed bool) {
	if passed {
		CriterionChecksTotal.WithLabelValues("passed").Inc()
		return
	}
	CriterionChecksTotal.WithLabelValues("failed").Inc()
}

// RecordLLMRequest records the outcome and duration of an LLM provider call.
func RecordLLMRequest(provider string, durationSeconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	LLMRequestsTotal.WithLabelValues(provider, outcome).Inc()
	LLMRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordLLMError records a classified LLM error by kind.
func RecordLLMError(provider, kind string) {
	LLMErrorsTotal.WithLabelValues(provider, kind).Inc()
}

// RecordDroppedEvent records one event dropped by a job's broadcaster due to
// a full per-subscriber buffer.
func RecordDroppedEvent() {
	BroadcasterDroppedEventsTotal.Inc()
}
