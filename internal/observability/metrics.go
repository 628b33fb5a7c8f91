package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

const namespace = "coursebuilder"

// Metrics owns a private registry. All methods are safe on a nil receiver so
// components can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	queueDepth   *prometheus.GaugeVec
	dispatched   *prometheus.CounterVec

	creditsConsumed *prometheus.CounterVec
	creditsDenied   *prometheus.CounterVec

	streams *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM API calls by model, endpoint and status.",
		}, []string{"model", "endpoint", "status"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM API call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"model", "endpoint", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Job attempts by type and resulting status.",
		}, []string{"job_type", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job attempt duration.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"job_type", "status"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "job_run rows by status.",
		}, []string{"status"}),
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_dispatched_total",
			Help:      "Generation requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		creditsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_consumed_total",
			Help:      "Credits charged by generation kind.",
		}, []string{"kind"}),
		creditsDenied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_denied_total",
			Help:      "Generation requests refused for insufficient credits.",
		}, []string{"kind"}),
		streams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_finished_total",
			Help:      "Token stream relays by terminator.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	endpoint = orUnknown(endpoint)
	if strings.TrimSpace(status) == "" {
		status = "0"
	}
	m.llmRequests.WithLabelValues(model, endpoint, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, endpoint, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) JobFinished(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	jobType = orUnknown(jobType)
	status = orUnknown(status)
	m.jobsFinished.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType, status).Observe(dur.Seconds())
}

func (m *Metrics) Dispatched(kind, outcome string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(orUnknown(kind), orUnknown(outcome)).Inc()
}

func (m *Metrics) CreditsConsumed(kind string, amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsConsumed.WithLabelValues(orUnknown(kind)).Add(float64(amount))
}

func (m *Metrics) CreditsDenied(kind string) {
	if m == nil {
		return
	}
	m.creditsDenied.WithLabelValues(orUnknown(kind)).Inc()
}

// StreamFinished counts relays by how they ended: end, error, idle or disconnect.
func (m *Metrics) StreamFinished(outcome string) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(orUnknown(outcome)).Inc()
}

// StartJobQueueCollector samples job_run counts by status until ctx is done.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	statuses := []string{
		jobdomain.StatusQueued,
		jobdomain.StatusRunning,
		jobdomain.StatusRetrying,
		jobdomain.StatusSucceeded,
		jobdomain.StatusFailed,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&types.JobRun{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, s := range statuses {
					m.queueDepth.WithLabelValues(s).Set(0)
				}
				for _, row := range rows {
					m.queueDepth.WithLabelValues(orUnknown(row.Status)).Set(float64(row.Count))
				}
			}
		}
	}()
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
