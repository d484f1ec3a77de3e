package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stage label values
const (
	StageEmbed    = "embed"
	StageRetrieve = "retrieve"
	StageAssemble = "assemble"
	StageGenerate = "generate"
	StagePersist  = "persist"
)

// Chat outcome label values
const (
	OutcomeAnswered  = "answered"
	OutcomeNoContent = "no_content"
	OutcomeRejected  = "rejected"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
)

// Collector holds all Prometheus metrics for the application. Each instance
// carries its own registry, so collectors never collide across tests.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Pipeline metrics
	ChatRequests        *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	RateLimitRejections prometheus.Counter
	ProviderRetries     *prometheus.CounterVec
	QuestionFlags       *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	chatRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of chat pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_stage_duration_seconds",
			Help:      "Chat pipeline stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	rateLimitRejections := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of questions rejected by the rate limiter",
		},
	)

	providerRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of retried external provider calls",
		},
		[]string{"operation"},
	)

	questionFlags := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "question_flags_total",
			Help:      "Total number of questions matching manipulation patterns",
		},
		[]string{"category"},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		chatRequests,
		stageDuration,
		rateLimitRejections,
		providerRetries,
		questionFlags,
	)

	return &Collector{
		registry:            registry,
		HTTPRequests:        httpRequests,
		HTTPDuration:        httpDuration,
		ChatRequests:        chatRequests,
		StageDuration:       stageDuration,
		RateLimitRejections: rateLimitRejections,
		ProviderRetries:     providerRetries,
		QuestionFlags:       questionFlags,
	}
}

// RecordHTTPRequest counts a served HTTP request and observes its
// duration. Safe on a nil collector, so metrics stay optional in tests.
func (c *Collector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordChatRequest counts a completed pipeline run
func (c *Collector) RecordChatRequest(outcome string) {
	if c == nil {
		return
	}
	c.ChatRequests.WithLabelValues(outcome).Inc()
}

// ObserveStage records the duration of a pipeline stage
func (c *Collector) ObserveStage(stage string, duration time.Duration) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRateLimitRejection counts a rejected question
func (c *Collector) RecordRateLimitRejection() {
	if c == nil {
		return
	}
	c.RateLimitRejections.Inc()
}

// RecordProviderRetry counts a retried provider call
func (c *Collector) RecordProviderRetry(operation string) {
	if c == nil {
		return
	}
	c.ProviderRetries.WithLabelValues(operation).Inc()
}

// RecordQuestionFlag counts a question flagged by the screening rules
func (c *Collector) RecordQuestionFlag(category string) {
	if c == nil {
		return
	}
	c.QuestionFlags.WithLabelValues(category).Inc()
}

// Handler returns an HTTP handler exposing this collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
