// Package metrics provides Prometheus-based metrics recording for
// deliberation pipelines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// ObserveInference records a completed inference call.
	ObserveInference(model, agentID, stage string, promptTokens, completionTokens int, success bool, duration time.Duration)

	// IncRetry increments the retry counter for a backend.
	IncRetry(provider string)

	// IncReplayHit increments the replay cache hit counter for a stage.
	IncReplayHit(stage string)

	// IncReplayMiss increments the replay cache miss counter for a stage.
	IncReplayMiss(stage string)

	// ObserveStage records the wall time of one completed stage.
	ObserveStage(stage string, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics
// are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder { return &NoopRecorder{} }

func (n *NoopRecorder) ObserveInference(_, _, _ string, _, _ int, _ bool, _ time.Duration) {}
func (n *NoopRecorder) IncRetry(_ string)                                                  {}
func (n *NoopRecorder) IncReplayHit(_ string)                                              {}
func (n *NoopRecorder) IncReplayMiss(_ string)                                             {}
func (n *NoopRecorder) ObserveStage(_ string, _ time.Duration)                             {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	inferenceTotal    *prometheus.CounterVec
	tokensTotal       *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
	replayTotal       *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder registered on reg. A nil reg
// uses the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		inferenceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_inference_requests_total",
				Help: "Total number of inference calls by model, agent, stage, and status",
			},
			[]string{"model", "agent_id", "stage", "status"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_tokens_total",
				Help: "Total number of tokens used in inference calls",
			},
			[]string{"model", "agent_id", "stage", "type"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_inference_retries_total",
				Help: "Total number of inference retries by provider",
			},
			[]string{"provider"},
		),
		replayTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_replay_lookups_total",
				Help: "Total number of replay cache lookups by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		inferenceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "council_inference_duration_seconds",
				Help:    "Duration of inference calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "agent_id", "stage"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "council_stage_duration_seconds",
				Help:    "Duration of completed pipeline stages in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
	}
}

// ObserveInference implements Recorder.
func (p *PrometheusRecorder) ObserveInference(model, agentID, stage string, promptTokens, completionTokens int, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.inferenceTotal.WithLabelValues(model, agentID, stage, status).Inc()
	if success {
		p.tokensTotal.WithLabelValues(model, agentID, stage, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, agentID, stage, "completion").Add(float64(completionTokens))
	}
	p.inferenceDuration.WithLabelValues(model, agentID, stage).Observe(duration.Seconds())
}

// IncRetry implements Recorder.
func (p *PrometheusRecorder) IncRetry(provider string) {
	p.retriesTotal.WithLabelValues(provider).Inc()
}

// IncReplayHit implements Recorder.
func (p *PrometheusRecorder) IncReplayHit(stage string) {
	p.replayTotal.WithLabelValues(stage, "hit").Inc()
}

// IncReplayMiss implements Recorder.
func (p *PrometheusRecorder) IncReplayMiss(stage string) {
	p.replayTotal.WithLabelValues(stage, "miss").Inc()
}

// ObserveStage implements Recorder.
func (p *PrometheusRecorder) ObserveStage(stage string, duration time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
