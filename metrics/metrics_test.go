package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveInference("mock", "worker_1", "worker_drafts", 100, 50, true, 250*time.Millisecond)
	rec.ObserveInference("mock", "worker_1", "worker_drafts", 0, 0, false, time.Second)
	rec.IncRetry("anthropic")
	rec.IncReplayHit("worker_refinement")
	rec.IncReplayMiss("worker_refinement")
	rec.IncReplayMiss("worker_refinement")
	rec.ObserveStage("worker_drafts", 3*time.Second)

	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.inferenceTotal.WithLabelValues("mock", "worker_1", "worker_drafts", "success")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.inferenceTotal.WithLabelValues("mock", "worker_1", "worker_drafts", "error")), 1e-9)
	assert.InDelta(t, 100.0, testutil.ToFloat64(
		rec.tokensTotal.WithLabelValues("mock", "worker_1", "worker_drafts", "prompt")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.retriesTotal.WithLabelValues("anthropic")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.replayTotal.WithLabelValues("worker_refinement", "hit")), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(
		rec.replayTotal.WithLabelValues("worker_refinement", "miss")), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNopRecorder(t *testing.T) {
	rec := Nop()
	rec.ObserveInference("m", "a", "s", 1, 1, true, time.Second)
	rec.IncRetry("p")
	rec.IncReplayHit("s")
	rec.IncReplayMiss("s")
	rec.ObserveStage("s", time.Second)
}
