package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerDurationIsMonotonic(t *testing.T) {
	timer := NewTimer()
	require.False(t, timer.start.IsZero())

	time.Sleep(10 * time.Millisecond)
	first := timer.Duration()
	time.Sleep(10 * time.Millisecond)
	second := timer.Duration()

	assert.Greater(t, second, first, "Duration must grow monotonically across calls")
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)
}

// ObserveDuration is what pkg/manager's execute() calls once per task
// execution, against this package's own TaskExecutionDuration histogram —
// exercise that exact call shape rather than a throwaway histogram.
func TestObserveDurationRecordsIntoSharedHistogram(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(TaskExecutionDuration)

	var metric dto.Metric
	require.NoError(t, TaskExecutionDuration.Write(&metric))
	require.NotNil(t, metric.Histogram)
	assert.GreaterOrEqual(t, metric.Histogram.GetSampleSum(), 0.005)
	assert.GreaterOrEqual(t, metric.Histogram.GetSampleCount(), uint64(1))
}

func TestObserveDurationVecLabelsIndependently(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellgraph_test_op_duration_seconds",
			Help:    "scratch histogram for this test only",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDurationVec(vec, "resolve")

	var metric dto.Metric
	require.NoError(t, vec.WithLabelValues("resolve").(prometheus.Histogram).Write(&metric))
	assert.Equal(t, uint64(1), metric.Histogram.GetSampleCount())

	var empty dto.Metric
	require.NoError(t, vec.WithLabelValues("native_call").(prometheus.Histogram).Write(&empty))
	assert.Equal(t, uint64(0), empty.Histogram.GetSampleCount(), "an unrelated label must not observe the other op's sample")
}
