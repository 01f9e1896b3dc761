package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/jacobsa/fuse/writequeue"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveWriteQueueAccumulatesDeltas(t *testing.T) {
	r := NewRegistry()

	prev := writequeue.Stats{}
	cur := writequeue.Stats{TotalOps: 3, Completed: 2, Failed: 1, BytesWritten: 128, QueueSize: 5, ActiveFDs: []int{1, 2}}

	r.ObserveWriteQueue(prev, cur)

	require.Equal(t, float64(3), counterValue(t, r.WriteQueueOps))
	require.Equal(t, float64(2), counterValue(t, r.WriteQueueCompleted))
	require.Equal(t, float64(1), counterValue(t, r.WriteQueueFailed))
	require.Equal(t, float64(128), counterValue(t, r.WriteQueueBytesWritten))
	require.Equal(t, float64(5), gaugeValue(t, r.WriteQueueSize))
	require.Equal(t, float64(2), gaugeValue(t, r.WriteQueueActiveFDs))

	// A second observation should only add the delta, not double-count.
	next := writequeue.Stats{TotalOps: 5, Completed: 4, Failed: 1, BytesWritten: 200, QueueSize: 1}
	r.ObserveWriteQueue(cur, next)
	require.Equal(t, float64(5), counterValue(t, r.WriteQueueOps))
}

func TestCollectorsAreRegisterable(t *testing.T) {
	r := NewRegistry()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(r.WriteQueueOps))
}
