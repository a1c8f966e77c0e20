package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
)

func TestWindowClosesWhenPointFallsInLaterBucket(t *testing.T) {
	reg := metricregistry.New()
	metricID, err := metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "requests", measurement.Unit{Base: "count"}, "")
	require.NoError(t, err)

	tr := NewTransform(10 * time.Second)
	resource := measurement.LocalMachine()
	consumer := measurement.ProcessConsumer(1234)

	// base is exactly on a 10s epoch boundary, so it opens window [1000, 1010).
	base := time.Unix(1000, 0)
	push := func(offset time.Duration, value uint64) *measurement.MeasurementBuffer {
		buf := measurement.NewBuffer()
		buf.Push(measurement.NewPoint(measurement.NewTimestamp(base.Add(offset)), metricID, resource, consumer, value))
		require.NoError(t, tr.Apply(buf, pipeline.TransformContext{}))
		return buf
	}

	buf1 := push(0, 10)
	require.Equal(t, 0, buf1.Len(), "first point of a window opens it; nothing to emit yet")

	buf2 := push(3*time.Second, 20)
	require.Equal(t, 0, buf2.Len(), "still in window [1000, 1010)")

	// 1011s falls in the next window [1010, 1020), closing [1000, 1010).
	buf3 := push(11*time.Second, 30)
	require.Equal(t, 1, buf3.Len())
	closed := buf3.Points()[0]
	sum, _ := closed.Value.AsU64()
	require.Equal(t, uint64(30), sum)
	require.Equal(t, base.Unix(), closed.Timestamp.Unix())
	attr, ok := closed.Attributes.Get("window_points")
	require.True(t, ok)
	require.Equal(t, int64(2), attr.Interface())

	// 1021s closes window [1010, 1020), which only ever saw the 30 above.
	buf4 := push(21*time.Second, 40)
	require.Equal(t, 1, buf4.Len())
	closed2 := buf4.Points()[0]
	sum2, _ := closed2.Value.AsU64()
	require.Equal(t, uint64(30), sum2)
	require.Equal(t, base.Add(10*time.Second).Unix(), closed2.Timestamp.Unix())
}

func TestDistinctConsumersAggregateSeparately(t *testing.T) {
	reg := metricregistry.New()
	metricID, err := metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "requests", measurement.Unit{Base: "count"}, "")
	require.NoError(t, err)

	tr := NewTransform(10 * time.Second)
	resource := measurement.LocalMachine()

	base := time.Unix(2000, 0)
	buf := measurement.NewBuffer()
	buf.Push(measurement.NewPoint(measurement.NewTimestamp(base), metricID, resource, measurement.ProcessConsumer(1), uint64(5)))
	buf.Push(measurement.NewPoint(measurement.NewTimestamp(base.Add(2*time.Second)), metricID, resource, measurement.ProcessConsumer(2), uint64(7)))
	require.NoError(t, tr.Apply(buf, pipeline.TransformContext{}))
	require.Equal(t, 0, buf.Len(), "both points are the first of their own still-open window")

	require.Len(t, tr.windows, 2)
}
