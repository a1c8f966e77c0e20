package otlpoutput

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
)

func TestBuildMetricGroupsU64PointsIntoIntGauge(t *testing.T) {
	reg := metricregistry.New()
	metricID, err := metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "requests", measurement.Unit{Base: "count"}, "request count")
	require.NoError(t, err)

	p1 := measurement.NewPoint(measurement.NewTimestamp(time.Unix(1, 0)), metricID, measurement.LocalMachine(), measurement.ProcessConsumer(1), uint64(10))
	p2 := measurement.NewPoint(measurement.NewTimestamp(time.Unix(2, 0)), metricID, measurement.LocalMachine(), measurement.ProcessConsumer(2), uint64(20))

	m := buildMetric("requests", "request count", []measurement.MeasurementPoint{p1, p2})
	require.Equal(t, "requests", m.Name)

	gauge, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 2)
	require.Equal(t, int64(10), gauge.DataPoints[0].Value)
	require.Equal(t, int64(20), gauge.DataPoints[1].Value)
}

func TestBuildMetricGroupsF64PointsIntoFloatGauge(t *testing.T) {
	reg := metricregistry.New()
	metricID, err := metricregistry.CreateMetric[float64](reg, metricregistry.OnDuplicateError, "cpu_load", measurement.Unit{Base: "ratio"}, "")
	require.NoError(t, err)

	p := measurement.NewPoint(measurement.NewTimestamp(time.Unix(1, 0)), metricID, measurement.LocalMachine(), measurement.ProcessConsumer(1), 0.5)

	m := buildMetric("cpu_load", "", []measurement.MeasurementPoint{p})
	gauge, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Equal(t, 0.5, gauge.DataPoints[0].Value)
}

func TestOutputWriteIsNoOpOnEmptyBuffer(t *testing.T) {
	reg := metricregistry.New()
	o := &Output{metrics: reg}
	require.NoError(t, o.Write(measurement.NewBuffer()))
}
