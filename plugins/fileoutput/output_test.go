package fileoutput

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
)

func TestWriteEncodesOneLinePerPoint(t *testing.T) {
	reg := metricregistry.New()
	metricID, err := metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "requests", measurement.Unit{Base: "count"}, "")
	require.NoError(t, err)

	var out bytes.Buffer
	o := NewWriter(&out, reg)

	buf := measurement.NewBuffer()
	buf.Push(measurement.NewPoint(measurement.NewTimestamp(time.Unix(1000, 0)), metricID, measurement.LocalMachine(), measurement.ProcessConsumer(7), uint64(42)).
		WithAttr("job", measurement.StringAttr("train")))
	require.NoError(t, o.Write(buf))

	var decoded line
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "requests", decoded.Metric)
	require.Equal(t, "process:7", decoded.Consumer)
	require.Equal(t, float64(42), decoded.Value)
	require.Equal(t, "train", decoded.Attrs["job"])
}

func TestWriteUnknownMetricIDFallsBackToSyntheticName(t *testing.T) {
	reg := metricregistry.New()
	var out bytes.Buffer
	o := NewWriter(&out, reg)

	buf := measurement.NewBuffer()
	buf.Push(measurement.MeasurementPoint{
		Timestamp: measurement.NewTimestamp(time.Unix(1, 0)),
		MetricID:  99,
		ValueType: measurement.ValueTypeU64,
		Resource:  measurement.LocalMachine(),
		Consumer:  measurement.ProcessConsumer(1),
		Value:     measurement.WrapU64(1),
	})
	require.NoError(t, o.Write(buf))

	var decoded line
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "metric_99", decoded.Metric)
}
