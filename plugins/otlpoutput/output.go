// Package otlpoutput is a reference Output plugin exporting
// measurement points over OTLP/HTTP, grounded on the teacher's
// go.opentelemetry.io/otel stack (spec.md §4.9's external interfaces,
// C17). It builds metricdata.ResourceMetrics directly rather than
// running the full SDK MeterProvider pipeline, since our points
// already arrive pre-aggregated by the trigger/transform stages — the
// SDK's own aggregation would just be redundant bookkeeping here.
package otlpoutput

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
)

// Output exports every Write call's buffer as one OTLP metrics export
// request, resolving each point's metric name from the shared
// registry.
type Output struct {
	exporter sdkmetric.Exporter
	resource *resource.Resource
	metrics  *metricregistry.Registry
}

func New(ctx context.Context, endpoint string, insecure bool, metrics *metricregistry.Registry) (*Output, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp http exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName("alumet-agent"),
		semconv.ServiceInstanceID(uuid.NewString()),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	return &Output{exporter: exporter, resource: res, metrics: metrics}, nil
}

func (o *Output) Write(buf *measurement.MeasurementBuffer) error {
	grouped := make(map[measurement.RawMetricID][]measurement.MeasurementPoint)
	buf.Iter(func(p measurement.MeasurementPoint) {
		grouped[p.MetricID] = append(grouped[p.MetricID], p)
	})
	if len(grouped) == 0 {
		return nil
	}

	metricsOut := make([]metricdata.Metrics, 0, len(grouped))
	for metricID, points := range grouped {
		info, _ := o.metrics.ByIDRaw(metricID)
		name := info.Name
		if name == "" {
			name = fmt.Sprintf("metric_%d", metricID)
		}
		metricsOut = append(metricsOut, buildMetric(name, info.Description, points))
	}

	rm := &metricdata.ResourceMetrics{
		Resource: o.resource,
		ScopeMetrics: []metricdata.ScopeMetrics{{
			Scope:   instrumentation.Scope{Name: "alumet-agent"},
			Metrics: metricsOut,
		}},
	}
	if err := o.exporter.Export(context.Background(), rm); err != nil {
		return pipeline.RetryableOutputError(fmt.Errorf("export otlp metrics: %w", err))
	}
	return nil
}

func buildMetric(name, description string, points []measurement.MeasurementPoint) metricdata.Metrics {
	if points[0].ValueType == measurement.ValueTypeF64 {
		dps := make([]metricdata.DataPoint[float64], 0, len(points))
		for _, p := range points {
			v, _ := p.Value.AsF64()
			dps = append(dps, metricdata.DataPoint[float64]{
				Attributes: attrsFor(p),
				Time:       p.Timestamp.Time,
				Value:      v,
			})
		}
		return metricdata.Metrics{Name: name, Description: description, Data: metricdata.Gauge[float64]{DataPoints: dps}}
	}

	dps := make([]metricdata.DataPoint[int64], 0, len(points))
	for _, p := range points {
		v, _ := p.Value.AsU64()
		dps = append(dps, metricdata.DataPoint[int64]{
			Attributes: attrsFor(p),
			Time:       p.Timestamp.Time,
			Value:      int64(v),
		})
	}
	return metricdata.Metrics{Name: name, Description: description, Data: metricdata.Gauge[int64]{DataPoints: dps}}
}

func attrsFor(p measurement.MeasurementPoint) attribute.Set {
	kvs := []attribute.KeyValue{
		attribute.String("resource", p.Resource.IDString()),
		attribute.String("consumer", p.Consumer.IDString()),
	}
	p.Attributes.Range(func(key string, value measurement.AttributeValue) bool {
		kvs = append(kvs, attribute.String(key, value.String()))
		return true
	})
	return attribute.NewSet(kvs...)
}

func (o *Output) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return o.exporter.ForceFlush(ctx)
}
