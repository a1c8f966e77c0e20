// Package aggregation sums measurement points into fixed-width,
// epoch-aligned time windows, grounded on
// original_source/plugin-aggregation/src/transform.rs and spec.md §9's
// resolution of that file's commented-out windowing logic.
package aggregation

import (
	"time"

	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
)

type windowKey struct {
	metricID measurement.RawMetricID
	consumer string
	resource string
}

// window accumulates the points that fall in one
// get_current_interval bucket for a (metric, consumer, resource) key:
// [bucketStart, bucketStart+interval).
type window struct {
	bucketStart time.Time
	template    measurement.MeasurementPoint
	sum         measurement.WrappedValue
	count       int
}

func (w *window) finalize() measurement.MeasurementPoint {
	out := w.template
	out.Timestamp = measurement.NewTimestamp(w.bucketStart)
	out.Value = w.sum
	return out.WithAttr("window_points", measurement.IntAttr(int64(w.count)))
}

// Transform buckets points into fixed epoch-aligned windows per
// (metric, consumer, resource) key and emits one summed point per
// window as soon as a point belonging to a later window arrives,
// per get_current_interval = (⌊t/d⌋·d, ⌊t/d⌋·d+d).
type Transform struct {
	interval time.Duration
	windows  map[windowKey]*window
}

func NewTransform(interval time.Duration) *Transform {
	return &Transform{interval: interval, windows: make(map[windowKey]*window)}
}

// bucketStart floors t to the start of its get_current_interval window.
func bucketStart(t time.Time, interval time.Duration) time.Time {
	floored := (t.UnixNano() / int64(interval)) * int64(interval)
	return time.Unix(0, floored).UTC()
}

func (t *Transform) Apply(buf *measurement.MeasurementBuffer, _ pipeline.TransformContext) error {
	var closed []measurement.MeasurementPoint

	buf.Iter(func(p measurement.MeasurementPoint) {
		key := windowKey{metricID: p.MetricID, consumer: p.Consumer.IDString(), resource: p.Resource.IDString()}
		start := bucketStart(p.Timestamp.Time, t.interval)

		w, ok := t.windows[key]
		if ok && !w.bucketStart.Equal(start) {
			closed = append(closed, w.finalize())
			ok = false
		}
		if !ok {
			t.windows[key] = &window{bucketStart: start, template: p.Clone(), sum: p.Value, count: 1}
			return
		}
		w.sum = w.sum.Add(p.Value)
		w.count++
	})

	buf.Clear()
	for _, p := range closed {
		buf.Push(p)
	}
	return nil
}
