// Package fileoutput is a zero-dependency reference Output plugin that
// writes each point as one NDJSON line, used as the default sink in
// test fixtures and for local debugging when no OTLP collector is
// reachable (spec.md §4.9, C17).
package fileoutput

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
)

type line struct {
	Timestamp string         `json:"timestamp"`
	Metric    string         `json:"metric"`
	Resource  string         `json:"resource"`
	Consumer  string         `json:"consumer"`
	Value     any            `json:"value"`
	Attrs     map[string]any `json:"attributes,omitempty"`
}

// Output writes NDJSON lines to an underlying writer. A plain *os.File
// also exposes Sync, used by Flush to force the lines to disk.
type Output struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	syncer  interface{ Sync() error }
	metrics *metricregistry.Registry
}

func NewFile(path string, metrics *metricregistry.Registry) (*Output, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &Output{w: bufio.NewWriter(f), closer: f, syncer: f, metrics: metrics}, nil
}

func NewWriter(w io.Writer, metrics *metricregistry.Registry) *Output {
	return &Output{w: bufio.NewWriter(w), metrics: metrics}
}

func (o *Output) Write(buf *measurement.MeasurementBuffer) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	enc := json.NewEncoder(o.w)
	var writeErr error
	buf.Iter(func(p measurement.MeasurementPoint) {
		if writeErr != nil {
			return
		}
		name := fmt.Sprintf("metric_%d", p.MetricID)
		if info, ok := o.metrics.ByIDRaw(p.MetricID); ok {
			name = info.Name
		}
		l := line{
			Timestamp: p.Timestamp.Time.UTC().Format("2006-01-02T15:04:05.000000000Z"),
			Metric:    name,
			Resource:  p.Resource.IDString(),
			Consumer:  p.Consumer.IDString(),
		}
		if v, ok := p.Value.AsF64(); ok {
			l.Value = v
		} else if v, ok := p.Value.AsU64(); ok {
			l.Value = v
		}
		if p.Attributes.Len() > 0 {
			l.Attrs = make(map[string]any, p.Attributes.Len())
			p.Attributes.Range(func(key string, value measurement.AttributeValue) bool {
				l.Attrs[key] = value.Interface()
				return true
			})
		}
		writeErr = enc.Encode(l)
	})
	if writeErr != nil {
		return fmt.Errorf("encode measurement line: %w", writeErr)
	}
	return o.w.Flush()
}

func (o *Output) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		return err
	}
	if o.syncer != nil {
		return o.syncer.Sync()
	}
	return nil
}

func (o *Output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}
