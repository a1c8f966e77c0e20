// Package metricregistry implements the process-lifetime, write-mostly
// metric catalogue (spec.md §4.1, C2): name -> typed identifier, with
// pluggable duplicate-name handling and case-sensitive name validation.
package metricregistry

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/sa-mf/alumet-agent/internal/measurement"
)

// DuplicateStrategy controls what happens when CreateMetric is called
// twice with the same name.
type DuplicateStrategy uint8

const (
	// OnDuplicateError rejects the second registration (spec.md P1).
	OnDuplicateError DuplicateStrategy = iota
	// OnDuplicateReplace overwrites the existing metric's description,
	// unit and value type, keeping the same RawMetricID.
	OnDuplicateReplace
)

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// DuplicateError is returned by CreateMetric under OnDuplicateError when
// name is already registered.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("metric registry: metric %q already exists", e.Name)
}

// InvalidNameError is returned when name fails the identifier grammar.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("metric registry: invalid metric name %q, must match [A-Za-z_][A-Za-z0-9_-]*", e.Name)
}

// TypeMismatchError is returned by ByName when the caller's expected
// value type T does not match the metric's declared type (I2).
type TypeMismatchError struct {
	Name     string
	Declared measurement.ValueType
	Wanted   measurement.ValueType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("metric registry: metric %q was declared as %s, not %s", e.Name, e.Declared, e.Wanted)
}

// Registry is the metric catalogue. It is safe for concurrent use: many
// readers, rare writers (§5).
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]measurement.RawMetricID
	metrics []measurement.Metric
}

func New() *Registry {
	return &Registry{byName: make(map[string]measurement.RawMetricID)}
}

// CreateMetric registers a new metric under the given duplicate-handling
// strategy and returns a TypedMetricId guaranteeing the declared type T.
func CreateMetric[T measurement.Value](r *Registry, strategy DuplicateStrategy, name string, unit measurement.Unit, description string) (measurement.TypedMetricId[T], error) {
	var zero measurement.TypedMetricId[T]
	if !nameRE.MatchString(name) {
		return zero, &InvalidNameError{Name: name}
	}

	valueType := valueTypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		switch strategy {
		case OnDuplicateReplace:
			r.metrics[existing] = measurement.Metric{
				ID:          existing,
				Name:        name,
				ValueType:   valueType,
				Unit:        unit,
				Description: description,
			}
			return typedFromRaw[T](existing), nil
		default:
			return zero, &DuplicateError{Name: name}
		}
	}

	id := measurement.RawMetricID(len(r.metrics))
	r.metrics = append(r.metrics, measurement.Metric{
		ID:          id,
		Name:        name,
		ValueType:   valueType,
		Unit:        unit,
		Description: description,
	})
	r.byName[name] = id
	return typedFromRaw[T](id), nil
}

// ByNameRaw returns the untyped id and info for a registered metric.
func (r *Registry) ByNameRaw(name string) (measurement.RawMetricID, measurement.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return 0, measurement.Metric{}, false
	}
	return id, r.metrics[id], true
}

// ByIDRaw returns the metric info for a raw id.
func (r *Registry) ByIDRaw(id measurement.RawMetricID) (measurement.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.metrics) {
		return measurement.Metric{}, false
	}
	return r.metrics[id], true
}

// ByName looks up a previously-registered metric and presents it with
// the caller-chosen type T, failing with TypeMismatchError if the
// metric's declared value type differs (I2).
func ByName[T measurement.Value](r *Registry, name string) (measurement.TypedMetricId[T], error) {
	var zero measurement.TypedMetricId[T]
	id, info, ok := r.ByNameRaw(name)
	if !ok {
		return zero, fmt.Errorf("metric registry: no such metric %q", name)
	}
	want := valueTypeFor[T]()
	if info.ValueType != want {
		return zero, &TypeMismatchError{Name: name, Declared: info.ValueType, Wanted: want}
	}
	return typedFromRaw[T](id), nil
}

// Len reports the number of registered metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

// All returns a snapshot of every registered metric, in registration
// order.
func (r *Registry) All() []measurement.Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]measurement.Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

func valueTypeFor[T measurement.Value]() measurement.ValueType {
	var zero T
	if _, ok := any(zero).(float64); ok {
		return measurement.ValueTypeF64
	}
	return measurement.ValueTypeU64
}

// typedFromRaw is the registry's only way to mint a TypedMetricId; it is
// only ever called after the caller's T has been checked against the
// metric's declared ValueType, upholding I2.
func typedFromRaw[T measurement.Value](id measurement.RawMetricID) measurement.TypedMetricId[T] {
	return measurement.NewTypedMetricID[T](id)
}
