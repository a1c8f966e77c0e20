package measurement

// ValueType is the scalar type a metric's measurements are stored as.
type ValueType uint8

const (
	ValueTypeU64 ValueType = iota
	ValueTypeF64
)

func (t ValueType) String() string {
	if t == ValueTypeF64 {
		return "f64"
	}
	return "u64"
}

// Unit is a prefixed SI unit, e.g. "microjoule", "byte", "nanosecond".
type Unit struct {
	Base   string
	Prefix string // e.g. "milli", "micro", "" for base unit
}

func (u Unit) String() string {
	if u.Prefix == "" {
		return u.Base
	}
	return u.Prefix + u.Base
}

// RawMetricID is the untyped identifier returned by MetricRegistry.ByName;
// it carries no compile-time guarantee about the metric's value type.
type RawMetricID uint32

// Metric is the immutable, process-lifetime description of a measured
// quantity, registered exactly once (I1).
type Metric struct {
	ID          RawMetricID
	Name        string
	ValueType   ValueType
	Unit        Unit
	Description string
}

// TypedMetricId presents a RawMetricID together with a compile-time
// guarantee (I2) that the metric was declared with value type T. The
// zero value is not a valid identifier; only MetricRegistry.CreateMetric
// and MetricRegistry.ByName construct one.
type TypedMetricId[T Value] struct {
	raw RawMetricID
}

// Value constrains the Go types usable as a measurement value; it mirrors
// ValueType's two variants.
type Value interface {
	uint64 | float64
}

// NewTypedMetricID mints a typed handle for a raw id. Only
// metricregistry.Registry calls this, and only after checking that the
// metric named by raw was declared with value type T (I2); everything
// else obtains a TypedMetricId through the registry.
func NewTypedMetricID[T Value](raw RawMetricID) TypedMetricId[T] {
	return TypedMetricId[T]{raw: raw}
}

// Raw returns the untyped identifier backing this typed handle.
func (t TypedMetricId[T]) Raw() RawMetricID { return t.raw }

// valueTypeOf returns the ValueType corresponding to T.
func valueTypeOf[T Value]() ValueType {
	var zero T
	switch any(zero).(type) {
	case float64:
		return ValueTypeF64
	default:
		return ValueTypeU64
	}
}
