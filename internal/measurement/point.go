package measurement

import "time"

// Timestamp is the logical tick time assigned by the trigger engine, not
// the wall-clock time at which a source happened to run (§4.3).
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{t} }

// WrappedValue carries a measurement value together with its runtime
// ValueType, so a MeasurementBuffer can hold points of mixed metric types.
type WrappedValue struct {
	typ ValueType
	u   uint64
	f   float64
}

func WrapU64(v uint64) WrappedValue  { return WrappedValue{typ: ValueTypeU64, u: v} }
func WrapF64(v float64) WrappedValue { return WrappedValue{typ: ValueTypeF64, f: v} }

func (w WrappedValue) Type() ValueType { return w.typ }

func (w WrappedValue) AsU64() (uint64, bool) {
	if w.typ != ValueTypeU64 {
		return 0, false
	}
	return w.u, true
}

func (w WrappedValue) AsF64() (float64, bool) {
	if w.typ != ValueTypeF64 {
		return 0, false
	}
	return w.f, true
}

// Add combines two values of the same type, used by the aggregation
// transform's window reducer. It panics on a type mismatch: the
// transform only ever combines points sharing a (metric, consumer,
// resource) key, and I3 guarantees same-metric points share a type.
func (w WrappedValue) Add(other WrappedValue) WrappedValue {
	if w.typ != other.typ {
		panic("measurement: Add between mismatched value types")
	}
	if w.typ == ValueTypeF64 {
		return WrapF64(w.f + other.f)
	}
	return WrapU64(w.u + other.u)
}

// MeasurementPoint is one observation: what was measured (metric), where
// (resource), by whom it is consumed, when (timestamp), its value, and
// any descriptive attributes.
type MeasurementPoint struct {
	Timestamp  Timestamp
	MetricID   RawMetricID
	ValueType  ValueType
	Resource   Resource
	Consumer   ResourceConsumer
	Value      WrappedValue
	Attributes Attributes
}

// NewPoint constructs a point from a typed metric identifier, so the
// point's value type is guaranteed (I3) to match the metric's declared
// type without a runtime check.
func NewPoint[T Value](ts Timestamp, metric TypedMetricId[T], resource Resource, consumer ResourceConsumer, value T) MeasurementPoint {
	vt := valueTypeOf[T]()
	var wrapped WrappedValue
	switch vt {
	case ValueTypeF64:
		wrapped = WrapF64(any(value).(float64))
	default:
		wrapped = WrapU64(any(value).(uint64))
	}
	return MeasurementPoint{
		Timestamp:  ts,
		MetricID:   metric.Raw(),
		ValueType:  vt,
		Resource:   resource,
		Consumer:   consumer,
		Value:      wrapped,
		Attributes: NewAttributes(),
	}
}

// WithAttr attaches an attribute and returns the point for chaining, in
// the style of a builder.
func (p MeasurementPoint) WithAttr(name string, value AttributeValue) MeasurementPoint {
	p.Attributes.Set(name, value)
	return p
}

// Clone returns a deep copy so that a point may be held by two stages
// without violating I4 (e.g. the aggregation transform buffering a point
// across ticks while a later stage mutates its own copy).
func (p MeasurementPoint) Clone() MeasurementPoint {
	clone := p
	clone.Attributes = p.Attributes.Clone()
	return clone
}
