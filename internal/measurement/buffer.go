package measurement

// MeasurementBuffer is an ordered sequence of points owned by exactly one
// pipeline stage at a time (I4): a source's poll, a transform's apply, or
// an output's write, never two at once.
type MeasurementBuffer struct {
	points []MeasurementPoint
}

func NewBuffer() *MeasurementBuffer {
	return &MeasurementBuffer{}
}

func NewBufferWithCapacity(n int) *MeasurementBuffer {
	return &MeasurementBuffer{points: make([]MeasurementPoint, 0, n)}
}

// Push appends a point.
func (b *MeasurementBuffer) Push(p MeasurementPoint) {
	b.points = append(b.points, p)
}

// Len returns the number of points currently held.
func (b *MeasurementBuffer) Len() int { return len(b.points) }

// Clear empties the buffer in place, keeping its backing array (used by
// the aggregation transform, which drains the incoming buffer and
// refills it with aggregated points).
func (b *MeasurementBuffer) Clear() {
	b.points = b.points[:0]
}

// Points returns the buffer's points. Callers that mutate the slice in
// place (transforms) are expected to own the buffer exclusively per I4.
func (b *MeasurementBuffer) Points() []MeasurementPoint { return b.points }

// Iter calls fn for every point currently in the buffer.
func (b *MeasurementBuffer) Iter(fn func(MeasurementPoint)) {
	for _, p := range b.points {
		fn(p)
	}
}

// Clone returns a deep copy, used when a buffer must be handed to more
// than one output concurrently (§4.6: each output owns its buffer view).
func (b *MeasurementBuffer) Clone() *MeasurementBuffer {
	clone := NewBufferWithCapacity(len(b.points))
	for _, p := range b.points {
		clone.points = append(clone.points, p.Clone())
	}
	return clone
}

// MeasurementAccumulator is the write-only view of a buffer passed to a
// Source for the duration of a single poll; it cannot be read back,
// matching the "write-only view" contract of spec.md §3.
type MeasurementAccumulator struct {
	buf *MeasurementBuffer
}

func NewAccumulator(buf *MeasurementBuffer) MeasurementAccumulator {
	return MeasurementAccumulator{buf: buf}
}

// Push records one point.
func (a MeasurementAccumulator) Push(p MeasurementPoint) {
	a.buf.Push(p)
}
