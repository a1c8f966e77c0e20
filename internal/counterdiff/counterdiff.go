// Package counterdiff implements the monotonic-counter-to-delta helper
// described in spec.md §4.2 (C3). Many kernel counters (cpu.stat
// nanoseconds, RAPL energy microjoules) wrap around their maximum value;
// probes must never report a spurious spike on wrap or on the first
// sample, so the diff/wrap-correction logic lives here rather than in
// every probe.
//
// Grounded on original_source/plugin-cgroupv2/src/oar3/probe.rs and
// plugin-oar/src/lib.rs (CounterDiff::with_max_value, CounterDiffUpdate).
// Those call sites unify FirstTime and CorrectedDifference the same way
// for every counter (tot/usr/sys), resolving the "inconsistent across
// counters" open question noted in spec.md §9: callers treat all three
// CounterDiffUpdate variants through the same Option[uint64] lens.
package counterdiff

// Update is the result of one CounterDiff.Update call.
type Update struct {
	// Kind distinguishes the three possible outcomes.
	Kind UpdateKind
	// Delta holds the non-negative difference for Difference and
	// CorrectedDifference; it is zero (and meaningless) for FirstTime.
	Delta uint64
}

type UpdateKind uint8

const (
	FirstTime UpdateKind = iota
	Difference
	CorrectedDifference
)

// AsOptionalDelta mirrors the unified Option[delta] reading used by every
// call site in the original source: nil on the first sample, the
// corrected non-negative delta otherwise.
func (u Update) AsOptionalDelta() (uint64, bool) {
	if u.Kind == FirstTime {
		return 0, false
	}
	return u.Delta, true
}

// CounterDiff tracks a single monotonic counter's last-seen value and
// converts successive readings into non-negative deltas (P3).
type CounterDiff struct {
	maxValue uint64
	last     *uint64
}

// WithMaxValue constructs a CounterDiff for a counter that wraps after
// maxValue (e.g. math.MaxUint64 for a native u64 counter, or a smaller
// value for a counter known to be narrower).
func WithMaxValue(maxValue uint64) CounterDiff {
	return CounterDiff{maxValue: maxValue}
}

// Update records a new reading and returns how it relates to the
// previous one. The returned delta is never negative (P3): when new is
// smaller than the last reading, the counter is assumed to have wrapped
// exactly once and the delta is corrected as (max-last)+new+1.
func (c *CounterDiff) Update(new uint64) Update {
	if c.last == nil {
		last := new
		c.last = &last
		return Update{Kind: FirstTime}
	}

	prev := *c.last
	*c.last = new

	if new >= prev {
		return Update{Kind: Difference, Delta: new - prev}
	}

	corrected := (c.maxValue - prev) + new + 1
	return Update{Kind: CorrectedDifference, Delta: corrected}
}

// Reset discards the last-seen value; the next Update reports FirstTime.
func (c *CounterDiff) Reset() {
	c.last = nil
}
