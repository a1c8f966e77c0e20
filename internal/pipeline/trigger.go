package pipeline

import "time"

// TriggerKind distinguishes a periodic trigger from one that only fires
// on an explicit control-plane message.
type TriggerKind uint8

const (
	TriggerInterval TriggerKind = iota
	TriggerManualOnly
)

// TriggerSpec describes how often a source's poll should run. AtInterval
// sources are grouped by (interval, class) and ticked by a shared timer
// (spec.md §4.4); Manual sources are only polled in response to a
// TriggerManually control message.
type TriggerSpec struct {
	Kind     TriggerKind
	Interval time.Duration
}

func AtInterval(d time.Duration) TriggerSpec {
	return TriggerSpec{Kind: TriggerInterval, Interval: d}
}

func Manual() TriggerSpec {
	return TriggerSpec{Kind: TriggerManualOnly}
}

// groupKey is the (interval, class) grouping key from spec.md §4.4: all
// sources at the same interval and class tick together, aligned to a
// shared epoch so e.g. every 1s source lines up on whole seconds.
type groupKey struct {
	interval time.Duration
	class    Class
}
