package pipeline

import (
	"sync"
	"time"

	"github.com/sa-mf/alumet-agent/internal/measurement"
)

// DispatchFunc is invoked once per tick for every source sharing a
// (interval, class) group. ts is the aligned tick boundary, not wall
// time at dispatch, so a slow tick never drifts downstream windows
// (spec.md §4.5/§9).
type DispatchFunc func(entries []*sourceEntry, ts measurement.Timestamp)

// TriggerEngine owns one goroutine per distinct (interval, class)
// group of interval-triggered sources, grounded on
// original_source/alumet/src/pipeline/elements/source/trigger.rs's
// TriggerSpec::at_interval and the crate's epoch-aligned re-arming.
//
// Re-arming always computes the next boundary from a fixed epoch
// (process start), never from "now + interval": this is what keeps
// ticks drift-free under scheduling jitter, and what coalesces a
// missed boundary (the group was busy past the next tick) into a
// single catch-up tick instead of a burst (P6, no queue buildup).
type TriggerEngine struct {
	sources  *SourceRegistry
	dispatch DispatchFunc
	epoch    time.Time

	mu     sync.Mutex
	groups map[groupKey]*tickerGroup
	closed bool
}

type tickerGroup struct {
	key    groupKey
	stopCh chan struct{}
	done   chan struct{}
}

func NewTriggerEngine(sources *SourceRegistry, dispatch DispatchFunc) *TriggerEngine {
	return &TriggerEngine{
		sources:  sources,
		dispatch: dispatch,
		epoch:    timeNow(),
		groups:   make(map[groupKey]*tickerGroup),
	}
}

// timeNow exists so tests can be written without depending on wall
// clock alignment happening to land favourably; production always uses
// time.Now.
var timeNow = time.Now

// EnsureGroup starts a ticker goroutine for (interval, class) if one is
// not already running. Idempotent: called from AddSource whenever a new
// interval/class combination appears.
func (te *TriggerEngine) EnsureGroup(interval time.Duration, class Class) {
	key := groupKey{interval: interval, class: class}
	te.mu.Lock()
	defer te.mu.Unlock()
	if te.closed {
		return
	}
	if _, exists := te.groups[key]; exists {
		return
	}
	g := &tickerGroup{key: key, stopCh: make(chan struct{}), done: make(chan struct{})}
	te.groups[key] = g
	go te.runGroup(g)
}

// DropGroupIfEmpty stops a group's ticker once it has no sources left,
// so removing the last Source of an ad hoc interval doesn't leak a
// goroutine ticking forever over an empty slice.
func (te *TriggerEngine) DropGroupIfEmpty(interval time.Duration, class Class) {
	key := groupKey{interval: interval, class: class}
	if len(te.sources.Group(interval, class)) > 0 {
		return
	}
	te.mu.Lock()
	g, exists := te.groups[key]
	if exists {
		delete(te.groups, key)
	}
	te.mu.Unlock()
	if exists {
		close(g.stopCh)
		<-g.done
	}
}

func (te *TriggerEngine) runGroup(g *tickerGroup) {
	defer close(g.done)
	var last time.Time
	for {
		next := nextAligned(te.epoch, g.key.interval, timeNow())
		// A boundary passed while the previous tick was still being
		// dispatched: fire once for the latest such boundary right away.
		if missed := next.Add(-g.key.interval); !last.IsZero() && missed.After(last) {
			next = missed
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			last = next
			entries := te.sources.Group(g.key.interval, g.key.class)
			if len(entries) > 0 {
				te.dispatch(entries, measurement.NewTimestamp(next))
			}
		case <-g.stopCh:
			timer.Stop()
			return
		}
	}
}

// nextAligned returns the next epoch-aligned boundary strictly after
// now. If the caller is so far behind that several boundaries have
// already passed, it returns the very next one ahead of now — never a
// backlog of missed boundaries.
func nextAligned(epoch time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		return now
	}
	elapsed := now.Sub(epoch)
	n := elapsed/interval + 1
	return epoch.Add(time.Duration(n) * interval)
}

// TriggerManually calls dispatch for every source matching keep, with
// the current time as timestamp, and returns once dispatch has
// returned. With the executor's dispatch that means the poll jobs are
// queued on the scheduler; the polls themselves may still be running.
func (te *TriggerEngine) TriggerManually(keep func(ElementKey) bool) {
	var matched []*sourceEntry
	for _, e := range te.sources.Snapshot() {
		if keep(e.key) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		te.dispatch(matched, measurement.NewTimestamp(timeNow()))
	}()
	<-done
}

// Shutdown stops every group goroutine and waits for them to exit.
func (te *TriggerEngine) Shutdown() {
	te.mu.Lock()
	te.closed = true
	groups := make([]*tickerGroup, 0, len(te.groups))
	for _, g := range te.groups {
		groups = append(groups, g)
	}
	te.groups = make(map[groupKey]*tickerGroup)
	te.mu.Unlock()

	for _, g := range groups {
		close(g.stopCh)
	}
	for _, g := range groups {
		<-g.done
	}
}
