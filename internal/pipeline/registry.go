package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/sa-mf/alumet-agent/internal/measurement"
)

// --- Source contract (spec.md §4.3) -----------------------------------

// Source is a pipeline stage that produces measurements. poll's
// timestamp is the logical tick time, not wall time at entry, so
// downstream aggregation stays drift-free.
type Source interface {
	Poll(acc measurement.MeasurementAccumulator, ts measurement.Timestamp) error
}

// PollError wraps a poll failure with its retry policy. CanRetry errors
// are logged and the source continues; Fatal errors remove the source.
type PollError struct {
	Err   error
	Fatal bool
}

func (e *PollError) Error() string { return e.Err.Error() }
func (e *PollError) Unwrap() error { return e.Err }

func RetryablePollError(err error) error { return &PollError{Err: err} }
func FatalPollError(err error) error     { return &PollError{Err: err, Fatal: true} }

// --- Transform contract (spec.md §4.6) --------------------------------

// TransformContext is passed to every Apply call; it currently carries
// nothing beyond existence, but gives transforms room to grow (e.g.
// metric lookups) without changing the Transform interface.
type TransformContext struct{}

type Transform interface {
	Apply(buf *measurement.MeasurementBuffer, ctx TransformContext) error
}

type TransformErrorKind uint8

const (
	TransformCanContinue TransformErrorKind = iota
	TransformUnexpectedInput
	TransformFatal
)

type TransformError struct {
	Err  error
	Kind TransformErrorKind
}

func (e *TransformError) Error() string { return e.Err.Error() }
func (e *TransformError) Unwrap() error { return e.Err }

func CanContinueError(err error) error     { return &TransformError{Err: err, Kind: TransformCanContinue} }
func UnexpectedInputError(err error) error { return &TransformError{Err: err, Kind: TransformUnexpectedInput} }
func FatalTransformError(err error) error  { return &TransformError{Err: err, Kind: TransformFatal} }

// --- Output contract ---------------------------------------------------

type Output interface {
	Write(buf *measurement.MeasurementBuffer) error
	// Flush is called on a control-plane Flush{selector} message and on
	// shutdown; outputs that buffer internally should force a write.
	Flush() error
}

type OutputError struct {
	Err   error
	Fatal bool
}

func (e *OutputError) Error() string { return e.Err.Error() }
func (e *OutputError) Unwrap() error { return e.Err }

func RetryableOutputError(err error) error { return &OutputError{Err: err} }
func FatalOutputError(err error) error     { return &OutputError{Err: err, Fatal: true} }

// --- Shared registration errors ---------------------------------------

type DuplicateElementError struct{ Key ElementKey }

func (e *DuplicateElementError) Error() string {
	return fmt.Sprintf("pipeline: element %s already registered", e.Key)
}

// --- Source registry ----------------------------------------------------

type sourceEntry struct {
	key     ElementKey
	id      RawID
	class   Class
	trigger TriggerSpec
	source  Source
	// pollMu serialises polls of this one source: a source is never
	// polled concurrently with itself (§5), even across group
	// coalescing/manual triggers racing a periodic tick.
	pollMu sync.Mutex
	// removed guards against racing an in-flight poll against removal;
	// set true by Remove, checked by pollOne before polling.
	removed bool
}

// SourceRegistry is the set of registered sources (spec.md §3), grouped
// by (interval, class) for the trigger engine.
type SourceRegistry struct {
	mu     sync.RWMutex
	byKey  map[ElementKey]*sourceEntry
	byID   map[RawID]*sourceEntry
	nextID uint64
}

func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		byKey: make(map[ElementKey]*sourceEntry),
		byID:  make(map[RawID]*sourceEntry),
	}
}

// Add registers a new source. Re-adding an existing (plugin, name) pair
// is rejected with DuplicateElementError, making add_source idempotent
// against duplicate-create races (P9, §4.9).
func (r *SourceRegistry) Add(key ElementKey, class Class, trigger TriggerSpec, src Source) (RawID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[key]; exists {
		return 0, &DuplicateElementError{Key: key}
	}
	r.nextID++
	id := RawID(r.nextID)
	e := &sourceEntry{key: key, id: id, class: class, trigger: trigger, source: src}
	r.byKey[key] = e
	r.byID[id] = e
	return id, nil
}

// Remove unregisters a source. Removing an absent one is a no-op,
// making remove_source idempotent against create-remove-create races
// (P9, §4.9).
func (r *SourceRegistry) Remove(key ElementKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return false
	}
	e.removed = true
	delete(r.byKey, key)
	delete(r.byID, e.id)
	return true
}

// Group returns a snapshot of the sources currently in the given
// (interval, class) group, re-evaluated on every call so dynamically
// added/removed sources are picked up at the next tick boundary.
func (r *SourceRegistry) Group(interval time.Duration, class Class) []*sourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*sourceEntry
	for _, e := range r.byKey {
		if e.trigger.Kind == TriggerInterval && e.trigger.Interval == interval && e.class == class {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns every currently registered source.
func (r *SourceRegistry) Snapshot() []*sourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*sourceEntry, 0, len(r.byKey))
	for _, e := range r.byKey {
		out = append(out, e)
	}
	return out
}

func (r *SourceRegistry) byPluginAndName(plugin, name string) (*sourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[ElementKey{PluginName: plugin, ElementName: name}]
	return e, ok
}

// Get returns the registered entry for key, if any.
func (r *SourceRegistry) Get(key ElementKey) (*sourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key]
	return e, ok
}

// --- Transform registry --------------------------------------------------

type transformEntry struct {
	key       ElementKey
	id        RawID
	transform Transform
	enabled   bool
}

// TransformRegistry holds the ordered transform chain; registration
// order is execution order (I5).
type TransformRegistry struct {
	mu      sync.RWMutex
	order   []*transformEntry
	byKey   map[ElementKey]*transformEntry
	nextID  uint64
}

func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{byKey: make(map[ElementKey]*transformEntry)}
}

func (r *TransformRegistry) Add(key ElementKey, t Transform) (RawID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[key]; exists {
		return 0, &DuplicateElementError{Key: key}
	}
	r.nextID++
	e := &transformEntry{key: key, id: RawID(r.nextID), transform: t, enabled: true}
	r.byKey[key] = e
	r.order = append(r.order, e)
	return e.id, nil
}

func (r *TransformRegistry) Remove(key ElementKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return false
	}
	delete(r.byKey, key)
	for i, o := range r.order {
		if o == e {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *TransformRegistry) SetEnabled(key ElementKey, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return false
	}
	e.enabled = enabled
	return true
}

// Chain returns the enabled transforms in registration order (I5).
func (r *TransformRegistry) Chain() []*transformEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*transformEntry, 0, len(r.order))
	for _, e := range r.order {
		if e.enabled {
			out = append(out, e)
		}
	}
	return out
}

// All returns every registered transform, enabled or not, in
// registration order. Used by the control plane to resolve selectors
// against transforms that may currently be disabled.
func (r *TransformRegistry) All() []*transformEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*transformEntry, len(r.order))
	copy(out, r.order)
	return out
}

// --- Output registry ------------------------------------------------------

type outputEntry struct {
	key    ElementKey
	id     RawID
	output Output
}

type OutputRegistry struct {
	mu     sync.RWMutex
	byKey  map[ElementKey]*outputEntry
	nextID uint64
}

func NewOutputRegistry() *OutputRegistry {
	return &OutputRegistry{byKey: make(map[ElementKey]*outputEntry)}
}

func (r *OutputRegistry) Add(key ElementKey, o Output) (RawID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[key]; exists {
		return 0, &DuplicateElementError{Key: key}
	}
	r.nextID++
	e := &outputEntry{key: key, id: RawID(r.nextID), output: o}
	r.byKey[key] = e
	return e.id, nil
}

func (r *OutputRegistry) Remove(key ElementKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byKey[key]
	delete(r.byKey, key)
	return ok
}

func (r *OutputRegistry) Snapshot() []*outputEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*outputEntry, 0, len(r.byKey))
	for _, e := range r.byKey {
		out = append(out, e)
	}
	return out
}
