package pipeline

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Selector resolves a control message to the elements it applies to,
// grounded on original_source/alumet/src/pipeline/control/mod.rs's
// ElementListFilter (All / ByPluginName / ByElementName / ByTypedId).
type Selector interface {
	Matches(key ElementKey, id RawID) bool
}

type allSelector struct{}

func (allSelector) Matches(ElementKey, RawID) bool { return true }

// SelectAll matches every element of whatever kind the message targets.
var SelectAll Selector = allSelector{}

type byPluginSelector struct{ plugin string }

func (s byPluginSelector) Matches(k ElementKey, _ RawID) bool { return k.PluginName == s.plugin }

// ByPluginName selects every element registered by a given plugin.
func ByPluginName(plugin string) Selector { return byPluginSelector{plugin: plugin} }

type byElementSelector struct{ key ElementKey }

func (s byElementSelector) Matches(k ElementKey, _ RawID) bool { return k == s.key }

// ByElementName selects exactly one named element of one plugin.
func ByElementName(plugin, name string) Selector {
	return byElementSelector{key: ElementKey{PluginName: plugin, ElementName: name}}
}

type byIDSelector struct{ id RawID }

func (s byIDSelector) Matches(_ ElementKey, id RawID) bool { return id == s.id }

// ByTypedID selects the single element with this registration id,
// the stable handle a plugin gets back from Add.
func ByTypedID(id RawID) Selector { return byIDSelector{id: id} }

// ControlMessage is the closed set of commands the control plane
// accepts, grounded on original_source/alumet/src/pipeline/control/request.rs.
type ControlMessage interface {
	isControlMessage()
}

type TriggerSourceMessage struct{ Selector Selector }
type StopSourceMessage struct{ Selector Selector }
type AddSourceMessage struct {
	Key     ElementKey
	Class   Class
	Trigger TriggerSpec
	Source  Source
}
type SetSourcePeriodMessage struct {
	Selector Selector
	Interval time.Duration
}
type EnableTransformMessage struct{ Selector Selector }
type DisableTransformMessage struct{ Selector Selector }
type FlushOutputMessage struct{ Selector Selector }
type ShutdownMessage struct{}

func (TriggerSourceMessage) isControlMessage()   {}
func (StopSourceMessage) isControlMessage()      {}
func (AddSourceMessage) isControlMessage()       {}
func (SetSourcePeriodMessage) isControlMessage() {}
func (EnableTransformMessage) isControlMessage() {}
func (DisableTransformMessage) isControlMessage() {}
func (FlushOutputMessage) isControlMessage()     {}
func (ShutdownMessage) isControlMessage()        {}

// ErrControlPlaneClosed is returned by Send once the control plane has
// processed a ShutdownMessage and stopped its loop.
var ErrControlPlaneClosed = errors.New("pipeline: control plane is closed")

type controlTask struct {
	msg  ControlMessage
	done chan error
}

// ControlPlane serializes every control message onto a single
// goroutine, applying them to the registries/executor one at a time so
// two concurrent plugin calls (e.g. one disabling a transform while
// another reconfigures a source) never interleave (spec.md §4.8).
//
// ControlHandle is the only thing plugins hold: a plain send-only
// reference to this type, deliberately not a pointer back into the
// running pipeline, so plugin and pipeline lifetimes don't become
// mutually referential (the "weak back-reference" note in spec.md's
// design notes).
type ControlPlane struct {
	executor   *Executor
	sources    *SourceRegistry
	transforms *TransformRegistry
	outputs    *OutputRegistry
	logger     *zap.Logger

	tasks   chan controlTask
	stopped chan struct{}
	done    chan struct{}
}

func NewControlPlane(executor *Executor, sources *SourceRegistry, transforms *TransformRegistry, outputs *OutputRegistry, logger *zap.Logger) *ControlPlane {
	return &ControlPlane{
		executor:   executor,
		sources:    sources,
		transforms: transforms,
		outputs:    outputs,
		logger:     logger,
		tasks:      make(chan controlTask, 64),
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run starts the serialization loop. Call once, before any Handle is
// used; the agent calls it before loading plugins.
func (cp *ControlPlane) Run() {
	go func() {
		defer close(cp.done)
		for {
			select {
			case t := <-cp.tasks:
				t.done <- cp.apply(t.msg)
				if _, isShutdown := t.msg.(ShutdownMessage); isShutdown {
					return
				}
			case <-cp.stopped:
				return
			}
		}
	}()
}

// Handle returns a ControlHandle bound to this control plane.
func (cp *ControlPlane) Handle() *ControlHandle {
	return &ControlHandle{send: cp.Send}
}

// Send enqueues msg and blocks until the control plane has applied it,
// returning whatever error the application produced. For a
// TriggerSourceMessage, applied means the matching polls have been
// queued on the scheduler, not that they have finished.
func (cp *ControlPlane) Send(msg ControlMessage) error {
	done := make(chan error, 1)
	select {
	case cp.tasks <- controlTask{msg: msg, done: done}:
	case <-cp.done:
		return ErrControlPlaneClosed
	}
	select {
	case err := <-done:
		return err
	case <-cp.done:
		return ErrControlPlaneClosed
	}
}

func (cp *ControlPlane) apply(msg ControlMessage) error {
	switch m := msg.(type) {
	case TriggerSourceMessage:
		cp.executor.TriggerManually(cp.sourceKeyMatcher(m.Selector))
		return nil

	case StopSourceMessage:
		for _, e := range cp.sources.Snapshot() {
			if m.Selector.Matches(e.key, e.id) {
				cp.executor.RemoveSource(e.key)
			}
		}
		return nil

	case AddSourceMessage:
		return cp.executor.AddSource(m.Key, m.Class, m.Trigger, m.Source)

	case SetSourcePeriodMessage:
		for _, e := range cp.sources.Snapshot() {
			if !m.Selector.Matches(e.key, e.id) {
				continue
			}
			src, class, key := e.source, e.class, e.key
			cp.executor.RemoveSource(key)
			if err := cp.executor.AddSource(key, class, AtInterval(m.Interval), src); err != nil {
				cp.logger.Error("failed to re-add source after period change", zap.Error(err))
			}
		}
		return nil

	case EnableTransformMessage:
		for _, te := range cp.transforms.All() {
			if m.Selector.Matches(te.key, te.id) {
				cp.transforms.SetEnabled(te.key, true)
			}
		}
		return nil

	case DisableTransformMessage:
		for _, te := range cp.transforms.All() {
			if m.Selector.Matches(te.key, te.id) {
				cp.transforms.SetEnabled(te.key, false)
			}
		}
		return nil

	case FlushOutputMessage:
		var firstErr error
		for _, oe := range cp.outputs.Snapshot() {
			if !m.Selector.Matches(oe.key, oe.id) {
				continue
			}
			if err := oe.output.Flush(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr

	case ShutdownMessage:
		cp.executor.Shutdown()
		return nil

	default:
		return nil
	}
}

func (cp *ControlPlane) sourceKeyMatcher(sel Selector) func(ElementKey) bool {
	matched := make(map[ElementKey]bool)
	for _, e := range cp.sources.Snapshot() {
		if sel.Matches(e.key, e.id) {
			matched[e.key] = true
		}
	}
	return func(k ElementKey) bool { return matched[k] }
}

// ControlHandle is the handle plugins receive to reach the control
// plane: just a function value, so holding one creates no reference
// cycle with the pipeline itself.
type ControlHandle struct {
	send func(ControlMessage) error
}

func (h *ControlHandle) Send(msg ControlMessage) error { return h.send(msg) }
