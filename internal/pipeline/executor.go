package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/measurement"
)

// minPollTimeout is the floor applied to max(interval, 5s) when
// deciding how long to wait for a single poll before abandoning it
// (spec.md §4.7). A manual-only source has no interval to compare
// against, so it always uses this floor.
const minPollTimeout = 5 * time.Second

const defaultSourceBufferCapacity = 64

type sourceRuntime struct {
	id           RawID
	ch           chan *measurement.MeasurementBuffer
	stopConsumer chan struct{}
	consumerDone chan struct{}
}

// Executor wires the registries together: it is the dispatch target
// the trigger engine calls on every tick, and it owns one consumer
// goroutine per source carrying that source's buffers through the
// transform chain to every output (spec.md §4.7, C7).
//
// Each source gets its own bounded channel. A full channel means the
// consumer can't keep up; the executor drops the oldest buffered
// sample rather than blocking the scheduler thread that produced the
// new one (P6 — bounded memory, no queue buildup, recent data wins).
type Executor struct {
	sources    *SourceRegistry
	transforms *TransformRegistry
	outputs    *OutputRegistry
	scheduler  *Scheduler
	trigger    *TriggerEngine
	logger     *zap.Logger

	bufferCapacity int

	mu       sync.Mutex
	runtimes map[RawID]*sourceRuntime

	// OnBufferDropped and OnPollError are hooks for self-observability
	// (C15); nil-safe, defaulting to no-ops.
	OnBufferDropped func(key ElementKey, count int)
	OnPollError     func(key ElementKey, kind string)
}

func NewExecutor(sources *SourceRegistry, transforms *TransformRegistry, outputs *OutputRegistry, scheduler *Scheduler, logger *zap.Logger) *Executor {
	e := &Executor{
		sources:        sources,
		transforms:     transforms,
		outputs:        outputs,
		scheduler:      scheduler,
		logger:         logger,
		bufferCapacity: defaultSourceBufferCapacity,
		runtimes:       make(map[RawID]*sourceRuntime),
	}
	e.trigger = NewTriggerEngine(sources, e.dispatch)
	return e
}

// AddSource registers src and starts its consumer goroutine. Interval
// sources also ensure their (interval, class) trigger group exists.
func (e *Executor) AddSource(key ElementKey, class Class, trigger TriggerSpec, src Source) error {
	id, err := e.sources.Add(key, class, trigger, src)
	if err != nil {
		return err
	}
	rt := &sourceRuntime{
		id:           id,
		ch:           make(chan *measurement.MeasurementBuffer, e.bufferCapacity),
		stopConsumer: make(chan struct{}),
		consumerDone: make(chan struct{}),
	}
	e.mu.Lock()
	e.runtimes[id] = rt
	e.mu.Unlock()

	go e.consume(key, rt)

	if class == ClassPriority {
		// The first priority source builds the priority scheduler; a
		// construction failure is logged there and its jobs fall back
		// to the normal scheduler.
		_ = e.scheduler.EnsurePriorityScheduler(0)
	}
	if trigger.Kind == TriggerInterval {
		e.trigger.EnsureGroup(trigger.Interval, class)
	}
	return nil
}

// RemoveSource unregisters a source and stops its consumer. Removing
// an absent source is a no-op (P9).
func (e *Executor) RemoveSource(key ElementKey) bool {
	entry, ok := e.sources.Get(key)
	if !ok {
		return false
	}
	e.sources.Remove(key)

	e.mu.Lock()
	rt := e.runtimes[entry.id]
	delete(e.runtimes, entry.id)
	e.mu.Unlock()

	if rt != nil {
		close(rt.stopConsumer)
		<-rt.consumerDone
	}
	if entry.trigger.Kind == TriggerInterval {
		e.trigger.DropGroupIfEmpty(entry.trigger.Interval, entry.class)
	}
	return true
}

// TriggerManually submits one immediate poll job, timestamped now, for
// every source matching keep, and returns once the jobs are queued on
// the scheduler. It does not wait for the polls to finish.
func (e *Executor) TriggerManually(keep func(ElementKey) bool) {
	e.trigger.TriggerManually(keep)
}

// dispatch is the TriggerEngine's DispatchFunc: it submits one poll job
// per source onto the scheduler matching that source's class.
func (e *Executor) dispatch(entries []*sourceEntry, ts measurement.Timestamp) {
	for _, entry := range entries {
		entry := entry
		job := func() { e.pollOne(entry, ts) }
		switch entry.class {
		case ClassBlocking:
			e.scheduler.SubmitBlocking(job)
		case ClassPriority:
			e.scheduler.SubmitPriority(job)
		default:
			e.scheduler.SubmitNormal(job)
		}
	}
}

func (e *Executor) pollOne(entry *sourceEntry, ts measurement.Timestamp) {
	entry.pollMu.Lock()
	defer entry.pollMu.Unlock()
	if entry.removed {
		return
	}

	buf := measurement.NewBuffer()
	acc := measurement.NewAccumulator(buf)

	timeout := entry.trigger.Interval
	if timeout < minPollTimeout {
		timeout = minPollTimeout
	}

	resultCh := make(chan error, 1)
	go func() { resultCh <- entry.source.Poll(acc, ts) }()

	select {
	case err := <-resultCh:
		if err != nil {
			e.handlePollError(entry, err)
			return
		}
	case <-time.After(timeout):
		e.logger.Warn("source poll exceeded its timeout; abandoning this tick",
			zap.String("plugin", entry.key.PluginName), zap.String("source", entry.key.ElementName),
			zap.Duration("timeout", timeout))
		if e.OnPollError != nil {
			e.OnPollError(entry.key, "timeout")
		}
		return
	}

	if buf.Len() == 0 {
		return
	}
	e.pushToConsumer(entry, buf)
}

func (e *Executor) handlePollError(entry *sourceEntry, err error) {
	perr, _ := err.(*PollError)
	kind := "retryable"
	fatal := perr != nil && perr.Fatal
	if fatal {
		kind = "fatal"
	}
	e.logger.Warn("source poll failed",
		zap.String("plugin", entry.key.PluginName), zap.String("source", entry.key.ElementName),
		zap.Error(err), zap.Bool("fatal", fatal))
	if e.OnPollError != nil {
		e.OnPollError(entry.key, kind)
	}
	if fatal {
		e.RemoveSource(entry.key)
	}
}

func (e *Executor) pushToConsumer(entry *sourceEntry, buf *measurement.MeasurementBuffer) {
	e.mu.Lock()
	rt := e.runtimes[entry.id]
	e.mu.Unlock()
	if rt == nil {
		return
	}

	select {
	case rt.ch <- buf:
		return
	default:
	}

	dropped := 0
	select {
	case <-rt.ch:
		dropped++
	default:
	}
	select {
	case rt.ch <- buf:
	default:
		dropped++
	}
	if dropped > 0 {
		e.logger.Warn("dropping buffered samples; consumer is falling behind",
			zap.String("plugin", entry.key.PluginName), zap.String("source", entry.key.ElementName),
			zap.Int("dropped", dropped))
		if e.OnBufferDropped != nil {
			e.OnBufferDropped(entry.key, dropped)
		}
	}
}

func (e *Executor) consume(key ElementKey, rt *sourceRuntime) {
	defer close(rt.consumerDone)
	for {
		select {
		case buf, ok := <-rt.ch:
			if !ok {
				return
			}
			e.processBuffer(key, buf)
		case <-rt.stopConsumer:
			return
		}
	}
}

// processBuffer runs the enabled transform chain in registration order
// (I5) and fans the result out to every registered output.
func (e *Executor) processBuffer(sourceKey ElementKey, buf *measurement.MeasurementBuffer) {
	for _, te := range e.transforms.Chain() {
		if err := te.transform.Apply(buf, TransformContext{}); err != nil {
			terr, ok := err.(*TransformError)
			kind := TransformCanContinue
			if ok {
				kind = terr.Kind
			}
			e.logger.Warn("transform failed",
				zap.String("plugin", te.key.PluginName), zap.String("transform", te.key.ElementName),
				zap.Error(err))
			switch kind {
			case TransformFatal:
				e.transforms.SetEnabled(te.key, false)
				e.logger.Error("transform disabled after fatal error",
					zap.String("plugin", te.key.PluginName), zap.String("transform", te.key.ElementName))
				return
			case TransformUnexpectedInput:
				return
			default: // CanContinue
			}
		}
	}

	if buf.Len() == 0 {
		return
	}

	outs := e.outputs.Snapshot()
	for i, oe := range outs {
		shot := buf
		if i < len(outs)-1 {
			shot = buf.Clone()
		}
		e.writeToOutput(oe, shot, sourceKey)
	}
}

func (e *Executor) writeToOutput(oe *outputEntry, buf *measurement.MeasurementBuffer, sourceKey ElementKey) {
	err := oe.output.Write(buf)
	if err == nil {
		return
	}
	operr, _ := err.(*OutputError)
	if operr != nil && operr.Fatal {
		e.logger.Error("output removed after fatal write error",
			zap.String("plugin", oe.key.PluginName), zap.String("output", oe.key.ElementName), zap.Error(err))
		e.outputs.Remove(oe.key)
		return
	}
	e.logger.Warn("output write failed, retrying once",
		zap.String("plugin", oe.key.PluginName), zap.String("output", oe.key.ElementName), zap.Error(err))
	if err2 := oe.output.Write(buf); err2 != nil {
		e.logger.Error("output write failed twice, dropping buffer for this output",
			zap.String("plugin", oe.key.PluginName), zap.String("output", oe.key.ElementName), zap.Error(err2))
	}
}

// Shutdown stops all ticking, drains the scheduler, drains consumers,
// and flushes every output within a 10s deadline.
//
// The scheduler must drain before the consumers stop: a poll job
// queued or already running when Shutdown is called still finishes
// and still calls pushToConsumer (spec.md §5, all in-flight buffers
// must reach outputs). Stopping a consumer first raced that send
// against a goroutine exit and could drop the buffer silently. Once
// trigger.Shutdown has returned no new jobs are submitted, and once
// scheduler.Shutdown has returned no job is still running, so closing
// each source's channel afterwards is race-free: consume's receive loop
// on rt.ch drains whatever is already buffered before observing closure.
func (e *Executor) Shutdown() {
	e.trigger.Shutdown()
	e.scheduler.Shutdown()

	e.mu.Lock()
	runtimes := make([]*sourceRuntime, 0, len(e.runtimes))
	for _, rt := range e.runtimes {
		runtimes = append(runtimes, rt)
	}
	e.mu.Unlock()
	for _, rt := range runtimes {
		close(rt.ch)
	}
	for _, rt := range runtimes {
		<-rt.consumerDone
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, oe := range e.outputs.Snapshot() {
			if err := oe.output.Flush(); err != nil {
				e.logger.Warn("output flush failed during shutdown",
					zap.String("plugin", oe.key.PluginName), zap.String("output", oe.key.ElementName), zap.Error(err))
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		e.logger.Warn("output flush deadline exceeded during shutdown")
	}
}
