package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/rtpriority"
)

// Job is a unit of scheduled work: a single source poll, a transform
// apply, or an output write, dispatched onto one of the two runtimes
// (spec.md §4.5, C6).
type Job func()

// workerPool is a fixed-size pool of goroutines, each pinned to its own
// OS thread, pulling jobs from a shared channel. Worker N is logically
// named namePrefix+"-N" in logs (Go does not expose portable OS thread
// renaming outside Linux-specific prctl calls, so the name lives at the
// logging layer rather than as a kernel-visible thread name).
type workerPool struct {
	jobs chan Job
	wg   sync.WaitGroup
}

func newWorkerPool(n int, namePrefix string, logger *zap.Logger, onStart func(workerName string) error) *workerPool {
	p := &workerPool{jobs: make(chan Job, 1024)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		name := fmt.Sprintf("%s-%d", namePrefix, i)
		go func(name string) {
			defer p.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if onStart != nil {
				if err := onStart(name); err != nil {
					logger.Warn("worker thread pre-run hook failed", zap.String("worker", name), zap.Error(err))
				}
			}
			for job := range p.jobs {
				job()
			}
		}(name)
	}
	return p
}

func (p *workerPool) Submit(j Job) { p.jobs <- j }

func (p *workerPool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// SchedulerConstructionError wraps a worker-thread-elevation failure,
// keyed by the underlying OS error kind (spec.md §4.5/§7).
type SchedulerConstructionError struct {
	Err error
}

func (e *SchedulerConstructionError) Error() string {
	return fmt.Sprintf("priority scheduler construction failed: %s", e.hint())
}
func (e *SchedulerConstructionError) Unwrap() error { return e.Err }

func (e *SchedulerConstructionError) hint() string {
	if errors.Is(e.Err, os.ErrPermission) || isEPERM(e.Err) {
		return fmt.Sprintf(
			"%s (insufficient privileges; grant the capability or run as root: sudo setcap cap_sys_nice+ep %q)",
			e.Err, resolveAgentPath(),
		)
	}
	return e.Err.Error()
}

func isEPERM(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPERM
	}
	return false
}

func resolveAgentPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "path/to/agent"
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		return resolved
	}
	return exe
}

// Scheduler is the dual-runtime pair from spec.md §4.5: a normal
// multi-threaded pool with a dedicated blocking sub-pool, and a
// lazily-constructed real-time-priority pool.
type Scheduler struct {
	logger *zap.Logger

	normal   *workerPool
	blocking *workerPool

	mu       sync.Mutex
	priority *workerPool
	degraded bool // true once priority construction has failed and fallen back
}

// NewScheduler builds the normal scheduler eagerly; the priority
// scheduler is built lazily by EnsurePriorityScheduler.
func NewScheduler(workerThreads int, logger *zap.Logger) *Scheduler {
	if workerThreads <= 0 {
		workerThreads = runtime.NumCPU()
	}
	return &Scheduler{
		logger:   logger,
		normal:   newWorkerPool(workerThreads, "normal-worker", logger, nil),
		blocking: newWorkerPool(workerThreads, "blocking-worker", logger, nil),
	}
}

// SubmitNormal schedules a non-blocking job.
func (s *Scheduler) SubmitNormal(j Job) { s.normal.Submit(j) }

// SubmitBlocking schedules a job that may perform blocking I/O.
func (s *Scheduler) SubmitBlocking(j Job) { s.blocking.Submit(j) }

// SubmitPriority schedules a job on the priority scheduler if it has
// been built and is healthy, and on the normal scheduler otherwise, so
// no measurement is lost because of a priority failure. It logs
// nothing itself; the warning is logged once, by
// EnsurePriorityScheduler, when construction fails.
func (s *Scheduler) SubmitPriority(j Job) {
	s.mu.Lock()
	degraded := s.degraded
	pool := s.priority
	s.mu.Unlock()
	if degraded || pool == nil {
		s.normal.Submit(j)
		return
	}
	pool.Submit(j)
}

// IsPriorityDegraded reports whether priority sources are currently
// running on the normal scheduler because elevation failed (P8).
func (s *Scheduler) IsPriorityDegraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// EnsurePriorityScheduler lazily constructs the priority scheduler on
// first use. It probe-spawns a trivial task and awaits it before
// declaring the scheduler healthy; a worker elevation failure recorded
// during that probe wins over a successful probe (spec.md §4.5). On
// failure the scheduler degrades: subsequent SubmitPriority calls route
// to the normal scheduler, and this method returns the construction
// error for logging, but never panics or aborts the pipeline.
func (s *Scheduler) EnsurePriorityScheduler(workerThreads int) error {
	s.mu.Lock()
	if s.priority != nil || s.degraded {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if workerThreads <= 0 {
		workerThreads = runtime.NumCPU()
	}

	var failureOnce sync.Once
	var failure error
	onStart := func(name string) error {
		if err := rtpriority.Increase(); err != nil {
			failureOnce.Do(func() { failure = err })
			s.logger.Warn("unable to increase scheduling priority of thread; timing accuracy may suffer",
				zap.String("worker", name), zap.Error(err))
			return err
		}
		return nil
	}

	pool := newWorkerPool(workerThreads, "priority-worker", s.logger, onStart)

	// Probe-spawn: a worker pool can be "constructed" yet have every
	// thread fail its pre-run hook; block until at least one trivial
	// job has round-tripped before trusting the pool.
	done := make(chan struct{})
	pool.Submit(func() { close(done) })
	<-done

	if failure != nil {
		pool.Close()
		constructionErr := &SchedulerConstructionError{Err: failure}
		s.logger.Error("priority scheduler construction failed; priority sources will run on the normal scheduler",
			zap.Error(constructionErr))
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
		return constructionErr
	}

	s.mu.Lock()
	s.priority = pool
	s.mu.Unlock()
	return nil
}

// Shutdown drains and stops every worker pool.
func (s *Scheduler) Shutdown() {
	s.normal.Close()
	s.blocking.Close()
	s.mu.Lock()
	pool := s.priority
	s.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
}
