// Package watch implements the fsnotify-based directory watcher used
// by dynamic sources (cgroupv2's per-job control groups appearing and
// disappearing under a scheduler's cgroup tree) to add/remove pipeline
// sources as directories come and go (spec.md §4.9's dynamic source
// management, C10). Grounded on the teacher's fsnotify watch-loop
// idiom and github.com/fsnotify/fsnotify, a direct teacher dependency.
package watch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches one root directory for subdirectories that contain
// probeFile, treating their appearance/disappearance as Create/Remove.
// It runs entirely on its own goroutine and reaches the rest of the
// agent only through the onCreate/onRemove callbacks — those are
// expected to go through a pipeline.ControlHandle, never to touch
// pipeline state directly from this goroutine.
type Watcher struct {
	fsw       *fsnotify.Watcher
	root      string
	probeFile string
	onCreate  func(path string)
	onRemove  func(path string)
	logger    *zap.Logger

	mu   sync.Mutex
	seen map[string]bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New watches root non-recursively; directories already present are
// picked up by the initial scan that Run performs before handling
// events, since fsnotify only reports events after the watch is
// established.
func New(root, probeFile string, onCreate, onRemove func(path string), logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		fsw:       fsw,
		root:      root,
		probeFile: probeFile,
		onCreate:  onCreate,
		onRemove:  onRemove,
		logger:    logger,
		seen:      make(map[string]bool),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	return w, nil
}

// Run starts the watch loop and performs the initial scan.
func (w *Watcher) Run() {
	w.scanExisting()
	go w.loop()
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.logger.Warn("initial scan of watch root failed", zap.String("root", w.root), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.handleCreate(filepath.Join(w.root, entry.Name()))
		}
	}
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			switch {
			case ev.Op&(fsnotify.Create) != 0:
				w.handleCreate(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.handleRemove(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.String("root", w.root), zap.Error(err))
		case <-w.stopCh:
			w.fsw.Close()
			return
		}
	}
}

// handleCreate is idempotent against a duplicate create event for a
// path already seen (P9): the second call is a silent no-op, so a
// racing create-create pair never calls onCreate twice.
func (w *Watcher) handleCreate(path string) {
	if _, err := os.Stat(filepath.Join(path, w.probeFile)); err != nil {
		return
	}
	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()
	w.onCreate(path)
}

// handleRemove is idempotent against a remove for a path never seen
// (or already removed): the caller's own Remove is already a no-op on
// an absent element, but this check avoids calling it needlessly
// (P9's create-remove-create race).
func (w *Watcher) handleRemove(path string) {
	w.mu.Lock()
	if !w.seen[path] {
		w.mu.Unlock()
		return
	}
	delete(w.seen, path)
	w.mu.Unlock()
	w.onRemove(path)
}

// Stop closes the underlying fsnotify watcher and waits for the loop
// goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
