package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls a snapshot directory and swaps newer versions into a
// [Holder]. It watches the manifest only: data files are renamed into place
// before the manifest, so a new manifest version means a complete snapshot.
// A snapshot that fails to load is logged and skipped; the previous one
// stays in use.
type Watcher struct {
	dir      string
	holder   *Holder
	interval time.Duration
	onChange func(old, new *Snapshot)

	mu        sync.Mutex
	lastMtime time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 30 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnChange registers a callback invoked after every swap.
func WithOnChange(fn func(old, new *Snapshot)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// NewWatcher loads the snapshot in dir into holder and starts polling.
func NewWatcher(dir string, holder *Holder, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		holder:   holder,
		interval: 30 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(w.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("knowledge: watcher initial load: %w", err)
	}
	s, err := LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("knowledge: watcher initial load: %w", err)
	}
	holder.Swap(s)
	w.lastMtime = info.ModTime()
	slog.Info("snapshot loaded", "dir", dir, "version", s.Version(), "chars", s.Index.Len(), "words", s.Words.Len())

	go w.poll()
	return w, nil
}

// Stop stops polling.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) manifestPath() string {
	return filepath.Join(w.dir, ManifestFile)
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check polls once. It is called by the background loop and may be called
// directly to force a reload check.
func (w *Watcher) Check() {
	info, err := os.Stat(w.manifestPath())
	if err != nil {
		slog.Warn("snapshot watcher: cannot stat manifest", "dir", w.dir, "err", err)
		return
	}

	w.mu.Lock()
	if info.ModTime().Equal(w.lastMtime) {
		w.mu.Unlock()
		return
	}

	m, err := ReadManifest(w.dir)
	if err != nil {
		w.mu.Unlock()
		slog.Warn("snapshot watcher: cannot read manifest", "dir", w.dir, "err", err)
		return
	}
	if m.Version == w.holder.Version() {
		w.lastMtime = info.ModTime()
		w.mu.Unlock()
		return
	}

	s, err := LoadDir(w.dir)
	if err != nil {
		w.mu.Unlock()
		slog.Warn("snapshot watcher: keeping previous snapshot", "dir", w.dir, "version", m.Version, "err", err)
		return
	}
	old := w.holder.Swap(s)
	w.lastMtime = info.ModTime()
	w.mu.Unlock()

	slog.Info("snapshot watcher: snapshot swapped", "dir", w.dir, "version", s.Version())

	// Invoke the callback outside the lock so it can safely call Check.
	if w.onChange != nil {
		w.onChange(old, s)
	}
}
