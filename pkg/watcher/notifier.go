package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/provisionwatch/provisionwatch/pkg/artifact"
)

const (
	// DefaultDebounce is how long a path must stay quiet before its last
	// observed transition is delivered.
	DefaultDebounce = 100 * time.Millisecond

	// DefaultPollInterval is the scan interval of the fallback backend.
	DefaultPollInterval = 500 * time.Millisecond
)

// Config holds Notifier settings. Zero values select the defaults.
type Config struct {
	// Debounce is the per-path quiet window. Rapid events on one path
	// collapse to the last observed transition.
	Debounce time.Duration

	// PollInterval applies when the polling backend is active.
	PollInterval time.Duration

	// Filter decides which event paths are delivered. Nil means
	// DefaultFilter (download-artifact suffixes).
	Filter func(path string) bool

	// Logger receives backend and watch errors. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultFilter accepts paths whose base name carries a recognized
// download-artifact suffix.
func DefaultFilter(path string) bool {
	return artifact.IsDownloadArtifact(filepath.Base(path))
}

// Notifier watches a set of directories and invokes callbacks for debounced
// file appearance and removal. A Notifier is single-use: New, Start, Stop.
//
// Callbacks run on the notifier's timer goroutines and must not call back
// into the Notifier; marshal the decision onto your own loop.
type Notifier struct {
	cfg     Config
	backend backend

	mu         sync.Mutex
	started    bool
	stopped    bool
	watched    []string
	pending    map[string]*pendingEvent
	onAppeared func(path string)
	onRemoved  func(path string)

	stopOnce sync.Once
	wg       sync.WaitGroup
}

type pendingEvent struct {
	timer   *time.Timer
	removed bool
}

// New creates a Notifier with the best available backend.
func New(cfg Config) *Notifier {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Notifier{
		cfg:     cfg,
		backend: detectBackend(cfg.Logger, cfg.PollInterval),
		pending: make(map[string]*pendingEvent),
	}
}

// newWithBackend is the test seam for injecting a fake backend.
func newWithBackend(cfg Config, b backend) *Notifier {
	n := New(cfg)
	n.backend = b
	return n
}

// BackendName reports which backend the notifier selected.
func (n *Notifier) BackendName() string { return n.backend.name() }

// Start subscribes to changes under the given directories. Directories that
// do not exist at start time are skipped with a log line. Events are
// filtered, debounced per path, and delivered as onAppeared/onRemoved calls.
func (n *Notifier) Start(dirs []string, onAppeared, onRemoved func(path string)) error {
	n.mu.Lock()
	if n.started || n.stopped {
		n.mu.Unlock()
		return fmt.Errorf("notifier is single-use: already started")
	}
	existing := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			n.cfg.Logger.Printf("[watcher] skipping %s: not a watchable directory", dir)
			continue
		}
		existing = append(existing, dir)
	}
	n.watched = existing
	n.onAppeared = onAppeared
	n.onRemoved = onRemoved
	n.started = true
	n.mu.Unlock()

	if err := n.backend.start(existing); err != nil {
		return fmt.Errorf("starting %s backend: %w", n.backend.name(), err)
	}
	n.wg.Add(1)
	go n.dispatch()
	return nil
}

func (n *Notifier) dispatch() {
	defer n.wg.Done()
	for ev := range n.backend.events() {
		if !n.accepts(ev.path) {
			continue
		}
		n.observe(ev)
	}
}

func (n *Notifier) accepts(path string) bool {
	if !n.underWatched(path) {
		return false
	}
	return n.cfg.Filter(path)
}

func (n *Notifier) underWatched(path string) bool {
	for _, dir := range n.watched {
		if strings.HasPrefix(path, dir+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// observe records a raw event for a path, starting or resetting its
// debounce timer. Last write wins within the window.
func (n *Notifier) observe(ev event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	if p, ok := n.pending[ev.path]; ok {
		p.removed = ev.removed
		p.timer.Reset(n.cfg.Debounce)
		return
	}
	path := ev.path
	p := &pendingEvent{removed: ev.removed}
	p.timer = time.AfterFunc(n.cfg.Debounce, func() { n.fire(path) })
	n.pending[path] = p
}

// fire delivers the settled transition for one path. The callback runs under
// the notifier mutex so that Stop can guarantee no delivery after it returns.
func (n *Notifier) fire(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	p, ok := n.pending[path]
	if !ok {
		return
	}
	delete(n.pending, path)
	if p.removed {
		if n.onRemoved != nil {
			n.onRemoved(path)
		}
		return
	}
	if n.onAppeared != nil {
		n.onAppeared(path)
	}
}

// Stop releases the OS subscription and cancels all pending debounce timers.
// No callback fires after Stop returns. Stop is idempotent.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.stopped = true
		started := n.started
		for path, p := range n.pending {
			p.timer.Stop()
			delete(n.pending, path)
		}
		n.mu.Unlock()

		if !started {
			return
		}
		if err := n.backend.stop(); err != nil {
			n.cfg.Logger.Printf("[watcher] stopping %s backend: %v", n.backend.name(), err)
		}
		n.wg.Wait()
	})
}
