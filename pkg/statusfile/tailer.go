package statusfile

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/provisionwatch/provisionwatch/pkg/watcher"
)

// maxStatusFileSize guards the re-read path against a runaway status file.
const maxStatusFileSize = 8 << 20 // 8 MiB

// Config holds Tailer settings. Zero values select the defaults.
type Config struct {
	// Path is the status file to tail.
	Path string

	// Debounce and PollInterval configure the underlying watcher.
	Debounce     time.Duration
	PollInterval time.Duration

	// Buffer is the update channel capacity. Defaults to 64.
	Buffer int

	// Logger receives skipped-line and read errors. Defaults to log.Default().
	Logger *log.Logger
}

// Tailer watches one status file for writes and delivers newly appended
// lines as parsed Updates. Only complete lines (terminated by a newline) are
// consumed; a truncated or replaced file resets the cursor and replays from
// the start.
type Tailer struct {
	cfg      Config
	notifier *watcher.Notifier
	out      chan Update

	mu       sync.Mutex
	offset   int64
	lines    int
	oversize bool
	closed   bool

	stopOnce sync.Once
}

// New creates a Tailer for the configured status file.
func New(cfg Config) *Tailer {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Tailer{cfg: cfg, out: make(chan Update, cfg.Buffer)}
}

// Updates returns the parsed update stream. The channel closes on Stop.
func (t *Tailer) Updates() <-chan Update { return t.out }

// Start subscribes to write events on the status file's directory and
// processes any lines already present. The file itself may not exist yet;
// its creation is picked up by the watch.
func (t *Tailer) Start() error {
	if t.cfg.Path == "" {
		return fmt.Errorf("statusfile: no path configured")
	}
	target := t.cfg.Path
	t.notifier = watcher.New(watcher.Config{
		Debounce:     t.cfg.Debounce,
		PollInterval: t.cfg.PollInterval,
		Logger:       t.cfg.Logger,
		Filter:       func(path string) bool { return path == target },
	})
	err := t.notifier.Start([]string{filepath.Dir(target)},
		func(string) { t.Sync() },
		func(string) { t.reset() },
	)
	if err != nil {
		return fmt.Errorf("watching status file: %w", err)
	}
	t.Sync()
	return nil
}

// Sync re-reads the status file now, delivering newly appended complete
// lines. Safe to call from any goroutine; the engine calls it as a backstop
// on every polling pass.
func (t *Tailer) Sync() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	info, err := os.Stat(t.cfg.Path)
	if err != nil {
		return
	}
	if info.Size() > maxStatusFileSize {
		if !t.oversize {
			t.cfg.Logger.Printf("[statusfile] %s is %d bytes, over the %d byte guard; skipping",
				t.cfg.Path, info.Size(), int64(maxStatusFileSize))
			t.oversize = true
		}
		return
	}
	t.oversize = false
	if info.Size() == t.offset {
		return
	}
	if info.Size() < t.offset {
		// truncated or replaced: reprocess from the start
		t.offset = 0
		t.lines = 0
	}

	data, err := os.ReadFile(t.cfg.Path)
	if err != nil {
		t.cfg.Logger.Printf("[statusfile] reading %s: %v", t.cfg.Path, err)
		return
	}
	nl := bytes.LastIndexByte(data, '\n')
	if nl < 0 {
		// no complete line yet
		return
	}
	complete := data[:nl+1]
	all := strings.Split(string(complete), "\n")
	all = all[:len(all)-1]
	if len(all) < t.lines {
		t.lines = 0
	}
	for _, line := range all[t.lines:] {
		t.emit(line)
	}
	t.lines = len(all)
	t.offset = int64(len(complete))
}

// reset drops the cursor so the next write replays the file.
func (t *Tailer) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offset = 0
	t.lines = 0
}

func (t *Tailer) emit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	upd, err := ParseLine(line)
	if err != nil {
		t.cfg.Logger.Printf("[statusfile] skipping malformed line %q: %v", line, err)
		return
	}
	select {
	case t.out <- upd:
	default:
		t.cfg.Logger.Printf("[statusfile] update channel full, dropping %q", line)
	}
}

// Stop releases the watch and closes the update channel. No update is
// delivered after Stop returns. Stop is idempotent.
func (t *Tailer) Stop() {
	t.stopOnce.Do(func() {
		if t.notifier != nil {
			t.notifier.Stop()
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		t.closed = true
		close(t.out)
	})
}
