// Package watcher delivers debounced filesystem change notifications for a
// fixed set of watched directories. The active backend is selected at
// runtime: fsnotify where the OS supports it, with a stat-polling fallback.
//
// Raw events are filtered to download-artifact paths under a watched root
// (configurable) and debounced per distinct path, so rapid create/remove
// churn on one path collapses to the last observed transition before the
// callback fires.
package watcher

import (
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// event is one raw observation from a backend: a path appeared, changed, or
// was removed.
type event struct {
	path    string
	removed bool
}

// backend watches a set of directories and reports raw create/write/remove
// observations. Implementations close their events channel on stop.
type backend interface {
	// name returns the backend identifier: "fsnotify" or "poll".
	name() string

	// start begins watching the given directories.
	start(dirs []string) error

	// events returns the raw observation stream. Valid after start.
	events() <-chan event

	// stop releases the watch and closes the events channel.
	stop() error
}

// detectBackend probes for fsnotify support and falls back to stat polling
// when the OS watch facility cannot initialize.
func detectBackend(logger *log.Logger, pollInterval time.Duration) backend {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Printf("[watcher] fsnotify unavailable, falling back to polling: %v", err)
		return &pollBackend{interval: pollInterval}
	}
	w.Close()
	return &fsnotifyBackend{log: logger}
}
