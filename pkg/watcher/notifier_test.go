package watcher

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeBackend feeds scripted events to the notifier without touching the
// filesystem.
type fakeBackend struct {
	ch chan event
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{ch: make(chan event, 32)}
}

func (f *fakeBackend) name() string { return "fake" }

func (f *fakeBackend) start(dirs []string) error { return nil }

func (f *fakeBackend) events() <-chan event { return f.ch }

func (f *fakeBackend) stop() error { close(f.ch); return nil }

func testNotifier(t *testing.T, debounce time.Duration) (*Notifier, *fakeBackend, string, chan string, chan string) {
	t.Helper()
	dir := t.TempDir()
	fb := newFakeBackend()
	n := newWithBackend(Config{
		Debounce: debounce,
		Logger:   log.New(io.Discard, "", 0),
	}, fb)

	appeared := make(chan string, 16)
	removed := make(chan string, 16)
	err := n.Start([]string{dir},
		func(path string) { appeared <- path },
		func(path string) { removed <- path },
	)
	if err != nil {
		t.Fatalf("Start returned unexpected error: %v", err)
	}
	return n, fb, dir, appeared, removed
}

func TestDebounceCollapsesRapidEvents(t *testing.T) {
	n, fb, dir, appeared, removed := testNotifier(t, 30*time.Millisecond)
	defer n.Stop()

	path := filepath.Join(dir, "firefox.pkg")
	// 5 rapid create/remove flaps; the last observation is a create.
	fb.ch <- event{path: path}
	fb.ch <- event{path: path, removed: true}
	fb.ch <- event{path: path}
	fb.ch <- event{path: path, removed: true}
	fb.ch <- event{path: path}

	select {
	case got := <-appeared:
		if got != path {
			t.Errorf("appeared path = %q, want %q", got, path)
		}
	case got := <-removed:
		t.Fatalf("last observation was a create, got removal for %q", got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the debounced callback")
	}

	// No second delivery for the same burst.
	select {
	case got := <-appeared:
		t.Errorf("unexpected second appearance callback for %q", got)
	case got := <-removed:
		t.Errorf("unexpected removal callback for %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebounceLastWriteWins(t *testing.T) {
	n, fb, dir, appeared, removed := testNotifier(t, 30*time.Millisecond)
	defer n.Stop()

	path := filepath.Join(dir, "chrome.dmg")
	fb.ch <- event{path: path}
	fb.ch <- event{path: path, removed: true}

	select {
	case got := <-removed:
		if got != path {
			t.Errorf("removed path = %q, want %q", got, path)
		}
	case <-appeared:
		t.Fatal("last observation was a removal, got an appearance")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the debounced callback")
	}
}

func TestDistinctPathsDebounceIndependently(t *testing.T) {
	n, fb, dir, appeared, _ := testNotifier(t, 20*time.Millisecond)
	defer n.Stop()

	first := filepath.Join(dir, "one.pkg")
	second := filepath.Join(dir, "two.pkg")
	fb.ch <- event{path: first}
	fb.ch <- event{path: second}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case path := <-appeared:
			got[path] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of 2 callbacks", i)
		}
	}
	if !got[first] || !got[second] {
		t.Errorf("callbacks = %v, want both %q and %q", got, first, second)
	}
}

func TestFilterRejectsUnrelatedPaths(t *testing.T) {
	n, fb, dir, appeared, removed := testNotifier(t, 10*time.Millisecond)
	defer n.Stop()

	// Wrong suffix under a watched root, and a valid suffix outside it.
	fb.ch <- event{path: filepath.Join(dir, "notes.txt")}
	fb.ch <- event{path: filepath.Join(os.TempDir(), "elsewhere", "x.pkg")}

	select {
	case got := <-appeared:
		t.Errorf("unexpected appearance callback for %q", got)
	case got := <-removed:
		t.Errorf("unexpected removal callback for %q", got)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestStopCancelsPendingDebounce(t *testing.T) {
	n, fb, dir, appeared, removed := testNotifier(t, 50*time.Millisecond)

	fb.ch <- event{path: filepath.Join(dir, "late.pkg")}
	n.Stop()

	select {
	case got := <-appeared:
		t.Errorf("callback for %q fired after Stop returned", got)
	case got := <-removed:
		t.Errorf("callback for %q fired after Stop returned", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStopIsIdempotent(t *testing.T) {
	n, _, _, _, _ := testNotifier(t, 10*time.Millisecond)
	n.Stop()
	n.Stop()
}

func TestNotifierIsSingleUse(t *testing.T) {
	n, _, dir, _, _ := testNotifier(t, 10*time.Millisecond)
	defer n.Stop()
	if err := n.Start([]string{dir}, nil, nil); err == nil {
		t.Error("second Start expected error, got nil")
	}
}

func TestRealBackendDetectsCreate(t *testing.T) {
	dir := t.TempDir()
	n := New(Config{
		Debounce:     20 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		Logger:       log.New(io.Discard, "", 0),
	})
	appeared := make(chan string, 1)
	err := n.Start([]string{dir}, func(path string) {
		select {
		case appeared <- path:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("Start returned unexpected error: %v", err)
	}
	defer n.Stop()

	target := filepath.Join(dir, "payload.pkg")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing watched file: %v", err)
	}

	select {
	case got := <-appeared:
		if got != target {
			t.Errorf("appeared path = %q, want %q", got, target)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("backend %s did not report the created file", n.BackendName())
	}
}

func TestSkipsMissingDirectories(t *testing.T) {
	fb := newFakeBackend()
	n := newWithBackend(Config{Logger: log.New(io.Discard, "", 0)}, fb)
	missing := filepath.Join(t.TempDir(), "nope")
	if err := n.Start([]string{missing}, nil, nil); err != nil {
		t.Fatalf("Start with missing directory returned error: %v", err)
	}
	defer n.Stop()
	if len(n.watched) != 0 {
		t.Errorf("watched = %v, want empty for missing directories", n.watched)
	}
}
