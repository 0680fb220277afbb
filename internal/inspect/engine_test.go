package inspect

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/provisionwatch/provisionwatch/internal/config"
)

// testDoc builds a three-item configuration rooted in a temp directory:
// install targets under apps/, one cache directory, one status file path.
func testDoc(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"apps", "cache"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	doc := &config.Config{
		Title:      "Test Provisioning",
		Message:    "setup in progress",
		StatusFile: filepath.Join(root, "status.txt"),
		CachePaths: []string{filepath.Join(root, "cache")},
		Items: []config.ItemSpec{
			{ID: "alpha", Name: "Alpha", GUIIndex: 0, Paths: []string{filepath.Join(root, "apps", "Alpha.app")}},
			{ID: "bravo", Name: "Bravo", GUIIndex: 1, Paths: []string{filepath.Join(root, "apps", "Bravo.app")}},
			{ID: "charlie", Name: "Charlie", GUIIndex: 2, Paths: []string{filepath.Join(root, "apps", "Charlie.app")}},
		},
	}
	return doc, root
}

func startEngine(t *testing.T, doc *config.Config, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		Load:          func(*log.Logger) (*config.Config, error) { return doc, nil },
		ProbeInterval: 25 * time.Millisecond,
		Debounce:      10 * time.Millisecond,
		Logger:        log.New(io.Discard, "", 0),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e := New(cfg)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func installItem(t *testing.T, root, name string) {
	t.Helper()
	path := filepath.Join(root, "apps", name+".app")
	if err := os.WriteFile(path, []byte("app"), 0o644); err != nil {
		t.Fatalf("install %s: %v", name, err)
	}
}

func dropArtifact(t *testing.T, root, name string) string {
	t.Helper()
	path := filepath.Join(root, "cache", name+".pkg")
	if err := os.WriteFile(path, []byte("pkg"), 0o644); err != nil {
		t.Fatalf("drop artifact %s: %v", name, err)
	}
	return path
}

func appendStatus(t *testing.T, doc *config.Config, line string) {
	t.Helper()
	f, err := os.OpenFile(doc.StatusFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open status file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append status line: %v", err)
	}
}

func waitForStatus(t *testing.T, e *Engine, id string, want Status) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("item %s: status = %s, want %s", id, e.Snapshot().StatusOf(id), want)
		case <-tick.C:
			if e.Snapshot().StatusOf(id) == want {
				return
			}
		}
	}
}

func waitForState(t *testing.T, e *Engine, want EngineState) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("engine state = %s, want %s", e.Snapshot().State, want)
		case <-tick.C:
			if e.Snapshot().State == want {
				return
			}
		}
	}
}

func assertExclusive(t *testing.T, snap Snapshot) {
	t.Helper()
	for _, it := range snap.Items {
		if snap.Completed[it.ID] && snap.Downloading[it.ID] {
			t.Errorf("item %s is in both the completed and downloading sets", it.ID)
		}
	}
}

func TestEngine_FirstPassRunsBeforeStartReturns(t *testing.T) {
	doc, root := testDoc(t)
	installItem(t, root, "Alpha")

	// A very long probe interval proves the result came from the
	// synchronous pass, not a later tick.
	e := startEngine(t, doc, func(cfg *Config) { cfg.ProbeInterval = time.Hour })

	snap := e.Snapshot()
	if snap.State != StateReady {
		t.Fatalf("state = %s, want %s", snap.State, StateReady)
	}
	if got := snap.StatusOf("alpha"); got != StatusCompleted {
		t.Errorf("alpha = %s, want %s immediately after Start", got, StatusCompleted)
	}
	if got := snap.StatusOf("bravo"); got != StatusPending {
		t.Errorf("bravo = %s, want %s", got, StatusPending)
	}
	if snap.Title != "Test Provisioning" {
		t.Errorf("title = %q, want %q", snap.Title, "Test Provisioning")
	}
	if len(snap.Items) != 3 {
		t.Errorf("len(items) = %d, want 3", len(snap.Items))
	}
}

func TestEngine_ProbeTracksInstallLifecycle(t *testing.T) {
	doc, root := testDoc(t)
	e := startEngine(t, doc, nil)

	// Artifact appears in the cache: pending -> downloading.
	artPath := dropArtifact(t, root, "bravo")
	waitForStatus(t, e, "bravo", StatusDownloading)
	assertExclusive(t, e.Snapshot())

	// Install target appears: downloading -> completed.
	installItem(t, root, "Bravo")
	waitForStatus(t, e, "bravo", StatusCompleted)
	assertExclusive(t, e.Snapshot())

	// Target and artifact both vanish: completed -> pending.
	if err := os.Remove(filepath.Join(root, "apps", "Bravo.app")); err != nil {
		t.Fatalf("remove app: %v", err)
	}
	if err := os.Remove(artPath); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}
	waitForStatus(t, e, "bravo", StatusPending)
	assertExclusive(t, e.Snapshot())
}

func TestEngine_UnchangedFilesystemProducesNoTransitions(t *testing.T) {
	doc, root := testDoc(t)
	installItem(t, root, "Alpha")
	e := startEngine(t, doc, nil)

	// Subscribing after Start skips the initial synchronous transitions;
	// anything received now is probe churn.
	events := e.Events()
	select {
	case ev := <-events:
		t.Fatalf("unexpected transition %s: %s -> %s", ev.ItemID, ev.From, ev.To)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEngine_StatusFileDrivesTransitions(t *testing.T) {
	doc, _ := testDoc(t)
	// Disable the probe so the status channel is the only signal source
	// after the first pass.
	e := startEngine(t, doc, func(cfg *Config) { cfg.ProbeInterval = time.Hour })

	appendStatus(t, doc, "index: 1, status: wait")
	waitForStatus(t, e, "bravo", StatusDownloading)

	appendStatus(t, doc, "index: 1, status: success")
	waitForStatus(t, e, "bravo", StatusCompleted)

	appendStatus(t, doc, "index: 1, status: reset")
	waitForStatus(t, e, "bravo", StatusPending)

	appendStatus(t, doc, "statustext: Installing developer tools")
	deadline := time.After(3 * time.Second)
	for e.Snapshot().StatusText != "Installing developer tools" {
		select {
		case <-deadline:
			t.Fatalf("status text = %q, want %q", e.Snapshot().StatusText, "Installing developer tools")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngine_StatusFileOutOfRangeIndexIgnored(t *testing.T) {
	doc, _ := testDoc(t)
	e := startEngine(t, doc, func(cfg *Config) { cfg.ProbeInterval = time.Hour })

	appendStatus(t, doc, "index: 9, status: success")
	appendStatus(t, doc, "index: 0, status: success")
	waitForStatus(t, e, "alpha", StatusCompleted)

	snap := e.Snapshot()
	if n := snap.CompletedCount(); n != 1 {
		t.Errorf("completed count = %d, want 1 (out-of-range line must be a no-op)", n)
	}
}

func TestEngine_DebounceCollapsesRapidSignals(t *testing.T) {
	doc, _ := testDoc(t)
	e := startEngine(t, doc, func(cfg *Config) {
		cfg.ProbeInterval = time.Hour
		cfg.Debounce = 50 * time.Millisecond
	})
	events := e.Events()

	// Two claims for the same item inside one debounce window: only the
	// last one applies.
	appendStatus(t, doc, "index: 1, status: wait\nindex: 1, status: success")
	waitForStatus(t, e, "bravo", StatusCompleted)

	select {
	case ev := <-events:
		if ev.ItemID != "bravo" || ev.To != StatusCompleted || ev.From != StatusPending {
			t.Errorf("event = %s: %s -> %s, want bravo: pending -> completed", ev.ItemID, ev.From, ev.To)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transition event received")
	}
	select {
	case ev := <-events:
		t.Fatalf("extra transition %s: %s -> %s, want exactly one", ev.ItemID, ev.From, ev.To)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEngine_AllCompleteFiresOnceAndRearms(t *testing.T) {
	doc, _ := testDoc(t)
	fires := make(chan struct{}, 4)
	e := startEngine(t, doc, func(cfg *Config) {
		cfg.ProbeInterval = time.Hour
		cfg.OnAllComplete = func() { fires <- struct{}{} }
	})

	for i := 0; i < 3; i++ {
		appendStatus(t, doc, fmt.Sprintf("index: %d, status: success", i))
	}
	waitForStatus(t, e, "charlie", StatusCompleted)

	select {
	case <-fires:
	case <-time.After(2 * time.Second):
		t.Fatal("all-complete notification never fired")
	}
	select {
	case <-fires:
		t.Fatal("all-complete notification fired more than once")
	case <-time.After(150 * time.Millisecond):
	}

	// Dropping below the total re-arms the notification.
	appendStatus(t, doc, "index: 0, status: reset")
	waitForStatus(t, e, "alpha", StatusPending)
	appendStatus(t, doc, "index: 0, status: success")
	waitForStatus(t, e, "alpha", StatusCompleted)

	select {
	case <-fires:
	case <-time.After(2 * time.Second):
		t.Fatal("all-complete notification did not re-arm")
	}
}

func TestEngine_AllCompleteViaFilesystem(t *testing.T) {
	doc, root := testDoc(t)
	fires := make(chan struct{}, 4)
	e := startEngine(t, doc, func(cfg *Config) {
		cfg.OnAllComplete = func() { fires <- struct{}{} }
	})

	installItem(t, root, "Alpha")
	waitForStatus(t, e, "alpha", StatusCompleted)
	select {
	case <-fires:
		t.Fatal("all-complete fired with one of three items installed")
	case <-time.After(150 * time.Millisecond):
	}

	installItem(t, root, "Bravo")
	installItem(t, root, "Charlie")
	waitForStatus(t, e, "bravo", StatusCompleted)
	waitForStatus(t, e, "charlie", StatusCompleted)

	select {
	case <-fires:
	case <-time.After(2 * time.Second):
		t.Fatal("all-complete notification never fired")
	}
	select {
	case <-fires:
		t.Fatal("all-complete notification fired more than once")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEngine_WatchDeliversSnapshots(t *testing.T) {
	doc, root := testDoc(t)
	e := startEngine(t, doc, nil)

	watch := e.Watch()
	select {
	case snap := <-watch:
		if snap.State != StateReady {
			t.Fatalf("primed snapshot state = %s, want %s", snap.State, StateReady)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch channel was not primed with the current snapshot")
	}

	installItem(t, root, "Charlie")
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-watch:
			if !ok {
				t.Fatal("Watch channel closed early")
			}
			if snap.StatusOf("charlie") == StatusCompleted {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot showing charlie completed")
		}
	}
}

func TestEngine_EventsCarrySource(t *testing.T) {
	doc, root := testDoc(t)
	e := startEngine(t, doc, nil)
	events := e.Events()

	installItem(t, root, "Alpha")
	select {
	case ev := <-events:
		if ev.ItemID != "alpha" {
			t.Errorf("event item = %s, want alpha", ev.ItemID)
		}
		if ev.From != StatusPending || ev.To != StatusCompleted {
			t.Errorf("event = %s -> %s, want pending -> completed", ev.From, ev.To)
		}
		if ev.Source != SourceProbe {
			t.Errorf("event source = %s, want %s", ev.Source, SourceProbe)
		}
		if ev.Time.IsZero() {
			t.Error("event time is zero")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no transition event received")
	}
}

func TestEngine_FailedLoadThenRetry(t *testing.T) {
	doc, _ := testDoc(t)
	calls := 0
	loader := func(*log.Logger) (*config.Config, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("config service unavailable")
		}
		return doc, nil
	}

	e := New(Config{
		Load:          loader,
		ProbeInterval: time.Hour,
		Logger:        log.New(io.Discard, "", 0),
	})
	if err := e.Start(); err == nil {
		t.Fatal("Start returned nil error for a failing load")
	}
	t.Cleanup(e.Stop)

	snap := e.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want %s", snap.State, StateFailed)
	}
	if snap.Err == "" {
		t.Error("failed snapshot carries no error text")
	}

	e.Retry()
	waitForState(t, e, StateReady)
	if got := len(e.Snapshot().Items); got != 3 {
		t.Errorf("len(items) after retry = %d, want 3", got)
	}

	// Retry outside the failed state re-runs nothing.
	e.Retry()
	time.Sleep(50 * time.Millisecond)
	if calls != 2 {
		t.Errorf("loader calls = %d, want 2", calls)
	}
}

func TestEngine_RunValidationRefreshesResults(t *testing.T) {
	doc, root := testDoc(t)
	e := startEngine(t, doc, func(cfg *Config) { cfg.ProbeInterval = time.Hour })

	snap := e.Snapshot()
	if snap.Score != 0 {
		t.Fatalf("initial score = %v, want 0", snap.Score)
	}

	installItem(t, root, "Alpha")
	snap = e.RunValidation()
	if got := snap.Validation["alpha"]; !got.Valid {
		t.Errorf("alpha validation = %+v, want valid", got)
	}
	if want := 1.0 / 3.0; snap.Score != want {
		t.Errorf("score = %v, want %v", snap.Score, want)
	}
	if got := snap.Validation["bravo"]; got.Valid || got.Detail == "" {
		t.Errorf("bravo validation = %+v, want invalid with detail", got)
	}
}

func TestEngine_StopClosesSubscribersAndFreezesState(t *testing.T) {
	doc, root := testDoc(t)
	e := startEngine(t, doc, nil)
	watch := e.Watch()
	events := e.Events()

	e.Stop()
	e.Stop() // idempotent

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-watch:
			if !ok {
				goto watchClosed
			}
		case <-deadline:
			t.Fatal("Watch channel not closed after Stop")
		}
	}
watchClosed:
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("Events delivered after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Events channel not closed after Stop")
	}

	// Filesystem changes after Stop must not reach the snapshot.
	before := e.Snapshot()
	installItem(t, root, "Charlie")
	time.Sleep(100 * time.Millisecond)
	after := e.Snapshot()
	if got := after.StatusOf("charlie"); got != before.StatusOf("charlie") {
		t.Errorf("charlie moved to %s after Stop", got)
	}
}

func TestEngine_SubscribeAfterStopReturnsClosedChannel(t *testing.T) {
	doc, _ := testDoc(t)
	e := startEngine(t, doc, nil)
	e.Stop()

	if _, ok := <-e.Watch(); ok {
		t.Error("Watch after Stop delivered a snapshot")
	}
	if _, ok := <-e.Events(); ok {
		t.Error("Events after Stop delivered an event")
	}
}

func TestEngine_StartTwiceFails(t *testing.T) {
	doc, _ := testDoc(t)
	e := startEngine(t, doc, nil)
	if err := e.Start(); err == nil {
		t.Fatal("second Start returned nil error")
	}
}

func TestCheckOnce(t *testing.T) {
	doc, root := testDoc(t)
	installItem(t, root, "Alpha")

	cfgPath := filepath.Join(root, "config.yaml")
	yaml := fmt.Sprintf(`title: "One Shot"
items:
  - id: alpha
    name: Alpha
    paths: ["%s"]
  - id: bravo
    name: Bravo
    gui_index: 1
    paths: ["%s"]
`, doc.Items[0].Paths[0], doc.Items[1].Paths[0])
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.EnvConfigPath, cfgPath)

	snap, err := CheckOnce(log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	if snap.State != StateReady {
		t.Fatalf("state = %s, want %s", snap.State, StateReady)
	}
	if got := snap.StatusOf("alpha"); got != StatusCompleted {
		t.Errorf("alpha = %s, want %s", got, StatusCompleted)
	}
	if got := snap.StatusOf("bravo"); got != StatusPending {
		t.Errorf("bravo = %s, want %s", got, StatusPending)
	}
	if want := 0.5; snap.Score != want {
		t.Errorf("score = %v, want %v", snap.Score, want)
	}
}
