package status

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/internal/inspect"
)

func testModel(t *testing.T) Model {
	t.Helper()
	root := t.TempDir()
	doc := &config.Config{
		Title:      "Monitor Test",
		Thresholds: config.DefaultThresholds(),
		Items: []config.ItemSpec{
			{ID: "alpha", Name: "Alpha", GUIIndex: 0, Paths: []string{filepath.Join(root, "Alpha.app")}},
			{ID: "bravo", Name: "Bravo", GUIIndex: 1, Paths: []string{filepath.Join(root, "Bravo.app")}},
		},
	}
	e := inspect.New(inspect.Config{
		Load:          func(*log.Logger) (*config.Config, error) { return doc, nil },
		ProbeInterval: time.Hour,
		Logger:        log.New(io.Discard, "", 0),
	})
	if err := e.Start(); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(e.Stop)
	return New(e)
}

// ---------------------------------------------------------------------------
// statusIcon / statusLabel
// ---------------------------------------------------------------------------

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status inspect.Status
		want   string // substring (the glyph)
	}{
		{inspect.StatusCompleted, "●"},
		{inspect.StatusDownloading, "◐"},
		{inspect.StatusPending, "○"},
		{"", "○"},
	}
	for _, tt := range tests {
		got := statusIcon(tt.status)
		if !strings.Contains(got, tt.want) {
			t.Errorf("statusIcon(%q) = %q, want substring %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status inspect.Status
		want   string
	}{
		{inspect.StatusCompleted, "DONE"},
		{inspect.StatusDownloading, "BUSY"},
		{inspect.StatusPending, "WAIT"},
	}
	for _, tt := range tests {
		got := statusLabel(tt.status)
		if !strings.Contains(got, tt.want) {
			t.Errorf("statusLabel(%q) = %q, want substring %q", tt.status, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// renderItem
// ---------------------------------------------------------------------------

func TestRenderItem(t *testing.T) {
	it := inspect.Item{ID: "x", DisplayName: "Example Tool"}
	got := renderItem(it, inspect.StatusPending, inspect.ValidationResult{})
	if !strings.Contains(got, "Example Tool") {
		t.Errorf("row missing item name: %q", got)
	}
	if !strings.Contains(got, "WAIT") {
		t.Errorf("row missing status label: %q", got)
	}
}

func TestRenderItem_CompletedButInvalid(t *testing.T) {
	it := inspect.Item{ID: "x", DisplayName: "Example Tool"}
	res := inspect.ValidationResult{Valid: false, Detail: "predicate not satisfied"}
	got := renderItem(it, inspect.StatusCompleted, res)
	if !strings.Contains(got, "predicate not satisfied") {
		t.Errorf("completed-but-invalid row should carry the failure detail: %q", got)
	}

	// Pending items routinely fail validation; no marker there.
	got = renderItem(it, inspect.StatusPending, res)
	if strings.Contains(got, "predicate not satisfied") {
		t.Errorf("pending row should not carry validation detail: %q", got)
	}
}

// ---------------------------------------------------------------------------
// renderSummary
// ---------------------------------------------------------------------------

func TestRenderSummary(t *testing.T) {
	m := testModel(t)
	m.snap = inspect.Snapshot{
		State: inspect.StateReady,
		Items: []inspect.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Completed: map[string]bool{
			"a": true,
			"b": true,
		},
		Score: 0.6,
	}
	got := m.renderSummary()
	if !strings.Contains(got, "2/3 installed") {
		t.Errorf("summary should show 2/3 installed, got: %q", got)
	}
	if !strings.Contains(got, "60%") {
		t.Errorf("summary should show the score percent, got: %q", got)
	}
	if !strings.Contains(got, "Warning") {
		t.Errorf("score 0.6 should carry the Warning band label, got: %q", got)
	}
}

func TestRenderSummary_AllComplete(t *testing.T) {
	m := testModel(t)
	m.snap = inspect.Snapshot{
		State:       inspect.StateReady,
		Items:       []inspect.Item{{ID: "a"}},
		Completed:   map[string]bool{"a": true},
		Score:       1.0,
		AllComplete: true,
	}
	got := m.renderSummary()
	if !strings.Contains(got, "all items completed") {
		t.Errorf("summary should announce completion, got: %q", got)
	}
	if !strings.Contains(got, "Excellent") {
		t.Errorf("score 1.0 should carry the Excellent band label, got: %q", got)
	}
}

func TestRenderSummary_NoItems(t *testing.T) {
	m := testModel(t)
	m.snap = inspect.Snapshot{State: inspect.StateReady}
	got := m.renderSummary()
	if !strings.Contains(got, "No items configured") {
		t.Errorf("empty summary = %q", got)
	}
}

// ---------------------------------------------------------------------------
// View per engine state
// ---------------------------------------------------------------------------

func TestView_Loading(t *testing.T) {
	m := testModel(t)
	m.snap = inspect.Snapshot{State: inspect.StateLoading}
	if got := m.View(); !strings.Contains(got, "Loading configuration") {
		t.Errorf("loading view = %q", got)
	}
}

func TestView_Failed(t *testing.T) {
	m := testModel(t)
	m.snap = inspect.Snapshot{State: inspect.StateFailed, Err: "config service unavailable"}
	got := m.View()
	if !strings.Contains(got, "config service unavailable") {
		t.Errorf("failed view should show the error, got: %q", got)
	}
	if !strings.Contains(got, "retry") {
		t.Errorf("failed view should offer retry, got: %q", got)
	}
}

func TestView_Ready(t *testing.T) {
	m := testModel(t)
	got := m.View()
	if !strings.Contains(got, "Monitor Test") {
		t.Errorf("view should carry the configured title, got: %q", got)
	}
	if !strings.Contains(got, "Alpha") || !strings.Contains(got, "Bravo") {
		t.Errorf("view should list the items, got: %q", got)
	}
}

func TestView_StatusText(t *testing.T) {
	m := testModel(t)
	m.snap.StatusText = "Installing developer tools"
	if got := m.View(); !strings.Contains(got, "Installing developer tools") {
		t.Errorf("view should show the external status text, got: %q", got)
	}
}

// ---------------------------------------------------------------------------
// Update message handling
// ---------------------------------------------------------------------------

func TestUpdate_SnapshotMsg(t *testing.T) {
	m := testModel(t)
	snap := m.snap
	snap.StatusText = "from message"
	updated, cmd := m.Update(snapshotMsg(snap))
	model := updated.(Model)
	if model.snap.StatusText != "from message" {
		t.Errorf("status text = %q, want %q", model.snap.StatusText, "from message")
	}
	if cmd == nil {
		t.Error("snapshot handling should re-arm the watch bridge")
	}
}

func TestUpdate_WatchClosed(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(watchClosedMsg{})
	if cmd == nil {
		t.Fatal("watch close should quit the program")
	}
	if msg := cmd(); msg != (tea.QuitMsg{}) {
		t.Errorf("cmd() = %#v, want tea.QuitMsg", msg)
	}
}

func TestUpdate_QuitKey(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if msg := cmd(); msg != (tea.QuitMsg{}) {
		t.Errorf("cmd() = %#v, want tea.QuitMsg", msg)
	}
}

func TestUpdate_WindowSize(t *testing.T) {
	m := testModel(t)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model := updated.(Model)
	if model.width != 100 || model.height != 40 {
		t.Errorf("size = %dx%d, want 100x40", model.width, model.height)
	}
	if model.progress.Width <= 0 {
		t.Errorf("progress width = %d, want positive", model.progress.Width)
	}
}

func TestUpdate_RevalidateKey(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if cmd == nil {
		t.Fatal("r should trigger a validation command")
	}
	msg := cmd()
	if _, ok := msg.(snapshotMsg); !ok {
		t.Errorf("cmd() = %#v, want snapshotMsg", msg)
	}
}
