// Package status implements the terminal-based installation monitor. It
// consumes engine snapshots over the Watch channel and renders per-item
// progress, the validation score, and the external status text.
package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/internal/inspect"
	"github.com/provisionwatch/provisionwatch/pkg/buildinfo"
)

// Model is the Bubbletea model for the installation monitor.
type Model struct {
	engine     *inspect.Engine
	watch      <-chan inspect.Snapshot
	snap       inspect.Snapshot
	thresholds config.Thresholds
	spinner    spinner.Model
	progress   progress.Model
	width      int
	height     int
}

// New creates a monitor over a started engine.
func New(engine *inspect.Engine) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	return Model{
		engine:     engine,
		watch:      engine.Watch(),
		snap:       engine.Snapshot(),
		thresholds: config.DefaultThresholds(),
		spinner:    sp,
		progress:   progress.New(progress.WithDefaultGradient()),
		width:      80,
	}
}

// snapshotMsg carries a fresh engine snapshot.
type snapshotMsg inspect.Snapshot

// watchClosedMsg means the engine stopped and no further snapshots come.
type watchClosedMsg struct{}

// waitForSnapshot blocks on the watch channel and forwards the next
// snapshot into the program.
func waitForSnapshot(watch <-chan inspect.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-watch
		if !ok {
			return watchClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// runValidation asks the engine for a fresh validation pass.
func runValidation(engine *inspect.Engine) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(engine.RunValidation())
	}
}

// Init starts the snapshot bridge and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.watch))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := msg.Width - 8
		if w > 60 {
			w = 60
		}
		if w < 10 {
			w = 10
		}
		m.progress.Width = w
		return m, nil

	case snapshotMsg:
		m.snap = inspect.Snapshot(msg)
		if doc := m.engine.Doc(); doc != nil {
			m.thresholds = doc.Thresholds
		}
		return m, waitForSnapshot(m.watch)

	case watchClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		if m.snap.State != inspect.StateLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.snap.State == inspect.StateFailed {
				m.engine.Retry()
				return m, m.spinner.Tick
			}
			return m, runValidation(m.engine)
		}
	}
	return m, nil
}

// View renders the monitor.
func (m Model) View() string {
	var b strings.Builder

	title := m.snap.Title
	if title == "" {
		title = "provisionwatch"
	}
	b.WriteString(headerStyle.Render(
		titleStyle.Render(title) + dimStyle.Render(" "+buildinfo.Version) + m.renderClock()))
	b.WriteString("\n")

	switch m.snap.State {
	case inspect.StateLoading:
		b.WriteString(fmt.Sprintf("\n  %s Loading configuration...\n", m.spinner.View()))
	case inspect.StateFailed:
		b.WriteString("\n")
		b.WriteString(failStyle.Render(fmt.Sprintf("  Configuration failed: %s", m.snap.Err)))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("  Press 'r' to retry | 'q' to quit"))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderItems())
		b.WriteString(m.renderSummary())
		if m.snap.StatusText != "" {
			b.WriteString(messageStyle.Render("  " + m.snap.StatusText))
			b.WriteString("\n")
		}
	}

	b.WriteString(footerStyle.Render(m.renderFooter()))
	return b.String()
}

func (m Model) renderClock() string {
	if m.snap.Time.IsZero() {
		return ""
	}
	return dimStyle.Render(" | " + m.snap.Time.Format("15:04:05"))
}

func (m Model) renderFooter() string {
	keys := " [q] Quit  [r] Revalidate"
	if m.snap.State == inspect.StateFailed {
		keys = " [q] Quit  [r] Retry"
	}
	return keys + dimStyle.Render(fmt.Sprintf(" | %d/%d completed",
		m.snap.CompletedCount(), len(m.snap.Items)))
}
