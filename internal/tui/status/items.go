package status

import (
	"fmt"
	"strings"

	"github.com/provisionwatch/provisionwatch/internal/inspect"
)

// statusIcon returns a colored glyph for an item status.
func statusIcon(s inspect.Status) string {
	switch s {
	case inspect.StatusCompleted:
		return doneStyle.Render("●")
	case inspect.StatusDownloading:
		return activeStyle.Render("◐")
	default:
		return dimStyle.Render("○")
	}
}

// statusLabel returns a colored status label.
func statusLabel(s inspect.Status) string {
	switch s {
	case inspect.StatusCompleted:
		return doneStyle.Render("DONE")
	case inspect.StatusDownloading:
		return activeStyle.Render("BUSY")
	default:
		return dimStyle.Render("WAIT")
	}
}

// renderItems renders the item grid in GUI order.
func (m Model) renderItems() string {
	var b strings.Builder
	b.WriteString("\n")
	for _, it := range m.snap.Items {
		b.WriteString(renderItem(it, m.snap.StatusOf(it.ID), m.snap.Validation[it.ID]))
		b.WriteString("\n")
	}
	return b.String()
}

// renderItem renders a single item row. A completed item that still fails
// validation gets its failure detail appended; that combination is the one
// a technician has to act on.
func renderItem(it inspect.Item, st inspect.Status, res inspect.ValidationResult) string {
	name := it.DisplayName
	if st == inspect.StatusCompleted {
		name = dimStyle.Render(name)
	}
	row := fmt.Sprintf("   %s %-40s %s", statusIcon(st), name, statusLabel(st))
	if st == inspect.StatusCompleted && !res.Valid && res.Detail != "" {
		row += failStyle.Render(" ✖ ") + dimStyle.Render(res.Detail)
	}
	return row
}

// renderSummary renders the progress bar and the threshold-colored score.
func (m Model) renderSummary() string {
	total := len(m.snap.Items)
	if total == 0 {
		return summaryBoxStyle.Render(dimStyle.Render("No items configured"))
	}

	done := m.snap.CompletedCount()
	ratio := float64(done) / float64(total)
	bar := m.progress.ViewAs(ratio)

	band := m.thresholds.BandFor(m.snap.Score)
	score := bandStyle(band.Color).Render(fmt.Sprintf("%s %.0f%% %s",
		band.Icon, m.snap.Score*100, band.Label))

	line := fmt.Sprintf("%d/%d installed   %s   score %s", done, total, bar, score)
	if m.snap.AllComplete {
		line += "   " + doneStyle.Render("all items completed")
	}
	return summaryBoxStyle.Render(line)
}
