// Package statusfile tails an append-only external status file and parses
// newly appended lines into structured item updates.
//
// Each line stands alone and uses either the token format
//
//	index: 1, status: success, statustext: Firefox installed
//
// or a bare free-text phrase matched against per-locale keyword tables.
// Malformed lines are logged and skipped; one bad line never interrupts the
// lines after it.
package statusfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Signal is what a status line claims about an item's state.
type Signal string

const (
	SignalCompleted  Signal = "completed"
	SignalInProgress Signal = "in_progress"
	SignalPending    Signal = "pending"
	// SignalNone marks a line that carried text but no recognizable state.
	SignalNone Signal = "none"
)

// Update is one parsed status line.
type Update struct {
	// Index is the positional index into the configured item list, or -1
	// when the line names none. Range checking is the consumer's job.
	Index  int
	Signal Signal
	// Text is the display text, when the line carries one.
	Text string
	Raw  string
}

// completionKeywords and inProgressKeywords drive free-text matching across
// the locales the status file is written in. Matching is case-insensitive
// substring; completion wins when a line matches both tables.
var completionKeywords = []string{
	"installed", "complete", "success", "done",
	"installé", "terminé", "instalado", "completado", "installiert", "fertig",
}

var inProgressKeywords = []string{
	"downloading", "installing", "loading", "wait", "in progress",
	"téléchargement", "installation", "descargando", "instalando",
	"herunterladen", "installieren",
}

const statusTextToken = "statustext:"

// ParseLine parses one status line. It returns an error for malformed token
// content (bad index, unknown status token); callers log and skip the line.
func ParseLine(line string) (Update, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Update{}, fmt.Errorf("empty line")
	}
	upd := Update{Index: -1, Signal: SignalNone, Raw: line}

	// statustext consumes the rest of the line, commas included.
	rest := line
	if i := strings.Index(strings.ToLower(line), statusTextToken); i >= 0 {
		upd.Text = strings.TrimSpace(line[i+len(statusTextToken):])
		rest = strings.TrimRight(strings.TrimSpace(line[:i]), ",")
	}

	structured := false
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "index":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Update{}, fmt.Errorf("bad index %q: %w", value, err)
			}
			upd.Index = n
			structured = true
		case "status":
			sig, err := parseToken(value)
			if err != nil {
				return Update{}, err
			}
			upd.Signal = sig
			structured = true
		}
	}

	// Without a status token, fall back to keyword matching on whatever
	// text the line carries.
	if upd.Signal == SignalNone {
		text := upd.Text
		if !structured && text == "" {
			text = line
			upd.Text = line
		}
		upd.Signal = matchKeywords(text)
	}
	return upd, nil
}

// parseToken maps the structured status tokens onto signals.
func parseToken(s string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "done", "ok":
		return SignalCompleted, nil
	case "wait", "installing", "downloading":
		return SignalInProgress, nil
	case "pending", "reset":
		return SignalPending, nil
	default:
		return SignalNone, fmt.Errorf("unknown status token: %q", s)
	}
}

// matchKeywords classifies free text by locale keyword tables.
func matchKeywords(text string) Signal {
	if text == "" {
		return SignalNone
	}
	lower := strings.ToLower(text)
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			return SignalCompleted
		}
	}
	for _, kw := range inProgressKeywords {
		if strings.Contains(lower, kw) {
			return SignalInProgress
		}
	}
	return SignalNone
}
