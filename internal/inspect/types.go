// Package inspect implements the installation inspection engine. The engine
// owns the authoritative per-item state and publishes snapshots for
// presentation layers. Three independent signal sources feed it (the
// periodic polling probe, filesystem change notifications, and the external
// status channel) and a single reconciliation policy merges them.
//
// All state mutation happens on a single run-loop goroutine; signal sources
// post observations into it and per-item debouncing collapses rapid
// repeated signals before they apply.
package inspect

import (
	"time"

	"github.com/provisionwatch/provisionwatch/pkg/plistval"
)

// Status is the lifecycle state of one tracked item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
)

// EngineState is the lifecycle of the engine itself.
type EngineState string

const (
	StateLoading EngineState = "loading"
	StateReady   EngineState = "ready"
	StateFailed  EngineState = "failed"
)

// Source identifies which signal produced an observation.
type Source string

const (
	SourceProbe    Source = "probe"
	SourceNotifier Source = "notifier"
	SourceStatus   Source = "statusfile"
)

// Item is one tracked unit: an application, file, or plist-backed setting.
// Items are immutable after load. Paths are checked in order; the first
// existing path wins.
type Item struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"display_name"`
	GUIIndex     int                    `json:"gui_index"`
	Paths        []string               `json:"paths"`
	Icon         string                 `json:"icon,omitempty"`
	PlistKey     string                 `json:"plist_key,omitempty"`
	Expected     any                    `json:"expected_value,omitempty"`
	Kind         plistval.PredicateKind `json:"evaluation_kind,omitempty"`
	Category     string                 `json:"category,omitempty"`
	CategoryIcon string                 `json:"category_icon,omitempty"`
}

// HasPredicate reports whether the item carries a compliance predicate.
func (it Item) HasPredicate() bool { return it.PlistKey != "" && it.Kind != "" }

// ValidationResult is the cached outcome of one item's validation pass.
// Reason is empty for plain pass/fail verdicts; otherwise it carries a
// machine-readable failure class (a plistval reason, ReasonNoPath, or
// ReasonNoResult).
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Validation failure classes produced outside plist evaluation.
const (
	ReasonNoPath   = "no_path"
	ReasonNoResult = "no_result"
)

// TransitionEvent is one applied item state change.
type TransitionEvent struct {
	ItemID string    `json:"item_id"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Source Source    `json:"source"`
	Time   time.Time `json:"time"`
}

// Snapshot is the published state surface: the entire contract presentation
// layers may depend on. Maps and slices in a snapshot are never mutated
// after publication.
type Snapshot struct {
	State EngineState `json:"state"`
	Err   string      `json:"error,omitempty"`

	Title      string `json:"title"`
	Message    string `json:"message"`
	StatusText string `json:"status_text,omitempty"`

	// Items is ordered by GUIIndex.
	Items       []Item                      `json:"items"`
	Completed   map[string]bool             `json:"completed"`
	Downloading map[string]bool             `json:"downloading"`
	Validation  map[string]ValidationResult `json:"validation"`

	Score       float64   `json:"score"`
	AllComplete bool      `json:"all_complete"`
	Time        time.Time `json:"time"`
}

// StatusOf returns the item's status in this snapshot. Absence from both
// sets means Pending.
func (s Snapshot) StatusOf(id string) Status {
	if s.Completed[id] {
		return StatusCompleted
	}
	if s.Downloading[id] {
		return StatusDownloading
	}
	return StatusPending
}

// CompletedCount returns how many items are completed.
func (s Snapshot) CompletedCount() int { return len(s.Completed) }
