package inspect

// signalKind says how much evidence a signal carries.
type signalKind int

const (
	// sigEvidence carries full evidence: path existence and artifact
	// presence. Produced by the polling probe.
	sigEvidence signalKind = iota
	// sigArtifact carries artifact presence only; path existence is
	// rechecked at apply time. Produced by the change notifier.
	sigArtifact
	// sigRecheck carries no evidence; both facts are re-observed at apply
	// time. Produced when an artifact disappears.
	sigRecheck
	// sigExplicit carries a target status claimed by the status channel.
	sigExplicit
)

type signal struct {
	kind      signalKind
	source    Source
	itemID    string
	installed bool
	artifact  bool
	target    Status
}

// decide applies the reconciliation policy to one item's evidence and
// returns the next status plus whether that is a transition.
//
// The permitted non-linear transitions: Completed -> Downloading when an
// artifact reappears after removal, and Completed/Downloading -> Pending
// when the artifact disappears with no active download evidence.
func decide(cur Status, installed, artifact bool) (Status, bool) {
	switch {
	case installed && cur != StatusCompleted:
		return StatusCompleted, true
	case !installed && cur == StatusCompleted:
		if artifact {
			return StatusDownloading, true
		}
		return StatusPending, true
	case !installed && artifact && cur == StatusPending:
		return StatusDownloading, true
	case !installed && !artifact && cur == StatusDownloading:
		return StatusPending, true
	}
	return cur, false
}
