package journal

import (
	"context"
	"log"

	"github.com/provisionwatch/provisionwatch/internal/inspect"
)

// Recorder drains an engine event stream into a store. Writes are
// best-effort: a failed insert is logged and the stream keeps going.
type Recorder struct {
	store  *Store
	logger *log.Logger
}

// NewRecorder creates a recorder writing to store. logger defaults to
// log.Default().
func NewRecorder(store *Store, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Run consumes events until the channel closes or ctx is cancelled. The
// engine closes its event channel on Stop, so a clean shutdown drains every
// delivered event before Run returns.
func (r *Recorder) Run(ctx context.Context, events <-chan inspect.TransitionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.store.RecordTransition(ctx, ev); err != nil {
				r.logger.Printf("[journal] record transition %s: %v", ev.ItemID, err)
			}
		}
	}
}
