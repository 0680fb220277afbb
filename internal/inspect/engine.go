package inspect

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/pkg/artifact"
	"github.com/provisionwatch/provisionwatch/pkg/statusfile"
	"github.com/provisionwatch/provisionwatch/pkg/watcher"
)

const (
	// DefaultProbeInterval is how often the polling probe re-checks every
	// item.
	DefaultProbeInterval = 2 * time.Second

	// DefaultDebounce is the per-item mutation debounce window.
	DefaultDebounce = 100 * time.Millisecond
)

// Config holds engine settings. Zero values select the defaults.
type Config struct {
	// Load returns the configuration document. Retry re-invokes it.
	// Defaults to config.Load.
	Load func(*log.Logger) (*config.Config, error)

	// ProbeInterval is the polling cadence. Defaults to 2s.
	ProbeInterval time.Duration

	// Debounce is the per-item signal debounce window, also used by the
	// change notifier and the status tailer.
	Debounce time.Duration

	// OnAllComplete fires exactly once each time the completed count
	// reaches the item total; it re-arms when the count drops again.
	// Called on the engine loop: do not block.
	OnAllComplete func()

	// Logger receives transition and lifecycle logs. Defaults to
	// log.Default().
	Logger *log.Logger
}

// Engine owns the authoritative item state. Start runs the configuration
// load and the first probe pass synchronously, so the first published
// snapshot never shows false Pending for already-installed items.
type Engine struct {
	cfg    Config
	logger *log.Logger

	mu         sync.RWMutex
	snap       Snapshot
	docRef     *config.Config
	watchers   []chan Snapshot
	listeners  []chan TransitionEvent
	subsClosed bool
	started    bool

	// Run-loop state. Owned by the loop goroutine; Start and CheckOnce
	// touch it only before the loop exists.
	doc         *config.Config
	items       []Item
	itemIndex   map[string]Item
	completed   map[string]bool
	downloading map[string]bool
	validation  map[string]ValidationResult
	state       EngineState
	loadErr     string
	statusText  string
	score       float64
	announced   bool
	prb         *probe
	pending     map[string]signal
	timers      map[string]*time.Timer
	sourcesUp   bool

	notifier *watcher.Notifier
	tailer   *statusfile.Tailer

	signals    chan signal
	applyCh    chan string
	retryCh    chan struct{}
	validateCh chan validationReq
	quit       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type validationReq struct {
	reply chan Snapshot
}

// New creates an engine. Call Start to load configuration and begin
// observing.
func New(cfg Config) *Engine {
	if cfg.Load == nil {
		cfg.Load = config.Load
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	e := &Engine{
		cfg:         cfg,
		logger:      cfg.Logger,
		state:       StateLoading,
		completed:   make(map[string]bool),
		downloading: make(map[string]bool),
		validation:  make(map[string]ValidationResult),
		pending:     make(map[string]signal),
		timers:      make(map[string]*time.Timer),
		signals:     make(chan signal, 64),
		applyCh:     make(chan string, 64),
		retryCh:     make(chan struct{}, 1),
		validateCh:  make(chan validationReq),
		quit:        make(chan struct{}),
	}
	e.publish()
	return e
}

// Start loads the configuration, applies the first probe pass, starts the
// signal sources, and launches the run loop. A configuration load failure
// is returned AND leaves the engine running in the Failed state, where
// Retry can re-run the load.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	err := e.load()
	if err == nil {
		e.startSources()
	}
	e.wg.Add(1)
	go e.loop()
	return err
}

// Stop tears the engine down: probe ticker, notifier, tailer, pending
// debounce timers, then subscriber channels. No state mutation or callback
// happens after Stop returns. Stop is idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
		e.wg.Wait()
		e.mu.RLock()
		started := e.started
		e.mu.RUnlock()
		if !started {
			e.closeSubscribers()
		}
	})
}

// Retry re-runs the full configuration load. No-op unless the engine is in
// the Failed state.
func (e *Engine) Retry() {
	select {
	case e.retryCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the latest published state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Doc returns the loaded configuration document, nil while loading or
// failed. The document is immutable after load.
func (e *Engine) Doc() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docRef
}

// Watch returns a channel receiving snapshots on every published change,
// primed with the current state. The buffer holds one snapshot; a slow
// consumer sees the latest state, never a backlog. Closed on Stop.
func (e *Engine) Watch() <-chan Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if e.subsClosed {
		close(ch)
		return ch
	}
	ch <- e.snap
	e.watchers = append(e.watchers, ch)
	return ch
}

// Events returns a channel receiving every applied transition. Events are
// dropped rather than blocking the engine when the consumer lags. Closed
// on Stop.
func (e *Engine) Events() <-chan TransitionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan TransitionEvent, 64)
	if e.subsClosed {
		close(ch)
		return ch
	}
	e.listeners = append(e.listeners, ch)
	return ch
}

// RunValidation recomputes validation results on the engine loop and
// returns the refreshed snapshot. The engine must be started; after Stop
// it returns the last snapshot unchanged.
func (e *Engine) RunValidation() Snapshot {
	req := validationReq{reply: make(chan Snapshot, 1)}
	select {
	case e.validateCh <- req:
		select {
		case snap := <-req.reply:
			return snap
		case <-e.quit:
		}
	case <-e.quit:
	}
	return e.Snapshot()
}

// load runs the full configuration load and, on success, the synchronous
// first probe pass and initial validation pass.
func (e *Engine) load() error {
	e.state = StateLoading
	e.loadErr = ""
	e.publish()

	doc, err := e.cfg.Load(e.logger)
	if err != nil {
		e.state = StateFailed
		e.loadErr = err.Error()
		e.logger.Printf("[inspector] configuration load failed: %v", err)
		e.publish()
		return err
	}

	e.doc = doc
	e.mu.Lock()
	e.docRef = doc
	e.mu.Unlock()
	e.items = itemsFromConfig(doc)
	e.itemIndex = make(map[string]Item, len(e.items))
	for _, it := range e.items {
		e.itemIndex[it.ID] = it
	}
	e.completed = make(map[string]bool)
	e.downloading = make(map[string]bool)
	e.validation = make(map[string]ValidationResult)
	e.announced = false
	e.statusText = ""
	e.prb = newProbe(e.items, doc.CachePaths)
	e.state = StateReady

	e.runPass(true)
	e.runValidationPass()
	e.publish()
	e.logger.Printf("[inspector] loaded %d items, %d completed at startup",
		len(e.items), len(e.completed))
	return nil
}

// startSources brings up the change notifier and the status tailer. The
// engine stays functional without them; the probe alone is sufficient.
func (e *Engine) startSources() {
	if e.sourcesUp || e.doc == nil {
		return
	}
	e.sourcesUp = true

	e.notifier = watcher.New(watcher.Config{
		Debounce: e.cfg.Debounce,
		Logger:   e.logger,
	})
	err := e.notifier.Start(e.doc.CachePaths,
		func(path string) { e.offerArtifact(path, true) },
		func(path string) { e.offerArtifact(path, false) },
	)
	if err != nil {
		e.logger.Printf("[inspector] change notifier unavailable: %v", err)
		e.notifier = nil
	} else {
		e.logger.Printf("[inspector] watching %d cache paths (%s backend)",
			len(e.doc.CachePaths), e.notifier.BackendName())
	}

	if e.doc.StatusFile != "" {
		e.tailer = statusfile.New(statusfile.Config{
			Path:     e.doc.StatusFile,
			Debounce: e.cfg.Debounce,
			Logger:   e.logger,
		})
		if err := e.tailer.Start(); err != nil {
			e.logger.Printf("[inspector] status channel unavailable: %v", err)
			e.tailer = nil
		}
	}
}

func (e *Engine) loop() {
	defer e.wg.Done()
	defer e.teardown()
	ticker := time.NewTicker(e.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
			if e.state != StateReady {
				continue
			}
			if e.tailer != nil {
				e.tailer.Sync()
			}
			e.runPass(false)
		case sig := <-e.signals:
			if e.state == StateReady {
				e.enqueue(sig)
			}
		case id := <-e.applyCh:
			if e.state == StateReady {
				e.applyPending(id)
			}
		case upd, ok := <-e.tailerUpdates():
			if !ok {
				e.tailer = nil
				continue
			}
			if e.state == StateReady {
				e.handleStatusUpdate(upd)
			}
		case <-e.retryCh:
			if e.state != StateFailed {
				continue
			}
			if err := e.load(); err == nil {
				e.startSources()
			}
		case req := <-e.validateCh:
			e.runValidationPass()
			e.publish()
			req.reply <- e.Snapshot()
		}
	}
}

func (e *Engine) tailerUpdates() <-chan statusfile.Update {
	if e.tailer == nil {
		return nil
	}
	return e.tailer.Updates()
}

func (e *Engine) teardown() {
	if e.notifier != nil {
		e.notifier.Stop()
	}
	if e.tailer != nil {
		e.tailer.Stop()
	}
	for id, tmr := range e.timers {
		tmr.Stop()
		delete(e.timers, id)
	}
	e.closeSubscribers()
}

func (e *Engine) closeSubscribers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subsClosed {
		return
	}
	e.subsClosed = true
	for _, ch := range e.watchers {
		close(ch)
	}
	for _, ch := range e.listeners {
		close(ch)
	}
	e.watchers, e.listeners = nil, nil
}

// runPass feeds one probe pass into reconciliation. The first pass applies
// transitions directly; later passes go through the per-item debounce.
// Evidence that implies no transition is not enqueued, so an unchanged
// filesystem produces no state churn.
func (e *Engine) runPass(direct bool) {
	for _, res := range e.prb.pass() {
		cur := e.statusOf(res.itemID)
		next, changed := decide(cur, res.installed, res.artifact)
		if !changed {
			continue
		}
		if direct {
			e.setStatus(res.itemID, cur, next, SourceProbe)
			continue
		}
		e.enqueue(signal{
			kind:      sigEvidence,
			source:    SourceProbe,
			itemID:    res.itemID,
			installed: res.installed,
			artifact:  res.artifact,
		})
	}
}

func (e *Engine) statusOf(id string) Status {
	if e.completed[id] {
		return StatusCompleted
	}
	if e.downloading[id] {
		return StatusDownloading
	}
	return StatusPending
}

// enqueue records the latest signal for an item and arms (or re-arms) its
// debounce timer. Last write wins within the window.
func (e *Engine) enqueue(sig signal) {
	e.pending[sig.itemID] = sig
	if tmr, ok := e.timers[sig.itemID]; ok {
		tmr.Reset(e.cfg.Debounce)
		return
	}
	id := sig.itemID
	e.timers[id] = time.AfterFunc(e.cfg.Debounce, func() {
		select {
		case e.applyCh <- id:
		case <-e.quit:
		}
	})
}

func (e *Engine) applyPending(id string) {
	delete(e.timers, id)
	sig, ok := e.pending[id]
	if !ok {
		return
	}
	delete(e.pending, id)
	e.applySignal(sig)
}

func (e *Engine) applySignal(sig signal) {
	it, ok := e.itemIndex[sig.itemID]
	if !ok {
		return
	}
	cur := e.statusOf(sig.itemID)
	var next Status
	var changed bool
	switch sig.kind {
	case sigEvidence:
		next, changed = decide(cur, sig.installed, sig.artifact)
	case sigArtifact:
		installed := firstExistingPath(it.Paths) != ""
		next, changed = decide(cur, installed, sig.artifact)
	case sigRecheck:
		installed, art := e.prb.recheck(it)
		next, changed = decide(cur, installed, art)
	case sigExplicit:
		next, changed = sig.target, sig.target != cur
	}
	if changed {
		e.setStatus(sig.itemID, cur, next, sig.source)
	}
}

// setStatus applies one transition, keeping the completed and downloading
// sets mutually exclusive.
func (e *Engine) setStatus(id string, from, to Status, src Source) {
	delete(e.completed, id)
	delete(e.downloading, id)
	switch to {
	case StatusCompleted:
		e.completed[id] = true
	case StatusDownloading:
		e.downloading[id] = true
	}
	e.logger.Printf("[inspector] %s: %s -> %s (%s)", id, from, to, src)
	e.broadcastEvent(TransitionEvent{ItemID: id, From: from, To: to, Source: src, Time: time.Now()})
	e.checkAllComplete()
	e.publish()
}

// checkAllComplete fires the one-shot completion notification when every
// item is completed, and re-arms it when the count drops again.
func (e *Engine) checkAllComplete() {
	done := len(e.items) > 0 && len(e.completed) == len(e.items)
	switch {
	case done && !e.announced:
		e.announced = true
		e.logger.Printf("[inspector] all %d items completed", len(e.items))
		if e.cfg.OnAllComplete != nil {
			e.cfg.OnAllComplete()
		}
	case !done && e.announced:
		e.announced = false
	}
}

// handleStatusUpdate translates one status-file line into engine state:
// display text updates publish immediately; item claims go through the
// debounce. Out-of-range indices are ignored.
func (e *Engine) handleStatusUpdate(upd statusfile.Update) {
	if upd.Text != "" && upd.Text != e.statusText {
		e.statusText = upd.Text
		e.publish()
	}
	target, ok := statusTarget(upd.Signal)
	if !ok || upd.Index < 0 {
		return
	}
	if upd.Index >= len(e.items) {
		e.logger.Printf("[inspector] status line index %d out of range (%d items)", upd.Index, len(e.items))
		return
	}
	e.enqueue(signal{
		kind:   sigExplicit,
		source: SourceStatus,
		itemID: e.items[upd.Index].ID,
		target: target,
	})
}

func statusTarget(sig statusfile.Signal) (Status, bool) {
	switch sig {
	case statusfile.SignalCompleted:
		return StatusCompleted, true
	case statusfile.SignalInProgress:
		return StatusDownloading, true
	case statusfile.SignalPending:
		return StatusPending, true
	}
	return "", false
}

// offerArtifact maps a notifier callback onto item signals. Runs on the
// notifier's goroutine: it posts into the loop and never mutates state.
func (e *Engine) offerArtifact(path string, appeared bool) {
	base := filepath.Base(path)
	e.mu.RLock()
	items := e.snap.Items
	e.mu.RUnlock()
	for _, it := range items {
		if !artifact.MatchesItem(base, it.ID, it.DisplayName) {
			continue
		}
		sig := signal{kind: sigRecheck, source: SourceNotifier, itemID: it.ID}
		if appeared {
			sig.kind = sigArtifact
			sig.artifact = true
		}
		select {
		case e.signals <- sig:
		default:
			// the probe remains authoritative when the queue is full
		}
	}
}

func (e *Engine) broadcastEvent(ev TransitionEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// publish rebuilds the snapshot and hands it to every watcher, replacing
// any stale snapshot a slow consumer has not collected yet.
func (e *Engine) publish() {
	snap := e.buildSnapshot()
	e.mu.Lock()
	e.snap = snap
	watchers := e.watchers
	e.mu.Unlock()
	for _, ch := range watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (e *Engine) buildSnapshot() Snapshot {
	snap := Snapshot{
		State:       e.state,
		Err:         e.loadErr,
		StatusText:  e.statusText,
		Items:       e.items,
		Completed:   copyBools(e.completed),
		Downloading: copyBools(e.downloading),
		Validation:  copyResults(e.validation),
		Score:       e.score,
		AllComplete: len(e.items) > 0 && len(e.completed) == len(e.items),
		Time:        time.Now(),
	}
	if e.doc != nil {
		snap.Title = e.doc.Title
		snap.Message = e.doc.Message
	}
	return snap
}

func copyBools(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyResults(m map[string]ValidationResult) map[string]ValidationResult {
	out := make(map[string]ValidationResult, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
