// CLAUDE:SUMMARY Resolution state machine: one loop goroutine owns the resolved media, retries, liveness sweeps and page event reactions.
// Package engine keeps one usable media element bound to a page.
//
// A single loop goroutine (Run) owns every piece of mutable resolution
// state: the resolved element, the attempt counter, the retry, settle and
// navigation timers and the page event subscription. Other goroutines read
// through State, Media and Snapshot, and ask for a synchronous pass with
// ResolveNow. Only one discovery pass ever runs at a time because passes
// only execute inside the loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/skipper/internal/classify"
	"github.com/hazyhaar/skipper/internal/strategy"
	"github.com/hazyhaar/skipper/media"
)

// State of the resolution state machine.
type State int

const (
	Idle State = iota
	Searching
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Resolved:
		return "resolved"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrStopped is returned by ResolveNow when the loop is not running.
var ErrStopped = errors.New("engine: not running")

// Config holds the engine timings. Zero values take the defaults.
type Config struct {
	// SettleDelay follows document readiness before the first pass. Default: 1s.
	SettleDelay time.Duration
	// RetryDelay between failed passes. Default: 1.5s.
	RetryDelay time.Duration
	// MaxAttempts stops automatic retries. Default: 20.
	MaxAttempts int
	// StaleAfter resets the attempt counter when the previous attempt is older. Default: 30s.
	StaleAfter time.Duration
	// LivenessInterval between liveness sweeps. Default: 3s.
	LivenessInterval time.Duration
	// RecheckDelay debounces media-shaped insertions and removals. Default: 1s.
	RecheckDelay time.Duration
	// RecheckBurst rechecks at once when this many events are pending. Default: 256.
	RecheckBurst int
	// NavigationDelay before searching again after a navigation. Default: 2s.
	NavigationDelay time.Duration
	// ReadyPollInterval while waiting for document readiness. Default: 100ms.
	ReadyPollInterval time.Duration
	// NoticeTTL suppresses repeated notices for the same host. Default: 30s.
	NoticeTTL time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 1500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 20
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Second
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = 3 * time.Second
	}
	if c.RecheckDelay <= 0 {
		c.RecheckDelay = time.Second
	}
	if c.NavigationDelay <= 0 {
		c.NavigationDelay = 2 * time.Second
	}
	if c.ReadyPollInterval <= 0 {
		c.ReadyPollInterval = 100 * time.Millisecond
	}
	if c.NoticeTTL <= 0 {
		c.NoticeTTL = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Attempt records one discovery attempt.
type Attempt struct {
	Group  string    `json:"group"`
	Number int       `json:"number"`
	At     time.Time `json:"at"`
}

// Snapshot is a consistent copy of the engine's observable state.
type Snapshot struct {
	State       State             `json:"state"`
	Attempts    int               `json:"attempts"`
	LastAttempt Attempt           `json:"last_attempt"`
	Group       string            `json:"group,omitempty"`
	Selector    string            `json:"selector,omitempty"`
	URL         string            `json:"url,omitempty"`
	ResolvedAt  time.Time         `json:"resolved_at,omitempty"`
	Frames      []media.FrameNode `json:"frames,omitempty"`
	Notices     []media.Notice    `json:"notices,omitempty"`
}

// Engine is the resolution state machine for one page.
type Engine struct {
	cfg  Config
	page media.Page
	disc *strategy.Discoverer

	reqs    chan request
	running chan struct{}

	mu        sync.RWMutex
	snap      Snapshot
	bound     media.Node
	listeners []func(Update)

	// Loop-owned.
	state         State
	attempts      int
	lastAttemptAt time.Time
	retry         *time.Timer
	retryC        <-chan time.Time
	nav           *time.Timer
	navC          <-chan time.Time
	settleC       <-chan time.Time
	readyTick     *time.Ticker
	recheck       *debouncer
	recheckDue    bool
	ceilingLogged bool
	noticeSeen    map[string]time.Time
}

type request struct {
	reply chan media.Node
}

// New creates an Engine in the Idle state. Run starts it.
func New(page media.Page, disc *strategy.Discoverer, cfg Config) *Engine {
	cfg.defaults()
	e := &Engine{
		cfg:        cfg,
		page:       page,
		disc:       disc,
		reqs:       make(chan request),
		noticeSeen: make(map[string]time.Time),
	}
	e.recheck = newDebouncer(debounceConfig{Window: cfg.RecheckDelay, MaxBuffer: cfg.RecheckBurst}, func([]media.Event) {
		e.recheckDue = true
	})
	return e
}

// Subscribe registers fn for every Update. Listeners run on the loop
// goroutine: they must return quickly and must not call ResolveNow.
func (e *Engine) Subscribe(fn func(Update)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.State
}

// Media returns the resolved element, or nil.
func (e *Engine) Media() media.Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bound
}

// Snapshot returns a copy of the observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.snap
	s.Frames = append([]media.FrameNode(nil), e.snap.Frames...)
	s.Notices = append([]media.Notice(nil), e.snap.Notices...)
	return s
}

// ResolveNow returns the resolved element, running one synchronous pass in
// the loop when none is bound. It re-arms the attempt counter. A nil node
// with a nil error means the pass found nothing.
func (e *Engine) ResolveNow(ctx context.Context) (media.Node, error) {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if running == nil {
		return nil, ErrStopped
	}
	req := request{reply: make(chan media.Node, 1)}
	select {
	case e.reqs <- req:
	case <-running:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case n := <-req.reply:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the state machine until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	events, err := e.page.Watch(ctx)
	if err != nil {
		return fmt.Errorf("engine: watch page: %w", err)
	}

	stop := make(chan struct{})
	e.mu.Lock()
	e.running = stop
	e.mu.Unlock()
	defer func() {
		close(stop)
		e.stopTimers()
	}()

	e.readyTick = time.NewTicker(e.cfg.ReadyPollInterval)
	readyC := e.readyTick.C
	e.checkReady(ctx, &readyC)

	liveness := time.NewTicker(e.cfg.LivenessInterval)
	defer liveness.Stop()

	e.cfg.Logger.Info("engine: started")

	for {
		select {
		case <-ctx.Done():
			e.cfg.Logger.Info("engine: stopped")
			return ctx.Err()

		case <-readyC:
			e.checkReady(ctx, &readyC)

		case <-e.settleC:
			e.settleC = nil
			e.search(ctx, "settle")

		case <-e.retryC:
			e.retryC = nil
			e.retryPass(ctx)

		case <-e.recheck.timerC():
			e.recheck.flush()
			e.recheckIfDue(ctx)

		case <-e.navC:
			e.navC = nil
			e.search(ctx, "navigation")

		case <-liveness.C:
			e.sweep(ctx)

		case req := <-e.reqs:
			req.reply <- e.resolveNow(ctx)

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("engine: page event stream closed")
			}
			e.handle(ctx, ev)
		}
	}
}

// checkReady leaves Idle once the document is interactive or complete by
// arming the settle timer.
func (e *Engine) checkReady(ctx context.Context, readyC *<-chan time.Time) {
	if e.state != Idle {
		*readyC = nil
		return
	}
	rs, err := e.page.ReadyState(ctx)
	if err != nil {
		e.cfg.Logger.Debug("engine: ready state", "error", err)
		return
	}
	if rs != "interactive" && rs != "complete" {
		return
	}
	e.readyTick.Stop()
	*readyC = nil
	e.settleC = time.After(e.cfg.SettleDelay)
	e.cfg.Logger.Debug("engine: document ready", "ready_state", rs)
}

// search enters Searching and runs one discovery pass.
func (e *Engine) search(ctx context.Context, reason string) {
	now := time.Now()
	if !e.lastAttemptAt.IsZero() && now.Sub(e.lastAttemptAt) > e.cfg.StaleAfter {
		e.attempts = 0
		e.ceilingLogged = false
	}
	e.lastAttemptAt = now
	e.settleC = nil
	if e.state != Searching {
		e.transition(Searching, reason)
	}

	out := e.disc.Discover(ctx, e.page)
	e.recordPass(ctx, out)
	if out.Found() {
		e.resolve(ctx, out, reason)
		return
	}
	e.failed(reason, out)
}

// retryPass runs the deep fallback, then a normal pass if still unresolved.
func (e *Engine) retryPass(ctx context.Context) {
	if e.state == Resolved {
		return
	}
	out := e.disc.Deep(ctx, e.page)
	if out.Found() {
		e.recordPass(ctx, out)
		e.resolve(ctx, out, "deep")
		return
	}
	e.search(ctx, "retry")
}

func (e *Engine) failed(reason string, out strategy.Outcome) {
	if e.attempts < e.cfg.MaxAttempts {
		e.attempts++
		e.armRetry()
		e.cfg.Logger.Debug("engine: no media", "reason", reason, "attempt", e.attempts)
	} else {
		e.cancelRetry()
		if !e.ceilingLogged {
			e.ceilingLogged = true
			e.cfg.Logger.Info("engine: attempt ceiling reached, waiting for a trigger", "attempts", e.attempts)
		}
	}
	e.mu.Lock()
	e.snap.Attempts = e.attempts
	e.snap.LastAttempt = Attempt{Group: out.Group, Number: e.attempts, At: e.lastAttemptAt}
	e.mu.Unlock()
}

func (e *Engine) resolve(ctx context.Context, out strategy.Outcome, reason string) {
	e.cancelRetry()
	e.recheck.cancel()
	e.recheckDue = false
	e.attempts = 0
	e.ceilingLogged = false

	if err := e.page.ObserveMedia(ctx, out.Media); err != nil {
		e.cfg.Logger.Debug("engine: observe media", "error", err)
	}

	e.mu.Lock()
	e.bound = out.Media
	e.snap.Attempts = 0
	e.snap.Group = out.Group
	e.snap.Selector = out.Selector
	e.snap.ResolvedAt = time.Now()
	e.snap.LastAttempt = Attempt{Group: out.Group, Number: 0, At: e.lastAttemptAt}
	e.mu.Unlock()

	e.cfg.Logger.Info("engine: media resolved", "group", out.Group, "selector", out.Selector, "loading", out.Loading, "reason", reason)
	e.transition(Resolved, reason)
	e.emit(Update{Kind: UpdateMedia, Present: true, Reason: reason, Group: out.Group, Selector: out.Selector})
}

// invalidate drops the resolved element and returns to Searching.
func (e *Engine) invalidate(reason string) {
	e.cancelRetry()
	e.mu.Lock()
	had := e.bound != nil
	e.bound = nil
	e.snap.Group = ""
	e.snap.Selector = ""
	e.mu.Unlock()

	if e.state != Searching {
		e.transition(Searching, reason)
	}
	if had {
		e.cfg.Logger.Info("engine: media invalidated", "reason", reason)
		e.emit(Update{Kind: UpdateMedia, Present: false, Reason: reason})
	}
}

func (e *Engine) resolveNow(ctx context.Context) media.Node {
	if e.state == Resolved && e.alive(ctx) {
		return e.Media()
	}
	if e.state == Resolved {
		e.invalidate("detached")
	}
	e.rearm()
	e.search(ctx, "command")
	return e.Media()
}

func (e *Engine) rearm() {
	e.attempts = 0
	e.ceilingLogged = false
}

func (e *Engine) handle(ctx context.Context, ev media.Event) {
	switch ev.Kind {
	case media.EventInserted:
		if !ev.MediaShaped || e.state == Idle {
			return
		}
		if e.state == Resolved && e.alive(ctx) {
			return
		}
		e.debounce(ctx, ev)

	case media.EventRemoved:
		if e.state != Resolved {
			return
		}
		if !e.alive(ctx) {
			e.invalidate("removed")
			e.debounce(ctx, ev)
		}

	case media.EventNavigated, media.EventDocumentReset:
		if ev.URL != "" {
			e.mu.Lock()
			e.snap.URL = ev.URL
			e.mu.Unlock()
		}
		if e.state == Idle {
			return
		}
		e.invalidate("navigation")
		e.recheck.cancel()
		e.recheckDue = false
		e.rearm()
		if e.nav != nil {
			e.nav.Stop()
		}
		e.nav = time.NewTimer(e.cfg.NavigationDelay)
		e.navC = e.nav.C

	case media.EventMediaReady:
		if e.state == Resolved {
			e.emit(Update{Kind: UpdateReady, Present: true})
		}

	case media.EventAction:
		e.emit(Update{Kind: UpdateAction, Present: e.state == Resolved, Action: ev.Action, Value: ev.Value})
	}
}

// debounce queues ev for a recheck. A burst that fills the buffer is
// flushed by add itself, with no timer left to fire, so the recheck runs
// here.
func (e *Engine) debounce(ctx context.Context, ev media.Event) {
	if e.recheck.add(ev) {
		e.recheckIfDue(ctx)
	}
}

func (e *Engine) recheckIfDue(ctx context.Context) {
	if e.recheckDue {
		e.recheckDue = false
		e.onRecheck(ctx)
	}
}

func (e *Engine) onRecheck(ctx context.Context) {
	if e.state == Resolved && e.alive(ctx) {
		return
	}
	if e.state == Resolved {
		e.invalidate("detached")
	}
	e.search(ctx, "mutation")
}

// sweep is the periodic liveness check.
func (e *Engine) sweep(ctx context.Context) {
	switch e.state {
	case Idle:
		return
	case Resolved:
		if e.alive(ctx) {
			return
		}
		e.invalidate("liveness")
		e.search(ctx, "liveness")
	case Searching:
		if e.navC != nil {
			return
		}
		e.search(ctx, "liveness")
	}
}

func (e *Engine) alive(ctx context.Context) bool {
	m := e.Media()
	if m == nil {
		return false
	}
	d, err := m.Describe(ctx)
	if err != nil {
		return false
	}
	return classify.Alive(d)
}

func (e *Engine) recordPass(ctx context.Context, out strategy.Outcome) {
	e.mu.Lock()
	e.snap.Frames = out.Frames
	e.snap.Notices = out.Notices
	if u, err := e.page.URL(ctx); err == nil {
		e.snap.URL = u
	}
	e.mu.Unlock()

	now := time.Now()
	for _, n := range out.Notices {
		if at, ok := e.noticeSeen[n.Host]; ok && now.Sub(at) < e.cfg.NoticeTTL {
			continue
		}
		e.noticeSeen[n.Host] = now
		e.cfg.Logger.Info("engine: external media", "host", n.Host, "url", n.URL)
		e.emit(Update{Kind: UpdateNotice, Notice: n})
	}
}

func (e *Engine) transition(to State, reason string) {
	from := e.state
	e.state = to
	e.mu.Lock()
	e.snap.State = to
	e.mu.Unlock()
	if from != to {
		e.cfg.Logger.Debug("engine: transition", "from", from, "to", to, "reason", reason)
		e.emit(Update{Kind: UpdateState, From: from, To: to, Present: to == Resolved, Reason: reason})
	}
}

func (e *Engine) armRetry() {
	if e.retry != nil {
		e.retry.Stop()
	}
	e.retry = time.NewTimer(e.cfg.RetryDelay)
	e.retryC = e.retry.C
}

func (e *Engine) cancelRetry() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.retryC = nil
}

func (e *Engine) stopTimers() {
	e.cancelRetry()
	e.recheck.cancel()
	if e.nav != nil {
		e.nav.Stop()
	}
	if e.readyTick != nil {
		e.readyTick.Stop()
	}
}

func (e *Engine) emit(u Update) {
	e.mu.RLock()
	ls := e.listeners
	e.mu.RUnlock()
	u.At = time.Now()
	for _, fn := range ls {
		fn(u)
	}
}
