package settings

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Detector reads a revision token. Two different values mean the settings
// changed.
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// Revision polls the highest row revision written by Set. It sees writes
// from every connection and process, including in-memory test databases.
func Revision(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(rev), 0) FROM settings").Scan(&v)
	return v, err
}

// DataVersion uses PRAGMA data_version. It only moves for writes made by
// other connections.
func DataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// WatchOptions tunes a Watcher.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 500ms.
	Interval time.Duration
	// Debounce is the quiet period before the action fires. 0 fires
	// immediately.
	Debounce time.Duration
	// Keys are read and passed to the action. Default: all known keys.
	Keys     []string
	Detector Detector
	Logger   *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if len(o.Keys) == 0 {
		o.Keys = []string{KeySavedTime, KeySavedDuration, KeyOverlayEnabled}
	}
	if o.Detector == nil {
		o.Detector = Revision
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher notices settings written by another process (the command-line
// client, a second daemon) and hands the fresh values to an action.
type Watcher struct {
	store *SQLite
	opts  WatchOptions

	revision atomic.Int64
	mu       sync.Mutex
	cond     *sync.Cond

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// WatchStats are point-in-time counters.
type WatchStats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Reloads         int64 `json:"reloads"`
	Revision        int64 `json:"revision"`
}

// NewWatcher returns a Watcher. Call OnChange to start it.
func NewWatcher(store *SQLite, opts WatchOptions) *Watcher {
	opts.defaults()
	w := &Watcher{store: store, opts: opts}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Stats returns the counters.
func (w *Watcher) Stats() WatchStats {
	return WatchStats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
		Revision:        w.revision.Load(),
	}
}

// OnChange blocks until ctx is cancelled. The revision at start is the
// baseline; later revisions call action with the watched keys. A failing
// action is retried on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func(ctx context.Context, vals map[string]string) error) {
	log := w.opts.Logger
	if v, err := w.opts.Detector(ctx, w.store.db); err != nil {
		log.Warn("settings: initial revision check failed", "error", err)
	} else {
		w.advance(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			w.cond.Broadcast()
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.store.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("settings: revision check failed", "error", err)
				continue
			}
			if cur == w.revision.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(ctx, action, pending)
				pending = -1
			}
		}
	}
}

// WaitFor blocks until a revision >= target has been processed or ctx
// expires.
func (w *Watcher) WaitFor(ctx context.Context, target int64) error {
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.cond.Broadcast()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.revision.Load() < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.cond.Wait()
	}
	return nil
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context, map[string]string) error, rev int64) {
	vals, err := w.store.Get(ctx, w.opts.Keys)
	if err == nil {
		err = action(ctx, vals)
	}
	if err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("settings: reload failed", "error", err, "revision", rev)
		return
	}
	w.reloads.Add(1)
	w.advance(rev)
	w.opts.Logger.Debug("settings: reloaded", "revision", rev)
}

func (w *Watcher) advance(v int64) {
	w.mu.Lock()
	w.revision.Store(v)
	w.mu.Unlock()
	w.cond.Broadcast()
}
