// CLAUDE:SUMMARY Overlay presence state machine (Hidden/Visible/Rebuilding) mirroring media presence onto an injected in-page bar.
// Package overlay mirrors the engine's resolution state onto the in-page
// control bar. The bar itself is a Surface; this package only decides when
// it is mounted, rebuilt or torn down.
package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/skipper/internal/settings"
	"github.com/hazyhaar/skipper/media"
)

// State of the overlay.
type State int

const (
	Hidden State = iota
	Visible
	Rebuilding
)

func (s State) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Visible:
		return "visible"
	case Rebuilding:
		return "rebuilding"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// View is the configuration the bar is built from.
type View struct {
	Time     string `json:"time"`
	Duration string `json:"duration"`
}

// Status kinds understood by the surface.
const (
	StatusInfo    = "info"
	StatusLoading = "loading"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Surface is the in-page bar.
type Surface interface {
	// Mount builds the bar synchronously.
	Mount(ctx context.Context, v View) error
	// BeginExit starts the exit transition.
	BeginExit(ctx context.Context) error
	// Unmount removes the bar and its injected style element.
	Unmount(ctx context.Context) error
	// Status shows a message on the bar.
	Status(ctx context.Context, kind, message string) error
	// Notice shows the external-media notice.
	Notice(ctx context.Context, n media.Notice) error
}

// Store is the settings collaborator.
type Store interface {
	Get(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
}

// Config controls a Controller.
type Config struct {
	// ExitDelay is the exit transition length. Default: 300ms.
	ExitDelay time.Duration
	// StatusReset restores the ready message after success/error. Default: 3s.
	StatusReset time.Duration
	// ReadyMessage is shown once media is bound.
	ReadyMessage string
	// CallTimeout bounds surface calls made from timers. Default: 5s.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.ExitDelay <= 0 {
		c.ExitDelay = 300 * time.Millisecond
	}
	if c.StatusReset <= 0 {
		c.StatusReset = 3 * time.Second
	}
	if c.ReadyMessage == "" {
		c.ReadyMessage = "Video detected - ready"
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller owns the overlay state. All methods are safe for concurrent
// use.
type Controller struct {
	cfg     Config
	surface Surface
	store   Store

	mu      sync.Mutex
	state   State
	enabled bool
	present bool
	mounted bool
	view    View
	gen     uint64 // invalidates pending exit/rebuild timers
	pending *time.Timer
	reset   *time.Timer
}

// New returns a Hidden, enabled controller.
func New(surface Surface, store Store, cfg Config) *Controller {
	cfg.defaults()
	return &Controller{cfg: cfg, surface: surface, store: store, enabled: true}
}

// Load reads overlayEnabled and the saved inputs from the store.
func (c *Controller) Load(ctx context.Context) error {
	vals, err := c.store.Get(ctx, []string{settings.KeyOverlayEnabled, settings.KeySavedTime, settings.KeySavedDuration})
	if err != nil {
		return fmt.Errorf("overlay: load settings: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = settings.Enabled(vals)
	c.view = View{Time: vals[settings.KeySavedTime], Duration: vals[settings.KeySavedDuration]}
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns the configuration the bar is (or would be) built from.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Enabled reports the persisted preference.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// MediaChanged shows the bar when media appears and the feature is
// enabled, and hides it when media goes away.
func (c *Controller) MediaChanged(ctx context.Context, present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = present
	if present && c.enabled {
		c.showLocked(ctx)
		return
	}
	if !present {
		c.hideLocked(ctx)
	}
}

// MediaReady re-shows the bar when enabled and hidden, as readiness
// events (canplay, loadeddata) arrive.
func (c *Controller) MediaReady(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.present && c.enabled && c.state == Hidden {
		c.showLocked(ctx)
	}
}

// Toggle flips and persists the preference, then shows or hides the bar.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	c.enabled = !c.enabled
	enabled := c.enabled
	if enabled && c.present {
		c.showLocked(ctx)
	} else {
		c.hideLocked(ctx)
	}
	c.mu.Unlock()

	if err := c.store.Set(ctx, map[string]string{settings.KeyOverlayEnabled: strconv.FormatBool(enabled)}); err != nil {
		return enabled, fmt.Errorf("overlay: persist toggle: %w", err)
	}
	return enabled, nil
}

// Show forces the bar when media is present. It reports whether the bar
// is (now) visible.
func (c *Controller) Show(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present {
		return false
	}
	c.showLocked(ctx)
	return c.state == Visible
}

// Close hides the bar without changing the preference.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hideLocked(ctx)
}

// Reconfigure rebuilds a visible bar from v. A hidden bar only records v.
func (c *Controller) Reconfigure(ctx context.Context, v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
	if c.state != Visible {
		return
	}
	c.state = Rebuilding
	if err := c.surface.BeginExit(ctx); err != nil {
		c.cfg.Logger.Debug("overlay: begin exit", "error", err)
	}
	c.schedule(func(ctx context.Context) {
		c.unmountLocked(ctx)
		c.mountLocked(ctx)
	})
}

// SetEnabled applies an externally changed preference without persisting.
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if enabled && c.present {
		c.showLocked(ctx)
	} else if !enabled {
		c.hideLocked(ctx)
	}
}

// SaveInputs persists the values typed in the bar.
func (c *Controller) SaveInputs(ctx context.Context, timeVal, durationVal *string) error {
	vals := map[string]string{}
	c.mu.Lock()
	if timeVal != nil {
		c.view.Time = *timeVal
		vals[settings.KeySavedTime] = *timeVal
	}
	if durationVal != nil {
		c.view.Duration = *durationVal
		vals[settings.KeySavedDuration] = *durationVal
	}
	c.mu.Unlock()
	if len(vals) == 0 {
		return nil
	}
	if err := c.store.Set(ctx, vals); err != nil {
		return fmt.Errorf("overlay: save inputs: %w", err)
	}
	return nil
}

// Status shows a message on a mounted bar. Success and error messages are
// replaced by the ready message after StatusReset.
func (c *Controller) Status(ctx context.Context, kind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	if err := c.surface.Status(ctx, kind, message); err != nil {
		c.cfg.Logger.Debug("overlay: status", "error", err)
	}
	if c.reset != nil {
		c.reset.Stop()
		c.reset = nil
	}
	if kind != StatusSuccess && kind != StatusError {
		return
	}
	c.reset = time.AfterFunc(c.cfg.StatusReset, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.mounted || !c.present {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		if err := c.surface.Status(ctx, StatusInfo, c.cfg.ReadyMessage); err != nil {
			c.cfg.Logger.Debug("overlay: status reset", "error", err)
		}
	})
}

// Notice forwards an external-media notice to the page.
func (c *Controller) Notice(ctx context.Context, n media.Notice) {
	if err := c.surface.Notice(ctx, n); err != nil {
		c.cfg.Logger.Debug("overlay: notice", "error", err)
	}
	c.Status(ctx, StatusInfo, "External video detected on "+n.Host)
}

func (c *Controller) showLocked(ctx context.Context) {
	switch c.state {
	case Visible, Rebuilding:
		return
	}
	c.cancelPending()
	if c.mounted {
		// Still playing its exit transition.
		c.unmountLocked(ctx)
	}
	c.mountLocked(ctx)
}

func (c *Controller) hideLocked(ctx context.Context) {
	if c.state == Hidden {
		return
	}
	c.state = Hidden
	c.cancelPending()
	if err := c.surface.BeginExit(ctx); err != nil {
		c.cfg.Logger.Debug("overlay: begin exit", "error", err)
	}
	c.schedule(c.unmountLocked)
}

func (c *Controller) mountLocked(ctx context.Context) {
	if err := c.surface.Mount(ctx, c.view); err != nil {
		c.cfg.Logger.Warn("overlay: mount", "error", err)
		c.state = Hidden
		return
	}
	c.mounted = true
	c.state = Visible
	if err := c.surface.Status(ctx, StatusInfo, c.cfg.ReadyMessage); err != nil {
		c.cfg.Logger.Debug("overlay: status", "error", err)
	}
}

func (c *Controller) unmountLocked(ctx context.Context) {
	if !c.mounted {
		return
	}
	if err := c.surface.Unmount(ctx); err != nil {
		c.cfg.Logger.Debug("overlay: unmount", "error", err)
	}
	c.mounted = false
	if c.reset != nil {
		c.reset.Stop()
		c.reset = nil
	}
}

// schedule runs fn under the lock after ExitDelay unless superseded.
func (c *Controller) schedule(fn func(context.Context)) {
	c.gen++
	gen := c.gen
	c.pending = time.AfterFunc(c.cfg.ExitDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.pending = nil
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		fn(ctx)
	})
}

func (c *Controller) cancelPending() {
	c.gen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}
