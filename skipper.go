// CLAUDE:SUMMARY Per-page orchestrator: engine updates drive the overlay and the sinks, commands from HTTP/MCP/overlay go to the executor or the overlay.
// Package skipper controls the media element of one page. It wires the
// resolution engine, the command executor, the overlay controller and the
// event sinks, and serves the command protocol on top of them.
package skipper

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/skipper/internal/api"
	"github.com/hazyhaar/skipper/internal/engine"
	"github.com/hazyhaar/skipper/internal/executor"
	"github.com/hazyhaar/skipper/internal/frames"
	"github.com/hazyhaar/skipper/internal/notify"
	"github.com/hazyhaar/skipper/internal/overlay"
	"github.com/hazyhaar/skipper/internal/settings"
	"github.com/hazyhaar/skipper/internal/strategy"
	"github.com/hazyhaar/skipper/media"
	"github.com/hazyhaar/skipper/timecode"
)

// Overlay actions sent by the in-page bar.
const (
	ActionSkip          = "skip"
	ActionForward       = "forward"
	ActionClose         = "close"
	ActionInputTime     = "input_time"
	ActionInputDuration = "input_duration"
)

// Config assembles the component configurations.
type Config struct {
	Table    strategy.Table
	Frames   frames.Config
	Engine   engine.Config
	Executor executor.Config
	Overlay  overlay.Config
	// Queue buffers engine updates waiting for the overlay. Default: 64.
	Queue int
	// EventBuffer is the per-sink delivery buffer. Default: 256.
	EventBuffer int
	// SinkDrain bounds how long shutdown waits on buffered events. Default: 5s.
	SinkDrain time.Duration
	// CallTimeout bounds overlay calls made outside a request. Default: 5s.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if len(c.Table.Groups) == 0 && len(c.Table.Generic.Selectors) == 0 {
		c.Table = strategy.DefaultTable()
	}
	if c.Queue <= 0 {
		c.Queue = 64
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	if c.SinkDrain <= 0 {
		c.SinkDrain = 5 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Frames.Logger == nil {
		c.Frames.Logger = c.Logger
	}
	if len(c.Frames.ExternalHosts) == 0 {
		c.Frames.ExternalHosts = c.Table.ExternalHosts
	}
	if c.Engine.Logger == nil {
		c.Engine.Logger = c.Logger
	}
	if c.Executor.Logger == nil {
		c.Executor.Logger = c.Logger
	}
	if c.Overlay.Logger == nil {
		c.Overlay.Logger = c.Logger
	}
}

// Controller runs one page.
type Controller struct {
	cfg     Config
	page    media.Page
	engine  *engine.Engine
	exec    *executor.Executor
	overlay *overlay.Controller
	sinks   *notify.Router
	logger  *slog.Logger

	updates chan engine.Update
	done    chan struct{}
	runOnce sync.Once
	tasks   sync.WaitGroup
}

// New builds a Controller for page. The overlay is drawn on surface and
// its preferences live in store. Each sink is fed from its own queue.
func New(page media.Page, surface overlay.Surface, store settings.Store, cfg Config, sinks ...notify.Sink) *Controller {
	cfg.defaults()
	queued := make([]notify.Sink, len(sinks))
	for i, s := range sinks {
		queued[i] = notify.NewQueue(s, notify.QueueConfig{Size: cfg.EventBuffer, DrainTimeout: cfg.SinkDrain, Logger: cfg.Logger})
	}
	c := &Controller{
		cfg:     cfg,
		page:    page,
		logger:  cfg.Logger,
		sinks:   notify.NewRouter(cfg.Logger, queued...),
		updates: make(chan engine.Update, cfg.Queue),
		done:    make(chan struct{}),
	}
	disc := strategy.NewDiscoverer(cfg.Table, frames.New(cfg.Frames), cfg.Logger)
	c.engine = engine.New(page, disc, cfg.Engine)
	c.overlay = overlay.New(surface, store, cfg.Overlay)

	xc := cfg.Executor
	xc.Status = c.status
	c.exec = executor.New(c.engine, xc)

	c.engine.Subscribe(c.enqueue)
	return c
}

// Engine returns the resolution engine.
func (c *Controller) Engine() *engine.Engine { return c.engine }

// Overlay returns the overlay controller.
func (c *Controller) Overlay() *overlay.Controller { return c.overlay }

// Run loads the overlay preferences and drives the page until ctx is
// cancelled. It may be called once.
func (c *Controller) Run(ctx context.Context) error {
	err := errors.New("skipper: already running")
	c.runOnce.Do(func() { err = c.run(ctx) })
	return err
}

func (c *Controller) run(parent context.Context) error {
	if err := c.overlay.Load(parent); err != nil {
		c.logger.Warn("skipper: load overlay settings", "error", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		c.consume(ctx)
	}()

	c.logger.Info("skipper: running")
	err := c.engine.Run(ctx)
	close(c.done)
	cancel()
	<-consumed
	c.tasks.Wait()

	if cerr := c.sinks.Close(); cerr != nil {
		c.logger.Warn("skipper: close sinks", "error", cerr)
	}
	if parent.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// enqueue runs on the engine loop. It blocks only while the queue is
// full, never on engine calls.
func (c *Controller) enqueue(u engine.Update) {
	select {
	case c.updates <- u:
	case <-c.done:
	}
}

func (c *Controller) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-c.updates:
			c.apply(ctx, u)
		}
	}
}

func (c *Controller) apply(ctx context.Context, u engine.Update) {
	switch u.Kind {
	case engine.UpdateState:
		c.publish(ctx, notify.TypeState, u)
	case engine.UpdateMedia:
		c.overlay.MediaChanged(ctx, u.Present)
		c.publish(ctx, notify.TypeMedia, u)
	case engine.UpdateReady:
		c.overlay.MediaReady(ctx)
		c.publish(ctx, notify.TypeReady, u)
	case engine.UpdateNotice:
		c.overlay.Notice(ctx, u.Notice)
		c.publish(ctx, notify.TypeNotice, u.Notice)
	case engine.UpdateAction:
		c.publish(ctx, notify.TypeAction, u)
		c.action(ctx, u.Action, u.Value)
	}
}

// action handles a click or an input change on the bar. Values typed in
// the bar use the strict grammar.
func (c *Controller) action(ctx context.Context, action, value string) {
	value = strings.TrimSpace(value)
	switch action {
	case ActionSkip:
		if value == "" {
			c.overlay.Status(ctx, overlay.StatusError, "Enter a time (e.g. 2:30)")
			return
		}
		secs, err := timecode.ParseAbsolute(value)
		if err != nil {
			c.overlay.Status(ctx, overlay.StatusError, "Invalid time: use ss, mm:ss or hh:mm:ss")
			return
		}
		c.overlay.Status(ctx, overlay.StatusLoading, "Skipping...")
		c.async(ctx, media.Request{Action: media.ActionSkipTo, Seconds: secs})

	case ActionForward:
		if value == "" {
			c.overlay.Status(ctx, overlay.StatusError, "Enter a duration (e.g. 1m 30s)")
			return
		}
		secs, err := timecode.ParseRelative(value)
		if err != nil {
			c.overlay.Status(ctx, overlay.StatusError, "Invalid duration: use 90, 90s, 1m 30s or 1h")
			return
		}
		c.overlay.Status(ctx, overlay.StatusLoading, "Moving forward...")
		c.async(ctx, media.Request{Action: media.ActionGoForward, Seconds: secs})

	case ActionClose:
		c.overlay.Close(ctx)

	case ActionInputTime:
		if err := c.overlay.SaveInputs(ctx, &value, nil); err != nil {
			c.logger.Warn("skipper: save time input", "error", err)
		}

	case ActionInputDuration:
		if err := c.overlay.SaveInputs(ctx, nil, &value); err != nil {
			c.logger.Warn("skipper: save duration input", "error", err)
		}

	default:
		c.logger.Debug("skipper: unknown overlay action", "action", action)
	}
}

// async runs a seek off the update queue: the executor may call back
// into the engine loop, which could be blocked on a full queue.
func (c *Controller) async(ctx context.Context, req media.Request) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		c.Do(api.WithTransport(ctx, "overlay"), req)
	}()
}

// Do executes a protocol request.
func (c *Controller) Do(ctx context.Context, req media.Request) media.Response {
	if err := req.Validate(); err != nil {
		return media.Response{Success: false, Error: err.Error(), ErrorKind: media.KindOf(err)}
	}

	var resp media.Response
	switch req.Action {
	case media.ActionSkipTo, media.ActionGoForward:
		res := c.exec.Do(ctx, req)
		c.publish(ctx, notify.TypeCommand, commandEvent{Request: req, Result: res, Transport: api.Transport(ctx)})
		return media.ResponseFrom(res)

	case media.ActionToggleOverlay:
		enabled, err := c.overlay.Toggle(ctx)
		if err != nil {
			c.logger.Warn("skipper: toggle overlay", "error", err)
		}
		resp = media.Response{Success: true, Enabled: &enabled}

	case media.ActionShowOverlay:
		if c.overlay.Show(ctx) {
			resp = media.Response{Success: true, Message: "Overlay shown"}
		} else {
			resp = media.Response{Success: true, Message: "No video on the page yet"}
		}
	}
	c.publish(ctx, notify.TypeCommand, commandEvent{Request: req, Response: &resp, Transport: api.Transport(ctx)})
	return resp
}

// Status reports the engine and overlay state.
func (c *Controller) Status(ctx context.Context) api.Status {
	st := api.Status{
		Engine:         c.engine.Snapshot(),
		Overlay:        c.overlay.State(),
		OverlayEnabled: c.overlay.Enabled(),
		View:           c.overlay.View(),
	}
	if u, err := c.page.URL(ctx); err == nil {
		st.PageURL = u
	}
	return st
}

// ApplySettings reacts to settings written by another process: the
// overlay preference and the saved inputs. Writes made by the overlay
// itself come back here unchanged and are ignored.
func (c *Controller) ApplySettings(ctx context.Context, vals map[string]string) error {
	c.overlay.SetEnabled(ctx, settings.Enabled(vals))
	v := overlay.View{Time: vals[settings.KeySavedTime], Duration: vals[settings.KeySavedDuration]}
	if v != c.overlay.View() {
		c.overlay.Reconfigure(ctx, v)
	}
	return nil
}

type commandEvent struct {
	Request   media.Request       `json:"request"`
	Result    media.CommandResult `json:"result,omitzero"`
	Response  *media.Response     `json:"response,omitempty"`
	Transport string              `json:"transport"`
}

func (c *Controller) status(kind, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	c.overlay.Status(ctx, kind, message)
}

func (c *Controller) publish(ctx context.Context, typ string, data any) {
	if c.sinks.Len() == 0 {
		return
	}
	if err := c.sinks.Send(ctx, notify.NewEvent(typ, data)); err != nil {
		c.logger.Debug("skipper: publish", "type", typ, "error", err)
	}
}
