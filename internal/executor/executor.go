// CLAUDE:SUMMARY Seek commands against the resolved media: resolve-once, bounded readiness wait, clamped target, status to the overlay.
// Package executor applies seek commands to the element held by the
// resolution engine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hazyhaar/skipper/internal/classify"
	"github.com/hazyhaar/skipper/internal/poll"
	"github.com/hazyhaar/skipper/media"
	"github.com/hazyhaar/skipper/timecode"
)

// Resolver is the engine surface the executor needs.
type Resolver interface {
	Media() media.Node
	ResolveNow(ctx context.Context) (media.Node, error)
}

// StatusFunc receives informational status for the overlay. It must not
// block.
type StatusFunc func(kind, message string)

// Config controls an Executor.
type Config struct {
	// PollInterval between readiness checks. Default: 300ms.
	PollInterval time.Duration
	// ReadyTimeout is the readiness wait ceiling. Default: 15s.
	ReadyTimeout time.Duration
	Status       StatusFunc
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 300 * time.Millisecond
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 15 * time.Second
	}
	if c.Status == nil {
		c.Status = func(string, string) {}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Executor runs seekTo and advanceBy.
type Executor struct {
	cfg      Config
	resolver Resolver
}

// New returns an Executor bound to r.
func New(r Resolver, cfg Config) *Executor {
	cfg.defaults()
	return &Executor{cfg: cfg, resolver: r}
}

// SeekTo moves playback to seconds, clamped into [0, duration] when the
// duration is finite.
func (x *Executor) SeekTo(ctx context.Context, seconds int) media.CommandResult {
	return x.run(ctx, "skipTo", func(media.Descriptor) float64 { return float64(seconds) })
}

// AdvanceBy moves playback forward by seconds from the current position,
// with the same clamp.
func (x *Executor) AdvanceBy(ctx context.Context, seconds int) media.CommandResult {
	return x.run(ctx, "goForward", func(d media.Descriptor) float64 {
		cur := d.CurrentTime
		if math.IsNaN(cur) || cur < 0 {
			cur = 0
		}
		return cur + float64(seconds)
	})
}

// Do dispatches a seek request.
func (x *Executor) Do(ctx context.Context, req media.Request) media.CommandResult {
	if err := req.Validate(); err != nil {
		return media.Fail(err)
	}
	switch req.Action {
	case media.ActionSkipTo:
		return x.SeekTo(ctx, req.Seconds)
	case media.ActionGoForward:
		return x.AdvanceBy(ctx, req.Seconds)
	}
	return media.Fail(fmt.Errorf("executor: %s is not a seek action", req.Action))
}

func (x *Executor) run(ctx context.Context, op string, target func(media.Descriptor) float64) media.CommandResult {
	node, err := x.acquire(ctx)
	if err != nil {
		return x.fail(op, err)
	}

	d, err := x.waitReady(ctx, node)
	if err != nil {
		return x.fail(op, err)
	}

	pos := Clamp(target(d), d)
	if err := node.Seek(ctx, pos); err != nil {
		return x.fail(op, fmt.Errorf("executor: %s: seek: %v: %w", op, err, media.ErrMediaNotReady))
	}

	msg := fmt.Sprintf("Playback moved to %s", timecode.Format(pos))
	x.cfg.Status("success", msg)
	x.cfg.Logger.Info("executor: seek", "op", op, "target", pos)
	return media.CommandResult{Success: true, Message: msg, Target: pos}
}

// acquire returns the resolved element, resolving once synchronously.
func (x *Executor) acquire(ctx context.Context) (media.Node, error) {
	if n := x.resolver.Media(); n != nil {
		return n, nil
	}
	n, err := x.resolver.ResolveNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: resolve: %w", err)
	}
	if n == nil {
		return nil, media.ErrNoMediaFound
	}
	return n, nil
}

// waitReady polls until the element is usable with a known duration or
// enough buffered data.
func (x *Executor) waitReady(ctx context.Context, n media.Node) (media.Descriptor, error) {
	var last media.Descriptor
	check := func(ctx context.Context) (bool, error) {
		d, err := n.Describe(ctx)
		if err != nil {
			return false, nil
		}
		last = d
		return classify.IsReady(d), nil
	}

	ok, _ := check(ctx)
	if ok {
		return last, nil
	}
	x.cfg.Status("loading", "Waiting for the video to load...")
	err := poll.Until(ctx, x.cfg.PollInterval, x.cfg.ReadyTimeout, check)
	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, poll.ErrTimeout):
		return last, media.ErrMediaNotReady
	default:
		return last, fmt.Errorf("executor: wait ready: %w", err)
	}
}

func (x *Executor) fail(op string, err error) media.CommandResult {
	res := media.Fail(err)
	res.Message = describe(err)
	x.cfg.Status("error", res.Message)
	x.cfg.Logger.Warn("executor: command failed", "op", op, "kind", res.ErrorKind, "error", err)
	return res
}

func describe(err error) string {
	switch media.KindOf(err) {
	case media.KindNoMediaFound:
		return "No video found on the page"
	case media.KindMediaNotReady:
		return "Timeout: video not ready"
	case media.KindInvalidFormat:
		return "Invalid format"
	}
	return err.Error()
}

// Clamp bounds a target position into [0, duration] when the duration is
// finite and known; otherwise only negatives are raised to 0.
func Clamp(target float64, d media.Descriptor) float64 {
	if target < 0 {
		target = 0
	}
	if d.FiniteDuration() && target > d.Duration {
		return d.Duration
	}
	return target
}
