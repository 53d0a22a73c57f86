// CLAUDE:SUMMARY Depth-first traversal of embedded frames looking for a usable media element, with external-player notices.
// Package frames walks embedded documents looking for a usable media
// element. Isolated frames are expected: they are recorded, optionally
// reported as an external-media notice, and skipped.
package frames

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hazyhaar/skipper/internal/classify"
	"github.com/hazyhaar/skipper/media"
)

// DefaultMaxDepth bounds recursion on self-referencing frame structures.
const DefaultMaxDepth = 15

// DefaultSelectors are tried, in order, inside every accessible frame.
var DefaultSelectors = []string{
	"video",
	".video-js video",
	".vjs-tech",
	".plyr video",
	".jwplayer video",
	`video[src*=".mp4"]`,
	`video[src*=".m3u8"]`,
	"video[controls]",
	"video[autoplay]",
}

// Config controls a Traverser.
type Config struct {
	// MaxDepth is the deepest nesting level visited. Default: 15.
	MaxDepth int
	// Selectors run inside each accessible frame. Default: DefaultSelectors.
	Selectors []string
	// ExternalHosts is the allow-list of known external player hosts.
	// A denied frame whose host contains one of them yields a Notice.
	ExternalHosts []string
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if len(c.Selectors) == 0 {
		c.Selectors = DefaultSelectors
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Traverser runs frame traversal passes. It holds no per-pass state and is
// safe for concurrent use.
type Traverser struct {
	cfg Config
}

// New returns a Traverser.
func New(cfg Config) *Traverser {
	cfg.defaults()
	return &Traverser{cfg: cfg}
}

// Result is the outcome of one pass.
type Result struct {
	// Media is the first usable element found, or nil.
	Media media.Node
	// Frames describes every boundary visited in this pass.
	Frames []media.FrameNode
	// Notices lists isolated frames hosted on a known external player.
	Notices []media.Notice
}

// Found reports whether the pass resolved an element.
func (r Result) Found() bool { return r.Media != nil }

// FindInFrames walks every frame of root depth first, in document order.
// It never fails: any error on a frame marks it inaccessible.
func (t *Traverser) FindInFrames(ctx context.Context, root media.Document, depth int) Result {
	var res Result
	res.Frames = t.walk(ctx, root, depth, &res)
	return res
}

// Enter runs the same algorithm starting at a single frame element, as
// returned by a strategy query.
func (t *Traverser) Enter(ctx context.Context, frame media.Node, depth int) Result {
	var res Result
	if fn, ok := t.visit(ctx, frame, depth, &res); ok {
		res.Frames = []media.FrameNode{fn}
	}
	return res
}

func (t *Traverser) walk(ctx context.Context, doc media.Document, depth int, res *Result) []media.FrameNode {
	if depth >= t.cfg.MaxDepth || ctx.Err() != nil {
		return nil
	}
	frames, err := doc.Frames(ctx)
	if err != nil {
		t.cfg.Logger.Debug("frames: list frames", "error", err)
		return nil
	}
	var nodes []media.FrameNode
	for _, f := range frames {
		fn, ok := t.visit(ctx, f, depth, res)
		if ok {
			nodes = append(nodes, fn)
		}
		if res.Found() {
			break
		}
	}
	return nodes
}

// visit inspects one boundary. The bool is false when depth is exhausted.
func (t *Traverser) visit(ctx context.Context, frame media.Node, depth int, res *Result) (media.FrameNode, bool) {
	if depth >= t.cfg.MaxDepth {
		return media.FrameNode{}, false
	}
	src, _ := frame.Attr("src")
	fn := media.FrameNode{Source: src, SourceHost: hostOf(src)}

	content, err := frame.Content(ctx)
	if err != nil {
		if !errors.Is(err, media.ErrFrameAccessDenied) {
			t.cfg.Logger.Debug("frames: content", "src", src, "error", err)
		}
		if n, ok := t.notice(src, fn.SourceHost); ok {
			res.Notices = append(res.Notices, n)
		}
		return fn, true
	}
	fn.Accessible = true

	if m := t.firstUsable(ctx, content); m != nil {
		res.Media = m
		return fn, true
	}
	fn.Children = t.walk(ctx, content, depth+1, res)
	return fn, true
}

func (t *Traverser) firstUsable(ctx context.Context, doc media.Document) media.Node {
	for _, sel := range t.cfg.Selectors {
		nodes, err := doc.Query(ctx, sel)
		if err != nil {
			t.cfg.Logger.Debug("frames: query", "selector", sel, "error", err)
			continue
		}
		for _, n := range nodes {
			d, err := n.Describe(ctx)
			if err != nil {
				continue
			}
			if classify.IsUsable(d) {
				return n
			}
		}
	}
	return nil
}

func (t *Traverser) notice(src, host string) (media.Notice, bool) {
	if host == "" {
		return media.Notice{}, false
	}
	if !MatchHost(host, t.cfg.ExternalHosts) {
		return media.Notice{}, false
	}
	return media.Notice{Host: host, URL: src}, true
}

// MatchHost reports whether host contains any of the patterns.
func MatchHost(host string, patterns []string) bool {
	host = strings.ToLower(host)
	for _, p := range patterns {
		if p != "" && strings.Contains(host, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func hostOf(src string) string {
	if src == "" {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
