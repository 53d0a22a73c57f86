// CLAUDE:SUMMARY Site-aware discovery: host-selected selector group, generic group, frame fallback, deep shadow/any-media fallback.
// Package strategy runs ordered, host-aware selector groups against a
// document and funnels every miss into frame traversal.
package strategy

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hazyhaar/skipper/internal/classify"
	"github.com/hazyhaar/skipper/internal/frames"
	"github.com/hazyhaar/skipper/media"
)

// Selector labels used in Outcome for the fallbacks.
const (
	SelectorFrames = "frames"
	SelectorShadow = "shadow-root video"
	SelectorAny    = "video, audio"
)

// Outcome is the result of one discovery pass.
type Outcome struct {
	Media media.Node
	// Group and Selector name what produced Media.
	Group    string
	Selector string
	Frames   []media.FrameNode
	Notices  []media.Notice
	// Loading is true when Media was accepted only because it is still
	// loading (deep fallback).
	Loading bool
}

// Found reports whether a media element was resolved.
func (o Outcome) Found() bool { return o.Media != nil }

// Discoverer runs the strategy table.
type Discoverer struct {
	table     Table
	traverser *frames.Traverser
	logger    *slog.Logger
}

// NewDiscoverer builds a Discoverer. A nil traverser gets one configured
// with the table's external hosts.
func NewDiscoverer(table Table, traverser *frames.Traverser, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if traverser == nil {
		traverser = frames.New(frames.Config{ExternalHosts: table.ExternalHosts, Logger: logger})
	}
	return &Discoverer{table: table, traverser: traverser, logger: logger}
}

// Table returns the table in use.
func (d *Discoverer) Table() Table { return d.table }

// Discover runs the selected group, then the generic group, then an
// unconditional traversal of every frame.
func (d *Discoverer) Discover(ctx context.Context, doc media.Document) Outcome {
	var out Outcome
	host := documentHost(ctx, doc)
	g := d.table.Select(host)

	if d.tryGroup(ctx, doc, g, &out) {
		return out
	}
	if g.Name != d.table.Generic.Name {
		if d.tryGroup(ctx, doc, d.table.Generic, &out) {
			return out
		}
	}

	res := d.traverser.FindInFrames(ctx, doc, 0)
	out.Frames = append(out.Frames, res.Frames...)
	out.addNotices(res.Notices)
	if res.Found() {
		out.Media = res.Media
		out.Group = g.Name
		out.Selector = SelectorFrames
	}
	return out
}

// Deep scans open shadow roots for a usable video, then accepts any video
// or audio element that is still loading.
func (d *Discoverer) Deep(ctx context.Context, doc media.Document) Outcome {
	var out Outcome
	roots, err := doc.ShadowRoots(ctx)
	if err != nil {
		d.logger.Debug("strategy: shadow roots", "error", err)
	}
	for _, root := range roots {
		nodes, err := root.Query(ctx, "video")
		if err != nil {
			d.logger.Debug("strategy: shadow query", "error", err)
			continue
		}
		for _, n := range nodes {
			if desc, err := n.Describe(ctx); err == nil && classify.IsUsable(desc) {
				out.Media, out.Group, out.Selector = n, "deep", SelectorShadow
				return out
			}
		}
	}

	nodes, err := doc.Query(ctx, SelectorAny)
	if err != nil {
		d.logger.Debug("strategy: any-media query", "error", err)
		return out
	}
	for _, n := range nodes {
		if desc, err := n.Describe(ctx); err == nil && classify.IsLoading(desc) {
			out.Media, out.Group, out.Selector, out.Loading = n, "deep", SelectorAny, true
			return out
		}
	}
	return out
}

func (d *Discoverer) tryGroup(ctx context.Context, doc media.Document, g Group, out *Outcome) bool {
	for _, sel := range g.Selectors {
		if ctx.Err() != nil {
			return false
		}
		nodes, err := doc.Query(ctx, sel)
		if err != nil {
			d.logger.Debug("strategy: query", "group", g.Name, "selector", sel, "error", err)
			continue
		}
		for _, n := range nodes {
			switch strings.ToLower(n.Tag()) {
			case "iframe", "frame":
				res := d.traverser.Enter(ctx, n, 0)
				out.Frames = append(out.Frames, res.Frames...)
				out.addNotices(res.Notices)
				if res.Found() {
					out.Media, out.Group, out.Selector = res.Media, g.Name, sel
					return true
				}
			default:
				desc, err := n.Describe(ctx)
				if err != nil {
					d.logger.Debug("strategy: describe", "selector", sel, "error", err)
					continue
				}
				if classify.IsUsable(desc) {
					out.Media, out.Group, out.Selector = n, g.Name, sel
					return true
				}
			}
		}
	}
	return false
}

func (o *Outcome) addNotices(ns []media.Notice) {
	for _, n := range ns {
		dup := false
		for _, have := range o.Notices {
			if have.URL == n.URL {
				dup = true
				break
			}
		}
		if !dup {
			o.Notices = append(o.Notices, n)
		}
	}
}

func documentHost(ctx context.Context, doc media.Document) string {
	raw, err := doc.URL(ctx)
	if err != nil {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
