// CLAUDE:SUMMARY Static discovery without a browser: HTTP fetch, same-origin frames fetched recursively into an in-memory site, then the strategy table.
// Package probe runs discovery over fetched HTML. No browser, no scripts:
// it reports what a page declares in its markup, which covers plain
// <video> pages and tells which embed hosts a catalogue page uses.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/skipper/internal/frames"
	"github.com/hazyhaar/skipper/internal/memdom"
	"github.com/hazyhaar/skipper/internal/strategy"
	"github.com/hazyhaar/skipper/media"
)

// Report is the outcome of a probe.
type Report struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"status_code"`
	Found      bool              `json:"found"`
	Group      string            `json:"group,omitempty"`
	Selector   string            `json:"selector,omitempty"`
	Loading    bool              `json:"loading,omitempty"`
	Media      *media.Descriptor `json:"media,omitempty"`
	Frames     []media.FrameNode `json:"frames,omitempty"`
	Notices    []media.Notice    `json:"notices,omitempty"`
	Fetched    []string          `json:"fetched"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Prober fetches pages and runs discovery over them.
type Prober struct {
	client   *http.Client
	ua       string
	table    strategy.Table
	maxDepth int
	maxFetch int
	logger   *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option { return func(p *Prober) { p.client = c } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(p *Prober) { p.ua = ua } }

// WithTable replaces the strategy table. Default: strategy.DefaultTable().
func WithTable(t strategy.Table) Option { return func(p *Prober) { p.table = t } }

// WithMaxDepth bounds frame nesting. Default: frames.DefaultMaxDepth.
func WithMaxDepth(n int) Option { return func(p *Prober) { p.maxDepth = n } }

// WithMaxFetch bounds the number of documents fetched. Default: 32.
func WithMaxFetch(n int) Option { return func(p *Prober) { p.maxFetch = n } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(p *Prober) { p.logger = l } }

// New creates a Prober with sensible defaults.
func New(opts ...Option) *Prober {
	p := &Prober{
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
		table:    strategy.DefaultTable(),
		maxDepth: frames.DefaultMaxDepth,
		maxFetch: 32,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Probe fetches pageURL and its same-origin frames, then runs the
// strategy table and the deep fallback.
func (p *Prober) Probe(ctx context.Context, pageURL string) (*Report, error) {
	start := time.Now()
	site := memdom.NewSite()
	site.SameOriginOnly = true

	status, body, err := p.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	top, err := site.Parse(pageURL, body)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	rep := &Report{URL: pageURL, StatusCode: status, Fetched: []string{pageURL}}
	p.loadFrames(ctx, site, top, pageURL, 1, rep)

	disc := strategy.NewDiscoverer(p.table, frames.New(frames.Config{
		MaxDepth:      p.maxDepth,
		ExternalHosts: p.table.ExternalHosts,
		Logger:        p.logger,
	}), p.logger)

	out := disc.Discover(ctx, top)
	rep.Frames, rep.Notices = out.Frames, out.Notices
	if !out.Found() {
		deep := disc.Deep(ctx, top)
		if deep.Found() {
			out.Media, out.Group, out.Selector, out.Loading = deep.Media, deep.Group, deep.Selector, deep.Loading
		}
	}
	if out.Found() {
		rep.Found, rep.Group, rep.Selector, rep.Loading = true, out.Group, out.Selector, out.Loading
		if d, err := out.Media.Describe(ctx); err == nil {
			rep.Media = &d
		}
	}
	rep.Elapsed = time.Since(start)
	p.logger.Info("probe: done", "url", pageURL, "found", rep.Found, "fetched", len(rep.Fetched), "notices", len(rep.Notices))
	return rep, nil
}

// loadFrames fetches the same-origin frames of doc into site, depth first.
func (p *Prober) loadFrames(ctx context.Context, site *memdom.Site, doc *memdom.Document, docURL string, depth int, rep *Report) {
	if depth > p.maxDepth {
		return
	}
	nodes, err := doc.Frames(ctx)
	if err != nil {
		return
	}
	for _, n := range nodes {
		if len(rep.Fetched) >= p.maxFetch || ctx.Err() != nil {
			return
		}
		src, _ := n.Attr("src")
		abs, ok := sameOriginRef(docURL, src)
		if !ok || contains(rep.Fetched, abs) {
			continue
		}
		_, body, err := p.fetch(ctx, abs)
		if err != nil {
			p.logger.Debug("probe: frame fetch failed", "url", abs, "error", err)
			continue
		}
		rep.Fetched = append(rep.Fetched, abs)
		child, err := site.Parse(abs, body)
		if err != nil {
			continue
		}
		p.loadFrames(ctx, site, child, abs, depth+1, rep)
	}
}

func (p *Prober) fetch(ctx context.Context, pageURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("probe: new request: %w", err)
	}
	req.Header.Set("User-Agent", p.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("probe: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("probe: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, "", fmt.Errorf("probe: %s: status %d", pageURL, resp.StatusCode)
	}
	p.logger.Debug("probe: fetched", "url", pageURL, "status", resp.StatusCode, "size", len(body))
	return resp.StatusCode, string(body), nil
}

func sameOriginRef(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "about:") || strings.HasPrefix(ref, "javascript:") {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := b.ResolveReference(r)
	if abs.Scheme != b.Scheme || !strings.EqualFold(abs.Host, b.Host) {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
