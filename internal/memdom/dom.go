// CLAUDE:SUMMARY In-memory media.Document/Node over x/net/html trees with simulated media state, frames and declarative shadow roots.
// Package memdom implements the media contract over parsed HTML trees held
// in memory. It backs the static probe and every engine test: media state
// (duration, readyState, ...) is simulated per element, frames resolve
// through a Site registry, and declarative shadow roots
// (<template shadowrootmode="open">) are hidden from normal queries.
package memdom

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/skipper/media"
)

// State is the simulated HTMLMediaElement state of one element.
type State struct {
	Duration     float64
	CurrentTime  float64
	ReadyState   int
	NetworkState int
	CurrentSrc   string
	// SeekErr, when set, is returned by Seek.
	SeekErr error
}

// Site is a set of documents reachable from each other through frames.
// All documents of a Site share one lock.
type Site struct {
	// SameOriginOnly denies frame content whose origin differs from the
	// embedding document, the way a browser enforces isolation.
	SameOriginOnly bool

	mu       sync.RWMutex
	docs     map[string]*Document
	attached map[*html.Node]*Document
	state    map[*html.Node]*State
	observed map[*html.Node]bool
	seeks    []float64
}

// NewSite returns an empty Site.
func NewSite() *Site {
	return &Site{
		docs:     make(map[string]*Document),
		attached: make(map[*html.Node]*Document),
		state:    make(map[*html.Node]*State),
		observed: make(map[*html.Node]bool),
	}
}

// Parse parses markup into a Document located at rawURL and registers it,
// making it reachable from frames whose src resolves to rawURL.
func (s *Site) Parse(rawURL, markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("memdom: parse %s: %w", rawURL, err)
	}
	d := &Document{site: s, url: rawURL, root: root, readyState: "complete"}
	s.mu.Lock()
	s.docs[canonical(rawURL)] = d
	s.mu.Unlock()
	return d, nil
}

// MustParse is Parse for tests and fixtures.
func (s *Site) MustParse(rawURL, markup string) *Document {
	d, err := s.Parse(rawURL, markup)
	if err != nil {
		panic(err)
	}
	return d
}

// Seeks returns every position applied through Seek, in order.
func (s *Site) Seeks() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.seeks...)
}

// Document is a parsed tree: a page, a frame's content or a shadow root.
type Document struct {
	site       *Site
	url        string
	root       *html.Node
	readyState string
	// host is the document a shadow root belongs to.
	host *Document
}

// Site returns the owning Site.
func (d *Document) Site() *Site { return d.site }

// URL implements media.Document.
func (d *Document) URL(context.Context) (string, error) {
	d.site.mu.RLock()
	defer d.site.mu.RUnlock()
	return d.url, nil
}

// ReadyState implements media.Document.
func (d *Document) ReadyState(context.Context) (string, error) {
	d.site.mu.RLock()
	defer d.site.mu.RUnlock()
	return d.readyState, nil
}

// SetReadyState overrides the document readiness ("loading", ...).
func (d *Document) SetReadyState(rs string) {
	d.site.mu.Lock()
	d.readyState = rs
	d.site.mu.Unlock()
}

// Query implements media.Document.
func (d *Document) Query(_ context.Context, selector string) ([]media.Node, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.site.mu.RLock()
	defer d.site.mu.RUnlock()
	return d.wrap(queryAll(d.root, m)), nil
}

var frameSelector = mustCompile("iframe, frame")

// Frames implements media.Document.
func (d *Document) Frames(context.Context) ([]media.Node, error) {
	d.site.mu.RLock()
	defer d.site.mu.RUnlock()
	return d.wrap(queryAll(d.root, frameSelector)), nil
}

// ShadowRoots implements media.Document. Only open roots are returned.
func (d *Document) ShadowRoots(context.Context) ([]media.Document, error) {
	d.site.mu.RLock()
	defer d.site.mu.RUnlock()
	var out []media.Document
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.Data == "template" {
				if strings.EqualFold(getAttr(c, "shadowrootmode"), "open") {
					out = append(out, &Document{site: d.site, url: d.url, root: c, readyState: "complete", host: d.top()})
				}
				continue
			}
			walk(c)
		}
	}
	walk(d.root)
	return out, nil
}

// Attach binds a frame element to a document regardless of its src.
func (d *Document) Attach(frameSelector string, content *Document) error {
	n, err := d.first(frameSelector)
	if err != nil {
		return err
	}
	d.site.mu.Lock()
	d.site.attached[n] = content
	d.site.mu.Unlock()
	return nil
}

// SetMedia replaces the simulated state of the first element matching sel.
func (d *Document) SetMedia(sel string, st State) error {
	n, err := d.first(sel)
	if err != nil {
		return err
	}
	d.site.mu.Lock()
	cp := st
	d.site.state[n] = &cp
	d.site.mu.Unlock()
	return nil
}

// Element returns the first element matching sel.
func (d *Document) Element(sel string) (*Node, error) {
	n, err := d.first(sel)
	if err != nil {
		return nil, err
	}
	return &Node{n: n, doc: d}, nil
}

func (d *Document) first(sel string) (*html.Node, error) {
	m, err := compile(sel)
	if err != nil {
		return nil, err
	}
	d.site.mu.RLock()
	defer d.site.mu.RUnlock()
	found := queryAll(d.root, m)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoMatch, sel)
	}
	return found[0], nil
}

func (d *Document) top() *Document {
	if d.host != nil {
		return d.host
	}
	return d
}

func (d *Document) wrap(ns []*html.Node) []media.Node {
	out := make([]media.Node, len(ns))
	for i, n := range ns {
		out[i] = &Node{n: n, doc: d}
	}
	return out
}

// Node is an element of a Document.
type Node struct {
	n   *html.Node
	doc *Document
}

// Same reports whether two nodes wrap the same element.
func (n *Node) Same(o media.Node) bool {
	on, ok := o.(*Node)
	return ok && on.n == n.n
}

// Tag implements media.Node.
func (n *Node) Tag() string { return n.n.Data }

// Attr implements media.Node.
func (n *Node) Attr(name string) (string, bool) {
	n.doc.site.mu.RLock()
	defer n.doc.site.mu.RUnlock()
	return lookupAttr(n.n, strings.ToLower(name))
}

// Describe implements media.Node.
func (n *Node) Describe(context.Context) (media.Descriptor, error) {
	s := n.doc.site
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := media.Descriptor{
		Tag:       n.n.Data,
		Src:       getAttr(n.n, "src"),
		DataSrc:   getAttr(n.n, "data-src"),
		Connected: n.connected(),
	}
	_, d.HasSetup = lookupAttr(n.n, "data-setup")
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "source" {
			d.HasSourceChild = true
			break
		}
	}
	if st, ok := s.state[n.n]; ok {
		d.Duration = st.Duration
		d.CurrentTime = st.CurrentTime
		d.ReadyState = st.ReadyState
		d.NetworkState = st.NetworkState
		d.CurrentSrc = st.CurrentSrc
	}
	return d, nil
}

// Seek implements media.Node.
func (n *Node) Seek(_ context.Context, seconds float64) error {
	s := n.doc.site
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[n.n]
	if !ok {
		st = &State{}
		s.state[n.n] = st
	}
	if st.SeekErr != nil {
		return st.SeekErr
	}
	st.CurrentTime = seconds
	s.seeks = append(s.seeks, seconds)
	return nil
}

// Content implements media.Node for iframe and frame elements.
func (n *Node) Content(context.Context) (media.Document, error) {
	if n.n.Data != "iframe" && n.n.Data != "frame" {
		return nil, fmt.Errorf("memdom: <%s> is not a frame", n.n.Data)
	}
	s := n.doc.site
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.attached[n.n]; ok {
		return d, nil
	}
	src := getAttr(n.n, "src")
	abs, err := resolve(n.doc.url, src)
	if err != nil {
		return nil, fmt.Errorf("memdom: frame src %q: %w", src, media.ErrFrameAccessDenied)
	}
	d, ok := s.docs[canonical(abs)]
	if !ok {
		return nil, fmt.Errorf("memdom: frame %s not loaded: %w", abs, media.ErrFrameAccessDenied)
	}
	if s.SameOriginOnly && !sameOrigin(n.doc.url, abs) {
		return nil, fmt.Errorf("memdom: frame %s is cross-origin: %w", abs, media.ErrFrameAccessDenied)
	}
	return d, nil
}

// connected reports whether the element is still reachable from the
// current root of its (host) document.
func (n *Node) connected() bool {
	root := n.doc.top().root
	for p := n.n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// ErrNoMatch is returned by mutation helpers when the selector matches nothing.
var ErrNoMatch = errors.New("memdom: no matching element")

func resolve(base, ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty src")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func sameOrigin(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && strings.EqualFold(ua.Host, ub.Host)
}

func canonical(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return u.String()
}
