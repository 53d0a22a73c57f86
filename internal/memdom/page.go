package memdom

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/skipper/media"
)

var playerFrame = mustCompile(`video, audio, iframe[src*="player"]`)

// Page is a top-level Document that emits events as the test (or probe)
// mutates it.
type Page struct {
	*Document

	mu   sync.Mutex
	subs []chan media.Event
	// Dropped counts events lost because a subscriber was not draining.
	Dropped int
}

// NewPage parses markup as the top-level document of a fresh Site.
func NewPage(rawURL, markup string) (*Page, error) {
	return NewSite().NewPage(rawURL, markup)
}

// NewPage parses markup as a top-level document of s.
func (s *Site) NewPage(rawURL, markup string) (*Page, error) {
	d, err := s.Parse(rawURL, markup)
	if err != nil {
		return nil, err
	}
	return &Page{Document: d}, nil
}

// Watch implements media.Page.
func (p *Page) Watch(ctx context.Context) (<-chan media.Event, error) {
	ch := make(chan media.Event, 256)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, c := range p.subs {
			if c == ch {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

// ObserveMedia implements media.Page.
func (p *Page) ObserveMedia(_ context.Context, n media.Node) error {
	mn, ok := n.(*Node)
	if !ok {
		return fmt.Errorf("memdom: foreign node %T", n)
	}
	p.site.mu.Lock()
	p.site.observed[mn.n] = true
	p.site.mu.Unlock()
	return nil
}

// Observed reports whether readiness listeners were attached to the first
// element matching sel in doc.
func (p *Page) Observed(doc *Document, sel string) bool {
	n, err := doc.first(sel)
	if err != nil {
		return false
	}
	p.site.mu.RLock()
	defer p.site.mu.RUnlock()
	return p.site.observed[n]
}

// Emit delivers ev to every subscriber.
func (p *Page) Emit(ev media.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.Dropped++
		}
	}
}

// Insert parses fragment and appends it to the first element of doc
// matching parentSel, emitting one inserted event per top-level element.
func (p *Page) Insert(doc *Document, parentSel, fragment string) error {
	parent, err := doc.first(parentSel)
	if err != nil {
		return err
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("memdom: parse fragment: %w", err)
	}

	var events []media.Event
	p.site.mu.Lock()
	for _, n := range nodes {
		parent.AppendChild(n)
		if n.Type == html.ElementNode {
			events = append(events, media.Event{
				Kind:        media.EventInserted,
				Tag:         n.Data,
				MediaShaped: mediaShaped(n),
			})
		}
	}
	p.site.mu.Unlock()

	for _, ev := range events {
		p.Emit(ev)
	}
	return nil
}

// Remove detaches the first element of doc matching sel.
func (p *Page) Remove(doc *Document, sel string) error {
	n, err := doc.first(sel)
	if err != nil {
		return err
	}
	p.site.mu.Lock()
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	p.site.mu.Unlock()
	p.Emit(media.Event{Kind: media.EventRemoved, Tag: n.Data})
	return nil
}

// SetMedia updates simulated state and emits a readiness event when the
// element is observed and has current data.
func (p *Page) SetMedia(doc *Document, sel string, st State) error {
	if err := doc.SetMedia(sel, st); err != nil {
		return err
	}
	n, _ := doc.first(sel)
	p.site.mu.RLock()
	observed := p.site.observed[n]
	p.site.mu.RUnlock()
	if observed && st.ReadyState >= media.HaveCurrentData {
		p.Emit(media.Event{Kind: media.EventMediaReady, Tag: n.Data})
	}
	return nil
}

// PushState changes the URL without replacing the document.
func (p *Page) PushState(rawURL string) {
	p.site.mu.Lock()
	p.url = rawURL
	p.site.mu.Unlock()
	p.Emit(media.Event{Kind: media.EventNavigated, URL: rawURL})
}

// Load replaces the whole document, as a full navigation does. Every node
// handed out before becomes detached.
func (p *Page) Load(rawURL, markup string) error {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("memdom: parse %s: %w", rawURL, err)
	}
	p.site.mu.Lock()
	delete(p.site.docs, canonical(p.url))
	p.url = rawURL
	p.root = root
	p.site.docs[canonical(rawURL)] = p.Document
	p.site.mu.Unlock()
	p.Emit(media.Event{Kind: media.EventNavigated, URL: rawURL})
	return nil
}

// mediaShaped mirrors what a mutation observer looks for: a media element,
// any frame, or a subtree containing media or a player frame.
func mediaShaped(n *html.Node) bool {
	switch n.Data {
	case "video", "audio", "iframe":
		return true
	}
	return len(queryAll(n, playerFrame)) > 0
}
