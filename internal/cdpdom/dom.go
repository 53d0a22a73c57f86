// CLAUDE:SUMMARY media.Document/Node over a live tab via Rod: frames as frame pages, open shadow roots, element state read by Runtime evaluation.
// Package cdpdom implements the media abstractions over a live browser tab
// driven through the DevTools protocol with Rod.
package cdpdom

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/skipper/media"
)

// Document is a top-level page, a same-origin frame's content or an open
// shadow root.
type Document struct {
	page *rod.Page
	// root is set for shadow roots.
	root *rod.Element
}

// NewDocument wraps a page (or a frame page returned by Element.Frame).
func NewDocument(p *rod.Page) *Document { return &Document{page: p} }

func (d *Document) URL(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("cdpdom: url: %w", err)
	}
	return res.Value.Str(), nil
}

func (d *Document) ReadyState(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", fmt.Errorf("cdpdom: ready state: %w", err)
	}
	return res.Value.Str(), nil
}

func (d *Document) Query(ctx context.Context, selector string) ([]media.Node, error) {
	var (
		els rod.Elements
		err error
	)
	if d.root != nil {
		els, err = d.root.Context(ctx).Elements(selector)
	} else {
		els, err = d.page.Context(ctx).Elements(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("cdpdom: query %q: %w", selector, err)
	}
	return wrapAll(ctx, els), nil
}

func (d *Document) Frames(ctx context.Context) ([]media.Node, error) {
	return d.Query(ctx, "iframe, frame")
}

const shadowHostsJS = `function() {
	const scope = this && this.querySelectorAll ? this : document;
	return Array.from(scope.querySelectorAll('*')).filter(e => e.shadowRoot);
}`

func (d *Document) ShadowRoots(ctx context.Context) ([]media.Document, error) {
	var (
		hosts rod.Elements
		err   error
	)
	if d.root != nil {
		hosts, err = d.root.Context(ctx).ElementsByJS(rod.Eval(shadowHostsJS))
	} else {
		hosts, err = d.page.Context(ctx).ElementsByJS(rod.Eval(shadowHostsJS))
	}
	if err != nil {
		return nil, fmt.Errorf("cdpdom: shadow hosts: %w", err)
	}
	out := make([]media.Document, 0, len(hosts))
	for _, h := range hosts {
		root, err := h.Context(ctx).ShadowRoot()
		if err != nil {
			continue
		}
		out = append(out, &Document{page: d.page, root: root})
	}
	return out, nil
}

// Node is a live element. Tag and attributes are captured when the node
// is wrapped.
type Node struct {
	el    *rod.Element
	tag   string
	attrs map[string]string
}

func wrapAll(ctx context.Context, els rod.Elements) []media.Node {
	out := make([]media.Node, 0, len(els))
	for _, el := range els {
		n, err := wrap(ctx, el)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func wrap(ctx context.Context, el *rod.Element) (*Node, error) {
	desc, err := el.Context(ctx).Describe(0, false)
	if err != nil {
		return nil, fmt.Errorf("cdpdom: describe: %w", err)
	}
	n := &Node{el: el, tag: strings.ToLower(desc.LocalName), attrs: map[string]string{}}
	if n.tag == "" {
		n.tag = strings.ToLower(desc.NodeName)
	}
	for i := 0; i+1 < len(desc.Attributes); i += 2 {
		n.attrs[strings.ToLower(desc.Attributes[i])] = desc.Attributes[i+1]
	}
	return n, nil
}

// Element exposes the underlying Rod element.
func (n *Node) Element() *rod.Element { return n.el }

func (n *Node) Tag() string { return n.tag }

func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.attrs[strings.ToLower(name)]
	return v, ok
}

const describeJS = `() => {
	const d = this.duration;
	return {
		tag: this.tagName.toLowerCase(),
		duration: d === Infinity ? -1 : (Number.isFinite(d) ? d : 0),
		currentTime: Number.isFinite(this.currentTime) ? this.currentTime : 0,
		readyState: this.readyState || 0,
		networkState: this.networkState || 0,
		src: this.getAttribute('src') || '',
		currentSrc: this.currentSrc || '',
		dataSrc: this.getAttribute('data-src') || '',
		hasSource: !!(this.querySelector && this.querySelector('source')),
		hasSetup: this.hasAttribute('data-setup'),
		connected: this.isConnected,
	};
}`

type described struct {
	Tag          string  `json:"tag"`
	Duration     float64 `json:"duration"`
	CurrentTime  float64 `json:"currentTime"`
	ReadyState   int     `json:"readyState"`
	NetworkState int     `json:"networkState"`
	Src          string  `json:"src"`
	CurrentSrc   string  `json:"currentSrc"`
	DataSrc      string  `json:"dataSrc"`
	HasSource    bool    `json:"hasSource"`
	HasSetup     bool    `json:"hasSetup"`
	Connected    bool    `json:"connected"`
}

func (n *Node) Describe(ctx context.Context) (media.Descriptor, error) {
	res, err := n.el.Context(ctx).Eval(describeJS)
	if err != nil {
		return media.Descriptor{}, fmt.Errorf("cdpdom: describe element: %w", err)
	}
	var v described
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &v); err != nil {
		return media.Descriptor{}, fmt.Errorf("cdpdom: decode element state: %w", err)
	}
	d := media.Descriptor{
		Tag:            v.Tag,
		Duration:       v.Duration,
		CurrentTime:    v.CurrentTime,
		ReadyState:     v.ReadyState,
		NetworkState:   v.NetworkState,
		Src:            v.Src,
		CurrentSrc:     v.CurrentSrc,
		DataSrc:        v.DataSrc,
		HasSourceChild: v.HasSource,
		HasSetup:       v.HasSetup,
		Connected:      v.Connected,
	}
	if v.Duration < 0 {
		d.Duration = math.Inf(1)
	}
	return d, nil
}

func (n *Node) Seek(ctx context.Context, seconds float64) error {
	_, err := n.el.Context(ctx).Eval(`(t) => { this.currentTime = t; return this.currentTime; }`, seconds)
	if err != nil {
		return fmt.Errorf("cdpdom: seek: %w", err)
	}
	return nil
}

const accessibleJS = `() => {
	try { return !!(this.contentDocument && this.contentDocument.documentElement); }
	catch (e) { return false; }
}`

func (n *Node) Content(ctx context.Context) (media.Document, error) {
	if n.tag != "iframe" && n.tag != "frame" {
		return nil, fmt.Errorf("cdpdom: <%s> is not a frame", n.tag)
	}
	res, err := n.el.Context(ctx).Eval(accessibleJS)
	if err != nil {
		return nil, fmt.Errorf("cdpdom: frame probe: %v: %w", err, media.ErrFrameAccessDenied)
	}
	if !res.Value.Bool() {
		return nil, fmt.Errorf("cdpdom: frame %s: %w", n.attrs["src"], media.ErrFrameAccessDenied)
	}
	fp, err := n.el.Context(ctx).Frame()
	if err != nil {
		return nil, fmt.Errorf("cdpdom: enter frame: %v: %w", err, media.ErrFrameAccessDenied)
	}
	return &Document{page: fp}, nil
}
