package cdpdom

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/skipper/media"
)

//go:embed observer.js
var observerJS string

//go:embed overlay.js
var overlayJS string

// Binding is the Runtime binding the injected scripts report through.
const Binding = "__skipper_binding"

// Config for a Page.
type Config struct {
	// Buffer is the event channel capacity. Default: 256.
	Buffer int
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Page is the top-level document of a tab plus its event stream.
type Page struct {
	*Document
	cfg Config
	rod *rod.Page

	once    sync.Once
	events  chan media.Event
	closeMu sync.Mutex
	closed  bool
}

// New prepares p: it registers the binding and installs the observer and
// overlay scripts for the current and every future document.
func New(p *rod.Page, cfg Config) (*Page, error) {
	cfg.defaults()
	if err := (proto.RuntimeAddBinding{Name: Binding}).Call(p); err != nil {
		return nil, fmt.Errorf("cdpdom: add binding: %w", err)
	}
	if err := (proto.PageEnable{}).Call(p); err != nil {
		return nil, fmt.Errorf("cdpdom: page enable: %w", err)
	}
	if err := (proto.DOMEnable{}).Call(p); err != nil {
		cfg.Logger.Warn("cdpdom: DOM enable failed", "error", err)
	}
	for _, js := range []string{observerJS, overlayJS} {
		if _, err := p.EvalOnNewDocument(js); err != nil {
			return nil, fmt.Errorf("cdpdom: install script: %w", err)
		}
	}
	pg := &Page{Document: NewDocument(p), cfg: cfg, rod: p, events: make(chan media.Event, cfg.Buffer)}
	if err := pg.inject(p); err != nil {
		cfg.Logger.Warn("cdpdom: inject into current document failed", "error", err)
	}
	return pg, nil
}

// Rod exposes the underlying page.
func (p *Page) Rod() *rod.Page { return p.rod }

func (p *Page) inject(rp *rod.Page) error {
	for _, js := range []string{observerJS, overlayJS} {
		if _, err := rp.Eval(js); err != nil {
			return err
		}
	}
	return nil
}

// Watch starts the event pump. Only the first call starts it; later calls
// return the same channel.
func (p *Page) Watch(ctx context.Context) (<-chan media.Event, error) {
	p.once.Do(func() {
		wait := p.rod.Context(ctx).EachEvent(
			func(e *proto.RuntimeBindingCalled) {
				if e.Name != Binding {
					return
				}
				if ev, ok := decodeBinding(e.Payload, p.cfg.Logger); ok {
					p.send(ev)
				}
			},
			func(e *proto.PageFrameNavigated) {
				if e.Frame == nil || e.Frame.ParentID != "" {
					return
				}
				p.send(media.Event{Kind: media.EventNavigated, URL: e.Frame.URL})
			},
			func(e *proto.DOMDocumentUpdated) {
				p.send(media.Event{Kind: media.EventDocumentReset})
			},
		)
		go func() {
			wait()
			p.closeMu.Lock()
			p.closed = true
			close(p.events)
			p.closeMu.Unlock()
		}()
	})
	return p.events, nil
}

// send never blocks the CDP reader; overflow is dropped and logged.
func (p *Page) send(ev media.Event) {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.cfg.Logger.Warn("cdpdom: event dropped", "kind", ev.Kind)
	}
}

type bindingMsg struct {
	Type   string `json:"type"`
	Tag    string `json:"tag"`
	Media  bool   `json:"media"`
	URL    string `json:"url"`
	Action string `json:"action"`
	Value  string `json:"value"`
}

func decodeBinding(payload string, log *slog.Logger) (media.Event, bool) {
	var m bindingMsg
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		log.Debug("cdpdom: bad binding payload", "error", err)
		return media.Event{}, false
	}
	switch m.Type {
	case "inserted":
		return media.Event{Kind: media.EventInserted, Tag: m.Tag, MediaShaped: m.Media}, true
	case "removed":
		return media.Event{Kind: media.EventRemoved, Tag: m.Tag, MediaShaped: m.Media}, true
	case "navigate":
		return media.Event{Kind: media.EventNavigated, URL: m.URL}, true
	case "ready":
		return media.Event{Kind: media.EventMediaReady}, true
	case "action":
		return media.Event{Kind: media.EventAction, Action: m.Action, Value: m.Value}, true
	}
	log.Debug("cdpdom: unknown binding message", "type", m.Type)
	return media.Event{}, false
}

const observeMediaJS = `() => {
	if (this.__skipperObserved) return;
	this.__skipperObserved = true;
	const fire = (e) => {
		const b = window.__skipper_binding || (window.top && window.top.__skipper_binding);
		if (typeof b === 'function') b(JSON.stringify({ type: 'ready', event: e.type }));
	};
	this.addEventListener('canplay', fire);
	this.addEventListener('loadeddata', fire);
}`

// ObserveMedia attaches canplay/loadeddata listeners to n.
func (p *Page) ObserveMedia(ctx context.Context, n media.Node) error {
	cn, ok := n.(*Node)
	if !ok {
		return fmt.Errorf("cdpdom: observe: foreign node %T", n)
	}
	if _, err := cn.el.Context(ctx).Eval(observeMediaJS); err != nil {
		return fmt.Errorf("cdpdom: observe: %w", err)
	}
	return nil
}
