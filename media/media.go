// Package media defines the contract shared by every skipper component: the
// document and element abstractions the engine discovers media through, the
// events a page emits, and the command protocol exposed to UI collaborators.
//
// Two implementations exist: internal/cdpdom drives a live tab over the
// DevTools protocol, internal/memdom is an in-memory tree used by tests and
// by the static probe.
package media

import (
	"context"
	"math"
)

// HTMLMediaElement readyState values.
const (
	HaveNothing     = 0
	HaveMetadata    = 1
	HaveCurrentData = 2
	HaveFutureData  = 3
	HaveEnoughData  = 4
)

// HTMLMediaElement networkState values.
const (
	NetworkEmpty    = 0
	NetworkIdle     = 1
	NetworkLoading  = 2
	NetworkNoSource = 3
)

// Descriptor is a point-in-time view of an element, enough for the
// classifier to decide whether it is a usable media element.
type Descriptor struct {
	Tag            string  `json:"tag"`
	Duration       float64 `json:"duration"` // 0 = unknown, +Inf = live stream
	CurrentTime    float64 `json:"current_time"`
	ReadyState     int     `json:"ready_state"`
	NetworkState   int     `json:"network_state"`
	Src            string  `json:"src,omitempty"`
	CurrentSrc     string  `json:"current_src,omitempty"`
	DataSrc        string  `json:"data_src,omitempty"`
	HasSourceChild bool    `json:"has_source_child,omitempty"`
	HasSetup       bool    `json:"has_setup,omitempty"`
	Connected      bool    `json:"connected"`
}

// FiniteDuration reports whether the duration is known and bounded.
func (d Descriptor) FiniteDuration() bool {
	return d.Duration > 0 && !math.IsInf(d.Duration, 1) && !math.IsNaN(d.Duration)
}

// Node is an element in a (possibly nested) document.
type Node interface {
	// Tag returns the lower-case tag name.
	Tag() string
	// Attr returns the declared attribute value.
	Attr(name string) (string, bool)
	// Describe reads the element's live media state.
	Describe(ctx context.Context) (Descriptor, error)
	// Seek sets the playback position in seconds.
	Seek(ctx context.Context, seconds float64) error
	// Content returns the embedded document of a frame boundary. It returns
	// an error wrapping ErrFrameAccessDenied when the content cannot be
	// inspected.
	Content(ctx context.Context) (Document, error)
}

// Document is a queryable tree: a top-level page, a frame's content or an
// open shadow root.
type Document interface {
	// URL is the document location, best effort.
	URL(ctx context.Context) (string, error)
	// ReadyState is "loading", "interactive" or "complete".
	ReadyState(ctx context.Context) (string, error)
	// Query returns all elements matching a CSS selector in document order.
	Query(ctx context.Context, selector string) ([]Node, error)
	// Frames returns every iframe/frame boundary in document order.
	Frames(ctx context.Context) ([]Node, error)
	// ShadowRoots returns the open shadow roots hosted in this document.
	ShadowRoots(ctx context.Context) ([]Document, error)
}

// Page is the top-level document the engine is bound to. It adds the event
// stream the engine reacts to.
type Page interface {
	Document
	// Watch starts delivering events until ctx is cancelled.
	Watch(ctx context.Context) (<-chan Event, error)
	// ObserveMedia attaches readiness listeners to n; readiness is reported
	// as EventMediaReady on the Watch channel.
	ObserveMedia(ctx context.Context, n Node) error
}

// EventKind classifies page events.
type EventKind int

const (
	EventInserted EventKind = iota
	EventRemoved
	EventNavigated
	EventDocumentReset
	EventMediaReady
	EventAction
)

func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "inserted"
	case EventRemoved:
		return "removed"
	case EventNavigated:
		return "navigated"
	case EventDocumentReset:
		return "document_reset"
	case EventMediaReady:
		return "media_ready"
	case EventAction:
		return "action"
	}
	return "unknown"
}

// Event is a page event.
type Event struct {
	Kind EventKind
	// Tag of the inserted node for EventInserted.
	Tag string
	// MediaShaped is true when an inserted subtree contains a media element
	// or a player-like boundary.
	MediaShaped bool
	// URL is the new location for EventNavigated.
	URL string
	// Action and Value carry in-page overlay actions (EventAction).
	Action string
	Value  string
}

// FrameNode describes one embedded boundary visited during a traversal
// pass. It is rebuilt on every pass and never cached.
type FrameNode struct {
	Accessible bool        `json:"accessible"`
	SourceHost string      `json:"source_host,omitempty"`
	Source     string      `json:"source,omitempty"`
	Children   []FrameNode `json:"children,omitempty"`
}

// Notice reports media living behind a boundary that cannot be controlled.
type Notice struct {
	Host string `json:"host"`
	URL  string `json:"url"`
}
