package engine

import (
	"time"

	"github.com/hazyhaar/skipper/media"
)

// UpdateKind classifies engine updates.
type UpdateKind string

const (
	// UpdateState is a state machine transition.
	UpdateState UpdateKind = "state"
	// UpdateMedia reports that the resolved element appeared or went away.
	UpdateMedia UpdateKind = "media"
	// UpdateReady reports a readiness event (canplay, loadeddata) on the
	// resolved element.
	UpdateReady UpdateKind = "ready"
	// UpdateNotice reports media behind an isolated frame.
	UpdateNotice UpdateKind = "notice"
	// UpdateAction relays an in-page overlay action.
	UpdateAction UpdateKind = "action"
)

// Update is delivered to every listener registered with Subscribe.
type Update struct {
	Kind UpdateKind `json:"kind"`
	At   time.Time  `json:"at"`

	From State `json:"from,omitempty"`
	To   State `json:"to,omitempty"`
	// Present is true when a resolved element is bound after this update.
	Present  bool   `json:"present"`
	Reason   string `json:"reason,omitempty"`
	Group    string `json:"group,omitempty"`
	Selector string `json:"selector,omitempty"`

	Notice media.Notice `json:"notice,omitzero"`

	Action string `json:"action,omitempty"`
	Value  string `json:"value,omitempty"`
}
