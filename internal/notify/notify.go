// CLAUDE:SUMMARY Output backends for skipper events (engine transitions, notices, command results): stdout, webhook, callback, hub.
// Package notify defines output backends for skipper events.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeState   = "state"
	TypeMedia   = "media"
	TypeReady   = "ready"
	TypeNotice  = "notice"
	TypeAction  = "action"
	TypeCommand = "command"
)

// Event is the envelope delivered to every sink.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// NewEvent stamps an event with a time-ordered ID.
func NewEvent(typ string, data any) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{ID: id.String(), Type: typ, At: time.Now().UTC(), Data: data}
}

// Sink is the output interface.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Router fans out events to all sinks. One sink error does not block the
// others; errors are logged and the first is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a sink. Not safe once Send is in use.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, ev Event) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, ev); err != nil {
			r.logger.Warn("notify: send failed", "type", ev.Type, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Func delivers events through an in-process function call.
type Func func(ctx context.Context, ev Event) error

func (f Func) Send(ctx context.Context, ev Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, ev)
}

func (Func) Close() error { return nil }
