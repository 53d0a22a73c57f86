package media

import (
	"encoding/json"
	"fmt"
)

// Action is a command protocol verb.
type Action string

const (
	ActionSkipTo        Action = "skipTo"
	ActionGoForward     Action = "goForward"
	ActionToggleOverlay Action = "toggleOverlay"
	ActionShowOverlay   Action = "showOverlay"
)

// Request is a command sent by a UI collaborator.
type Request struct {
	Action  Action `json:"action"`
	Seconds int    `json:"seconds,omitempty"`
}

// Validate checks the action and its argument.
func (r Request) Validate() error {
	switch r.Action {
	case ActionSkipTo:
		if r.Seconds < 0 {
			return fmt.Errorf("skipTo: negative seconds: %w", ErrInvalidFormat)
		}
	case ActionGoForward:
		if r.Seconds <= 0 {
			return fmt.Errorf("goForward: seconds must be positive: %w", ErrInvalidFormat)
		}
	case ActionToggleOverlay, ActionShowOverlay:
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}

// CommandResult is the outcome of a seek command.
type CommandResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Target    float64   `json:"target,omitempty"`
}

// Fail builds a failed result from err.
func Fail(err error) CommandResult {
	return CommandResult{Success: false, Message: err.Error(), ErrorKind: KindOf(err)}
}

// Response is the value returned to the caller of a Request.
type Response struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Enabled   *bool     `json:"enabled,omitempty"`
}

// ResponseFrom converts a CommandResult to a protocol response.
func ResponseFrom(res CommandResult) Response {
	if res.Success {
		return Response{Success: true, Message: res.Message}
	}
	return Response{Success: false, Error: res.Message, ErrorKind: res.ErrorKind}
}

// DecodeRequest parses a JSON request and validates it.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("media: decode request: %w", err)
	}
	return r, r.Validate()
}
