package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/skipper/media"
	"github.com/hazyhaar/skipper/timecode"
)

// RegisterMCP registers the skipper tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerSkipToTool(srv)
	s.registerGoForwardTool(srv)
	s.registerOverlayTool(srv, "skipper_toggle_overlay", "Toggle the in-page skip bar and persist the choice.", media.ActionToggleOverlay)
	s.registerOverlayTool(srv, "skipper_show_overlay", "Show the in-page skip bar if a media element is present.", media.ActionShowOverlay)
	s.registerStatusTool(srv)
}

// --- skip_to ---

type skipToRequest struct {
	Time    string `json:"time,omitempty"`
	Seconds *int   `json:"seconds,omitempty"`
}

func (s *Server) registerSkipToTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "skipper_skip_to",
		Description: "Seek the page's media to an absolute position. Pass time as SS, MM:SS or HH:MM:SS, or seconds.",
		InputSchema: inputSchema(map[string]any{
			"time":    map[string]any{"type": "string", "description": "Absolute position, e.g. 1:23:45"},
			"seconds": map[string]any{"type": "integer", "description": "Absolute position in seconds"},
		}, nil),
	}

	decode := func(raw json.RawMessage) (any, error) {
		var r skipToRequest
		if err := unmarshalArgs(raw, &r); err != nil {
			return nil, err
		}
		secs, err := pickSeconds(r.Time, r.Seconds, timecode.ParseAbsolute)
		if err != nil {
			return nil, err
		}
		req := media.Request{Action: media.ActionSkipTo, Seconds: secs}
		return req, req.Validate()
	}

	registerTool(srv, tool, s.commandTool, decode)
}

// --- go_forward ---

type goForwardRequest struct {
	Duration string `json:"duration,omitempty"`
	Seconds  *int   `json:"seconds,omitempty"`
}

func (s *Server) registerGoForwardTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "skipper_go_forward",
		Description: "Advance the page's media from its current position. Pass duration as 90s, 1m30s, 1h or seconds.",
		InputSchema: inputSchema(map[string]any{
			"duration": map[string]any{"type": "string", "description": "Relative duration, e.g. 1m30s"},
			"seconds":  map[string]any{"type": "integer", "description": "Relative duration in seconds"},
		}, nil),
	}

	decode := func(raw json.RawMessage) (any, error) {
		var r goForwardRequest
		if err := unmarshalArgs(raw, &r); err != nil {
			return nil, err
		}
		secs, err := pickSeconds(r.Duration, r.Seconds, timecode.ParseRelative)
		if err != nil {
			return nil, err
		}
		req := media.Request{Action: media.ActionGoForward, Seconds: secs}
		return req, req.Validate()
	}

	registerTool(srv, tool, s.commandTool, decode)
}

// --- overlay ---

func (s *Server) registerOverlayTool(srv *mcp.Server, name, desc string, action media.Action) {
	tool := &mcp.Tool{
		Name:        name,
		Description: desc,
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	decode := func(json.RawMessage) (any, error) {
		return media.Request{Action: action}, nil
	}
	registerTool(srv, tool, s.commandTool, decode)
}

// --- status ---

func (s *Server) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "skipper_status",
		Description: "Report the resolution state, the last frame tree and the overlay state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	decode := func(json.RawMessage) (any, error) { return nil, nil }
	registerTool(srv, tool, s.status, decode)
}

// commandTool runs a command and turns a failed Response into a tool
// error, so MCP clients see the failure reason.
func (s *Server) commandTool(ctx context.Context, req any) (any, error) {
	out, err := s.command(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := out.(media.Response)
	if !resp.Success {
		if resp.ErrorKind != "" {
			return nil, fmt.Errorf("%s: %s", resp.ErrorKind, resp.Error)
		}
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}

func unmarshalArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// pickSeconds prefers the text form, parsed with the strict grammar.
func pickSeconds(text string, secs *int, parse func(string) (int, error)) (int, error) {
	if text != "" {
		return parse(text)
	}
	if secs != nil {
		return *secs, nil
	}
	return 0, fmt.Errorf("time or seconds is required: %w", media.ErrInvalidFormat)
}
