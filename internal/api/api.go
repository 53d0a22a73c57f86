// CLAUDE:SUMMARY Command API of the skipper daemon: chi HTTP routes, websocket event stream from the notify hub, MCP tools over the same endpoints.
// Package api serves the command protocol over HTTP, a websocket event
// stream and MCP tools. Every transport funnels into the same Endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/skipper/internal/engine"
	"github.com/hazyhaar/skipper/internal/notify"
	"github.com/hazyhaar/skipper/internal/overlay"
	"github.com/hazyhaar/skipper/media"
)

// Status is the daemon state reported by /v1/status and skipper_status.
type Status struct {
	Engine         engine.Snapshot `json:"engine"`
	Overlay        overlay.State   `json:"overlay"`
	OverlayEnabled bool            `json:"overlay_enabled"`
	View           overlay.View    `json:"view"`
	PageURL        string          `json:"page_url,omitempty"`
}

// Controller is what the API drives.
type Controller interface {
	Do(ctx context.Context, req media.Request) media.Response
	Status(ctx context.Context) Status
}

// Config controls a Server.
type Config struct {
	// Addr to listen on. Default: 127.0.0.1:8765.
	Addr string
	// MCP mounts the streamable MCP handler on /mcp.
	MCP bool
	// MaxBody bounds command bodies. Default: 64 KiB.
	MaxBody int64
	// EventBuffer is the per-subscriber queue of /v1/events. Default: 64.
	EventBuffer int
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8765"
	}
	if c.MaxBody <= 0 {
		c.MaxBody = 64 << 10
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server exposes a Controller.
type Server struct {
	cfg  Config
	ctrl Controller
	hub  *notify.Hub

	command Endpoint
	status  Endpoint
}

// New returns a Server. hub may be nil, in which case /v1/events is not
// routed.
func New(ctrl Controller, hub *notify.Hub, cfg Config) *Server {
	cfg.defaults()
	s := &Server{cfg: cfg, ctrl: ctrl, hub: hub}
	s.command = Logging(cfg.Logger, "command")(func(ctx context.Context, req any) (any, error) {
		return s.ctrl.Do(ctx, req.(media.Request)), nil
	})
	s.status = Logging(cfg.Logger, "status")(func(ctx context.Context, _ any) (any, error) {
		return s.ctrl.Status(ctx), nil
	})
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/command", s.handleCommand)
		r.Get("/status", s.handleStatus)
		r.Get("/frames", s.handleFrames)
		if s.hub != nil {
			r.Get("/events", s.handleEvents)
		}
	})
	if s.cfg.MCP {
		srv := mcp.NewServer(&mcp.Implementation{Name: "skipper", Version: "1.0.0"}, nil)
		s.RegisterMCP(srv)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	hs := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("api: listening", "addr", s.cfg.Addr, "mcp", s.cfg.MCP)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// requestLog tags the context with the request id and logs the request.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set("X-Request-ID", id)
		ctx := WithRequestID(WithTransport(r.Context(), "http"), id)
		s.cfg.Logger.Debug("api: request", "request_id", id, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, media.Response{Success: false, Error: err.Error()})
		return
	}
	req, err := media.DecodeRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, media.Response{Success: false, Error: err.Error(), ErrorKind: requestKind(err)})
		return
	}
	resp, err := s.command(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.status(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status(r.Context())
	frames := st.Engine.Frames
	if frames == nil {
		frames = []media.FrameNode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": frames, "notices": st.Engine.Notices})
}

// handleEvents streams hub events as JSON text messages. ?types=a,b
// filters by event type.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var filter map[string]bool
	if t := r.URL.Query().Get("types"); t != "" {
		filter = map[string]bool{}
		for _, v := range strings.Split(t, ",") {
			filter[strings.TrimSpace(v)] = true
		}
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("api: websocket accept", "error", err)
		return
	}
	defer ws.CloseNow()

	events, cancel := s.hub.Subscribe(s.cfg.EventBuffer)
	defer cancel()

	ctx := ws.CloseRead(r.Context())
	s.cfg.Logger.Debug("api: events subscriber", "request_id", RequestID(r.Context()))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				ws.Close(websocket.StatusGoingAway, "hub closed")
				return
			}
			if filter != nil && !filter[ev.Type] {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, ws, ev)
			wcancel()
			if err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					s.cfg.Logger.Debug("api: events write", "error", err)
				}
				return
			}
		}
	}
}

// requestKind maps decode failures to a protocol kind: a malformed
// argument is invalid_format, anything else carries no kind.
func requestKind(err error) media.ErrorKind {
	if errors.Is(err, media.ErrInvalidFormat) {
		return media.KindInvalidFormat
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
