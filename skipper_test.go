package skipper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/skipper/internal/engine"
	"github.com/hazyhaar/skipper/internal/memdom"
	"github.com/hazyhaar/skipper/internal/notify"
	"github.com/hazyhaar/skipper/internal/overlay"
	"github.com/hazyhaar/skipper/internal/settings"
	"github.com/hazyhaar/skipper/media"
)

type fakeSurface struct {
	mu       sync.Mutex
	mounted  bool
	statuses []string
	notices  []media.Notice
}

func (f *fakeSurface) Mount(context.Context, overlay.View) error {
	f.mu.Lock()
	f.mounted = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSurface) BeginExit(context.Context) error { return nil }

func (f *fakeSurface) Unmount(context.Context) error {
	f.mu.Lock()
	f.mounted = false
	f.mu.Unlock()
	return nil
}

func (f *fakeSurface) Status(_ context.Context, kind, msg string) error {
	f.mu.Lock()
	f.statuses = append(f.statuses, kind+":"+msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSurface) Notice(_ context.Context, n media.Notice) error {
	f.mu.Lock()
	f.notices = append(f.notices, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeSurface) isMounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounted
}

func (f *fakeSurface) hasStatus(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.statuses {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

type events struct {
	mu  sync.Mutex
	got []notify.Event
}

func (e *events) sink() notify.Sink {
	return notify.Func(func(_ context.Context, ev notify.Event) error {
		e.mu.Lock()
		e.got = append(e.got, ev)
		e.mu.Unlock()
		return nil
	})
}

func (e *events) count(typ string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.got {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func testConfig() Config {
	return Config{
		Engine: engine.Config{
			SettleDelay:       5 * time.Millisecond,
			RetryDelay:        10 * time.Millisecond,
			MaxAttempts:       3,
			LivenessInterval:  time.Hour,
			RecheckDelay:      10 * time.Millisecond,
			NavigationDelay:   10 * time.Millisecond,
			ReadyPollInterval: 2 * time.Millisecond,
		},
		Overlay:   overlay.Config{ExitDelay: 5 * time.Millisecond, StatusReset: time.Hour},
		SinkDrain: 10 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	waitWithin(t, 3*time.Second, what, cond)
}

func waitWithin(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	page    *memdom.Page
	surface *fakeSurface
	store   *settings.Memory
	events  *events
	ctrl    *Controller
}

// playable is a loaded 10 minute video positioned at 1:40.
var playable = &memdom.State{Duration: 600, ReadyState: 4, CurrentTime: 100}

func run(t *testing.T, markup string, initial map[string]string, st *memdom.State, extra ...notify.Sink) *harness {
	t.Helper()
	p, err := memdom.NewPage("https://site.example/watch", markup)
	if err != nil {
		t.Fatal(err)
	}
	if st != nil {
		if err := p.SetMedia(p.Document, "#v", *st); err != nil {
			t.Fatal(err)
		}
	}
	h := &harness{page: p, surface: &fakeSurface{}, store: settings.NewMemory(initial), events: &events{}}
	h.ctrl = New(p, h.surface, h.store, testConfig(), append([]notify.Sink{h.events.sink()}, extra...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run = %v", err)
		}
	})
	return h
}

func TestController_ShowsOverlayOnResolution(t *testing.T) {
	h := run(t, `<video id="v" src="a.mp4"></video>`, nil, playable)

	waitFor(t, "overlay mounted", h.surface.isMounted)
	if h.ctrl.Overlay().State() != overlay.Visible {
		t.Errorf("overlay state = %v", h.ctrl.Overlay().State())
	}
	waitFor(t, "media event", func() bool { return h.events.count(notify.TypeMedia) == 1 })
	if h.events.count(notify.TypeState) == 0 {
		t.Error("no state events published")
	}
}

func TestController_DisabledOverlayStaysHidden(t *testing.T) {
	h := run(t, `<video id="v" src="a.mp4"></video>`, map[string]string{settings.KeyOverlayEnabled: "false"}, playable)

	waitFor(t, "resolved", func() bool { return h.ctrl.Engine().State() == engine.Resolved })
	time.Sleep(20 * time.Millisecond)
	if h.surface.isMounted() {
		t.Error("overlay mounted while disabled")
	}
}

func TestController_SeekCommands(t *testing.T) {
	h := run(t, `<video id="v" src="a.mp4"></video>`, nil, playable)
	waitFor(t, "overlay mounted", h.surface.isMounted)

	ctx := context.Background()
	resp := h.ctrl.Do(ctx, media.Request{Action: media.ActionSkipTo, Seconds: 90})
	if !resp.Success || !strings.Contains(resp.Message, "1:30") {
		t.Fatalf("skipTo = %+v", resp)
	}
	resp = h.ctrl.Do(ctx, media.Request{Action: media.ActionSkipTo, Seconds: 9000})
	if !resp.Success || !strings.Contains(resp.Message, "10:00") {
		t.Errorf("clamped skipTo = %+v", resp)
	}
	resp = h.ctrl.Do(ctx, media.Request{Action: media.ActionGoForward, Seconds: 0})
	if resp.Success || resp.ErrorKind != media.KindInvalidFormat {
		t.Errorf("goForward 0 = %+v", resp)
	}

	seeks := h.page.Site().Seeks()
	if len(seeks) != 2 || seeks[0] != 90 || seeks[1] != 600 {
		t.Errorf("seeks = %v", seeks)
	}
	waitFor(t, "command events", func() bool { return h.events.count(notify.TypeCommand) == 2 })
	if !h.surface.hasStatus("success:") {
		t.Error("no success status on the overlay")
	}
}

func TestController_FailingSinkDoesNotStall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	hook := notify.NewWebhook(srv.URL, notify.WithWebhookRetries(3), notify.WithWebhookBackoff(500*time.Millisecond))

	h := run(t, `<video id="v" src="a.mp4"></video>`, nil, playable, hook)
	waitWithin(t, time.Second, "overlay mounted", h.surface.isMounted)

	begin := time.Now()
	resp := h.ctrl.Do(context.Background(), media.Request{Action: media.ActionSkipTo, Seconds: 10})
	if !resp.Success {
		t.Fatalf("skipTo = %+v", resp)
	}
	if d := time.Since(begin); d > 500*time.Millisecond {
		t.Errorf("skipTo took %v behind a failing webhook", d)
	}
	waitFor(t, "command event on the healthy sink", func() bool { return h.events.count(notify.TypeCommand) == 1 })
}

func TestController_NoMedia(t *testing.T) {
	h := run(t, `<div id="slot"></div>`, nil, nil)
	waitFor(t, "ceiling", func() bool { return h.ctrl.Engine().Snapshot().Attempts == 3 })

	resp := h.ctrl.Do(context.Background(), media.Request{Action: media.ActionGoForward, Seconds: 30})
	if resp.Success || resp.ErrorKind != media.KindNoMediaFound {
		t.Errorf("goForward without media = %+v", resp)
	}
	resp = h.ctrl.Do(context.Background(), media.Request{Action: media.ActionShowOverlay})
	if !resp.Success || h.surface.isMounted() {
		t.Errorf("showOverlay without media = %+v, mounted %v", resp, h.surface.isMounted())
	}
}

func TestController_Toggle(t *testing.T) {
	h := run(t, `<video id="v" src="a.mp4"></video>`, nil, playable)
	waitFor(t, "overlay mounted", h.surface.isMounted)
	// Let queued events reach the sink before taking the baseline.
	time.Sleep(50 * time.Millisecond)
	states, medias := h.events.count(notify.TypeState), h.events.count(notify.TypeMedia)
	resolvedAt := h.ctrl.Engine().Snapshot().ResolvedAt

	ctx := context.Background()
	resp := h.ctrl.Do(ctx, media.Request{Action: media.ActionToggleOverlay})
	if !resp.Success || resp.Enabled == nil || *resp.Enabled {
		t.Fatalf("toggle off = %+v", resp)
	}
	waitFor(t, "overlay removed", func() bool { return !h.surface.isMounted() })
	vals, _ := h.store.Get(ctx, []string{settings.KeyOverlayEnabled})
	if vals[settings.KeyOverlayEnabled] != "false" {
		t.Errorf("persisted = %v", vals)
	}

	resp = h.ctrl.Do(ctx, media.Request{Action: media.ActionToggleOverlay})
	if resp.Enabled == nil || !*resp.Enabled {
		t.Fatalf("toggle on = %+v", resp)
	}
	waitFor(t, "overlay back", h.surface.isMounted)
	if h.ctrl.Engine().State() != engine.Resolved {
		t.Errorf("engine state = %v after toggling", h.ctrl.Engine().State())
	}

	// Toggling reuses the bound element: no pass, no transition.
	time.Sleep(50 * time.Millisecond)
	if got := h.events.count(notify.TypeState); got != states {
		t.Errorf("state events = %d, want %d", got, states)
	}
	if got := h.events.count(notify.TypeMedia); got != medias {
		t.Errorf("media events = %d, want %d", got, medias)
	}
	if got := h.ctrl.Engine().Snapshot().ResolvedAt; !got.Equal(resolvedAt) {
		t.Errorf("resolved again at %v, first at %v", got, resolvedAt)
	}
}

func TestController_OverlayActions(t *testing.T) {
	h := run(t, `<video id="v" src="a.mp4"></video>`, nil, playable)
	waitFor(t, "overlay mounted", h.surface.isMounted)

	h.page.Emit(media.Event{Kind: media.EventAction, Action: ActionSkip, Value: ""})
	waitFor(t, "empty input error", func() bool { return h.surface.hasStatus("error:Enter a time") })

	h.page.Emit(media.Event{Kind: media.EventAction, Action: ActionSkip, Value: "1:75"})
	waitFor(t, "strict grammar error", func() bool { return h.surface.hasStatus("error:Invalid time") })

	h.page.Emit(media.Event{Kind: media.EventAction, Action: ActionForward, Value: "1m 30s"})
	waitFor(t, "forward seek", func() bool { return len(h.page.Site().Seeks()) == 1 })
	if got := h.page.Site().Seeks()[0]; got != 190 {
		t.Errorf("forward seek = %v, want 190", got)
	}

	h.page.Emit(media.Event{Kind: media.EventAction, Action: ActionInputTime, Value: "12:00"})
	waitFor(t, "saved input", func() bool {
		vals, _ := h.store.Get(context.Background(), []string{settings.KeySavedTime})
		return vals[settings.KeySavedTime] == "12:00"
	})

	h.page.Emit(media.Event{Kind: media.EventAction, Action: ActionClose})
	waitFor(t, "closed", func() bool { return !h.surface.isMounted() })
	if !h.ctrl.Overlay().Enabled() {
		t.Error("close changed the preference")
	}
}

func TestController_ApplySettings(t *testing.T) {
	h := run(t, `<video id="v" src="a.mp4"></video>`, nil, playable)
	waitFor(t, "overlay mounted", h.surface.isMounted)

	ctx := context.Background()
	h.ctrl.ApplySettings(ctx, map[string]string{settings.KeySavedTime: "5:00", settings.KeySavedDuration: "30s"})
	if v := h.ctrl.Overlay().View(); v.Time != "5:00" || v.Duration != "30s" {
		t.Errorf("view = %+v", v)
	}

	h.ctrl.ApplySettings(ctx, map[string]string{settings.KeyOverlayEnabled: "false", settings.KeySavedTime: "5:00", settings.KeySavedDuration: "30s"})
	waitFor(t, "disabled", func() bool { return !h.surface.isMounted() })
}

func TestController_Status(t *testing.T) {
	h := run(t, `<video id="v" src="a.mp4"></video>`, nil, playable)
	waitFor(t, "resolved", func() bool { return h.ctrl.Engine().State() == engine.Resolved })

	st := h.ctrl.Status(context.Background())
	if st.PageURL != "https://site.example/watch" || st.Engine.State != engine.Resolved || !st.OverlayEnabled {
		t.Errorf("status = %+v", st)
	}
}
