package cdpdom

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/microcosm-cc/bluemonday"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/skipper/internal/overlay"
	"github.com/hazyhaar/skipper/media"
)

func TestDecodeBinding(t *testing.T) {
	log := slog.Default()
	cases := []struct {
		payload string
		want    media.Event
	}{
		{`{"type":"inserted","tag":"div","media":true}`, media.Event{Kind: media.EventInserted, Tag: "div", MediaShaped: true}},
		{`{"type":"removed","tag":"video","media":true}`, media.Event{Kind: media.EventRemoved, Tag: "video", MediaShaped: true}},
		{`{"type":"navigate","url":"https://site.example/b"}`, media.Event{Kind: media.EventNavigated, URL: "https://site.example/b"}},
		{`{"type":"ready","event":"canplay"}`, media.Event{Kind: media.EventMediaReady}},
		{`{"type":"action","action":"skip","value":"1:30"}`, media.Event{Kind: media.EventAction, Action: "skip", Value: "1:30"}},
	}
	for _, c := range cases {
		got, ok := decodeBinding(c.payload, log)
		if !ok || got != c.want {
			t.Errorf("decodeBinding(%s) = %+v, %v", c.payload, got, ok)
		}
	}
	for _, bad := range []string{`not json`, `{"type":"mystery"}`} {
		if _, ok := decodeBinding(bad, log); ok {
			t.Errorf("decodeBinding(%q) accepted", bad)
		}
	}
}

func TestSurfaceClean(t *testing.T) {
	s := &Surface{policy: bluemonday.StrictPolicy()}
	if got := s.clean(`<img src=x onerror=alert(1)>1:30`); got != "1:30" {
		t.Errorf("clean = %q", got)
	}
	if got := s.clean(`Tom's & Jerry's`); got != "Tom's & Jerry's" {
		t.Errorf("clean mangled text: %q", got)
	}
}

func TestScriptsEmbedded(t *testing.T) {
	if !strings.Contains(observerJS, Binding) {
		t.Error("observer script does not report through the binding")
	}
	if !strings.Contains(overlayJS, "__skipperOverlay") {
		t.Error("overlay script missing its entry point")
	}
}

// scriptedSurface answers overlay calls with result and records them.
func scriptedSurface(result any, calls *[]string) *Surface {
	return &Surface{
		policy: bluemonday.StrictPolicy(),
		eval: func(_ context.Context, js string, _ ...any) (*proto.RuntimeRemoteObject, error) {
			*calls = append(*calls, js)
			return &proto.RuntimeRemoteObject{Value: gson.New(result)}, nil
		},
	}
}

func TestSurfaceMount_NoBody(t *testing.T) {
	var calls []string
	s := scriptedSurface(false, &calls)
	if err := s.Mount(context.Background(), overlay.View{Time: "1:30"}); !errors.Is(err, ErrNoBody) {
		t.Errorf("Mount = %v, want ErrNoBody", err)
	}
	if len(calls) != 2 || !strings.Contains(calls[1], "__skipperOverlay.mount") {
		t.Errorf("calls = %q", calls)
	}
}

func TestSurfaceMount_OK(t *testing.T) {
	var calls []string
	s := scriptedSurface(true, &calls)
	if err := s.Mount(context.Background(), overlay.View{}); err != nil {
		t.Errorf("Mount = %v", err)
	}
	// Other methods ignore the script result.
	calls = nil
	s = scriptedSurface(nil, &calls)
	if err := s.Unmount(context.Background()); err != nil {
		t.Errorf("Unmount = %v", err)
	}
}
