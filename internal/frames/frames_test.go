package frames

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hazyhaar/skipper/internal/memdom"
)

var hosts = []string{"dropload.io", "vixcloud.co", "mixdrop.co"}

func TestFindInFrames_IsolatedExternalHostEmitsOneNotice(t *testing.T) {
	site := memdom.NewSite()
	site.SameOriginOnly = true
	p, err := site.NewPage("https://site.example/watch", `<body><iframe src="https://www.mixdrop.co/e/xyz"></iframe></body>`)
	if err != nil {
		t.Fatal(err)
	}
	site.MustParse("https://www.mixdrop.co/e/xyz", `<video src="a.mp4"></video>`)

	res := New(Config{ExternalHosts: hosts}).FindInFrames(context.Background(), p, 0)
	if res.Found() {
		t.Fatal("isolated frame must not resolve")
	}
	if len(res.Notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(res.Notices))
	}
	if res.Notices[0].Host != "www.mixdrop.co" {
		t.Errorf("notice host = %q", res.Notices[0].Host)
	}
	if len(res.Frames) != 1 || res.Frames[0].Accessible {
		t.Errorf("frame tree = %+v, want one inaccessible node", res.Frames)
	}
}

func TestFindInFrames_UnknownHostNoNotice(t *testing.T) {
	p, _ := memdom.NewPage("https://site.example/", `<iframe src="https://ads.example/x"></iframe>`)
	res := New(Config{ExternalHosts: hosts}).FindInFrames(context.Background(), p, 0)
	if res.Found() || len(res.Notices) != 0 {
		t.Errorf("got %+v, want nothing", res)
	}
}

func TestFindInFrames_NestedAccessible(t *testing.T) {
	ctx := context.Background()
	site := memdom.NewSite()
	p, _ := site.NewPage("https://site.example/", `<iframe src="/outer"></iframe>`)
	site.MustParse("https://site.example/outer", `<p>ad</p><iframe src="/inner"></iframe>`)
	inner := site.MustParse("https://site.example/inner", `<div class="plyr"><video id="v"></video></div>`)
	if err := inner.SetMedia("#v", memdom.State{Duration: 300}); err != nil {
		t.Fatal(err)
	}

	res := New(Config{}).FindInFrames(ctx, p, 0)
	if !res.Found() {
		t.Fatal("expected nested video")
	}
	if id, _ := res.Media.Attr("id"); id != "v" {
		t.Errorf("resolved id = %q", id)
	}
	if len(res.Frames) != 1 || len(res.Frames[0].Children) != 1 || !res.Frames[0].Children[0].Accessible {
		t.Errorf("frame tree = %+v", res.Frames)
	}
}

func TestFindInFrames_SkipsDeniedSibling(t *testing.T) {
	site := memdom.NewSite()
	p, _ := site.NewPage("https://site.example/", `<iframe src="https://vixcloud.co/e/1"></iframe><iframe src="/ok"></iframe>`)
	site.MustParse("https://site.example/ok", `<video src="movie.m3u8"></video>`)

	res := New(Config{ExternalHosts: hosts}).FindInFrames(context.Background(), p, 0)
	if !res.Found() {
		t.Fatal("second sibling should resolve")
	}
	if len(res.Notices) != 1 {
		t.Errorf("got %d notices, want 1", len(res.Notices))
	}
}

func TestFindInFrames_DecoyIgnored(t *testing.T) {
	site := memdom.NewSite()
	p, _ := site.NewPage("https://site.example/", `<iframe src="/f"></iframe>`)
	site.MustParse("https://site.example/f", `<video></video>`)
	res := New(Config{}).FindInFrames(context.Background(), p, 0)
	if res.Found() {
		t.Error("placeholder video without content accepted")
	}
}

func TestFindInFrames_DepthBound(t *testing.T) {
	site := memdom.NewSite()
	// A frame that embeds itself.
	p, _ := site.NewPage("https://site.example/", `<iframe src="/loop"></iframe>`)
	site.MustParse("https://site.example/loop", `<iframe src="/loop"></iframe>`)

	res := New(Config{MaxDepth: 4}).FindInFrames(context.Background(), p, 0)
	depth := 0
	for nodes := res.Frames; len(nodes) > 0; nodes = nodes[0].Children {
		depth++
	}
	if depth != 4 {
		t.Errorf("visited depth = %d, want 4", depth)
	}
}

func TestFindInFrames_Deterministic(t *testing.T) {
	site := memdom.NewSite()
	var b strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, `<iframe src="/f%d"></iframe>`, i)
		site.MustParse(fmt.Sprintf("https://site.example/f%d", i), fmt.Sprintf(`<video id="v%d" src="%d.mp4"></video>`, i, i))
	}
	p, _ := site.NewPage("https://site.example/", b.String())
	tr := New(Config{})
	for i := 0; i < 3; i++ {
		res := tr.FindInFrames(context.Background(), p, 0)
		if id, _ := res.Media.Attr("id"); id != "v0" {
			t.Fatalf("pass %d resolved %q, want v0", i, id)
		}
	}
}

func TestEnter(t *testing.T) {
	site := memdom.NewSite()
	p, _ := site.NewPage("https://site.example/", `<div class="ratio"><iframe src="/e/1"></iframe></div>`)
	site.MustParse("https://site.example/e/1", `<video class="vjs-tech" data-setup="{}"></video>`)
	frame, err := p.Element(".ratio iframe")
	if err != nil {
		t.Fatal(err)
	}
	res := New(Config{}).Enter(context.Background(), frame, 0)
	if !res.Found() {
		t.Fatal("Enter should resolve the frame's video")
	}
}

func TestMatchHost(t *testing.T) {
	if !MatchHost("cdn.Filemoon.sx", []string{"filemoon.sx"}) {
		t.Error("substring match should be case-insensitive")
	}
	if MatchHost("example.com", []string{"", "voe.sx"}) {
		t.Error("unexpected match")
	}
}
