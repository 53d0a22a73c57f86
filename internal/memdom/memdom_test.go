package memdom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/skipper/media"
)

const playerPage = `<html><body>
<div class="player-container"><video class="vjs-tech" src="movie.mp4"><source src="a.mp4"></video></div>
<div id="player"><video data-setup="{}"></video></div>
<iframe src="https://embed.example/e/abc"></iframe>
<div class="host"><template shadowrootmode="open"><video src="shadow.mp4"></video></template></div>
</body></html>`

func TestQuery_Selectors(t *testing.T) {
	ctx := context.Background()
	p, err := NewPage("https://site.example/watch", playerPage)
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]int{
		"video":                              2,
		".player-container video":            1,
		"video.vjs-tech":                     1,
		"#player video":                      1,
		`video[src*=".mp4"]`:                 1,
		"video[data-setup]":                  1,
		`iframe[src*="/e/"]`:                 1,
		`iframe[src^="https://emb"]`:         1,
		`iframe[src$="abc"]`:                 1,
		"video, iframe":                      3,
		"div video":                          2,
		"section video":                      0,
		".player-container > video":          1,
		"body > video":                       0,
		"video:not([data-setup])":            1,
		"div:has(video[data-setup]) video":   1,
		`iframe[src*="a,b"], video.vjs-tech`: 1,
	}
	for sel, want := range cases {
		got, err := p.Query(ctx, sel)
		if err != nil {
			t.Errorf("Query(%q): %v", sel, err)
			continue
		}
		if len(got) != want {
			t.Errorf("Query(%q): got %d nodes, want %d", sel, len(got), want)
		}
	}
}

func TestQuery_DocumentOrderNoDuplicates(t *testing.T) {
	p, _ := NewPage("https://a.example/", `<div class="a"><div class="a"><video id="one"></video></div></div><video id="two"></video>`)
	got, err := p.Query(context.Background(), "div video, video")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d nodes, want 2", len(got))
	}
	if id, _ := got[0].Attr("id"); id != "one" {
		t.Errorf("first node id = %q, want one", id)
	}
}

func TestQuery_InvalidSelector(t *testing.T) {
	p, _ := NewPage("https://a.example/", `<video></video>`)
	for _, sel := range []string{"video[src", "div >", "video:no-such-class", "video,,audio"} {
		if _, err := p.Query(context.Background(), sel); err == nil {
			t.Errorf("Query(%q): expected error", sel)
		}
	}
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	p, _ := NewPage("https://site.example/watch", playerPage)
	if err := p.SetMedia(p.Document, "video.vjs-tech", State{Duration: 120, ReadyState: 4}); err != nil {
		t.Fatal(err)
	}
	n, err := p.Element("video.vjs-tech")
	if err != nil {
		t.Fatal(err)
	}
	d, err := n.Describe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.Tag != "video" || d.Src != "movie.mp4" || !d.HasSourceChild || d.Duration != 120 || !d.Connected {
		t.Errorf("unexpected descriptor %+v", d)
	}

	if err := p.Remove(p.Document, ".player-container"); err != nil {
		t.Fatal(err)
	}
	d, _ = n.Describe(ctx)
	if d.Connected {
		t.Error("removed element still reported connected")
	}
}

func TestContent_AccessRules(t *testing.T) {
	ctx := context.Background()
	site := NewSite()
	p, _ := site.NewPage("https://site.example/watch", `<iframe id="same" src="/frame"></iframe><iframe id="cross" src="https://other.example/x"></iframe><iframe id="missing" src="https://gone.example/"></iframe>`)
	site.MustParse("https://site.example/frame", `<video src="a.mp4"></video>`)
	site.MustParse("https://other.example/x", `<video src="b.mp4"></video>`)

	get := func(id string) error {
		n, err := p.Element("#" + id)
		if err != nil {
			t.Fatal(err)
		}
		_, err = n.Content(ctx)
		return err
	}

	if err := get("same"); err != nil {
		t.Errorf("same-origin frame: %v", err)
	}
	if err := get("cross"); err != nil {
		t.Errorf("cross-origin frame with permissive site: %v", err)
	}
	if err := get("missing"); !errors.Is(err, media.ErrFrameAccessDenied) {
		t.Errorf("unloaded frame: got %v, want ErrFrameAccessDenied", err)
	}

	site.SameOriginOnly = true
	if err := get("cross"); !errors.Is(err, media.ErrFrameAccessDenied) {
		t.Errorf("isolated frame: got %v, want ErrFrameAccessDenied", err)
	}
}

func TestShadowRoots(t *testing.T) {
	ctx := context.Background()
	p, _ := NewPage("https://site.example/", playerPage)
	roots, err := p.ShadowRoots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 {
		t.Fatalf("got %d shadow roots, want 1", len(roots))
	}
	vids, _ := roots[0].Query(ctx, "video")
	if len(vids) != 1 {
		t.Fatalf("shadow query: got %d videos, want 1", len(vids))
	}
	d, _ := vids[0].Describe(ctx)
	if !d.Connected || d.Src != "shadow.mp4" {
		t.Errorf("unexpected shadow descriptor %+v", d)
	}
}

func TestPage_Events(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, _ := NewPage("https://site.example/", `<body><div id="slot"></div></body>`)
	events, err := p.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Insert(p.Document, "#slot", `<div class="wrap"><video></video></div><p>text</p>`); err != nil {
		t.Fatal(err)
	}
	p.PushState("https://site.example/next")

	want := []media.Event{
		{Kind: media.EventInserted, Tag: "div", MediaShaped: true},
		{Kind: media.EventInserted, Tag: "p"},
		{Kind: media.EventNavigated, URL: "https://site.example/next"},
	}
	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Errorf("event %d: got %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d: timeout", i)
		}
	}
}

func TestPage_LoadDetachesOldNodes(t *testing.T) {
	ctx := context.Background()
	p, _ := NewPage("https://site.example/a", `<video src="a.mp4"></video>`)
	n, _ := p.Element("video")
	if err := p.Load("https://site.example/b", `<video src="b.mp4"></video>`); err != nil {
		t.Fatal(err)
	}
	d, _ := n.Describe(ctx)
	if d.Connected {
		t.Error("node from previous document still connected")
	}
	u, _ := p.URL(ctx)
	if u != "https://site.example/b" {
		t.Errorf("URL = %q", u)
	}
}

func TestSeek(t *testing.T) {
	ctx := context.Background()
	p, _ := NewPage("https://site.example/", `<video src="a.mp4"></video>`)
	n, _ := p.Element("video")
	if err := n.Seek(ctx, 42); err != nil {
		t.Fatal(err)
	}
	d, _ := n.Describe(ctx)
	if d.CurrentTime != 42 {
		t.Errorf("CurrentTime = %v, want 42", d.CurrentTime)
	}

	boom := errors.New("boom")
	_ = p.SetMedia(p.Document, "video", State{SeekErr: boom})
	if err := n.Seek(ctx, 1); !errors.Is(err, boom) {
		t.Errorf("Seek: got %v, want boom", err)
	}
}
