package strategy

import (
	"context"
	"testing"

	"github.com/hazyhaar/skipper/internal/memdom"
)

func TestSelect(t *testing.T) {
	tab := DefaultTable()
	cases := map[string]string{
		"altadefinizione.example":     "altadefinizione",
		"www.streamingunity.to":       "streamingcommunity",
		"streamingcommunity.computer": "streamingcommunity",
		"example.com":                 GenericName,
		"":                            GenericName,
		"ALTADEFINIZIONE-NEW.example": "altadefinizione",
	}
	for host, want := range cases {
		if got := tab.Select(host).Name; got != want {
			t.Errorf("Select(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestDiscover_HostGroupWins(t *testing.T) {
	ctx := context.Background()
	p, _ := memdom.NewPage("https://altadefinizione.example/film", `<div class="video-js"><video id="main"></video></div>`)
	if err := p.SetMedia(p.Document, "#main", memdom.State{ReadyState: 1}); err != nil {
		t.Fatal(err)
	}
	out := NewDiscoverer(DefaultTable(), nil, nil).Discover(ctx, p)
	if !out.Found() {
		t.Fatal("expected resolution")
	}
	if out.Group != "altadefinizione" || out.Selector != ".video-js video" {
		t.Errorf("resolved by %s / %s", out.Group, out.Selector)
	}
}

func TestDiscover_FallsBackToGeneric(t *testing.T) {
	ctx := context.Background()
	// The site group matches nothing here; the generic "video" does.
	p, _ := memdom.NewPage("https://streamingcommunity.example/", `<section><video src="clip.webm"></video></section>`)
	tab := DefaultTable()
	tab.Groups[1].Selectors = []string{".nothing video"}
	out := NewDiscoverer(tab, nil, nil).Discover(ctx, p)
	if !out.Found() || out.Group != GenericName {
		t.Fatalf("got %+v, want generic resolution", out)
	}
}

func TestDiscover_IframeQueryEntersFrame(t *testing.T) {
	ctx := context.Background()
	site := memdom.NewSite()
	p, _ := site.NewPage("https://site.example/", `<div class="ratio"><iframe src="/e/42"></iframe></div>`)
	site.MustParse("https://site.example/e/42", `<video src="x.m3u8"></video>`)

	out := NewDiscoverer(DefaultTable(), nil, nil).Discover(ctx, p)
	if !out.Found() {
		t.Fatal("expected video inside frame")
	}
	if out.Selector != `iframe[src*="/e/"]` {
		t.Errorf("Selector = %q", out.Selector)
	}
}

func TestDiscover_FinalFrameFallback(t *testing.T) {
	ctx := context.Background()
	site := memdom.NewSite()
	p, _ := site.NewPage("https://site.example/", `<iframe src="/content/frame.html"></iframe>`)
	site.MustParse("https://site.example/content/frame.html", `<video src="x.mp4"></video>`)

	tab := DefaultTable()
	tab.Generic.Selectors = []string{"video"}
	out := NewDiscoverer(tab, nil, nil).Discover(ctx, p)
	if !out.Found() || out.Selector != SelectorFrames {
		t.Fatalf("got %+v, want frames fallback", out)
	}
}

func TestDiscover_IsolatedExternalFrame(t *testing.T) {
	ctx := context.Background()
	site := memdom.NewSite()
	site.SameOriginOnly = true
	p, _ := site.NewPage("https://site.example/", `<iframe src="https://dropload.io/e/abc"></iframe>`)

	out := NewDiscoverer(DefaultTable(), nil, nil).Discover(ctx, p)
	if out.Found() {
		t.Fatal("isolated frame must not resolve")
	}
	if len(out.Notices) != 1 || out.Notices[0].Host != "dropload.io" {
		t.Errorf("notices = %+v, want one for dropload.io", out.Notices)
	}
}

func TestDiscover_QueryErrorsSkipped(t *testing.T) {
	ctx := context.Background()
	p, _ := memdom.NewPage("https://site.example/", `<video src="a.mp4"></video>`)
	tab := Table{Generic: Group{Name: GenericName, Selectors: []string{"video:has(source)", "video"}}}
	out := NewDiscoverer(tab, nil, nil).Discover(ctx, p)
	if !out.Found() || out.Selector != "video" {
		t.Fatalf("got %+v", out)
	}
}

func TestDeep_ShadowRoot(t *testing.T) {
	ctx := context.Background()
	p, _ := memdom.NewPage("https://site.example/", `<x-player><template shadowrootmode="open"><video src="s.mp4"></video></template></x-player>`)

	d := NewDiscoverer(DefaultTable(), nil, nil)
	if out := d.Discover(ctx, p); out.Found() {
		t.Fatal("shadow content must be invisible to normal discovery")
	}
	out := d.Deep(ctx, p)
	if !out.Found() || out.Selector != SelectorShadow {
		t.Fatalf("got %+v, want shadow resolution", out)
	}
}

func TestDeep_LoadingMedia(t *testing.T) {
	ctx := context.Background()
	p, _ := memdom.NewPage("https://site.example/", `<audio data-src="lazy.mp3"></audio>`)
	tab := Table{Generic: Group{Name: GenericName}}
	out := NewDiscoverer(tab, nil, nil).Deep(ctx, p)
	if !out.Found() || !out.Loading {
		t.Fatalf("got %+v, want loading audio", out)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultTable()
	merged := base.Merge(Table{
		Groups:        []Group{{Name: "altadefinizione", Hosts: []string{"alta"}, Selectors: []string{"video"}}, {Name: "new", Hosts: []string{"new.example"}}},
		ExternalHosts: []string{"only.example"},
	})
	if len(merged.Groups) != len(base.Groups)+1 {
		t.Errorf("got %d groups", len(merged.Groups))
	}
	if merged.Groups[0].Hosts[0] != "alta" {
		t.Errorf("group not replaced: %+v", merged.Groups[0])
	}
	if len(merged.ExternalHosts) != 1 {
		t.Errorf("external hosts = %v", merged.ExternalHosts)
	}
	if len(merged.Generic.Selectors) != len(base.Generic.Selectors) {
		t.Error("generic group should be untouched")
	}
}
