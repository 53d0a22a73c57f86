package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/skipper/internal/strategy"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Browser.Mode != "headless" || c.Server.Addr != "127.0.0.1:8765" {
		t.Fatalf("defaults = %+v", c)
	}
	if c.Settings.Path == "" {
		t.Error("no settings path")
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	tab := c.Table()
	if len(tab.Groups) != len(strategy.DefaultTable().Groups) {
		t.Errorf("groups = %d", len(tab.Groups))
	}
}

const sample = `
browser:
  mode: headful
  stealth: true
  resource_blocking: [images, fonts]
page:
  url: https://altadefinizione.example/film/1
engine:
  settle_delay: 250ms
  max_attempts: 5
  ready_timeout: 20s
overlay:
  exit_delay: 150ms
hosts:
  groups:
    - name: mysite
      hosts: [mysite.example]
      selectors: ["#main-player video"]
    - name: streamingcommunity
      hosts: [sc.example]
      selectors: [".sc video"]
  external_hosts: [myembed.example]
settings:
  path: /tmp/skipper/settings.db
sinks:
  - type: stdout
  - type: webhook
    url: http://127.0.0.1:9/hook
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if c.Browser.Mode != "headful" || !c.Browser.Stealth {
		t.Errorf("browser = %+v", c.Browser)
	}
	if c.Engine.SettleDelay != 250*time.Millisecond || c.Engine.MaxAttempts != 5 {
		t.Errorf("engine = %+v", c.Engine)
	}
	if c.Sinks[1].Retries != 3 {
		t.Errorf("webhook retries default = %d", c.Sinks[1].Retries)
	}

	ec := c.EngineOptions(nil)
	if ec.SettleDelay != 250*time.Millisecond || ec.MaxAttempts != 5 {
		t.Errorf("engine options = %+v", ec)
	}
	if xc := c.ExecutorOptions(nil); xc.ReadyTimeout != 20*time.Second {
		t.Errorf("executor options = %+v", xc)
	}
	if oc := c.OverlayOptions(nil); oc.ExitDelay != 150*time.Millisecond {
		t.Errorf("overlay options = %+v", oc)
	}
	if bc := c.BrowserOptions(nil); len(bc.ResourceBlocking) != 2 {
		t.Errorf("browser options = %+v", bc)
	}

	tab := c.Table()
	if g := tab.Select("www.mysite.example"); g.Name != "mysite" {
		t.Errorf("mysite host selected %q", g.Name)
	}
	if g := tab.Select("sc.example"); g.Name != "streamingcommunity" || g.Selectors[0] != ".sc video" {
		t.Errorf("override not applied: %+v", g)
	}
	if g := tab.Select("altadefinizione.example"); g.Name != "altadefinizione" {
		t.Errorf("built-in group lost: %q", g.Name)
	}
	if len(tab.ExternalHosts) != 1 || tab.ExternalHosts[0] != "myembed.example" {
		t.Errorf("external hosts = %v", tab.ExternalHosts)
	}
	if fc := c.FrameOptions(nil); fc.MaxDepth != 15 || fc.ExternalHosts[0] != "myembed.example" {
		t.Errorf("frame options = %+v", fc)
	}
}

func TestTableReplace(t *testing.T) {
	c, err := Parse([]byte(`
hosts:
  replace: true
  groups:
    - name: only
      hosts: [only.example]
      selectors: [video]
`))
	if err != nil {
		t.Fatal(err)
	}
	tab := c.Table()
	if len(tab.Groups) != 1 || tab.Generic.Name != strategy.GenericName || len(tab.Generic.Selectors) == 0 {
		t.Errorf("replaced table = %+v", tab)
	}
}

func TestValidate(t *testing.T) {
	bad := []string{
		"browser: {mode: invisible}",
		"page: {url: 'https://a.example', attach: a}",
		"sinks: [{type: webhook}]",
		"sinks: [{type: nats}]",
		"hosts: {groups: [{name: x}]}",
	}
	for _, y := range bad {
		if _, err := Parse([]byte(y)); err == nil {
			t.Errorf("Parse(%q) accepted", y)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skipper.yaml")
	if err := os.WriteFile(path, []byte("server: {addr: ':9000', mcp: true}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Addr != ":9000" || !c.Server.MCP {
		t.Errorf("server = %+v", c.Server)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
