// CLAUDE:SUMMARY skipper YAML configuration: browser, page, engine, overlay, hosts, settings, server and sink sections with defaults and per-component conversions.
// Package config handles skipper configuration from YAML files.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/skipper/internal/browser"
	"github.com/hazyhaar/skipper/internal/engine"
	"github.com/hazyhaar/skipper/internal/executor"
	"github.com/hazyhaar/skipper/internal/frames"
	"github.com/hazyhaar/skipper/internal/overlay"
	"github.com/hazyhaar/skipper/internal/settings"
	"github.com/hazyhaar/skipper/internal/strategy"
)

// Config is the top-level configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Page     PageConfig     `yaml:"page"`
	Engine   EngineConfig   `yaml:"engine"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Hosts    HostsConfig    `yaml:"hosts"`
	Settings SettingsConfig `yaml:"settings"`
	Server   ServerConfig   `yaml:"server"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	Mode             string        `yaml:"mode"` // headless | headful
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// PageConfig names the page to control: URL opens a new tab, Attach picks
// an open tab whose URL contains it.
type PageConfig struct {
	URL    string `yaml:"url"`
	Attach string `yaml:"attach"`
}

// EngineConfig tunes resolution and commands.
type EngineConfig struct {
	SettleDelay      time.Duration `yaml:"settle_delay"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxAttempts      int           `yaml:"max_attempts"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	LivenessInterval time.Duration `yaml:"liveness_interval"`
	RecheckDelay     time.Duration `yaml:"recheck_delay"`
	NavigationDelay  time.Duration `yaml:"navigation_delay"`
	NoticeTTL        time.Duration `yaml:"notice_ttl"`
	DocumentPoll     time.Duration `yaml:"document_poll"`
	FrameMaxDepth    int           `yaml:"frame_max_depth"`
	CommandPoll      time.Duration `yaml:"command_poll"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
}

// OverlayConfig tunes the in-page bar.
type OverlayConfig struct {
	ExitDelay    time.Duration `yaml:"exit_delay"`
	StatusReset  time.Duration `yaml:"status_reset"`
	ReadyMessage string        `yaml:"ready_message"`
}

// HostsConfig overrides the built-in strategy table. With Replace the
// built-in table is dropped instead of merged.
type HostsConfig struct {
	Replace       bool             `yaml:"replace"`
	Groups        []strategy.Group `yaml:"groups"`
	Generic       []string         `yaml:"generic"`
	ExternalHosts []string         `yaml:"external_hosts"`
}

// SettingsConfig locates the settings database.
type SettingsConfig struct {
	Path          string        `yaml:"path"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// ServerConfig controls the command API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	MCP  bool   `yaml:"mcp"`
}

// SinkConfig defines an event output.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`
	Retries int    `yaml:"retries"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = string(browser.Headless)
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Engine.FrameMaxDepth <= 0 {
		c.Engine.FrameMaxDepth = frames.DefaultMaxDepth
	}
	if c.Settings.Path == "" {
		c.Settings.Path = defaultSettingsPath()
	}
	if c.Settings.WatchInterval <= 0 {
		c.Settings.WatchInterval = 500 * time.Millisecond
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8765"
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
}

// Validate rejects contradictory settings.
func (c *Config) Validate() error {
	switch browser.Mode(c.Browser.Mode) {
	case browser.Headless, browser.Headful:
	default:
		return fmt.Errorf("config: browser.mode %q: want headless or headful", c.Browser.Mode)
	}
	if c.Page.URL != "" && c.Page.Attach != "" {
		return fmt.Errorf("config: page.url and page.attach are exclusive")
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	for i, g := range c.Hosts.Groups {
		if g.Name == "" || len(g.Selectors) == 0 {
			return fmt.Errorf("config: hosts.groups[%d]: name and selectors are required", i)
		}
	}
	return nil
}

func defaultSettingsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "skipper", "settings.db")
	}
	return "skipper-settings.db"
}

// Table returns the strategy table: the built-in one merged with (or
// replaced by) the hosts section.
func (c *Config) Table() strategy.Table {
	o := strategy.Table{Groups: c.Hosts.Groups, ExternalHosts: c.Hosts.ExternalHosts}
	if len(c.Hosts.Generic) > 0 {
		o.Generic = strategy.Group{Name: strategy.GenericName, Selectors: c.Hosts.Generic}
	}
	if c.Hosts.Replace {
		if o.Generic.Name == "" {
			o.Generic = strategy.DefaultTable().Generic
		}
		return o
	}
	return strategy.DefaultTable().Merge(o)
}

// BrowserOptions returns the browser.Config.
func (c *Config) BrowserOptions(logger *slog.Logger) browser.Config {
	return browser.Config{
		RemoteURL:        c.Browser.Remote,
		Bin:              c.Browser.Bin,
		Mode:             browser.Mode(c.Browser.Mode),
		Stealth:          c.Browser.Stealth,
		ResourceBlocking: c.Browser.ResourceBlocking,
		XvfbDisplay:      c.Browser.XvfbDisplay,
		NavigateTimeout:  c.Browser.NavigateTimeout,
		Logger:           logger,
	}
}

// FrameOptions returns the frames.Config for the configured table.
func (c *Config) FrameOptions(logger *slog.Logger) frames.Config {
	return frames.Config{
		MaxDepth:      c.Engine.FrameMaxDepth,
		ExternalHosts: c.Table().ExternalHosts,
		Logger:        logger,
	}
}

// EngineOptions returns the engine.Config. Zero fields take the engine's
// own defaults.
func (c *Config) EngineOptions(logger *slog.Logger) engine.Config {
	e := c.Engine
	return engine.Config{
		SettleDelay:       e.SettleDelay,
		RetryDelay:        e.RetryDelay,
		MaxAttempts:       e.MaxAttempts,
		StaleAfter:        e.StaleAfter,
		LivenessInterval:  e.LivenessInterval,
		RecheckDelay:      e.RecheckDelay,
		NavigationDelay:   e.NavigationDelay,
		NoticeTTL:         e.NoticeTTL,
		ReadyPollInterval: e.DocumentPoll,
		Logger:            logger,
	}
}

// ExecutorOptions returns the executor.Config without a status callback.
func (c *Config) ExecutorOptions(logger *slog.Logger) executor.Config {
	return executor.Config{
		PollInterval: c.Engine.CommandPoll,
		ReadyTimeout: c.Engine.ReadyTimeout,
		Logger:       logger,
	}
}

// OverlayOptions returns the overlay.Config.
func (c *Config) OverlayOptions(logger *slog.Logger) overlay.Config {
	return overlay.Config{
		ExitDelay:    c.Overlay.ExitDelay,
		StatusReset:  c.Overlay.StatusReset,
		ReadyMessage: c.Overlay.ReadyMessage,
		Logger:       logger,
	}
}

// WatchOptions returns the settings watcher options.
func (c *Config) WatchOptions(logger *slog.Logger) settings.WatchOptions {
	return settings.WatchOptions{
		Interval: c.Settings.WatchInterval,
		Debounce: c.Settings.WatchDebounce,
		Logger:   logger,
	}
}
