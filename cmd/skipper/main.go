// CLAUDE:SUMMARY CLI entry point for skipper: run the page daemon, probe a URL, and drive a running daemon (skip, forward, overlay, status, set).
// Command skipper controls the video of a web page through Chrome.
//
// Usage:
//
//	skipper run --config skipper.yaml       # control the configured page
//	skipper run --url https://example.com   # open a page and control it
//	skipper probe https://example.com       # static discovery, no browser
//	skipper skip 1:23:45                    # seek the running daemon
//	skipper forward 1m30s
//	skipper overlay toggle
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/skipper/internal/config"
)

type globals struct {
	configPath string
	logLevel   string
	addr       string
	dbPath     string

	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := &globals{}
	root := newRootCmd(g)
	if err := root.ExecuteContext(ctx); err != nil {
		if g.logger != nil {
			g.logger.Error("skipper: fatal", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "skipper",
		Short:         "Find the video of a web page and seek it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			g.logger = newLogger(g.logLevel)
			slog.SetDefault(g.logger)
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "path to skipper.yaml")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&g.addr, "addr", "", "daemon address (default from config, 127.0.0.1:8765)")
	pf.StringVar(&g.dbPath, "db", "", "settings database (default from config)")

	root.AddCommand(
		newRunCmd(g),
		newProbeCmd(g),
		newSkipCmd(g),
		newForwardCmd(g),
		newOverlayCmd(g),
		newStatusCmd(g),
		newSetCmd(g),
	)
	return root
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// loadConfig reads --config when set and applies the global overrides.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(g.configPath); err != nil {
			return nil, err
		}
	}
	if g.addr != "" {
		cfg.Server.Addr = g.addr
	}
	if g.dbPath != "" {
		cfg.Settings.Path = g.dbPath
	}
	return cfg, nil
}
