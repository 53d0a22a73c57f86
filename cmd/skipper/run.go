package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/skipper"
	"github.com/hazyhaar/skipper/internal/api"
	"github.com/hazyhaar/skipper/internal/browser"
	"github.com/hazyhaar/skipper/internal/cdpdom"
	"github.com/hazyhaar/skipper/internal/config"
	"github.com/hazyhaar/skipper/internal/notify"
	"github.com/hazyhaar/skipper/internal/settings"
)

func newRunCmd(g *globals) *cobra.Command {
	var pageURL, attach, remote string
	var headful bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Control the video of one page and serve the command API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if pageURL != "" {
				cfg.Page.URL, cfg.Page.Attach = pageURL, ""
			}
			if attach != "" {
				cfg.Page.Attach, cfg.Page.URL = attach, ""
			}
			if remote != "" {
				cfg.Browser.Remote = remote
			}
			if headful {
				cfg.Browser.Mode = string(browser.Headful)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runDaemon(cmd.Context(), g, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&pageURL, "url", "", "open this URL in a new tab")
	f.StringVar(&attach, "attach", "", "attach to the open tab whose URL contains this")
	f.StringVar(&remote, "remote", "", "DevTools URL of a running Chrome")
	f.BoolVar(&headful, "headful", false, "launch a visible Chrome")
	return cmd
}

func runDaemon(ctx context.Context, g *globals, cfg *config.Config) error {
	logger := g.logger
	if cfg.Page.URL == "" && cfg.Page.Attach == "" && cfg.Browser.Remote == "" {
		return errors.New("skipper: nothing to control: set page.url, page.attach or browser.remote")
	}

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := browser.NewManager(cfg.BrowserOptions(logger))
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("skipper: start browser: %w", err)
	}
	defer mgr.Close()

	rp, err := openPage(ctx, mgr, cfg)
	if err != nil {
		return err
	}
	page, err := cdpdom.New(rp, cdpdom.Config{Logger: logger})
	if err != nil {
		return err
	}

	hub := notify.NewHub()
	sinks := []notify.Sink{hub}
	for _, s := range cfg.Sinks {
		switch s.Type {
		case "stdout":
			sinks = append(sinks, notify.NewStdout(os.Stdout))
		case "webhook":
			sinks = append(sinks, notify.NewWebhook(s.URL,
				notify.WithWebhookRetries(s.Retries),
				notify.WithWebhookLogger(logger)))
		}
	}

	ctrl := skipper.New(page, cdpdom.NewSurface(page), store, skipper.Config{
		Table:    cfg.Table(),
		Frames:   cfg.FrameOptions(logger),
		Engine:   cfg.EngineOptions(logger),
		Executor: cfg.ExecutorOptions(logger),
		Overlay:  cfg.OverlayOptions(logger),
		Logger:   logger,
	}, sinks...)

	srv := api.New(ctrl, hub, api.Config{Addr: cfg.Server.Addr, MCP: cfg.Server.MCP, Logger: logger})
	watcher := settings.NewWatcher(store, cfg.WatchOptions(logger))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 2)
	serve := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
			cancel()
		}()
	}
	serve("controller", ctrl.Run)
	serve("api", srv.ListenAndServe)
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.OnChange(ctx, ctrl.ApplySettings)
	}()

	logger.Info("skipper: daemon started", "addr", cfg.Server.Addr, "url", cfg.Page.URL, "attach", cfg.Page.Attach)
	wg.Wait()
	close(errc)
	logger.Info("skipper: daemon stopped", "watch", watcher.Stats())
	return <-errc
}

func openPage(ctx context.Context, mgr *browser.Manager, cfg *config.Config) (*rod.Page, error) {
	if cfg.Page.URL != "" {
		return mgr.Open(ctx, cfg.Page.URL)
	}
	return mgr.Attach(ctx, cfg.Page.Attach)
}
