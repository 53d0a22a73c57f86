package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/skipper/internal/settings"
	"github.com/hazyhaar/skipper/media"
	"github.com/hazyhaar/skipper/timecode"
)

// client talks to a running daemon.
type client struct {
	base string
	http *http.Client
}

func newClient(addr string) *client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *client) command(ctx context.Context, req media.Request) (media.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return media.Response{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/command", bytes.NewReader(body))
	if err != nil {
		return media.Response{}, fmt.Errorf("client: new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(hreq)
	if err != nil {
		return media.Response{}, fmt.Errorf("client: %w", err)
	}
	defer res.Body.Close()
	var resp media.Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return media.Response{}, fmt.Errorf("client: decode response (status %d): %w", res.StatusCode, err)
	}
	return resp, nil
}

func (c *client) get(ctx context.Context, path string, w io.Writer) error {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("client: new request: %w", err)
	}
	res, err := c.http.Do(hreq)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("client: %s: status %d", path, res.StatusCode)
	}
	_, err = io.Copy(w, res.Body)
	return err
}

// report prints a response and turns a failure into an error.
func report(w io.Writer, resp media.Response) error {
	if !resp.Success {
		if resp.ErrorKind != "" {
			return fmt.Errorf("%s (%s)", resp.Error, resp.ErrorKind)
		}
		return fmt.Errorf("%s", resp.Error)
	}
	switch {
	case resp.Enabled != nil && *resp.Enabled:
		fmt.Fprintln(w, "overlay enabled")
	case resp.Enabled != nil:
		fmt.Fprintln(w, "overlay disabled")
	case resp.Message != "":
		fmt.Fprintln(w, resp.Message)
	default:
		fmt.Fprintln(w, "ok")
	}
	return nil
}

// argOrSaved returns the argument, or the saved value under key when none
// is given. A given argument is saved for next time, best effort.
func (g *globals) argOrSaved(ctx context.Context, args []string, key string) (string, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return "", err
	}
	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		if len(args) > 0 {
			return strings.Join(args, " "), nil
		}
		return "", err
	}
	defer store.Close()

	if len(args) > 0 {
		v := strings.Join(args, " ")
		if err := store.Set(ctx, map[string]string{key: v}); err != nil {
			g.logger.Warn("skipper: save input", "key", key, "error", err)
		}
		return v, nil
	}
	vals, err := store.Get(ctx, []string{key})
	if err != nil {
		return "", err
	}
	if vals[key] == "" {
		return "", fmt.Errorf("no argument and no saved %s", key)
	}
	return vals[key], nil
}

func (g *globals) client() (*client, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return newClient(cfg.Server.Addr), nil
}

func newSkipCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "skip [time]",
		Short: "Seek to an absolute time (ss, mm:ss, hh:mm:ss); defaults to the saved time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := g.argOrSaved(cmd.Context(), args, settings.KeySavedTime)
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			resp, err := c.command(cmd.Context(), media.Request{Action: media.ActionSkipTo, Seconds: timecode.ParseAbsoluteLenient(v)})
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), resp)
		},
	}
}

func newForwardCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "forward [duration]",
		Short: "Move forward by a duration (90, 90s, 1m 30s, 1h); defaults to the saved duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := g.argOrSaved(cmd.Context(), args, settings.KeySavedDuration)
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			resp, err := c.command(cmd.Context(), media.Request{Action: media.ActionGoForward, Seconds: timecode.ParseRelativeLenient(v)})
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), resp)
		},
	}
}

func newOverlayCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Toggle or show the in-page skip bar",
	}
	for _, sub := range []struct {
		use, short string
		action     media.Action
	}{
		{"toggle", "Toggle the bar and persist the choice", media.ActionToggleOverlay},
		{"show", "Show the bar if the page has a video", media.ActionShowOverlay},
	} {
		action := sub.action
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				resp, err := c.command(cmd.Context(), media.Request{Action: action})
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), resp)
			},
		})
	}
	return cmd
}

func newStatusCmd(g *globals) *cobra.Command {
	var frames bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the daemon state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			path := "/v1/status"
			if frames {
				path = "/v1/frames"
			}
			return c.get(cmd.Context(), path, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "print the last frame tree instead")
	return cmd
}

func newSetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a setting (savedTime, savedDuration, overlayEnabled); a running daemon picks it up",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			switch key {
			case settings.KeySavedTime, settings.KeySavedDuration:
			case settings.KeyOverlayEnabled:
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("overlayEnabled: want true or false, got %q", value)
				}
				value = strconv.FormatBool(b)
			default:
				return fmt.Errorf("unknown setting %q", key)
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			store, err := settings.Open(cfg.Settings.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Set(cmd.Context(), map[string]string{key: value}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, value)
			return nil
		},
	}
}
