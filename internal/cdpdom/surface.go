package cdpdom

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/skipper/internal/overlay"
	"github.com/hazyhaar/skipper/media"
)

// ErrNoBody is returned by Mount when the document has no body to hold
// the bar yet.
var ErrNoBody = errors.New("cdpdom: overlay not mounted: document has no body")

type evalFunc func(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error)

// Surface renders the overlay bar into the tab's top document.
type Surface struct {
	eval   evalFunc
	policy *bluemonday.Policy
}

// NewSurface returns a Surface drawing into p.
func NewSurface(p *Page) *Surface {
	rp := p.rod
	return &Surface{
		eval: func(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
			return rp.Context(ctx).Eval(js, args...)
		},
		policy: bluemonday.StrictPolicy(),
	}
}

// clean strips markup from text that ends up in the page. The result is
// assigned as textContent, so entities are decoded back.
func (s *Surface) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func (s *Surface) call(ctx context.Context, method string, args ...any) (*proto.RuntimeRemoteObject, error) {
	// The document may have been replaced since the script was installed.
	if _, err := s.eval(ctx, overlayJS); err != nil {
		return nil, fmt.Errorf("cdpdom: overlay script: %w", err)
	}
	js := fmt.Sprintf(`(...a) => window.__skipperOverlay.%s(...a)`, method)
	res, err := s.eval(ctx, js, args...)
	if err != nil {
		return nil, fmt.Errorf("cdpdom: overlay %s: %w", method, err)
	}
	return res, nil
}

func (s *Surface) do(ctx context.Context, method string, args ...any) error {
	_, err := s.call(ctx, method, args...)
	return err
}

func (s *Surface) Mount(ctx context.Context, v overlay.View) error {
	view := map[string]string{"time": s.clean(v.Time), "duration": s.clean(v.Duration)}
	res, err := s.call(ctx, "mount", view)
	if err != nil {
		return err
	}
	if res == nil || !res.Value.Bool() {
		return ErrNoBody
	}
	return nil
}

func (s *Surface) BeginExit(ctx context.Context) error { return s.do(ctx, "beginExit") }

func (s *Surface) Unmount(ctx context.Context) error { return s.do(ctx, "unmount") }

func (s *Surface) Status(ctx context.Context, kind, message string) error {
	return s.do(ctx, "status", kind, s.clean(message))
}

func (s *Surface) Notice(ctx context.Context, n media.Notice) error {
	if !strings.HasPrefix(n.URL, "http://") && !strings.HasPrefix(n.URL, "https://") {
		return fmt.Errorf("cdpdom: notice: refusing url %q", n.URL)
	}
	return s.do(ctx, "notice", s.clean(n.Host), n.URL)
}
