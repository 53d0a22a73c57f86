// Package poll provides a bounded poll-with-timeout primitive.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Until when the ceiling elapses first.
var ErrTimeout = errors.New("poll: timeout")

// Until evaluates cond immediately and then every interval until it
// reports true, ctx is done, or ceiling elapses. cond errors abort the
// wait. A ceiling <= 0 means no ceiling beyond ctx.
func Until(ctx context.Context, interval, ceiling time.Duration, cond func(context.Context) (bool, error)) error {
	if ok, err := cond(ctx); err != nil || ok {
		return err
	}

	var deadline <-chan time.Time
	if ceiling > 0 {
		timer := time.NewTimer(ceiling)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrTimeout
		case <-ticker.C:
			ok, err := cond(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}
