//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	// Duration stops the run after this long. Zero runs until ctx is done.
	Duration time.Duration
	// TTY forwards terminal keystrokes to the keyboard.
	TTY bool
}

// RunHeadless runs the system without opening a window. Running out of
// time or being cancelled is a clean exit.
func RunHeadless(ctx context.Context, h HAL, run func(context.Context) error, cfg HeadlessConfig) error {
	var cancel context.CancelFunc
	if cfg.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return run(gctx)
	})
	if cfg.TTY {
		g.Go(func() error { return AttachTTY(gctx, h) })
	}
	err := g.Wait()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
