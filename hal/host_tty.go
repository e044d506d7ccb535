//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"

	tty "github.com/mattn/go-tty"
)

// AttachTTY forwards characters typed on the controlling terminal to the
// HAL keyboard until ctx is done. The terminal is left in non-canonical,
// no-echo mode while attached.
func AttachTTY(ctx context.Context, h HAL) error {
	hh, ok := h.(*hostHAL)
	if !ok {
		return errors.New("tty: requires the host HAL")
	}
	t, err := tty.Open()
	if err != nil {
		return fmt.Errorf("tty: %w", err)
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		t.Close()
	}()

	for {
		r, err := t.ReadRune()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tty: %w", err)
		}
		if r == 0 {
			continue
		}
		hh.kbd.push(KeyEventForRune(r))
	}
}
