package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sparkrt/hal"
	"sparkrt/kernel"
)

// edgePoll is how often watched pins are sampled.
const edgePoll = 2 * time.Millisecond

// Serve connects the board to the interrupt sources until ctx is done: the
// tick stream drives the timer, watched pins and bound keys raise their
// sources, and serial input feeds the receiver.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.opts.Counter == nil {
		g.Go(func() error { return a.pumpTicks(ctx) })
	}
	for _, in := range a.cfg.Interrupts {
		irq := kernel.IRQ(in.IRQ)
		if in.Pin != "" {
			a.watch(ctx, g, in.Pin, in.Edge, func() error { return a.sys.Pend(irq) })
		}
		for _, l := range in.Lines {
			if l.Pin == "" {
				continue
			}
			line := l.Name
			a.watch(ctx, g, l.Pin, l.Edge, func() error { return a.sys.PendLine(irq, line) })
		}
	}
	if in := a.h.Input(); in != nil {
		if kb := in.Keyboard(); kb != nil {
			g.Go(func() error { return a.pumpKeys(ctx, kb) })
		}
	}
	if len(a.rx) > 0 && a.h.Serial() != nil {
		g.Go(func() error { return a.pumpSerial(ctx, a.h.Serial()) })
	}
	return g.Wait()
}

func (a *App) pumpTicks(ctx context.Context) error {
	ticks := a.h.Time().Ticks()
	if ticks == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			a.sys.Tick()
		}
	}
}

func (a *App) watch(ctx context.Context, g *errgroup.Group, name, edge string, raise func() error) {
	pin := hal.FindPin(a.h.GPIO(), name)
	if pin == nil {
		a.log.WriteLineString(fmt.Sprintf("app: pin %s not on this board", name))
		return
	}
	e, err := hal.ParseEdge(edge)
	if err != nil {
		a.log.WriteLineString(fmt.Sprintf("app: pin %s: %v", name, err))
		return
	}
	g.Go(func() error {
		return hal.WatchEdges(ctx, pin, e, edgePoll, func(bool) {
			if err := raise(); err != nil {
				a.log.WriteLineString(fmt.Sprintf("app: pin %s: %v", name, err))
			}
		})
	})
}

func (a *App) pumpKeys(ctx context.Context, kb hal.Keyboard) error {
	events := kb.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if !ev.Press || ev.Rune == 0 {
				continue
			}
			err := a.Press(string(ev.Rune))
			if err != nil && !errors.Is(err, ErrUnboundKey) {
				a.log.WriteLineString(err.Error())
			}
		}
	}
}

// pumpSerial blocks in Read, so it only notices cancellation once the
// stream delivers or closes.
func (a *App) pumpSerial(ctx context.Context, in hal.Serial) error {
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := in.Read(buf)
		if n > 0 {
			if _, rerr := a.Receive(buf[:n]); rerr != nil {
				if !errors.Is(rerr, kernel.ErrInsufficientSpace) {
					return rerr
				}
				a.log.WriteLineString(rerr.Error())
			}
		}
		if err != nil {
			if errors.Is(err, hal.ErrNotImplemented) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("app: serial: %w", err)
		}
	}
	return nil
}
