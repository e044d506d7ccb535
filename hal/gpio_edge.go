package hal

import (
	"context"
	"fmt"
	"time"
)

// Edge selects which transitions WatchEdges reports.
type Edge uint8

const (
	EdgeRising Edge = 1 << iota
	EdgeFalling
	EdgeBoth = EdgeRising | EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return fmt.Sprintf("Edge(%d)", uint8(e))
}

// ParseEdge accepts "rising", "falling" and "both".
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both", "":
		return EdgeBoth, nil
	}
	return 0, fmt.Errorf("gpio: unknown edge %q", s)
}

type edgeDetector struct {
	edge   Edge
	last   bool
	primed bool
}

// step feeds one sample and reports whether it completes a watched edge.
// The first sample only primes the detector.
func (d *edgeDetector) step(level bool) bool {
	if !d.primed {
		d.primed = true
		d.last = level
		return false
	}
	prev := d.last
	d.last = level
	switch {
	case !prev && level:
		return d.edge&EdgeRising != 0
	case prev && !level:
		return d.edge&EdgeFalling != 0
	}
	return false
}

// WatchEdges samples pin every interval and calls fn with the new level on
// each watched transition. It returns when ctx is done or a read fails.
// Pulses shorter than interval may be missed.
func WatchEdges(ctx context.Context, pin GPIOPin, edge Edge, interval time.Duration, fn func(level bool)) error {
	if pin == nil {
		return fmt.Errorf("gpio: watch: nil pin")
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	d := edgeDetector{edge: edge}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		level, err := pin.Read()
		if err != nil {
			return fmt.Errorf("gpio: watch %s: %w", pin.Name(), err)
		}
		if d.step(level) {
			fn(level)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
