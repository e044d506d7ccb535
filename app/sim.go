package app

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"sparkrt/kernel"
)

// Stimulus is an input applied at a point of a simulated run: a key press
// or a burst of serial bytes.
type Stimulus struct {
	At     time.Duration
	Key    string
	Serial []byte
}

func (s Stimulus) String() string {
	if s.Serial != nil {
		return fmt.Sprintf("serial:%s@%v", s.Serial, s.At)
	}
	return fmt.Sprintf("%s@%v", s.Key, s.At)
}

// ParseStimulus reads "KEY@TIME" or "serial:TEXT@TIME", with TIME in
// time.ParseDuration form.
func ParseStimulus(s string) (Stimulus, error) {
	i := strings.LastIndexByte(s, '@')
	if i < 0 {
		return Stimulus{}, fmt.Errorf("stimulus %q: missing @time", s)
	}
	at, err := time.ParseDuration(s[i+1:])
	if err != nil {
		return Stimulus{}, fmt.Errorf("stimulus %q: %w", s, err)
	}
	if at < 0 {
		return Stimulus{}, fmt.Errorf("stimulus %q: negative time", s)
	}
	what := s[:i]
	if text, ok := strings.CutPrefix(what, "serial:"); ok {
		return Stimulus{At: at, Serial: []byte(text)}, nil
	}
	if what == "" {
		return Stimulus{}, fmt.Errorf("stimulus %q: missing key", s)
	}
	return Stimulus{At: at, Key: what}, nil
}

// SimClock returns a wall clock that follows mc, so board peripherals that
// read the time agree with a simulated run.
func SimClock(mc *kernel.ManualCounter) func() time.Time {
	epoch := time.Unix(0, 0)
	return func() time.Time {
		return epoch.Add(time.Duration(mc.Now()) * time.Second / time.Duration(mc.Hz()))
	}
}

// Simulate runs the system one tick at a time for d, advancing mc between
// steps and applying script as its times come up. Everything happens on the
// calling goroutine, so the trace is repeatable. mc must be the counter the
// App was built with.
func (a *App) Simulate(mc *kernel.ManualCounter, d time.Duration, script []Stimulus) error {
	if a.opts.Counter != kernel.Counter(mc) {
		return errors.New("app: simulate: counter is not the system clock")
	}
	script = slices.Clone(script)
	slices.SortStableFunc(script, func(x, y Stimulus) int { return cmp.Compare(x.At, y.At) })

	clk := a.sys.Clock()
	end := clk.Ticks(d)
	next := 0
	for step := kernel.Duration(0); step <= end; step++ {
		for next < len(script) && clk.Ticks(script[next].At) <= step {
			if err := a.apply(script[next]); err != nil {
				return err
			}
			next++
		}
		if err := a.sys.RunPending(); err != nil {
			return err
		}
		if step < end {
			mc.Advance(1)
		}
	}
	return nil
}

func (a *App) apply(s Stimulus) error {
	if s.Serial != nil {
		_, err := a.Receive(s.Serial)
		if errors.Is(err, kernel.ErrInsufficientSpace) {
			a.log.WriteLineString(err.Error())
			return nil
		}
		if err != nil {
			return fmt.Errorf("app: %v: %w", s, err)
		}
		return nil
	}
	return a.Press(s.Key)
}
