//go:build !tinygo

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sparkrt/app"
	"sparkrt/hal"
	"sparkrt/kernel"
	"sparkrt/trace"
)

var (
	traceOpts = struct {
		duration time.Duration
		stimuli  []string
		png      string
		dump     string
		width    int
		verify   bool
	}{}

	traceCmd = &cobra.Command{
		Use:   "trace",
		Short: "Simulate the system tick by tick and record what ran",
		Long: "Simulate the system on a manual clock, applying stimuli such as\n" +
			"  --at 1@100ms            press key 1 at 100ms\n" +
			"  --at serial:hello@250ms  receive \"hello\" at 250ms\n" +
			"and write the recorded trace as text or a PNG chart.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var script []app.Stimulus
			for _, s := range traceOpts.stimuli {
				st, err := app.ParseStimulus(s)
				if err != nil {
					return err
				}
				script = append(script, st)
			}

			mc := kernel.NewManualCounter(cfg.ClockHz, 0)
			h := hal.NewHost(hal.HostOptions{Log: cmd.ErrOrStderr(), Now: app.SimClock(mc)})
			a, err := app.New(h, cfg, app.Options{Counter: mc, TraceLimit: 1 << 16})
			if err != nil {
				return err
			}
			simErr := a.Simulate(mc, traceOpts.duration, script)

			events := a.Recorder().Events()
			names := trace.Names(a.System().TaskName)
			if n := a.Recorder().Evicted(); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "trace: %d oldest events evicted\n", n)
			}
			if traceOpts.dump != "" {
				err := writeTo(cmd.OutOrStdout(), traceOpts.dump, func(w io.Writer) error {
					return trace.Dump(w, events, names)
				})
				if err != nil {
					return err
				}
			}
			if traceOpts.png != "" {
				opts := trace.PNGOptions{Width: traceOpts.width, Levels: a.System().Levels(), Names: names}
				err := writeTo(cmd.OutOrStdout(), traceOpts.png, func(w io.Writer) error {
					return trace.RenderPNG(w, trace.Spans(events), opts)
				})
				if err != nil {
					return err
				}
			}
			if traceOpts.verify {
				if err := trace.Verify(events); err != nil {
					return errors.Join(simErr, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "trace: %d events, %d task runs, order ok\n", len(events), len(trace.Spans(events)))
			}
			return simErr
		},
	}
)

func init() {
	traceCmd.Flags().DurationVarP(&traceOpts.duration, "duration", "d", time.Second, "simulated time")
	traceCmd.Flags().StringArrayVar(&traceOpts.stimuli, "at", nil, "stimulus KEY@TIME or serial:TEXT@TIME (repeatable)")
	traceCmd.Flags().StringVar(&traceOpts.png, "png", "", "write a chart to this file (- for stdout)")
	traceCmd.Flags().StringVar(&traceOpts.dump, "dump", "", "write the event log to this file (- for stdout)")
	traceCmd.Flags().IntVar(&traceOpts.width, "width", 1200, "chart width in pixels")
	traceCmd.Flags().BoolVar(&traceOpts.verify, "verify", false, "check that tasks ran in priority order")
}

func writeTo(stdout io.Writer, path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
