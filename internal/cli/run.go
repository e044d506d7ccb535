//go:build !tinygo

package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sparkrt/app"
	"sparkrt/hal"
)

var (
	runOpts = struct {
		duration    time.Duration
		tty         bool
		serialStdin bool
	}{}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the system without a window",
		Long: "Run the system on the host board in real time. Keys bound in the description\n" +
			"raise their interrupts when --tty is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := hal.HostOptions{Log: cmd.OutOrStdout()}
			if runOpts.serialStdin {
				opts.Serial = struct {
					io.Reader
					io.Writer
				}{cmd.InOrStdin(), cmd.OutOrStdout()}
			}
			h := hal.NewHost(opts)
			a, err := app.New(h, cfg, app.Options{})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			err = hal.RunHeadless(ctx, h, a.Run, hal.HeadlessConfig{Duration: runOpts.duration, TTY: runOpts.tty})
			report(cmd.OutOrStdout(), a)
			return err
		},
	}
)

func init() {
	runCmd.Flags().DurationVarP(&runOpts.duration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().BoolVar(&runOpts.tty, "tty", false, "read keys from the terminal")
	runCmd.Flags().BoolVar(&runOpts.serialStdin, "serial-stdin", false, "connect the board serial port to stdin/stdout")
}

// report prints the dispatcher counters and per-source statistics.
func report(w io.Writer, a *app.App) {
	st := a.System().Stats()
	fmt.Fprintf(w, "dispatches %d, preemptions %d, max depth %d, timer drops %d, spawn full %d, queue drops %d\n",
		st.Dispatches, st.Preemptions, st.MaxDepth, st.TimerDrops, st.SpawnFull, a.Dropped())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IRQ\tSOURCE\tPRIO\tARRIVALS\tCOALESCED")
	for _, s := range st.Sources {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", s.IRQ, s.Name, s.Priority, s.Arrivals, s.Coalesced)
	}
	tw.Flush()
	if err := a.System().Err(); err != nil {
		fmt.Fprintf(w, "halted: %v\n", err)
	}
}
