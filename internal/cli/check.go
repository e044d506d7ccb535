//go:build !tinygo

package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sparkrt/app"
	"sparkrt/hal"
	"sparkrt/kernel"
)

var (
	checkPrint bool

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Validate a description and print its priority analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Building on a silent board runs every check the kernel makes.
			h := hal.NewHost(hal.HostOptions{Log: io.Discard})
			a, err := app.New(h, cfg, app.Options{Counter: kernel.NewManualCounter(cfg.ClockHz, 0)})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if checkPrint {
				b, err := cfg.Marshal()
				if err != nil {
					return err
				}
				w.Write(b)
				fmt.Fprintln(w, "---")
			}
			printAnalysis(w, a.System().Analysis())
			return nil
		},
	}
)

func init() {
	checkCmd.Flags().BoolVarP(&checkPrint, "print", "p", false, "print the normalized description first")
}

func printAnalysis(w io.Writer, an kernel.Analysis) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tPRIO\tBINDING\tRESOURCES\tBLOCKED BY")
	for _, t := range an.Tasks {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", t.Name, t.Priority, t.Binding, list(t.Resources), list(t.BlockedBy))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RESOURCE\tCEILING\tACCESSORS")
	for _, r := range an.Resources {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Name, r.Ceiling, list(r.Accessors))
	}
	tw.Flush()
	for _, g := range an.Groups {
		fmt.Fprintf(w, "group: %s\n", strings.Join(g, ", "))
	}
	if len(an.LockOrder) > 0 {
		fmt.Fprintf(w, "lock order: %s\n", strings.Join(an.LockOrder, " < "))
	}
}

func list(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ",")
}
