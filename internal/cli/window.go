//go:build !tinygo

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"sparkrt/app"
	"sparkrt/hal"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Run the system in a desktop window with a live timeline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		h := hal.NewHost(hal.HostOptions{Log: cmd.OutOrStdout()})
		a, err := app.New(h, cfg, app.Options{})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		err = hal.RunWindow(ctx, h, a.Run, a.Frame)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
