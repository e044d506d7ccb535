//go:build !tinygo

// Package cli is the host command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"sparkrt/config"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "sparkrt",
		Short:         "Priority-ceiling interrupt scheduler on a simulated board",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "system description (default: built-in demo)")
	rootCmd.AddCommand(runCmd, windowCmd, checkCmd, traceCmd, versionCmd)
}

// Execute runs the command line with os.Args.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.System, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}
