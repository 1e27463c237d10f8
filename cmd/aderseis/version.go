package main

import (
	"fmt"
	"runtime"

	"github.com/notargets/aderseis/parallel"
	"github.com/spf13/cobra"
)

// version is set at link time with -ldflags "-X main.version=..."
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of aderseis and its transports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "aderseis %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "transport %s\n", parallel.NewLocalWorld(1).Rank(0).Version())
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as yaml.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.WriteYAML(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, configCmd)
}
