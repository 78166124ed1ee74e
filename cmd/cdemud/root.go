package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cdemu/cdemu-sub002/internal/logging"
)

var (
	verbose   bool
	logFormat string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "cdemud",
	Short:         "cdemud emulates SCSI/ATAPI optical drives against a kernel virtual-HBA device",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(verbose, logFormat)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(versionCmd)
}
