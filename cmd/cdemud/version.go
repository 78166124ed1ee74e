package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...";
// "dev" is what a plain `go build` produces.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:                   "version",
	Short:                 "Print the cdemud version",
	Args:                  cobra.NoArgs,
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
