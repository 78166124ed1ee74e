package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cdemu/cdemu-sub002/internal/config"
)

var devicesConfigPath string

var devicesCmd = &cobra.Command{
	Use:                   "devices",
	Short:                 "Start every configured device just long enough to print its kernel mapping, then stop it",
	Args:                  cobra.NoArgs,
	DisableFlagsInUseLine: true,
	RunE:                  runDevices,
}

func init() {
	devicesCmd.Flags().StringVarP(&devicesConfigPath, "config", "c", "/etc/cdemud.yaml", "path to the daemon config file")
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(devicesConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tCONTROL DEVICE\tSR\tSG\tSTATUS")

	for _, dc := range cfg.Devices {
		d, err := newDeviceForConfig(dc)
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			continue
		}

		sr, sg := d.GetMapping()
		loaded, filename := d.Status()
		status := "empty"
		if loaded {
			status = filename
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", *dc.Number, dc.ControlDevice, sr, sg, status)

		if err := d.Stop(); err != nil {
			fmt.Fprintln(w, "error stopping device:", err)
		}
	}

	return w.Flush()
}
