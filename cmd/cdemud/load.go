package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cdemu/cdemu-sub002/internal/device"
	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
)

var (
	loadDeviceNumber int
	loadAudioDriver  string
)

var loadCmd = &cobra.Command{
	Use:                   "load <control-device> <image-file> [image-file...]",
	Short:                 "Start one device directly from the command line, load an image, and serve until interrupted",
	Args:                  cobra.MinimumNArgs(2),
	DisableFlagsInUseLine: true,
	RunE:                  runLoad,
}

func init() {
	loadCmd.Flags().IntVarP(&loadDeviceNumber, "number", "n", 0, "device number reported in INQUIRY/sense data")
	loadCmd.Flags().StringVar(&loadAudioDriver, "audio-driver", "none", "audio playback backend")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctlDevice, filenames := args[0], args[1:]

	d := device.New(memimage.NewContext(), memimage.NewWriter(), logger, device.Callbacks{
		StatusChanged: func() { logger.Info("status changed", "device", loadDeviceNumber) },
		KernelIOError: func(err error) { logger.Error("kernel I/O error", "device", loadDeviceNumber, "error", err) },
	})

	if err := d.Initialize(loadDeviceNumber, loadAudioDriver, 0, 0); err != nil {
		return fmt.Errorf("initialize device: %w", err)
	}

	if err := d.Start(ctlDevice); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	defer func() {
		if err := d.Stop(); err != nil {
			logger.Error("error stopping device", "error", err)
		}
	}()

	if err := d.LoadDisc(filenames, nil); err != nil {
		return fmt.Errorf("load disc: %w", err)
	}

	logger.Info("disc loaded, serving until interrupted", "control_device", ctlDevice, "filenames", filenames)
	waitForSignal()
	return nil
}
