package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cdemu/cdemu-sub002/internal/config"
	"github.com/cdemu/cdemu-sub002/internal/device"
	"github.com/cdemu/cdemu-sub002/internal/logging"
	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
)

var (
	runConfigPath string
	runInteractive bool
)

var runCmd = &cobra.Command{
	Use:                   "run",
	Short:                 "Start every device listed in the config file and serve it until interrupted",
	Args:                  cobra.NoArgs,
	DisableFlagsInUseLine: true,
	RunE:                  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "/etc/cdemud.yaml", "path to the daemon config file")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "enter an interactive raw-mode status console instead of blocking on signals")
}

// newDeviceForConfig builds and starts one Device from its config entry.
// The image-library collaborator is internal/mirage/memimage, the only
// mirage.Context/Writer implementation this module ships — a real
// binding is external to this system (spec §1) and would be injected
// here in its place.
func newDeviceForConfig(dc config.DeviceConfig) (*device.Device, error) {
	d := device.New(memimage.NewContext(), memimage.NewWriter(), logger, device.Callbacks{
		StatusChanged: func() {
			logger.Info("status changed", "device", *dc.Number)
		},
		OptionChanged: func(name string) {
			logger.Debug("option changed", "device", *dc.Number, "option", name)
		},
		MappingReady: func() {
			logger.Info("mapping ready", "device", *dc.Number)
		},
		KernelIOError: func(err error) {
			logger.Error("kernel I/O error", "device", *dc.Number, "error", err)
		},
	})

	daemonMask := uint32(0)
	if dc.DaemonDebugMask != nil {
		daemonMask = *dc.DaemonDebugMask
	}
	libraryMask := uint32(0)
	if dc.LibraryDebugMask != nil {
		libraryMask = *dc.LibraryDebugMask
	}

	if err := d.Initialize(*dc.Number, dc.AudioDriver, daemonMask, libraryMask); err != nil {
		return nil, fmt.Errorf("initialize device %d: %w", *dc.Number, err)
	}

	for name, value := range dc.Options {
		if err := d.SetOption(name, value); err != nil {
			return nil, fmt.Errorf("set option %q on device %d: %w", name, *dc.Number, err)
		}
	}

	if err := d.Start(dc.ControlDevice); err != nil {
		return nil, fmt.Errorf("start device %d: %w", *dc.Number, err)
	}

	if len(dc.Image) > 0 {
		if err := d.LoadDisc(dc.Image, dc.ImageOptions); err != nil {
			return nil, fmt.Errorf("auto-load image on device %d: %w", *dc.Number, err)
		}
	}

	return d, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	devices := make([]*device.Device, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		d, err := newDeviceForConfig(dc)
		if err != nil {
			stopAll(devices)
			return err
		}
		devices = append(devices, d)
		logging.Debug(logger, 0, logging.MaskDevice, "device online", "device", *dc.Number, "control_device", dc.ControlDevice)
	}

	if runInteractive {
		runInteractiveConsole(devices)
	} else {
		waitForSignal()
	}

	stopAll(devices)
	return nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
}

func stopAll(devices []*device.Device) {
	var wg sync.WaitGroup
	for _, d := range devices {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Stop(); err != nil {
				logger.Error("error stopping device", "error", err)
			}
		}()
	}
	wg.Wait()
}

// runInteractiveConsole puts stdin into raw mode and dispatches single-
// byte commands ('q' to quit, 's' to print every device's status)
// while devices keep serving in the background, the same MakeRaw/
// Restore/single-byte-Read loop permissionsedit's selectMenu uses.
func runInteractiveConsole(devices []*device.Device) {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "interactive console unavailable: %v\r\n", err)
		waitForSignal()
		return
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	fmt.Printf("cdemud interactive console: 's' status, 'q' quit\r\n")

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		switch buf[0] {
		case 'q', 0x03:
			fmt.Printf("\r\n")
			return
		case 's':
			for i, d := range devices {
				loaded, filename := d.Status()
				sr, sg := d.GetMapping()
				fmt.Printf("device %d: loaded=%v filename=%q sr=%q sg=%q\r\n", i, loaded, filename, sr, sg)
			}
		}
	}
}
