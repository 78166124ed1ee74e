// Package logging sets up log/slog the way every teacher main()
// configures it (-v/-log-format flags driving slog.HandlerOptions and
// NewTextHandler/NewJSONHandler against stderr), plus a per-device
// debug-mask gate standing in for debug.h's CDEMU_DEBUG(self, MASK, ...)
// macro: a log line tagged with a component mask is only emitted if
// that bit is set in the device's daemon-debug-mask option.
package logging

import (
	"log/slog"
	"os"
)

// Mask bits mirror debug.h's DAEMON_DEBUG_* enum (device component
// masks; MIRAGE_DEBUG_* equivalents for the library side are out of
// scope since the image library itself is external, spec §1).
type Mask uint32

const (
	MaskDevice    Mask = 0x0001
	MaskMMC       Mask = 0x0002
	MaskDelay     Mask = 0x0004
	MaskAudioPlay Mask = 0x0008
	MaskKernelIO  Mask = 0x0010
	MaskRecording Mask = 0x0020
)

// New configures the default slog logger: text or json handler against
// stderr, LevelDebug when verbose is set, LevelInfo otherwise. format
// is anything other than "json" is treated as "text".
func New(verbose bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// Debug logs msg at LevelDebug, gated on mask being set in the given
// device debug mask — the Go equivalent of CDEMU_DEBUG(self, mask, ...)
// checking self->priv->debug_mask before formatting anything.
func Debug(logger *slog.Logger, deviceDebugMask uint32, mask Mask, msg string, args ...any) {
	if uint32(mask)&deviceDebugMask == 0 {
		return
	}
	logger.Debug(msg, args...)
}
