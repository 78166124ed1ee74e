package device

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/cdemu/cdemu-sub002/internal/audio"
	"github.com/cdemu/cdemu-sub002/internal/dispatch"
	"github.com/cdemu/cdemu-sub002/internal/dpm"
	"github.com/cdemu/cdemu-sub002/internal/feature"
	"github.com/cdemu/cdemu-sub002/internal/kernelio"
	"github.com/cdemu/cdemu-sub002/internal/logging"
	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/cdemu/cdemu-sub002/internal/recording"
	"github.com/cdemu/cdemu-sub002/internal/writespeed"
)

// sectorsPerMinute is the CD-ROM sector rate (75 sectors/second, 60
// seconds/minute) used to convert the cdrNN/dvd+r medium-type option
// values into a sector capacity (device-load.c cdemu_device_create_
// blank_disc_private).
const sectorsPerMinute = 60 * 75

// Callbacks holds the optional per-device signal handlers device.h
// declares (status-changed, option-changed, mapping-ready, kernel-io-
// error). A nil field is simply never called, the same idiom
// kernelio.ErrorFunc already uses for its single callback.
type Callbacks struct {
	StatusChanged func()
	OptionChanged func(name string)
	MappingReady  func()
	KernelIOError func(error)
}

// options collects the spec §6.3 device options, DPM's two flags
// included (device-id/device-serial live on dispatch.Context.Identity/
// Serial instead).
type options struct {
	badSectorEmulation bool
	dvdReportCSS       bool
	dpmEmulation       bool
	transferEmulation  bool
	daemonDebugMask    uint32
	libraryDebugMask   uint32
}

// Device is C13: one emulated optical drive. It owns the per-device
// dispatch.Context (mode pages, features, write speeds, DPM model,
// recording strategy, identity) and the kernelio.Bridge that serves it,
// and implements the lifecycle device.h exposes: initialize, start,
// stop, load_disc, create_blank_disc, unload_disc, get/set_option,
// get_mapping.
type Device struct {
	mu sync.Mutex

	number      int
	audioDriver string

	imageCtx mirage.Context
	writer   mirage.Writer

	ctx    *dispatch.Context
	bridge *kernelio.Bridge

	opts options

	logger *slog.Logger

	callbacks Callbacks

	ctlDevice string
	address   kernelio.ScsiAddress
	srDevice  string
	sgDevice  string
	filename  string
}

// New returns an uninitialized Device bound to imageCtx and writer, the
// two image-library collaborators spec §1 treats as external (a real
// mirage binding is out of scope; tests wire internal/mirage/memimage
// instead). logger is used for component debug-mask-gated logging
// (internal/logging); a nil logger falls back to slog.Default(). Call
// Initialize before using it.
func New(imageCtx mirage.Context, writer mirage.Writer, logger *slog.Logger, callbacks Callbacks) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{imageCtx: imageCtx, writer: writer, logger: logger, callbacks: callbacks}
}

// Initialize sets up the device's collaborators and default option
// values. device.h's cdemu_device_initialize takes only (number,
// audio_driver); the two debug masks spec §4.9's prose also lists are
// not constructor arguments there, since the daemon-debug-mask and
// library-debug-mask options in spec §6.3 are ordinary SetOption
// targets. This takes all four so a caller never has to make two calls
// to reach a fully configured device, but only number/audioDriver
// affect construction; the masks are applied via setOptionLocked so
// get_option("daemon-debug-mask") reflects whatever was passed here.
func (d *Device) Initialize(number int, audioDriver string, debugMaskDevice, debugMaskLibrary uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.number = number
	d.audioDriver = audioDriver

	pages := modepage.NewStore()
	pages.RegisterDefaults()

	features := feature.NewStore()
	speeds := writespeed.NewList()
	if err := speeds.ApplyTo(pages); err != nil {
		return newErr(DaemonError, "apply default write speeds: %v", err)
	}

	d.ctx = &dispatch.Context{
		Pages:       pages,
		Features:    features,
		WriteSpeeds: speeds,
		Audio:       audio.NewPlayer(),
		Profile:     mmc.ProfileNone,
		MediaEvent:  mmc.MediaEventNoChange,
	}
	d.ctx.Identity = defaultIdentity()
	d.ctx.Serial = defaultSerial(number)

	d.opts = options{dpmEmulation: true, transferEmulation: true}
	if err := d.setOptionLocked("daemon-debug-mask", debugMaskDevice); err != nil {
		return err
	}
	if err := d.setOptionLocked("library-debug-mask", debugMaskLibrary); err != nil {
		return err
	}
	return nil
}

// defaultIdentity is this emulator's INQUIRY vendor/product/revision,
// in the absence of any original_source/device-commands.c constant to
// ground it on (device-object.c, which would set these, isn't in the
// retrieval pack); chosen to read clearly as a virtual drive rather
// than impersonate a real one.
func defaultIdentity() dispatch.Identity {
	var id dispatch.Identity
	copy(id.Vendor[:], "cdemu   ")
	copy(id.Product[:], "Virtual CD/DVD-ROM")
	copy(id.Revision[:], "1.0 ")
	return id
}

func defaultSerial(number int) string {
	return "CDEMU" + strconv.Itoa(number)
}

// GetDeviceNumber returns the index this device was initialized with
// (device.h cdemu_device_get_device_number).
func (d *Device) GetDeviceNumber() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.number
}

// Status reports whether a disc is loaded and, if so, the filename it
// was loaded from (device.h cdemu_device_get_status; spec §4.9 doesn't
// name this operation but device.h declares it, and it's a one-line
// accessor over state this package already owns).
func (d *Device) Status() (loaded bool, filename string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ctx.MediumLoaded || d.ctx.Disc == nil {
		return false, ""
	}
	return true, d.filename
}

// Start opens ctlDevice and begins serving SCSI commands against this
// device's Context (device-kernel-io.c cdemu_device_start). It also
// makes a best-effort attempt to resolve the device's sysfs sr/sg
// mapping; if the kernel module reports the device isn't attached yet
// (kernelio.ErrDeviceNotReady), the mapping is left unresolved and
// mapping-ready does not fire — callers that need the mapping should
// poll RefreshMapping until it succeeds, mirroring the periodic retry
// the original schedules as an idle source.
func (d *Device) Start(ctlDevice string) error {
	d.mu.Lock()
	d.ctlDevice = ctlDevice
	d.bridge = kernelio.NewBridge(d.ctx, d.onKernelIOError)
	d.mu.Unlock()

	if err := d.bridge.Start(ctlDevice); err != nil {
		return errors.Wrap(err, "device: start")
	}
	logging.Debug(d.logger, d.opts.daemonDebugMask, logging.MaskKernelIO, "device started", "device", d.number, "ctl_device", ctlDevice)

	if err := d.RefreshMapping(); err != nil && err != kernelio.ErrDeviceNotReady {
		return errors.Wrap(err, "device: start")
	}
	return nil
}

// Stop shuts down the I/O thread and clears the cached sysfs mapping
// (device-kernel-io.c cdemu_device_stop).
func (d *Device) Stop() error {
	d.mu.Lock()
	bridge := d.bridge
	d.mu.Unlock()

	if bridge == nil {
		return nil
	}
	err := bridge.Stop()

	d.mu.Lock()
	d.srDevice = ""
	d.sgDevice = ""
	d.mu.Unlock()

	logging.Debug(d.logger, d.opts.daemonDebugMask, logging.MaskKernelIO, "device stopped", "device", d.number)

	if err != nil {
		return errors.Wrap(err, "device: stop")
	}
	return nil
}

// onKernelIOError is kernelio.ErrorFunc: it reports the failure to the
// owner and restarts the bridge on a fresh goroutine. Restarting
// synchronously here would deadlock: Bridge.Stop blocks on the I/O
// goroutine's done channel, which only closes once this very callback
// returns and the read loop unwinds, so the restart has to happen on a
// different goroutine than the one that is still inside the loop that
// called us (spec §5: the signal "is delivered to the main thread via
// an idle task", i.e. asynchronously relative to the dying I/O thread).
func (d *Device) onKernelIOError(err error) {
	logging.Debug(d.logger, d.opts.daemonDebugMask, logging.MaskKernelIO, "kernel I/O error, restarting device", "device", d.number, "error", err)
	if d.callbacks.KernelIOError != nil {
		d.callbacks.KernelIOError(err)
	}
	go func() {
		ctl := d.ctlDevice
		_ = d.Stop()
		_ = d.Start(ctl)
	}()
}

// RefreshMapping re-resolves the device's SCSI address and sysfs sr/sg
// device paths (device-mapping.c cdemu_device_setup_mapping/get_
// mapping) and fires MappingReady on success. It returns
// kernelio.ErrDeviceNotReady, unwrapped, when the kernel module hasn't
// finished attaching the device yet, so callers can tell "try again"
// apart from a real failure.
func (d *Device) RefreshMapping() error {
	d.mu.Lock()
	ctlDevice := d.ctlDevice
	d.mu.Unlock()

	addr, err := kernelio.DiscoverAddress(ctlDevice)
	if err != nil {
		return err
	}

	sr, sg := lookupSysfsMapping(addr)

	d.mu.Lock()
	d.address = addr
	d.srDevice = sr
	d.sgDevice = sg
	d.mu.Unlock()

	if d.callbacks.MappingReady != nil {
		d.callbacks.MappingReady()
	}
	return nil
}

// GetMapping returns the last sysfs-resolved sr (block) and sg
// (generic) device paths, empty if RefreshMapping hasn't succeeded yet
// (device-mapping.c cdemu_device_get_mapping).
func (d *Device) GetMapping() (sr, sg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srDevice, d.sgDevice
}

const sysfsDevicesDir = "/sys/bus/scsi/devices"

// lookupSysfsMapping scans /sys/bus/scsi/devices/{host}:{channel}:
// {target}:{lun}/ for the sr (block) and sg (scsi_generic) device names
// attached to addr, field-for-field from device-mapping.c's directory
// walk: a modern kernel exposes them as a "block"/"generic" entry
// (directory or symlink) named after the class, not the device; an
// older layout names the entry "block:sdX" or "scsi_generic:sgX"
// directly. Either entry missing just means that half of the mapping
// stays unresolved, not an error.
func lookupSysfsMapping(addr kernelio.ScsiAddress) (sr, sg string) {
	return lookupMappingIn(filepath.Join(sysfsDevicesDir, scsiAddressDir(addr)))
}

// lookupMappingIn does the actual directory walk against dir, split out
// from lookupSysfsMapping so tests can point it at a synthetic
// directory tree instead of the real /sys.
func lookupMappingIn(dir string) (sr, sg string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ""
	}

	for _, e := range entries {
		name := e.Name()
		switch {
		case sr == "" && strings.HasPrefix(name, "block:"):
			sr = strings.TrimPrefix(name, "block:")
		case sr == "" && name == "block" && e.IsDir():
			if sub, err := os.ReadDir(filepath.Join(dir, name)); err == nil && len(sub) > 0 {
				sr = sub[0].Name()
			}
		case sg == "" && strings.HasPrefix(name, "scsi_generic:"):
			sg = strings.TrimPrefix(name, "scsi_generic:")
		case sg == "" && name == "generic":
			if target, err := os.Readlink(filepath.Join(dir, name)); err == nil {
				sg = filepath.Base(target)
			}
		}
	}

	if sr != "" {
		sr = "/dev/" + sr
	}
	if sg != "" {
		sg = "/dev/" + sg
	}
	return sr, sg
}

func scsiAddressDir(addr kernelio.ScsiAddress) string {
	return strconv.FormatUint(uint64(addr.Host), 10) + ":" +
		strconv.FormatUint(uint64(addr.Channel), 10) + ":" +
		strconv.FormatUint(uint64(addr.Target), 10) + ":" +
		strconv.FormatUint(uint64(addr.LUN), 10)
}

// profileForMedium maps a loaded, read-only medium to its MMC profile
// (device-load.c cdemu_device_load_disc_private's medium_type switch).
func profileForMedium(medium mirage.MediumType) mmc.Profile {
	switch medium {
	case mirage.MediumDVD:
		return mmc.ProfileDVDROM
	case mirage.MediumBD:
		return mmc.ProfileBDROM
	default:
		return mmc.ProfileCDROM
	}
}

// LoadDisc opens the image files named by filenames through the
// injected mirage.Context, options first, exactly as device-load.c's
// cdemu_device_load_disc_private does: clear any previous image-library
// options, apply the new ones, then load (device-load.c).
func (d *Device) LoadDisc(filenames []string, imageOptions map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.MediumLoaded {
		return newErr(AlreadyLoaded, "medium is already loaded")
	}
	if len(filenames) == 0 {
		return newErr(InvalidArgument, "no image filenames given")
	}

	d.imageCtx.ClearOptions()
	for k, v := range imageOptions {
		d.imageCtx.SetOption(k, v)
	}

	disc, err := d.imageCtx.LoadImage(filenames)
	if err != nil {
		return newErr(DaemonError, "%s", errors.Wrap(err, "load image"))
	}

	d.ctx.Disc = disc
	d.ctx.Writer = nil
	d.ctx.Recording = nil
	d.ctx.RecordingMode = mmc.RecordingModeNone
	d.ctx.MediumType = disc.MediumType()
	d.ctx.Profile = profileForMedium(d.ctx.MediumType)
	d.ctx.Features.SetProfile(d.ctx.Profile)
	d.ctx.DiscClosed = true
	d.ctx.LeadoutStart = disc.LayoutStartSector() + disc.LayoutLength()
	d.ctx.MediumLoaded = true
	d.ctx.MediaEvent = mmc.MediaEventNewMedia
	d.ctx.DPM = dpm.New(disc, dpm.RealClock)
	d.ctx.DPM.SetOptions(d.opts.dpmEmulation, d.opts.transferEmulation)
	d.filename = filenames[0]

	logging.Debug(d.logger, d.opts.daemonDebugMask, logging.MaskDevice, "loaded disc", "device", d.number, "filename", d.filename, "profile", d.ctx.Profile)
	d.fireStatusChanged()
	return nil
}

// mediumTypeCapacity maps the create_blank_disc "medium-type" option
// value to a medium and its sector capacity (device-load.c cdemu_
// device_create_blank_disc_private: cdrNN values are N minutes of
// audio-CD sectors, dvd+r is a fixed single-layer DVD+R capacity).
func mediumTypeCapacity(value string) (medium mirage.MediumType, capacity int, ok bool) {
	switch value {
	case "", "cdr80":
		return mirage.MediumCD, 80 * sectorsPerMinute, true
	case "cdr74":
		return mirage.MediumCD, 74 * sectorsPerMinute, true
	case "cdr90":
		return mirage.MediumCD, 90 * sectorsPerMinute, true
	case "cdr99":
		return mirage.MediumCD, 99 * sectorsPerMinute, true
	case "dvd+r":
		return mirage.MediumDVD, 2295104, true
	default:
		return 0, 0, false
	}
}

// CreateBlankDisc creates a new writable image at filename (device-
// load.c cdemu_device_create_blank_disc_private): medium-type selects
// the medium (CD or DVD+R) and with it the leadin/start-sector layout;
// the capacity mediumTypeCapacity reports is not applied to the new
// disc. Every "writer."-prefixed
// option is passed through to the injected mirage.Writer, and recording
// starts in TAO mode, matching the original's default.
func (d *Device) CreateBlankDisc(filename string, createOptions map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.MediumLoaded {
		return newErr(AlreadyLoaded, "medium is already loaded")
	}

	mediumTypeValue, _ := createOptions["medium-type"].(string)
	medium, _, ok := mediumTypeCapacity(mediumTypeValue)
	if !ok {
		return newErr(InvalidArgument, "invalid medium type %q", mediumTypeValue)
	}

	leadin := -11077
	startSector := -150
	profile := mmc.ProfileCDR
	if medium == mirage.MediumDVD {
		leadin = 0
		startSector = 0
		profile = mmc.ProfileDVDPlusR
	}

	disc, err := d.imageCtx.NewDisc(medium)
	if err != nil {
		return newErr(DaemonError, "create disc: %v", err)
	}
	disc.SetFilename(filename)
	disc.SetMediumType(medium)
	disc.LayoutSetStartSector(startSector)

	writerParams := make(map[string]any)
	for k, v := range createOptions {
		if strings.HasPrefix(k, "writer.") {
			writerParams[strings.TrimPrefix(k, "writer.")] = v
		}
	}
	if err := d.writer.OpenImage(disc, writerParams); err != nil {
		return newErr(DaemonError, "open image for writing: %v", err)
	}

	strategy, err := recording.NewStrategy(recording.ModeTAO, disc, d.writer, d.ctx.Pages, leadin)
	if err != nil {
		return newErr(DaemonError, "init recording strategy: %v", err)
	}

	d.ctx.Disc = disc
	d.ctx.Writer = d.writer
	d.ctx.Recording = strategy
	d.ctx.RecordingMode = mmc.RecordingModeTAO
	d.ctx.MediumType = medium
	d.ctx.Profile = profile
	d.ctx.Features.SetProfile(profile)
	d.ctx.DiscClosed = false
	d.ctx.LeadoutStart = 0
	d.ctx.MediumLoaded = true
	d.ctx.MediaEvent = mmc.MediaEventNewMedia
	d.ctx.DPM = nil
	d.filename = filename

	logging.Debug(d.logger, d.opts.daemonDebugMask, logging.MaskRecording, "created blank disc", "device", d.number, "filename", d.filename, "profile", profile)
	d.fireStatusChanged()
	return nil
}

// UnloadDisc releases the loaded (or in-progress blank) disc. force
// overrides the device lock the way spec §4.9 describes; without it,
// a locked device fails with DeviceLocked, exactly as device-load.c's
// cdemu_device_unload_disc_private does. The pending media event is set
// to eject-request before the lock check runs either way, matching the
// original: a host that polls GET EVENT STATUS NOTIFICATION learns an
// eject was attempted even when it's refused.
func (d *Device) UnloadDisc(force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ctx.MediaEvent = mmc.MediaEventEjectRequest

	if !force && d.ctx.Locked {
		return newErr(DeviceLocked, "device is locked")
	}
	if !d.ctx.MediumLoaded {
		return nil
	}

	d.ctx.Disc = nil
	d.ctx.Writer = nil
	d.ctx.Recording = nil
	d.ctx.RecordingMode = mmc.RecordingModeNone
	d.ctx.MediumLoaded = false
	d.ctx.DiscClosed = false
	d.ctx.Profile = mmc.ProfileNone
	d.ctx.Features.SetProfile(mmc.ProfileNone)
	d.ctx.MediaEvent = mmc.MediaEventRemoval
	d.ctx.LeadoutStart = 0
	d.ctx.DPM = nil
	d.filename = ""

	logging.Debug(d.logger, d.opts.daemonDebugMask, logging.MaskDevice, "unloaded disc", "device", d.number, "forced", force)
	d.fireStatusChanged()
	return nil
}

func (d *Device) fireStatusChanged() {
	if d.callbacks.StatusChanged != nil {
		d.callbacks.StatusChanged()
	}
}
