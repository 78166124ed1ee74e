package device

// Device options (spec §6.3): every name get_option/set_option accept.
const (
	OptionDPMEmulation       = "dpm-emulation"
	OptionTransferEmulation  = "tr-emulation"
	OptionBadSectorEmulation = "bad-sector-emulation"
	OptionDVDReportCSS       = "dvd-report-css"
	OptionDeviceID           = "device-id"
	OptionDeviceSerial       = "device-serial"
	OptionDaemonDebugMask    = "daemon-debug-mask"
	OptionLibraryDebugMask   = "library-debug-mask"
)

// DeviceID is the option value for "device-id": the INQUIRY identity
// fields a management client can read or overwrite as a unit, rather
// than the fixed-width byte arrays dispatch.Identity stores them as.
type DeviceID struct {
	Vendor         string
	Product        string
	Revision       string
	VendorSpecific string
}

// SetOption applies one device option by name (device-object.c isn't in
// the retrieval pack, so the per-option behavior below follows spec
// §6.3's enumeration directly rather than a specific C function).
func (d *Device) SetOption(name string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setOptionLocked(name, value)
}

func (d *Device) setOptionLocked(name string, value any) error {
	switch name {
	case OptionDPMEmulation:
		b, ok := value.(bool)
		if !ok {
			return newErr(InvalidArgument, "%s expects a bool", name)
		}
		d.opts.dpmEmulation = b
		if d.ctx.DPM != nil {
			d.ctx.DPM.SetOptions(d.opts.dpmEmulation, d.opts.transferEmulation)
		}
	case OptionTransferEmulation:
		b, ok := value.(bool)
		if !ok {
			return newErr(InvalidArgument, "%s expects a bool", name)
		}
		d.opts.transferEmulation = b
		if d.ctx.DPM != nil {
			d.ctx.DPM.SetOptions(d.opts.dpmEmulation, d.opts.transferEmulation)
		}
	case OptionBadSectorEmulation:
		b, ok := value.(bool)
		if !ok {
			return newErr(InvalidArgument, "%s expects a bool", name)
		}
		d.opts.badSectorEmulation = b
		d.ctx.BadSectorEmulation = b
	case OptionDVDReportCSS:
		b, ok := value.(bool)
		if !ok {
			return newErr(InvalidArgument, "%s expects a bool", name)
		}
		d.opts.dvdReportCSS = b
		d.ctx.DVDReportCSS = b
	case OptionDeviceID:
		id, ok := value.(DeviceID)
		if !ok {
			return newErr(InvalidArgument, "%s expects a DeviceID", name)
		}
		copy(d.ctx.Identity.Vendor[:], padTrunc(id.Vendor, len(d.ctx.Identity.Vendor)))
		copy(d.ctx.Identity.Product[:], padTrunc(id.Product, len(d.ctx.Identity.Product)))
		copy(d.ctx.Identity.Revision[:], padTrunc(id.Revision, len(d.ctx.Identity.Revision)))
		copy(d.ctx.Identity.VendorSpecific[:], padTrunc(id.VendorSpecific, len(d.ctx.Identity.VendorSpecific)))
	case OptionDeviceSerial:
		s, ok := value.(string)
		if !ok {
			return newErr(InvalidArgument, "%s expects a string", name)
		}
		d.ctx.Serial = s
	case OptionDaemonDebugMask:
		m, ok := toUint32(value)
		if !ok {
			return newErr(InvalidArgument, "%s expects a uint32", name)
		}
		d.opts.daemonDebugMask = m
	case OptionLibraryDebugMask:
		m, ok := toUint32(value)
		if !ok {
			return newErr(InvalidArgument, "%s expects a uint32", name)
		}
		d.opts.libraryDebugMask = m
	default:
		return newErr(InvalidArgument, "unknown option %q", name)
	}

	if d.callbacks.OptionChanged != nil {
		d.callbacks.OptionChanged(name)
	}
	return nil
}

// GetOption returns the current value of a device option by name, in
// the same shape SetOption accepts it.
func (d *Device) GetOption(name string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch name {
	case OptionDPMEmulation:
		return d.opts.dpmEmulation, nil
	case OptionTransferEmulation:
		return d.opts.transferEmulation, nil
	case OptionBadSectorEmulation:
		return d.opts.badSectorEmulation, nil
	case OptionDVDReportCSS:
		return d.opts.dvdReportCSS, nil
	case OptionDeviceID:
		return DeviceID{
			Vendor:         trimNulls(d.ctx.Identity.Vendor[:]),
			Product:        trimNulls(d.ctx.Identity.Product[:]),
			Revision:       trimNulls(d.ctx.Identity.Revision[:]),
			VendorSpecific: trimNulls(d.ctx.Identity.VendorSpecific[:]),
		}, nil
	case OptionDeviceSerial:
		return d.ctx.Serial, nil
	case OptionDaemonDebugMask:
		return d.opts.daemonDebugMask, nil
	case OptionLibraryDebugMask:
		return d.opts.libraryDebugMask, nil
	default:
		return nil, newErr(InvalidArgument, "unknown option %q", name)
	}
}

func padTrunc(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	if len(s) > n {
		copy(b, s[:n])
	}
	return b
}

func trimNulls(b []byte) string {
	i := len(b)
	for i > 0 && (b[i-1] == ' ' || b[i-1] == 0) {
		i--
	}
	return string(b[:i])
}

func toUint32(value any) (uint32, bool) {
	switch v := value.(type) {
	case uint32:
		return v, true
	case int:
		return uint32(v), true
	case int64:
		return uint32(v), true
	case uint64:
		return uint32(v), true
	default:
		return 0, false
	}
}
