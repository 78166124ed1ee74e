// Package writespeed implements C4: the per-profile write-speed
// descriptor list consumed by both GET PERFORMANCE (type 0x03) and
// Mode Page 0x2A's descriptor tail (internal/modepage).
package writespeed

import (
	"sort"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
)

// Descriptor is one write-speed entry: a supported media write speed
// in kilobytes/second, and whether rotation control (CLV vs CAV) is
// fixed for it.
type Descriptor struct {
	RotationControl bool
	SpeedKBps       uint16
}

// List holds the descriptors currently advertised for a device's active
// profile, kept sorted ascending by speed as MMC expects.
type List struct {
	entries []Descriptor
}

// NewList returns an empty list; populate it with SetForProfile.
func NewList() *List {
	return &List{}
}

// catalog gives every profile's default descriptor set. Speeds are
// expressed in kB/s using the "1x" constants for the relevant media
// (CD 1x = 176.4 kB/s, DVD 1x = 1385 kB/s, BD 1x = 4495 kB/s), matching
// the values cdemu's profile tables advertise.
var catalog = map[mmc.Profile][]Descriptor{
	mmc.ProfileCDROM: {
		{SpeedKBps: 176 * 8},
		{SpeedKBps: 176 * 24},
		{SpeedKBps: 176 * 48},
	},
	mmc.ProfileCDR: {
		{SpeedKBps: 176 * 1},
		{SpeedKBps: 176 * 4},
		{SpeedKBps: 176 * 8},
		{SpeedKBps: 176 * 16},
	},
	mmc.ProfileDVDROM: {
		{SpeedKBps: 1385 * 1},
		{SpeedKBps: 1385 * 8},
		{SpeedKBps: 1385 * 16},
	},
	mmc.ProfileDVDPlusR: {
		{SpeedKBps: 1385 * 1},
		{SpeedKBps: 1385 * 4},
		{SpeedKBps: 1385 * 8},
	},
	mmc.ProfileBDROM: {
		{SpeedKBps: 4495 * 1},
		{SpeedKBps: 4495 * 4},
	},
	mmc.ProfileBDRSRM: {
		{SpeedKBps: 4495 * 1},
		{SpeedKBps: 4495 * 2},
	},
}

// SetForProfile replaces the list's contents with the given profile's
// default descriptor set (empty for ProfileNone or an unrecognized
// profile), sorted ascending by speed.
func (l *List) SetForProfile(p mmc.Profile) {
	src := catalog[p]
	l.entries = append([]Descriptor(nil), src...)
	sort.Slice(l.entries, func(i, j int) bool { return l.entries[i].SpeedKBps < l.entries[j].SpeedKBps })
}

// Entries returns a copy of the current descriptor list.
func (l *List) Entries() []Descriptor {
	return append([]Descriptor(nil), l.entries...)
}

// MaxSpeed returns the fastest advertised speed, or 0 if the list is
// empty (profile NONE, no medium present).
func (l *List) MaxSpeed() uint16 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].SpeedKBps
}

// ApplyTo pushes the current descriptor list into a mode-page store's
// page 0x2A tail, truncating to the 6 descriptors MMC allows per page
// if the profile's catalog entry is longer (spec §4.1).
func (l *List) ApplyTo(store *modepage.Store) error {
	descs := make([]modepage.WriteSpeedDescriptor, 0, len(l.entries))
	for _, e := range l.entries {
		descs = append(descs, modepage.WriteSpeedDescriptor{
			RotationControl: e.RotationControl,
			SpeedKBps:       e.SpeedKBps,
		})
	}
	return store.ReplaceWriteSpeedDescriptors(descs)
}

// GetPerformanceType03 renders the descriptor list in the wire format
// GET PERFORMANCE returns for data type 0x03 ("write speed descriptor"):
// a 4-byte header (reserved, reserved, except_low, num_descriptors are
// folded into caller-level framing) followed by one 16-byte descriptor
// per entry: wrc(2 bits)+rc(1 bit) flags byte, reserved[3], end_lba(4),
// read_speed(4), write_speed(4).
func (l *List) GetPerformanceType03() []byte {
	buf := make([]byte, 0, len(l.entries)*16)
	for _, e := range l.entries {
		rec := make([]byte, 16)
		if e.RotationControl {
			rec[0] = 0x01
		}
		putUint32(rec[8:12], uint32(e.SpeedKBps))
		putUint32(rec[12:16], uint32(e.SpeedKBps))
		buf = append(buf, rec...)
	}
	return buf
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
