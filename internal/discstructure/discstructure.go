// Package discstructure implements C5: fabrication of READ DISC
// STRUCTURE payloads the underlying disc image cannot itself supply.
package discstructure

import "github.com/cdemu/cdemu-sub002/internal/mmc"

// Format is the READ DISC STRUCTURE "format code" field.
type Format byte

const (
	FormatPhysical  Format = 0x00
	FormatCopyright Format = 0x01
	FormatDiscKey   Format = 0x04 // DVD format 0x04, fabricated as a 2048-byte zero block
	FormatCapabilityList Format = 0xFF
)

// dvdSectorThreshold is the disc length, in sectors, above which the
// fabricated Physical Format Information reports two layers instead of
// one (spec §4.3).
const dvdSectorThreshold = 2_295_104

// ErrUnsupportedMedia is returned when a DVD structure is requested on
// a non-DVD profile or a BD structure on a non-BD profile (spec §4.3:
// "fail with INVALID FIELD IN CDB").
type ErrUnsupportedMedia struct {
	Format  Format
	Profile mmc.Profile
}

func (e *ErrUnsupportedMedia) Error() string {
	return "discstructure: format 0x" + hexByte(byte(e.Format)) + " not valid for profile " + e.Profile.String()
}

func hexByte(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}

// DVDPhysicalFormat fabricates DVD format 0x00 (spec §4.3): 2048 bytes,
// book type derived from profile, layer count from disc length.
func DVDPhysicalFormat(profile mmc.Profile, discLengthSectors uint32) ([]byte, error) {
	if !profile.IsDVD() {
		return nil, &ErrUnsupportedMedia{FormatPhysical, profile}
	}
	buf := make([]byte, 2048)

	var bookType byte
	var dataEnd uint32
	switch profile {
	case mmc.ProfileDVDPlusR:
		bookType = 0x0A
		dataEnd = 0x30000 + 0x260500
	default:
		bookType = 0x00
		dataEnd = 0x30000 + discLengthSectors
	}

	numLayers := byte(0)
	if discLengthSectors > dvdSectorThreshold {
		numLayers = 1 // "two layers" encoded as layer bit set, per MMC's 0-based layer count field
	}

	buf[0] = (bookType << 4) | 0x01 // book type (high nibble) | part version 1
	buf[1] = numLayers << 5         // number-of-layers bits plus track/layer-type fields left zero
	buf[2] = 0x0F                   // linear density 0.267 um/bit (code 0x0F per DVD book), track density 0.74 um/track in byte[3] below
	buf[3] = 0x01
	putUint24(buf[5:8], 0x030000) // data area starting PSN (byte 4 reserved)
	putUint24(buf[9:12], dataEnd) // data area end PSN (byte 8 reserved)

	return buf, nil
}

// DVDCopyright fabricates DVD format 0x01 (spec §4.3): 4-byte copyright
// info, copy_protection=0x01/region=0 when CSS reporting is enabled.
func DVDCopyright(profile mmc.Profile, cssReportingEnabled bool) ([]byte, error) {
	if !profile.IsDVD() {
		return nil, &ErrUnsupportedMedia{FormatCopyright, profile}
	}
	buf := make([]byte, 4)
	if cssReportingEnabled {
		buf[0] = 0x01
	}
	return buf, nil
}

// ZeroBlock fabricates the all-zero placeholder used for DVD format
// 0x04 (2048 bytes) and BD format 0x00 (4096 bytes).
func ZeroBlock(size int) []byte {
	return make([]byte, size)
}

// dvdCapabilityFormats is the 28 DVD format codes listed in spec §4.3
// for format 0xFF.
var dvdCapabilityFormats = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09,
	0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10, 0x11,
	0x20, 0x21, 0x22, 0x23, 0x24,
	0x30, 0x82, 0x86, 0xC0, 0xFF,
}

// bdCapabilityFormats is the 14 BD format codes listed in spec §4.3 for
// format 0xFF.
var bdCapabilityFormats = []byte{
	0x00, 0x03, 0x08, 0x09, 0x0A, 0x0F, 0x12,
	0x30, 0x80, 0x81, 0x82, 0x84, 0xC0, 0xFF,
}

// capabilityEntrySize is one "structure list" entry: format code, SDS
// (bit7) / RDS (bit6) flags byte, and a 2-byte advertised structure
// length (MMC "Structure List" format).
const capabilityEntrySize = 4

// DVDCapabilityList fabricates DVD format 0xFF (spec §4.3): every entry
// marked readable in both single-density and regular modes, advertised
// length left at 0 for formats this emulator fabricates on demand.
func DVDCapabilityList(profile mmc.Profile) ([]byte, error) {
	if !profile.IsDVD() {
		return nil, &ErrUnsupportedMedia{FormatCapabilityList, profile}
	}
	return buildCapabilityList(dvdCapabilityFormats), nil
}

// BDCapabilityList fabricates BD format 0xFF (spec §4.3).
func BDCapabilityList(profile mmc.Profile) ([]byte, error) {
	if !profile.IsBD() {
		return nil, &ErrUnsupportedMedia{FormatCapabilityList, profile}
	}
	return buildCapabilityList(bdCapabilityFormats), nil
}

func buildCapabilityList(formats []byte) []byte {
	buf := make([]byte, len(formats)*capabilityEntrySize)
	for i, f := range formats {
		off := i * capabilityEntrySize
		buf[off] = f
		buf[off+1] = 0xC0 // SDS=1, RDS=1: readable in both single- and multi-density modes
	}
	return buf
}

// BDDiscInformation fabricates BD format 0x00 (spec §4.3): 4096 zero
// bytes.
func BDDiscInformation(profile mmc.Profile) ([]byte, error) {
	if !profile.IsBD() {
		return nil, &ErrUnsupportedMedia{FormatPhysical, profile}
	}
	return ZeroBlock(4096), nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
