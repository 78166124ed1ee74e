// Package senseerr encodes the SCSI sense plane (C1): sense keys, ASC/ASCQ
// pairs, and the fixed 18-byte sense record every failing command writes
// into the outbound buffer. The byte layout is carried over from
// cdemu's error.c / device-kernel-io.c write_sense_full.
package senseerr

import "encoding/binary"

// SenseKey is the top-level SCSI sense key (SPC-3 table 27).
type SenseKey uint8

const (
	KeyNoSense        SenseKey = 0x00
	KeyRecoveredError SenseKey = 0x01
	KeyNotReady       SenseKey = 0x02
	KeyMediumError    SenseKey = 0x03
	KeyHardwareError  SenseKey = 0x04
	KeyIllegalRequest SenseKey = 0x05
	KeyUnitAttention  SenseKey = 0x06
	KeyDataProtect    SenseKey = 0x07
	KeyBlankCheck     SenseKey = 0x08
	KeyAbortedCommand SenseKey = 0x0B
)

// ASCASCQ packs the Additional Sense Code and Additional Sense Code
// Qualifier into one 16-bit value: high byte ASC, low byte ASCQ.
type ASCASCQ uint16

// Canonical (sense_key, asc_ascq) pairs used by the core, named after
// the scenarios in spec §7 and §8.
const (
	ASCMediumNotPresent          ASCASCQ = 0x3A00
	ASCMediumRemovalPrevented    ASCASCQ = 0x5302
	ASCNotReadyToReadyChange     ASCASCQ = 0x2800
	ASCInvalidCommandOperation   ASCASCQ = 0x2000
	ASCInvalidFieldInCDB         ASCASCQ = 0x2400
	ASCInvalidFieldInParamList   ASCASCQ = 0x2600
	ASCCommandSequenceError      ASCASCQ = 0x2C00
	ASCIllegalModeForThisTrack   ASCASCQ = 0x6400
	ASCSavingParamsNotSupported  ASCASCQ = 0x3900
	ASCIncompatibleMediumFormat  ASCASCQ = 0x3005
	ASCUnrecoveredReadError      ASCASCQ = 0x1100
	ASCNoAdditionalSenseInfo    ASCASCQ = 0x0000
)

// Canonical sense pairs (sense_key, ASCASCQ), one per entry named in
// spec §7.
var (
	MediumNotPresent       = Pair{KeyNotReady, ASCMediumNotPresent}
	MediumRemovalPrevented = Pair{KeyNotReady, ASCMediumRemovalPrevented}
	MediumMayHaveChanged   = Pair{KeyUnitAttention, ASCNotReadyToReadyChange}
	InvalidCommandOpcode   = Pair{KeyIllegalRequest, ASCInvalidCommandOperation}
	InvalidFieldInCDB      = Pair{KeyIllegalRequest, ASCInvalidFieldInCDB}
	InvalidFieldInParams   = Pair{KeyIllegalRequest, ASCInvalidFieldInParamList}
	CommandSequenceError   = Pair{KeyIllegalRequest, ASCCommandSequenceError}
	IllegalModeForTrack    = Pair{KeyIllegalRequest, ASCIllegalModeForThisTrack}
	SavingParamsUnsupported = Pair{KeyIllegalRequest, ASCSavingParamsNotSupported}
	IncompatibleMediumFmt  = Pair{KeyIllegalRequest, ASCIncompatibleMediumFormat}
	UnrecoveredReadError   = Pair{KeyMediumError, ASCUnrecoveredReadError}
	NoSense                = Pair{KeyNoSense, ASCNoAdditionalSenseInfo}
)

// Pair bundles a sense key with its ASC/ASCQ, the unit the rest of the
// core passes around instead of two loose values.
type Pair struct {
	Key     SenseKey
	ASCASCQ ASCASCQ
}

// FixedSense is the 18-byte fixed-format sense data block (SPC-3
// 4.5.3), matching cdemu's REQUEST_SENSE_SenseFixed byte-for-byte.
type FixedSense struct {
	ResponseCode   byte // 0x70: current errors, fixed format
	Obsolete       byte
	SenseKeyILI    byte // bit5 ILI, low nibble sense key
	Information    [4]byte
	AdditionalLen  byte // always 0x0A here
	CmdInfo        [4]byte
	ASC            byte
	ASCQ           byte
	FRUCode        byte
	SenseKeySpec   [3]byte
}

// Size is the wire size of a FixedSense record.
const Size = 18

// Encode renders a sense record for the given pair, optionally setting
// the ILI bit and a 32-bit command-information field (used by READ CD
// when the EDC check fails at a known offending LBA).
func Encode(p Pair, ili bool, cmdInfo uint32) []byte {
	buf := make([]byte, Size)
	buf[0] = 0x70
	buf[2] = byte(p.Key) & 0x0F
	if ili {
		buf[2] |= 0x20
	}
	buf[7] = 0x0A
	binary.BigEndian.PutUint32(buf[8:12], cmdInfo)
	buf[12] = byte(p.ASCASCQ >> 8)
	buf[13] = byte(p.ASCASCQ)
	return buf
}

// WriteTo writes a plain sense record (no ILI, no command info) to out,
// copying at most Size bytes (truncated when out is shorter). It returns
// the number of bytes written, mirroring cdemu_device_write_sense.
func WriteTo(out []byte, p Pair) int {
	return WriteFullTo(out, p, false, 0)
}

// WriteFullTo is the full form accepting the ILI bit and command info,
// mirroring cdemu_device_write_sense_full.
func WriteFullTo(out []byte, p Pair, ili bool, cmdInfo uint32) int {
	rec := Encode(p, ili, cmdInfo)
	n := copy(out, rec)
	return n
}

// StatusGood and StatusCheckCondition are the two SCSI statuses a
// dispatch result can carry, the two outcomes from spec §2's
// control-flow description.
const (
	StatusGood           = 0
	StatusCheckCondition = 2
)
