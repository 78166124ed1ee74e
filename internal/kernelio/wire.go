// Package kernelio implements C9: the control-device wire bridge
// between the kernel vhba module and the command dispatcher. Grounded
// on device-kernel-io.c's vhba_request/vhba_response structs, its
// BUF_SIZE sizing arithmetic, and its read-request/execute/write-
// response I/O handler.
package kernelio

import (
	"encoding/binary"
	"fmt"
)

// MaxCommandSize is the largest CDB the wire format carries (spec §6.1).
const MaxCommandSize = 16

const (
	maxSense     = 256
	maxSectors   = 256
	sectorSize   = 512
	responseSize = 4 + 4 + 4 // tag, status, data_len
)

// otherSectors mirrors OTHER_SECTORS: TO_SECTOR(MAX_SENSE + sizeof(vhba_response)).
func toSector(n int) int { return (n + sectorSize - 1) / sectorSize }

var otherSectors = toSector(maxSense + responseSize)

// BufSize is the fixed-size scratch buffer one request/response pair
// is read into and written from, sized for the largest transfer this
// daemon advertises: MAX_SECTORS user sectors plus sense and the
// response header (BUF_SIZE in the original).
var BufSize = sectorSize * (maxSectors + otherSectors)

// requestHeaderSize is the wire size of Request's fixed fields: tag(4)
// + lun(4) + cdb(16) + cdb_len(1) + data_len(4). The spec names this
// 28 bytes; encoding it field-by-field here sidesteps the discrepancy
// with C's natural struct alignment (see DESIGN.md).
const requestHeaderSize = 4 + 4 + MaxCommandSize + 1 + 4

// Request is one control-device request: a CDB addressed to a LUN,
// plus the inbound payload that follows the header on the wire.
type Request struct {
	Tag    uint32
	LUN    uint32
	CDB    [MaxCommandSize]byte
	CDBLen uint8
	DataLen uint32

	Payload []byte
}

// ErrShortRead/ErrShortWrite mirror the original's "short read or
// write is a fatal I/O error" rule (spec §6.1): both are fatal and
// the caller is expected to restart the device.
type ErrShortRead struct{ Got, Want int }

func (e *ErrShortRead) Error() string {
	return fmt.Sprintf("kernelio: short read (%d bytes; at least %d required)", e.Got, e.Want)
}

type ErrShortWrite struct{ Got, Want int }

func (e *ErrShortWrite) Error() string {
	return fmt.Sprintf("kernelio: short write (%d bytes; at least %d required)", e.Got, e.Want)
}

// decodeRequest parses one raw read() buffer into a Request. buf may be
// longer than the header plus payload; only DataLen payload bytes are
// kept.
func decodeRequest(buf []byte) (*Request, error) {
	if len(buf) < requestHeaderSize {
		return nil, &ErrShortRead{Got: len(buf), Want: requestHeaderSize}
	}

	req := &Request{}
	req.Tag = binary.LittleEndian.Uint32(buf[0:4])
	req.LUN = binary.LittleEndian.Uint32(buf[4:8])
	copy(req.CDB[:], buf[8:8+MaxCommandSize])
	req.CDBLen = buf[8+MaxCommandSize]
	req.DataLen = binary.LittleEndian.Uint32(buf[requestHeaderSize-4 : requestHeaderSize])

	end := requestHeaderSize + int(req.DataLen)
	if end > len(buf) {
		end = len(buf)
	}
	req.Payload = buf[requestHeaderSize:end]

	return req, nil
}

// cdb returns the command descriptor block trimmed to CDBLen, zero-
// extended to 12 bytes as the original daemon's dispatcher expects
// (device-kernel-io.c pads short CDBs before handing them off).
func (r *Request) cdb() []byte {
	n := int(r.CDBLen)
	if n > MaxCommandSize {
		n = MaxCommandSize
	}
	out := make([]byte, 12)
	if n < 12 {
		copy(out, r.CDB[:n])
	} else {
		out = append([]byte(nil), r.CDB[:n]...)
	}
	return out
}

// encodeResponse builds the fixed response header plus the (possibly
// truncated) outbound payload, matching BUF_SIZE - sizeof(vhba_response)
// as the cap on the payload the kernel side can receive.
func encodeResponse(tag, status uint32, out []byte) []byte {
	maxOut := BufSize - responseSize
	if len(out) > maxOut {
		out = out[:maxOut]
	}

	buf := make([]byte, responseSize+len(out))
	binary.LittleEndian.PutUint32(buf[0:4], tag)
	binary.LittleEndian.PutUint32(buf[4:8], status)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(out)))
	copy(buf[responseSize:], out)
	return buf
}
