// Package dispatch implements C8: the table-driven SCSI/MMC-3 packet
// command dispatcher. Grounded on device-commands.c's per-opcode
// handlers and the dispatch wrapper in cdemu_device_execute.
package dispatch

import (
	"sync"

	"github.com/cdemu/cdemu-sub002/internal/audio"
	"github.com/cdemu/cdemu-sub002/internal/dpm"
	"github.com/cdemu/cdemu-sub002/internal/feature"
	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/cdemu/cdemu-sub002/internal/recording"
	"github.com/cdemu/cdemu-sub002/internal/writespeed"
)

// Identity is the fixed-width ASCII vendor/product/revision/vendor-
// specific fields INQUIRY reports and the device-id option exposes
// (spec §6.3 device-id).
type Identity struct {
	Vendor         [8]byte
	Product        [16]byte
	Revision       [4]byte
	VendorSpecific [20]byte
}

// Context is the per-device state every handler reads and mutates
// under Dispatch's lock: the mode-page/feature/write-speed stores, the
// DPM timing model, the loaded disc and recording strategy, and the
// small bits of session state (lock flag, pending media event, audio
// player) that don't belong to any one collaborator.
type Context struct {
	mu sync.Mutex

	Disc   mirage.Disc
	Writer mirage.Writer

	Pages       *modepage.Store
	Features    *feature.Store
	WriteSpeeds *writespeed.List
	DPM         *dpm.Model
	Audio       *audio.Player

	Recording     recording.Strategy
	RecordingMode mmc.RecordingMode

	Identity Identity
	Serial   string

	MediumLoaded bool
	MediumType   mirage.MediumType
	Profile      mmc.Profile
	MediaEvent   mmc.MediaEvent
	Locked       bool
	DiscClosed   bool

	BadSectorEmulation bool
	DVDReportCSS       bool

	LeadoutStart   int // absolute sector of lead-out, for READ CAPACITY
	CurrentAddress int // last address READ(10)/(12)/CD touched, for READ SUBCHANNEL
}

// Request bundles one command's CDB with the cache API handlers use to
// move payload bytes, mirroring C9's write_buffer/read_buffer/
// flush_buffer/write_sense contract (spec §4.7) at the dispatcher
// boundary rather than the kernel one.
type Request struct {
	CDB []byte

	in    []byte
	inPos int

	out []byte

	senseWritten bool
	sense        []byte
}

// NewRequest wraps a CDB and its inbound payload for one dispatch call.
func NewRequest(cdb, in []byte) *Request {
	return &Request{CDB: cdb, in: in}
}

// ReadBuffer copies up to n inbound bytes into the cache and returns
// them, advancing the inbound cursor.
func (r *Request) ReadBuffer(n int) []byte {
	if r.inPos >= len(r.in) {
		return nil
	}
	end := r.inPos + n
	if end > len(r.in) {
		end = len(r.in)
	}
	chunk := r.in[r.inPos:end]
	r.inPos = end
	return chunk
}

// WriteBuffer appends data to the outbound area at the running offset.
func (r *Request) WriteBuffer(data []byte) {
	r.out = append(r.out, data...)
}

// FlushBuffer discards any already-staged outbound bytes.
func (r *Request) FlushBuffer() {
	r.out = r.out[:0]
}

// Out returns the bytes staged for the outbound payload so far.
func (r *Request) Out() []byte { return r.out }

// InRemaining returns the inbound bytes not yet consumed by ReadBuffer.
func (r *Request) InRemaining() []byte { return r.in[r.inPos:] }
