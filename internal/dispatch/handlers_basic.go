package dispatch

import (
	"encoding/binary"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
)

// handleTestUnitReady implements spec §4.6 TEST UNIT READY: NOT READY
// when no medium, then a one-shot UNIT ATTENTION after a medium change.
func handleTestUnitReady(ctx *Context, req *Request) error {
	if !ctx.MediumLoaded {
		return Sense(senseerr.MediumNotPresent)
	}
	if ctx.MediaEvent == mmc.MediaEventNewMedia {
		ctx.MediaEvent = mmc.MediaEventNoChange
		return Sense(senseerr.MediumMayHaveChanged)
	}
	return nil
}

// handleRequestSense returns an empty "no sense" record with the
// current audio status riding in the ASCQ field, per MMC-3's overload
// of REQUEST SENSE for playback status (device-commands.c).
func handleRequestSense(ctx *Context, req *Request) error {
	buf := make([]byte, senseerr.Size)
	buf[0] = 0x70
	buf[7] = 0x0A
	buf[2] = byte(senseerr.KeyNoSense)
	buf[12] = 0x00
	if ctx.Audio != nil {
		buf[13] = byte(ctx.Audio.Status())
	}
	req.WriteBuffer(buf)
	return nil
}

// handleInquiry implements standard INQUIRY (spec §4.6); VPD pages
// 0x00/0x80/0x83 are recognized but return minimal placeholder data
// since no serial/supported-pages policy is spec'd beyond their
// existence.
func handleInquiry(ctx *Context, req *Request) error {
	cdb := req.CDB
	evpd := cdb[1]&0x01 != 0
	pageCode := cdb[2]

	if !evpd && pageCode != 0 {
		return Sense(senseerr.InvalidFieldInCDB)
	}
	if evpd {
		return handleInquiryVPD(ctx, req, pageCode)
	}

	buf := make([]byte, 36)
	buf[0] = 0x05 // peripheral device type: CD-ROM
	buf[1] = 0x80 // RMB=1: removable medium
	buf[2] = 0x00 // version
	buf[3] = 0x32 // response data format=2, ATAPI version nibble=3 packed high
	buf[4] = byte(len(buf) - 5)
	copy(buf[8:16], padASCII(ctx.Identity.Vendor[:], 8))
	copy(buf[16:32], padASCII(ctx.Identity.Product[:], 16))
	copy(buf[32:36], padASCII(ctx.Identity.Revision[:], 4))
	req.WriteBuffer(buf)
	return nil
}

func handleInquiryVPD(ctx *Context, req *Request, pageCode byte) error {
	switch pageCode {
	case 0x00:
		req.WriteBuffer([]byte{0x05, 0x00, 0x00, 0x03, 0x00, 0x80, 0x83})
	case 0x80:
		serial := []byte(ctx.Serial)
		buf := append([]byte{0x05, 0x80, 0x00, byte(len(serial))}, serial...)
		req.WriteBuffer(buf)
	case 0x83:
		name := []byte(ctx.Serial)
		buf := append([]byte{0x05, 0x83, 0x00, byte(len(name) + 4), 0x02, 0x01, 0x00, byte(len(name))}, name...)
		req.WriteBuffer(buf)
	default:
		return Sense(senseerr.InvalidFieldInCDB)
	}
	return nil
}

func padASCII(s []byte, width int) []byte {
	out := make([]byte, width)
	for i := range out {
		out[i] = ' '
	}
	for i := 0; i < len(s) && i < width && s[i] != 0; i++ {
		out[i] = s[i]
	}
	return out
}

// handleStartStopUnit implements `lo_ej=1, start=0` unload semantics
// (spec §4.6); locked media fail with MEDIUM REMOVAL PREVENTED but the
// eject request is still latched.
func handleStartStopUnit(ctx *Context, req *Request) error {
	loEj := req.CDB[4]&0x02 != 0
	start := req.CDB[4]&0x01 != 0
	if loEj && !start {
		if ctx.Locked {
			ctx.MediaEvent = mmc.MediaEventEjectRequest
			return Sense(senseerr.MediumRemovalPrevented)
		}
		ctx.MediumLoaded = false
		ctx.Disc = nil
		ctx.MediaEvent = mmc.MediaEventRemoval
	}
	return nil
}

// handlePreventAllowRemoval sets/clears the lock flag and mirrors it in
// mode page 0x2A's lock_state bit (spec §4.6).
func handlePreventAllowRemoval(ctx *Context, req *Request) error {
	prevent := req.CDB[4]&0x01 != 0
	ctx.Locked = prevent
	return ctx.Pages.SetLockState(prevent)
}

// handleReadCapacity returns last_sector = leadout_start-1, block size
// 2048 (spec §4.6).
func handleReadCapacity(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	buf := make([]byte, 8)
	lastSector := uint32(0)
	if ctx.LeadoutStart > 0 {
		lastSector = uint32(ctx.LeadoutStart - 1)
	}
	binary.BigEndian.PutUint32(buf[0:4], lastSector)
	binary.BigEndian.PutUint32(buf[4:8], 2048)
	req.WriteBuffer(buf)
	return nil
}

// handleReadBufferCapacity reports the kernel I/O staging buffer size,
// in bytes or blocks depending on the BLOCK bit (device-commands.c).
func handleReadBufferCapacity(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	const bufferCapacity = 256*2048 + 256
	block := req.CDB[1]&0x01 != 0
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], 10)
	if block {
		buf[3] = 0x01
		binary.BigEndian.PutUint32(buf[8:12], bufferCapacity/2048)
	} else {
		binary.BigEndian.PutUint32(buf[4:8], bufferCapacity)
		binary.BigEndian.PutUint32(buf[8:12], bufferCapacity)
	}
	req.WriteBuffer(buf)
	return nil
}

// handleSeek10 does nothing: there is no physical head to move (spec
// §4.6, matching the original's "nothing to do here yet").
func handleSeek10(ctx *Context, req *Request) error {
	return nil
}

// handleSynchronizeCache is implemented as close_track on the active
// recording strategy (device-commands.c).
func handleSynchronizeCache(ctx *Context, req *Request) error {
	if err := requireRecording(ctx); err != nil {
		return err
	}
	return ctx.Recording.CloseTrack()
}

// handleGetEventStatusNotification only supports synchronous (IMMED=1)
// polling of the media event class (spec §4.6).
func handleGetEventStatusNotification(ctx *Context, req *Request) error {
	immed := req.CDB[1]&0x01 != 0
	if !immed {
		return Sense(senseerr.InvalidFieldInCDB)
	}
	notifClassRequest := req.CDB[4]
	buf := make([]byte, 4)
	nea := byte(1)
	notifClass := byte(0)
	media := byte(0x10) // supported event classes bitmask: media (bit 4)

	if notifClassRequest&0x10 != 0 { // media event class bit
		nea = 0
		notifClass = 4
		desc := make([]byte, 4)
		desc[0] = byte(ctx.MediaEvent)
		if ctx.MediumLoaded {
			desc[1] = 0x01
		}
		ctx.MediaEvent = mmc.MediaEventNoChange
		buf = append(buf, desc...)
	}

	buf[0] = 0
	buf[1] = byte(len(buf) - 2)
	if nea != 0 {
		buf[2] = 0x80
	}
	buf[2] |= notifClass
	buf[3] = media
	req.WriteBuffer(buf)
	return nil
}

// handlePlayAudio decodes the three PLAY AUDIO CDB variants and starts
// playback (spec §4.6 / device-commands.c command_play_audio).
func handlePlayAudio(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	var start, end int
	switch cdb[0] {
	case mmc.OpPlayAudio10:
		start = int(binary.BigEndian.Uint32(cdb[2:6]))
		end = start + int(binary.BigEndian.Uint16(cdb[7:9]))
	case mmc.OpPlayAudio12:
		start = int(binary.BigEndian.Uint32(cdb[2:6]))
		end = start + int(binary.BigEndian.Uint32(cdb[6:10]))
	default: // PLAY AUDIO MSF
		start = bcdMSFToLBA(cdb[3], cdb[4], cdb[5])
		end = bcdMSFToLBA(cdb[6], cdb[7], cdb[8])
	}
	if ctx.Audio != nil {
		ctx.Audio.Play(start, end)
	}
	return nil
}

// handlePauseResume toggles the audio player; MMC-3 treats an
// already-matching state as success, and an invalid transition as a
// command sequence error (device-commands.c).
func handlePauseResume(ctx *Context, req *Request) error {
	if ctx.Audio == nil {
		return Sense(senseerr.CommandSequenceError)
	}
	resume := req.CDB[8]&0x01 != 0
	if !ctx.Audio.IsActive() {
		return Sense(senseerr.CommandSequenceError)
	}
	if resume {
		ctx.Audio.Resume()
	} else {
		ctx.Audio.Pause()
	}
	return nil
}
