package dispatch

import (
	"encoding/binary"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/cdemu/cdemu-sub002/internal/recording"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
)

// handleWrite implements WRITE(10) and WRITE(12): every byte is handed
// straight to the active recording strategy (device-commands.c
// command_write).
func handleWrite(ctx *Context, req *Request) error {
	if err := requireRecording(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	var start, num int
	if cdb[0] == mmc.OpWrite10 {
		start = int(binary.BigEndian.Uint32(cdb[2:6]))
		num = int(binary.BigEndian.Uint16(cdb[7:9]))
	} else {
		start = int(binary.BigEndian.Uint32(cdb[2:6]))
		num = int(binary.BigEndian.Uint32(cdb[6:10]))
	}
	payload := req.ReadBuffer(num * 2048)
	return ctx.Recording.WriteSectors(start, payload)
}

func handleWrite10(ctx *Context, req *Request) error { return handleWrite(ctx, req) }
func handleWrite12(ctx *Context, req *Request) error { return handleWrite(ctx, req) }

// handleCloseTrackSession implements CLOSE TRACK/SESSION: function 1
// closes the current track, 2/5/6 close (finalize) the session
// (device-commands.c command_close_track_session).
func handleCloseTrackSession(ctx *Context, req *Request) error {
	if err := requireRecording(ctx); err != nil {
		return err
	}
	function := req.CDB[1] & 0x07
	switch function {
	case 1:
		return ctx.Recording.CloseTrack()
	case 2, 5, 6:
		return ctx.Recording.CloseSession()
	default:
		return Sense(senseerr.InvalidFieldInCDB)
	}
}

// handleReserveTrack implements RESERVE TRACK's two parameter formats:
// a plain size, or an LBA relative to the current next-writable-address
// (device-commands.c command_reserve_track).
func handleReserveTrack(ctx *Context, req *Request) error {
	if err := requireRecording(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	arsv := cdb[1]&0x01 != 0
	param := binary.BigEndian.Uint32(cdb[5:9])

	var length int
	if !arsv {
		length = int(param)
	} else {
		length = int(param) - ctx.Recording.GetNextWritableAddress()
	}
	return ctx.Recording.ReserveTrack(length)
}

// handleSendCueSheet accepts a SAO cue sheet; it requires mode page
// 0x05's write_type to be 2 (SAO) and the active strategy to support
// cue sheets (device-commands.c command_send_cue_sheet).
func handleSendCueSheet(ctx *Context, req *Request) error {
	writeType, err := writeTypeOf(ctx)
	if err != nil {
		return err
	}
	if writeType != 2 {
		return Sense(senseerr.CommandSequenceError)
	}
	receiver, ok := ctx.Recording.(recording.CueSheetReceiver)
	if !ok {
		return Sense(senseerr.CommandSequenceError)
	}

	cdb := req.CDB
	size := int(cdb[6])<<16 | int(cdb[7])<<8 | int(cdb[8])
	data := req.ReadBuffer(size)
	return receiver.SetCueSheet(data)
}

func writeTypeOf(ctx *Context) (byte, error) {
	page, err := ctx.Pages.Get(modepage.PageWriteParameters, modepage.Current)
	if err != nil {
		return 0, err
	}
	return page[modepage.Off05Flags1] & 0x1F, nil
}

// handleSetCDSpeed writes the requested read/write speed straight into
// mode page 0x2A; 0xFFFF means "as fast as possible" (device-commands.c
// command_set_cd_speed).
func handleSetCDSpeed(ctx *Context, req *Request) error {
	cdb := req.CDB
	readSpeed := binary.BigEndian.Uint16(cdb[2:4])
	writeSpeed := binary.BigEndian.Uint16(cdb[4:6])

	page, err := ctx.Pages.Get(modepage.PageCapabilities, modepage.Current)
	if err != nil {
		return err
	}
	maxRead := binary.BigEndian.Uint16(page[modepage.Off2AMaxReadSpd:])
	maxWrite := binary.BigEndian.Uint16(page[modepage.Off2AMaxWriteSpd:])

	if readSpeed == 0xFFFF {
		readSpeed = maxRead
	}
	if writeSpeed == 0xFFFF {
		writeSpeed = maxWrite
	}
	binary.BigEndian.PutUint16(page[modepage.Off2ACurReadSpd:], readSpeed)
	binary.BigEndian.PutUint16(page[modepage.Off2ACurWriteSpd:], writeSpeed)
	binary.BigEndian.PutUint16(page[modepage.Off2ACurWspeed:], writeSpeed)
	return ctx.Pages.SetCurrent(modepage.PageCapabilities, page)
}

// handleSetStreaming just consumes the performance descriptor payload;
// cdemu never acted on it either (device-commands.c command_set_streaming).
func handleSetStreaming(ctx *Context, req *Request) error {
	cdb := req.CDB
	length := binary.BigEndian.Uint16(cdb[9:11])
	req.ReadBuffer(int(length))
	return nil
}
