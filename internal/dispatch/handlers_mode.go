package dispatch

import (
	"encoding/binary"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
)

// handleModeSelect implements MODE SELECT(6/10): block descriptors are
// rejected outright (ATAPI devices don't carry them), then the single
// page that follows is handed to the page store (device-commands.c
// command_mode_select).
func handleModeSelect(ctx *Context, req *Request) error {
	cdb := req.CDB
	var transferLen, headerLen int
	if cdb[0] == mmc.OpModeSelect6 {
		transferLen = int(cdb[4])
		headerLen = 4
	} else {
		transferLen = int(binary.BigEndian.Uint16(cdb[7:9]))
		headerLen = 8
	}

	data := req.ReadBuffer(transferLen)
	if len(data) < headerLen {
		return Sense(senseerr.InvalidFieldInParams)
	}

	var blkdescLen, offset int
	if cdb[0] == mmc.OpModeSelect6 {
		blkdescLen = int(data[3])
		offset = headerLen + blkdescLen
	} else {
		blkdescLen = int(binary.BigEndian.Uint16(data[6:8]))
		offset = headerLen + blkdescLen
	}
	if blkdescLen != 0 {
		return Sense(senseerr.InvalidFieldInParams)
	}
	if offset >= len(data) {
		return nil
	}
	if err := ctx.Pages.Modify(data[offset:]); err != nil {
		return Sense(senseerr.InvalidFieldInParams)
	}
	return nil
}

func handleModeSelect6(ctx *Context, req *Request) error  { return handleModeSelect(ctx, req) }
func handleModeSelect10(ctx *Context, req *Request) error { return handleModeSelect(ctx, req) }

// handleModeSense implements MODE SENSE(6/10): page code 0x3F returns
// every page, pc selects current/changeable-mask/default values, and
// PC=0x03 (saved values) is explicitly unsupported (device-commands.c
// command_mode_sense).
func handleModeSense(ctx *Context, req *Request) error {
	cdb := req.CDB
	var pc, pageCode byte
	var headerLen int
	if cdb[0] == mmc.OpModeSense6 {
		pc = cdb[2] >> 6
		pageCode = cdb[2] & 0x3F
		headerLen = 4
	} else {
		pc = cdb[2] >> 6
		pageCode = cdb[2] & 0x3F
		headerLen = 8
	}

	if pc == 0x03 {
		return Sense(senseerr.SavingParamsUnsupported)
	}

	which := modepage.Current
	switch pc {
	case 0x01:
		which = modepage.Mask
	case 0x02:
		which = modepage.Default
	}

	header := make([]byte, headerLen)
	body := []byte{}
	found := false
	for _, code := range ctx.Pages.AllCodes() {
		if pageCode != 0x3F && code != pageCode {
			continue
		}
		page, err := ctx.Pages.Get(code, which)
		if err != nil {
			continue
		}
		body = append(body, page...)
		found = true
		if pageCode != 0x3F {
			break
		}
	}
	if pageCode != 0x3F && !found {
		return Sense(senseerr.InvalidFieldInCDB)
	}

	if cdb[0] == mmc.OpModeSense6 {
		header[0] = byte(len(body) + headerLen - 1)
	} else {
		binary.BigEndian.PutUint16(header[0:2], uint16(len(body)+headerLen-2))
	}
	req.WriteBuffer(header)
	req.WriteBuffer(body)
	return nil
}

func handleModeSense6(ctx *Context, req *Request) error  { return handleModeSense(ctx, req) }
func handleModeSense10(ctx *Context, req *Request) error { return handleModeSense(ctx, req) }
