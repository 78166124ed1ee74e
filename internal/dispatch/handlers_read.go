package dispatch

import (
	"encoding/binary"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
)

// getSector locates the track covering address and returns its decoded
// sector; spec §6.2 exposes sectors only through Track, not Disc.
func getSector(disc mirage.Disc, address int) (mirage.Sector, error) {
	track, err := disc.GetTrackByAddress(address)
	if err != nil {
		return nil, err
	}
	return track.GetSector(address)
}

// handleRead implements READ(10) and READ(12): plain 2048-byte user
// data reads, with optional bad-sector EDC/ECC emulation gated on mode
// page 0x01's DCR bit (device-commands.c command_read).
func handleRead(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	var start, num int
	if cdb[0] == mmc.OpRead10 {
		start = int(binary.BigEndian.Uint32(cdb[2:6]))
		num = int(binary.BigEndian.Uint16(cdb[7:9]))
	} else {
		start = int(binary.BigEndian.Uint32(cdb[2:6]))
		num = int(binary.BigEndian.Uint32(cdb[6:10]))
	}

	dcr := false
	if p, err := ctx.Pages.Get(modepage.PageErrorRecovery, modepage.Current); err == nil && len(p) > 2 {
		dcr = p[2]&0x01 != 0
	}

	if ctx.DPM != nil {
		ctx.DPM.Begin(start, num)
		defer ctx.DPM.Finalize()
	}

	for address := start; address < start+num; address++ {
		sector, err := getSector(ctx.Disc, address)
		if err != nil {
			return SenseWithInfo(senseerr.IllegalModeForTrack, false, uint32(address))
		}
		if ctx.BadSectorEmulation && !dcr {
			st := sector.SectorType()
			if (st == mirage.SectorMode1 || st == mirage.SectorMode2Form1) && !sector.VerifyLEC() {
				return SenseWithInfo(senseerr.UnrecoveredReadError, false, uint32(address))
			}
		}
		data := sector.Data()
		if len(data) != 2048 {
			return SenseWithInfo(senseerr.IllegalModeForTrack, true, uint32(address))
		}
		req.WriteBuffer(data)
		ctx.CurrentAddress = address
	}
	return nil
}

func handleRead10(ctx *Context, req *Request) error { return handleRead(ctx, req) }
func handleRead12(ctx *Context, req *Request) error { return handleRead(ctx, req) }

// mainChannelSelection decodes the MCSB byte of READ CD/READ CD MSF
// (device-commands.c read_sector_data): which header/subheader/user-
// data/EDC-ECC fields to return, and in what sector-type filter.
type mainChannelSelection struct {
	sync       bool
	headerCode byte
	userData   bool
	edcEcc     bool
	errorFlags byte
	subchannel byte
}

func decodeMCSB(cdb []byte) mainChannelSelection {
	return mainChannelSelection{
		sync:       cdb[9]&0x80 != 0,
		headerCode: (cdb[9] >> 5) & 0x03,
		errorFlags: (cdb[9] >> 1) & 0x03,
		userData:   cdb[9]&0x10 != 0,
		edcEcc:     cdb[9]&0x08 != 0,
		subchannel: cdb[10] & 0x07,
	}
}

// handleReadCD serves the flexible READ CD / READ CD MSF formats,
// returning whichever of sync/header/subheader/userdata/EDC-ECC/
// subchannel the MCSB byte asks for (spec §4.6; device-commands.c
// read_sector_data / command_read_cd).
func handleReadCD(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	expectedType := (cdb[1] >> 2) & 0x07
	start := int(binary.BigEndian.Uint32(cdb[2:6]))
	num := int(cdb[6])<<16 | int(cdb[7])<<8 | int(cdb[8])
	sel := decodeMCSB(cdb)
	return readCDRange(ctx, req, start, num, expectedType, sel)
}

func handleReadCDMSF(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	expectedType := (cdb[1] >> 2) & 0x07
	start := bcdMSFToLBA(cdb[3], cdb[4], cdb[5]) - 150
	end := bcdMSFToLBA(cdb[6], cdb[7], cdb[8]) - 150
	sel := decodeMCSB(cdb)
	return readCDRange(ctx, req, start, end-start, expectedType, sel)
}

// cdbExpectedSectorTypes maps the 3-bit "expected sector type" field of
// READ CD/READ CD MSF (0=any, 1=CD-DA, 2=Mode1, 3=Mode2 formless,
// 4=Mode2 Form1, 5=Mode2 Form2) to our SectorType enum.
var cdbExpectedSectorTypes = map[byte]mirage.SectorType{
	1: mirage.SectorAudio,
	2: mirage.SectorMode1,
	3: mirage.SectorMode2,
	4: mirage.SectorMode2Form1,
	5: mirage.SectorMode2Form2,
}

func readCDRange(ctx *Context, req *Request, start, num int, expectedType byte, sel mainChannelSelection) error {
	wantType, filtered := cdbExpectedSectorTypes[expectedType]

	if ctx.DPM != nil {
		ctx.DPM.Begin(start, num)
		defer ctx.DPM.Finalize()
	}

	for address := start; address < start+num; address++ {
		sector, err := getSector(ctx.Disc, address)
		if err != nil {
			return SenseWithInfo(senseerr.IllegalModeForTrack, false, uint32(address))
		}
		if filtered && sector.SectorType() != wantType {
			return SenseWithInfo(senseerr.IllegalModeForTrack, false, uint32(address))
		}

		if sel.sync {
			req.WriteBuffer(sector.Sync())
		}
		if sel.headerCode == 1 || sel.headerCode == 3 {
			req.WriteBuffer(sector.Header())
		}
		if sel.headerCode == 2 || sel.headerCode == 3 {
			req.WriteBuffer(sector.Subheader())
		}
		if sel.userData {
			req.WriteBuffer(sector.Data())
		}
		if sel.edcEcc {
			req.WriteBuffer(sector.EDCECC())
		}
		switch sel.subchannel {
		case 0x01:
			req.WriteBuffer(sector.Subchannel(mirage.SubchannelRaw))
		case 0x02:
			req.WriteBuffer(sector.Subchannel(mirage.SubchannelQOnly))
		}
	}
	return nil
}

// handleReadSubchannel reports audio status plus, on request, the
// current Q-subchannel position (format 0x01), MCN (0x02), or ISRC
// (0x03) — spec §4.6: position data is read from the current address
// and, if the sector's Q isn't Mode-1 (ADR!=1), the search steps
// forward one sector at a time correcting the reported MSFs; MCN/ISRC
// are searched for across the first 100 sectors of disc/track. Unlike
// raw Q data, the MSF fields in the reply are binary, not BCD.
func handleReadSubchannel(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	subQ := cdb[2]&0x40 != 0
	paramList := cdb[3]

	status := byte(0x15)
	if ctx.Audio != nil {
		status = byte(ctx.Audio.Status())
	}

	header := make([]byte, 4)
	header[1] = status
	req.WriteBuffer(header)

	if !subQ {
		binary.BigEndian.PutUint16(req.Out()[2:4], 0)
		return nil
	}

	var body []byte
	switch paramList {
	case 0x01:
		body = readSubchannelPosition(ctx, status)
	case 0x02:
		body = readSubchannelMCN(ctx)
	case 0x03:
		body = readSubchannelISRC(ctx, int(cdb[6]))
	default:
		return Sense(senseerr.InvalidFieldInCDB)
	}
	req.WriteBuffer(body)
	binary.BigEndian.PutUint16(req.Out()[2:4], uint16(len(body)))
	return nil
}

// readSubchannelPosition reports the Q position at ctx.CurrentAddress.
// If the Q found there isn't Mode-1 (ADR!=1), device-commands.c's
// command_read_subchannel steps forward one sector at a time until it
// finds one that is, then subtracts that step count ("correction")
// from both the relative and absolute addresses it derived from the
// found sector — the reply still describes the originally requested
// position, not wherever Mode-1 happened to turn up.
func readSubchannelPosition(ctx *Context, status byte) []byte {
	base := ctx.CurrentAddress
	address := base
	correction := 0
	for tries := 0; tries < 75; tries++ {
		sector, err := getSector(ctx.Disc, base+tries)
		if err != nil {
			break
		}
		address = base + tries
		correction = tries
		qdata := sector.Subchannel(mirage.SubchannelQOnly)
		if len(qdata) == 0 || qdata[0]&0x0F == 1 {
			break
		}
	}

	trackNo, indexNo := 1, 1
	relative := 0
	if track, err := ctx.Disc.GetTrackByAddress(address); err == nil {
		trackNo = track.LayoutTrackNumber()
		relative = address - (track.LayoutStartSector() + track.TrackStart())
	}
	absolute := address + 150

	if correction != 0 {
		relative -= correction
		absolute -= correction
	}

	// Position descriptor (MMC-3 table 334): format, adr/ctl-derived
	// audio status, data length, track, index, reserved, absolute MSF,
	// reserved, relative MSF.
	data := make([]byte, 16)
	data[0] = 0x01
	data[1] = status & 0x0F
	binary.BigEndian.PutUint16(data[2:4], 12)
	data[4] = byte(trackNo)
	data[5] = byte(indexNo)
	am, as, af := lbaToMSF(absolute)
	data[8], data[9], data[10], data[11] = 0, am, as, af
	rm, rs, rf := lbaToMSF(relative)
	data[12], data[13], data[14], data[15] = 0, rm, rs, rf
	return data
}

// readSubchannelMCN searches the first 100 sectors of the disc for a
// Q subchannel carrying ADR=2 (MCN), matching command_read_subchannel's
// "go over first 100 sectors; if MCN is present, it should be there".
// Falls back to the session model's own MCN field if no ADR=2 Q turns
// up in that range (e.g. the synthesized image carries no subchannel
// data at all, which memimage.Sector permits but a real drive would not).
func readSubchannelMCN(ctx *Context) []byte {
	data := make([]byte, 24)
	data[0] = 0x02
	binary.BigEndian.PutUint16(data[2:4], 20)

	for address := 0; address < 100; address++ {
		sector, err := getSector(ctx.Disc, address)
		if err != nil {
			continue
		}
		q := sector.Subchannel(mirage.SubchannelQOnly)
		if len(q) < 14 || q[0]&0x0F != 2 {
			continue
		}
		data[8] = 1
		copy(data[9:], q[1:14])
		return data
	}

	if session, err := ctx.Disc.GetSessionByIndex(0); err == nil {
		if mcn := session.MCN(); mcn != "" {
			data[8] = 1
			copy(data[9:], mcn)
		}
	}
	return data
}

// readSubchannelISRC searches the first 100 sectors of the requested
// track for a Q subchannel carrying ADR=3 (ISRC), mirroring the MCN
// scan but track-relative (command_read_subchannel case 0x03). Falls
// back to the track model's own ISRC field if none is found.
func readSubchannelISRC(ctx *Context, trackHint int) []byte {
	data := make([]byte, 24)
	data[0] = 0x03
	binary.BigEndian.PutUint16(data[2:4], 20)

	track, err := ctx.Disc.GetTrackByNumber(trackHint)
	if err != nil {
		return data
	}
	data[4] = byte(trackHint)

	start := track.LayoutStartSector()
	for i := 0; i < 100; i++ {
		sector, err := track.GetSector(start + i)
		if err != nil {
			continue
		}
		q := sector.Subchannel(mirage.SubchannelQOnly)
		if len(q) < 13 || q[0]&0x0F != 3 {
			continue
		}
		data[8] = 1
		copy(data[9:], q[1:13])
		return data
	}

	if isrc := track.ISRC(); isrc != "" {
		data[8] = 1
		copy(data[9:], isrc)
	}
	return data
}
