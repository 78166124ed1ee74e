package dispatch

import (
	"encoding/binary"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
)

// handleReadTOC implements READ TOC/PMA/ATIP's formats 0x00 (formatted
// TOC), 0x01 (multisession info), 0x02 (raw TOC), 0x04 (ATIP) and 0x05
// (CD-TEXT), grounded on device-commands.c's command_read_toc_pma_atip.
//
// Format 0 additionally honors the ancient INF-8020 control-byte
// mapping some mastering tools still rely on: control 0x40 means
// "give me format 1", control 0x80 means "give me format 2".
func handleReadTOC(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	format := cdb[2] & 0x0F
	control := cdb[9]
	if format == 0 {
		switch control {
		case 0x40:
			format = 0x01
		case 0x80:
			format = 0x02
		}
	}
	timeMSF := cdb[1]&0x02 != 0
	number := cdb[6]

	switch format {
	case 0x00:
		return readTOCFormatted(ctx, req, number, timeMSF)
	case 0x01:
		return readTOCMultisession(ctx, req, timeMSF)
	case 0x02:
		return readTOCRaw(ctx, req, number)
	case 0x04:
		return readTOCATIP(ctx, req)
	case 0x05:
		return readTOCCDText(ctx, req)
	default:
		return Sense(senseerr.InvalidFieldInCDB)
	}
}

func putTOCAddress(dst []byte, address int, timeMSF bool) {
	if timeMSF {
		m, s, f := lbaToBCDMSF(address + 150)
		dst[1], dst[2], dst[3] = m, s, f
	} else {
		binary.BigEndian.PutUint32(dst, uint32(address))
	}
}

// readTOCFormatted emits one descriptor per requested track plus the
// lead-out descriptor of the last session (MMC-3: "for Track number AAh
// only the Lead-out area of the last complete session").
func readTOCFormatted(ctx *Context, req *Request, number byte, timeMSF bool) error {
	lastTrack := ctx.Disc.NumberOfTracks()
	body := make([]byte, 0, 8*(lastTrack+1))
	if number != 0xAA {
		n := ctx.Disc.NumberOfTracks()
		for i := 0; i < n; i++ {
			track, err := ctx.Disc.GetTrackByIndex(i)
			if err != nil {
				break
			}
			trackNumber := track.LayoutTrackNumber()
			if trackNumber < int(number) {
				continue
			}
			desc := make([]byte, 8)
			desc[1] = track.ADR()<<4 | track.CTL()
			desc[2] = byte(trackNumber)
			putTOCAddress(desc[4:8], track.LayoutStartSector()+track.TrackStart(), timeMSF)
			body = append(body, desc...)
		}
	}

	session, err := ctx.Disc.GetSessionByIndex(ctx.Disc.NumberOfSessions() - 1)
	if err != nil {
		return Sense(senseerr.InvalidFieldInCDB)
	}
	leadout := make([]byte, 8)
	leadout[1] = 0x01
	leadout[2] = 0xAA
	putTOCAddress(leadout[4:8], session.LayoutStartSector()+session.LayoutLength(), timeMSF)
	body = append(body, leadout...)

	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], uint16(len(body)+2))
	header[2] = 0x01
	header[3] = byte(lastTrack)
	req.WriteBuffer(header)
	req.WriteBuffer(body)
	return nil
}

// readTOCMultisession reports the first and last session number plus
// the first track of the last session.
func readTOCMultisession(ctx *Context, req *Request, timeMSF bool) error {
	lsession, err := ctx.Disc.GetSessionByIndex(ctx.Disc.NumberOfSessions() - 1)
	if err != nil {
		return Sense(senseerr.InvalidFieldInCDB)
	}
	ftrack, err := lsession.GetTrackByIndex(0)
	if err != nil {
		return Sense(senseerr.InvalidFieldInCDB)
	}

	data := make([]byte, 12)
	binary.BigEndian.PutUint16(data[0:2], 10)
	data[2] = 0x01
	data[3] = byte(lsession.LayoutSessionNumber())
	data[5] = ftrack.ADR()<<4 | ftrack.CTL()
	data[6] = byte(ftrack.LayoutTrackNumber())
	putTOCAddress(data[8:12], ftrack.LayoutStartSector()+ftrack.TrackStart(), timeMSF)
	req.WriteBuffer(data)
	return nil
}

// sessionTypePoint maps a session's type onto the psec byte the A0
// descriptor of raw-TOC format carries (device-commands.c
// map_session_type).
func sessionTypePoint(t mirage.SessionType) byte {
	switch t {
	case mirage.SessionCDROMXA:
		return 0x20
	default:
		return 0x00
	}
}

// readTOCRaw emits, for every session at or above the requested
// number, the A0/A1/A2 descriptors plus one descriptor per track; on
// multisession discs it additionally cooks up a B0 descriptor per
// session (and a C0 descriptor for session 1), since raw Q subchannel
// data for the lead-in area isn't actually synthesized elsewhere.
func readTOCRaw(ctx *Context, req *Request, number byte) error {
	numSessions := ctx.Disc.NumberOfSessions()
	var body []byte

	for i := 0; i < numSessions; i++ {
		session, err := ctx.Disc.GetSessionByIndex(i)
		if err != nil {
			break
		}
		sessionNumber := session.LayoutSessionNumber()
		if sessionNumber < int(number) {
			continue
		}

		firstTrack, err := session.GetTrackByIndex(0)
		if err != nil {
			continue
		}
		a0 := make([]byte, 11)
		a0[0] = byte(sessionNumber)
		a0[1] = firstTrack.ADR()<<4 | firstTrack.CTL()
		a0[3] = 0xA0
		a0[8] = byte(firstTrack.LayoutTrackNumber())
		a0[9] = sessionTypePoint(session.SessionType())
		body = append(body, a0...)

		lastTrack, err := session.GetTrackByIndex(session.NumberOfTracks() - 1)
		if err != nil {
			continue
		}
		a1 := make([]byte, 11)
		a1[0] = byte(sessionNumber)
		a1[1] = lastTrack.ADR()<<4 | lastTrack.CTL()
		a1[3] = 0xA1
		a1[8] = byte(lastTrack.LayoutTrackNumber())
		body = append(body, a1...)

		leadoutStart := session.LayoutStartSector() + session.LayoutLength()
		a2 := make([]byte, 11)
		a2[0] = byte(sessionNumber)
		a2[1] = 0x01
		a2[3] = 0xA2
		pm, ps, pf := lbaToBCDMSF(leadoutStart)
		a2[8], a2[9], a2[10] = pm, ps, pf
		body = append(body, a2...)

		numTracks := session.NumberOfTracks()
		for j := 0; j < numTracks; j++ {
			track, err := session.GetTrackByIndex(j)
			if err != nil {
				break
			}
			desc := make([]byte, 11)
			desc[0] = byte(sessionNumber)
			desc[1] = track.ADR()<<4 | track.CTL()
			desc[3] = byte(track.LayoutTrackNumber())
			start := track.LayoutStartSector() + track.TrackStart()
			m, s, f := lbaToBCDMSF(start)
			desc[8], desc[9], desc[10] = m, s, f
			body = append(body, desc...)
		}

		if numSessions > 1 {
			b0 := make([]byte, 11)
			b0[0] = byte(sessionNumber)
			b0[1] = 0x05
			b0[3] = 0xB0
			if sessionNumber < numSessions {
				leadoutLength := session.GetLeadoutLength()
				m, s, f := lbaToBCDMSF(leadoutStart + leadoutLength)
				b0[4], b0[5], b0[6] = m, s, f
			} else {
				b0[4], b0[5], b0[6] = 0xFF, 0xFF, 0xFF
			}
			if sessionNumber == 1 {
				b0[7] = 2
			} else {
				b0[7] = 1
			}
			// Maximum disc capacity, emulating an 80-minute disc
			// (device-commands.c: "currently emulating 80 minute disc").
			b0[8], b0[9], b0[10] = 0x4F, 0x3B, 0x47
			body = append(body, b0...)

			if sessionNumber == 1 {
				c0 := make([]byte, 11)
				c0[0] = byte(sessionNumber)
				c0[1] = 0x05
				c0[3] = 0xC0
				c0[8], c0[9], c0[10] = 0x95, 0x00, 0x00
				body = append(body, c0...)
			}
		}
	}

	lsession, err := ctx.Disc.GetSessionByIndex(ctx.Disc.NumberOfSessions() - 1)
	if err != nil {
		return Sense(senseerr.InvalidFieldInCDB)
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], uint16(len(body)+2))
	header[2] = 0x01
	header[3] = byte(lsession.LayoutSessionNumber())
	req.WriteBuffer(header)
	req.WriteBuffer(body)
	return nil
}

// readTOCATIP reports recordable-media timing parameters; it only
// produces a descriptor when the loaded disc is recordable, matching
// the original's "fixed up for CD-R" constants.
func readTOCATIP(ctx *Context, req *Request) error {
	header := make([]byte, 4)
	if ctx.Recording == nil {
		binary.BigEndian.PutUint16(header[0:2], 2)
		req.WriteBuffer(header)
		return nil
	}

	desc := make([]byte, 24)
	desc[0] = 0x01<<7 | 0x04<<4
	desc[1] = 0x00
	desc[2] = 0x01<<7 | 0x03<<3
	// Lead-in start and indicative write speed, copied from a real CD-R.
	desc[4], desc[5], desc[6] = 0x61, 0x22, 0x17
	m, s, f := lbaToBCDMSF(ctx.LeadoutStart - 2)
	desc[8], desc[9], desc[10] = m, s, f

	binary.BigEndian.PutUint16(header[0:2], uint16(len(desc)+2))
	req.WriteBuffer(header)
	req.WriteBuffer(desc)
	return nil
}

// readTOCCDText reports the first session's CD-TEXT pack data, if any.
func readTOCCDText(ctx *Context, req *Request) error {
	session, err := ctx.Disc.GetSessionByIndex(0)
	if err != nil {
		return Sense(senseerr.InvalidFieldInCDB)
	}
	data := session.CDTextData()

	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], uint16(len(data)+2))
	req.WriteBuffer(header)
	req.WriteBuffer(data)
	return nil
}
