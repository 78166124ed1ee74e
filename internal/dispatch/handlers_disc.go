package dispatch

import (
	"encoding/binary"

	"github.com/cdemu/cdemu-sub002/internal/discstructure"
	"github.com/cdemu/cdemu-sub002/internal/feature"
	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
)

// handleGetConfiguration projects the feature store through GET
// CONFIGURATION's three RT semantics (device-commands.c
// command_get_configuration; feature.Store.GetConfiguration already
// implements the a/b/c rule).
func handleGetConfiguration(ctx *Context, req *Request) error {
	cdb := req.CDB
	rt := feature.GetConfigurationRT(cdb[1] & 0x03)
	sfn := binary.BigEndian.Uint16(cdb[2:4])

	descs := ctx.Features.GetConfiguration(rt, sfn)

	body := []byte{}
	for _, d := range descs {
		rec := make([]byte, 4+len(d.Payload))
		binary.BigEndian.PutUint16(rec[0:2], d.Code)
		flags := d.Version << 2
		if d.Persistent {
			flags |= 0x02
		}
		if d.Current {
			flags |= 0x01
		}
		rec[2] = flags
		rec[3] = byte(len(d.Payload))
		copy(rec[4:], d.Payload)
		body = append(body, rec...)
	}

	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(body)+4))
	binary.BigEndian.PutUint16(header[6:8], uint16(ctx.Features.Profile()))
	req.WriteBuffer(header)
	req.WriteBuffer(body)
	return nil
}

// handleGetPerformance implements GET PERFORMANCE type 0x00 (nominal
// performance, a single descriptor spanning the medium) and 0x03
// (write-speed descriptors); other types are unimplemented
// (device-commands.c command_get_performance / __get_performance_00).
func handleGetPerformance(ctx *Context, req *Request) error {
	cdb := req.CDB
	tolerance := (cdb[1] >> 3) & 0x03
	if tolerance != 2 {
		return Sense(senseerr.InvalidFieldInCDB)
	}
	except := cdb[1]&0x02 != 0
	dataType := cdb[9]

	switch dataType {
	case 0x00:
		header := make([]byte, 8)
		if except {
			binary.BigEndian.PutUint32(header[0:4], 4)
			req.WriteBuffer(header)
			return nil
		}
		var endLBA, perf uint32 = 0, 0x00005690
		if ctx.MediumLoaded {
			endLBA = uint32(ctx.LeadoutStart)
			perf = 0x00001B90
		}
		desc := make([]byte, 16)
		binary.BigEndian.PutUint32(desc[0:4], 0)
		binary.BigEndian.PutUint32(desc[4:8], perf)
		binary.BigEndian.PutUint32(desc[8:12], endLBA)
		binary.BigEndian.PutUint32(desc[12:16], perf)
		binary.BigEndian.PutUint32(header[0:4], uint32(4+len(desc)))
		req.WriteBuffer(header)
		req.WriteBuffer(desc)
	case 0x03:
		maxDescriptors := binary.BigEndian.Uint16(cdb[10:12])
		entries := ctx.WriteSpeeds.Entries()
		if int(maxDescriptors) < len(entries) {
			entries = entries[:maxDescriptors]
		}
		header := make([]byte, 8)
		binary.BigEndian.PutUint32(header[0:4], uint32(4+len(ctx.WriteSpeeds.Entries())*16))
		req.WriteBuffer(header)
		ctx.WriteSpeeds.SetForProfile(ctx.Profile) // no-op refresh; entries already current
		body := ctx.WriteSpeeds.GetPerformanceType03()
		if len(entries) < len(ctx.WriteSpeeds.Entries()) {
			body = body[:len(entries)*16]
		}
		req.WriteBuffer(body)
	default:
		return Sense(senseerr.InvalidFieldInCDB)
	}
	return nil
}

// handleReportKey only implements the RPC key format (region mask
// 0xFF, scheme 1); anything else against non-DVD media is rejected as
// an incompatible format, and other DVD key formats are unimplemented
// (device-commands.c command_report_key).
func handleReportKey(ctx *Context, req *Request) error {
	keyFormat := req.CDB[10] & 0x3F
	if keyFormat == 0x08 {
		data := make([]byte, 8)
		binary.BigEndian.PutUint16(data[0:2], 6)
		data[4] = 0xFF // region_mask
		data[5] = 0x01 // rpc_scheme
		data[6] = 4    // vendor_resets
		data[7] = 5    // user_changes
		req.WriteBuffer(data)
		return nil
	}
	if ctx.Profile != mmc.ProfileDVDROM {
		return Sense(senseerr.IncompatibleMediumFmt)
	}
	return Sense(senseerr.InvalidFieldInCDB)
}

// handleReadDiscInformation implements the standard (type 0x00) disc
// information format; other types are unimplemented (device-commands.c
// command_read_disc_information).
func handleReadDiscInformation(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	if req.CDB[1]&0x07 != 0x00 {
		return Sense(senseerr.InvalidFieldInCDB)
	}

	numSessions := ctx.Disc.NumberOfSessions()
	firstTrackLastSession, lastTrackLastSession := 1, 1
	if numSessions > 0 {
		if session, err := ctx.Disc.GetSessionByIndex(numSessions - 1); err == nil {
			if t, err := session.GetTrackByIndex(0); err == nil {
				firstTrackLastSession = t.LayoutTrackNumber()
			}
			n := session.NumberOfTracks()
			if n > 0 {
				if t, err := session.GetTrackByIndex(n - 1); err == nil {
					lastTrackLastSession = t.LayoutTrackNumber()
				}
			}
		}
	}

	discStatus := byte(0x02) // complete, unless recordable & open
	if ctx.Recording != nil && !ctx.DiscClosed {
		if numSessions == 0 {
			discStatus = 0x00
		} else {
			discStatus = 0x01
		}
	}

	data := make([]byte, 34)
	binary.BigEndian.PutUint16(data[0:2], 32)
	data[2] = discStatus & 0x03
	if ctx.Recording != nil {
		data[2] |= 0x10 // erasable
	}
	data[3] = 1 // first track on disc
	data[4] = byte(numSessions >> 8)
	data[5] = byte(firstTrackLastSession >> 8)
	data[6] = byte(lastTrackLastSession >> 8)
	data[7] = 0xFF // disc type unknown placeholder
	data[8] = byte(numSessions)
	data[9] = byte(firstTrackLastSession)
	data[10] = byte(lastTrackLastSession)
	binary.BigEndian.PutUint32(data[16:20], 0xFFFFFFFF) // last session lead-in, n/a
	binary.BigEndian.PutUint32(data[20:24], 0xFFFFFFFF) // last possible lead-out, n/a
	req.WriteBuffer(data)
	return nil
}

// handleReadTrackInformation implements READ TRACK INFORMATION's three
// addressing modes (LBA, track number, session number); on a non-
// recordable disc, requests for the empty next track or lead-in are
// rejected (device-commands.c command_read_track_information).
func handleReadTrackInformation(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	addrType := cdb[1] & 0x03
	number := int(binary.BigEndian.Uint32(cdb[2:6]))

	var track mirage.Track
	var err error
	emptyTrack := false
	leadin := false

	switch addrType {
	case 0x00:
		track, err = ctx.Disc.GetTrackByAddress(number)
		if err != nil && ctx.Recording != nil {
			emptyTrack = true
		}
	case 0x01:
		numTracks := ctx.Disc.NumberOfTracks()
		switch {
		case number >= 1 && number <= numTracks:
			track, err = ctx.Disc.GetTrackByNumber(number)
		case number == numTracks+1 && ctx.Recording != nil:
			emptyTrack = true
		case number == 0 && ctx.Recording != nil:
			leadin = true
		case number == 0xFF && ctx.Recording != nil:
			emptyTrack = true
		default:
			return Sense(senseerr.InvalidFieldInCDB)
		}
	case 0x02:
		for i := 0; i < ctx.Disc.NumberOfSessions(); i++ {
			session, serr := ctx.Disc.GetSessionByIndex(i)
			if serr != nil || session.LayoutSessionNumber() != number {
				continue
			}
			track, err = session.GetTrackByIndex(0)
			break
		}
	}

	data := make([]byte, 36)
	binary.BigEndian.PutUint16(data[0:2], 34)

	switch {
	case track != nil:
		trackNo := track.LayoutTrackNumber()
		sessionNo := track.LayoutSessionNumber()
		data[2] = byte(trackNo >> 8)
		data[3] = byte(sessionNo >> 8)
		data[5] = track.CTL()
		dataMode := byte(0x0F)
		switch track.SectorType() {
		case mirage.SectorAudio, mirage.SectorMode1:
			dataMode = 0x01
		case mirage.SectorMode2, mirage.SectorMode2Form1, mirage.SectorMode2Form2, mirage.SectorMode2Mixed:
			dataMode = 0x02
		}
		data[6] = dataMode
		binary.BigEndian.PutUint32(data[8:12], uint32(track.LayoutStartSector()))
		binary.BigEndian.PutUint32(data[24:28], uint32(track.LayoutLength()))
		data[33] = byte(trackNo)
		data[34] = byte(sessionNo)
	case emptyTrack:
		trackNo := ctx.Disc.NumberOfTracks() + 1
		sessionNo := ctx.Disc.NumberOfSessions() + 1
		data[2] = byte(trackNo >> 8)
		data[3] = byte(sessionNo >> 8)
		data[5] = 0x07
		data[6] = 0x01
		data[4] = 0x40 // blank
		if ctx.Recording != nil {
			data[7] = 0x80 // nwa valid
			binary.BigEndian.PutUint32(data[12:16], uint32(ctx.Recording.GetNextWritableAddress()))
		}
		data[33] = byte(trackNo)
		data[34] = byte(sessionNo)
	case leadin:
		// track/session numbers, track mode, data mode all zero
	default:
		return Sense(senseerr.InvalidFieldInCDB)
	}

	req.WriteBuffer(data)
	return nil
}

// handleReadDiscStructure validates the requested media type against
// the active profile, then returns the image's own structure when it
// has one and otherwise the structure fabricated by
// internal/discstructure (device-commands.c command_read_disc_structure).
func handleReadDiscStructure(ctx *Context, req *Request) error {
	if err := requireMedium(ctx); err != nil {
		return err
	}
	cdb := req.CDB
	mediaType := cdb[8] & 0x0F
	layer := cdb[6]
	format := cdb[7]

	switch mediaType {
	case 0x00:
		if ctx.Profile != mmc.ProfileDVDROM && ctx.Profile != mmc.ProfileDVDPlusR {
			return Sense(senseerr.InvalidFieldInCDB)
		}
	case 0x01:
		if ctx.Profile != mmc.ProfileBDROM && ctx.Profile != mmc.ProfileBDRSRM {
			return Sense(senseerr.InvalidFieldInCDB)
		}
	default:
		return Sense(senseerr.InvalidFieldInCDB)
	}

	if body, ok := ctx.Disc.GetDiscStructure(int(layer), format); ok {
		header := make([]byte, 4)
		binary.BigEndian.PutUint16(header[0:2], uint16(len(body)+2))
		req.WriteBuffer(header)
		req.WriteBuffer(body)
		return nil
	}

	body, err := fabricateDiscStructure(ctx, format)
	if err != nil {
		return Sense(senseerr.InvalidFieldInCDB)
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], uint16(len(body)+2))
	req.WriteBuffer(header)
	req.WriteBuffer(body)
	return nil
}

func fabricateDiscStructure(ctx *Context, format byte) ([]byte, error) {
	if ctx.Profile.IsBD() {
		switch format {
		case 0x00:
			return discstructure.BDDiscInformation(ctx.Profile)
		case 0xFF:
			return discstructure.BDCapabilityList(ctx.Profile)
		}
		return nil, &discstructure.ErrUnsupportedMedia{Format: discstructure.Format(format), Profile: ctx.Profile}
	}
	switch format {
	case 0x00:
		return discstructure.DVDPhysicalFormat(ctx.Profile, uint32(ctx.Disc.LayoutLength()))
	case 0x01:
		return discstructure.DVDCopyright(ctx.Profile, ctx.DVDReportCSS)
	case 0x04:
		return discstructure.ZeroBlock(2048), nil
	case 0xFF:
		return discstructure.DVDCapabilityList(ctx.Profile)
	}
	return nil, &discstructure.ErrUnsupportedMedia{Format: discstructure.Format(format), Profile: ctx.Profile}
}
