package recording

import (
	"fmt"
	"sort"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
)

// cueEntrySize is the fixed width of one SEND CUE SHEET entry
// (spec §6.1.9): ctl_adr, tno, idx, data_format, zero, min, sec, frame.
const cueEntrySize = 8

// sectorFormat is one row of the SAO main-data format table (spec §4.5
// "21-entry table"; the original engine's table has 17 populated rows,
// which this mirrors exactly — see mmc-mode-pages.h cross-reference in
// DESIGN.md).
type sectorFormat struct {
	code       byte
	sectorType mirage.SectorType
	mainSize   int
	ignore     mirage.FeedIgnoreFlags
}

var saoMainFormats = []sectorFormat{
	{0x00, mirage.SectorAudio, 2352, mirage.IgnoreNone},
	{0x01, mirage.SectorAudio, 0, mirage.IgnoreNone},
	{0x10, mirage.SectorMode1, 2048, mirage.IgnoreNone},
	{0x11, mirage.SectorMode1, 2352, mirage.IgnoreSync | mirage.IgnoreHeader | mirage.IgnoreEDCECC},
	{0x12, mirage.SectorMode1, 2048, mirage.IgnoreNone},
	{0x13, mirage.SectorMode1, 2352, mirage.IgnoreSync | mirage.IgnoreHeader | mirage.IgnoreEDCECC},
	{0x14, mirage.SectorMode1, 0, mirage.IgnoreNone},
	{0x20, mirage.SectorMode2Mixed, 2336, mirage.IgnoreEDCECC},
	{0x21, mirage.SectorMode2Mixed, 2352, mirage.IgnoreSync | mirage.IgnoreHeader | mirage.IgnoreEDCECC},
	{0x22, mirage.SectorMode2Mixed, 2336, mirage.IgnoreEDCECC},
	{0x23, mirage.SectorMode2Mixed, 2352, mirage.IgnoreSync | mirage.IgnoreHeader | mirage.IgnoreEDCECC},
	{0x24, mirage.SectorMode2Form2, 0, mirage.IgnoreNone},
	{0x30, mirage.SectorMode2, 2336, mirage.IgnoreNone},
	{0x31, mirage.SectorMode2, 2352, mirage.IgnoreSync | mirage.IgnoreHeader},
	{0x32, mirage.SectorMode2, 2336, mirage.IgnoreNone},
	{0x33, mirage.SectorMode2, 2352, mirage.IgnoreSync | mirage.IgnoreHeader},
	{0x34, mirage.SectorMode2, 0, mirage.IgnoreNone},
}

func findSectorFormat(code byte) (sectorFormat, bool) {
	code &= 0x3F
	for _, f := range saoMainFormats {
		if f.code == code {
			return f, true
		}
	}
	return sectorFormat{}, false
}

// CueTrack is one reconstructed track entry from a parsed cue sheet.
type CueTrack struct {
	Number     int
	CTL, ADR   byte
	SectorType mirage.SectorType
	Ignore     mirage.FeedIgnoreFlags
	TrackStart int // pregap length, sectors
	Length     int // total track length including pregap, sectors
	Indices    []int
	ISRC       string
}

// CueSheet is the parsed result of a SEND CUE SHEET payload (spec
// §4.5 SAO / §6.1.9).
type CueSheet struct {
	Tracks       []*CueTrack
	MCN          string
	LeadInRawSAO bool
	LeadInFormat byte
}

type cueAddr struct {
	tno, idx byte
	address  int
}

// ParseCueSheet implements the cue-sheet parsing rules of spec §4.5.
func ParseCueSheet(raw []byte) (*CueSheet, error) {
	if len(raw)%cueEntrySize != 0 {
		return nil, fmt.Errorf("recording: cue sheet length %d not a multiple of %d", len(raw), cueEntrySize)
	}

	sheet := &CueSheet{}
	trackByNumber := make(map[int]*CueTrack)
	var trackAddrs []cueAddr

	var mcnParts []string
	var isrcParts []string
	var isrcTrack *CueTrack

	for off := 0; off < len(raw); off += cueEntrySize {
		e := raw[off : off+cueEntrySize]
		adr := e[0] & 0x0F
		ctl := e[0] >> 4
		tno := e[1]
		idx := e[2]
		dataFormat := e[3]

		switch {
		case tno == 0x00 && adr != 2 && adr != 3:
			if dataFormat>>6 != 0 {
				sheet.LeadInRawSAO = true
				sheet.LeadInFormat = dataFormat
			}

		case tno == 0xAA:
			addr := bcdMSFToLBA(e[5], e[6], e[7])
			trackAddrs = append(trackAddrs, cueAddr{tno: 0xAA, address: addr + 150})

		case adr == 1 && tno >= 1 && tno <= 99 && (idx == 0 || idx == 1):
			track, ok := trackByNumber[int(tno)]
			if !ok {
				track = &CueTrack{Number: int(tno), CTL: ctl, ADR: adr}
				trackByNumber[int(tno)] = track
				sheet.Tracks = append(sheet.Tracks, track)
			}
			if idx == 1 {
				sf, ok := findSectorFormat(dataFormat)
				if !ok {
					return nil, unknownSectorFormatError(dataFormat)
				}
				track.SectorType = sf.sectorType
				track.Ignore = sf.ignore
			}
			addr := bcdMSFToLBA(e[5], e[6], e[7]) + 150
			trackAddrs = append(trackAddrs, cueAddr{tno: tno, idx: idx, address: addr})

		case adr == 2:
			mcnParts = append(mcnParts, decodeCuePairASCII(e, len(mcnParts) == 0))
			if len(mcnParts) == 2 {
				sheet.MCN = mcnParts[0] + mcnParts[1]
			}

		case adr == 3:
			if isrcTrack == nil {
				isrcTrack = trackByNumber[int(tno)]
			}
			// e[1] is the track number; each half carries 6 characters.
			isrcParts = append(isrcParts, string(e[2:8]))
			if len(isrcParts) == 2 && isrcTrack != nil {
				isrcTrack.ISRC = isrcParts[0] + isrcParts[1]
				isrcParts = nil
				isrcTrack = nil
			}
		}
	}

	if err := resolveTrackLengths(sheet, trackAddrs); err != nil {
		return nil, err
	}
	return sheet, nil
}

func unknownSectorFormatError(code byte) error {
	return fmt.Errorf("recording: unknown SAO data format 0x%02X", code&0x3F)
}

// decodeCuePairASCII extracts the ASCII payload carried by an ADR=2 (MCN)
// cue entry: 7 characters (bytes 1-7) for the first half of a pair, 6
// (bytes 1-6) for the second, giving the 13-character MCN.
func decodeCuePairASCII(e []byte, first bool) string {
	if first {
		return string(e[1:8])
	}
	return string(e[1:7])
}

// resolveTrackLengths implements spec §4.5's "track lengths are derived
// by walking the cue list backwards and subtracting adjacent MSF
// addresses; index-0 entries produce a pregap whose length equals
// track_start", matching cdemu_device_sao_recording_parse_cue_sheet's
// second pass (device-recording.c) entry by entry: it walks the raw
// entry array in reverse order (not grouped by track number — an
// index-1 entry can appear before its own index-0 entry in the
// stream), and for every ADR=1, TNO!=0, IDX<=1 entry sets
// length = last_address - this_entry_address, accumulates that length
// into the owning track's total, and records it as TrackStart when
// IDX==0. last_address is updated after every qualifying entry,
// including lead-out, which never owns a track of its own.
func resolveTrackLengths(sheet *CueSheet, addrs []cueAddr) error {
	sort.SliceStable(sheet.Tracks, func(i, j int) bool { return sheet.Tracks[i].Number < sheet.Tracks[j].Number })

	byNumber := make(map[int]*CueTrack, len(sheet.Tracks))
	for _, track := range sheet.Tracks {
		byNumber[track.Number] = track
	}
	haveIdx1 := make(map[int]bool, len(sheet.Tracks))

	lastAddress := 0
	for i := len(addrs) - 1; i >= 0; i-- {
		a := addrs[i]
		if a.tno == 0xAA {
			lastAddress = a.address
			continue
		}

		track, ok := byNumber[int(a.tno)]
		if !ok {
			lastAddress = a.address
			continue
		}

		length := lastAddress - a.address
		track.Length += length
		if a.idx == 0 {
			track.TrackStart = length
		} else {
			haveIdx1[track.Number] = true
		}
		lastAddress = a.address
	}

	for _, track := range sheet.Tracks {
		if !haveIdx1[track.Number] {
			return fmt.Errorf("recording: track %d missing index-1 entry in cue sheet", track.Number)
		}
	}
	return nil
}
