package recording

import (
	"fmt"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
)

// sao implements session-at-once recording (spec §4.5 SAO): the host
// first sends a SEND CUE SHEET payload describing every track's
// boundaries, ISRC, and sector format, then streams the whole session's
// sectors in one WRITE(10)/(12) run. Unlike TAO/RAW, track layout comes
// entirely from the parsed cue sheet rather than from data seen so far.
type sao struct {
	*base

	cueSheet  *CueSheet
	trackAddr []cueTrackSpan
}

type cueTrackSpan struct {
	track      *CueTrack
	start, end int
}

// SetCueSheet parses and stores a SEND CUE SHEET payload (spec §6.1.9),
// precomputing each track's absolute address range so WriteSectors can
// find the right track for any incoming sector.
func (s *sao) SetCueSheet(raw []byte) error {
	sheet, err := ParseCueSheet(raw)
	if err != nil {
		return err
	}
	s.cueSheet = sheet
	s.trackAddr = s.trackAddr[:0]

	addr := 0
	for _, tr := range sheet.Tracks {
		s.trackAddr = append(s.trackAddr, cueTrackSpan{track: tr, start: addr, end: addr + tr.Length})
		addr += tr.Length
	}
	return nil
}

func (s *sao) spanForAddress(address int) (cueTrackSpan, error) {
	for _, span := range s.trackAddr {
		if address >= span.start && address < span.end {
			return span, nil
		}
	}
	return cueTrackSpan{}, fmt.Errorf("recording: SAO address 0x%X outside cue sheet layout", address)
}

func (s *sao) openSessionSAO() error {
	if err := s.openSessionGeneric(); err != nil {
		return err
	}
	if s.cueSheet != nil && s.cueSheet.MCN != "" {
		s.openSession.SetMCN(s.cueSheet.MCN)
	}
	return nil
}

// openTrackSAO opens a real track and recreates its fragment layout
// from the matching cue-sheet entry: a PREGAP fragment sized TrackStart
// sectors (when present), then a DATA fragment covering the rest (spec
// §4.5 "index-0 entries produce a pregap").
func (s *sao) openTrackSAO(span cueTrackSpan) error {
	if err := s.openTrackGeneric(span.track.SectorType); err != nil {
		return err
	}
	t := s.openTrack
	t.SetFlags(span.track.CTL, span.track.ADR)
	if span.track.ISRC != "" {
		t.SetISRC(span.track.ISRC)
	}
	t.SetTrackStart(span.track.TrackStart)

	if span.track.TrackStart > 0 {
		pregap, err := s.writer.CreateFragment(t, mirage.FragmentPregap)
		if err != nil {
			return fmt.Errorf("recording: SAO pregap fragment: %w", err)
		}
		pregap.SetLength(span.track.TrackStart)
		if err := t.AddFragment(pregap); err != nil {
			return err
		}
	}

	data, err := s.writer.CreateFragment(t, mirage.FragmentData)
	if err != nil {
		return fmt.Errorf("recording: SAO data fragment: %w", err)
	}
	data.SetLength(span.track.Length - span.track.TrackStart)
	if err := t.AddFragment(data); err != nil {
		return err
	}

	for _, idx := range span.track.Indices {
		if err := t.AddIndex(idx); err != nil {
			return err
		}
	}
	return nil
}

// WriteSectors requires a cue sheet to already be set (spec §4.5: a
// WRITE with no preceding SEND CUE SHEET is a command sequence error).
func (s *sao) WriteSectors(startAddress int, payload []byte) error {
	if s.cueSheet == nil {
		return fmt.Errorf("recording: SAO write with no cue sheet set")
	}

	dataBlockType, err := s.pages.DataBlockType()
	if err != nil {
		return err
	}
	format := DataFormats[dataBlockType]
	if format.MainSize == 0 {
		return fmt.Errorf("recording: unsupported data block type %d", dataBlockType)
	}
	stride := format.MainSize + format.SubchannelSize
	numSectors := len(payload) / stride

	if s.openSession == nil {
		if err := s.openSessionSAO(); err != nil {
			return err
		}
	}

	for i := 0; i < numSectors; i++ {
		address := startAddress + i
		chunk := payload[i*stride : (i+1)*stride]

		span, err := s.spanForAddress(address)
		if err != nil {
			return err
		}

		if s.openTrack == nil || s.openTrack.LayoutTrackNumber() != span.track.Number {
			if s.openTrack != nil {
				if err := s.closeTrackGeneric(); err != nil {
					return err
				}
			}
			if err := s.openTrackSAO(span); err != nil {
				return err
			}
		}

		sector, err := s.writer.NewSector()
		if err != nil {
			return err
		}
		if err := sector.FeedData(address, span.track.SectorType, chunk[:format.MainSize], format.SubchannelFormat, chunk[format.MainSize:], span.track.Ignore); err != nil {
			return fmt.Errorf("recording: SAO feed sector 0x%X: %w", address, err)
		}
		if err := s.writeSectorGeneric(sector, address); err != nil {
			return err
		}
		s.numWrittenSectors++
	}

	if numSectors > 0 && startAddress+numSectors == s.trackAddr[len(s.trackAddr)-1].end {
		return s.closeSessionGeneric()
	}
	return nil
}

func (s *sao) CloseTrack() error   { return s.closeTrackGeneric() }
func (s *sao) CloseSession() error { return s.closeSessionGeneric() }
func (s *sao) GetNextWritableAddress() int {
	return s.mediumLeadin + s.numWrittenSectors
}
func (s *sao) ReserveTrack(length int) error { return s.reserveTrackGeneric(length) }
