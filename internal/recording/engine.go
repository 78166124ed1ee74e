// Package recording implements C7: the four pluggable recording
// strategies (TAO, SAO, RAW-SAO, DAO) that translate host WRITE(10)/(12)
// payloads into a logical disc layout on top of the mirage capability
// interfaces, plus the SAO cue-sheet parser. Grounded on cdemu's
// device-recording.c; the vtable of close_track/close_session/
// write_sectors/get_next_writable_address/reserve_track becomes the
// Strategy interface below.
package recording

import (
	"fmt"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
)

// Strategy is the common recording-mode contract the command dispatcher
// (C8) drives: one implementation per recording mode (spec §4.5).
type Strategy interface {
	WriteSectors(startAddress int, payload []byte) error
	CloseTrack() error
	CloseSession() error
	GetNextWritableAddress() int
	ReserveTrack(length int) error
}

// CueSheetReceiver is implemented by the SAO strategy alone; the
// dispatcher type-asserts for it when handling SEND CUE SHEET, since no
// other mode accepts a cue sheet (spec §4.6 SEND CUE SHEET guard).
type CueSheetReceiver interface {
	SetCueSheet(raw []byte) error
}

// base holds the state every strategy shares: the open session/track
// handles, running counters, and the collaborators (disc, writer, mode
// pages) needed to open/close them. It is not itself a Strategy; each
// mode embeds it and supplies write_sectors.
type base struct {
	disc   mirage.Disc
	writer mirage.Writer
	pages  *modepage.Store

	openSession mirage.Session
	openTrack   mirage.Track

	numWrittenSectors int
	mediumLeadin      int
	discClosed        bool

	leadinCDTextPacks [][]byte
}

// NewStrategy builds the Strategy for the given recording mode
// (spec §4.5 set_recording_mode). mediumLeadin is the lead-in length in
// sectors, used by RAW's get_next_writable_address.
func NewStrategy(mode RecordingMode, disc mirage.Disc, writer mirage.Writer, pages *modepage.Store, mediumLeadin int) (Strategy, error) {
	b := &base{disc: disc, writer: writer, pages: pages, mediumLeadin: mediumLeadin}
	switch mode {
	case ModeTAO:
		return &tao{base: b}, nil
	case ModeRAW:
		return &raw{base: b}, nil
	case ModeSAO:
		return &sao{base: b}, nil
	case ModeDAO:
		return &dao{base: b}, nil
	default:
		return nil, fmt.Errorf("recording: unknown mode %d", mode)
	}
}

// RecordingMode mirrors mmc.RecordingMode but is declared locally to
// keep this package's public surface self-contained.
type RecordingMode int

const (
	ModeTAO RecordingMode = iota
	ModeSAO
	ModeRAW
	ModeDAO
)

func (b *base) openSessionGeneric() error {
	s, err := b.disc.AddSession()
	if err != nil {
		return err
	}
	b.openSession = s
	return nil
}

func (b *base) openTrackGeneric(sectorType mirage.SectorType) error {
	if b.openTrack != nil {
		if err := b.closeTrackGeneric(); err != nil {
			return err
		}
	}
	t, err := b.openSession.AddTrack(sectorType)
	if err != nil {
		return err
	}
	b.openTrack = t
	return nil
}

func (b *base) closeTrackGeneric() error {
	b.openTrack = nil
	return nil
}

func (b *base) closeSessionGeneric() error {
	if b.openSession == nil {
		return nil
	}
	if b.openTrack != nil {
		if err := b.closeTrackGeneric(); err != nil {
			return err
		}
	}

	if len(b.leadinCDTextPacks) > 0 {
		buf := make([]byte, 0, len(b.leadinCDTextPacks)*18)
		for i := len(b.leadinCDTextPacks) - 1; i >= 0; i-- {
			buf = append(buf, b.leadinCDTextPacks[i]...)
		}
		b.openSession.SetCDTextData(buf)
		b.leadinCDTextPacks = nil
	}

	b.openSession = nil

	clear, err := b.pages.MultisessionBitClear()
	if err != nil {
		return err
	}
	if clear {
		b.discClosed = true
		if err := b.writer.FinalizeImage(b.disc); err != nil {
			return err
		}
	}

	b.numWrittenSectors = 0
	return nil
}

func (b *base) writeSectorGeneric(sector mirage.Sector, address int) error {
	return b.openTrack.PutSector(address, sector)
}

// processLeadinSector extracts the four CD-TEXT packs carried in a
// lead-in sector's raw P-W subchannel (spec §4.5 "lead-in CD-TEXT
// packs"), matching cdemu's bit-deinterleave exactly.
func (b *base) processLeadinSector(sector mirage.Sector) {
	subchannel := sector.Subchannel(mirage.SubchannelRW)
	if len(subchannel) < 96 {
		return
	}

	cdtext := make([]byte, 72)
	for i := 0; i < 96; i += 4 {
		o := (i / 4) * 3
		cdtext[o] = ((subchannel[i] << 2) & 0xFC) | ((subchannel[i+1] >> 4) & 0x03)
		cdtext[o+1] = ((subchannel[i+1] << 4) & 0xF0) | ((subchannel[i+2] >> 2) & 0x0F)
		cdtext[o+2] = ((subchannel[i+2] << 6) & 0xC0) | (subchannel[i+3] & 0x3F)
	}

	for i := 0; i < 4; i++ {
		pack := cdtext[i*18 : i*18+18]
		if pack[0]&0x80 != 0x80 {
			continue
		}
		if int(pack[2]) >= len(b.leadinCDTextPacks) {
			cp := append([]byte(nil), pack...)
			b.leadinCDTextPacks = append(b.leadinCDTextPacks, cp)
		}
	}
}

func (b *base) reserveTrackGeneric(length int) error {
	return nil
}
