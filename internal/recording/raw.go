package recording

import (
	"fmt"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
)

// raw implements RAW (Q-subchannel-driven) recording (spec §4.5 RAW):
// the host streams an entire disc image including lead-in/lead-out, and
// track/index boundaries are inferred from each sector's Q subchannel
// rather than from explicit commands.
type raw struct {
	*base

	lastTNO byte
	lastIDX byte
}

// qSubchannel is the 12-byte decoded Q-channel payload this engine
// expects from Sector.Subchannel(mirage.SubchannelQOnly): byte 0 packs
// ADR (low nibble) and CTL (high nibble), byte 1 is TNO, byte 2 is IDX,
// bytes 3-5 are the BCD track-relative MSF, byte 6 is zero, bytes 7-9
// are the BCD absolute MSF, bytes 10-11 are CRC (unused here).
type qSubchannel struct {
	adr, ctl         byte
	tno, idx         byte
	relativeAddress  int
	absoluteAddress  int
}

func decodeQSubchannel(raw []byte) (qSubchannel, error) {
	if len(raw) < 10 {
		return qSubchannel{}, fmt.Errorf("recording: RAW Q subchannel too short (%d bytes)", len(raw))
	}
	return qSubchannel{
		adr:             raw[0] & 0x0F,
		ctl:             raw[0] >> 4,
		tno:             raw[1],
		idx:             raw[2],
		relativeAddress: bcdMSFToLBA(raw[3], raw[4], raw[5]),
		absoluteAddress: bcdMSFToLBA(raw[7], raw[8], raw[9]) - 150,
	}, nil
}

func bcdMSFToLBA(m, s, f byte) int {
	min := bcdToDec(m)
	sec := bcdToDec(s)
	frame := bcdToDec(f)
	return min*60*75 + sec*75 + frame
}

func bcdToDec(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

func (r *raw) writeSector(address int, sector mirage.Sector) error {
	q, err := decodeQSubchannel(sector.Subchannel(mirage.SubchannelQOnly))
	if err != nil {
		return err
	}

	// Lead-in: TOC in Q, CD-TEXT in R-W; session layout is inferred from
	// the sectors that follow rather than from the TOC itself.
	if q.tno == 0x00 {
		if r.openSession == nil {
			if err := r.openSessionGeneric(); err != nil {
				return err
			}
			r.lastTNO, r.lastIDX = 0, 0
		}
		r.processLeadinSector(sector)
		return nil
	}

	// Lead-out: no useful payload, but closes the open session.
	if q.tno == 0xAA {
		if r.openSession != nil {
			return r.closeSessionGeneric()
		}
		return nil
	}

	if r.openSession == nil {
		return nil // past lead-out, e.g. a trailing MCN-only sector
	}

	switch q.adr {
	case 1:
		if err := r.handleTrackData(q, address, sector); err != nil {
			return err
		}
	case 2:
		if r.openSession != nil && r.openSession.MCN() == "" {
			if mcn := decodeMCNFromQ(sector.Subchannel(mirage.SubchannelQOnly)); mcn != "" {
				r.openSession.SetMCN(mcn)
			}
		}
	case 3:
		if r.openTrack != nil && r.openTrack.ISRC() == "" {
			if isrc := decodeISRCFromQ(sector.Subchannel(mirage.SubchannelQOnly)); isrc != "" {
				r.openTrack.SetISRC(isrc)
			}
		}
	}

	if r.openTrack == nil {
		return fmt.Errorf("recording: RAW write with no open track at address 0x%X", address)
	}
	return r.writeSectorGeneric(sector, address)
}

func (r *raw) handleTrackData(q qSubchannel, address int, sector mirage.Sector) error {
	if q.tno != r.lastTNO {
		if r.openTrack != nil {
			if err := r.closeTrackGeneric(); err != nil {
				return err
			}
		}
		if err := r.openTrackGeneric(sector.SectorType()); err != nil {
			return err
		}
		r.openTrack.SetFlags(q.ctl, q.adr)

		var role mirage.FragmentRole
		if q.idx == 0 {
			r.openTrack.SetTrackStart(q.relativeAddress + 1)
			role = mirage.FragmentPregap
		} else {
			role = mirage.FragmentData
		}
		frag, err := r.writer.CreateFragment(r.openTrack, role)
		if err != nil {
			return fmt.Errorf("recording: RAW %v fragment: %w", role, err)
		}
		if err := r.openTrack.AddFragment(frag); err != nil {
			return err
		}
		r.lastTNO, r.lastIDX = q.tno, q.idx
	} else if q.idx != r.lastIDX {
		if q.idx == 1 {
			frag, err := r.writer.CreateFragment(r.openTrack, mirage.FragmentData)
			if err != nil {
				return fmt.Errorf("recording: RAW data fragment: %w", err)
			}
			if err := r.openTrack.AddFragment(frag); err != nil {
				return err
			}
		} else {
			if err := r.openTrack.AddIndex(q.relativeAddress); err != nil {
				return err
			}
		}
		r.lastIDX = q.idx
	}
	return nil
}

func decodeMCNFromQ(raw []byte) string {
	if len(raw) < 8 {
		return ""
	}
	digits := make([]byte, 0, 13)
	for _, b := range raw[1:8] {
		digits = append(digits, '0'+(b>>4), '0'+(b&0x0F))
	}
	return string(digits[:13])
}

func decodeISRCFromQ(raw []byte) string {
	if len(raw) < 8 {
		return ""
	}
	return string(raw[1:8])
}

func (r *raw) WriteSectors(startAddress int, payload []byte) error {
	dataBlockType, err := r.pages.DataBlockType()
	if err != nil {
		return err
	}
	format := DataFormats[dataBlockType]
	if format.MainSize == 0 {
		return fmt.Errorf("recording: unsupported data block type %d", dataBlockType)
	}
	stride := format.MainSize + format.SubchannelSize
	numSectors := len(payload) / stride

	for i := 0; i < numSectors; i++ {
		address := startAddress + i
		chunk := payload[i*stride : (i+1)*stride]

		sector, err := r.writer.NewSector()
		if err != nil {
			return err
		}
		if err := sector.FeedData(address, scrambledRawType, chunk[:format.MainSize], format.SubchannelFormat, chunk[format.MainSize:], mirage.IgnoreNone); err != nil {
			return fmt.Errorf("recording: RAW feed sector 0x%X: %w", address, err)
		}
		if err := r.writeSector(address, sector); err != nil {
			return err
		}
		r.numWrittenSectors++
	}
	return nil
}

// scrambledRawType marks sectors fed in RAW mode as scrambled raw data,
// matching MIRAGE_SECTOR_RAW_SCRAMBLED in the original engine; modeled
// here as SectorRaw since the core doesn't otherwise need to
// distinguish scrambled from plain raw at this layer.
const scrambledRawType = mirage.SectorRaw

func (r *raw) CloseTrack() error   { return r.closeTrackGeneric() }
func (r *raw) CloseSession() error { return r.closeSessionGeneric() }
func (r *raw) GetNextWritableAddress() int {
	return r.mediumLeadin + r.numWrittenSectors
}
func (r *raw) ReserveTrack(length int) error { return r.reserveTrackGeneric(length) }
