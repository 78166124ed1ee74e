package recording

import (
	"fmt"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
)

// taoPregapLength is the fixed 150-sector (2-second) pregap every
// track-at-once CD track gets (spec §4.5 TAO).
const taoPregapLength = 150

// tao implements track-at-once recording (spec §4.5 TAO): every
// WRITE(10)/(12) opens a session/track on demand and appends straight
// to the open track's data fragment.
type tao struct {
	*base
}

func (t *tao) openSessionTAO() error {
	if err := t.openSessionGeneric(); err != nil {
		return err
	}
	raw, err := t.pages.Get(modepage.PageWriteParameters, modepage.Current)
	if err != nil {
		return err
	}
	if mcn := trimmedCString(raw[modepage.Off05MCN+1 : modepage.Off05MCN+16]); mcn != "" {
		t.openSession.SetMCN(mcn)
	}
	return nil
}

func (t *tao) openTrackTAO(sectorType mirage.SectorType) error {
	if err := t.openTrackGeneric(sectorType); err != nil {
		return err
	}
	raw, err := t.pages.Get(modepage.PageWriteParameters, modepage.Current)
	if err != nil {
		return err
	}
	if isrc := trimmedCString(raw[modepage.Off05ISRC+1 : modepage.Off05ISRC+16]); isrc != "" {
		t.openTrack.SetISRC(isrc)
	}
	t.openTrack.SetFlags(raw[modepage.Off05TrackMode]&0x0F, 0x01)

	if t.disc.MediumType() == mirage.MediumCD {
		pregap, err := t.writer.CreateFragment(t.openTrack, mirage.FragmentPregap)
		if err != nil {
			return fmt.Errorf("recording: TAO pregap fragment: %w", err)
		}
		pregap.SetLength(taoPregapLength)
		if err := t.openTrack.AddFragment(pregap); err != nil {
			return err
		}
		t.openTrack.SetTrackStart(taoPregapLength)
		t.numWrittenSectors += taoPregapLength
	}

	data, err := t.writer.CreateFragment(t.openTrack, mirage.FragmentData)
	if err != nil {
		return fmt.Errorf("recording: TAO data fragment: %w", err)
	}
	return t.openTrack.AddFragment(data)
}

func (t *tao) writeSector(sector mirage.Sector, address int) error {
	if t.openSession == nil {
		if err := t.openSessionTAO(); err != nil {
			return err
		}
	}
	if t.openTrack == nil {
		if err := t.openTrackTAO(sector.SectorType()); err != nil {
			return err
		}
	}
	return t.writeSectorGeneric(sector, address)
}

func (t *tao) WriteSectors(startAddress int, payload []byte) error {
	dataBlockType, err := t.pages.DataBlockType()
	if err != nil {
		return err
	}

	var format DataFormat
	if t.disc.MediumType() == mirage.MediumCD {
		format = DataFormats[dataBlockType]
	} else {
		format = DataFormats[8] // forced MODE1, non-CD media
	}
	if format.MainSize == 0 {
		return fmt.Errorf("recording: unsupported data block type %d", dataBlockType)
	}

	stride := format.MainSize + format.SubchannelSize
	numSectors := len(payload) / stride

	for i := 0; i < numSectors; i++ {
		address := startAddress + i
		chunk := payload[i*stride : (i+1)*stride]

		sector, err := t.writer.NewSector()
		if err != nil {
			return err
		}

		sectorType := format.SectorType
		if sectorType == mirage.SectorRaw && t.openTrack != nil {
			sectorType = t.openTrack.SectorType()
		}

		if err := sector.FeedData(address, sectorType, chunk[:format.MainSize], format.SubchannelFormat, chunk[format.MainSize:], mirage.IgnoreNone); err != nil {
			return fmt.Errorf("recording: TAO feed sector 0x%X: %w", address, err)
		}

		if dataBlockType == 10 || dataBlockType == 12 {
			raw, err := t.pages.Get(modepage.PageWriteParameters, modepage.Current)
			if err != nil {
				return err
			}
			sector.SetSubheader(append([]byte(nil), raw[modepage.Off05Subheader:modepage.Off05Subheader+4]...))
		}

		if err := t.writeSector(sector, address); err != nil {
			return err
		}
		t.numWrittenSectors++
	}
	return nil
}

func (t *tao) CloseTrack() error   { return t.closeTrackGeneric() }
func (t *tao) CloseSession() error { return t.closeSessionGeneric() }
func (t *tao) GetNextWritableAddress() int {
	return t.numWrittenSectors // NWA base is track 1's start, sans multisession support
}
func (t *tao) ReserveTrack(length int) error { return t.reserveTrackGeneric(length) }

// trimmedCString returns s up to (not including) its first NUL byte, as
// a string — used for the MCN/ISRC fields in mode page 0x05, which are
// ASCII followed by a zero terminator field (spec §4.1).
func trimmedCString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
