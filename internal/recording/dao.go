package recording

import (
	"fmt"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
)

// dao implements disc-at-once recording for DVD/BD media (spec §4.5
// DAO): mode 2 falls back to this strategy instead of SAO whenever the
// loaded medium isn't CD. The host reserves one track up front with
// RESERVE TRACK, then streams Mode 1 sectors into it; there is no
// cue sheet, no pregap and no multi-track layout.
type dao struct {
	*base
}

func (d *dao) ReserveTrack(length int) error {
	if d.openSession == nil {
		if err := d.openSessionGeneric(); err != nil {
			return err
		}
	}
	if err := d.openTrackGeneric(mirage.SectorMode1); err != nil {
		return err
	}

	data, err := d.writer.CreateFragment(d.openTrack, mirage.FragmentData)
	if err != nil {
		return fmt.Errorf("recording: DAO data fragment: %w", err)
	}
	data.SetLength(length)
	return d.openTrack.AddFragment(data)
}

// WriteSectors requires data block type 8 (Mode 1, 2048 bytes) in mode
// page 0x05; DVD/BD DAO recording carries no other sector format.
func (d *dao) WriteSectors(startAddress int, payload []byte) error {
	if d.openTrack == nil {
		if err := d.ReserveTrack(0); err != nil {
			return fmt.Errorf("recording: DAO implicit reserve: %w", err)
		}
	}

	dataBlockType, err := d.pages.DataBlockType()
	if err != nil {
		return err
	}
	if dataBlockType != 8 {
		return fmt.Errorf("recording: DAO requires data block type 8, got %d", dataBlockType)
	}

	format := DataFormats[8]
	stride := format.MainSize + format.SubchannelSize
	numSectors := len(payload) / stride

	for i := 0; i < numSectors; i++ {
		address := startAddress + i
		chunk := payload[i*stride : (i+1)*stride]

		sector, err := d.writer.NewSector()
		if err != nil {
			return err
		}
		if err := sector.FeedData(address, mirage.SectorMode1, chunk[:format.MainSize], mirage.SubchannelNone, nil, mirage.IgnoreNone); err != nil {
			return fmt.Errorf("recording: DAO feed sector 0x%X: %w", address, err)
		}
		if err := d.writeSectorGeneric(sector, address); err != nil {
			return err
		}
		d.numWrittenSectors++
	}
	return nil
}

func (d *dao) CloseTrack() error   { return d.closeTrackGeneric() }
func (d *dao) CloseSession() error { return d.closeSessionGeneric() }
func (d *dao) GetNextWritableAddress() int {
	return d.numWrittenSectors // NWA base is the start of the first track
}
