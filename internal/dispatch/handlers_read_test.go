package dispatch

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
	"github.com/stretchr/testify/require"
)

// discWithQ builds a one-track, one-session CD image whose sectors
// carry caller-supplied Q subchannel bytes, for exercising the
// ADR-driven paths of READ SUBCHANNEL.
func discWithQ(t *testing.T, q map[int][]byte, numSectors int) *memimage.Disc {
	t.Helper()
	disc := memimage.New(mirage.MediumCD)
	session, err := disc.AddSession()
	require.NoError(t, err)

	track := memimage.NewTrack(1)
	track.Type = mirage.SectorMode1
	track.StartAddr = 0
	require.NoError(t, session.AddTrackByNumber(1, track))

	frag := memimage.NewFragment(0, mirage.SectorMode1)
	for i := 0; i < numSectors; i++ {
		frag.PutSector(i, &memimage.Sector{
			Type:     mirage.SectorMode1,
			DataD:    make([]byte, 2048),
			SubchanD: q[i],
		})
	}
	frag.SetLength(numSectors)
	require.NoError(t, track.AddFragment(frag))
	session.(*memimage.Session).LengthD = numSectors
	return disc
}

func readSubchannelPositionCDB() []byte {
	cdb := make([]byte, 10)
	cdb[0] = mmc.OpReadSubChannel
	cdb[2] = 0x40 // SubQ
	cdb[3] = 0x01 // position data
	return cdb
}

func TestReadSubchannelPositionNoCorrectionWhenQAbsent(t *testing.T) {
	ctx := newTestContext()
	ctx.Disc = oneTrackDisc(t)
	ctx.MediumLoaded = true
	ctx.CurrentAddress = 10

	status, out, sense := Dispatch(ctx, readSubchannelPositionCDB(), nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)

	body := out[4:]
	require.Equal(t, byte(1), body[4]) // track number
	rm, rs, rf := lbaToMSF(10)
	require.Equal(t, []byte{0, rm, rs, rf}, body[12:16])
}

func TestReadSubchannelPositionAppliesNegativeCorrection(t *testing.T) {
	ctx := newTestContext()
	q := map[int][]byte{
		10: {0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0}, // ADR=0, not Mode-1
		11: {0x01, 1, 1, 0, 0, 0, 0, 0, 0, 0}, // ADR=1, Mode-1 found here
	}
	ctx.Disc = discWithQ(t, q, 20)
	ctx.MediumLoaded = true
	ctx.CurrentAddress = 10

	status, out, sense := Dispatch(ctx, readSubchannelPositionCDB(), nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)

	body := out[4:]
	// Found Mode-1 one sector ahead (address 11, relative 11, absolute
	// 161); correction of 1 must be subtracted from both before MSF
	// encoding, so the reply still describes address 10.
	rm, rs, rf := lbaToMSF(10)
	require.Equal(t, []byte{0, rm, rs, rf}, body[12:16])
	am, as, af := lbaToMSF(160)
	require.Equal(t, []byte{0, am, as, af}, body[8:12])
}

func TestReadSubchannelMCNScansFirst100Sectors(t *testing.T) {
	ctx := newTestContext()
	mcn := []byte("1234567890123")
	q := map[int][]byte{
		42: append([]byte{0x02}, mcn...),
	}
	ctx.Disc = discWithQ(t, q, 100)
	ctx.MediumLoaded = true

	cdb := make([]byte, 10)
	cdb[0] = mmc.OpReadSubChannel
	cdb[2] = 0x40
	cdb[3] = 0x02 // MCN

	status, out, sense := Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)

	body := out[4:]
	require.Equal(t, byte(1), body[8])
	require.Equal(t, string(mcn), string(body[9:22]))
}

func TestReadSubchannelISRCScansFirst100TrackSectors(t *testing.T) {
	ctx := newTestContext()
	isrc := []byte("USRC12345678")
	q := map[int][]byte{
		7: append([]byte{0x03}, isrc...),
	}
	ctx.Disc = discWithQ(t, q, 100)
	ctx.MediumLoaded = true

	cdb := make([]byte, 10)
	cdb[0] = mmc.OpReadSubChannel
	cdb[2] = 0x40
	cdb[3] = 0x03 // ISRC
	cdb[6] = 1    // track number

	status, out, sense := Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)

	body := out[4:]
	require.Equal(t, byte(1), body[8])
	require.Equal(t, string(isrc), string(body[9:21]))
}
