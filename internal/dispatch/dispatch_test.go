package dispatch

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/feature"
	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/cdemu/cdemu-sub002/internal/recording"
	"github.com/cdemu/cdemu-sub002/internal/senseerr"
	"github.com/cdemu/cdemu-sub002/internal/writespeed"
	"github.com/stretchr/testify/require"
)

// newTestContext builds a Context with the default mode pages, a fresh
// feature store and an empty write-speed list, no medium loaded,
// mirroring the daemon at power-on (spec §8
// "no-medium" scenarios).
func newTestContext() *Context {
	pages := modepage.NewStore()
	pages.RegisterDefaults()
	return &Context{
		Pages:       pages,
		Features:    feature.NewStore(),
		WriteSpeeds: writespeed.NewList(),
	}
}

// oneTrackDisc builds a single-session, single-track CD-ROM image: one
// Mode1 data track of 100 sectors starting at LBA 0.
func oneTrackDisc(t *testing.T) *memimage.Disc {
	t.Helper()
	disc := memimage.New(mirage.MediumCD)
	session, err := disc.AddSession()
	require.NoError(t, err)

	track := memimage.NewTrack(1)
	track.Type = mirage.SectorMode1
	track.StartAddr = 0
	require.NoError(t, session.AddTrackByNumber(1, track))

	frag := memimage.NewFragment(0, mirage.SectorMode1)
	for i := 0; i < 100; i++ {
		frag.PutSector(i, &memimage.Sector{
			Type:  mirage.SectorMode1,
			DataD: make([]byte, 2048),
		})
	}
	frag.SetLength(100)
	require.NoError(t, track.AddFragment(frag))

	ms := session.(*memimage.Session)
	ms.LengthD = 100
	return disc
}

func TestTestUnitReadyNoMedium(t *testing.T) {
	ctx := newTestContext()
	cdb := make([]byte, 6)
	cdb[0] = mmc.OpTestUnitReady

	status, _, sense := Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusCheckCondition), status)
	require.Equal(t, senseerr.Encode(senseerr.MediumNotPresent, false, 0), sense)
}

func TestTestUnitReadyReportsNewMediaOnce(t *testing.T) {
	ctx := newTestContext()
	ctx.MediumLoaded = true
	ctx.MediaEvent = mmc.MediaEventNewMedia
	cdb := make([]byte, 6)
	cdb[0] = mmc.OpTestUnitReady

	status, _, sense := Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusCheckCondition), status)
	require.Equal(t, senseerr.Encode(senseerr.MediumMayHaveChanged, false, 0), sense)
	require.Equal(t, mmc.MediaEventNoChange, ctx.MediaEvent)

	status, _, sense = Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)
}

func TestModeSenseAllPages(t *testing.T) {
	ctx := newTestContext()
	cdb := make([]byte, 10)
	cdb[0] = mmc.OpModeSense10
	cdb[2] = 0x3F // all pages, pc=0 (current)

	status, out, sense := Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)
	require.NotEmpty(t, out)
}

func TestReadCapacityReportsLeadout(t *testing.T) {
	ctx := newTestContext()
	ctx.MediumLoaded = true
	ctx.LeadoutStart = 100

	cdb := make([]byte, 10)
	cdb[0] = mmc.OpReadCapacity

	status, out, sense := Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)
	require.Len(t, out, 8)
	lastLBA := uint32(out[0])<<24 | uint32(out[1])<<16 | uint32(out[2])<<8 | uint32(out[3])
	require.Equal(t, uint32(99), lastLBA)
	blockLen := uint32(out[4])<<24 | uint32(out[5])<<16 | uint32(out[6])<<8 | uint32(out[7])
	require.Equal(t, uint32(2048), blockLen)
}

func TestReadTenRoundTripsUserData(t *testing.T) {
	ctx := newTestContext()
	disc := oneTrackDisc(t)
	ctx.Disc = disc
	ctx.MediumLoaded = true

	cdb := make([]byte, 10)
	cdb[0] = mmc.OpRead10
	cdb[5] = 2  // start LBA 2
	cdb[8] = 1  // one sector

	status, out, sense := Dispatch(ctx, cdb, nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)
	require.Len(t, out, 2048)
	require.Equal(t, 2, ctx.CurrentAddress)
}

func TestTAOWriteSequence(t *testing.T) {
	ctx := newTestContext()
	disc := oneTrackDisc(t)
	ctx.Disc = disc
	ctx.Writer = memimage.NewWriter()
	ctx.MediumLoaded = true

	strategy, err := recording.NewStrategy(recording.ModeTAO, disc, ctx.Writer, ctx.Pages, 0)
	require.NoError(t, err)
	ctx.Recording = strategy

	writeParams, err := ctx.Pages.Get(modepage.PageWriteParameters, modepage.Current)
	require.NoError(t, err)
	writeParams[modepage.Off05DataBlock] = 8 // Mode1, 2048-byte user data
	require.NoError(t, ctx.Pages.SetCurrent(modepage.PageWriteParameters, writeParams))

	payload := make([]byte, 2*2048)
	cdb := make([]byte, 10)
	cdb[0] = mmc.OpWrite10
	cdb[8] = 2 // two sectors

	status, _, sense := Dispatch(ctx, cdb, payload)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)

	closeCDB := make([]byte, 6)
	closeCDB[0] = mmc.OpCloseTrackSession
	closeCDB[1] = 1 // close track
	status, _, sense = Dispatch(ctx, closeCDB, nil)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)
}

func TestSAOCueSheetTwoTracks(t *testing.T) {
	ctx := newTestContext()
	disc := memimage.New(mirage.MediumCD)
	ctx.Disc = disc
	ctx.Writer = memimage.NewWriter()
	ctx.MediumLoaded = true

	strategy, err := recording.NewStrategy(recording.ModeSAO, disc, ctx.Writer, ctx.Pages, 0)
	require.NoError(t, err)
	ctx.Recording = strategy

	page, err := ctx.Pages.Get(modepage.PageWriteParameters, modepage.Current)
	require.NoError(t, err)
	page[modepage.Off05Flags1] = 2 // write_type = SAO
	require.NoError(t, ctx.Pages.SetCurrent(modepage.PageWriteParameters, page))

	cue := buildTwoTrackCueSheet()
	cdb := make([]byte, 10)
	cdb[0] = mmc.OpSendCueSheet
	cdb[6] = byte(len(cue) >> 16)
	cdb[7] = byte(len(cue) >> 8)
	cdb[8] = byte(len(cue))

	status, _, sense := Dispatch(ctx, cdb, cue)
	require.Equal(t, uint32(senseerr.StatusGood), status)
	require.Nil(t, sense)
}

// buildTwoTrackCueSheet assembles a minimal two-track SAO cue sheet:
// one index-1 entry per Mode1 track plus a lead-out entry, enough to
// exercise the parser's per-entry loop (spec §4.5 / §6.1.9).
func buildTwoTrackCueSheet() []byte {
	entry := func(adr, tno, idx, dataFormat byte, m, s, f byte) []byte {
		return []byte{adr, tno, idx, dataFormat, 0, m, s, f}
	}
	var cue []byte
	cue = append(cue, entry(1, 1, 1, 0x10, 0, 2, 0)...)
	cue = append(cue, entry(1, 2, 1, 0x10, 0, 30, 0)...)
	cue = append(cue, entry(1, 0xAA, 1, 0, 1, 0, 0)...)
	return cue
}
