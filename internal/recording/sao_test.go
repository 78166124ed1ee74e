package recording

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/stretchr/testify/require"
)

func newSAOTestStrategy(t *testing.T) (Strategy, *memimage.Disc, *memimage.Writer) {
	t.Helper()
	disc := memimage.New(mirage.MediumCD)
	writer := memimage.NewWriter()
	pages := modepage.NewStore()
	pages.RegisterDefaults()
	raw, err := pages.Get(modepage.PageWriteParameters, modepage.Current)
	require.NoError(t, err)
	raw[modepage.Off05DataBlock] = 8 // Mode 1, 2048-byte user data, matching cue format 0x10
	require.NoError(t, pages.SetCurrent(modepage.PageWriteParameters, raw))

	strategy, err := NewStrategy(ModeSAO, disc, writer, pages, 0)
	require.NoError(t, err)
	return strategy, disc, writer
}

// twoTrackCue builds a two-track, three-sector-each cue sheet using
// frame-level MSF offsets to keep the fixture small: track 1 spans
// session-relative sectors [0,3), track 2 spans [3,6).
func twoTrackCue() []byte {
	return append(append(
		cueEntry(1, 1, 1, 0x10, 0, 0, 2),
		cueEntry(1, 2, 1, 0x10, 0, 0, 5)...),
		cueEntry(1, 0xAA, 1, 0, 0, 0, 8)...)
}

func TestSAOWriteSectorsRequiresCueSheet(t *testing.T) {
	strategy, _, _ := newSAOTestStrategy(t)
	err := strategy.WriteSectors(0, make([]byte, 2048))
	require.Error(t, err)
}

func TestSAOSetCueSheetRejectsMalformedPayload(t *testing.T) {
	strategy, _, _ := newSAOTestStrategy(t)
	receiver, ok := strategy.(CueSheetReceiver)
	require.True(t, ok)
	require.Error(t, receiver.SetCueSheet(make([]byte, 3)))
}

func TestSAOWriteSectorsBuildsTwoTracksAndClosesSession(t *testing.T) {
	strategy, disc, writer := newSAOTestStrategy(t)
	receiver, ok := strategy.(CueSheetReceiver)
	require.True(t, ok)
	require.NoError(t, receiver.SetCueSheet(twoTrackCue()))

	payload := make([]byte, 6*2048)
	require.NoError(t, strategy.WriteSectors(0, payload))

	require.Equal(t, 1, disc.NumberOfSessions())
	session, err := disc.GetSessionByIndex(0)
	require.NoError(t, err)
	require.Equal(t, 2, session.NumberOfTracks())

	t1, err := session.GetTrackByNumber(1)
	require.NoError(t, err)
	require.Equal(t, mirage.SectorMode1, t1.SectorType())

	require.True(t, writer.Finalized)
}

func TestSAOWriteSectorsRejectsAddressOutsideLayout(t *testing.T) {
	strategy, _, _ := newSAOTestStrategy(t)
	receiver, ok := strategy.(CueSheetReceiver)
	require.True(t, ok)
	require.NoError(t, receiver.SetCueSheet(twoTrackCue()))

	err := strategy.WriteSectors(100, make([]byte, 2048))
	require.Error(t, err)
}

func TestSAOGetNextWritableAddressTracksWrittenSectors(t *testing.T) {
	strategy, _, _ := newSAOTestStrategy(t)
	receiver, ok := strategy.(CueSheetReceiver)
	require.True(t, ok)
	require.NoError(t, receiver.SetCueSheet(twoTrackCue()))

	require.NoError(t, strategy.WriteSectors(0, make([]byte, 3*2048)))
	require.Equal(t, 3, strategy.GetNextWritableAddress())
}
