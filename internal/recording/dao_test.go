package recording

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/stretchr/testify/require"
)

func newDAOTestStrategy(t *testing.T) (Strategy, *memimage.Disc, *memimage.Writer, *modepage.Store) {
	t.Helper()
	disc := memimage.New(mirage.MediumDVD)
	writer := memimage.NewWriter()
	pages := modepage.NewStore()
	pages.RegisterDefaults()
	raw, err := pages.Get(modepage.PageWriteParameters, modepage.Current)
	require.NoError(t, err)
	raw[modepage.Off05DataBlock] = 8 // Mode 1, 2048-byte user data
	require.NoError(t, pages.SetCurrent(modepage.PageWriteParameters, raw))

	strategy, err := NewStrategy(ModeDAO, disc, writer, pages, 0)
	require.NoError(t, err)
	return strategy, disc, writer, pages
}

func TestDAOReserveTrackOpensSessionAndTrack(t *testing.T) {
	strategy, disc, _, _ := newDAOTestStrategy(t)

	require.NoError(t, strategy.ReserveTrack(1000))

	require.Equal(t, 1, disc.NumberOfSessions())
	session, err := disc.GetSessionByIndex(0)
	require.NoError(t, err)
	require.Equal(t, 1, session.NumberOfTracks())

	track, err := session.GetTrackByNumber(1)
	require.NoError(t, err)
	require.Equal(t, mirage.SectorMode1, track.SectorType())
}

func TestDAOWriteSectorsImplicitlyReservesTrack(t *testing.T) {
	strategy, disc, _, _ := newDAOTestStrategy(t)

	payload := make([]byte, 4*2048)
	require.NoError(t, strategy.WriteSectors(0, payload))

	session, err := disc.GetSessionByIndex(0)
	require.NoError(t, err)
	require.Equal(t, 1, session.NumberOfTracks())
	require.Equal(t, 4, strategy.GetNextWritableAddress())
}

func TestDAOWriteSectorsRejectsWrongDataBlockType(t *testing.T) {
	strategy, _, _, pages := newDAOTestStrategy(t)

	raw, err := pages.Get(modepage.PageWriteParameters, modepage.Current)
	require.NoError(t, err)
	raw[modepage.Off05DataBlock] = 10 // Mode 2 Form 1, not accepted by DAO
	require.NoError(t, pages.SetCurrent(modepage.PageWriteParameters, raw))

	err = strategy.WriteSectors(0, make([]byte, 2048))
	require.Error(t, err)
}

func TestDAOCloseSessionFinalizesImage(t *testing.T) {
	strategy, _, writer, _ := newDAOTestStrategy(t)

	require.NoError(t, strategy.WriteSectors(0, make([]byte, 2048)))
	require.NoError(t, strategy.CloseTrack())
	require.NoError(t, strategy.CloseSession())

	require.True(t, writer.Finalized)
}
