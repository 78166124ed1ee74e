package memimage

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/stretchr/testify/require"
)

// Compile-time interface satisfaction checks.
var (
	_ mirage.Disc    = (*Disc)(nil)
	_ mirage.Session = (*Session)(nil)
	_ mirage.Track   = (*Track)(nil)
	_ mirage.Sector  = (*Sector)(nil)
	_ mirage.Fragment = (*Fragment)(nil)
	_ mirage.Writer   = (*Writer)(nil)
)

func TestTrackPutAndGetSectorRoundTrip(t *testing.T) {
	track := NewTrack(1)
	sec := &Sector{Type: mirage.SectorMode1, DataD: []byte("hello")}

	require.NoError(t, track.PutSector(100, sec))

	got, err := track.GetSector(100)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got.Data())
}

func TestDiscSessionTrackWiring(t *testing.T) {
	disc := New(mirage.MediumCD)
	session, err := disc.AddSession()
	require.NoError(t, err)

	track := NewTrack(1)
	track.StartAddr = 0
	require.NoError(t, session.AddTrackByNumber(1, track))

	frag := NewFragment(0, mirage.SectorMode1)
	frag.SetLength(100)
	require.NoError(t, track.AddFragment(frag))

	require.Equal(t, 1, disc.NumberOfSessions())
	require.Equal(t, 1, disc.NumberOfTracks())

	got, err := disc.GetTrackByNumber(1)
	require.NoError(t, err)
	require.Equal(t, 100, got.LayoutLength())
}

func TestDPMDataForSector(t *testing.T) {
	disc := New(mirage.MediumCD)
	disc.DPMEntries[500] = [2]float64{45.0, 20.0}

	angle, density, ok := disc.DPMDataForSector(500)
	require.True(t, ok)
	require.Equal(t, 45.0, angle)
	require.Equal(t, 20.0, density)

	_, _, ok = disc.DPMDataForSector(999)
	require.False(t, ok)
}
