package writespeed

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/stretchr/testify/require"
)

func TestSetForProfileSortsAscending(t *testing.T) {
	l := NewList()
	l.SetForProfile(mmc.ProfileCDR)
	entries := l.Entries()
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		require.LessOrEqual(t, entries[i-1].SpeedKBps, entries[i].SpeedKBps)
	}
	require.Equal(t, entries[len(entries)-1].SpeedKBps, l.MaxSpeed())
}

func TestSetForProfileNoneIsEmpty(t *testing.T) {
	l := NewList()
	l.SetForProfile(mmc.ProfileNone)
	require.Empty(t, l.Entries())
	require.Zero(t, l.MaxSpeed())
}

func TestApplyToUpdatesModePage(t *testing.T) {
	store := modepage.NewStore()
	store.RegisterDefaults()

	l := NewList()
	l.SetForProfile(mmc.ProfileBDRSRM)
	require.NoError(t, l.ApplyTo(store))

	cur, err := store.Get(modepage.PageCapabilities, modepage.Current)
	require.NoError(t, err)
	require.Len(t, cur, modepage.HeaderLen2A+len(l.Entries())*modepage.DescSize2A)
}

func TestGetPerformanceType03Length(t *testing.T) {
	l := NewList()
	l.SetForProfile(mmc.ProfileDVDROM)
	buf := l.GetPerformanceType03()
	require.Len(t, buf, len(l.Entries())*16)
}
