package feature

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
	"github.com/stretchr/testify/require"
)

func TestSetProfilePersistentAlwaysCurrent(t *testing.T) {
	s := NewStore()
	s.SetProfile(mmc.ProfileCDR)

	for _, code := range []uint16{0x0000, 0x0001, 0x0002, 0x0003, 0x0100} {
		d := s.Get(code)
		require.NotNil(t, d)
		require.True(t, d.Current, "persistent feature 0x%04X must be current", code)
	}
}

func TestSetProfileClearsNonPersistentOutsideActiveSet(t *testing.T) {
	s := NewStore()
	s.SetProfile(mmc.ProfileDVDPlusR)
	require.True(t, s.Get(0x002B).Current) // DVD+R

	s.SetProfile(mmc.ProfileBDROM)
	require.False(t, s.Get(0x002B).Current, "switching away from DVD+R clears its feature")
	require.True(t, s.Get(0x0040).Current) // BD Read
}

func TestSetProfileImpliesLowerProfile(t *testing.T) {
	s := NewStore()
	s.SetProfile(mmc.ProfileCDR)

	d := s.Get(0x0000)
	require.NotNil(t, d)

	flagFor := func(p mmc.Profile) byte {
		for i := 0; i+profileListEntrySize <= len(d.Payload); i += profileListEntrySize {
			num := mmc.Profile(uint16(d.Payload[i])<<8 | uint16(d.Payload[i+1]))
			if num == p {
				return d.Payload[i+2] & 0x01
			}
		}
		t.Fatalf("profile 0x%04X not found in feature 0x0000 payload", p)
		return 0
	}

	require.Equal(t, byte(1), flagFor(mmc.ProfileCDR))
	require.Equal(t, byte(1), flagFor(mmc.ProfileCDROM), "CDR implies CDROM")
	require.Equal(t, byte(0), flagFor(mmc.ProfileDVDROM))
}

func TestGetConfigurationRTVariants(t *testing.T) {
	s := NewStore()
	s.SetProfile(mmc.ProfileCDROM)

	all := s.GetConfiguration(RTAllFeatures, 0)
	require.Len(t, all, len(defaultDescriptors()))

	fromMiddle := s.GetConfiguration(RTAllFeatures, 0x0100)
	for _, d := range fromMiddle {
		require.GreaterOrEqual(t, d.Code, uint16(0x0100))
	}

	current := s.GetConfiguration(RTCurrentFeatures, 0)
	for _, d := range current {
		require.True(t, d.Current)
	}

	one := s.GetConfiguration(RTOneFeature, 0x0010)
	require.Len(t, one, 1)
	require.Equal(t, uint16(0x0010), one[0].Code)

	none := s.GetConfiguration(RTOneFeature, 0xBEEF)
	require.Len(t, none, 0)
}

func TestNoneProfileHasEmptyActiveSet(t *testing.T) {
	s := NewStore()
	s.SetProfile(mmc.ProfileCDR)
	s.SetProfile(mmc.ProfileNone)

	for _, d := range s.All() {
		if d.Persistent {
			continue
		}
		require.False(t, d.Current, "feature 0x%04X should be inactive under NONE profile", d.Code)
	}
}
