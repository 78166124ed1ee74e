// Package feature implements the C3 feature/profile store: an ordered
// list of MMC feature descriptors with persistent/current bits, the
// active profile tag, and the GET CONFIGURATION projection over them.
//
// Feature descriptors are kept with their code as a host-native uint16
// the whole time; there is never a byte-swapped struct overlay the way
// cdemu's C does, so the endianness drift flagged for compare_features
// in spec §9 does not recur here (sorting is done on the native field
// directly, see Store.sort).
package feature

import (
	"sort"

	"github.com/cdemu/cdemu-sub002/internal/mmc"
)

// Descriptor is one MMC feature descriptor (spec §3 "Feature
// descriptor"): code, version, persistent/current bits, and an
// opaque payload specific to the feature.
type Descriptor struct {
	Code       uint16
	Version    uint8
	Persistent bool
	Current    bool
	Payload    []byte
}

// Store holds the device's feature list sorted by code, plus the
// active profile.
type Store struct {
	features []*Descriptor
	profile  mmc.Profile
}

// NewStore returns a store pre-populated with cdemu's defined feature
// set (spec §4.2), all inactive (current=false) until SetProfile runs.
func NewStore() *Store {
	s := &Store{}
	for _, d := range defaultDescriptors() {
		cp := d
		s.features = append(s.features, &cp)
	}
	s.sort()
	return s
}

func (s *Store) sort() {
	sort.Slice(s.features, func(i, j int) bool {
		return s.features[i].Code < s.features[j].Code
	})
}

// Profile returns the active profile tag.
func (s *Store) Profile() mmc.Profile { return s.profile }

// Get returns the descriptor for a code, or nil if not registered.
func (s *Store) Get(code uint16) *Descriptor {
	for _, d := range s.features {
		if d.Code == code {
			return d
		}
	}
	return nil
}

// All returns the full feature list, in ascending code order. Callers
// must not mutate the returned descriptors directly; use SetProfile or
// the payload setters.
func (s *Store) All() []*Descriptor {
	return append([]*Descriptor(nil), s.features...)
}

// GetConfigurationRT selects GET CONFIGURATION's three request types
// (spec §4.2).
type GetConfigurationRT int

const (
	RTAllFeatures        GetConfigurationRT = 0
	RTCurrentFeatures    GetConfigurationRT = 1
	RTOneFeature         GetConfigurationRT = 2
)

// GetConfiguration implements the three RT semantics over the feature
// list: rt==0 returns every feature with code >= sfn, rt==1 narrows
// that to current features only, rt==2 returns exactly the feature
// whose code == sfn (if present).
func (s *Store) GetConfiguration(rt GetConfigurationRT, startingFeatureNumber uint16) []*Descriptor {
	var out []*Descriptor
	for _, d := range s.features {
		if d.Code < startingFeatureNumber {
			continue
		}
		switch rt {
		case RTOneFeature:
			if d.Code == startingFeatureNumber {
				return []*Descriptor{d}
			}
		case RTCurrentFeatures:
			if d.Current {
				out = append(out, d)
			}
		default:
			out = append(out, d)
		}
	}
	return out
}

// activeSets lists, for each profile, the feature codes that must have
// current=1 while that profile is active (spec §4.2 step 2). NONE's
// set is empty.
var activeSets = map[mmc.Profile][]uint16{
	mmc.ProfileCDROM:    {0x0000, 0x0001, 0x0002, 0x0003, 0x0010, 0x001D, 0x001E, 0x0100, 0x0103},
	mmc.ProfileCDR:      {0x0000, 0x0001, 0x0002, 0x0003, 0x0010, 0x001D, 0x001E, 0x002D, 0x0100, 0x0103},
	mmc.ProfileDVDROM:   {0x0000, 0x0001, 0x0002, 0x0003, 0x0010, 0x001D, 0x001F, 0x0100, 0x0106},
	mmc.ProfileDVDPlusR: {0x0000, 0x0001, 0x0002, 0x0003, 0x0010, 0x001D, 0x001F, 0x0021, 0x002B, 0x0100, 0x0106},
	mmc.ProfileBDROM:    {0x0000, 0x0001, 0x0002, 0x0003, 0x0010, 0x0040, 0x0100},
	mmc.ProfileBDRSRM:   {0x0000, 0x0001, 0x0002, 0x0003, 0x0010, 0x0040, 0x0041, 0x0100},
}

// impliedLowerProfiles says which other profiles' bits inside feature
// 0x0000's payload must also be marked current when a "higher" profile
// is selected (spec §4.2 step 3: "CDR implies CDROM, BDR_SRM implies
// BDROM").
var impliedLowerProfiles = map[mmc.Profile][]mmc.Profile{
	mmc.ProfileCDR:    {mmc.ProfileCDROM},
	mmc.ProfileBDRSRM: {mmc.ProfileBDROM},
}

// SetProfile implements spec §4.2's three-step profile switch:
// 1. clear current on every non-persistent feature
// 2. set current on every feature in the new profile's active set
// 3. update feature 0x0000's profile-number sub-list to mark the new
//    profile and any profile it implies.
func (s *Store) SetProfile(p mmc.Profile) {
	s.profile = p
	for _, d := range s.features {
		if !d.Persistent {
			d.Current = false
		}
	}
	for _, code := range activeSets[p] {
		if d := s.Get(code); d != nil {
			d.Current = true
		}
	}
	s.updateProfileList(p)
}

// profileListEntry mirrors one entry of feature 0x0000's payload: a
// 2-byte profile number followed by a flags byte whose bit0 is the
// "current" indicator, plus a reserved byte (4 bytes per entry, MMC-3
// table "Profile List feature descriptor").
const profileListEntrySize = 4

func (s *Store) updateProfileList(active mmc.Profile) {
	d := s.Get(0x0000)
	if d == nil {
		return
	}
	marked := map[mmc.Profile]bool{active: true}
	for _, implied := range impliedLowerProfiles[active] {
		marked[implied] = true
	}
	for i := 0; i+profileListEntrySize <= len(d.Payload); i += profileListEntrySize {
		num := mmc.Profile(uint16(d.Payload[i])<<8 | uint16(d.Payload[i+1]))
		if marked[num] {
			d.Payload[i+2] |= 0x01
		} else {
			d.Payload[i+2] &^= 0x01
		}
	}
}

// allProfiles is the fixed set of profile numbers feature 0x0000
// advertises regardless of which one is active.
var allProfiles = []mmc.Profile{
	mmc.ProfileCDROM, mmc.ProfileCDR, mmc.ProfileDVDROM,
	mmc.ProfileDVDPlusR, mmc.ProfileBDROM, mmc.ProfileBDRSRM,
}

func profileListPayload() []byte {
	buf := make([]byte, len(allProfiles)*profileListEntrySize)
	for i, p := range allProfiles {
		off := i * profileListEntrySize
		buf[off] = byte(p >> 8)
		buf[off+1] = byte(p)
	}
	return buf
}

func defaultDescriptors() []Descriptor {
	return []Descriptor{
		{Code: 0x0000, Version: 0, Persistent: true, Payload: profileListPayload()},
		{Code: 0x0001, Version: 2, Persistent: true, Payload: make([]byte, 8)},
		{Code: 0x0002, Version: 1, Persistent: true, Payload: make([]byte, 4)},
		{Code: 0x0003, Version: 2, Persistent: true, Payload: make([]byte, 4)},
		{Code: 0x0010, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x001D, Version: 0, Persistent: false, Payload: make([]byte, 0)},
		{Code: 0x001E, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x001F, Version: 1, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x0021, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x002B, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x002D, Version: 2, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x0040, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x0041, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x0100, Version: 0, Persistent: true, Payload: make([]byte, 0)},
		{Code: 0x0103, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x0106, Version: 2, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x0107, Version: 0, Persistent: false, Payload: make([]byte, 4)},
		{Code: 0x010A, Version: 0, Persistent: false, Payload: make([]byte, 0)},
	}
}
