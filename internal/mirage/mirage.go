// Package mirage declares the capability-level interfaces the core
// consumes from the disc-image parser/writer library (spec §6.2). The
// real mirage library is out of scope (spec §1); the core only relies
// on these contracts, never on a concrete implementation, so a test
// double or a future real binding can be swapped in without touching
// C1-C13.
package mirage

// MediumType identifies the physical medium a Disc represents.
type MediumType int

const (
	MediumCD MediumType = iota
	MediumDVD
	MediumBD
)

// SessionType distinguishes CD session modes.
type SessionType int

const (
	SessionModeNone SessionType = iota
	SessionCDDA
	SessionCDROM
	SessionCDROMXA
)

// SectorType enumerates the sector encodings the core and the
// recording engine need to distinguish (spec §4.5 SAO cue-sheet
// format-byte table).
type SectorType int

const (
	SectorAudio SectorType = iota
	SectorMode1
	SectorMode2
	SectorMode2Form1
	SectorMode2Form2
	SectorMode2Mixed
	SectorRaw
)

// SubchannelFormat selects how Sector.Subchannel renders the P-W
// subchannel bytes.
type SubchannelFormat int

const (
	SubchannelNone SubchannelFormat = iota
	SubchannelRaw
	SubchannelQOnly
	SubchannelRW
	SubchannelRWRaw
)

// FragmentRole distinguishes the two fragment kinds a track's recording
// writer creates (spec §6.2 Writer.create_fragment).
type FragmentRole int

const (
	FragmentPregap FragmentRole = iota
	FragmentData
)

// FeedIgnoreFlags marks which parts of a fed sector the caller is not
// supplying and wants synthesized instead (mirrors MIRAGE_VALID_* bits
// referenced by spec §4.5).
type FeedIgnoreFlags int

const (
	IgnoreNone FeedIgnoreFlags = 0
	IgnoreSync FeedIgnoreFlags = 1 << iota
	IgnoreHeader
	IgnoreSubheader
	IgnoreEDCECC
)

// Context is the entry point for loading or creating a disc image
// (spec §6.2 Context).
type Context interface {
	SetOption(key string, value any)
	ClearOptions()
	LoadImage(paths []string) (Disc, error)

	// NewDisc constructs an empty Disc of the given medium type, ready
	// for the recording engine to add sessions/tracks to. Spec §6.2
	// lists no such constructor for create_blank_disc (the original
	// calls g_object_new(MIRAGE_TYPE_DISC, NULL) directly); named here
	// for the same reason AddSession/AddTrack/Writer.NewSector are.
	NewDisc(medium MediumType) (Disc, error)
}

// Disc is the top-level parsed (or in-progress) image (spec §6.2 Disc).
type Disc interface {
	MediumType() MediumType
	NumberOfSessions() int
	NumberOfTracks() int
	GetSessionByIndex(i int) (Session, error)
	GetTrackByNumber(number int) (Track, error)
	GetTrackByAddress(address int) (Track, error)
	GetTrackByIndex(index int) (Track, error)
	LayoutLength() int
	LayoutStartSector() int
	LayoutFirstSession() int
	LayoutFirstTrack() int
	GetDiscStructure(layer int, format byte) ([]byte, bool)
	LayoutSetStartSector(sector int)
	SetMediumType(t MediumType)
	SetFilename(name string)

	// DPMDataForSector satisfies internal/dpm.DataSource directly, since
	// density-per-minute data lives on the disc image in cdemu too.
	DPMDataForSector(address int) (angle, density float64, ok bool)

	// AddSession constructs a new session, appends it to the disc, and
	// returns it. Spec §6.2 lists no disc-side session constructor (the
	// original engine builds a bare session object and attaches it with
	// add_session_by_index); this is that attach-a-new-session step,
	// named as a method so the recording engine (C7) doesn't need a
	// separate object-construction contract.
	AddSession() (Session, error)
}

// Session is one session within a Disc (spec §6.2 Session).
type Session interface {
	SessionType() SessionType
	MCN() string
	SetMCN(mcn string)
	GetTrackByNumber(number int) (Track, error)
	GetTrackByIndex(index int) (Track, error)
	AddTrackByIndex(index int, track Track) error
	AddTrackByNumber(number int, track Track) error
	LayoutSessionNumber() int
	LayoutStartSector() int
	LayoutLength() int
	LayoutFirstTrack() int
	CDTextData() []byte
	SetCDTextData(data []byte)
	GetLeadoutLength() int
	NumberOfTracks() int

	// AddTrack constructs a new track of the given sector type, appends
	// it to the session, and returns it; see AddSession's doc comment
	// for why this exists alongside AddTrackByIndex/AddTrackByNumber.
	AddTrack(sectorType SectorType) (Track, error)
}

// Track is one track within a Session (spec §6.2 Track).
type Track interface {
	CTL() byte
	ADR() byte
	SectorType() SectorType
	ISRC() string
	SetISRC(isrc string)
	LayoutTrackNumber() int
	LayoutSessionNumber() int
	LayoutStartSector() int
	LayoutLength() int
	TrackStart() int
	SetTrackStart(start int)
	GetFragmentByIndex(index int) (Fragment, error)
	GetFragmentByAddress(address int) (Fragment, error)
	AddFragment(f Fragment) error
	AddIndex(address int) error
	GetSector(address int) (Sector, error)
	PutSector(address int, s Sector) error
	SetFlags(ctl, adr byte)
	NumberOfFragments() int
	NumberOfIndices() int
}

// Sector is one decoded (or synthesized) 2352-byte CD sector, or the
// DVD/BD equivalent (spec §6.2 Sector).
type Sector interface {
	SectorType() SectorType
	Sync() []byte
	Header() []byte
	Subheader() []byte
	Data() []byte
	EDCECC() []byte
	Subchannel(format SubchannelFormat) []byte
	SetSubheader(sub []byte)
	FeedData(address int, sectype SectorType, main []byte, subformat SubchannelFormat, sub []byte, ignore FeedIgnoreFlags) error
	VerifyLEC() bool
}

// Writer drives image creation during recording (spec §6.2 Writer).
type Writer interface {
	CreateFragment(track Track, role FragmentRole) (Fragment, error)
	OpenImage(disc Disc, params map[string]any) error
	FinalizeImage(disc Disc) error

	// NewSector constructs a blank sector for the recording engine to
	// FeedData into before handing it to Track.PutSector. Spec §6.2 gives
	// Sector only mutator/accessor methods, not a constructor; the
	// original engine calls g_object_new(MIRAGE_TYPE_SECTOR, NULL)
	// directly, which this stands in for.
	NewSector() (Sector, error)
}

// Fragment is a contiguous run of sectors within a track, backed by one
// data source (spec §6.2 Fragment).
type Fragment interface {
	Address() int
	Length() int
	SetLength(n int)
	MainDataFormat() SectorType
	SetMainDataFormat(t SectorType)
	ContainsAddress(relAddr int) bool
}
