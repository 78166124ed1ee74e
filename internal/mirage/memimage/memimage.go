// Package memimage is an in-memory reference implementation of the
// mirage capability interfaces (internal/mirage), standing in for the
// real disc-image library in tests for the recording engine, dispatcher,
// and device facade. It is deliberately minimal: enough sector/track/
// session bookkeeping to exercise the core's logic, nothing resembling
// a real image-file parser.
package memimage

import (
	"fmt"
	"sync"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
)

// Sector is a flat in-memory sector: enough fields to satisfy the
// mirage.Sector contract without any real binary layout.
type Sector struct {
	Type      mirage.SectorType
	SyncData  []byte
	HeaderD   []byte
	SubheadD  []byte
	DataD     []byte
	EDCECCD   []byte
	SubchanD  []byte
	lecValid  bool
}

func (s *Sector) SectorType() mirage.SectorType { return s.Type }
func (s *Sector) Sync() []byte                  { return s.SyncData }
func (s *Sector) Header() []byte                { return s.HeaderD }
func (s *Sector) Subheader() []byte             { return s.SubheadD }
func (s *Sector) Data() []byte                  { return s.DataD }
func (s *Sector) EDCECC() []byte                { return s.EDCECCD }
func (s *Sector) Subchannel(mirage.SubchannelFormat) []byte { return s.SubchanD }
func (s *Sector) SetSubheader(sub []byte)       { s.SubheadD = sub }
func (s *Sector) VerifyLEC() bool               { return s.lecValid }

func (s *Sector) FeedData(_ int, sectype mirage.SectorType, main []byte, _ mirage.SubchannelFormat, sub []byte, ignore mirage.FeedIgnoreFlags) error {
	s.Type = sectype
	s.DataD = main
	s.SubchanD = sub
	s.lecValid = true
	return nil
}

// Fragment is a contiguous run of sectors backed by an in-memory slice.
type Fragment struct {
	StartAddress int
	LengthD      int
	Format       mirage.SectorType
	Sectors      map[int]*Sector
	mu           sync.Mutex
}

func NewFragment(start int, format mirage.SectorType) *Fragment {
	return &Fragment{StartAddress: start, Format: format, Sectors: make(map[int]*Sector)}
}

func (f *Fragment) Address() int                        { return f.StartAddress }
func (f *Fragment) Length() int                          { return f.LengthD }
func (f *Fragment) SetLength(n int)                      { f.LengthD = n }
func (f *Fragment) MainDataFormat() mirage.SectorType     { return f.Format }
func (f *Fragment) SetMainDataFormat(t mirage.SectorType) { f.Format = t }
func (f *Fragment) ContainsAddress(relAddr int) bool {
	return relAddr >= 0 && relAddr < f.LengthD
}

func (f *Fragment) PutSector(addr int, s *Sector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sectors[addr] = s
	if rel := addr - f.StartAddress; rel >= f.LengthD {
		f.LengthD = rel + 1
	}
}

func (f *Fragment) GetSector(addr int) (*Sector, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Sectors[addr]
	return s, ok
}

// Track holds flags, fragments, and index points.
type Track struct {
	Number    int
	SessionNo int
	CTLFlag   byte
	ADRFlag   byte
	Type      mirage.SectorType
	ISRCCode  string
	StartAddr int
	TrackStartPoint int
	LengthD   int
	Fragments []*Fragment
	Indices   []int

	mu sync.Mutex
}

func NewTrack(number int) *Track {
	return &Track{Number: number}
}

func (t *Track) CTL() byte                   { return t.CTLFlag }
func (t *Track) ADR() byte                   { return t.ADRFlag }
func (t *Track) SectorType() mirage.SectorType { return t.Type }
func (t *Track) ISRC() string                { return t.ISRCCode }
func (t *Track) SetISRC(isrc string)         { t.ISRCCode = isrc }
func (t *Track) LayoutTrackNumber() int      { return t.Number }
func (t *Track) LayoutSessionNumber() int    { return t.SessionNo }
func (t *Track) LayoutStartSector() int      { return t.StartAddr }
func (t *Track) LayoutLength() int           { return t.LengthD }
func (t *Track) TrackStart() int             { return t.TrackStartPoint }
func (t *Track) SetTrackStart(start int)     { t.TrackStartPoint = start }
func (t *Track) SetFlags(ctl, adr byte)      { t.CTLFlag, t.ADRFlag = ctl, adr }
func (t *Track) NumberOfFragments() int      { return len(t.Fragments) }
func (t *Track) NumberOfIndices() int        { return len(t.Indices) }

func (t *Track) GetFragmentByIndex(index int) (mirage.Fragment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.Fragments) {
		return nil, fmt.Errorf("memimage: fragment index %d out of range", index)
	}
	return t.Fragments[index], nil
}

func (t *Track) GetFragmentByAddress(address int) (mirage.Fragment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.Fragments {
		if address >= f.StartAddress && address < f.StartAddress+f.LengthD {
			return f, nil
		}
	}
	return nil, fmt.Errorf("memimage: no fragment contains address %d", address)
}

func (t *Track) AddFragment(f mirage.Fragment) error {
	mf, ok := f.(*Fragment)
	if !ok {
		return fmt.Errorf("memimage: AddFragment requires a *memimage.Fragment")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Fragments = append(t.Fragments, mf)
	t.LengthD += mf.LengthD
	return nil
}

func (t *Track) AddIndex(address int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Indices = append(t.Indices, address)
	return nil
}

func (t *Track) GetSector(address int) (mirage.Sector, error) {
	frag, err := t.GetFragmentByAddress(address)
	if err != nil {
		return nil, err
	}
	mf := frag.(*Fragment)
	s, ok := mf.GetSector(address)
	if !ok {
		return nil, fmt.Errorf("memimage: no sector at address %d", address)
	}
	return s, nil
}

func (t *Track) PutSector(address int, s mirage.Sector) error {
	ms, ok := s.(*Sector)
	if !ok {
		return fmt.Errorf("memimage: PutSector requires a *memimage.Sector")
	}
	frag, err := t.GetFragmentByAddress(address)
	if err != nil {
		// Recording appends new fragments as it goes; if no fragment
		// exists yet, create a DATA fragment from here.
		nf := NewFragment(address, ms.Type)
		if addErr := t.AddFragment(nf); addErr != nil {
			return addErr
		}
		frag = nf
	}
	frag.(*Fragment).PutSector(address, ms)
	return nil
}

// Session groups tracks and carries CD-TEXT / MCN state.
type Session struct {
	Number      int
	Type        mirage.SessionType
	MCNCode     string
	StartAddr   int
	LengthD     int
	LeadoutLen  int
	CDText      []byte
	Tracks      []*Track

	mu sync.Mutex
}

func NewSession(number int) *Session {
	return &Session{Number: number, LeadoutLen: 6750}
}

func (s *Session) SessionType() mirage.SessionType { return s.Type }
func (s *Session) MCN() string                     { return s.MCNCode }
func (s *Session) SetMCN(mcn string)                { s.MCNCode = mcn }
func (s *Session) LayoutSessionNumber() int         { return s.Number }
func (s *Session) LayoutStartSector() int           { return s.StartAddr }
func (s *Session) LayoutLength() int                { return s.LengthD }
func (s *Session) CDTextData() []byte               { return s.CDText }
func (s *Session) SetCDTextData(data []byte)        { s.CDText = data }
func (s *Session) GetLeadoutLength() int            { return s.LeadoutLen }
func (s *Session) NumberOfTracks() int              { return len(s.Tracks) }

func (s *Session) LayoutFirstTrack() int {
	if len(s.Tracks) == 0 {
		return 0
	}
	return s.Tracks[0].Number
}

func (s *Session) GetTrackByNumber(number int) (mirage.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.Tracks {
		if t.Number == number {
			return t, nil
		}
	}
	return nil, fmt.Errorf("memimage: track %d not found", number)
}

func (s *Session) GetTrackByIndex(index int) (mirage.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.Tracks) {
		return nil, fmt.Errorf("memimage: track index %d out of range", index)
	}
	return s.Tracks[index], nil
}

func (s *Session) AddTrackByIndex(index int, track mirage.Track) error {
	mt, ok := track.(*Track)
	if !ok {
		return fmt.Errorf("memimage: AddTrackByIndex requires a *memimage.Track")
	}
	mt.SessionNo = s.Number
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index > len(s.Tracks) {
		s.Tracks = append(s.Tracks, mt)
		return nil
	}
	s.Tracks = append(s.Tracks[:index], append([]*Track{mt}, s.Tracks[index:]...)...)
	return nil
}

func (s *Session) AddTrackByNumber(number int, track mirage.Track) error {
	mt, ok := track.(*Track)
	if !ok {
		return fmt.Errorf("memimage: AddTrackByNumber requires a *memimage.Track")
	}
	mt.Number = number
	mt.SessionNo = s.Number
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tracks = append(s.Tracks, mt)
	return nil
}

// Disc is the top-level in-memory image.
type Disc struct {
	Medium       mirage.MediumType
	Sessions     []*Session
	StartSector  int
	Filename     string
	Structures   map[[2]int][]byte
	DPMEntries   map[int][2]float64

	mu sync.Mutex
}

func New(medium mirage.MediumType) *Disc {
	return &Disc{Medium: medium, Structures: make(map[[2]int][]byte), DPMEntries: make(map[int][2]float64)}
}

func (d *Disc) MediumType() mirage.MediumType { return d.Medium }
func (d *Disc) NumberOfSessions() int         { return len(d.Sessions) }

func (d *Disc) NumberOfTracks() int {
	n := 0
	for _, s := range d.Sessions {
		n += len(s.Tracks)
	}
	return n
}

func (d *Disc) GetSessionByIndex(i int) (mirage.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.Sessions) {
		return nil, fmt.Errorf("memimage: session index %d out of range", i)
	}
	return d.Sessions[i], nil
}

func (d *Disc) GetTrackByNumber(number int) (mirage.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.Sessions {
		for _, t := range s.Tracks {
			if t.Number == number {
				return t, nil
			}
		}
	}
	return nil, fmt.Errorf("memimage: track %d not found", number)
}

func (d *Disc) GetTrackByAddress(address int) (mirage.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.Sessions {
		for _, t := range s.Tracks {
			if address >= t.StartAddr && address < t.StartAddr+t.LengthD {
				return t, nil
			}
		}
	}
	return nil, fmt.Errorf("memimage: no track at address %d", address)
}

func (d *Disc) GetTrackByIndex(index int) (mirage.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := 0
	for _, s := range d.Sessions {
		for _, t := range s.Tracks {
			if i == index {
				return t, nil
			}
			i++
		}
	}
	return nil, fmt.Errorf("memimage: track index %d out of range", index)
}

func (d *Disc) LayoutLength() int {
	total := 0
	for _, s := range d.Sessions {
		total += s.LengthD
	}
	return total
}

func (d *Disc) LayoutStartSector() int { return d.StartSector }
func (d *Disc) LayoutFirstSession() int {
	if len(d.Sessions) == 0 {
		return 0
	}
	return d.Sessions[0].Number
}
func (d *Disc) LayoutFirstTrack() int {
	if len(d.Sessions) == 0 || len(d.Sessions[0].Tracks) == 0 {
		return 0
	}
	return d.Sessions[0].Tracks[0].Number
}

func (d *Disc) GetDiscStructure(layer int, format byte) ([]byte, bool) {
	b, ok := d.Structures[[2]int{layer, int(format)}]
	return b, ok
}

func (d *Disc) LayoutSetStartSector(sector int)   { d.StartSector = sector }
func (d *Disc) SetMediumType(t mirage.MediumType) { d.Medium = t }
func (d *Disc) SetFilename(name string)           { d.Filename = name }

func (d *Disc) DPMDataForSector(address int) (float64, float64, bool) {
	e, ok := d.DPMEntries[address]
	if !ok {
		return 0, 0, false
	}
	return e[0], e[1], true
}

// AddSessionRaw appends a new session and returns the concrete type,
// for tests that need direct field access.
func (d *Disc) AddSessionRaw() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := NewSession(len(d.Sessions) + 1)
	d.Sessions = append(d.Sessions, s)
	return s
}

// AddSession implements mirage.Disc.
func (d *Disc) AddSession() (mirage.Session, error) {
	return d.AddSessionRaw(), nil
}

// AddTrack implements mirage.Session.
func (s *Session) AddTrack(sectorType mirage.SectorType) (mirage.Track, error) {
	s.mu.Lock()
	number := len(s.Tracks) + 1
	s.mu.Unlock()

	t := NewTrack(number)
	t.Type = sectorType
	if err := s.AddTrackByIndex(-1, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Writer is an in-memory mirage.Writer: fragments and sectors live only
// in process memory, and FinalizeImage/OpenImage are no-ops recorded for
// test assertions.
type Writer struct {
	Finalized bool
	Opened    bool
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) CreateFragment(track mirage.Track, role mirage.FragmentRole) (mirage.Fragment, error) {
	start := track.LayoutStartSector() + track.LayoutLength()
	f := NewFragment(start, track.SectorType())
	return f, nil
}

func (w *Writer) OpenImage(disc mirage.Disc, params map[string]any) error {
	w.Opened = true
	return nil
}

func (w *Writer) FinalizeImage(disc mirage.Disc) error {
	w.Finalized = true
	return nil
}

func (w *Writer) NewSector() (mirage.Sector, error) {
	return &Sector{}, nil
}

// Context is an in-memory mirage.Context: LoadImage ignores the given
// paths and returns a fresh empty Disc, since this package has no real
// image-file parser behind it (see the package doc comment).
type Context struct {
	options map[string]any
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{options: make(map[string]any)}
}

func (c *Context) SetOption(key string, value any) { c.options[key] = value }
func (c *Context) ClearOptions()                    { c.options = make(map[string]any) }

// LoadImage returns a new empty CD Disc regardless of paths; real
// parsing is out of scope (spec §1 non-goals).
func (c *Context) LoadImage(paths []string) (mirage.Disc, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("memimage: no image paths given")
	}
	d := New(mirage.MediumCD)
	d.SetFilename(paths[0])
	return d, nil
}

// NewDisc implements mirage.Context.
func (c *Context) NewDisc(medium mirage.MediumType) (mirage.Disc, error) {
	return New(medium), nil
}
