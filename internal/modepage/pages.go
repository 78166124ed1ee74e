package modepage

// Page codes the store registers, per spec §4.1 "Required pages".
const (
	PageErrorRecovery   = 0x01
	PageWriteParameters = 0x05
	PageCDDeviceParams  = 0x0D
	PageAudioControl    = 0x0E
	PagePowerCondition  = 0x1A
	PageCapabilities    = 0x2A
)

// Write Parameters page (0x05) field byte offsets, used by the
// recording engine (internal/recording) to read/write write-mode state
// directly rather than re-deriving offsets.
const (
	Off05Flags1       = 2 // bufe(7) ls_v(6) test_write(5) write_type(4:0)
	Off05TrackMode    = 3 // multisession(7:6) fp(5) copy(4) track_mode(3:0)
	Off05DataBlock    = 4 // reserved(7:4) data_block_type(3:0)
	Off05LinkSize     = 5
	Off05SessionFmt   = 8
	Off05PacketSize   = 10 // uint32 big-endian
	Off05PauseLen     = 14 // uint16
	Off05MCN          = 16 // [16]byte
	Off05ISRC         = 32 // [16]byte
	Off05Subheader    = 48 // [4]byte
	Len05             = 52
)

// Capabilities page (0x2A) fixed-header field offsets.
const (
	Off2ARead        = 2
	Off2AWrite       = 3
	Off2AMisc1       = 4 // multisession(1) mode2_form1/2, dport, composite, audio_play
	Off2AMisc2       = 5 // isrc/upc/c2pointers/rw_*/cdda_*
	Off2ALoadLock    = 6 // load_mech(7:5) eject prvnt_jmp lock_state lock
	Off2AMisc3       = 7
	Off2AMaxReadSpd  = 8  // uint16
	Off2AVolLevels   = 10 // uint16
	Off2ABufSize     = 12 // uint16
	Off2ACurReadSpd  = 14 // uint16
	Off2AWordLen     = 17
	Off2AMaxWriteSpd = 18 // uint16
	Off2ACurWriteSpd = 20 // uint16
	Off2ACurWspeed   = 28 // uint16
	Off2ANumWspDesc  = 30 // uint16
	HeaderLen2A      = 32
	DescSize2A       = 4
	MaxDescriptors2A = 6
)

// lockStateBit is the bit within Off2ALoadLock mirrored by
// PREVENT/ALLOW MEDIUM REMOVAL (spec §4.6).
const lockStateBit = 0x02

func header(code byte, length byte) []byte {
	return []byte{code & 0x3F, length}
}

func allZeroMask(total int) []byte {
	return make([]byte, total)
}

// RegisterDefaults installs every required page with sane power-on
// defaults and the changeable masks the core relies on, matching
// cdemu's per-device mode-page initialization.
func (s *Store) RegisterDefaults() {
	s.registerErrorRecovery()
	s.registerWriteParameters()
	s.registerCDDeviceParams()
	s.registerAudioControl()
	s.registerPowerCondition()
	s.registerCapabilities(nil)
}

func (s *Store) registerErrorRecovery() {
	length := 10
	cur := append(header(PageErrorRecovery, byte(length)), make([]byte, length)...)
	// flags byte: dcr is bit0. Default: read errors are reported (dcr=0).
	deflt := append([]byte(nil), cur...)
	mask := allZeroMask(len(cur))
	mask[2] = 0x01 // only DCR is host-changeable
	s.Register(PageErrorRecovery, cur, deflt, mask)
}

func (s *Store) registerWriteParameters() {
	cur := append(header(PageWriteParameters, byte(Len05-2)), make([]byte, Len05-2)...)
	deflt := append([]byte(nil), cur...)
	mask := allZeroMask(len(cur))
	for i := 2; i < len(mask); i++ {
		mask[i] = 0xFF
	}
	s.Register(PageWriteParameters, cur, deflt, mask)
}

func (s *Store) registerCDDeviceParams() {
	length := 6
	cur := append(header(PageCDDeviceParams, byte(length)), make([]byte, length)...)
	cur[3] = 0x00   // inact_mult
	cur[4] = 0x00   // spm hi
	cur[5] = 0x3C   // spm lo: 60 (spec-agnostic placeholder, matches common drive defaults)
	cur[6] = 0x00   // fps hi
	cur[7] = 0x4B   // fps lo: 75 frames per second
	deflt := append([]byte(nil), cur...)
	mask := allZeroMask(len(cur))
	s.Register(PageCDDeviceParams, cur, deflt, mask)
}

func (s *Store) registerAudioControl() {
	length := 14
	cur := append(header(PageAudioControl, byte(length)), make([]byte, length)...)
	cur[9], cur[10] = 1, 0xFF  // port0: channel 1, full volume
	cur[11], cur[12] = 2, 0xFF // port1: channel 2, full volume
	deflt := append([]byte(nil), cur...)
	mask := allZeroMask(len(cur))
	mask[2] = 0x06 // immed, sotc
	for i := 9; i < len(mask); i++ {
		mask[i] = 0xFF
	}
	s.Register(PageAudioControl, cur, deflt, mask)
}

func (s *Store) registerPowerCondition() {
	length := 10
	cur := append(header(PagePowerCondition, byte(length)), make([]byte, length)...)
	deflt := append([]byte(nil), cur...)
	mask := allZeroMask(len(cur))
	mask[3] = 0x03 // idle, stdby
	for i := 4; i < len(mask); i++ {
		mask[i] = 0xFF
	}
	s.Register(PagePowerCondition, cur, deflt, mask)
}

// registerCapabilities installs page 0x2A with the given write-speed
// descriptors appended (spec §4.1). Pass nil to clear them.
func (s *Store) registerCapabilities(descriptors []WriteSpeedDescriptor) {
	total := HeaderLen2A + len(descriptors)*DescSize2A
	cur := buildCapabilitiesPage(descriptors)
	_ = total
	deflt := append([]byte(nil), cur...)
	mask := allZeroMask(len(cur))
	// Only lock_state (mirrored by PREVENT/ALLOW) is host-visible state;
	// it is never written via generic MODE SELECT, so the mask stays zero.
	s.Register(PageCapabilities, cur, deflt, mask)
}

// WriteSpeedDescriptor is one GET PERFORMANCE / mode page 0x2A
// performance descriptor (spec §4.1, up to 6 per profile).
type WriteSpeedDescriptor struct {
	RotationControl bool
	SpeedKBps       uint16
}

func buildCapabilitiesPage(descriptors []WriteSpeedDescriptor) []byte {
	if len(descriptors) > MaxDescriptors2A {
		descriptors = descriptors[:MaxDescriptors2A]
	}
	length := HeaderLen2A - 2 + len(descriptors)*DescSize2A
	buf := append(header(PageCapabilities, byte(length)), make([]byte, HeaderLen2A-2+len(descriptors)*DescSize2A)...)
	buf[Off2ARead] = 0x18  // cdr_read, cdrw_read
	buf[Off2AWrite] = 0x00 // writers set this per profile
	buf[Off2AMisc1] = 0x01 // audio_play
	buf[Off2AMisc2] = 0x00
	buf[Off2ALoadLock] = 0x01 << 5 // caddy-style tray load mechanism
	putUint16At(buf, Off2ANumWspDesc, uint16(len(descriptors)))
	for i, d := range descriptors {
		off := HeaderLen2A + i*DescSize2A
		if d.RotationControl {
			buf[off+1] = 0x01
		}
		putUint16At(buf, off+2, d.SpeedKBps)
	}
	return buf
}

func putUint16At(buf []byte, off int, v uint16) {
	buf[off] = byte(v >> 8)
	buf[off+1] = byte(v)
}

// SetLockState updates page 0x2A's lock_state bit directly — this is
// done outside the generic Modify path because PREVENT/ALLOW MEDIUM
// REMOVAL, not MODE SELECT, is the only way a host changes it
// (spec §4.6).
func (s *Store) SetLockState(locked bool) error {
	e, ok := s.pages[PageCapabilities]
	if !ok {
		return &ErrPageNotFound{PageCapabilities}
	}
	if locked {
		e.current[Off2ALoadLock] |= lockStateBit
	} else {
		e.current[Off2ALoadLock] &^= lockStateBit
	}
	return nil
}

// ReplaceWriteSpeedDescriptors rebuilds page 0x2A's current and default
// layout with a new descriptor tail, used by the feature store on a
// profile switch (spec §4.2 step 4).
func (s *Store) ReplaceWriteSpeedDescriptors(descriptors []WriteSpeedDescriptor) error {
	cur := buildCapabilitiesPage(descriptors)
	return s.ReplaceCurrentAndDefault(PageCapabilities, cur, append([]byte(nil), cur...))
}

// SetWriteType updates page 0x05's write_type nibble (set_recording_mode,
// spec §4.5).
func (s *Store) SetWriteType(writeType byte) error {
	e, ok := s.pages[PageWriteParameters]
	if !ok {
		return &ErrPageNotFound{PageWriteParameters}
	}
	e.current[Off05Flags1] = (e.current[Off05Flags1] &^ 0x0F) | (writeType & 0x0F)
	return nil
}

// DataBlockType reads page 0x05's current data_block_type nibble.
func (s *Store) DataBlockType() (byte, error) {
	b, err := s.Get(PageWriteParameters, Current)
	if err != nil {
		return 0, err
	}
	return b[Off05DataBlock] & 0x0F, nil
}

// MultisessionBitClear reports whether page 0x05's multisession bits
// are both clear (spec §4.5 close_session: "if Mode Page 0x05
// 'multisession' bit is clear ... finalize the image").
func (s *Store) MultisessionBitClear() (bool, error) {
	b, err := s.Get(PageWriteParameters, Current)
	if err != nil {
		return false, err
	}
	return (b[Off05TrackMode]>>6)&0x03 == 0, nil
}
