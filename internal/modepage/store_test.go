package modepage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	s := NewStore()
	s.RegisterDefaults()
	return s
}

func TestAllCodesAscending(t *testing.T) {
	s := newTestStore()
	codes := s.AllCodes()
	require.Len(t, codes, 6)
	for i := 1; i < len(codes); i++ {
		require.Less(t, codes[i-1], codes[i])
	}
	require.Equal(t, byte(PageErrorRecovery), codes[0])
	require.Equal(t, byte(PageCapabilities), codes[len(codes)-1])
}

func TestGetUnknownPage(t *testing.T) {
	s := newTestStore()
	_, err := s.Get(0x3E, Current)
	require.Error(t, err)
	var notFound *ErrPageNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestModifyDCRBitOnly(t *testing.T) {
	s := newTestStore()
	cur, err := s.Get(PageErrorRecovery, Current)
	require.NoError(t, err)

	raw := append([]byte(nil), cur...)
	raw[2] = 0xFF // attempt to set every bit in the flags byte

	require.NoError(t, s.Modify(raw))

	after, err := s.Get(PageErrorRecovery, Current)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), after[2], "only the DCR bit is changeable")
}

func TestModifyRejectsWrongLength(t *testing.T) {
	s := newTestStore()
	raw := []byte{PageErrorRecovery, 0x05, 0, 0, 0, 0, 0}
	err := s.Modify(raw)
	require.Error(t, err)
	var invalid *ErrInvalidParameterList
	require.ErrorAs(t, err, &invalid)
}

func TestModifyUnknownPage(t *testing.T) {
	s := newTestStore()
	raw := []byte{0x3E, 0x02, 0, 0}
	err := s.Modify(raw)
	require.Error(t, err)
}

func TestSetLockStateDoesNotAffectMask(t *testing.T) {
	s := newTestStore()
	mask, err := s.Get(PageCapabilities, Mask)
	require.NoError(t, err)
	for _, b := range mask {
		require.Zero(t, b, "page 0x2A has no host-writable bits via MODE SELECT")
	}

	require.NoError(t, s.SetLockState(true))
	cur, err := s.Get(PageCapabilities, Current)
	require.NoError(t, err)
	require.NotZero(t, cur[Off2ALoadLock]&lockStateBit)

	require.NoError(t, s.SetLockState(false))
	cur, err = s.Get(PageCapabilities, Current)
	require.NoError(t, err)
	require.Zero(t, cur[Off2ALoadLock]&lockStateBit)
}

func TestReplaceWriteSpeedDescriptors(t *testing.T) {
	s := newTestStore()
	descs := []WriteSpeedDescriptor{
		{RotationControl: false, SpeedKBps: 1764},
		{RotationControl: true, SpeedKBps: 3528},
	}
	require.NoError(t, s.ReplaceWriteSpeedDescriptors(descs))

	cur, err := s.Get(PageCapabilities, Current)
	require.NoError(t, err)
	require.Len(t, cur, HeaderLen2A+len(descs)*DescSize2A)
	require.Equal(t, byte(len(descs)), cur[Off2ANumWspDesc+1])

	deflt, err := s.Get(PageCapabilities, Default)
	require.NoError(t, err)
	require.Equal(t, cur, deflt)
}

func TestSetWriteTypeAndMultisessionBitClear(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetWriteType(0x02))

	raw, err := s.Get(PageWriteParameters, Current)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), raw[Off05Flags1]&0x0F)

	clear, err := s.MultisessionBitClear()
	require.NoError(t, err)
	require.True(t, clear, "fresh write-parameters page has multisession bits unset")
}
