package senseerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeMediumNotPresent(t *testing.T) {
	rec := Encode(MediumNotPresent, false, 0)
	require.Len(t, rec, Size)
	require.Equal(t, byte(0x70), rec[0])
	require.Equal(t, byte(KeyNotReady), rec[2]&0x0F)
	require.Equal(t, byte(0x0A), rec[7])
	require.Equal(t, byte(0x3A), rec[12])
	require.Equal(t, byte(0x00), rec[13])
}

func TestWriteToTruncatesToBufferSize(t *testing.T) {
	out := make([]byte, 8)
	n := WriteTo(out, InvalidFieldInCDB)
	require.Equal(t, 8, n)
	require.Equal(t, byte(0x70), out[0])
}

func TestWriteFullToSetsILIAndCommandInfo(t *testing.T) {
	out := make([]byte, Size)
	WriteFullTo(out, UnrecoveredReadError, true, 0x00000042)
	require.NotZero(t, out[2]&0x20, "ILI bit should be set")
	require.Equal(t, byte(KeyMediumError), out[2]&0x0F)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x42}, out[8:12])
}
