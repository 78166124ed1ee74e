package dmg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdcDecompressPlainRun(t *testing.T) {
	// PLAIN tag 0x83 -> size (0x03&0x7F)+1 = 4 literal bytes follow.
	input := []byte{0x83, 'a', 'b', 'c', 'd'}
	out, err := adcDecompress(input, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), out)
}

func TestAdcDecompressTwoByteBackref(t *testing.T) {
	// Seed four literal bytes, then a TWOBYTE run copying from offset 0
	// (repeats the single preceding byte), per adc_decompress's
	// memcpy(outp, outp - offset - 1, 1) loop.
	plain := []byte{0x83, 'w', 'x', 'y', 'z'}
	// TWOBYTE tag: bits 7,6 clear. size = ((tag&0x3F)>>2)+3, offset = ((tag&3)<<8)+next.
	// Want size 3, offset 0: (tag&0x3F)>>2 == 0 -> tag&0x3F in {0..3}; tag&3==0 too, so tag=0x00.
	backref := []byte{0x00, 0x00}
	input := append(append([]byte{}, plain...), backref...)

	out, err := adcDecompress(input, 7)
	require.NoError(t, err)
	require.Equal(t, []byte("wxyzzzz"[:7]), out)
}

func TestAdcDecompressThreeByteBackref(t *testing.T) {
	plain := []byte{0x84, 'a', 'b', 'c', 'd', 'e'}
	// THREEBYTE tag: bit6 set. size = (tag&0x3F)+4. Want size 4: tag&0x3F == 0 -> tag = 0x40.
	// offset = (byte1<<8)+byte2; want offset 4 (copy "abcd" again).
	backref := []byte{0x40, 0x00, 0x04}
	input := append(append([]byte{}, plain...), backref...)

	out, err := adcDecompress(input, 9)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdeabcd"), out)
}

func TestAdcDecompressStopsAtOutputCapacity(t *testing.T) {
	input := []byte{0x83, 'a', 'b', 'c', 'd'}
	out, err := adcDecompress(input, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("ab"), out)
}
