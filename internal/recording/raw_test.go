package recording

import (
	"testing"

	"github.com/cdemu/cdemu-sub002/internal/mirage"
	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
	"github.com/cdemu/cdemu-sub002/internal/modepage"
	"github.com/stretchr/testify/require"
)

func TestBcdMSFToLBA(t *testing.T) {
	require.Equal(t, 0, bcdMSFToLBA(0, 0, 0))
	require.Equal(t, 150, bcdMSFToLBA(0, 0x02, 0))         // 2 seconds
	require.Equal(t, 6750, bcdMSFToLBA(0x01, 0x30, 0))     // 1 min 30 sec
	require.Equal(t, 75*60+10, bcdMSFToLBA(0x01, 0x00, 0x0A))
}

func TestDecodeQSubchannel(t *testing.T) {
	raw := make([]byte, 10)
	raw[0] = 0x01 // ctl=0, adr=1
	raw[1] = 5    // tno
	raw[2] = 1    // idx
	raw[3], raw[4], raw[5] = 0x00, 0x02, 0x00 // relative MSF: 2s = 150 sectors
	raw[6] = 0
	raw[7], raw[8], raw[9] = 0x00, 0x02, 0x00 // absolute MSF: 2s -> LBA 150, minus 150 = 0

	q, err := decodeQSubchannel(raw)
	require.NoError(t, err)
	require.Equal(t, byte(1), q.adr)
	require.Equal(t, byte(0), q.ctl)
	require.Equal(t, byte(5), q.tno)
	require.Equal(t, byte(1), q.idx)
	require.Equal(t, 150, q.relativeAddress)
	require.Equal(t, 0, q.absoluteAddress)
}

func TestDecodeQSubchannelRejectsShortInput(t *testing.T) {
	_, err := decodeQSubchannel(make([]byte, 5))
	require.Error(t, err)
}

func TestDecodeMCNFromQ(t *testing.T) {
	raw := []byte{0x00, 0x12, 0x34, 0x56, 0x78, 0x90, 0x12, 0x30}
	require.Equal(t, "1234567890123", decodeMCNFromQ(raw))
}

func TestDecodeMCNFromQTooShort(t *testing.T) {
	require.Equal(t, "", decodeMCNFromQ(make([]byte, 4)))
}

func TestDecodeISRCFromQ(t *testing.T) {
	raw := []byte{0x00, 'U', 'S', 'R', 'C', '1', '2', '3'}
	require.Equal(t, "USRC123", decodeISRCFromQ(raw))
}

// qChunk builds one RAW-mode subchannel payload (16 bytes: the first 10
// carry the Q channel this engine decodes, the rest is unused CRC/pad).
func qChunk(ctl, adr, tno, idx byte, relativeLBA, absoluteLBA int) []byte {
	b := make([]byte, 16)
	b[0] = ctl<<4 | adr
	b[1] = tno
	b[2] = idx
	b[3], b[4], b[5] = lbaToBCD(relativeLBA)
	b[7], b[8], b[9] = lbaToBCD(absoluteLBA + 150)
	return b
}

func lbaToBCD(lba int) (m, s, f byte) {
	min := lba / (75 * 60)
	sec := (lba / 75) % 60
	frame := lba % 75
	toBCD := func(d int) byte { return byte((d/10)<<4 | (d % 10)) }
	return toBCD(min), toBCD(sec), toBCD(frame)
}

func rawSector(main []byte, sub []byte) []byte {
	chunk := make([]byte, 2352+16)
	copy(chunk, main)
	copy(chunk[2352:], sub)
	return chunk
}

func newRAWTestStrategy(t *testing.T) (Strategy, *memimage.Disc, *memimage.Writer) {
	t.Helper()
	disc := memimage.New(mirage.MediumCD)
	writer := memimage.NewWriter()
	pages := modepage.NewStore()
	pages.RegisterDefaults()
	raw, err := pages.Get(modepage.PageWriteParameters, modepage.Current)
	require.NoError(t, err)
	raw[modepage.Off05DataBlock] = 1 // 2352 main + 16-byte Q-only subchannel
	require.NoError(t, pages.SetCurrent(modepage.PageWriteParameters, raw))

	strategy, err := NewStrategy(ModeRAW, disc, writer, pages, 0)
	require.NoError(t, err)
	return strategy, disc, writer
}

func TestRAWLeadInOpensSessionWithoutStoringSector(t *testing.T) {
	strategy, disc, _ := newRAWTestStrategy(t)

	leadin := rawSector(make([]byte, 2352), qChunk(0, 1, 0, 0, 0, 0))
	require.NoError(t, strategy.WriteSectors(-150, leadin))

	require.Equal(t, 1, disc.NumberOfSessions())
}

func TestRAWTrackDataOpensTrackAndStoresSector(t *testing.T) {
	strategy, disc, _ := newRAWTestStrategy(t)

	leadin := rawSector(make([]byte, 2352), qChunk(0, 1, 0, 0, 0, 0))
	require.NoError(t, strategy.WriteSectors(-150, leadin))

	data := rawSector(make([]byte, 2352), qChunk(0, 1, 1, 1, 0, 0))
	require.NoError(t, strategy.WriteSectors(0, data))

	session, err := disc.GetSessionByIndex(0)
	require.NoError(t, err)
	require.Equal(t, 1, session.NumberOfTracks())

	track, err := session.GetTrackByNumber(1)
	require.NoError(t, err)
	_, err = track.GetSector(0)
	require.NoError(t, err)
}

func TestRAWLeadOutClosesSession(t *testing.T) {
	strategy, disc, writer := newRAWTestStrategy(t)

	leadin := rawSector(make([]byte, 2352), qChunk(0, 1, 0, 0, 0, 0))
	require.NoError(t, strategy.WriteSectors(-150, leadin))
	data := rawSector(make([]byte, 2352), qChunk(0, 1, 1, 1, 0, 0))
	require.NoError(t, strategy.WriteSectors(0, data))
	leadout := rawSector(make([]byte, 2352), qChunk(0, 1, 0xAA, 1, 0, 1))
	require.NoError(t, strategy.WriteSectors(1, leadout))

	require.True(t, writer.Finalized)
	_ = disc
}

func TestRAWGetNextWritableAddressAddsLeadin(t *testing.T) {
	disc := memimage.New(mirage.MediumCD)
	writer := memimage.NewWriter()
	pages := modepage.NewStore()
	pages.RegisterDefaults()
	raw, err := pages.Get(modepage.PageWriteParameters, modepage.Current)
	require.NoError(t, err)
	raw[modepage.Off05DataBlock] = 1
	require.NoError(t, pages.SetCurrent(modepage.PageWriteParameters, raw))

	strategy, err := NewStrategy(ModeRAW, disc, writer, pages, 11400)
	require.NoError(t, err)
	require.Equal(t, 11400, strategy.GetNextWritableAddress())
}
