package dmg

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTestDMG assembles a minimal but structurally faithful DMG image
// (raw chunk, zero chunk, zlib chunk, binary resource-fork descriptor,
// koly trailer at EOF) directly from the on-disk structs, so the test
// exercises decodeKolyBlock/parseBinDescriptor/buildIndex/partialRead
// against real encoded bytes rather than hand-built Go structs.
func buildTestDMG(t *testing.T) string {
	t.Helper()

	rawSector := bytes.Repeat([]byte{0xAB}, sectorSize)

	zlibSource := bytes.Repeat([]byte{0x42}, sectorSize)
	var zlibBuf bytes.Buffer
	zw := zlib.NewWriter(&zlibBuf)
	_, err := zw.Write(zlibSource)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	zlibCompressed := zlibBuf.Bytes()

	var dataFork bytes.Buffer
	dataFork.Write(rawSector)
	dataFork.Write(zlibCompressed)

	nameTable := append([]byte{4}, []byte("disk")...)

	blkxBlk := blkxBlock{
		Signature:         mishSignature,
		InfoVersion:       1,
		FirstSectorNumber: 0,
		SectorCount:       4,
		DataStart:         0,
		BlocksRunCount:    4,
	}
	blkxEntries := []blkxData{
		{BlockType: blockRaw, SectorOffset: 0, SectorCount: 1, CompressedOffset: 0, CompressedLength: uint64(len(rawSector))},
		{BlockType: blockZero, SectorOffset: 1, SectorCount: 2},
		{BlockType: blockZLIB, SectorOffset: 3, SectorCount: 1, CompressedOffset: uint64(len(rawSector)), CompressedLength: uint64(len(zlibCompressed))},
		{BlockType: blockTerm},
	}

	var blkxBlob bytes.Buffer
	require.NoError(t, binary.Write(&blkxBlob, binary.BigEndian, &blkxBlk))
	for i := range blkxEntries {
		require.NoError(t, binary.Write(&blkxBlob, binary.BigEndian, &blkxEntries[i]))
	}

	rsrcBlocks := []rsrcBlock{
		{ID: 128, RelOffsName: 0},
		{ID: 1, RelOffsName: -1},
	}

	mishHeaderLength := uint32(mishSize + rsrcSize + len(rsrcBlocks)*rblkSize + len(nameTable))

	var descriptor bytes.Buffer
	mh := mishHeader{MishHeaderLength: mishHeaderLength, MishBlocksLength: 0}
	require.NoError(t, binary.Write(&descriptor, binary.BigEndian, &mh))

	rh := rsrcHeader{RsrcLength: uint16(rsrcSize + len(rsrcBlocks)*rblkSize), RsrcTotalLength: uint32(rsrcSize + len(rsrcBlocks)*rblkSize + len(nameTable))}
	require.NoError(t, binary.Write(&descriptor, binary.BigEndian, &rh))

	for i := range rsrcBlocks {
		require.NoError(t, binary.Write(&descriptor, binary.BigEndian, &rsrcBlocks[i]))
	}
	descriptor.Write(nameTable)

	require.NoError(t, binary.Write(&descriptor, binary.BigEndian, uint32(blkxBlob.Len())))
	descriptor.Write(blkxBlob.Bytes())

	plstPlaceholder := []byte{0, 0, 0, 0}
	require.NoError(t, binary.Write(&descriptor, binary.BigEndian, uint32(len(plstPlaceholder))))
	descriptor.Write(plstPlaceholder)

	rsrcForkOffset := uint64(dataFork.Len())

	koly := kolyBlock{
		Signature:      kolySignature,
		Version:        4,
		HeaderSize:     kolySize,
		DataForkOffset: 0,
		DataForkLength: uint64(dataFork.Len()),
		RsrcForkOffset: rsrcForkOffset,
		RsrcForkLength: uint64(descriptor.Len()),
		SegmentNumber:  1,
		SegmentCount:   1,
		SectorCount:    4,
	}

	var file bytes.Buffer
	file.Write(dataFork.Bytes())
	file.Write(descriptor.Bytes())
	require.NoError(t, binary.Write(&file, binary.BigEndian, &koly))

	dir := t.TempDir()
	path := filepath.Join(dir, "test.dmg")
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o644))
	return path
}

func TestImageOpenAndReadAtAcrossChunkTypes(t *testing.T) {
	path := buildTestDMG(t)

	img, err := Open(path)
	require.NoError(t, err)
	defer img.Close()

	require.EqualValues(t, 4*sectorSize, img.Size())

	raw := make([]byte, sectorSize)
	_, err = img.ReadAt(raw, 0)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xAB}, sectorSize), raw)

	zero := make([]byte, 2*sectorSize)
	_, err = img.ReadAt(zero, sectorSize)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 2*sectorSize), zero)

	inflated := make([]byte, sectorSize)
	_, err = img.ReadAt(inflated, 3*sectorSize)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0x42}, sectorSize), inflated)
}

func TestImageReadAtSpanningMultiplePartsRefillsCache(t *testing.T) {
	path := buildTestDMG(t)

	img, err := Open(path)
	require.NoError(t, err)
	defer img.Close()

	buf := make([]byte, sectorSize)
	_, err = img.ReadAt(buf, 0)
	require.NoError(t, err)

	zero := make([]byte, sectorSize)
	_, err = img.ReadAt(zero, sectorSize)
	require.NoError(t, err)
	require.Equal(t, make([]byte, sectorSize), zero)

	_, err = img.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xAB}, sectorSize), buf)
}

func TestCreateSegmentFilename(t *testing.T) {
	require.Equal(t, "image.002.dmgpart", createSegmentFilename("image.001.dmg", 1))
	require.Equal(t, "image.003.dmgpart", createSegmentFilename("image.001.dmg", 2))
}
