package dmg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// On-disk DMG/NDIF layouts, byte-for-byte grounded on filter-dmg.h's
// packed (#pragma pack(1)) C structs. Every multi-byte field is
// big-endian on disk (spec §4.8); binary.Read with binary.BigEndian
// reproduces the struct overlay the original does with raw pointer
// casts plus GUINT*_FROM_BE, without needing unsafe.

const (
	kolySize = 512
	mishSize = 256
	blkxSize = 204
	dataSize = 40
	rsrcSize = 46
	rblkSize = 12
)

var kolySignature = [4]byte{'k', 'o', 'l', 'y'}
var mishSignature = [4]byte{'m', 'i', 's', 'h'}

// blockType is DMG_block_type: the chunk kind a blkx_data_t entry
// names. Only the six data-bearing/structural types spec §3 lists are
// used by the index builder; COMMENT/TERM are skipped.
type blockType int32

const (
	blockADC     blockType = -2147483648 + 4
	blockZLIB    blockType = -2147483648 + 5
	blockBZLIB   blockType = -2147483648 + 6
	blockTerm    blockType = -1
	blockZero    blockType = 0
	blockRaw     blockType = 1
	blockIgnore  blockType = 2
	blockComment blockType = 2147483647 - 1
)

func (t blockType) hasData() bool {
	switch t {
	case blockADC, blockZLIB, blockBZLIB, blockZero, blockRaw, blockIgnore:
		return true
	default:
		return false
	}
}

func (t blockType) compressed() bool {
	return t == blockADC || t == blockZLIB || t == blockBZLIB
}

type checksumT struct {
	Type uint32
	Size uint32
	Data [32]uint32
}

type kolyBlock struct {
	Signature             [4]byte
	Version               uint32
	HeaderSize            uint32
	Flags                 uint32
	RunningDataForkOffset uint64
	DataForkOffset        uint64
	DataForkLength        uint64
	RsrcForkOffset        uint64
	RsrcForkLength        uint64
	SegmentNumber         uint32
	SegmentCount          uint32
	SegmentID             [4]uint32
	DataForkChecksum      checksumT
	XMLOffset             uint64
	XMLLength             uint64
	Reserved1             [30]uint32
	MasterChecksum        checksumT
	ImageVariant          uint32
	SectorCount           uint64
	Reserved2             [3]uint32
}

type mishHeader struct {
	MishHeaderLength uint32
	MishTotalLength  uint32
	MishBlocksLength uint32
	RsrcTotalLength  uint32
	Reserved         [60]uint32
}

type blkxBlock struct {
	Signature                   [4]byte
	InfoVersion                 uint32
	FirstSectorNumber           uint64
	SectorCount                 uint64
	DataStart                   uint64
	DecompressedBufferRequested uint32
	BlocksDescriptor            int32
	Reserved                    [6]uint32
	Checksum                    checksumT
	BlocksRunCount              uint32
}

type blkxData struct {
	BlockType        blockType
	Reserved         uint32
	SectorOffset     uint64
	SectorCount      uint64
	CompressedOffset uint64
	CompressedLength uint64
}

type rsrcHeader struct {
	MishHeaderLength uint32
	MishTotalLength  uint32
	MishBlocksLength uint32
	RsrcTotalLength  uint32
	Unknown1         [4]uint16
	MarkOffset       uint16
	RsrcLength       uint16
	Unknown2         uint16
	BlkxSign         [4]byte
	LastBlkxRsrc     uint16
	BlkxRsrcOffset   uint16
	PlstSign         [4]byte
	LastPlstRsrc     uint16
	PlstRsrcOffset   uint16
}

type rsrcBlock struct {
	ID           int16
	RelOffsName  int16
	Attrs        uint16
	RelOffsBlock uint16
	Reserved     uint32
}

func readStruct(r io.Reader, v any) error {
	return binary.Read(r, binary.BigEndian, v)
}

func decodeKolyBlock(buf []byte) (kolyBlock, error) {
	var k kolyBlock
	if len(buf) < kolySize {
		return k, fmt.Errorf("dmg: koly block too short (%d bytes)", len(buf))
	}
	if err := readStruct(bytes.NewReader(buf), &k); err != nil {
		return k, fmt.Errorf("dmg: decode koly block: %w", err)
	}
	if k.Signature != kolySignature {
		return k, fmt.Errorf("dmg: bad koly signature %q", k.Signature)
	}
	return k, nil
}

func decodeMishHeader(buf []byte) (mishHeader, error) {
	var m mishHeader
	err := readStruct(bytes.NewReader(buf), &m)
	return m, err
}

func decodeRsrcHeader(buf []byte) (rsrcHeader, error) {
	var h rsrcHeader
	err := readStruct(bytes.NewReader(buf), &h)
	return h, err
}

func decodeRsrcBlock(buf []byte) (rsrcBlock, error) {
	var b rsrcBlock
	err := readStruct(bytes.NewReader(buf), &b)
	return b, err
}

// decodeBlkxResource decodes one "blkx" resource's block header plus
// its run of chunk-descriptor entries (blkx_block_t followed by
// BlocksRunCount blkx_data_t, per mirage_file_filter_dmg_read_index).
func decodeBlkxResource(buf []byte) (blkxBlock, []blkxData, error) {
	var blk blkxBlock
	r := bytes.NewReader(buf)
	if err := readStruct(r, &blk); err != nil {
		return blk, nil, fmt.Errorf("dmg: decode blkx block: %w", err)
	}
	if blk.Signature != mishSignature {
		return blk, nil, fmt.Errorf("dmg: bad blkx signature %q", blk.Signature)
	}

	entries := make([]blkxData, blk.BlocksRunCount)
	for i := range entries {
		if err := readStruct(r, &entries[i]); err != nil {
			return blk, nil, fmt.Errorf("dmg: decode blkx data entry %d: %w", i, err)
		}
	}
	return blk, entries, nil
}
