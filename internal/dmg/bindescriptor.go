package dmg

import (
	"encoding/binary"
	"fmt"
	"io"
)

// parseBinDescriptor reads the legacy binary resource fork (mish
// header, rsrc header, rsrc block table, resource name table, then
// each resource's length-prefixed payload) and decodes every "blkx"
// resource into a blkxResource. This is the classic-format sibling of
// the modern XML <plist> descriptor (plist.go); an image carries one
// or the other, never both (spec §4.8, mirrored from
// mirage_file_filter_dmg_read_bin_descriptor).
//
// "plst" (partition map) resources are read and discarded: they carry
// the Apple partition map, which the index builder never consults.
func parseBinDescriptor(r io.ReadSeeker, primary kolyBlock) ([]blkxResource, error) {
	if _, err := r.Seek(int64(primary.RsrcForkOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("dmg: seek to resource fork: %w", err)
	}

	mishBuf := make([]byte, mishSize)
	if _, err := io.ReadFull(r, mishBuf); err != nil {
		return nil, fmt.Errorf("dmg: read mish header: %w", err)
	}
	mish, err := decodeMishHeader(mishBuf)
	if err != nil {
		return nil, fmt.Errorf("dmg: decode mish header: %w", err)
	}

	if _, err := r.Seek(int64(mish.MishBlocksLength), io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("dmg: seek past mish blocks: %w", err)
	}

	rsrcHdrBuf := make([]byte, rsrcSize)
	if _, err := io.ReadFull(r, rsrcHdrBuf); err != nil {
		return nil, fmt.Errorf("dmg: read rsrc header: %w", err)
	}
	rsrcHdr, err := decodeRsrcHeader(rsrcHdrBuf)
	if err != nil {
		return nil, fmt.Errorf("dmg: decode rsrc header: %w", err)
	}

	numRsrcBlocks := int(rsrcHdr.LastBlkxRsrc) + int(rsrcHdr.LastPlstRsrc) + 2

	rsrcBlocks := make([]rsrcBlock, numRsrcBlocks)
	for i := range rsrcBlocks {
		buf := make([]byte, rblkSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("dmg: read rsrc block %d: %w", i, err)
		}
		rsrcBlocks[i], err = decodeRsrcBlock(buf)
		if err != nil {
			return nil, fmt.Errorf("dmg: decode rsrc block %d: %w", i, err)
		}
	}

	nameLength := int(rsrcHdr.RsrcTotalLength) - int(rsrcHdr.RsrcLength)
	if nameLength > 0 {
		names := make([]byte, nameLength)
		if _, err := io.ReadFull(r, names); err != nil {
			return nil, fmt.Errorf("dmg: read rsrc names: %w", err)
		}
	}

	if _, err := r.Seek(int64(primary.RsrcForkOffset)+int64(mish.MishHeaderLength), io.SeekStart); err != nil {
		return nil, fmt.Errorf("dmg: seek to rsrc data: %w", err)
	}

	var resources []blkxResource
	for i, block := range rsrcBlocks {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("dmg: read resource length %d: %w", i, err)
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("dmg: read resource data %d: %w", i, err)
		}

		if block.RelOffsName == -1 {
			// "plst" resource: partition map, not needed for the index.
			continue
		}

		blk, entries, err := decodeBlkxResource(data)
		if err != nil {
			return nil, fmt.Errorf("dmg: resource %d: %w", i, err)
		}
		resources = append(resources, blkxResource{block: blk, entries: entries})
	}

	return resources, nil
}
