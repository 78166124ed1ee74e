package dmg

const sectorSize = 512

// blkxResource is one decoded "blkx" resource: the chunk-run header
// plus its entries.
type blkxResource struct {
	block   blkxBlock
	entries []blkxData
}

// Part is one chunk of the decoded sector space: a contiguous run of
// sectors backed by one compressed (or synthetic) span of input bytes
// (spec §3 "DMG/NDIF part"). Parts form a non-overlapping cover of
// [0, total_sectors).
type Part struct {
	Type         blockType
	FirstSector  int64
	SectorCount  int64
	Segment      int
	InputOffset  int64
	InputLength  int64
}

// buildIndex walks every blkx resource's chunk run and emits a Part
// for each data-bearing chunk, exactly mirroring
// mirage_file_filter_dmg_read_index: the part's absolute input offset
// is data_fork_offset + data_start + compressed_offset, and its
// segment is the highest-indexed koly block whose
// running_data_fork_offset does not exceed the chunk's compressed_offset.
func buildIndex(resources []blkxResource, kolyBlocks []kolyBlock) (parts []Part, ioBufferSize, inflateBufferSize int64) {
	for _, res := range resources {
		block := res.block

		for _, data := range res.entries {
			if !data.BlockType.hasData() {
				continue
			}

			inOffset := int64(kolyBlocks[0].DataForkOffset) + int64(block.DataStart) + int64(data.CompressedOffset)

			segment := -1
			for s := range kolyBlocks {
				if int64(data.CompressedOffset) >= int64(kolyBlocks[s].RunningDataForkOffset) {
					segment = s
				} else {
					break
				}
			}

			part := Part{
				Type:        data.BlockType,
				FirstSector: int64(block.FirstSectorNumber) + int64(data.SectorOffset),
				SectorCount: int64(data.SectorCount),
				Segment:     segment,
				InputOffset: inOffset,
				InputLength: int64(data.CompressedLength),
			}
			parts = append(parts, part)

			if size := part.SectorCount * sectorSize; size > inflateBufferSize {
				inflateBufferSize = size
			}
			if part.Type.compressed() && part.InputLength > ioBufferSize {
				ioBufferSize = part.InputLength
			}
		}
	}

	return parts, ioBufferSize, inflateBufferSize
}

// findPart returns the index of the Part covering sector, or -1 if no
// part covers it (mirrors the linear scan in
// mirage_file_filter_dmg_partial_read, which keeps the last match
// rather than stopping at the first, tolerating overlapping runs in
// malformed images the same way the original does).
func findPart(parts []Part, sector int64) int {
	found := -1
	for i, p := range parts {
		if p.FirstSector <= sector && sector <= p.FirstSector+p.SectorCount {
			found = i
		}
	}
	return found
}
