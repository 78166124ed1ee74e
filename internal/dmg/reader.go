// Package dmg implements C10 (the DMG/NDIF chunked random-access
// decoder), C11 (the ADC decompressor, adc.go) and C12 (the
// resource-fork readers, bindescriptor.go/plist.go) as one random-
// access io.ReaderAt over a DMG image: an Apple "koly" trailer points
// at a resource fork (legacy binary or modern XML <plist>) describing
// one or more "blkx" chunk runs, which this package turns into a flat
// Part index and decompresses on demand, mirroring
// filter-dmg-file-filter.c's can_handle_data_format/partial_read pair.
package dmg

import (
	"bytes"
	"compress/bzip2"
	"compress/zlib"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// segment is one backing file of a (possibly multi-part) DMG set, and
// the koly trailer that describes its share of the data fork.
type segment struct {
	file *os.File
	koly kolyBlock
}

// Image is a random-access, on-demand-decompressing view over a DMG
// image: one or more segment files, a flat Part index built once at
// open, and a single-slot decompressed-part cache (spec §4.8: "a
// single-slot cache for the most recently decompressed part suffices
// and matches observed access patterns").
type Image struct {
	segments []segment
	parts    []Part

	totalSectors int64

	ioBuffer      []byte
	inflateBuffer []byte
	cachedPart    int
}

// Open parses path's koly trailer, discovers and validates every
// segment of a multi-part set, reads its resource-fork descriptor
// (binary or XML), and builds the chunk index. It mirrors
// mirage_file_filter_dmg_can_handle_data_format's header validation
// and mirage_file_filter_dmg_open_streams's segment discovery.
func Open(path string) (*Image, error) {
	primaryFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dmg: open %s", path)
	}

	primaryKoly, err := readTrailer(primaryFile)
	if err != nil {
		primaryFile.Close()
		return nil, err
	}
	if primaryKoly.SegmentNumber != 1 {
		primaryFile.Close()
		return nil, fmt.Errorf("dmg: %s is a continuation part of a segmented set", path)
	}

	img := &Image{
		segments:     []segment{{file: primaryFile, koly: primaryKoly}},
		totalSectors: int64(primaryKoly.SectorCount),
		cachedPart:   -1,
	}

	for s := 1; s < int(primaryKoly.SegmentCount); s++ {
		segPath := createSegmentFilename(path, s)
		f, err := os.Open(segPath)
		if err != nil {
			img.Close()
			return nil, errors.Wrapf(err, "dmg: open segment %s", segPath)
		}
		koly, err := readTrailer(f)
		if err != nil {
			f.Close()
			img.Close()
			return nil, err
		}
		img.segments = append(img.segments, segment{file: f, koly: koly})
	}

	resources, err := img.readDescriptor()
	if err != nil {
		img.Close()
		return nil, err
	}

	kolyBlocks := make([]kolyBlock, len(img.segments))
	for i, seg := range img.segments {
		kolyBlocks[i] = seg.koly
	}

	parts, ioBufSize, inflateBufSize := buildIndex(resources, kolyBlocks)
	if len(parts) == 0 {
		img.Close()
		return nil, fmt.Errorf("dmg: %s: no data-bearing chunks found", path)
	}

	img.parts = parts
	if ioBufSize > 0 {
		img.ioBuffer = make([]byte, ioBufSize)
	}
	img.inflateBuffer = make([]byte, inflateBufSize)

	return img, nil
}

// Close releases every segment file. Closing an Image with in-flight
// ReadAt calls is the caller's mistake to avoid, same as *os.File.
func (img *Image) Close() error {
	var firstErr error
	for _, seg := range img.segments {
		if seg.file == nil {
			continue
		}
		if err := seg.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Size returns the image's decompressed size in bytes.
func (img *Image) Size() int64 { return img.totalSectors * sectorSize }

// readTrailer reads the koly trailer from the end of f (the common
// case), falling back to the start of the file, matching
// mirage_file_filter_dmg_can_handle_data_format's two-try loop.
func readTrailer(f *os.File) (kolyBlock, error) {
	buf := make([]byte, kolySize)

	if _, err := f.Seek(-kolySize, io.SeekEnd); err == nil {
		if _, err := io.ReadFull(f, buf); err == nil {
			if k, err := decodeKolyBlock(buf); err == nil {
				return k, nil
			}
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return kolyBlock{}, errors.Wrap(err, "dmg: seek to start for trailer fallback")
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return kolyBlock{}, errors.Wrap(err, "dmg: read koly trailer")
	}
	return decodeKolyBlock(buf)
}

// createSegmentFilename reproduces create_filename_func: strip the
// literal "NNNsufx" 7-character segment suffix (e.g. "001.dmg") from
// the primary filename and append the requested segment's own
// suffix, "%03d.dmgpart" with a 1-based index.
func createSegmentFilename(mainFilename string, index int) string {
	base := mainFilename
	if len(base) > 7 {
		base = base[:len(base)-7]
	}
	return fmt.Sprintf("%s%03d.dmgpart", base, index+1)
}

// readDescriptor picks the XML or binary resource-fork reader
// depending on which offsets the primary koly block carries, matching
// mirage_file_filter_dmg_can_handle_data_format's xml_offset/
// rsrc_fork_offset branch.
func (img *Image) readDescriptor() ([]blkxResource, error) {
	primary := img.segments[0]
	koly := primary.koly

	switch {
	case koly.XMLOffset != 0 && koly.XMLLength != 0:
		if _, err := primary.file.Seek(int64(koly.XMLOffset), io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "dmg: seek to xml descriptor")
		}
		buf := make([]byte, koly.XMLLength)
		if _, err := io.ReadFull(primary.file, buf); err != nil {
			return nil, errors.Wrap(err, "dmg: read xml descriptor")
		}
		return parseXMLDescriptor(bytes.NewReader(buf))

	case koly.RsrcForkOffset != 0 && koly.RsrcForkLength != 0:
		return parseBinDescriptor(primary.file, koly)

	default:
		return nil, fmt.Errorf("dmg: image lacks both an XML and a binary descriptor")
	}
}

// ReadAt implements io.ReaderAt over the decompressed sector space.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		n, err := img.partialRead(off+int64(total), p[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
		total += n
	}
	return total, nil
}

// partialRead serves one read that does not cross a Part boundary; a
// caller asking for more than the covering Part holds gets a short
// read, mirroring mirage_file_filter_dmg_partial_read's MIN(count,
// part_size - offset) clamp. ReadAt loops this to serve longer reads.
func (img *Image) partialRead(position int64, buf []byte) (int, error) {
	sector := position / sectorSize
	idx := findPart(img.parts, sector)
	if idx == -1 {
		return 0, fmt.Errorf("dmg: no part covers sector %d", sector)
	}

	if idx != img.cachedPart {
		if err := img.decompressPart(idx); err != nil {
			return 0, err
		}
		img.cachedPart = idx
	}

	part := img.parts[idx]
	partSize := part.SectorCount * sectorSize
	partOffset := position - part.FirstSector*sectorSize

	n := int64(len(buf))
	if remaining := partSize - partOffset; n > remaining {
		n = remaining
	}
	if n <= 0 {
		return 0, fmt.Errorf("dmg: position %d outside part bounds", position)
	}

	copy(buf, img.inflateBuffer[partOffset:partOffset+n])
	return int(n), nil
}

// decompressPart fills img.inflateBuffer with part's decompressed
// bytes, dispatching by chunk type exactly as
// mirage_file_filter_dmg_partial_read's cache-miss branch does.
func (img *Image) decompressPart(idx int) error {
	part := img.parts[idx]
	outSize := part.SectorCount * sectorSize

	switch part.Type {
	case blockZero, blockIgnore:
		for i := range img.inflateBuffer[:outSize] {
			img.inflateBuffer[i] = 0
		}

	case blockRaw:
		n, err := img.readRawChunk(img.inflateBuffer[:outSize], part)
		if err != nil {
			return err
		}
		if int64(n) != part.InputLength {
			return fmt.Errorf("dmg: short raw chunk read for part %d", idx)
		}

	case blockZLIB:
		n, err := img.readRawChunk(img.ioBuffer[:part.InputLength], part)
		if err != nil {
			return err
		}
		if int64(n) != part.InputLength {
			return fmt.Errorf("dmg: short compressed read for part %d", idx)
		}
		zr, err := zlib.NewReader(bytes.NewReader(img.ioBuffer[:n]))
		if err != nil {
			return fmt.Errorf("dmg: init zlib inflate for part %d: %w", idx, err)
		}
		defer zr.Close()
		if _, err := io.ReadFull(zr, img.inflateBuffer[:outSize]); err != nil {
			return fmt.Errorf("dmg: inflate part %d: %w", idx, err)
		}

	case blockBZLIB:
		n, err := img.readRawChunk(img.ioBuffer[:part.InputLength], part)
		if err != nil {
			return err
		}
		if int64(n) != part.InputLength {
			return fmt.Errorf("dmg: short compressed read for part %d", idx)
		}
		br := bzip2.NewReader(bytes.NewReader(img.ioBuffer[:n]))
		if _, err := io.ReadFull(br, img.inflateBuffer[:outSize]); err != nil {
			return fmt.Errorf("dmg: bunzip2 part %d: %w", idx, err)
		}

	case blockADC:
		n, err := img.readRawChunk(img.ioBuffer[:part.InputLength], part)
		if err != nil {
			return err
		}
		if int64(n) != part.InputLength {
			return fmt.Errorf("dmg: short compressed read for part %d", idx)
		}
		out, err := adcDecompress(img.ioBuffer[:n], int(outSize))
		if err != nil {
			return fmt.Errorf("dmg: adc decompress part %d: %w", idx, err)
		}
		if int64(len(out)) != outSize {
			return fmt.Errorf("dmg: adc decompress part %d produced %d bytes, want %d", idx, len(out), outSize)
		}
		copy(img.inflateBuffer[:outSize], out)

	default:
		return fmt.Errorf("dmg: unknown chunk type %d in part %d", part.Type, idx)
	}

	return nil
}

// readRawChunk reads part's raw (still-compressed, for ZLIB/BZLIB/ADC;
// already-final, for RAW) bytes into dst, crossing into the next
// segment file if the current one runs out before the part ends.
// Mirrors mirage_file_filter_dmg_read_raw_chunk.
func (img *Image) readRawChunk(dst []byte, part Part) (int, error) {
	seg := img.segments[part.Segment]

	partOffs := int64(seg.koly.DataForkOffset) + part.InputOffset - int64(seg.koly.RunningDataForkOffset)
	partAvail := int64(seg.koly.RunningDataForkOffset) + int64(seg.koly.DataForkLength) - part.InputOffset

	toRead := part.InputLength
	haveRead := int64(0)

	if _, err := seg.file.Seek(partOffs, io.SeekStart); err != nil {
		return 0, fmt.Errorf("dmg: seek to %d in segment %d: %w", partOffs, part.Segment, err)
	}

	firstChunk := toRead
	if partAvail < firstChunk {
		firstChunk = partAvail
	}
	n, err := io.ReadFull(seg.file, dst[:firstChunk])
	if err != nil {
		return 0, fmt.Errorf("dmg: read %d bytes from segment %d: %w", firstChunk, part.Segment, err)
	}
	haveRead += int64(n)
	toRead -= int64(n)

	if toRead > 0 {
		nextSeg := img.segments[part.Segment+1]
		if _, err := nextSeg.file.Seek(int64(nextSeg.koly.DataForkOffset), io.SeekStart); err != nil {
			return 0, fmt.Errorf("dmg: seek into segment %d: %w", part.Segment+1, err)
		}
		n, err := io.ReadFull(nextSeg.file, dst[haveRead:haveRead+toRead])
		if err != nil {
			return 0, fmt.Errorf("dmg: read %d bytes from segment %d: %w", toRead, part.Segment+1, err)
		}
		haveRead += int64(n)
		toRead -= int64(n)
	}

	if toRead != 0 {
		return int(haveRead), fmt.Errorf("dmg: incomplete chunk read (%d bytes remaining)", toRead)
	}
	return int(haveRead), nil
}
