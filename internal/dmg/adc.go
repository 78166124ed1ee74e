package dmg

import "fmt"

// Apple Data Compression (ADC): a byte-oriented LZ77-like codec. Each
// chunk starts with a tag byte that selects one of three encodings,
// grounded on adc.c's adc_chunk_type/adc_chunk_size/adc_chunk_offset
// and its single decompress loop.
type adcChunkType int

const (
	adcPlain adcChunkType = iota
	adcTwoByte
	adcThreeByte
)

func adcTagType(b byte) adcChunkType {
	switch {
	case b&0x80 != 0:
		return adcPlain
	case b&0x40 != 0:
		return adcThreeByte
	default:
		return adcTwoByte
	}
}

func adcTagSize(b byte) int {
	switch adcTagType(b) {
	case adcPlain:
		return int(b&0x7F) + 1
	case adcThreeByte:
		return int(b&0x3F) + 4
	default:
		return int((b&0x3F)>>2) + 3
	}
}

func adcTagOffset(chunk []byte) int {
	switch adcTagType(chunk[0]) {
	case adcPlain:
		return 0
	case adcThreeByte:
		return int(chunk[1])<<8 + int(chunk[2])
	default:
		return int(chunk[0]&0x03)<<8 + int(chunk[1])
	}
}

// adcDecompress decompresses input into a buffer of exactly outSize
// bytes. It mirrors adc_decompress's single pass: a PLAIN tag copies
// literal bytes, TWOBYTE/THREEBYTE tags copy a run from earlier in the
// output, one byte at a time so that an offset shorter than the run
// length reproduces a repeating pattern rather than stale data.
func adcDecompress(input []byte, outSize int) ([]byte, error) {
	out := make([]byte, 0, outSize)

	for i := 0; i < len(input); {
		tag := input[i]
		size := adcTagSize(tag)

		switch adcTagType(tag) {
		case adcPlain:
			if i+1+size > len(input) {
				return nil, fmt.Errorf("dmg: adc plain run overruns input at offset %d", i)
			}
			if len(out)+size > outSize {
				return append(out, input[i+1:i+1+outSize-len(out)]...), nil
			}
			out = append(out, input[i+1:i+1+size]...)
			i += size + 1

		default:
			if i+2 > len(input) {
				return nil, fmt.Errorf("dmg: adc back-reference tag truncated at offset %d", i)
			}
			offset := adcTagOffset(input[i:])
			full := len(out)+size > outSize
			if full {
				size = outSize - len(out)
			}
			for n := 0; n < size; n++ {
				out = append(out, out[len(out)-offset-1])
			}
			if full {
				return out, nil
			}
			if adcTagType(tag) == adcThreeByte {
				i += 3
			} else {
				i += 2
			}
		}
	}

	return out, nil
}
