package dmg

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// parseXMLDescriptor reads the modern <plist> resource descriptor (the
// format most real-world DMGs carry instead of the legacy binary
// resource fork) and decodes its base64 "blkx" dictionary entries the
// same way parseBinDescriptor decodes binary ones.
//
// Grounded on mirage_file_filter_dmg_read_xml_descriptor's GMarkupParser
// callbacks (start_element/end_element/xml_text): that state machine is
// reproduced here over encoding/xml's token stream instead of a SAX
// callback registration, which is the idiomatic Go equivalent. "plst"
// entries are skipped without being decoded, for the same reason as in the
// binary path: the index builder never consults the partition map.
func parseXMLDescriptor(r io.Reader) ([]blkxResource, error) {
	dec := xml.NewDecoder(r)

	var (
		resources []blkxResource
		inKey     bool
		inString  bool
		inData    bool
		lastKey   string
		textBuf   strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dmg: parse xml descriptor: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "key":
				inKey = true
				textBuf.Reset()
			case "string":
				inString = true
				textBuf.Reset()
			case "data":
				inData = true
				textBuf.Reset()
			}

		case xml.CharData:
			if inKey || inString || inData {
				textBuf.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "key":
				inKey = false
				lastKey = textBuf.String()
			case "string":
				inString = false
			case "data":
				inData = false
				if lastKey == "blkx" {
					res, err := decodePlistData(textBuf.String())
					if err != nil {
						return nil, err
					}
					resources = append(resources, res)
				}
				// "plst" data blocks are valid base64 too but are
				// partition-map payloads the index builder never reads,
				// so they are intentionally not decoded here.
			}
		}
	}

	return resources, nil
}

// decodePlistData strips the whitespace the plist pretty-printer
// inserts into a base64 <data> block, decodes it, and parses the
// result as one blkx resource (signature-checked blkx_block_t plus its
// blkx_data_t run), matching the binary path's decodeBlkxResource.
func decodePlistData(raw string) (blkxResource, error) {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case '\n', '\r', '\t', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}

	data, err := base64.StdEncoding.DecodeString(b.String())
	if err != nil {
		return blkxResource{}, fmt.Errorf("dmg: decode base64 blkx data: %w", err)
	}

	block, entries, err := decodeBlkxResource(data)
	if err != nil {
		return blkxResource{}, err
	}
	return blkxResource{block: block, entries: entries}, nil
}
