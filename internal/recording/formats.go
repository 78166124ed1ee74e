package recording

import "github.com/cdemu/cdemu-sub002/internal/mirage"

// DataFormat is one entry of the data_block_type -> wire-format lookup
// table (spec §4.5 / "RECORDING_DataFormat" in the original engine):
// how many main-channel bytes a WRITE(10) sector carries, how many
// subchannel bytes follow it and in what format, and which sector type
// the main bytes should be interpreted as.
type DataFormat struct {
	MainSize          int
	SubchannelSize    int
	SubchannelFormat  mirage.SubchannelFormat
	SectorType        mirage.SectorType
}

// DataFormats is indexed by Mode Page 0x05's data_block_type nibble
// (spec §4.1 Write Parameters page).
var DataFormats = [16]DataFormat{
	0:  {2352, 0, mirage.SubchannelNone, mirage.SectorRaw},
	1:  {2352, 16, mirage.SubchannelQOnly, mirage.SectorRaw},
	2:  {2352, 96, mirage.SubchannelRW, mirage.SectorRaw},
	3:  {2352, 96, mirage.SubchannelRaw, mirage.SectorRaw},
	4:  {},
	5:  {},
	6:  {},
	7:  {},
	8:  {2048, 0, mirage.SubchannelNone, mirage.SectorMode1},
	9:  {2336, 0, mirage.SubchannelNone, mirage.SectorMode2},
	10: {2048, 0, mirage.SubchannelNone, mirage.SectorMode2Form1},
	11: {2056, 0, mirage.SubchannelNone, mirage.SectorMode2Form1},
	12: {2324, 0, mirage.SubchannelNone, mirage.SectorMode2Form2},
	13: {2332, 0, mirage.SubchannelNone, mirage.SectorMode2Mixed},
	14: {},
	15: {},
}
