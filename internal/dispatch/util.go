package dispatch

// bcdMSFToLBA converts a BCD-encoded minute/second/frame triple, as
// carried in CDBs and subchannel data, into a logical block address
// relative to the start of the field (no lead-in offset applied here;
// callers subtract/add 150 as their field's origin requires).
func bcdMSFToLBA(m, s, f byte) int {
	return bcdToDec(m)*60*75 + bcdToDec(s)*75 + bcdToDec(f)
}

func bcdToDec(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

func lbaToBCDMSF(lba int) (m, s, f byte) {
	frame := lba % 75
	lba /= 75
	sec := lba % 60
	min := lba / 60
	return decToBCD(min), decToBCD(sec), decToBCD(frame)
}

func decToBCD(d int) byte {
	return byte((d/10)<<4 | (d % 10))
}

// lbaToMSF renders an address as binary (not BCD) minute/second/frame,
// the encoding READ SUBCHANNEL's position descriptor uses (spec §4.6).
func lbaToMSF(lba int) (m, s, f byte) {
	frame := lba % 75
	lba /= 75
	sec := lba % 60
	min := lba / 60
	return byte(min), byte(sec), byte(frame)
}
