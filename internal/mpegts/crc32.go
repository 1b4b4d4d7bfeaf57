package mpegts

import "github.com/cockroachdb/errors"

// crcTable is the MPEG-2 CRC32 table, polynomial 0x04C11DB7, MSB first.
// hash/crc32 only provides the reflected variants.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC32 computes the MPEG-2 CRC of data.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// verifyCRC32 checks a section whose last four bytes are its CRC. Running
// the CRC over the whole section including them yields zero.
func verifyCRC32(data []byte) error {
	if len(data) < 4 {
		return errors.New("mpegts: data too short for CRC32")
	}
	if CRC32(data) != 0 {
		return errors.New("mpegts: CRC32 mismatch")
	}
	return nil
}
