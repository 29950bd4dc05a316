package woff2

import "encoding/binary"

// ComputeULongSum sums b as big-endian uint32 words, zero-padding the final
// 0-3 byte tail on the right. This is the SFNT table checksum algorithm,
// and is also used over the SFNT/TTC header region and over individual
// 12-byte directory-entry patches.
func ComputeULongSum(b []byte) uint32 {
	var sum uint32
	n := len(b) &^ 3
	for i := 0; i < n; i += 4 {
		sum += binary.BigEndian.Uint32(b[i : i+4])
	}
	if rem := len(b) - n; rem > 0 {
		var tail [4]byte
		copy(tail[:], b[n:])
		sum += binary.BigEndian.Uint32(tail[:])
	}
	return sum
}
