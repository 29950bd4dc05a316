package woff2

import (
	"errors"
	"testing"

	"github.com/tdewolff/test"
)

func TestReadTableDirectoryExplicitTag(t *testing.T) {
	tableDir := []byte{0x3F} // tagSlot 63 = explicit 4-byte tag follows
	var tag [4]byte
	tag32 := stringToTag("zzzz")
	tag[0], tag[1], tag[2], tag[3] = byte(tag32>>24), byte(tag32>>16), byte(tag32>>8), byte(tag32)
	tableDir = append(tableDir, tag[:]...)
	tableDir = append(tableDir, testBase128(4)...)

	wire := buildWOFF2(t, 0x00010000, tableDir, 1, []byte{1, 2, 3, 4})
	h, err := parseHeader(wire)
	test.That(t, err == nil, "unexpected error", err)
	test.T(t, len(h.tables), 1)
	test.T(t, h.tables[0].tag, "zzzz")
	idx, ok := h.tagIndex["zzzz"]
	test.That(t, ok, "expected zzzz in tagIndex")
	test.T(t, idx, 0)
}

func TestReadTableDirectoryDuplicateTag(t *testing.T) {
	tableDir := []byte{0x01}
	tableDir = append(tableDir, testBase128(4)...)
	tableDir = append(tableDir, 0x01)
	tableDir = append(tableDir, testBase128(4)...)

	wire := buildWOFF2(t, 0x00010000, tableDir, 2, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	_, err := parseHeader(wire)
	test.That(t, err != nil, "expected duplicate-tag error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindBadDirectory)
}

func TestReadTableDirectoryGlyfLocaMustBeAdjacent(t *testing.T) {
	tableDir := []byte{0xCA} // glyf, transformVersion 3 (untransformed)
	tableDir = append(tableDir, testBase128(4)...)
	tableDir = append(tableDir, 0x01) // head, untransformed
	tableDir = append(tableDir, testBase128(4)...)
	tableDir = append(tableDir, 0xCB) // loca, transformVersion 3 (untransformed)
	tableDir = append(tableDir, testBase128(4)...)

	wire := buildWOFF2(t, 0x00010000, tableDir, 3, make([]byte, 12))
	_, err := parseHeader(wire)
	test.That(t, err != nil, "expected non-adjacent glyf/loca error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindBadCollection)
}

func TestReadTableDirectoryGlyfLocaTransformMismatch(t *testing.T) {
	tableDir := []byte{0x0A} // glyf, transformVersion 0 (transformed)
	tableDir = append(tableDir, testBase128(10)...)
	tableDir = append(tableDir, testBase128(6)...) // transformLength
	tableDir = append(tableDir, 0xCB)               // loca, transformVersion 3 (untransformed)
	tableDir = append(tableDir, testBase128(6)...)

	wire := buildWOFF2(t, 0x00010000, tableDir, 2, make([]byte, 12))
	_, err := parseHeader(wire)
	test.That(t, err != nil, "expected transform-status mismatch error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindBadTransform)
}

func TestReadTTCHeaderBadVersion(t *testing.T) {
	tableDir := []byte{0x01}
	tableDir = append(tableDir, testBase128(4)...)

	var ttc []byte
	ttc = append(ttc, 0x00, 0x03, 0x00, 0x00) // unsupported header version
	ttc = append(ttc, 0x01)                   // numFonts
	ttc = append(ttc, 0x01)                   // numTablesInFont
	ttc = append(ttc, 0x00, 0x01, 0x00, 0x00) // font flavor
	ttc = append(ttc, 0x00)                   // table index 0

	wire := buildTTCWOFF2Wire(t, tableDir, ttc, make([]byte, 4))
	_, err := parseHeader(wire)
	test.That(t, err != nil, "expected bad TTC header version error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindBadCollection)
}

// buildTTCWOFF2Wire assembles a WOFF2 buffer from an already-encoded TTC
// sub-header, for tests that need to exercise readTTCHeader's own
// validation rather than the legitimate multi-font layout buildTTCWOFF2
// produces.
func buildTTCWOFF2Wire(t *testing.T, tableDir, ttc, decompressed []byte) []byte {
	t.Helper()
	b, err := buildWOFF2Bytes(ttcFlavor, append(append([]byte(nil), tableDir...), ttc...), 1, decompressed)
	if err != nil {
		t.Fatalf("buildTTCWOFF2Wire: %v", err)
	}
	return b
}
