package woff2

import (
	"bytes"
	"errors"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/tdewolff/test"
)

// testBase128 encodes v as a WOFF2 UIntBase128 value, mirroring the wire
// format readBase128 decodes (MSB-first 7-bit groups, continuation bit set
// on every byte but the last).
func testBase128(v uint32) []byte {
	var digits []byte
	digits = append(digits, byte(v&0x7F))
	v >>= 7
	for v > 0 {
		digits = append(digits, byte(v&0x7F)|0x80)
		v >>= 7
	}
	// digits is least-significant-first; reverse it and restore the
	// continuation bit on every byte but the last.
	out := make([]byte, len(digits))
	for i, d := range digits {
		b := d &^ 0x80
		if i != 0 {
			b |= 0x80
		}
		out[len(digits)-1-i] = b
	}
	return out
}

// buildWOFF2 assembles a minimal single-font (non-collection) WOFF2 wire
// buffer: fixed header, table directory, and the real Brotli-compressed
// payload for decompressed (compressed at test time, never hand-encoded).
func buildWOFF2(t *testing.T, flavor uint32, tableDir []byte, numTables uint16, decompressed []byte) []byte {
	t.Helper()
	b, err := buildWOFF2Bytes(flavor, tableDir, numTables, decompressed)
	if err != nil {
		t.Fatalf("buildWOFF2: %v", err)
	}
	return b
}

// buildWOFF2Bytes is buildWOFF2 without the *testing.T dependency, so fuzz
// seed corpora can be constructed outside of a running test.
func buildWOFF2Bytes(flavor uint32, tableDir []byte, numTables uint16, decompressed []byte) ([]byte, error) {
	var cbuf bytes.Buffer
	w := brotli.NewWriter(&cbuf)
	if _, err := w.Write(decompressed); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	compressed := cbuf.Bytes()

	body := make([]byte, 0, 48+len(tableDir)+len(compressed)+3)
	var u32 [4]byte
	putU32 := func(v uint32) {
		u32[0], u32[1], u32[2], u32[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
		body = append(body, u32[:]...)
	}
	putU16 := func(v uint16) {
		body = append(body, byte(v>>8), byte(v))
	}

	putU32(woff2Signature)
	putU32(flavor)
	reportedLengthPos := len(body)
	putU32(0) // reportedLength placeholder, patched below
	putU16(numTables)
	putU16(0) // reserved
	putU32(0) // totalSfntSize
	putU32(uint32(len(compressed)))
	putU16(1) // majorVersion
	putU16(0) // minorVersion
	putU32(0) // metaOffset
	putU32(0) // metaLength
	putU32(0) // metaOrigLength
	putU32(0) // privOffset
	putU32(0) // privLength
	body = append(body, tableDir...)
	body = append(body, compressed...)
	for len(body)%4 != 0 {
		body = append(body, 0)
	}

	total := uint32(len(body))
	body[reportedLengthPos] = byte(total >> 24)
	body[reportedLengthPos+1] = byte(total >> 16)
	body[reportedLengthPos+2] = byte(total >> 8)
	body[reportedLengthPos+3] = byte(total)
	return body, nil
}

func TestParseWOFF2SingleHeadTable(t *testing.T) {
	head := []byte{
		0x00, 0x01, 0x00, 0x00, // version 1.0
		0x00, 0x01, 0x00, 0x00, // fontRevision 1.0
		0x00, 0x00, 0x00, 0x00, // checkSumAdjustment (zeroed)
		0x5F, 0x0F, 0x3C, 0xF5, // magicNumber
		0x08, 0x00, // flags (bit 11 set)
		0x04, 0x00, // unitsPerEm
	}

	// table directory: one entry, tag "head" (known-tag slot 1), untransformed
	tableDir := []byte{0x01}
	tableDir = append(tableDir, testBase128(uint32(len(head)))...)

	wire := buildWOFF2(t, 0x00010000, tableDir, 1, head)

	out, err := ParseWOFF2(wire)
	test.That(t, err == nil, "unexpected error", err)

	want := []byte{
		// offset table
		0x00, 0x01, 0x00, 0x00, // sfntVersion
		0x00, 0x01, // numTables
		0x00, 0x10, // searchRange
		0x00, 0x00, // entrySelector
		0x00, 0x00, // rangeShift
		// directory entry for "head"
		0x68, 0x65, 0x61, 0x64,
		0x67, 0x11, 0x40, 0xF5, // checksum
		0x00, 0x00, 0x00, 0x1C, // offset = 28
		0x00, 0x00, 0x00, 0x14, // length = 20
		// head table data, checkSumAdjustment patched in
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x01, 0x00, 0x00,
		0x7B, 0x26, 0xCC, 0x2C,
		0x5F, 0x0F, 0x3C, 0xF5,
		0x08, 0x00,
		0x04, 0x00,
	}
	test.T(t, out, want)
}

func TestParseWOFF2BadSignature(t *testing.T) {
	b := make([]byte, 48)
	_, err := ParseWOFF2(b)
	test.That(t, err != nil, "expected signature error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindBadSignature)
}

func TestParseWOFF2Truncated(t *testing.T) {
	_, err := ParseWOFF2([]byte{0x77, 0x4F, 0x46, 0x32})
	test.That(t, err != nil, "expected truncated-header error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindTruncated)
}

func TestParseWOFF2ZeroTables(t *testing.T) {
	head := []byte{0, 0, 0, 0}
	wire := buildWOFF2(t, 0x00010000, nil, 0, head)
	_, err := ParseWOFF2(wire)
	test.That(t, err != nil, "expected zero-numTables error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindBadDirectory)
}

func TestParseWOFF2DecompressionBomb(t *testing.T) {
	// Declare a huge origLength for a single untransformed "name" table but
	// back it with a tiny real compressed payload: the ratio check fires
	// before Brotli is ever asked to inflate anything.
	const hugeLen = 10_000_000
	tableDir := []byte{0x05} // tag slot 5 = "name"
	tableDir = append(tableDir, testBase128(hugeLen)...)

	wire := buildWOFF2(t, 0x00010000, tableDir, 1, []byte{1, 2, 3, 4})

	_, err := ParseWOFF2(wire)
	test.That(t, err != nil, "expected decompression bomb error")
	var wofErr *Error
	test.That(t, errors.As(err, &wofErr), "expected *Error in chain")
	test.T(t, wofErr.Kind, KindDecompressBomb)
}

func TestComputeWOFF2FinalSize(t *testing.T) {
	head := []byte{
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x5F, 0x0F, 0x3C, 0xF5,
		0x08, 0x00,
		0x04, 0x00,
	}
	tableDir := []byte{0x01}
	tableDir = append(tableDir, testBase128(uint32(len(head)))...)
	wire := buildWOFF2(t, 0x00010000, tableDir, 1, head)

	size, err := ComputeWOFF2FinalSize(wire)
	test.That(t, err == nil, "unexpected error", err)
	test.T(t, size, uint32(48)) // 12 offset table + 16 directory entry + 20 head data
}
