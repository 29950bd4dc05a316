package woff2

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/andybalholm/brotli"
)

// Specification: https://www.w3.org/TR/WOFF2/

// decompressBombRatio is the maximum tolerated ratio between decompressed
// and compressed payload sizes. A legitimate WOFF2 font rarely exceeds
// 20:1; anything past 100:1 is treated as an attempted decompression bomb
// rather than a real font.
const decompressBombRatio = 100

// ParseWOFF2 decodes a WOFF2 font container and returns the SFNT (TTF or
// OTF) it contains. If the input is a TrueType Collection, the returned
// bytes are a TTC.
func ParseWOFF2(b []byte) ([]byte, error) {
	h, err := parseHeader(b)
	if err != nil {
		return nil, err
	}

	if h.uncompressedSize > MaxUncompressedSize {
		return nil, fmt.Errorf("%w: %w", ErrFontCompressionFailure, ErrExceedsMemory)
	}
	if compLen := uint32(len(h.compressedBuf)); compLen > 0 && h.uncompressedSize/compLen > decompressBombRatio {
		return nil, fail(newErr(KindDecompressBomb, "decompressed size exceeds %dx the compressed size", decompressBombRatio))
	} else if compLen > 0 && h.uncompressedSize/compLen > decompressBombRatio/2 {
		Warn.Printf("compression ratio %dx approaching the decompression-bomb threshold", h.uncompressedSize/compLen)
	}

	data, err := brotliDecompress(h.compressedBuf, h.uncompressedSize)
	if err != nil {
		return nil, err
	}

	sizeHint := computeOffsetToFirstTable(h)
	for i := range h.tables {
		sizeHint += (h.tables[i].origLength + 3) &^ 3
	}
	sink := NewBufferSink(sizeHint)
	fr := newFontRebuilder(h, data)

	if !h.isCollection() {
		if _, err := fr.rebuildFont(sink, h.flavor, tableIndicesForFont(h, 0), true); err != nil {
			return nil, err
		}
		return sink.Bytes(), nil
	}

	if err := sink.Append([]byte("ttcf")); err != nil {
		return nil, err
	}
	if err := writeUint32(sink, h.headerVersion); err != nil {
		return nil, err
	}
	if err := writeUint32(sink, uint32(len(h.ttcFonts))); err != nil {
		return nil, err
	}
	offsetTablePos := sink.Size()
	if err := sink.Append(make([]byte, 4*len(h.ttcFonts))); err != nil {
		return nil, err
	}
	if h.headerVersion == 0x00020000 {
		if err := sink.Append(make([]byte, 12)); err != nil {
			return nil, err
		}
	}

	fontOffsets := make([]uint32, len(h.ttcFonts))
	for i, f := range h.ttcFonts {
		offset, err := fr.rebuildFont(sink, f.flavor, f.tableIndices, i == 0)
		if err != nil {
			return nil, err
		}
		fontOffsets[i] = offset
	}
	for i, offset := range fontOffsets {
		var b4 [4]byte
		b4[0], b4[1], b4[2], b4[3] = byte(offset>>24), byte(offset>>16), byte(offset>>8), byte(offset)
		if err := sink.Overwrite(offsetTablePos+4*uint32(i), b4[:]); err != nil {
			return nil, err
		}
	}
	return sink.Bytes(), nil
}

// ComputeWOFF2FinalSize estimates the byte size ParseWOFF2 would produce for
// b, without performing the Brotli decompression or table reconstruction.
// It parses the header and table directory and returns the size of the
// offset tables and directory entries plus every table's declared length
// rounded up to a multiple of 4; the header's totalSfntSize field is not
// read. A reconstructed transformed glyf table is padded per glyph and can
// differ from its declared length, so the result is an estimate, not a
// bound.
func ComputeWOFF2FinalSize(b []byte) (uint32, error) {
	h, err := parseHeader(b)
	if err != nil {
		return 0, err
	}
	size := computeOffsetToFirstTable(h)
	for i := range h.tables {
		size += (h.tables[i].origLength + 3) &^ 3
	}
	return size, nil
}

// sortKey orders tags alphabetically, except that loca is pinned to sort
// immediately after glyf regardless of where it would otherwise fall: the
// WOFF2 table directory requires the two to be adjacent, and real fonts
// routinely have tags (head, hdmx, kern, ...) that would alphabetically
// land between them.
func sortKey(tag string) string {
	if tag == "loca" {
		return "glyf\x01"
	}
	return tag
}

// sfntTableRecord is one entry of an input SFNT's table directory, read back
// out of the font so EncodeWOFF2 can repackage it without needing a parsed
// object model.
type sfntTableRecord struct {
	tag    string
	offset uint32
	length uint32
}

// parseSFNTDirectory reads a bare SFNT/OTF's 12-byte header and table
// directory, returning the font's declared flavor and its tables in
// directory order (not yet sorted).
func parseSFNTDirectory(b []byte) (flavor uint32, records []sfntTableRecord, err error) {
	r := NewByteReader(b)
	flavor = r.ReadUint32()
	numTables := r.ReadUint16()
	_ = r.ReadUint16() // searchRange
	_ = r.ReadUint16() // entrySelector
	_ = r.ReadUint16() // rangeShift
	if r.EOF() {
		return 0, nil, fail(r.Err())
	}
	if numTables == 0 {
		return 0, nil, fail(newErr(KindBadDirectory, "sfnt: numTables must not be zero"))
	}

	records = make([]sfntTableRecord, numTables)
	for i := range records {
		tag := r.ReadString(4)
		_ = r.ReadUint32() // checksum: ignored, recomputed by the SFNT framer on decode
		offset := r.ReadUint32()
		length := r.ReadUint32()
		if r.EOF() {
			return 0, nil, fail(r.Err())
		}
		if uint64(offset)+uint64(length) > uint64(len(b)) {
			return 0, nil, fail(newErr(KindTruncated, "sfnt: table %q exceeds input", tag))
		}
		records[i] = sfntTableRecord{tag: tag, offset: offset, length: length}
	}
	return flavor, records, nil
}

// EncodeWOFF2 packages a bare SFNT or OTF font (b must begin with its own
// 12-byte sfnt header and table directory, as produced by any font tool) as
// a single-font WOFF2 container. Every table is carried untransformed: glyf
// and loca are marked with transformVersion 3, a value the format reserves
// for "not one of the defined transforms", and every other tag is marked
// with transformVersion 0. This keeps decoding trivial for the reconstructor
// while still producing byte-for-byte valid WOFF2 wire format. TrueType
// Collections are not accepted; build one font at a time.
func EncodeWOFF2(b []byte) ([]byte, error) {
	flavor, records, err := parseSFNTDirectory(b)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return sortKey(records[i].tag) < sortKey(records[j].tag) })

	dir := NewBufferSink(0)
	payload := NewBufferSink(0)
	for _, rec := range records {
		slot, known := knownTagSlot(rec.tag)
		transformVersion := 0
		if rec.tag == "glyf" || rec.tag == "loca" {
			transformVersion = 3
		}
		flagByte := byte(transformVersion<<6) | 0x3F
		if known {
			flagByte = byte(transformVersion<<6) | byte(slot)
		}
		if err := dir.Append([]byte{flagByte}); err != nil {
			return nil, err
		}
		if !known {
			var tagBytes [4]byte
			tag32 := stringToTag(rec.tag)
			tagBytes[0], tagBytes[1], tagBytes[2], tagBytes[3] = byte(tag32>>24), byte(tag32>>16), byte(tag32>>8), byte(tag32)
			if err := dir.Append(tagBytes[:]); err != nil {
				return nil, err
			}
		}
		if err := writeBase128(dir, rec.length); err != nil {
			return nil, err
		}
		// glyf/loca at transformVersion 3 and every other tag at version 0
		// both fall on the untransformed side of their respective sense, so
		// neither writes a transformLength here.

		if err := payload.Append(b[rec.offset : rec.offset+rec.length]); err != nil {
			return nil, err
		}
	}

	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	if _, err := bw.Write(payload.Bytes()); err != nil {
		return nil, fail(newErr(KindDecompressFailed, "brotli: %v", err))
	}
	if err := bw.Close(); err != nil {
		return nil, fail(newErr(KindDecompressFailed, "brotli: %v", err))
	}

	out := NewBufferSink(48 + dir.Size() + uint32(compressed.Len()))
	if err := out.Append([]byte{0x77, 0x4F, 0x46, 0x32}); err != nil { // "wOF2"
		return nil, err
	}
	if err := writeUint32(out, flavor); err != nil {
		return nil, err
	}
	lengthPos := out.Size()
	if err := writeUint32(out, 0); err != nil { // length: patched below
		return nil, err
	}
	if err := writeUint16(out, uint16(len(records))); err != nil {
		return nil, err
	}
	if err := writeUint16(out, 0); err != nil { // reserved
		return nil, err
	}
	totalSfntSize := computeOffsetToFirstTable(&header{numTables: uint16(len(records))})
	for _, rec := range records {
		totalSfntSize += (rec.length + 3) &^ 3
	}
	if err := writeUint32(out, totalSfntSize); err != nil {
		return nil, err
	}
	if err := writeUint32(out, uint32(compressed.Len())); err != nil {
		return nil, err
	}
	if err := writeUint16(out, 1); err != nil { // majorVersion
		return nil, err
	}
	if err := writeUint16(out, 0); err != nil { // minorVersion
		return nil, err
	}
	if err := writeUint32(out, 0); err != nil { // metaOffset
		return nil, err
	}
	if err := writeUint32(out, 0); err != nil { // metaLength
		return nil, err
	}
	if err := writeUint32(out, 0); err != nil { // metaOrigLength
		return nil, err
	}
	if err := writeUint32(out, 0); err != nil { // privOffset
		return nil, err
	}
	if err := writeUint32(out, 0); err != nil { // privLength
		return nil, err
	}
	if err := out.Append(dir.Bytes()); err != nil {
		return nil, err
	}
	if err := out.Append(compressed.Bytes()); err != nil {
		return nil, err
	}
	if err := padTo4(out); err != nil {
		return nil, err
	}

	var lenBytes [4]byte
	total := out.Size()
	lenBytes[0], lenBytes[1], lenBytes[2], lenBytes[3] = byte(total>>24), byte(total>>16), byte(total>>8), byte(total)
	if err := out.Overwrite(lengthPos, lenBytes[:]); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// brotliDecompress inflates compressed into exactly wantSize bytes, failing
// if the stream is shorter, longer, or otherwise malformed.
func brotliDecompress(compressed []byte, wantSize uint32) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(compressed))
	out := make([]byte, wantSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fail(newErr(KindDecompressFailed, "%v", err))
	}
	if uint32(n) != wantSize {
		return nil, fail(newErr(KindDecompressFailed, "decompressed %d bytes, expected %d", n, wantSize))
	}
	var probe [1]byte
	if extra, _ := r.Read(probe[:]); extra != 0 {
		return nil, fail(newErr(KindDecompressFailed, "trailing bytes after decompressed payload"))
	}
	return out, nil
}
