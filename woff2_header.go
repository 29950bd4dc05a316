package woff2

import "math"

const woff2Signature = 0x774F4632 // "wOF2"
const ttcFlavor = 0x74746366      // "ttcf"

const sfntHeaderSize = 12
const sfntEntrySize = 16

// tableEntry mirrors a WOFF2 table-directory entry: tag, transform flags,
// the slice it occupies in the decompressed
// payload, its final (post-reconstruction) length, and its eventual
// position in the output once the SFNT framer has placed it.
type tableEntry struct {
	tag              string
	transformVersion int

	srcOffset uint32 // offset within the decompressed payload
	srcLength uint32 // length occupied in the decompressed payload

	origLength uint32 // "dst_length" from the wire: final length for untransformed
	// tables, or the expected reconstructed loca length for transformed loca
}

// transformed reports whether this entry carries a transform, per the
// inverted-sense rule for glyf/loca (transform_version == 0 means
// transformed) versus every other tag (any nonzero version means
// transformed).
func (t *tableEntry) transformed() bool {
	if t.tag == "glyf" || t.tag == "loca" {
		return t.transformVersion == 0
	}
	return t.transformVersion != 0
}

// ttcFont is one font's entry in a TTC: its flavor and which tables it
// references, by index into the shared table vector.
type ttcFont struct {
	flavor       uint32
	tableIndices []int
}

// header holds everything the header parser extracts before Brotli
// decompression begins.
type header struct {
	flavor            uint32
	headerVersion     uint32 // 0 for a non-collection font
	numTables         uint16
	tables            []tableEntry
	tagIndex          map[string]int // tag -> index into tables; tags are unique across the whole file
	ttcFonts          []ttcFont
	uncompressedSize  uint32
	compressedBuf     []byte
	reportedTotalSize uint32
}

func (h *header) isCollection() bool {
	return h.headerVersion != 0
}

// parseHeader decodes the WOFF2 fixed header, the table directory, and the
// optional TTC sub-header, and pins the compressed payload slice. It does
// not touch Brotli.
func parseHeader(b []byte) (*header, error) {
	if len(b) < 48 {
		return nil, fail(newErr(KindTruncated, "input shorter than fixed header"))
	}

	r := NewByteReader(b)
	signature := r.ReadUint32()
	if signature != woff2Signature {
		return nil, fail(newErr(KindBadSignature, "signature is not 'wOF2'"))
	}
	h := &header{}
	h.flavor = r.ReadUint32()
	reportedLength := r.ReadUint32()
	h.numTables = r.ReadUint16()
	reserved := r.ReadUint16()
	_ = r.ReadUint32() // totalSfntSize: ignored, recomputed
	compressedLength := r.ReadUint32()
	_ = r.ReadUint16() // majorVersion
	_ = r.ReadUint16() // minorVersion
	metaOffset := r.ReadUint32()
	metaLength := r.ReadUint32()
	_ = r.ReadUint32() // metaOrigLength
	privOffset := r.ReadUint32()
	privLength := r.ReadUint32()
	if r.EOF() {
		return nil, fail(r.Err())
	}
	if reportedLength != uint32(len(b)) {
		return nil, fail(newErr(KindBadSize, "reported length %d does not match input length %d", reportedLength, len(b)))
	}
	if h.numTables == 0 {
		return nil, fail(newErr(KindBadDirectory, "numTables must not be zero"))
	}
	if reserved != 0 {
		return nil, fail(newErr(KindBadDirectory, "reserved header field must be zero"))
	}
	h.reportedTotalSize = reportedLength

	if metaOffset != 0 {
		if uint64(metaOffset) >= uint64(len(b)) || uint64(len(b))-uint64(metaOffset) < uint64(metaLength) {
			return nil, fail(newErr(KindBadSize, "metadata block lies outside input"))
		}
	}
	if privOffset != 0 {
		if uint64(privOffset) >= uint64(len(b)) || uint64(len(b))-uint64(privOffset) < uint64(privLength) {
			return nil, fail(newErr(KindBadSize, "private block lies outside input"))
		}
	}

	tables, tagIndex, uncompressedSize, err := readTableDirectory(r, int(h.numTables))
	if err != nil {
		return nil, err
	}
	h.tables = tables
	h.tagIndex = tagIndex
	h.uncompressedSize = uncompressedSize

	if h.flavor == ttcFlavor {
		if err := readTTCHeader(r, h); err != nil {
			return nil, err
		}
	}

	compressedOffset := r.Pos()
	if r.EOF() {
		return nil, fail(r.Err())
	}
	if uint64(compressedOffset)+uint64(compressedLength) > uint64(len(b)) {
		return nil, fail(newErr(KindTruncated, "compressed payload exceeds input"))
	}
	h.compressedBuf = b[compressedOffset : compressedOffset+compressedLength]

	srcOffset := round4(uint64(compressedOffset) + uint64(compressedLength))
	if srcOffset > uint64(len(b)) {
		return nil, fail(newErr(KindBadSize, "compressed payload overruns input"))
	}
	if metaOffset != 0 {
		if srcOffset != uint64(metaOffset) {
			return nil, fail(newErr(KindBadSize, "metadata block must immediately follow compressed payload"))
		}
		srcOffset = round4(uint64(metaOffset) + uint64(metaLength))
	}
	if privOffset != 0 {
		if srcOffset != uint64(privOffset) {
			return nil, fail(newErr(KindBadSize, "private block must immediately follow prior region"))
		}
		srcOffset = round4(uint64(privOffset) + uint64(privLength))
	}
	if srcOffset != round4(uint64(len(b))) {
		return nil, fail(newErr(KindBadSize, "input has trailing bytes beyond declared regions"))
	}

	return h, nil
}

func round4(v uint64) uint64 {
	return (v + 3) &^ 3
}

func readTableDirectory(r *ByteReader, numTables int) ([]tableEntry, map[string]int, uint32, error) {
	tables := make([]tableEntry, 0, numTables)
	tagIndex := map[string]int{}
	var srcOffset uint32

	for i := 0; i < numTables; i++ {
		flagByte := r.ReadByte()
		tagSlot := int(flagByte & 0x3F)
		transformVersion := int((flagByte & 0xC0) >> 6)

		var tag string
		if tagSlot == 63 {
			tag = tagToString(r.ReadUint32())
		} else {
			tag = knownTags[tagSlot]
		}
		if r.EOF() {
			return nil, nil, 0, fail(r.Err())
		}

		origLength, kerr := readBase128(r)
		if kerr != nil {
			return nil, nil, 0, fail(kerr)
		}

		entry := tableEntry{
			tag:              tag,
			transformVersion: transformVersion,
			origLength:       origLength,
		}

		srcLength := origLength
		if entry.transformed() {
			transformLength, kerr := readBase128(r)
			if kerr != nil {
				return nil, nil, 0, fail(kerr)
			}
			if tag == "loca" && transformLength != 0 {
				return nil, nil, 0, fail(newErr(KindBadTransform, "loca: transformLength must be zero"))
			}
			srcLength = transformLength
		}

		if _, dup := tagIndex[tag]; dup {
			return nil, nil, 0, fail(newErr(KindBadDirectory, "%s: table defined more than once", tag))
		}

		if math.MaxUint32-srcOffset < srcLength {
			return nil, nil, 0, fail(newErr(KindArithmeticOverflow, "table directory offsets overflow"))
		}
		entry.srcOffset = srcOffset
		entry.srcLength = srcLength
		srcOffset += srcLength

		tagIndex[tag] = len(tables)
		tables = append(tables, entry)
	}

	iGlyf, hasGlyf := tagIndex["glyf"]
	iLoca, hasLoca := tagIndex["loca"]
	if hasGlyf != hasLoca {
		return nil, nil, 0, fail(newErr(KindBadDirectory, "glyf and loca must both be present or both absent"))
	}
	if hasGlyf {
		if tables[iGlyf].transformed() != tables[iLoca].transformed() {
			return nil, nil, 0, fail(newErr(KindBadTransform, "glyf and loca must share transform status"))
		}
		if iLoca != iGlyf+1 {
			return nil, nil, 0, fail(newErr(KindBadCollection, "loca must come directly after glyf in the table directory"))
		}
	}

	return tables, tagIndex, srcOffset, nil
}

func readTTCHeader(r *ByteReader, h *header) error {
	h.headerVersion = r.ReadUint32()
	if r.EOF() {
		return fail(r.Err())
	}
	if h.headerVersion != 0x00010000 && h.headerVersion != 0x00020000 {
		return fail(newErr(KindBadCollection, "unsupported TTC header version 0x%08X", h.headerVersion))
	}

	numFonts := read255UInt16(r)
	if r.EOF() || numFonts == 0 {
		return fail(newErr(KindBadCollection, "TTC must declare at least one font"))
	}
	h.ttcFonts = make([]ttcFont, numFonts)

	for i := range h.ttcFonts {
		numTablesInFont := read255UInt16(r)
		flavor := r.ReadUint32()
		if r.EOF() || numTablesInFont == 0 {
			return fail(newErr(KindBadCollection, "TTC font %d must declare at least one table", i))
		}

		indices := make([]int, numTablesInFont)
		glyfIdx, locaIdx := -1, -1
		for j := range indices {
			idx := int(read255UInt16(r))
			if r.EOF() || idx >= len(h.tables) {
				return fail(newErr(KindBadCollection, "TTC font %d: table index out of range", i))
			}
			indices[j] = idx
			switch h.tables[idx].tag {
			case "glyf":
				glyfIdx = idx
			case "loca":
				locaIdx = idx
			}
		}
		if (glyfIdx >= 0) != (locaIdx >= 0) {
			return fail(newErr(KindBadCollection, "TTC font %d: glyf/loca must both be referenced or neither", i))
		}
		if glyfIdx >= 0 && locaIdx != glyfIdx+1 {
			return fail(newErr(KindBadCollection, "TTC font %d: glyf and loca must be consecutive", i))
		}

		h.ttcFonts[i] = ttcFont{flavor: flavor, tableIndices: indices}
	}
	return nil
}

// computeOffsetToFirstTable sizes the header region the SFNT framer must
// emit before any table data: SFNT/TTC header, per-font offset tables, and
// one directory entry per (font, table) reference -- not per unique table,
// since a reused table still gets its own entry in every referencing font.
func computeOffsetToFirstTable(h *header) uint32 {
	if !h.isCollection() {
		return sfntHeaderSize + sfntEntrySize*uint32(h.numTables)
	}
	offset := uint32(12) + 4*uint32(len(h.ttcFonts)) // ttcf tag, version, numFonts, offset table
	if h.headerVersion == 0x00020000 {
		offset += 12 // DSIG placeholder fields
	}
	for _, f := range h.ttcFonts {
		offset += sfntHeaderSize + sfntEntrySize*uint32(len(f.tableIndices))
	}
	return offset
}

// tableIndicesForFont returns the indices into h.tables that a given font
// (by index into h.ttcFonts, or font 0 for a non-collection) references.
func tableIndicesForFont(h *header, fontIndex int) []int {
	if !h.isCollection() {
		out := make([]int, len(h.tables))
		for i := range h.tables {
			out[i] = i
		}
		return out
	}
	return h.ttcFonts[fontIndex].tableIndices
}
