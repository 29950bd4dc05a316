package woff2

import "sort"

// builtTable is a table's final, reconstructed byte content, memoized so a
// table referenced by more than one font in a collection is decoded once.
type builtTable struct {
	tag  string
	data []byte

	// filled in once the table has actually been appended to the output
	dstOffset uint32
	dstLength uint32
	checksum  uint32
	emitted   bool
}

// fontRebuilder reconstructs one or more SFNT fonts (a single font, or
// every member of a TrueType Collection) from a header already parsed and
// its Brotli-decompressed payload.
type fontRebuilder struct {
	h            *header
	decompressed []byte
	built        map[int]*builtTable
}

func newFontRebuilder(h *header, decompressed []byte) *fontRebuilder {
	return &fontRebuilder{h: h, decompressed: decompressed, built: map[int]*builtTable{}}
}

func (fr *fontRebuilder) tag(idx int) string {
	return fr.h.tables[idx].tag
}

// resolveTable decodes (or returns the memoized decoding of) the table at
// index idx into h.tables, chasing whatever companion tables its transform
// depends on.
func (fr *fontRebuilder) resolveTable(idx int) (*builtTable, error) {
	if bt, ok := fr.built[idx]; ok {
		return bt, nil
	}
	entry := &fr.h.tables[idx]

	switch entry.tag {
	case "glyf":
		return fr.resolveGlyfLoca(idx)
	case "loca":
		glyfIdx, ok := fr.h.tagIndex["glyf"]
		if !ok || glyfIdx+1 != idx {
			return nil, fail(newErr(KindBadDirectory, "loca: no matching glyf table"))
		}
		if _, err := fr.resolveGlyfLoca(glyfIdx); err != nil {
			return nil, err
		}
		return fr.built[idx], nil
	case "hmtx":
		return fr.resolveHmtx(idx)
	case "head":
		return fr.resolveHead(idx)
	case "DSIG":
		return nil, fail(newErr(KindBadDirectory, "DSIG table must not be present"))
	default:
		if entry.transformed() {
			return nil, fail(newErr(KindBadTransform, "%s: unsupported transform", entry.tag))
		}
		raw := fr.decompressed[entry.srcOffset : entry.srcOffset+entry.srcLength]
		bt := &builtTable{tag: entry.tag, data: raw}
		fr.built[idx] = bt
		return bt, nil
	}
}

func (fr *fontRebuilder) resolveHead(idx int) (*builtTable, error) {
	entry := &fr.h.tables[idx]
	if entry.transformed() {
		return nil, fail(newErr(KindBadTransform, "head: unsupported transform"))
	}
	raw := fr.decompressed[entry.srcOffset : entry.srcOffset+entry.srcLength]
	if len(raw) < 18 {
		return nil, fail(newErr(KindBadDirectory, "head: table too short"))
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	data[8], data[9], data[10], data[11] = 0, 0, 0, 0 // checkSumAdjustment, patched at the end
	flags := uint16(data[16])<<8 | uint16(data[17])
	if flags&0x0800 == 0 {
		return nil, fail(newErr(KindBadDirectory, "head: bit 11 of flags must be set"))
	}
	bt := &builtTable{tag: "head", data: data}
	fr.built[idx] = bt
	return bt, nil
}

func (fr *fontRebuilder) resolveGlyfLoca(glyfIdx int) (*builtTable, error) {
	locaIdx := glyfIdx + 1
	glyfEntry := &fr.h.tables[glyfIdx]
	locaEntry := &fr.h.tables[locaIdx]

	var glyfData, locaData []byte
	if glyfEntry.transformed() {
		raw := fr.decompressed[glyfEntry.srcOffset : glyfEntry.srcOffset+glyfEntry.srcLength]
		var err error
		glyfData, locaData, err = reconstructGlyfLoca(raw, locaEntry.origLength)
		if err != nil {
			return nil, err
		}
	} else {
		rawGlyf := fr.decompressed[glyfEntry.srcOffset : glyfEntry.srcOffset+glyfEntry.srcLength]
		rawLoca := fr.decompressed[locaEntry.srcOffset : locaEntry.srcOffset+locaEntry.srcLength]
		glyfData = append([]byte(nil), rawGlyf...)
		locaData = append([]byte(nil), rawLoca...)
	}

	fr.built[glyfIdx] = &builtTable{tag: "glyf", data: glyfData}
	fr.built[locaIdx] = &builtTable{tag: "loca", data: locaData}
	return fr.built[glyfIdx], nil
}

func (fr *fontRebuilder) resolveHmtx(idx int) (*builtTable, error) {
	entry := &fr.h.tables[idx]
	if !entry.transformed() {
		raw := fr.decompressed[entry.srcOffset : entry.srcOffset+entry.srcLength]
		bt := &builtTable{tag: "hmtx", data: raw}
		fr.built[idx] = bt
		return bt, nil
	}
	if entry.transformVersion != 1 {
		return nil, fail(newErr(KindBadTransform, "hmtx: unsupported transform version %d", entry.transformVersion))
	}

	headIdx, ok := fr.h.tagIndex["head"]
	if !ok {
		return nil, fail(newErr(KindBadTransform, "hmtx: head table required to reconstruct hmtx"))
	}
	glyfIdx, hasGlyf := fr.h.tagIndex["glyf"]
	_, hasLoca := fr.h.tagIndex["loca"]
	if !hasGlyf || !hasLoca {
		return nil, fail(newErr(KindBadTransform, "hmtx: glyf and loca tables required to reconstruct hmtx"))
	}
	maxpIdx, ok := fr.h.tagIndex["maxp"]
	if !ok {
		return nil, fail(newErr(KindBadTransform, "hmtx: maxp table required to reconstruct hmtx"))
	}
	hheaIdx, ok := fr.h.tagIndex["hhea"]
	if !ok {
		return nil, fail(newErr(KindBadTransform, "hmtx: hhea table required to reconstruct hmtx"))
	}

	headBT, err := fr.resolveTable(headIdx)
	if err != nil {
		return nil, err
	}
	glyfBT, err := fr.resolveTable(glyfIdx)
	if err != nil {
		return nil, err
	}
	locaBT := fr.built[glyfIdx+1] // resolved as a side effect of resolveGlyfLoca above
	maxpBT, err := fr.resolveTable(maxpIdx)
	if err != nil {
		return nil, err
	}
	hheaBT, err := fr.resolveTable(hheaIdx)
	if err != nil {
		return nil, err
	}

	raw := fr.decompressed[entry.srcOffset : entry.srcOffset+entry.srcLength]
	data, err := reconstructHmtx(raw, headBT.data, glyfBT.data, locaBT.data, maxpBT.data, hheaBT.data)
	if err != nil {
		return nil, err
	}
	bt := &builtTable{tag: "hmtx", data: data}
	fr.built[idx] = bt
	return bt, nil
}

const sfntOffsetTableSize = 12
const sfntDirEntrySize = 16

// searchParams computes the binary-search helper fields the SFNT offset
// table carries alongside numTables.
func searchParams(numTables uint16) (searchRange, entrySelector, rangeShift uint16) {
	searchRange = 1
	for searchRange*2 <= numTables {
		searchRange *= 2
		entrySelector++
	}
	searchRange *= 16
	rangeShift = numTables*16 - searchRange
	return
}

// rebuildFont writes one font (font 0 of a non-collection, or one member of
// a TTC) into sink as a standalone SFNT record, and returns its offset-
// table offset (needed by the TTC header's per-font offset array).
func (fr *fontRebuilder) rebuildFont(sink *BufferSink, flavor uint32, indices []int, isFirstFont bool) (uint32, error) {
	sortedIdx := append([]int(nil), indices...)
	sort.Slice(sortedIdx, func(i, j int) bool { return fr.tag(sortedIdx[i]) < fr.tag(sortedIdx[j]) })

	numTables := uint16(len(sortedIdx))
	searchRange, entrySelector, rangeShift := searchParams(numTables)

	fontOffset := sink.Size()
	if err := writeUint32(sink, flavor); err != nil {
		return 0, err
	}
	if err := writeUint16(sink, numTables); err != nil {
		return 0, err
	}
	if err := writeUint16(sink, searchRange); err != nil {
		return 0, err
	}
	if err := writeUint16(sink, entrySelector); err != nil {
		return 0, err
	}
	if err := writeUint16(sink, rangeShift); err != nil {
		return 0, err
	}

	entryOffsets := make(map[int]uint32, numTables)
	for _, idx := range sortedIdx {
		entryOffsets[idx] = sink.Size()
		if err := sink.Append([]byte(stringPad4(fr.tag(idx)))); err != nil {
			return 0, err
		}
		if err := sink.Append(make([]byte, 12)); err != nil {
			return 0, err
		}
	}

	for _, idx := range sortedIdx {
		if prev, alreadyBuilt := fr.built[idx]; isFirstFont && alreadyBuilt && prev.emitted {
			return 0, fail(newErr(KindReuseInFirstFont, "%s: table reused before the first font defines it", fr.tag(idx)))
		}
		bt, err := fr.resolveTable(idx)
		if err != nil {
			return 0, err
		}
		if !bt.emitted {
			bt.dstOffset = sink.Size()
			if err := sink.Append(bt.data); err != nil {
				return 0, err
			}
			bt.dstLength = uint32(len(bt.data))
			bt.checksum = ComputeULongSum(bt.data)
			if err := padTo4(sink); err != nil {
				return 0, err
			}
			bt.emitted = true
		}
		if err := patchDirEntry(sink, entryOffsets[idx], bt.checksum, bt.dstOffset, bt.dstLength); err != nil {
			return 0, err
		}
	}

	headerEnd := fontOffset + sfntOffsetTableSize + sfntDirEntrySize*uint32(numTables)
	headerBytes := sink.Bytes()[fontOffset:headerEnd]
	total := ComputeULongSum(headerBytes)
	for _, idx := range sortedIdx {
		total += fr.built[idx].checksum
	}
	adjustment := 0xB1B0AFBA - total

	if headIdx, ok := fr.h.tagIndex["head"]; ok {
		if _, referenced := entryOffsets[headIdx]; referenced {
			bt := fr.built[headIdx]
			var patch [4]byte
			patch[0] = byte(adjustment >> 24)
			patch[1] = byte(adjustment >> 16)
			patch[2] = byte(adjustment >> 8)
			patch[3] = byte(adjustment)
			if err := sink.Overwrite(bt.dstOffset+8, patch[:]); err != nil {
				return 0, err
			}
		}
	}

	return fontOffset, nil
}

func patchDirEntry(sink *BufferSink, entryOffset, checksum, dstOffset, dstLength uint32) error {
	var patch [12]byte
	patch[0] = byte(checksum >> 24)
	patch[1] = byte(checksum >> 16)
	patch[2] = byte(checksum >> 8)
	patch[3] = byte(checksum)
	patch[4] = byte(dstOffset >> 24)
	patch[5] = byte(dstOffset >> 16)
	patch[6] = byte(dstOffset >> 8)
	patch[7] = byte(dstOffset)
	patch[8] = byte(dstLength >> 24)
	patch[9] = byte(dstLength >> 16)
	patch[10] = byte(dstLength >> 8)
	patch[11] = byte(dstLength)
	return sink.Overwrite(entryOffset+4, patch[:])
}

func stringPad4(tag string) string {
	for len(tag) < 4 {
		tag += " "
	}
	return tag[:4]
}
