package woff2

// reconstructHmtx inverts the hmtx transform: advance widths are stored
// explicitly, but left side bearings may be omitted entirely (proportional
// glyphs) or omitted past numHMetrics (monospaced glyphs) and recovered
// from each glyph's xMin in the already-reconstructed glyf table.
func reconstructHmtx(b, head, glyf, loca, maxp, hhea []byte) ([]byte, error) {
	rHead := NewByteReader(head)
	rHead.ReadBytes(50)
	indexFormat := rHead.ReadInt16()
	if rHead.EOF() {
		return nil, fail(rHead.Err())
	}

	rMaxp := NewByteReader(maxp)
	_ = rMaxp.ReadUint32()
	numGlyphs := rMaxp.ReadUint16()
	if rMaxp.EOF() {
		return nil, fail(rMaxp.Err())
	}

	rHhea := NewByteReader(hhea)
	rHhea.ReadBytes(34)
	numHMetrics := rHhea.ReadUint16()
	if rHhea.EOF() {
		return nil, fail(rHhea.Err())
	}
	if numHMetrics < 1 {
		return nil, fail(newErr(KindBadTransform, "hmtx: must have at least one entry"))
	}
	if numGlyphs < numHMetrics {
		return nil, fail(newErr(KindBadTransform, "hmtx: more hMetrics than glyphs"))
	}

	locaLength := (uint32(numGlyphs) + 1) * 2
	if indexFormat != 0 {
		locaLength *= 2
	}
	if locaLength != uint32(len(loca)) {
		return nil, fail(newErr(KindBadTransform, "hmtx: loca length mismatch"))
	}
	rLoca := NewByteReader(loca)

	r := NewByteReader(b)
	flags := r.ReadByte()
	reconstructProportional := flags&0x01 != 0
	reconstructMonospaced := flags&0x02 != 0
	if flags&0xFC != 0 {
		return nil, fail(newErr(KindBadTransform, "hmtx: reserved flag bits must be zero"))
	}
	if !reconstructProportional && !reconstructMonospaced {
		return nil, fail(newErr(KindBadTransform, "hmtx: must reconstruct at least one left-side-bearing array"))
	}

	n := 1 + uint32(numHMetrics)*2
	if !reconstructProportional {
		n += uint32(numHMetrics) * 2
	} else if !reconstructMonospaced {
		n += (uint32(numGlyphs) - uint32(numHMetrics)) * 2
	}
	if n != uint32(len(b)) {
		return nil, fail(newErr(KindBadTransform, "hmtx: stream length does not match declared flags"))
	}

	advanceWidths := make([]uint16, numHMetrics)
	lsbs := make([]int16, numGlyphs)
	for i := uint16(0); i < numHMetrics; i++ {
		advanceWidths[i] = r.ReadUint16()
	}
	if !reconstructProportional {
		for i := uint16(0); i < numHMetrics; i++ {
			lsbs[i] = r.ReadInt16()
		}
	}
	if !reconstructMonospaced {
		for i := numHMetrics; i < numGlyphs; i++ {
			lsbs[i] = r.ReadInt16()
		}
	}
	if r.EOF() {
		return nil, fail(r.Err())
	}

	rGlyf := NewByteReader(glyf)
	iGlyphMin := uint16(0)
	iGlyphMax := numGlyphs
	if !reconstructProportional {
		iGlyphMin = numHMetrics
		if indexFormat != 0 {
			rLoca.ReadBytes(4 * uint32(iGlyphMin))
		} else {
			rLoca.ReadBytes(2 * uint32(iGlyphMin))
		}
	} else if !reconstructMonospaced {
		iGlyphMax = numHMetrics
	}

	var offset, offsetNext uint32
	if indexFormat != 0 {
		offset = rLoca.ReadUint32()
	} else {
		offset = uint32(rLoca.ReadUint16()) << 1
	}
	for iGlyph := iGlyphMin; iGlyph < iGlyphMax; iGlyph++ {
		if indexFormat != 0 {
			offsetNext = rLoca.ReadUint32()
		} else {
			offsetNext = uint32(rLoca.ReadUint16()) << 1
		}

		if offsetNext == offset {
			lsbs[iGlyph] = 0
		} else {
			rGlyf.Seek(offset)
			_ = rGlyf.ReadInt16() // numberOfContours
			xMin := rGlyf.ReadInt16()
			if rGlyf.EOF() {
				return nil, fail(rGlyf.Err())
			}
			lsbs[iGlyph] = xMin
		}
		offset = offsetNext
	}
	if rLoca.EOF() {
		return nil, fail(rLoca.Err())
	}

	out := NewBufferSink(2*uint32(numGlyphs) + 2*uint32(numHMetrics))
	for i := uint16(0); i < numHMetrics; i++ {
		if err := writeUint16(out, advanceWidths[i]); err != nil {
			return nil, err
		}
		if err := writeInt16(out, lsbs[i]); err != nil {
			return nil, err
		}
	}
	for i := numHMetrics; i < numGlyphs; i++ {
		if err := writeInt16(out, lsbs[i]); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
