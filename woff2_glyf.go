package woff2

import "math"

// glyfTransformHeader is the 36-byte fixed header in front of the seven
// correlated glyf sub-streams.
type glyfTransformHeader struct {
	optionFlags           uint16
	numGlyphs             uint16
	indexFormat           uint16
	nContourStreamSize    uint32
	nPointsStreamSize     uint32
	flagStreamSize        uint32
	glyphStreamSize       uint32
	compositeStreamSize   uint32
	bboxStreamSize        uint32
	instructionStreamSize uint32
}

// reconstructGlyfLoca inverts the glyf transform, producing both the glyf
// table and the loca table (the latter normally absent from the
// decompressed payload entirely, since a transformed loca carries zero
// bytes of its own). The hmtx reconstructor recovers omitted left side
// bearings straight from these final glyf/loca bytes, so no intermediate
// xMin bookkeeping is needed here.
func reconstructGlyfLoca(b []byte, origLocaLength uint32) (glyf, loca []byte, err error) {
	r := NewByteReader(b)
	_ = r.ReadUint16() // reserved
	var th glyfTransformHeader
	th.optionFlags = r.ReadUint16()
	th.numGlyphs = r.ReadUint16()
	th.indexFormat = r.ReadUint16()
	th.nContourStreamSize = r.ReadUint32()
	th.nPointsStreamSize = r.ReadUint32()
	th.flagStreamSize = r.ReadUint32()
	th.glyphStreamSize = r.ReadUint32()
	th.compositeStreamSize = r.ReadUint32()
	th.bboxStreamSize = r.ReadUint32()
	th.instructionStreamSize = r.ReadUint32()
	if r.EOF() {
		return nil, nil, fail(r.Err())
	}
	if th.nContourStreamSize != 2*uint32(th.numGlyphs) {
		return nil, nil, fail(newErr(KindBadTransform, "glyf: nContourStream size must be 2*numGlyphs"))
	}

	bitmapSize := ((uint32(th.numGlyphs) + 31) >> 5) << 2
	nContourStream := NewByteReader(r.ReadBytes(th.nContourStreamSize))
	nPointsStream := NewByteReader(r.ReadBytes(th.nPointsStreamSize))
	flagStream := NewByteReader(r.ReadBytes(th.flagStreamSize))
	glyphStream := NewByteReader(r.ReadBytes(th.glyphStreamSize))
	compositeStream := NewByteReader(r.ReadBytes(th.compositeStreamSize))
	if th.bboxStreamSize < bitmapSize {
		return nil, nil, fail(newErr(KindBadTransform, "glyf: bboxStream shorter than bbox bitmap"))
	}
	bboxBitmap := NewBitReader(r.ReadBytes(bitmapSize))
	bboxStream := NewByteReader(r.ReadBytes(th.bboxStreamSize - bitmapSize))
	instructionStream := NewByteReader(r.ReadBytes(th.instructionStreamSize))
	var overlapSimpleBitmap *BitReader
	if th.optionFlags&0x0001 != 0 {
		// The overlap-simple bitmap is packed one bit per glyph with no
		// 4-byte rounding, unlike the bbox bitmap above.
		overlapSize := (uint32(th.numGlyphs) + 7) >> 3
		overlapSimpleBitmap = NewBitReader(r.ReadBytes(overlapSize))
	}
	if r.EOF() {
		return nil, nil, fail(r.Err())
	}

	locaLength := (uint32(th.numGlyphs) + 1) * 2
	if th.indexFormat != 0 {
		locaLength *= 2
	}
	if locaLength != origLocaLength {
		return nil, nil, fail(newErr(KindBadTransform, "loca: origLength must match numGlyphs+1 entries"))
	}

	out := NewBufferSink(uint32(th.numGlyphs) * 32)
	locaSink := NewBufferSink(locaLength)

	writeLocaEntry := func() error {
		if th.indexFormat == 0 {
			return writeUint16(locaSink, uint16(out.Size()>>1))
		}
		return writeUint32(locaSink, out.Size())
	}

	for iGlyph := uint16(0); iGlyph < th.numGlyphs; iGlyph++ {
		if err := writeLocaEntry(); err != nil {
			return nil, nil, err
		}

		explicitBbox := bboxBitmap.Read()
		nContours := nContourStream.ReadInt16()
		if nContourStream.EOF() {
			return nil, nil, fail(nContourStream.Err())
		}
		if nContours <= 0 && overlapSimpleBitmap != nil {
			// Only simple glyphs use their overlap bit; consume it here so
			// the bitmap stays aligned with iGlyph.
			overlapSimpleBitmap.Read()
		}

		switch {
		case nContours == 0:
			if explicitBbox {
				return nil, nil, fail(newErr(KindBadGlyph, "glyph %d: empty glyph cannot have an explicit bbox", iGlyph))
			}
			// nothing emitted

		case nContours > 0:
			if err := reconstructSimpleGlyph(out, nContours, explicitBbox, bboxStream, nPointsStream, flagStream, glyphStream, instructionStream, overlapSimpleBitmap, iGlyph); err != nil {
				return nil, nil, err
			}

		default:
			if !explicitBbox {
				return nil, nil, fail(newErr(KindBadGlyph, "glyph %d: composite glyph must have an explicit bbox", iGlyph))
			}
			if err := reconstructCompositeGlyph(out, nContours, bboxStream, compositeStream, glyphStream, instructionStream, iGlyph); err != nil {
				return nil, nil, err
			}
		}

		if err := padTo4(out); err != nil {
			return nil, nil, err
		}
	}
	if err := writeLocaEntry(); err != nil {
		return nil, nil, err
	}

	return out.Bytes(), locaSink.Bytes(), nil
}

func signInt32(flag byte, pos uint) int32 {
	if flag&(1<<pos) != 0 {
		return 1
	}
	return -1
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Outline flag bits for the SFNT simple glyph record, matching the
// TrueType glyf format (not the WOFF2 triplet flag byte).
const (
	kGlyfOnCurve      = 1 << 0
	kGlyfXShort       = 1 << 1
	kGlyfYShort       = 1 << 2
	kGlyfRepeat       = 1 << 3
	kGlyfThisXIsSame  = 1 << 4
	kGlyfThisYIsSame  = 1 << 5
	kGlyfOverlapSimpl = 1 << 6
)

// reconstructSimpleGlyph decodes one simple glyph's contour data per the
// triplet encoding and writes the SFNT simple glyph record, re-deriving the
// flag run-length compression and short-coordinate packing a real TrueType
// encoder would have produced.
func reconstructSimpleGlyph(out Sink, nContours int16, explicitBbox bool, bboxStream, nPointsStream, flagStream, glyphStream, instructionStream *ByteReader, overlapSimpleBitmap *BitReader, iGlyph uint16) error {
	var xMin, yMin, xMax, yMax int32
	if explicitBbox {
		xMin = int32(bboxStream.ReadInt16())
		yMin = int32(bboxStream.ReadInt16())
		xMax = int32(bboxStream.ReadInt16())
		yMax = int32(bboxStream.ReadInt16())
		if bboxStream.EOF() {
			return fail(bboxStream.Err())
		}
	}

	var nPoints uint16
	endPtsOfContours := make([]uint16, nContours)
	for iContour := int16(0); iContour < nContours; iContour++ {
		nPoint := read255UInt16(nPointsStream)
		if math.MaxUint16-nPoints < nPoint {
			return fail(newErr(KindArithmeticOverflow, "glyph %d: point count overflow", iGlyph))
		}
		nPoints += nPoint
		endPtsOfContours[iContour] = nPoints - 1
	}
	if nPointsStream.EOF() {
		return fail(nPointsStream.Err())
	}

	// The overlap-simple bit, when present, is stored once per glyph and
	// only ever marks the glyph's first point.
	hasOverlap := overlapSimpleBitmap != nil && overlapSimpleBitmap.Read()

	var x, y int32
	flagBytes := make([]byte, 0, nPoints)
	xBytes := make([]byte, 0, nPoints)
	yBytes := make([]byte, 0, nPoints)
	lastFlag := -1
	repeatCount := 0
	for iPoint := uint16(0); iPoint < nPoints; iPoint++ {
		flag := flagStream.ReadByte()
		onCurve := flag&0x80 == 0
		flag &= 0x7F

		var dx, dy int32
		switch {
		case flag < 10:
			coord0 := int32(glyphStream.ReadByte())
			dy = signInt32(flag, 0) * (int32(flag&0x0E)<<7 + coord0)
		case flag < 20:
			coord0 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, 0) * (int32((flag-10)&0x0E)<<7 + coord0)
		case flag < 84:
			coord0 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, 0) * (1 + int32((flag-20)&0x30) + coord0>>4)
			dy = signInt32(flag, 1) * (1 + int32((flag-20)&0x0C)<<2 + (coord0 & 0x0F))
		case flag < 120:
			coord0 := int32(glyphStream.ReadByte())
			coord1 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, 0) * (1 + int32((flag-84)/12)<<8 + coord0)
			dy = signInt32(flag, 1) * (1 + (int32((flag-84)%12)>>2)<<8 + coord1)
		case flag < 124:
			coord0 := int32(glyphStream.ReadByte())
			coord1 := int32(glyphStream.ReadByte())
			coord2 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, 0) * (coord0<<4 + coord1>>4)
			dy = signInt32(flag, 1) * ((coord1&0x0F)<<8 + coord2)
		default:
			coord0 := int32(glyphStream.ReadByte())
			coord1 := int32(glyphStream.ReadByte())
			coord2 := int32(glyphStream.ReadByte())
			coord3 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, 0) * (coord0<<8 + coord1)
			dy = signInt32(flag, 1) * (coord2<<8 + coord3)
		}

		if 0 < x && math.MaxInt32-x < dx || x < 0 && dx < math.MinInt32-x ||
			0 < y && math.MaxInt32-y < dy || y < 0 && dy < math.MinInt32-y {
			return fail(newErr(KindArithmeticOverflow, "glyph %d: coordinate overflow", iGlyph))
		}
		x += dx
		y += dy
		if !explicitBbox {
			if iPoint == 0 {
				xMin, xMax = x, x
				yMin, yMax = y, y
			} else {
				if x < xMin {
					xMin = x
				} else if xMax < x {
					xMax = x
				}
				if y < yMin {
					yMin = y
				} else if yMax < y {
					yMax = y
				}
			}
		}

		var outFlag byte
		if onCurve {
			outFlag |= kGlyfOnCurve
		}
		if hasOverlap && iPoint == 0 {
			outFlag |= kGlyfOverlapSimpl
		}
		switch {
		case dx == 0:
			outFlag |= kGlyfThisXIsSame
		case -256 < dx && dx < 256:
			outFlag |= kGlyfXShort
			if dx > 0 {
				outFlag |= kGlyfThisXIsSame
			}
			xBytes = append(xBytes, byte(abs32(dx)))
		default:
			xBytes = append(xBytes, byte(dx>>8), byte(dx))
		}
		switch {
		case dy == 0:
			outFlag |= kGlyfThisYIsSame
		case -256 < dy && dy < 256:
			outFlag |= kGlyfYShort
			if dy > 0 {
				outFlag |= kGlyfThisYIsSame
			}
			yBytes = append(yBytes, byte(abs32(dy)))
		default:
			yBytes = append(yBytes, byte(dy>>8), byte(dy))
		}

		if int(outFlag) == lastFlag && repeatCount != 255 {
			flagBytes[len(flagBytes)-1] |= kGlyfRepeat
			repeatCount++
		} else {
			if repeatCount != 0 {
				flagBytes = append(flagBytes, byte(repeatCount))
				repeatCount = 0
			}
			flagBytes = append(flagBytes, outFlag)
			lastFlag = int(outFlag)
		}
	}
	if repeatCount != 0 {
		flagBytes = append(flagBytes, byte(repeatCount))
	}
	if flagStream.EOF() || glyphStream.EOF() {
		return fail(newErr(KindTruncated, "glyph %d: flag or glyph stream exhausted", iGlyph))
	}

	instructionLength := read255UInt16(glyphStream)
	instructions := instructionStream.ReadBytes(uint32(instructionLength))
	if instructionStream.EOF() {
		return fail(instructionStream.Err())
	}

	if err := writeInt16(out, nContours); err != nil {
		return err
	}
	for _, v := range [4]int16{int16(xMin), int16(yMin), int16(xMax), int16(yMax)} {
		if err := writeInt16(out, v); err != nil {
			return err
		}
	}
	for _, e := range endPtsOfContours {
		if err := writeUint16(out, e); err != nil {
			return err
		}
	}
	if err := writeUint16(out, instructionLength); err != nil {
		return err
	}
	if err := out.Append(instructions); err != nil {
		return err
	}
	if err := out.Append(flagBytes); err != nil {
		return err
	}
	if err := out.Append(xBytes); err != nil {
		return err
	}
	if err := out.Append(yBytes); err != nil {
		return err
	}
	return nil
}

func reconstructCompositeGlyph(out Sink, nContours int16, bboxStream, compositeStream, glyphStream, instructionStream *ByteReader, iGlyph uint16) error {
	xMin := bboxStream.ReadInt16()
	yMin := bboxStream.ReadInt16()
	xMax := bboxStream.ReadInt16()
	yMax := bboxStream.ReadInt16()
	if bboxStream.EOF() {
		return fail(bboxStream.Err())
	}

	if err := writeInt16(out, nContours); err != nil {
		return err
	}
	for _, v := range [4]int16{xMin, yMin, xMax, yMax} {
		if err := writeInt16(out, v); err != nil {
			return err
		}
	}

	hasInstructions := false
	for {
		compositeFlag := compositeStream.ReadUint16()
		argsAreWords := compositeFlag&0x0001 != 0
		haveScale := compositeFlag&0x0008 != 0
		moreComponents := compositeFlag&0x0020 != 0
		haveXYScales := compositeFlag&0x0040 != 0
		have2by2 := compositeFlag&0x0080 != 0
		haveInstructions := compositeFlag&0x0100 != 0

		numBytes := uint32(4)
		if argsAreWords {
			numBytes += 2
		}
		switch {
		case haveScale:
			numBytes += 2
		case haveXYScales:
			numBytes += 4
		case have2by2:
			numBytes += 8
		}
		compositeBytes := compositeStream.ReadBytes(numBytes)
		if compositeStream.EOF() {
			return fail(compositeStream.Err())
		}

		if err := writeUint16(out, compositeFlag); err != nil {
			return err
		}
		if err := out.Append(compositeBytes); err != nil {
			return err
		}

		if haveInstructions {
			hasInstructions = true
		}
		if !moreComponents {
			break
		}
	}

	if hasInstructions {
		instructionLength := read255UInt16(glyphStream)
		instructions := instructionStream.ReadBytes(uint32(instructionLength))
		if instructionStream.EOF() {
			return fail(instructionStream.Err())
		}
		if err := writeUint16(out, instructionLength); err != nil {
			return err
		}
		if err := out.Append(instructions); err != nil {
			return err
		}
	}
	_ = iGlyph
	return nil
}

func writeInt16(s Sink, v int16) error {
	return writeUint16(s, uint16(v))
}
