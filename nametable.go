package woff2

import (
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// decodeNameString decodes one `name` table string record into UTF-8. The
// platform/encoding IDs follow the OpenType `name` table spec: Windows
// (platform 3) and most of Unicode platform (0) are UTF-16BE, while
// Macintosh Roman (platform 1, encoding 0) uses the classic Mac Roman
// single-byte encoding.
func decodeNameString(platformID, encodingID uint16, b []byte) (string, error) {
	switch {
	case platformID == 3 || platformID == 0:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case platformID == 1 && encodingID == 0:
		out, err := charmap.Macintosh.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return string(b), nil
	}
}

// NameRecord is one entry of the `name` table's record array.
type NameRecord struct {
	PlatformID uint16
	EncodingID uint16
	LanguageID uint16
	NameID     uint16
	Value      string
}

// ReadNameTable parses an OpenType `name` table (format 0 or 1) and decodes
// every record's string via the platform/encoding-appropriate charset.
func ReadNameTable(b []byte) ([]NameRecord, error) {
	r := NewByteReader(b)
	_ = r.ReadUint16() // format
	count := r.ReadUint16()
	stringOffset := r.ReadUint16()
	if r.EOF() {
		return nil, fail(r.Err())
	}

	type rawRecord struct {
		platformID, encodingID, languageID, nameID, length, offset uint16
	}
	raws := make([]rawRecord, count)
	for i := range raws {
		raws[i] = rawRecord{
			platformID: r.ReadUint16(),
			encodingID: r.ReadUint16(),
			languageID: r.ReadUint16(),
			nameID:     r.ReadUint16(),
			length:     r.ReadUint16(),
			offset:     r.ReadUint16(),
		}
	}
	if r.EOF() {
		return nil, fail(r.Err())
	}

	records := make([]NameRecord, 0, count)
	for _, raw := range raws {
		start := uint32(stringOffset) + uint32(raw.offset)
		end := start + uint32(raw.length)
		if end > uint32(len(b)) {
			return nil, fail(newErr(KindTruncated, "name: string record exceeds table length"))
		}
		value, err := decodeNameString(raw.platformID, raw.encodingID, b[start:end])
		if err != nil {
			return nil, err
		}
		records = append(records, NameRecord{
			PlatformID: raw.platformID,
			EncodingID: raw.encodingID,
			LanguageID: raw.languageID,
			NameID:     raw.nameID,
			Value:      value,
		})
	}
	return records, nil
}
