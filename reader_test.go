package woff2

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestReadBase128(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7F}, 127},
		{[]byte{0x81, 0x00}, 128},
		{[]byte{0x87, 0x68}, 1000},
		{[]byte{0xFF, 0xFF, 0xFF, 0x7F}, 0x0FFFFFFF},
	}
	for _, c := range cases {
		r := NewByteReader(c.in)
		got, err := readBase128(r)
		test.That(t, err == nil, "unexpected error", err)
		test.T(t, got, c.want)
	}
}

func TestReadBase128LeadingZero(t *testing.T) {
	r := NewByteReader([]byte{0x80, 0x00})
	_, err := readBase128(r)
	test.That(t, err != nil, "expected error for leading zero byte")
	test.T(t, err.Kind, KindBadDirectory)
}

func TestReadBase128Overflow(t *testing.T) {
	r := NewByteReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	_, err := readBase128(r)
	test.That(t, err != nil, "expected overflow error")
	test.T(t, err.Kind, KindArithmeticOverflow)
}

func TestRead255UInt16(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint16
	}{
		{[]byte{0}, 0},
		{[]byte{252}, 252},
		{[]byte{253, 0x01, 0x00}, 256},
		{[]byte{254, 0x00}, 253},
		{[]byte{254, 0xFF}, 253 + 255},
		{[]byte{255, 0x00}, 506},
		{[]byte{255, 0xFF}, 506 + 255},
	}
	for _, c := range cases {
		r := NewByteReader(c.in)
		got := read255UInt16(r)
		test.T(t, got, c.want)
		test.That(t, !r.EOF(), "unexpected EOF")
	}
}

func TestByteReaderTruncated(t *testing.T) {
	r := NewByteReader([]byte{0x01, 0x02})
	r.ReadUint32()
	test.That(t, r.EOF(), "expected EOF on short read")
	test.T(t, r.Err().Kind, KindTruncated)
}

func TestComputeULongSum(t *testing.T) {
	test.T(t, ComputeULongSum([]byte{0, 0, 0, 1}), uint32(1))
	test.T(t, ComputeULongSum([]byte{0, 0, 0, 1, 0, 0, 0, 2}), uint32(3))
	test.T(t, ComputeULongSum([]byte{0, 0, 1}), uint32(1)<<8)
}
