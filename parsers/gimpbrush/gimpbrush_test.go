package gimpbrush

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"unravel/parser"
)

func buildBrush(version, width, height, depth uint32, name string, body int) []byte {
	var buf bytes.Buffer
	headerSize := uint32(minHeaderSize + len(name) + 1)
	for _, v := range []uint32{headerSize, version, width, height, depth} {
		binary.Write(&buf, binary.BigEndian, v)
	}
	buf.WriteString("GIMP")
	binary.Write(&buf, binary.BigEndian, uint32(10))
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.Write(bytes.Repeat([]byte{0x7f}, body))
	return buf.Bytes()
}

func parse(data []byte, offset int64) (parser.Parsed, error) {
	s := parser.NewStream(bytes.NewReader(data), int64(len(data)), "test.gbr")
	return Parser{}.Parse(s, offset)
}

func TestParseValidBrush(t *testing.T) {
	data := buildBrush(2, 4, 3, 1, "dots", 12)
	p, err := parse(data, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UnpackedSize() != int64(len(data)) {
		t.Fatalf("size = %d, want %d", p.UnpackedSize(), len(data))
	}
	c := p.Collect()
	if strings.Join(c.Labels, ",") != "gimp brush,graphics" {
		t.Fatalf("labels = %v", c.Labels)
	}
	if c.Metadata["width"] != uint32(4) || c.Metadata["height"] != uint32(3) || c.Metadata["name"] != "dots" {
		t.Fatalf("metadata = %v", c.Metadata)
	}
}

func TestParseAtOffsetWithTrailingData(t *testing.T) {
	brush := buildBrush(2, 2, 2, 4, "x", 16)
	data := append(append(bytes.Repeat([]byte{0}, 100), brush...), []byte("trailer")...)
	p, err := parse(data, 100)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UnpackedSize() != int64(len(brush)) {
		t.Fatalf("size = %d, want %d", p.UnpackedSize(), len(brush))
	}
}

func TestParseOversizeBodyIsNotEnoughData(t *testing.T) {
	data := buildBrush(2, 64, 64, 4, "big", 10)
	_, err := parse(data, 0)
	var se *parser.StructuralError
	if !errors.As(err, &se) || se.Reason != "not enough data" {
		t.Fatalf("expected not enough data, got %v", err)
	}
}

func TestParseRejectsBadHeaders(t *testing.T) {
	cases := map[string][]byte{
		"version 1":  buildBrush(1, 1, 1, 1, "a", 1),
		"version 3":  buildBrush(3, 1, 1, 1, "a", 1),
		"zero width": buildBrush(2, 0, 1, 1, "a", 0),
		"zero depth": buildBrush(2, 1, 1, 0, "a", 0),
	}
	for name, data := range cases {
		if _, err := parse(data, 0); !parser.IsStructural(err) {
			t.Errorf("%s: expected structural error, got %v", name, err)
		}
	}
}

func TestParseWithoutMagicIsMismatch(t *testing.T) {
	data := buildBrush(2, 1, 1, 1, "a", 1)
	copy(data[20:], "PMIG")
	if _, err := parse(data, 0); !errors.Is(err, parser.ErrSignatureMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
