// Package gimpbrush recognizes GIMP brush (.gbr) images, version 2.
package gimpbrush

import (
	"bytes"
	"encoding/binary"

	"unravel/parser"
)

const (
	magicOffset   = 20
	minHeaderSize = 28
)

var magic = []byte("GIMP")

type Parser struct{}

func (Parser) Name() string { return "gimpbrush" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: magicOffset, Pattern: magic}}
}

func (Parser) Extensions() []string { return []string{".gbr"} }

type header struct {
	HeaderSize uint32
	Version    uint32
	Width      uint32
	Height     uint32
	ColorDepth uint32
	Magic      [4]byte
	Spacing    uint32
}

type brush struct {
	hdr  header
	name string
	size int64
}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	raw, err := s.Bytes(offset, minHeaderSize)
	if err != nil {
		return nil, err
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &hdr); err != nil {
		return nil, parser.Violation("header: %v", err)
	}
	if !bytes.Equal(hdr.Magic[:], magic) {
		return nil, parser.Mismatch("no GIMP magic")
	}
	checks := []struct {
		ok     bool
		reason string
	}{
		{hdr.Version > 0 && hdr.Version < 3, "invalid version"},
		{hdr.Version == 2, "unsupported version"},
		{hdr.Width > 0, "invalid width"},
		{hdr.Height > 0, "invalid height"},
		{hdr.ColorDepth > 0, "invalid color depth"},
		{hdr.HeaderSize >= minHeaderSize, "invalid header size"},
	}
	for _, c := range checks {
		if err := parser.Check(c.ok, c.reason); err != nil {
			return nil, err
		}
	}

	bodySize := int64(hdr.Width) * int64(hdr.Height) * int64(hdr.ColorDepth)
	size := int64(hdr.HeaderSize) + bodySize
	if err := parser.Check(s.Has(offset, size), "not enough data"); err != nil {
		return nil, err
	}

	nameBytes, err := s.Bytes(offset+minHeaderSize, int64(hdr.HeaderSize)-minHeaderSize)
	if err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
		nameBytes = nameBytes[:i]
	}
	return &brush{hdr: hdr, name: string(nameBytes), size: size}, nil
}

func (b *brush) UnpackedSize() int64 { return b.size }

func (b *brush) Collect() parser.Collected {
	meta := map[string]any{
		"width":       b.hdr.Width,
		"height":      b.hdr.Height,
		"color_depth": b.hdr.ColorDepth,
		"spacing":     b.hdr.Spacing,
	}
	if b.name != "" {
		meta["name"] = b.name
	}
	return parser.Collected{
		Labels:   []string{"gimp brush", "graphics"},
		Metadata: meta,
	}
}
