// Package gzip recognizes single gzip members and exposes the decompressed
// payload as a derived entry.
package gzip

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"unravel/parser"
)

type Parser struct{}

func (Parser) Name() string { return "gzip" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: []byte{0x1f, 0x8b, 0x08}}}
}

func (Parser) Extensions() []string { return nil }

type member struct {
	header       gzip.Header
	size         int64
	uncompressed int64
	stream       *parser.Stream
	offset       int64
}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	flags, err := s.Uint8(offset + 3)
	if err != nil {
		return nil, err
	}
	if err := parser.Check(flags&0xe0 == 0, "reserved flags set"); err != nil {
		return nil, err
	}

	cur, err := s.Cursor(offset)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(cur)
	if err != nil {
		return nil, parser.Classify(err, "gzip header")
	}
	defer zr.Close()
	zr.Multistream(false)
	n, err := io.Copy(io.Discard, zr)
	if err != nil {
		return nil, parser.Classify(err, "gzip data")
	}
	return &member{
		header:       zr.Header,
		size:         cur.Consumed(),
		uncompressed: n,
		stream:       s,
		offset:       offset,
	}, nil
}

func (m *member) UnpackedSize() int64 { return m.size }

func (m *member) Collect() parser.Collected {
	meta := map[string]any{
		"uncompressed_size": m.uncompressed,
		"os":                m.header.OS,
	}
	if m.header.Name != "" {
		meta["name"] = m.header.Name
	}
	if m.header.Comment != "" {
		meta["comment"] = m.header.Comment
	}
	if !m.header.ModTime.IsZero() {
		meta["modification_time"] = m.header.ModTime.UTC().Format(time.RFC3339)
	}
	return parser.Collected{Labels: []string{"gzip", "compressed"}, Metadata: meta}
}

func (m *member) Entries() []parser.Entry {
	return []parser.Entry{{
		Name:   m.entryName(),
		Offset: parser.Derived,
		Size:   m.uncompressed,
		Open: func() (io.ReadCloser, error) {
			sec, err := m.stream.Section(m.offset, m.size)
			if err != nil {
				return nil, err
			}
			zr, err := gzip.NewReader(sec)
			if err != nil {
				return nil, err
			}
			zr.Multistream(false)
			return zr, nil
		},
	}}
}

func (m *member) entryName() string {
	if name := path.Base(strings.ReplaceAll(m.header.Name, "\\", "/")); name != "" && name != "." && name != "/" {
		return name
	}
	base := path.Base(m.stream.Name())
	for _, ext := range []string{".gz", ".tgz"} {
		if strings.HasSuffix(strings.ToLower(base), ext) && len(base) > len(ext) {
			trimmed := base[:len(base)-len(ext)]
			if ext == ".tgz" {
				return trimmed + ".tar"
			}
			return trimmed
		}
	}
	return "unpacked-from-gzip"
}
