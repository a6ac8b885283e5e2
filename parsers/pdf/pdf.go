// Package pdf recognizes PDF documents. The document ends at the last %%EOF
// marker before the next document header, which covers incremental updates.
package pdf

import (
	"bytes"

	"unravel/metadata"
	"unravel/parser"
)

var (
	header  = []byte("%PDF-")
	trailer = []byte("%%EOF")
)

const window = 64 * 1024

type Parser struct{}

func (Parser) Name() string { return "pdf" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: header}}
}

func (Parser) Extensions() []string { return []string{".pdf"} }

type document struct {
	size    int64
	version string
	info    map[string]interface{}
}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	head, err := s.Bytes(offset, 8)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(head, header) {
		return nil, parser.Mismatch("no pdf header")
	}
	if err := parser.Check(head[5] >= '1' && head[5] <= '2' && head[6] == '.', "invalid pdf version"); err != nil {
		return nil, err
	}

	end, err := findEnd(s, offset)
	if err != nil {
		return nil, err
	}
	if end < 0 {
		return nil, parser.Violation("no %%%%EOF marker")
	}
	size := end - offset

	sec, err := s.Section(offset, size)
	if err != nil {
		return nil, err
	}
	info, err := metadata.PDFMetadata(sec, s.Name())
	if err != nil {
		return nil, parser.Classify(err, "pdf structure")
	}
	return &document{size: size, version: string(head[5:8]), info: info}, nil
}

// findEnd returns the stream offset just past the last trailer marker and its
// end of line, or -1 when the document has none.
func findEnd(s *parser.Stream, offset int64) (int64, error) {
	end := int64(-1)
	overlap := int64(len(header) - 1)
	pos := offset + int64(len(header))
	buf := make([]byte, window)
	for pos < s.Size() {
		n := int64(window)
		if rest := s.Size() - pos; rest < n {
			n = rest
		}
		chunk := buf[:n]
		if _, err := s.ReadAt(chunk, pos); err != nil {
			return 0, err
		}
		limit := len(chunk)
		if next := bytes.Index(chunk, header); next >= 0 {
			limit = next
		}
		if idx := bytes.LastIndex(chunk[:limit], trailer); idx >= 0 {
			end = pos + int64(idx+len(trailer))
		}
		if limit < len(chunk) || pos+n >= s.Size() {
			break
		}
		pos += n - overlap
	}
	if end < 0 {
		return end, nil
	}
	eol, err := s.Bytes(end, min(2, s.Size()-end))
	if err != nil {
		return 0, err
	}
	switch {
	case bytes.HasPrefix(eol, []byte("\r\n")):
		end += 2
	case len(eol) > 0 && (eol[0] == '\n' || eol[0] == '\r'):
		end++
	}
	return end, nil
}

func (d *document) UnpackedSize() int64 { return d.size }

func (d *document) Collect() parser.Collected {
	meta := map[string]any{"version": d.version}
	for k, v := range d.info {
		meta[k] = v
	}
	return parser.Collected{Labels: []string{"pdf", "document"}, Metadata: meta}
}
