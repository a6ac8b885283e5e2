// Package xar recognizes eXtensible ARchive files and unpacks their members.
package xar

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zlib"

	"unravel/parser"
)

const (
	fixedHeaderSize = 28
	maxTOCSize      = 64 << 20

	encodingStored = "application/octet-stream"
	encodingZlib   = "application/x-gzip"
	encodingBzip2  = "application/x-bzip2"
)

type Parser struct{}

func (Parser) Name() string { return "xar" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: []byte("xar!")}}
}

func (Parser) Extensions() []string { return nil }

type header struct {
	Magic           [4]byte
	HeaderSize      uint16
	Version         uint16
	TOCCompressed   uint64
	TOCUncompressed uint64
	ChecksumAlg     uint32
}

type document struct {
	XMLName xml.Name  `xml:"xar"`
	TOCs    []tocNode `xml:"toc"`
}

type tocNode struct {
	CreationTime string        `xml:"creation-time"`
	Checksum     *checksumNode `xml:"checksum"`
	Files        []fileNode    `xml:"file"`
}

type checksumNode struct {
	Style  string `xml:"style,attr"`
	Offset int64  `xml:"offset"`
	Size   int64  `xml:"size"`
}

type fileNode struct {
	ID    string     `xml:"id,attr"`
	Name  string     `xml:"name"`
	Type  string     `xml:"type"`
	Data  *dataNode  `xml:"data"`
	EAs   []dataNode `xml:"ea"`
	Files []fileNode `xml:"file"`
}

type dataNode struct {
	Offset   int64 `xml:"offset"`
	Length   int64 `xml:"length"`
	Size     int64 `xml:"size"`
	Encoding struct {
		Style string `xml:"style,attr"`
	} `xml:"encoding"`
}

type member struct {
	name string
	data dataNode
}

type archive struct {
	hdr       header
	heapStart int64
	size      int64
	toc       tocNode
	members   []member
	stream    *parser.Stream
	offset    int64
}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	raw, err := s.Bytes(offset, fixedHeaderSize)
	if err != nil {
		return nil, err
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &hdr); err != nil {
		return nil, parser.Violation("header: %v", err)
	}
	if string(hdr.Magic[:]) != "xar!" {
		return nil, parser.Mismatch("no xar magic")
	}
	if err := parser.Check(hdr.HeaderSize >= fixedHeaderSize, "invalid header size"); err != nil {
		return nil, err
	}
	if err := parser.Check(hdr.Version == 1, "unsupported version"); err != nil {
		return nil, err
	}
	if err := parser.Check(hdr.TOCUncompressed > 0 && hdr.TOCUncompressed <= maxTOCSize, "invalid uncompressed TOC length"); err != nil {
		return nil, err
	}
	tocStart := offset + int64(hdr.HeaderSize)
	if err := parser.Check(hdr.TOCCompressed > 0 && s.Has(tocStart, int64(hdr.TOCCompressed)), "invalid compressed TOC length"); err != nil {
		return nil, err
	}

	compressed, err := s.Section(tocStart, int64(hdr.TOCCompressed))
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(compressed)
	if err != nil {
		return nil, parser.Violation("TOC is not zlib compressed: %v", err)
	}
	defer zr.Close()
	xmlData, err := io.ReadAll(io.LimitReader(zr, int64(hdr.TOCUncompressed)+1))
	if err != nil {
		return nil, parser.Violation("TOC decompression: %v", err)
	}
	if err := parser.Check(uint64(len(xmlData)) == hdr.TOCUncompressed, "invalid uncompressed TOC length"); err != nil {
		return nil, err
	}

	var doc document
	if err := xml.Unmarshal(xmlData, &doc); err != nil {
		return nil, parser.Violation("invalid TOC: %v", err)
	}
	if err := parser.Check(len(doc.TOCs) == 1, `invalid TOC, "toc" element not found`); err != nil {
		return nil, err
	}

	a := &archive{
		hdr:    hdr,
		toc:    doc.TOCs[0],
		stream: s,
		offset: offset,
	}
	// Heap offsets are relative to the end of the compressed TOC.
	a.heapStart = int64(hdr.HeaderSize) + int64(hdr.TOCCompressed)
	a.size = a.heapStart
	available := s.Size() - offset

	heapSize := available - a.heapStart
	if cs := a.toc.Checksum; cs != nil {
		if err := parser.Check(inHeap(cs.Offset, cs.Size, heapSize), "checksum cannot be outside of file"); err != nil {
			return nil, err
		}
		a.size = max(a.size, a.heapStart+cs.Offset+cs.Size)
	}

	var walk func(dir string, files []fileNode) error
	walk = func(dir string, files []fileNode) error {
		for _, f := range files {
			name := path.Join(dir, f.Name)
			blocks := f.EAs
			if f.Data != nil {
				blocks = append([]dataNode{*f.Data}, blocks...)
			}
			for _, d := range blocks {
				if err := parser.Check(inHeap(d.Offset, d.Length, heapSize), "file data cannot be outside of file"); err != nil {
					return err
				}
				a.size = max(a.size, a.heapStart+d.Offset+d.Length)
			}
			if f.Type == "file" && f.Data != nil {
				a.members = append(a.members, member{name: name, data: *f.Data})
			}
			if err := walk(name, f.Files); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", a.toc.Files); err != nil {
		return nil, err
	}
	return a, nil
}

// inHeap reports whether [off, off+n) lies inside a heap of heapSize bytes.
func inHeap(off, n, heapSize int64) bool {
	return off >= 0 && n >= 0 && off <= heapSize && n <= heapSize-off
}

func (a *archive) UnpackedSize() int64 { return a.size }

func (a *archive) Collect() parser.Collected {
	meta := map[string]any{
		"toc_length_compressed":   a.hdr.TOCCompressed,
		"toc_length_uncompressed": a.hdr.TOCUncompressed,
		"checksum_algorithm":      checksumName(a.hdr.ChecksumAlg),
		"files":                   len(a.members),
	}
	if a.toc.CreationTime != "" {
		meta["creation_time"] = strings.TrimSpace(a.toc.CreationTime)
	}
	return parser.Collected{Labels: []string{"archive", "xar"}, Metadata: meta}
}

func (a *archive) Entries() []parser.Entry {
	entries := make([]parser.Entry, 0, len(a.members))
	for _, m := range a.members {
		start := a.heapStart + m.data.Offset
		length := m.data.Length
		section := func() (*io.SectionReader, error) {
			return a.stream.Section(a.offset+start, length)
		}
		switch m.data.Encoding.Style {
		case encodingZlib:
			entries = append(entries, parser.Entry{
				Name:   m.name,
				Offset: parser.Derived,
				Size:   m.data.Size,
				Open: func() (io.ReadCloser, error) {
					sec, err := section()
					if err != nil {
						return nil, err
					}
					return zlib.NewReader(sec)
				},
			})
		case encodingBzip2:
			entries = append(entries, parser.Entry{
				Name:   m.name,
				Offset: parser.Derived,
				Size:   m.data.Size,
				Open: func() (io.ReadCloser, error) {
					sec, err := section()
					if err != nil {
						return nil, err
					}
					return io.NopCloser(bzip2.NewReader(sec)), nil
				},
			})
		default:
			// Stored members, and encodings without a decoder, are exposed
			// as the raw heap range.
			var labels []string
			if m.data.Encoding.Style != "" && m.data.Encoding.Style != encodingStored {
				labels = []string{"compressed"}
			}
			entries = append(entries, parser.Entry{
				Name:   m.name,
				Offset: start,
				Size:   length,
				Labels: labels,
				Open: func() (io.ReadCloser, error) {
					sec, err := section()
					if err != nil {
						return nil, err
					}
					return io.NopCloser(sec), nil
				},
			})
		}
	}
	return entries
}

func checksumName(alg uint32) string {
	switch alg {
	case 0:
		return "none"
	case 1:
		return "sha1"
	case 2:
		return "md5"
	case 3:
		return "other"
	default:
		return "unknown"
	}
}
