package scanner

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync/atomic"

	"unravel/logger"
	"unravel/parser"
)

func init() {
	logger.Init("error")
}

// fakeParser is a configurable parser for dispatch and session tests.
type fakeParser struct {
	name  string
	sigs  []parser.Signature
	exts  []string
	parse func(s *parser.Stream, off int64) (parser.Parsed, error)
}

func (p *fakeParser) Name() string                  { return p.name }
func (p *fakeParser) Signatures() []parser.Signature { return p.sigs }
func (p *fakeParser) Extensions() []string          { return p.exts }
func (p *fakeParser) Parse(s *parser.Stream, off int64) (parser.Parsed, error) {
	return p.parse(s, off)
}

type fakeParsed struct {
	size    int64
	labels  []string
	entries []parser.Entry
	collect func()
}

func (p *fakeParsed) UnpackedSize() int64 { return p.size }

func (p *fakeParsed) Collect() parser.Collected {
	if p.collect != nil {
		p.collect()
	}
	return parser.Collected{Labels: p.labels}
}

func (p *fakeParsed) Entries() []parser.Entry { return p.entries }

func sig(pattern string) []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: []byte(pattern)}}
}

func fixedSize(size int64, labels ...string) func(*parser.Stream, int64) (parser.Parsed, error) {
	return func(*parser.Stream, int64) (parser.Parsed, error) {
		return &fakeParsed{size: size, labels: labels}, nil
	}
}

// countingParser claims "CNTR" + big endian length + body and counts how
// often its metadata is collected.
func countingParser(collects *atomic.Int64) *fakeParser {
	return &fakeParser{
		name: "cntr",
		sigs: sig("CNTR"),
		parse: func(s *parser.Stream, off int64) (parser.Parsed, error) {
			n, err := s.Uint32(off+4, binary.BigEndian)
			if err != nil {
				return nil, err
			}
			size := 8 + int64(n)
			if err := parser.Check(s.Has(off, size), "not enough data"); err != nil {
				return nil, err
			}
			return &fakeParsed{size: size, labels: []string{"counted"}, collect: func() { collects.Add(1) }}, nil
		},
	}
}

func counted(body string) []byte {
	var buf bytes.Buffer
	buf.WriteString("CNTR")
	binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.WriteString(body)
	return buf.Bytes()
}

func newRegistry(parsers ...*fakeParser) *parser.Registry {
	reg := parser.NewRegistry()
	for i, p := range parsers {
		reg.MustRegister(p, len(parsers)-i)
	}
	return reg
}

func scanBytes(s *SignatureScanner, data []byte, name string) ([]Candidate, error) {
	return s.Scan(context.Background(), bytes.NewReader(data), int64(len(data)), name)
}
