package scanner

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/cloudflare/ahocorasick"

	"unravel/parser"
)

// Candidate is a place where a parser's signature matched.
type Candidate struct {
	Offset   int64
	Parser   parser.Parser
	Priority int
	// Span is the signature offset plus pattern length: the smallest size a
	// claim started by this candidate may have.
	Span  int64
	order int
}

type signatureUse struct {
	reg       parser.Registered
	sigOffset int64
}

// SignatureScanner finds signature matches in bounded windows. All distinct
// patterns share one automaton that tells which patterns occur in a window;
// their positions are then located with bytes.Index.
type SignatureScanner struct {
	matcher    *ahocorasick.Matcher
	patterns   [][]byte
	uses       [][]signatureUse
	extensions []parser.Registered
	maxLen     int
	readSize   int
}

func NewSignatureScanner(reg *parser.Registry, readSize int) *SignatureScanner {
	if readSize <= 0 {
		readSize = 10240
	}
	s := &SignatureScanner{readSize: readSize}
	index := make(map[string]int)
	for _, r := range reg.Parsers() {
		sigs := r.Parser.Signatures()
		if len(sigs) == 0 {
			s.extensions = append(s.extensions, r)
			continue
		}
		for _, sig := range sigs {
			key := string(sig.Pattern)
			idx, ok := index[key]
			if !ok {
				idx = len(s.patterns)
				index[key] = idx
				s.patterns = append(s.patterns, sig.Pattern)
				s.uses = append(s.uses, nil)
				if len(sig.Pattern) > s.maxLen {
					s.maxLen = len(sig.Pattern)
				}
			}
			s.uses[idx] = append(s.uses[idx], signatureUse{reg: r, sigOffset: sig.Offset})
		}
	}
	if len(s.patterns) > 0 {
		s.matcher = ahocorasick.NewMatcher(s.patterns)
	}
	return s
}

type candidateKey struct {
	offset int64
	order  int
}

// Scan returns every candidate in r, ordered by offset, then priority, then
// registration order. Windows of readSize bytes are extended by the longest
// pattern length minus one, and a match is only reported by the window whose
// own range contains its first byte, so boundary matches are seen exactly
// once.
func (s *SignatureScanner) Scan(ctx context.Context, r io.ReaderAt, size int64, name string) ([]Candidate, error) {
	var out []Candidate
	seen := make(map[candidateKey]struct{})
	add := func(c Candidate) {
		key := candidateKey{offset: c.Offset, order: c.order}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	if s.matcher != nil && size > 0 {
		overlap := int64(s.maxLen - 1)
		buf := make([]byte, int64(s.readSize)+overlap)
		for start := int64(0); start < size; start += int64(s.readSize) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			n := int64(len(buf))
			if start+n > size {
				n = size - start
			}
			window := buf[:n]
			got, err := r.ReadAt(window, start)
			if int64(got) < n {
				if err == nil || err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return nil, &parser.IOError{Op: "scan", Err: err}
			}
			for _, idx := range s.matcher.MatchThreadSafe(window) {
				s.locate(window, start, idx, size, add)
			}
		}
	}

	for _, r := range s.extensions {
		if parser.HasExtension(name, r.Parser.Extensions()) {
			add(Candidate{Offset: 0, Parser: r.Parser, Priority: r.Priority, order: r.Order()})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].order < out[j].order
	})
	return out, nil
}

func (s *SignatureScanner) locate(window []byte, start int64, idx int, size int64, add func(Candidate)) {
	pattern := s.patterns[idx]
	stride := int64(s.readSize)
	for from := 0; from < len(window); {
		i := bytes.Index(window[from:], pattern)
		if i < 0 {
			return
		}
		pos := int64(from + i)
		if pos >= stride {
			// owned by the next window
			return
		}
		abs := start + pos
		for _, use := range s.uses[idx] {
			off := abs - use.sigOffset
			if off < 0 {
				continue
			}
			span := use.sigOffset + int64(len(pattern))
			if off+span > size {
				continue
			}
			add(Candidate{
				Offset:   off,
				Parser:   use.reg.Parser,
				Priority: use.reg.Priority,
				Span:     span,
				order:    use.reg.Order(),
			})
		}
		from += i + 1
	}
}
