package scanner

import (
	"errors"
	"fmt"
	"sort"

	"unravel/logger"
	"unravel/parser"
	"unravel/result"
)

// ErrParserFault marks a parser that panicked or broke its contract. Its
// result is never accepted.
var ErrParserFault = errors.New("parser fault")

// DispatchStats counts what happened to the candidates of one file.
type DispatchStats struct {
	Tried    int
	Mismatch int
	Corrupt  int
	Faults   int
	Accepted int
}

// accepted is a validated claim together with the parse result behind it.
type accepted struct {
	claim   result.Claim
	parser  parser.Parser
	parsed  parser.Parsed
	entries []parser.Entry
}

// dispatch resolves candidates into non-overlapping claims. Candidates must be
// in Scan order. The first success at an offset locks its range; candidates
// inside a locked range are skipped. Only an IOError aborts.
func dispatch(stream *parser.Stream, cands []Candidate, path string) ([]accepted, DispatchStats, error) {
	var (
		claims []accepted
		stats  DispatchStats
		done   = int64(-1)
	)
	for _, c := range cands {
		if c.Offset == done || locked(claims, c.Offset) {
			continue
		}
		name := c.Parser.Name()
		log := logger.WithFields(logger.Fields{"file": path, "parser": name, "offset": c.Offset})

		stats.Tried++
		parsed, err := safeParse(c.Parser, stream, c.Offset)
		if err == nil {
			err = validateClaim(parsed, c, stream.Size(), claims)
		}
		switch {
		case err == nil:
		case errors.Is(err, parser.ErrSignatureMismatch):
			stats.Mismatch++
			log.Debugf("Candidate rejected: %v", err)
			continue
		case errors.Is(err, ErrParserFault):
			stats.Faults++
			log.Errorf("Parser fault: %v", err)
			continue
		case parser.IsIO(err):
			return claims, stats, fmt.Errorf("%s at 0x%x: %w", name, c.Offset, err)
		default:
			stats.Corrupt++
			log.WithField("corrupt", true).Debugf("Candidate failed validation: %v", parser.Attribute(err, name, c.Offset))
			continue
		}

		size := parsed.UnpackedSize()
		entries, err := safeEntries(parsed)
		if err != nil {
			stats.Faults++
			log.Errorf("Parser fault: %v", err)
			continue
		}
		claims = append(claims, accepted{
			claim:   result.Claim{Offset: c.Offset, Size: size, Parser: name},
			parser:  c.Parser,
			parsed:  parsed,
			entries: validateEntries(entries, size, log),
		})
		stats.Accepted++
		done = c.Offset
	}
	return claims, stats, nil
}

func locked(claims []accepted, off int64) bool {
	for i := range claims {
		if off >= claims[i].claim.Offset && off < claims[i].claim.Offset+claims[i].claim.Size {
			return true
		}
	}
	return false
}

// validateClaim applies the checks every claim must pass regardless of
// format.
func validateClaim(parsed parser.Parsed, c Candidate, fileSize int64, claims []accepted) error {
	size := parsed.UnpackedSize()
	if err := parser.Check(size > 0, "unpacked size must be positive"); err != nil {
		return err
	}
	if size > fileSize-c.Offset {
		return parser.Violation("claim [0x%x,+%d) exceeds file size %d", c.Offset, size, fileSize)
	}
	if size < c.Span {
		return parser.Violation("claim of %d bytes is shorter than its signature span %d", size, c.Span)
	}
	want := result.Extent{Offset: c.Offset, Size: size}
	for i := range claims {
		have := result.Extent{Offset: claims[i].claim.Offset, Size: claims[i].claim.Size}
		if want.Overlaps(have) {
			return parser.Violation("claim overlaps %s claim at 0x%x", claims[i].claim.Parser, have.Offset)
		}
	}
	return nil
}

// validateEntries drops entries that leave the claim, overlap an earlier
// ranged entry or cannot be opened. Order is preserved.
func validateEntries(entries []parser.Entry, size int64, log interface{ Warnf(string, ...interface{}) }) []parser.Entry {
	if len(entries) == 0 {
		return nil
	}
	keep := make([]bool, len(entries))
	var ranged []int
	for i, e := range entries {
		switch {
		case e.IsDerived():
			if e.Open == nil {
				log.Warnf("Dropping derived entry %q without content", e.Name)
				continue
			}
			keep[i] = true
		case e.Size < 0 || e.Offset > size || e.Size > size-e.Offset:
			log.Warnf("Dropping entry %q [0x%x,+%d) outside claim of %d bytes", e.Name, e.Offset, e.Size, size)
		default:
			keep[i] = true
			ranged = append(ranged, i)
		}
	}
	sort.SliceStable(ranged, func(a, b int) bool {
		return entries[ranged[a]].Offset < entries[ranged[b]].Offset
	})
	end := int64(0)
	for _, i := range ranged {
		e := entries[i]
		if e.Offset < end {
			log.Warnf("Dropping entry %q overlapping a previous entry", e.Name)
			keep[i] = false
			continue
		}
		if e.Offset+e.Size > end {
			end = e.Offset + e.Size
		}
	}
	out := make([]parser.Entry, 0, len(entries))
	for i, e := range entries {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

func safeParse(p parser.Parser, s *parser.Stream, off int64) (parsed parser.Parsed, err error) {
	defer func() {
		if r := recover(); r != nil {
			parsed, err = nil, fmt.Errorf("%w: %s panicked: %v", ErrParserFault, p.Name(), r)
		}
	}()
	parsed, err = p.Parse(s, off)
	if err == nil && parsed == nil {
		err = fmt.Errorf("%w: %s returned no result", ErrParserFault, p.Name())
	}
	return parsed, err
}

func safeEntries(parsed parser.Parsed) (entries []parser.Entry, err error) {
	u, ok := parsed.(parser.Unpacker)
	if !ok {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			entries, err = nil, fmt.Errorf("%w: entries panicked: %v", ErrParserFault, r)
		}
	}()
	return u.Entries(), nil
}

func safeCollect(parsed parser.Parsed) (c parser.Collected, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = parser.Collected{}, fmt.Errorf("%w: collect panicked: %v", ErrParserFault, r)
		}
	}()
	return parsed.Collect(), nil
}
