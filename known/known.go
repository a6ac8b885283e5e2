// Package known holds a set of content digests whose files need no further
// unpacking, such as stock firmware components.
package known

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/FastFilter/xorfilter"
	"github.com/cespare/xxhash/v2"
)

// Set answers membership for sha256 hex digests. The xor filter rejects most
// lookups without touching the exact map.
type Set struct {
	filter *xorfilter.Xor8
	exact  map[string]struct{}
}

// New builds a set from sha256 hex digests. Invalid digests are an error.
func New(digests []string) (*Set, error) {
	s := &Set{exact: make(map[string]struct{}, len(digests))}
	keys := make([]uint64, 0, len(digests))
	for _, d := range digests {
		d = strings.ToLower(strings.TrimSpace(d))
		if !valid(d) {
			return nil, fmt.Errorf("invalid sha256 digest %q", d)
		}
		if _, ok := s.exact[d]; ok {
			continue
		}
		s.exact[d] = struct{}{}
		keys = append(keys, xxhash.Sum64String(d))
	}
	if len(keys) == 0 {
		return s, nil
	}
	filter, err := xorfilter.Populate(dedupe(keys))
	if err != nil {
		return nil, fmt.Errorf("build known filter: %w", err)
	}
	s.filter = filter
	return s, nil
}

// Load reads digests from r, one per line. Blank lines and lines starting
// with '#' are ignored, and only the first field is used so sha256sum output
// works as is.
func Load(r io.Reader) (*Set, error) {
	var digests []string
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		field := strings.Fields(text)[0]
		if !valid(strings.ToLower(field)) {
			return nil, fmt.Errorf("line %d: invalid sha256 digest %q", line, field)
		}
		digests = append(digests, field)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(digests)
}

// LoadFile reads a digest list from path.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	set, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Contains reports whether digest is in the set. A nil set contains nothing.
func (s *Set) Contains(digest string) bool {
	if s == nil || s.filter == nil {
		return false
	}
	digest = strings.ToLower(digest)
	if !s.filter.Contains(xxhash.Sum64String(digest)) {
		return false
	}
	_, ok := s.exact[digest]
	return ok
}

// Len returns the number of distinct digests.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exact)
}

func valid(d string) bool {
	if len(d) != 64 {
		return false
	}
	_, err := hex.DecodeString(d)
	return err == nil
}

func dedupe(keys []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
