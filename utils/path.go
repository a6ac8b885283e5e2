package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IsPathWithin returns true if the given path is within any of the roots.
// Symlinks are resolved where they exist, so the path need not exist yet.
func IsPathWithin(path string, roots []string) bool {
	absPath, err := resolve(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		absRoot, err := resolve(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// resolve returns the absolute path with symlinks resolved for the longest
// prefix that exists.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rest := ""
	cur := abs
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

const maxNameLength = 200

// SafeName turns a name taken from untrusted input into a single path
// element. Separators become underscores, "." and ".." components are
// dropped and control characters are removed. An empty result yields
// fallback.
func SafeName(name, fallback string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	kept := parts[:0]
	for _, part := range parts {
		part = strings.Map(func(r rune) rune {
			if r < 0x20 || r == 0x7f || r == ':' {
				return -1
			}
			return r
		}, part)
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	out := strings.Join(kept, "_")
	if len(out) > maxNameLength {
		out = out[len(out)-maxNameLength:]
	}
	if out == "" {
		return fallback
	}
	return out
}

// Namer hands out unique names among the children of one file. A name also
// reserves name+suffix so a child's own unpack directory cannot collide with
// a sibling.
type Namer struct {
	suffix string
	used   map[string]struct{}
}

func NewNamer(suffix string) *Namer {
	return &Namer{suffix: suffix, used: make(map[string]struct{})}
}

// Unique returns name, or name~N for the first N >= 2 that is still free.
func (n *Namer) Unique(name string) string {
	candidate := name
	for i := 2; n.taken(candidate); i++ {
		candidate = fmt.Sprintf("%s~%d", name, i)
	}
	n.used[candidate] = struct{}{}
	if n.suffix != "" {
		n.used[candidate+n.suffix] = struct{}{}
	}
	return candidate
}

func (n *Namer) taken(name string) bool {
	if _, ok := n.used[name]; ok {
		return true
	}
	if n.suffix == "" {
		return false
	}
	_, ok := n.used[name+n.suffix]
	return ok
}
