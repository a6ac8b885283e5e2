package result

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

var (
	ErrExists      = errors.New("file result already exists")
	ErrNoParent    = errors.New("parent file result does not exist")
	ErrOutOfBounds = errors.New("extent lies outside the parent")
	ErrOverlap     = errors.New("extent overlaps a sibling")
)

// Tree is the set of file results of a session, keyed by relative path.
// It is safe for concurrent use.
type Tree struct {
	mu       sync.RWMutex
	nodes    map[string]*FileResult
	children map[string][]string
	spans    map[string][]span // per parent, ordered by offset then end
	roots    []string
}

type span struct {
	Extent
	path string
}

func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[string]*FileResult),
		children: make(map[string][]string),
		spans:    make(map[string][]span),
	}
}

// Add inserts fr. The parent must already be present and the extent, if any,
// must lie inside the parent without overlapping a sibling.
func (t *Tree) Add(fr *FileResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[fr.Path]; ok {
		return fmt.Errorf("%s: %w", fr.Path, ErrExists)
	}
	if fr.Parent == "" {
		t.nodes[fr.Path] = fr
		t.roots = append(t.roots, fr.Path)
		return nil
	}
	parent, ok := t.nodes[fr.Parent]
	if !ok {
		return fmt.Errorf("%s: %w", fr.Path, ErrNoParent)
	}
	if fr.Extent != nil {
		if fr.Extent.Offset < 0 || fr.Extent.Size < 0 || fr.Extent.End() > parent.Size {
			return fmt.Errorf("%s [%d,%d) in %d bytes: %w", fr.Path, fr.Extent.Offset, fr.Extent.End(), parent.Size, ErrOutOfBounds)
		}
		if sibling, ok := t.overlapping(fr.Parent, *fr.Extent); ok {
			return fmt.Errorf("%s and %s: %w", fr.Path, sibling, ErrOverlap)
		}
		spans := t.spans[fr.Parent]
		i := sort.Search(len(spans), func(i int) bool { return !spanBefore(spans[i].Extent, *fr.Extent) })
		t.spans[fr.Parent] = slices.Insert(spans, i, span{Extent: *fr.Extent, path: fr.Path})
	}
	t.nodes[fr.Path] = fr
	t.children[fr.Parent] = append(t.children[fr.Parent], fr.Path)
	return nil
}

// overlapping returns a sibling under parent whose extent overlaps e. Stored
// extents never overlap, so ordered by offset their ends do not decrease
// either, and only the run starting at the first end past e.Offset can hit.
func (t *Tree) overlapping(parent string, e Extent) (string, bool) {
	spans := t.spans[parent]
	i := sort.Search(len(spans), func(i int) bool { return spans[i].End() > e.Offset })
	for ; i < len(spans) && spans[i].Offset < e.End(); i++ {
		if spans[i].Overlaps(e) {
			return spans[i].path, true
		}
	}
	return "", false
}

func spanBefore(a, b Extent) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.End() < b.End()
}

// Get returns the file result at path.
func (t *Tree) Get(path string) (*FileResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fr, ok := t.nodes[path]
	return fr, ok
}

// Children returns the children of path sorted by path.
func (t *Tree) Children(path string) []*FileResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := append([]string(nil), t.children[path]...)
	sort.Strings(names)
	out := make([]*FileResult, 0, len(names))
	for _, name := range names {
		out = append(out, t.nodes[name])
	}
	return out
}

func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Walk visits every node depth first, roots and siblings in path order. It
// stops at the first error fn returns.
func (t *Tree) Walk(fn func(*FileResult) error) error {
	t.mu.RLock()
	roots := append([]string(nil), t.roots...)
	t.mu.RUnlock()
	sort.Strings(roots)

	var visit func(path string) error
	visit = func(path string) error {
		fr, ok := t.Get(path)
		if !ok {
			return nil
		}
		if err := fn(fr); err != nil {
			return err
		}
		for _, child := range t.Children(path) {
			if err := visit(child.Path); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := visit(root); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of every node keyed by path.
func (t *Tree) Snapshot() map[string]FileResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]FileResult, len(t.nodes))
	for path, fr := range t.nodes {
		out[path] = *fr
	}
	return out
}
