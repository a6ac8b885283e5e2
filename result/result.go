// Package result holds the per-session extraction tree and the content-hash
// registry that lets identical content be unpacked once.
package result

import (
	"sort"
)

// Extent is the position of a file inside its parent.
type Extent struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

// End returns the first offset past the extent.
func (e Extent) End() int64 { return e.Offset + e.Size }

// Overlaps reports whether two extents share at least one byte.
func (e Extent) Overlaps(o Extent) bool {
	return e.Offset < o.End() && o.Offset < e.End()
}

// Claim is a region of a file that a parser validated and took ownership of.
type Claim struct {
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
	Parser string `json:"parser"`
}

// FileResult is one node of the extraction tree.
type FileResult struct {
	Path        string            `json:"path"`
	Parent      string            `json:"parent,omitempty"`
	Size        int64             `json:"size"`
	Extent      *Extent           `json:"extent,omitempty"`
	Labels      []string          `json:"labels"`
	Hashes      map[string]string `json:"hash"`
	FuzzyHashes map[string]string `json:"fuzzy_hashes,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	MimeType    string            `json:"mime_type,omitempty"`
	Parser      string            `json:"parser,omitempty"`
	Claims      []Claim           `json:"claims,omitempty"`
	// Backing is the location of the content on disk.
	Backing string `json:"-"`
}

// Hash returns the sha256 digest of the content.
func (fr *FileResult) Hash() string { return fr.Hashes["sha256"] }

// HasLabel reports whether label is set.
func (fr *FileResult) HasLabel(label string) bool {
	i := sort.SearchStrings(fr.Labels, label)
	return i < len(fr.Labels) && fr.Labels[i] == label
}

// MergeLabels returns the sorted union of the given label sets.
func MergeLabels(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, l := range set {
			if l == "" {
				continue
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}
