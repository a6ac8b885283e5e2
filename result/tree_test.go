package result

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
)

func node(path, parent string, size int64, extent *Extent) *FileResult {
	return &FileResult{Path: path, Parent: parent, Size: size, Extent: extent, Hashes: map[string]string{}}
}

func TestTreeAddValidation(t *testing.T) {
	tree := NewTree()
	if err := tree.Add(node("root.img", "", 100, nil)); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		fr   *FileResult
		want error
	}{
		{"duplicate", node("root.img", "", 100, nil), ErrExists},
		{"no parent", node("x/y", "missing", 10, nil), ErrNoParent},
		{"outside parent", node("root.img-unpacked/a", "root.img", 10, &Extent{Offset: 95, Size: 10}), ErrOutOfBounds},
		{"negative offset", node("root.img-unpacked/b", "root.img", 10, &Extent{Offset: -1, Size: 10}), ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tree.Add(tt.fr); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTreeRejectsOverlappingSiblings(t *testing.T) {
	tree := NewTree()
	tree.Add(node("r", "", 100, nil))
	if err := tree.Add(node("r-unpacked/a", "r", 50, &Extent{Offset: 0, Size: 50})); err != nil {
		t.Fatal(err)
	}
	if err := tree.Add(node("r-unpacked/b", "r", 10, &Extent{Offset: 45, Size: 10})); !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected overlap, got %v", err)
	}
	if err := tree.Add(node("r-unpacked/c", "r", 50, &Extent{Offset: 50, Size: 50})); err != nil {
		t.Fatalf("adjacent extent rejected: %v", err)
	}
	// derived content has no extent and never overlaps
	if err := tree.Add(node("r-unpacked/d", "r", 500, nil)); err != nil {
		t.Fatal(err)
	}
	if got := len(tree.Children("r")); got != 3 {
		t.Fatalf("children = %d", got)
	}
}

func TestTreeWalkOrder(t *testing.T) {
	tree := NewTree()
	tree.Add(node("b", "", 10, nil))
	tree.Add(node("a", "", 10, nil))
	tree.Add(node("a-unpacked/2", "a", 5, &Extent{Offset: 5, Size: 5}))
	tree.Add(node("a-unpacked/1", "a", 5, &Extent{Offset: 0, Size: 5}))

	var order []string
	if err := tree.Walk(func(fr *FileResult) error {
		order = append(order, fr.Path)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "a-unpacked/1", "a-unpacked/2", "b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v", order)
		}
	}
	if snap := tree.Snapshot(); len(snap) != 4 || snap["a-unpacked/1"].Parent != "a" {
		t.Fatalf("snapshot = %v", snap)
	}
}

func TestMergeLabels(t *testing.T) {
	got := MergeLabels([]string{"mbr", "partition table"}, []string{"root", "mbr", ""}, nil)
	want := []string{"mbr", "partition table", "root"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v", got)
		}
	}
	fr := &FileResult{Labels: got}
	if !fr.HasLabel("root") || fr.HasLabel("padding") {
		t.Fatal("HasLabel mismatch")
	}
	if MergeLabels() == nil {
		t.Fatal("empty merge should not be nil")
	}
}

func TestTreeOverlapMatchesPairwiseCheck(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := range 50 {
		tree := NewTree()
		tree.Add(node("r", "", 256, nil))
		var kept []Extent
		for i := range 80 {
			off := rng.Int64N(256)
			size := rng.Int64N(min(24, 256-off) + 1)
			if rng.IntN(4) == 0 {
				size = 0
			}
			e := Extent{Offset: off, Size: size}
			want := false
			for _, k := range kept {
				if k.Overlaps(e) {
					want = true
					break
				}
			}
			err := tree.Add(node(fmt.Sprintf("r-unpacked/%d", i), "r", size, &e))
			if got := errors.Is(err, ErrOverlap); got != want {
				t.Fatalf("round %d: extent %+v among %+v: overlap = %v, want %v (err %v)", round, e, kept, got, want, err)
			}
			if err == nil {
				kept = append(kept, e)
			}
		}
	}
}

func TestTreeManySiblings(t *testing.T) {
	const n = 20000
	tree := NewTree()
	tree.Add(node("disk", "", n*16, nil))
	// reverse order exercises insertion at the front of the index
	for i := n - 1; i >= 0; i-- {
		e := &Extent{Offset: int64(i) * 16, Size: 16}
		if err := tree.Add(node(fmt.Sprintf("disk-unpacked/%06d", i), "disk", 16, e)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.Add(node("disk-unpacked/straddle", "disk", 16, &Extent{Offset: 8, Size: 16})); !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected overlap, got %v", err)
	}
	if got := len(tree.Children("disk")); got != n {
		t.Fatalf("children = %d", got)
	}
}
