package known

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func digest(i int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("content-%d", i)))
	return hex.EncodeToString(sum[:])
}

func TestSetMembership(t *testing.T) {
	var digests []string
	for i := 0; i < 1000; i++ {
		digests = append(digests, digest(i))
	}
	digests = append(digests, strings.ToUpper(digest(0)))
	s, err := New(digests)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1000 {
		t.Fatalf("len = %d", s.Len())
	}
	for i := 0; i < 1000; i++ {
		if !s.Contains(digest(i)) {
			t.Fatalf("missing digest %d", i)
		}
	}
	for i := 1000; i < 2000; i++ {
		if s.Contains(digest(i)) {
			t.Fatalf("unexpected member %d", i)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known.txt")
	content := "# stock busybox\n" + digest(1) + "  busybox\n\n" + digest(2) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Contains(digest(1)) || !s.Contains(digest(2)) || s.Contains(digest(3)) {
		t.Fatal("unexpected membership")
	}
}

func TestLoadRejectsInvalidLines(t *testing.T) {
	if _, err := Load(strings.NewReader("not-a-digest\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestNilAndEmptySets(t *testing.T) {
	var s *Set
	if s.Contains(digest(1)) || s.Len() != 0 {
		t.Fatal("nil set should be empty")
	}
	empty, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Contains(digest(1)) {
		t.Fatal("empty set should be empty")
	}
}
