package scanner

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"unravel/parser"
)

func offsets(cands []Candidate) []int64 {
	out := make([]int64, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Offset)
	}
	return out
}

func TestScanFindsMatchesAcrossWindowBoundaries(t *testing.T) {
	p := &fakeParser{name: "abcd", sigs: sig("ABCD"), parse: fixedSize(4)}
	s := NewSignatureScanner(newRegistry(p), 8)

	data := bytes.Repeat([]byte{'.'}, 40)
	for _, off := range []int{0, 6, 14, 20, 36} {
		copy(data[off:], "ABCD")
	}
	cands, err := scanBytes(s, data, "data.bin")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	got := offsets(cands)
	want := []int64{0, 6, 14, 20, 36}
	if len(got) != len(want) {
		t.Fatalf("offsets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("offsets = %v, want %v", got, want)
		}
	}
}

func TestScanSubtractsSignatureOffset(t *testing.T) {
	p := &fakeParser{
		name:  "late",
		sigs:  []parser.Signature{{Offset: 4, Pattern: []byte("MAGIC")}},
		parse: fixedSize(9),
	}
	s := NewSignatureScanner(newRegistry(p), 16)

	data := []byte("..MAGIC.....MAGIC")
	cands, err := scanBytes(s, data, "x")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// the match at 2 would start before the file
	if len(cands) != 1 || cands[0].Offset != 8 || cands[0].Span != 9 {
		t.Fatalf("candidates = %+v", cands)
	}
}

func TestScanOrdersByPriority(t *testing.T) {
	low := &fakeParser{name: "low", sigs: sig("SIG!"), parse: fixedSize(4)}
	high := &fakeParser{name: "high", sigs: sig("SIG!"), parse: fixedSize(4)}
	reg := parser.NewRegistry()
	reg.MustRegister(low, 1)
	reg.MustRegister(high, 5)

	cands, err := scanBytes(NewSignatureScanner(reg, 64), []byte("SIG!....SIG!"), "x")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var names []string
	for _, c := range cands {
		names = append(names, c.Parser.Name())
	}
	want := []string{"high", "low", "high", "low"}
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestScanExtensionOnlyParsers(t *testing.T) {
	p := &fakeParser{name: "cfg", exts: []string{".cfg"}, parse: fixedSize(1)}
	s := NewSignatureScanner(newRegistry(p), 64)

	cands, err := scanBytes(s, []byte("key=value"), "settings.CFG")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(cands) != 1 || cands[0].Offset != 0 {
		t.Fatalf("candidates = %+v", cands)
	}
	cands, _ = scanBytes(s, []byte("key=value"), "settings.txt")
	if len(cands) != 0 {
		t.Fatalf("unexpected candidates %+v", cands)
	}
}

type failingReader struct{}

func (failingReader) ReadAt([]byte, int64) (int, error) { return 0, errors.New("device gone") }

func TestScanReportsReadFailures(t *testing.T) {
	p := &fakeParser{name: "abcd", sigs: sig("ABCD"), parse: fixedSize(4)}
	s := NewSignatureScanner(newRegistry(p), 8)
	_, err := s.Scan(context.Background(), failingReader{}, 32, "x")
	if !parser.IsIO(err) {
		t.Fatalf("expected IOError, got %v", err)
	}
}
