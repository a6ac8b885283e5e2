package scanner

import (
	"bytes"
	"testing"

	"unravel/parser"
)

type warnSink struct{ warnings int }

func (w *warnSink) Warnf(string, ...interface{}) { w.warnings++ }

func runDispatch(t *testing.T, reg *parser.Registry, data []byte) ([]accepted, DispatchStats) {
	t.Helper()
	cands, err := scanBytes(NewSignatureScanner(reg, 64), data, "input.bin")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	stream := parser.NewStream(bytes.NewReader(data), int64(len(data)), "input.bin")
	claims, stats, err := dispatch(stream, cands, "input.bin")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	return claims, stats
}

func TestDispatchFallsBackToLowerPriority(t *testing.T) {
	strict := &fakeParser{name: "strict", sigs: sig("PRIO"), parse: func(*parser.Stream, int64) (parser.Parsed, error) {
		return nil, parser.Violation("checksum mismatch")
	}}
	loose := &fakeParser{name: "loose", sigs: sig("PRIO"), parse: fixedSize(8)}

	claims, stats := runDispatch(t, newRegistry(strict, loose), []byte("PRIO1234tail"))
	if len(claims) != 1 || claims[0].claim.Parser != "loose" || claims[0].claim.Size != 8 {
		t.Fatalf("claims = %+v", claims)
	}
	if stats.Tried != 2 || stats.Corrupt != 1 || stats.Accepted != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDispatchSkipsLockedRanges(t *testing.T) {
	outer := &fakeParser{name: "outer", sigs: sig("OUT!"), parse: fixedSize(16)}
	inner := &fakeParser{name: "inner", sigs: sig("IN!!"), parse: fixedSize(4)}
	data := []byte("OUT!....IN!!....IN!!")

	claims, stats := runDispatch(t, newRegistry(outer, inner), data)
	if len(claims) != 2 {
		t.Fatalf("claims = %+v", claims)
	}
	if claims[0].claim.Parser != "outer" || claims[1].claim.Offset != 16 {
		t.Fatalf("claims = %+v", claims)
	}
	if stats.Tried != 2 {
		t.Fatalf("inner candidate at 8 should not be tried: %+v", stats)
	}
}

func TestDispatchRejectsOverlapAndOversize(t *testing.T) {
	long := &fakeParser{name: "long", sigs: sig("LONG"), parse: fixedSize(100)}
	mid := &fakeParser{name: "mid", sigs: sig("MID!"), parse: fixedSize(12)}
	short := &fakeParser{name: "short", sigs: sig("SHRT"), parse: fixedSize(2)}
	data := []byte("LONGMID!....SHRT....")

	claims, stats := runDispatch(t, newRegistry(long, mid, short), data)
	// long runs past the end; mid claims [4,16) and locks short out
	if len(claims) != 1 || claims[0].claim.Parser != "mid" {
		t.Fatalf("claims = %+v", claims)
	}
	if stats.Corrupt != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	bad := &fakeParser{name: "bad", sigs: sig("BOOM"), parse: func(*parser.Stream, int64) (parser.Parsed, error) {
		panic("index out of range")
	}}
	nilResult := &fakeParser{name: "nil", sigs: sig("BOOM"), parse: func(*parser.Stream, int64) (parser.Parsed, error) {
		return nil, nil
	}}
	good := &fakeParser{name: "good", sigs: sig("BOOM"), parse: fixedSize(4)}

	claims, stats := runDispatch(t, newRegistry(bad, nilResult, good), []byte("BOOM"))
	if stats.Faults != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(claims) != 1 || claims[0].claim.Parser != "good" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestDispatchMismatchIsNotCorrupt(t *testing.T) {
	p := &fakeParser{name: "picky", sigs: sig("MAYB"), parse: func(*parser.Stream, int64) (parser.Parsed, error) {
		return nil, parser.Mismatch("second magic missing")
	}}
	claims, stats := runDispatch(t, newRegistry(p), []byte("MAYBE"))
	if len(claims) != 0 || stats.Mismatch != 1 || stats.Corrupt != 0 {
		t.Fatalf("claims = %+v stats = %+v", claims, stats)
	}
}

func TestValidateEntries(t *testing.T) {
	entries := []parser.Entry{
		{Name: "b", Offset: 10, Size: 10},
		{Name: "a", Offset: 0, Size: 10},
		{Name: "overlap", Offset: 15, Size: 2},
		{Name: "outside", Offset: 90, Size: 20},
		{Name: "derived-no-open", Offset: parser.Derived, Size: 5},
		{Name: "empty", Offset: 20, Size: 0},
	}
	sink := &warnSink{}
	got := validateEntries(entries, 100, sink)
	var names []string
	for _, e := range got {
		names = append(names, e.Name)
	}
	want := []string{"b", "a", "empty"}
	if len(names) != len(want) {
		t.Fatalf("kept %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("kept %v, want %v", names, want)
		}
	}
	if sink.warnings != 3 {
		t.Fatalf("warnings = %d", sink.warnings)
	}
}
