package metadata

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestPrintableStrings(t *testing.T) {
	data := []byte("\x00\x01hello\x00ab\x00world!\xffend")
	cases := []struct {
		name   string
		minLen int
		limit  int
		want   []string
	}{
		{"min four", 4, 0, []string{"hello", "world!"}},
		{"min three", 3, 0, []string{"hello", "world!", "end"}},
		{"limited", 3, 1, []string{"hello"}},
	}
	for _, tc := range cases {
		got, err := PrintableStrings(bytes.NewReader(data), tc.minLen, tc.limit)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPrintableStringsEmptyIsNotNil(t *testing.T) {
	got, err := PrintableStrings(bytes.NewReader([]byte{0, 1, 2, 'a', 0}), 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("got %#v, want an empty list", got)
	}
}

func TestPrintableStringsCapsLongRuns(t *testing.T) {
	long := bytes.Repeat([]byte("A"), MaxStringLength*3)
	data := append(append(long, 0), []byte("tail")...)
	got, err := PrintableStrings(bytes.NewReader(data), 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || len(got[0]) != MaxStringLength || got[1] != "tail" {
		t.Fatalf("got %d strings, first %d bytes", len(got), len(got[0]))
	}
}

type brokenReader struct {
	data []byte
	err  error
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestPrintableStringsReportsReadErrors(t *testing.T) {
	failure := errors.New("device gone")
	got, err := PrintableStrings(&brokenReader{data: []byte("first\x00second"), err: failure}, 4, 0)
	if !errors.Is(err, failure) {
		t.Fatalf("err = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Fatalf("partial strings = %q", got)
	}
}

func TestImageMetadataWithoutExif(t *testing.T) {
	if meta := ImageMetadata(bytes.NewReader([]byte{0xff, 0xd8, 0xff, 0xd9}), 1024); meta != nil {
		t.Fatalf("expected nil metadata, got %v", meta)
	}
}

func TestPDFMetadataRejectsGarbage(t *testing.T) {
	if _, err := PDFMetadata(bytes.NewReader([]byte("%PDF-1.4\nnot really")), "x.pdf"); err == nil {
		t.Fatal("expected error for a broken document")
	}
}

func TestFileTimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	ts, err := FileTimes(path)
	if err != nil {
		t.Fatalf("FileTimes: %v", err)
	}
	if ts["modification_time"] == "" || ts["access_time"] == "" {
		t.Fatalf("missing timestamps: %v", ts)
	}
	if _, err := FileTimes(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
