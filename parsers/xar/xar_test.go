package xar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/klauspost/compress/zlib"

	"unravel/parser"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func buildArchive(t *testing.T, toc string, heap []byte) []byte {
	t.Helper()
	compressed := zlibBytes(t, []byte(toc))
	var buf bytes.Buffer
	buf.WriteString("xar!")
	binary.Write(&buf, binary.BigEndian, uint16(fixedHeaderSize))
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint64(len(compressed)))
	binary.Write(&buf, binary.BigEndian, uint64(len(toc)))
	binary.Write(&buf, binary.BigEndian, uint32(1))
	buf.Write(compressed)
	buf.Write(heap)
	return buf.Bytes()
}

func sampleArchive(t *testing.T) []byte {
	t.Helper()
	checksum := bytes.Repeat([]byte{0xaa}, 20)
	stored := []byte("hello world")
	packed := zlibBytes(t, bytes.Repeat([]byte("payload "), 32))
	heap := append(append(append([]byte{}, checksum...), stored...), packed...)
	toc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<xar><toc>
<creation-time>2024-01-02T03:04:05</creation-time>
<checksum style="sha1"><offset>0</offset><size>20</size></checksum>
<file id="1"><name>hello.txt</name><type>file</type>
<data><offset>20</offset><length>%d</length><size>%d</size><encoding style="application/octet-stream"/></data></file>
<file id="2"><name>dir</name><type>directory</type>
<file id="3"><name>packed.bin</name><type>file</type>
<data><offset>%d</offset><length>%d</length><size>256</size><encoding style="application/x-gzip"/></data></file>
</file>
</toc></xar>`, len(stored), len(stored), 20+len(stored), len(packed))
	return buildArchive(t, toc, heap)
}

func parse(data []byte) (parser.Parsed, error) {
	return Parser{}.Parse(parser.NewStream(bytes.NewReader(data), int64(len(data)), "a.xar"), 0)
}

func TestParseArchive(t *testing.T) {
	data := sampleArchive(t)
	trailing := append(append([]byte{}, data...), make([]byte, 64)...)
	p, err := parse(trailing)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UnpackedSize() != int64(len(data)) {
		t.Fatalf("size = %d, want %d", p.UnpackedSize(), len(data))
	}
	c := p.Collect()
	if c.Labels[0] != "archive" || c.Labels[1] != "xar" {
		t.Fatalf("labels = %v", c.Labels)
	}
	if c.Metadata["checksum_algorithm"] != "sha1" || c.Metadata["files"] != 2 {
		t.Fatalf("metadata = %v", c.Metadata)
	}

	entries := p.(parser.Unpacker).Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Name != "hello.txt" || entries[0].IsDerived() {
		t.Fatalf("first entry = %+v", entries[0])
	}
	rc, _ := entries[0].Open()
	got, _ := io.ReadAll(rc)
	if string(got) != "hello world" {
		t.Fatalf("stored member = %q", got)
	}
	if entries[1].Name != "dir/packed.bin" || !entries[1].IsDerived() {
		t.Fatalf("second entry = %+v", entries[1])
	}
	rc, err = entries[1].Open()
	if err != nil {
		t.Fatal(err)
	}
	got, _ = io.ReadAll(rc)
	if !bytes.Equal(got, bytes.Repeat([]byte("payload "), 32)) {
		t.Fatalf("decoded member has %d bytes", len(got))
	}
}

func TestParseRejectsDataOutsideFile(t *testing.T) {
	cases := []struct {
		name string
		toc  string
	}{
		{"length past end", `<xar><toc><file id="1"><name>x</name><type>file</type>
<data><offset>0</offset><length>4096</length><size>4096</size></data></file></toc></xar>`},
		{"offset wraps", `<xar><toc><file id="1"><name>x</name><type>file</type>
<data><offset>9223372036854775000</offset><length>1000</length><size>1000</size></data></file></toc></xar>`},
		{"length wraps", `<xar><toc><file id="1"><name>x</name><type>file</type>
<data><offset>1</offset><length>9223372036854775807</length><size>1</size></data></file></toc></xar>`},
		{"negative offset", `<xar><toc><file id="1"><name>x</name><type>file</type>
<data><offset>-4</offset><length>2</length><size>2</size></data></file></toc></xar>`},
		{"checksum wraps", `<xar><toc><checksum style="sha1"><offset>9223372036854775000</offset><size>1000</size></checksum></toc></xar>`},
		{"extended attribute wraps", `<xar><toc><file id="1"><name>x</name><type>file</type>
<ea><offset>9223372036854775807</offset><length>1</length><size>1</size></ea></file></toc></xar>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := parse(buildArchive(t, tc.toc, []byte("short")))
			if !parser.IsStructural(err) {
				t.Fatalf("expected structural error, got %v (parsed %v)", err, p)
			}
		})
	}
}

func TestInHeap(t *testing.T) {
	cases := []struct {
		off, n, heap int64
		want         bool
	}{
		{0, 5, 5, true},
		{5, 0, 5, true},
		{4, 2, 5, false},
		{6, 0, 5, false},
		{-1, 1, 5, false},
		{1, -1, 5, false},
		{math.MaxInt64, 1, 5, false},
		{1, math.MaxInt64, 5, false},
	}
	for _, tc := range cases {
		if got := inHeap(tc.off, tc.n, tc.heap); got != tc.want {
			t.Errorf("inHeap(%d, %d, %d) = %v, want %v", tc.off, tc.n, tc.heap, got, tc.want)
		}
	}
}

func TestParseRejectsWrongRootElement(t *testing.T) {
	if _, err := parse(buildArchive(t, `<notxar><toc/></notxar>`, nil)); !parser.IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestParseRejectsMissingTOC(t *testing.T) {
	if _, err := parse(buildArchive(t, `<xar></xar>`, nil)); !parser.IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestParseRejectsTOCLengthMismatch(t *testing.T) {
	data := buildArchive(t, `<xar><toc/></xar>`, nil)
	binary.BigEndian.PutUint64(data[16:], 999)
	if _, err := parse(data); !parser.IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}
