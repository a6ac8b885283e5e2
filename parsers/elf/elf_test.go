package elf

import (
	"bytes"
	"encoding/binary"
	"os"
	"runtime"
	"testing"

	"unravel/parser"
)

func minimalHeader() []byte {
	hdr := make([]byte, 64)
	copy(hdr, "\x7fELF")
	hdr[4] = 2 // 64-bit
	hdr[5] = 1 // little endian
	hdr[6] = 1
	le := binary.LittleEndian
	le.PutUint16(hdr[16:], 2) // ET_EXEC
	le.PutUint16(hdr[18:], 0x3e)
	le.PutUint32(hdr[20:], 1)
	le.PutUint64(hdr[24:], 0x401000)
	le.PutUint16(hdr[52:], 64)
	le.PutUint16(hdr[54:], 56)
	le.PutUint16(hdr[58:], 64)
	return hdr
}

func parse(data []byte, offset int64) (parser.Parsed, error) {
	return Parser{}.Parse(parser.NewStream(bytes.NewReader(data), int64(len(data)), "bin"), offset)
}

func TestParseMinimalHeader(t *testing.T) {
	data := append(minimalHeader(), []byte("trailing junk")...)
	p, err := parse(data, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UnpackedSize() != 64 {
		t.Fatalf("size = %d", p.UnpackedSize())
	}
	c := p.Collect()
	if c.Labels[0] != "elf" || c.Labels[1] != "executable" {
		t.Fatalf("labels = %v", c.Labels)
	}
	if c.Metadata["machine"] != "EM_X86_64" {
		t.Fatalf("machine = %v", c.Metadata["machine"])
	}
}

func TestParseEmbeddedHeader(t *testing.T) {
	data := append(bytes.Repeat([]byte{0xff}, 100), minimalHeader()...)
	p, err := parse(data, 100)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UnpackedSize() != 64 {
		t.Fatalf("size = %d", p.UnpackedSize())
	}
}

func TestParseSectionTableOutsideFile(t *testing.T) {
	hdr := minimalHeader()
	binary.LittleEndian.PutUint64(hdr[40:], 4096)
	binary.LittleEndian.PutUint16(hdr[60:], 3)
	if _, err := parse(hdr, 0); !parser.IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestParseBadClass(t *testing.T) {
	hdr := minimalHeader()
	hdr[4] = 9
	if _, err := parse(hdr, 0); !parser.IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestParseRunningExecutable(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("test binary is only ELF on linux")
	}
	path, err := os.Executable()
	if err != nil {
		t.Skip(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Skip(err)
	}
	p, err := parse(data, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UnpackedSize() <= 0 || p.UnpackedSize() > int64(len(data)) {
		t.Fatalf("size %d outside file of %d bytes", p.UnpackedSize(), len(data))
	}
	c := p.Collect()
	symbols, _ := c.Metadata["symbols"].([]map[string]any)
	if len(symbols) == 0 {
		t.Fatal("expected symbols from the test binary")
	}
	for _, sym := range symbols {
		switch sym["type"] {
		case "func", "object", "other":
		default:
			t.Fatalf("unexpected symbol type %v", sym["type"])
		}
	}
	if strs, _ := c.Metadata["strings"].([]string); len(strs) == 0 {
		t.Fatal("expected printable strings")
	}
}
