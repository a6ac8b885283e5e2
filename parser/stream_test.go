package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

type failingReaderAt struct{}

func (failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("device gone")
}

func TestStreamBoundsChecks(t *testing.T) {
	s := NewStream(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}), 8, "x.bin")

	if _, err := s.Bytes(6, 4); !IsStructural(err) {
		t.Fatalf("expected structural error past end, got %v", err)
	}
	if _, err := s.Bytes(-1, 1); !IsStructural(err) {
		t.Fatalf("expected structural error for negative offset, got %v", err)
	}
	b, err := s.Bytes(6, 2)
	if err != nil || !bytes.Equal(b, []byte{7, 8}) {
		t.Fatalf("unexpected tail read: %v %v", b, err)
	}
	if _, err := s.Bytes(8, 0); err != nil {
		t.Fatalf("empty read at end should succeed: %v", err)
	}
}

func TestStreamIntegers(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	s := NewStream(bytes.NewReader(data), int64(len(data)), "")

	if v, _ := s.Uint16(0, binary.BigEndian); v != 0x1234 {
		t.Fatalf("u16be: %x", v)
	}
	if v, _ := s.Uint32(0, binary.LittleEndian); v != 0x78563412 {
		t.Fatalf("u32le: %x", v)
	}
	if v, _ := s.Uint64(0, binary.BigEndian); v != 0x123456789abcdef0 {
		t.Fatalf("u64be: %x", v)
	}
	if _, err := s.Uint32(6, binary.BigEndian); !IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestStreamIOErrorsAreWrapped(t *testing.T) {
	s := NewStream(failingReaderAt{}, 16, "")
	_, err := s.Bytes(0, 4)
	if !IsIO(err) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if IsStructural(err) {
		t.Fatal("io failure must not be reported as structural")
	}
}

func TestStreamShortBackingReaderIsIOError(t *testing.T) {
	// The declared size is larger than the data really available.
	s := NewStream(bytes.NewReader([]byte{1, 2}), 4, "")
	_, err := s.Bytes(0, 4)
	var ioe *IOError
	if !errors.As(err, &ioe) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF IOError, got %v", err)
	}
}

func TestStreamSections(t *testing.T) {
	s := NewStream(bytes.NewReader([]byte("abcdefgh")), 8, "")
	sec, err := s.Section(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(sec)
	if string(got) != "cde" {
		t.Fatalf("section: %q", got)
	}
	if _, err := s.Section(6, 3); !IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
	tail, err := s.Tail(5)
	if err != nil {
		t.Fatal(err)
	}
	got, _ = io.ReadAll(tail)
	if string(got) != "fgh" {
		t.Fatalf("tail: %q", got)
	}
}
