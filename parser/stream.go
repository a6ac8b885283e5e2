package parser

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

const notEnoughData = "not enough data"

// Stream is a bounds-checked view over the bytes of one file. Every read is
// validated against the stream size before it reaches the backing reader, so a
// parser can never address data outside the file it was given.
type Stream struct {
	r    io.ReaderAt
	size int64
	name string
}

func NewStream(r io.ReaderAt, size int64, name string) *Stream {
	if size < 0 {
		size = 0
	}
	return &Stream{r: r, size: size, name: name}
}

// Size returns the total number of bytes in the stream.
func (s *Stream) Size() int64 { return s.size }

// Name returns the file name the stream was opened for. Parsers may use it for
// extension checks.
func (s *Stream) Name() string { return s.name }

// Has reports whether n bytes starting at off lie within the stream.
func (s *Stream) Has(off, n int64) bool {
	return off >= 0 && n >= 0 && off <= s.size && n <= s.size-off
}

// ReadAt fills p from off. A request reaching past the end of the stream fails
// with a StructuralError before any read is attempted.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if !s.Has(off, int64(len(p))) {
		return 0, &StructuralError{Offset: off, Reason: notEnoughData}
	}
	n, err := s.r.ReadAt(p, off)
	if n == len(p) {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return n, &IOError{Op: "read", Err: err}
}

// Bytes returns a copy of n bytes at off.
func (s *Stream) Bytes(off, n int64) ([]byte, error) {
	if !s.Has(off, n) {
		return nil, &StructuralError{Offset: off, Reason: notEnoughData}
	}
	buf := make([]byte, n)
	if _, err := s.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Stream) Uint8(off int64) (uint8, error) {
	b, err := s.Bytes(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Stream) Uint16(off int64, order binary.ByteOrder) (uint16, error) {
	b, err := s.Bytes(off, 2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (s *Stream) Uint32(off int64, order binary.ByteOrder) (uint32, error) {
	b, err := s.Bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (s *Stream) Uint64(off int64, order binary.ByteOrder) (uint64, error) {
	b, err := s.Bytes(off, 8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

// Section returns a reader over n bytes at off.
func (s *Stream) Section(off, n int64) (*io.SectionReader, error) {
	if !s.Has(off, n) {
		return nil, &StructuralError{Offset: off, Reason: notEnoughData}
	}
	return io.NewSectionReader(s.r, off, n), nil
}

// Tail returns a reader from off to the end of the stream.
func (s *Stream) Tail(off int64) (*io.SectionReader, error) {
	if off < 0 || off > s.size {
		return nil, &StructuralError{Offset: off, Reason: notEnoughData}
	}
	return io.NewSectionReader(s.r, off, s.size-off), nil
}

// Cursor reads sequentially through a stream and tracks how many bytes have
// been consumed. It implements io.ByteReader so decompressors use it without
// adding read-ahead of their own, which keeps Consumed exact.
type Cursor struct {
	br       *bufio.Reader
	consumed int64
}

// Cursor returns a sequential reader starting at off.
func (s *Stream) Cursor(off int64) (*Cursor, error) {
	tail, err := s.Tail(off)
	if err != nil {
		return nil, err
	}
	return &Cursor{br: bufio.NewReaderSize(tail, 32*1024)}, nil
}

func (c *Cursor) Read(p []byte) (int, error) {
	n, err := c.br.Read(p)
	c.consumed += int64(n)
	return n, wrapRead(err)
}

func (c *Cursor) ReadByte() (byte, error) {
	b, err := c.br.ReadByte()
	if err == nil {
		c.consumed++
	}
	return b, wrapRead(err)
}

// wrapRead marks storage failures so they stay distinguishable from format
// errors after passing through a decoder. EOF is left alone for io helpers.
func wrapRead(err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: "read", Err: err}
}

// Skip discards n bytes. Reaching the end of the stream first is a structural
// error.
func (c *Cursor) Skip(n int64) error {
	got, err := io.CopyN(io.Discard, c, n)
	if got < n {
		if err == nil || errors.Is(err, io.EOF) {
			return &StructuralError{Offset: c.consumed, Reason: notEnoughData}
		}
		return err
	}
	return nil
}

// Full reads exactly len(p) bytes.
func (c *Cursor) Full(p []byte) error {
	if _, err := io.ReadFull(c, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &StructuralError{Offset: c.consumed, Reason: notEnoughData}
		}
		return err
	}
	return nil
}

// Consumed returns the number of bytes read so far.
func (c *Cursor) Consumed() int64 { return c.consumed }
