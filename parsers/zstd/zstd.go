// Package zstd walks a single Zstandard frame to find its exact length and
// exposes the decompressed content as a derived entry.
package zstd

import (
	"encoding/binary"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"

	"unravel/parser"
)

const (
	blockRaw = iota
	blockRLE
	blockCompressed
	blockReserved
)

const maxDecoderMemory = 1 << 30

type Parser struct{}

func (Parser) Name() string { return "zstd" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: []byte{0x28, 0xb5, 0x2f, 0xfd}}}
}

func (Parser) Extensions() []string { return nil }

type frame struct {
	size        int64
	contentSize int64
	dictID      uint32
	checksum    bool
	blocks      int
	decoded     int64
	stream      *parser.Stream
	offset      int64
}

var fcsSizes = [4]int{0, 2, 4, 8}
var dictIDSizes = [4]int{0, 1, 2, 4}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	cur, err := s.Cursor(offset)
	if err != nil {
		return nil, err
	}
	if err := cur.Skip(4); err != nil {
		return nil, err
	}
	fhd, err := cur.ReadByte()
	if err != nil {
		return nil, parser.Classify(err, "frame header")
	}
	if err := parser.Check(fhd&0x08 == 0, "reserved bit set in frame header"); err != nil {
		return nil, err
	}
	f := &frame{stream: s, offset: offset, checksum: fhd&0x04 != 0, contentSize: -1}

	singleSegment := fhd&0x20 != 0
	if !singleSegment {
		if err := cur.Skip(1); err != nil {
			return nil, err
		}
	}
	if n := dictIDSizes[fhd&0x03]; n > 0 {
		buf := make([]byte, 4)
		if err := cur.Full(buf[:n]); err != nil {
			return nil, err
		}
		f.dictID = binary.LittleEndian.Uint32(buf)
	}
	fcsSize := fcsSizes[fhd>>6]
	if fcsSize == 0 && singleSegment {
		fcsSize = 1
	}
	if fcsSize > 0 {
		buf := make([]byte, 8)
		if err := cur.Full(buf[:fcsSize]); err != nil {
			return nil, err
		}
		f.contentSize = int64(binary.LittleEndian.Uint64(buf))
		if fcsSize == 2 {
			f.contentSize += 256
		}
	}

	header := make([]byte, 3)
	for {
		if err := cur.Full(header); err != nil {
			return nil, err
		}
		raw := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16
		last := raw&1 == 1
		blockType := (raw >> 1) & 0x03
		blockSize := int64(raw >> 3)
		switch blockType {
		case blockRaw, blockCompressed:
			err = cur.Skip(blockSize)
		case blockRLE:
			err = cur.Skip(1)
		case blockReserved:
			err = parser.Violation("reserved block type")
		}
		if err != nil {
			return nil, err
		}
		f.blocks++
		if last {
			break
		}
	}
	if f.checksum {
		if err := cur.Skip(4); err != nil {
			return nil, err
		}
	}
	f.size = cur.Consumed()

	if err := f.verify(); err != nil {
		return nil, err
	}
	return f, nil
}

// verify decodes the frame once so that damaged block content is rejected
// before the frame is claimed.
func (f *frame) verify() error {
	rc, err := f.open()
	if err != nil {
		return parser.Classify(err, "zstd decoder")
	}
	defer rc.Close()
	n, err := io.Copy(io.Discard, rc)
	if err != nil {
		return parser.Classify(err, "zstd data")
	}
	if f.contentSize >= 0 && n != f.contentSize {
		return parser.Violation("decoded %d bytes, frame header declares %d", n, f.contentSize)
	}
	f.decoded = n
	return nil
}

func (f *frame) open() (io.ReadCloser, error) {
	sec, err := f.stream.Section(f.offset, f.size)
	if err != nil {
		return nil, err
	}
	d, err := zstd.NewReader(sec,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxDecoderMemory),
	)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

func (f *frame) UnpackedSize() int64 { return f.size }

func (f *frame) Collect() parser.Collected {
	meta := map[string]any{
		"blocks":            f.blocks,
		"uncompressed_size": f.decoded,
		"checksum":          f.checksum,
	}
	if f.dictID != 0 {
		meta["dictionary_id"] = f.dictID
	}
	return parser.Collected{Labels: []string{"zstd", "compressed"}, Metadata: meta}
}

func (f *frame) Entries() []parser.Entry {
	name := path.Base(f.stream.Name())
	if strings.HasSuffix(strings.ToLower(name), ".zst") && len(name) > 4 {
		name = name[:len(name)-4]
	} else {
		name = "unpacked-from-zstd"
	}
	return []parser.Entry{{Name: name, Offset: parser.Derived, Size: f.decoded, Open: f.open}}
}
