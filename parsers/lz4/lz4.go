// Package lz4 walks LZ4 frames (the lz4 command line format) block by block
// and exposes the decompressed content as a derived entry.
package lz4

import (
	"encoding/binary"
	"io"
	"path"
	"strings"

	"github.com/pierrec/lz4/v4"

	"unravel/parser"
)

type Parser struct{}

func (Parser) Name() string { return "lz4" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: []byte{0x04, 0x22, 0x4d, 0x18}}}
}

func (Parser) Extensions() []string { return nil }

var blockMaxSizes = map[byte]int64{4: 64 << 10, 5: 256 << 10, 6: 1 << 20, 7: 4 << 20}

type frame struct {
	size          int64
	blockMax      int64
	blocks        int
	contentSize   int64
	blockChecksum bool
	checksum      bool
	decoded       int64
	stream        *parser.Stream
	offset        int64
}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	cur, err := s.Cursor(offset)
	if err != nil {
		return nil, err
	}
	if err := cur.Skip(4); err != nil {
		return nil, err
	}
	desc := make([]byte, 2)
	if err := cur.Full(desc); err != nil {
		return nil, err
	}
	flg, bd := desc[0], desc[1]
	if err := parser.Check(flg>>6 == 1, "unsupported frame version"); err != nil {
		return nil, err
	}
	if err := parser.Check(flg&0x02 == 0, "reserved bit set in frame flags"); err != nil {
		return nil, err
	}
	if err := parser.Check(bd&0x8f == 0, "reserved bits set in block descriptor"); err != nil {
		return nil, err
	}
	blockMax, ok := blockMaxSizes[(bd>>4)&0x07]
	if !ok {
		return nil, parser.Violation("invalid block maximum size")
	}

	f := &frame{
		stream:        s,
		offset:        offset,
		blockMax:      blockMax,
		contentSize:   -1,
		blockChecksum: flg&0x10 != 0,
		checksum:      flg&0x04 != 0,
	}
	if flg&0x08 != 0 {
		buf := make([]byte, 8)
		if err := cur.Full(buf); err != nil {
			return nil, err
		}
		f.contentSize = int64(binary.LittleEndian.Uint64(buf))
	}
	if flg&0x01 != 0 {
		if err := cur.Skip(4); err != nil {
			return nil, err
		}
	}
	// header checksum
	if err := cur.Skip(1); err != nil {
		return nil, err
	}

	word := make([]byte, 4)
	for {
		if err := cur.Full(word); err != nil {
			return nil, err
		}
		blockSize := int64(binary.LittleEndian.Uint32(word) & 0x7fffffff)
		if blockSize == 0 {
			break
		}
		if blockSize > f.blockMax {
			return nil, parser.Violation("block of %d bytes exceeds maximum %d", blockSize, f.blockMax)
		}
		if f.blockChecksum {
			blockSize += 4
		}
		if err := cur.Skip(blockSize); err != nil {
			return nil, err
		}
		f.blocks++
	}
	if f.checksum {
		if err := cur.Skip(4); err != nil {
			return nil, err
		}
	}
	f.size = cur.Consumed()

	n, err := f.decode()
	if err != nil {
		return nil, err
	}
	if f.contentSize >= 0 && n != f.contentSize {
		return nil, parser.Violation("decoded %d bytes, frame header declares %d", n, f.contentSize)
	}
	f.decoded = n
	return f, nil
}

func (f *frame) decode() (int64, error) {
	rc, err := f.open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	n, err := io.Copy(io.Discard, rc)
	if err != nil {
		return 0, parser.Classify(err, "lz4 data")
	}
	return n, nil
}

func (f *frame) open() (io.ReadCloser, error) {
	sec, err := f.stream.Section(f.offset, f.size)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(lz4.NewReader(sec)), nil
}

func (f *frame) UnpackedSize() int64 { return f.size }

func (f *frame) Collect() parser.Collected {
	return parser.Collected{
		Labels: []string{"lz4", "compressed"},
		Metadata: map[string]any{
			"blocks":            f.blocks,
			"block_max_size":    f.blockMax,
			"uncompressed_size": f.decoded,
			"content_checksum":  f.checksum,
		},
	}
}

func (f *frame) Entries() []parser.Entry {
	name := path.Base(f.stream.Name())
	if strings.HasSuffix(strings.ToLower(name), ".lz4") && len(name) > 4 {
		name = name[:len(name)-4]
	} else {
		name = "unpacked-from-lz4"
	}
	return []parser.Entry{{Name: name, Offset: parser.Derived, Size: f.decoded, Open: f.open}}
}
