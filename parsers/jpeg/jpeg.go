// Package jpeg recognizes baseline and progressive JPEG images by walking the
// marker segments up to the end of image marker.
package jpeg

import (
	"unravel/metadata"
	"unravel/parser"
)

const (
	markerSOI = 0xd8
	markerEOI = 0xd9
	markerSOS = 0xda
	markerTEM = 0x01
	markerDHT = 0xc4
	markerJPG = 0xc8
	markerDAC = 0xcc
)

type Parser struct{}

func (Parser) Name() string { return "jpeg" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: []byte{0xff, markerSOI, 0xff}}}
}

func (Parser) Extensions() []string { return []string{".jpg", ".jpeg"} }

type picture struct {
	size       int64
	width      int
	height     int
	components int
	process    string
	segments   int
	stream     *parser.Stream
	offset     int64
}

func isSOF(m byte) bool {
	return m >= 0xc0 && m <= 0xcf && m != markerDHT && m != markerJPG && m != markerDAC
}

func isRST(m byte) bool { return m >= 0xd0 && m <= 0xd7 }

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	cur, err := s.Cursor(offset)
	if err != nil {
		return nil, err
	}
	if err := cur.Skip(2); err != nil {
		return nil, err
	}
	img := &picture{stream: s, offset: offset}
	var seenSOS bool
	marker, err := nextMarker(cur)
	for {
		if err != nil {
			return nil, err
		}
		switch {
		case marker == markerEOI:
			if err := parser.Check(img.width > 0 && seenSOS, "no frame or scan before end of image"); err != nil {
				return nil, err
			}
			img.size = cur.Consumed()
			return img, nil
		case marker == markerSOI:
			return nil, parser.Violation("nested start of image")
		case isRST(marker) || marker == markerTEM:
			marker, err = nextMarker(cur)
			continue
		}

		var length int64
		if length, err = segmentLength(cur); err != nil {
			return nil, err
		}
		img.segments++
		switch {
		case isSOF(marker):
			err = img.readFrame(cur, length, marker)
		default:
			err = cur.Skip(length)
		}
		if err != nil {
			return nil, err
		}
		if marker == markerSOS {
			if err := parser.Check(img.width > 0, "scan before frame header"); err != nil {
				return nil, err
			}
			seenSOS = true
			marker, err = skipEntropy(cur)
			continue
		}
		marker, err = nextMarker(cur)
	}
}

func segmentLength(cur *parser.Cursor) (int64, error) {
	buf := make([]byte, 2)
	if err := cur.Full(buf); err != nil {
		return 0, err
	}
	length := int64(buf[0])<<8 | int64(buf[1])
	if length < 2 {
		return 0, parser.Violation("segment length %d too small", length)
	}
	return length - 2, nil
}

func (img *picture) readFrame(cur *parser.Cursor, length int64, marker byte) error {
	if length < 6 {
		return parser.Violation("frame header too short")
	}
	hdr := make([]byte, length)
	if err := cur.Full(hdr); err != nil {
		return err
	}
	img.height = int(hdr[1])<<8 | int(hdr[2])
	img.width = int(hdr[3])<<8 | int(hdr[4])
	img.components = int(hdr[5])
	if err := parser.Check(img.width > 0, "zero image width"); err != nil {
		return err
	}
	if err := parser.Check(img.components > 0 && length >= 6+3*int64(img.components), "invalid component count"); err != nil {
		return err
	}
	switch marker {
	case 0xc0, 0xc1:
		img.process = "baseline"
	case 0xc2, 0xc6, 0xca, 0xce:
		img.process = "progressive"
	default:
		img.process = "lossless"
	}
	return nil
}

// nextMarker reads a marker, allowing fill bytes before it.
func nextMarker(cur *parser.Cursor) (byte, error) {
	b, err := cur.ReadByte()
	if err != nil {
		return 0, parser.Classify(notEnough(err), "marker")
	}
	if b != 0xff {
		return 0, parser.Violation("expected marker, found 0x%02x", b)
	}
	for b == 0xff {
		if b, err = cur.ReadByte(); err != nil {
			return 0, parser.Classify(notEnough(err), "marker")
		}
	}
	if b == 0 {
		return 0, parser.Violation("stuffed byte outside entropy coded data")
	}
	return b, nil
}

// skipEntropy consumes entropy coded data and returns the marker that ends it.
func skipEntropy(cur *parser.Cursor) (byte, error) {
	for {
		b, err := cur.ReadByte()
		if err != nil {
			return 0, parser.Classify(notEnough(err), "entropy coded data")
		}
		if b != 0xff {
			continue
		}
		for b == 0xff {
			if b, err = cur.ReadByte(); err != nil {
				return 0, parser.Classify(notEnough(err), "entropy coded data")
			}
		}
		if b == 0 || isRST(b) {
			continue
		}
		return b, nil
	}
}

func notEnough(err error) error {
	if parser.IsIO(err) {
		return err
	}
	return parser.Violation("not enough data")
}

func (img *picture) UnpackedSize() int64 { return img.size }

func (img *picture) Collect() parser.Collected {
	meta := map[string]any{
		"width":      img.width,
		"height":     img.height,
		"components": img.components,
		"process":    img.process,
	}
	if sec, err := img.stream.Section(img.offset, img.size); err == nil {
		if exif := metadata.ImageMetadata(sec, img.size); len(exif) > 0 {
			meta["exif"] = exif
		}
	}
	return parser.Collected{Labels: []string{"jpeg", "graphics"}, Metadata: meta}
}
