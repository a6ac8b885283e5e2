// Package mbr recognizes DOS/MBR partition tables and exposes every primary
// partition as a ranged entry.
package mbr

import (
	"encoding/binary"
	"fmt"
	"io"

	"unravel/parser"
)

const (
	sectorSize      = 512
	tableOffset     = 446
	entrySize       = 16
	entryCount      = 4
	bootSigOffset   = 510
	statusBootable  = 0x80
	statusInactive  = 0x00
	typeGPTProtect  = 0xee
	typeExtendedCHS = 0x05
	typeExtendedLBA = 0x0f
)

type Parser struct{}

func (Parser) Name() string { return "mbr" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: bootSigOffset, Pattern: []byte{0x55, 0xaa}}}
}

func (Parser) Extensions() []string { return nil }

type partition struct {
	Index    int
	Status   uint8
	Type     uint8
	LBAStart uint32
	Sectors  uint32
}

func (p partition) start() int64 { return int64(p.LBAStart) * sectorSize }
func (p partition) size() int64  { return int64(p.Sectors) * sectorSize }

type table struct {
	partitions []partition
	size       int64
	stream     *parser.Stream
	offset     int64
}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	sector, err := s.Bytes(offset, sectorSize)
	if err != nil {
		return nil, err
	}
	if sector[bootSigOffset] != 0x55 || sector[bootSigOffset+1] != 0xaa {
		return nil, parser.Mismatch("no boot signature")
	}

	available := s.Size() - offset
	t := &table{size: sectorSize, stream: s, offset: offset}
	for i := range entryCount {
		raw := sector[tableOffset+i*entrySize : tableOffset+(i+1)*entrySize]
		p := partition{
			Index:    i,
			Status:   raw[0],
			Type:     raw[4],
			LBAStart: binary.LittleEndian.Uint32(raw[8:12]),
			Sectors:  binary.LittleEndian.Uint32(raw[12:16]),
		}
		if err := parser.Check(p.Status == statusBootable || p.Status == statusInactive, "invalid partition status"); err != nil {
			return nil, err
		}
		if p.Type == 0 || p.Sectors == 0 {
			continue
		}
		if err := parser.Check(p.LBAStart > 0, "partition overlaps partition table"); err != nil {
			return nil, err
		}
		end := p.start() + p.size()
		if err := parser.Check(end <= available, "partition bigger than file"); err != nil {
			return nil, err
		}
		if end > t.size {
			t.size = end
		}
		t.partitions = append(t.partitions, p)
	}
	if err := parser.Check(len(t.partitions) > 0, "no partitions"); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *table) UnpackedSize() int64 { return t.size }

func (t *table) Collect() parser.Collected {
	parts := make([]map[string]any, 0, len(t.partitions))
	for _, p := range t.partitions {
		parts = append(parts, map[string]any{
			"index":     p.Index,
			"type":      fmt.Sprintf("0x%02x", p.Type),
			"bootable":  p.Status == statusBootable,
			"lba_start": p.LBAStart,
			"sectors":   p.Sectors,
		})
	}
	labels := []string{"mbr", "partition table"}
	for _, p := range t.partitions {
		if p.Type == typeGPTProtect {
			labels = append(labels, "protective mbr")
			break
		}
	}
	return parser.Collected{
		Labels:   labels,
		Metadata: map[string]any{"partitions": parts},
	}
}

func (t *table) Entries() []parser.Entry {
	entries := make([]parser.Entry, 0, len(t.partitions))
	for _, p := range t.partitions {
		labels := []string{"partition"}
		if p.Type == typeExtendedCHS || p.Type == typeExtendedLBA {
			labels = append(labels, "extended partition")
		}
		start, size := p.start(), p.size()
		entries = append(entries, parser.Entry{
			Name:   fmt.Sprintf("partition%d.part", p.Index),
			Offset: start,
			Size:   size,
			Labels: labels,
			Open: func() (io.ReadCloser, error) {
				sec, err := t.stream.Section(t.offset+start, size)
				if err != nil {
					return nil, err
				}
				return io.NopCloser(sec), nil
			},
		})
	}
	return entries
}
