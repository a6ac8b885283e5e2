// Package all registers every bundled format parser.
package all

import (
	"unravel/parser"
	"unravel/parsers/elf"
	"unravel/parsers/gimpbrush"
	"unravel/parsers/gzip"
	"unravel/parsers/jpeg"
	"unravel/parsers/lz4"
	"unravel/parsers/mbr"
	"unravel/parsers/pdf"
	"unravel/parsers/xar"
	"unravel/parsers/zstd"
)

// Priorities favour formats with long, rigid signatures. The MBR boot
// signature is two bytes at a fixed offset and matches inside many other
// formats, so it comes last.
const (
	PriorityArchive    = 60
	PriorityCompressed = 50
	PriorityExecutable = 40
	PriorityDocument   = 30
	PriorityGraphics   = 20
	PriorityPartitions = 10
)

// Default returns a registry holding every bundled parser.
func Default() *parser.Registry {
	r := parser.NewRegistry()
	r.MustRegister(xar.Parser{}, PriorityArchive)
	r.MustRegister(gzip.Parser{}, PriorityCompressed)
	r.MustRegister(zstd.Parser{}, PriorityCompressed)
	r.MustRegister(lz4.Parser{}, PriorityCompressed)
	r.MustRegister(elf.Parser{}, PriorityExecutable)
	r.MustRegister(pdf.Parser{}, PriorityDocument)
	r.MustRegister(jpeg.Parser{}, PriorityGraphics)
	r.MustRegister(gimpbrush.Parser{}, PriorityGraphics)
	r.MustRegister(mbr.Parser{}, PriorityPartitions)
	return r
}
