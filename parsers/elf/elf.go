// Package elf recognizes ELF executables, libraries and object files.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"sort"

	"unravel/logger"
	"unravel/metadata"
	"unravel/parser"
)

const (
	minStringLength = 4
	maxStrings      = 10000
	maxSymbols      = 20000
	maxOffset       = 1 << 62
)

type Parser struct{}

func (Parser) Name() string { return "elf" }

func (Parser) Signatures() []parser.Signature {
	return []parser.Signature{{Offset: 0, Pattern: []byte(elf.ELFMAG)}}
}

func (Parser) Extensions() []string { return nil }

// tables holds the header fields debug/elf does not export.
type tables struct {
	ehsize, phoff, phentsize, phnum int64
	shoff, shentsize, shnum         int64
}

type executable struct {
	f      *elf.File
	size   int64
	stream *parser.Stream
	offset int64
}

func (Parser) Parse(s *parser.Stream, offset int64) (parser.Parsed, error) {
	ident, err := s.Bytes(offset, elf.EI_NIDENT)
	if err != nil {
		return nil, err
	}
	if string(ident[:4]) != elf.ELFMAG {
		return nil, parser.Mismatch("no ELF magic")
	}
	class := elf.Class(ident[elf.EI_CLASS])
	if err := parser.Check(class == elf.ELFCLASS32 || class == elf.ELFCLASS64, "invalid ELF class"); err != nil {
		return nil, err
	}
	var order binary.ByteOrder
	switch elf.Data(ident[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		order = binary.BigEndian
	default:
		return nil, parser.Violation("invalid ELF data encoding")
	}

	tbl, err := readTables(s, offset, class, order)
	if err != nil {
		return nil, err
	}

	tail, err := s.Tail(offset)
	if err != nil {
		return nil, err
	}
	f, err := elf.NewFile(tail)
	if err != nil {
		return nil, parser.Violation("elf: %v", err)
	}

	size := tbl.ehsize
	size = max(size, tbl.phoff+tbl.phentsize*tbl.phnum)
	size = max(size, tbl.shoff+tbl.shentsize*tbl.shnum)
	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_NOBITS || sec.Type == elf.SHT_NULL {
			continue
		}
		if sec.Offset > maxOffset || sec.FileSize > maxOffset {
			return nil, parser.Violation("section %q out of range", sec.Name)
		}
		size = max(size, int64(sec.Offset+sec.FileSize))
	}
	for _, prog := range f.Progs {
		if prog.Off > maxOffset || prog.Filesz > maxOffset {
			return nil, parser.Violation("segment out of range")
		}
		size = max(size, int64(prog.Off+prog.Filesz))
	}
	if err := parser.Check(s.Has(offset, size), "not enough data"); err != nil {
		return nil, err
	}
	return &executable{f: f, size: size, stream: s, offset: offset}, nil
}

func readTables(s *parser.Stream, offset int64, class elf.Class, order binary.ByteOrder) (tables, error) {
	var t tables
	if class == elf.ELFCLASS64 {
		hdr, err := s.Bytes(offset, 64)
		if err != nil {
			return t, err
		}
		phoff, shoff := order.Uint64(hdr[32:]), order.Uint64(hdr[40:])
		if phoff > maxOffset || shoff > maxOffset {
			return t, parser.Violation("header table offset out of range")
		}
		t.phoff, t.shoff = int64(phoff), int64(shoff)
		t.ehsize = int64(order.Uint16(hdr[52:]))
		t.phentsize, t.phnum = int64(order.Uint16(hdr[54:])), int64(order.Uint16(hdr[56:]))
		t.shentsize, t.shnum = int64(order.Uint16(hdr[58:])), int64(order.Uint16(hdr[60:]))
	} else {
		hdr, err := s.Bytes(offset, 52)
		if err != nil {
			return t, err
		}
		t.phoff, t.shoff = int64(order.Uint32(hdr[28:])), int64(order.Uint32(hdr[32:]))
		t.ehsize = int64(order.Uint16(hdr[40:]))
		t.phentsize, t.phnum = int64(order.Uint16(hdr[42:])), int64(order.Uint16(hdr[44:]))
		t.shentsize, t.shnum = int64(order.Uint16(hdr[46:])), int64(order.Uint16(hdr[48:]))
	}
	if t.phnum == 0 {
		t.phoff, t.phentsize = 0, 0
	}
	if t.shnum == 0 {
		t.shoff, t.shentsize = 0, 0
	}
	return t, nil
}

func (e *executable) UnpackedSize() int64 { return e.size }

func (e *executable) Collect() parser.Collected {
	f := e.f
	labels := []string{"elf"}
	switch f.Type {
	case elf.ET_EXEC:
		labels = append(labels, "executable")
	case elf.ET_DYN:
		labels = append(labels, "shared library")
	case elf.ET_REL:
		labels = append(labels, "object file")
	case elf.ET_CORE:
		labels = append(labels, "core")
	}

	meta := map[string]any{
		"class":   f.Class.String(),
		"data":    f.Data.String(),
		"machine": f.Machine.String(),
		"type":    f.Type.String(),
		"os_abi":  f.OSABI.String(),
		"entry":   f.Entry,
	}

	dynamic := false
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			dynamic = true
			if data, err := readAll(prog.Open(), int64(prog.Filesz)); err == nil {
				meta["interpreter"] = trimNul(data)
			}
		}
	}
	if f.Type == elf.ET_EXEC || f.Type == elf.ET_DYN {
		if dynamic {
			labels = append(labels, "dynamically linked")
		} else {
			labels = append(labels, "static")
		}
	}
	if libs, err := f.ImportedLibraries(); err == nil && len(libs) > 0 {
		meta["needed"] = libs
	}
	if sonames, err := f.DynString(elf.DT_SONAME); err == nil && len(sonames) > 0 {
		meta["soname"] = sonames[0]
	}

	sections := make([]string, 0, len(f.Sections))
	for _, sec := range f.Sections {
		if sec.Name != "" {
			sections = append(sections, sec.Name)
		}
	}
	meta["sections"] = sections

	symbols, haveSymtab := collectSymbols(f)
	if !haveSymtab {
		labels = append(labels, "stripped")
	}
	meta["symbols"] = symbols

	meta["strings"] = []string{}
	if sec, err := e.stream.Section(e.offset, e.size); err == nil {
		strs, err := metadata.PrintableStrings(sec, minStringLength, maxStrings)
		if err != nil {
			logger.Warnf("String extraction stopped early in %s: %v", e.stream.Name(), err)
			meta["strings_incomplete"] = true
		}
		meta["strings"] = strs
	}
	return parser.Collected{Labels: labels, Metadata: meta}
}

func collectSymbols(f *elf.File) ([]map[string]any, bool) {
	syms, err := f.Symbols()
	haveSymtab := err == nil && len(syms) > 0
	if dyn, err := f.DynamicSymbols(); err == nil {
		syms = append(syms, dyn...)
	}
	type key struct {
		name    string
		kind    string
		section elf.SectionIndex
	}
	seen := make(map[key]struct{}, len(syms))
	out := make([]map[string]any, 0, len(syms))
	for _, sym := range syms {
		if sym.Name == "" {
			continue
		}
		kind := "other"
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_FUNC:
			kind = "func"
		case elf.STT_OBJECT:
			kind = "object"
		}
		k := key{sym.Name, kind, sym.Section}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, map[string]any{
			"name":          sym.Name,
			"type":          kind,
			"section_index": int(sym.Section),
		})
		if len(out) >= maxSymbols {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out, haveSymtab
}

func readAll(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

func trimNul(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
