// Package parser defines the contract between the unpacking engine and the
// format plugins.
package parser

import (
	"io"
	"strings"
)

// Signature is a byte pattern expected at Offset bytes past the start of a
// format instance. The pattern may therefore appear later in the file than the
// instance itself.
type Signature struct {
	Offset  int64
	Pattern []byte
}

// Parser recognizes one format. Implementations must be stateless: everything
// learned about a particular instance is returned in Parsed.
type Parser interface {
	Name() string
	Signatures() []Signature
	// Extensions returns lower-case file extensions, with leading dot, that
	// hint at the format. They are only consulted for parsers that have no
	// signatures.
	Extensions() []string
	// Parse validates the instance starting at offset. It returns
	// ErrSignatureMismatch, a *StructuralError or an *IOError on failure.
	Parse(s *Stream, offset int64) (Parsed, error)
}

// Parsed is the result of a successful Parse.
type Parsed interface {
	// UnpackedSize is the number of bytes, starting at the parse offset, that
	// the instance occupies.
	UnpackedSize() int64
	// Collect returns the labels and metadata describing the instance. The
	// engine calls it at most once per unique content.
	Collect() Collected
}

// Unpacker is implemented by Parsed values that contain embedded files.
type Unpacker interface {
	Entries() []Entry
}

// Collected holds the labels and metadata of a parsed instance.
type Collected struct {
	Labels   []string
	Metadata map[string]any
}

// Derived marks an entry whose bytes are produced by Open rather than being a
// byte range of the parent.
const Derived int64 = -1

// Entry is an embedded file. Ranged entries (Offset >= 0) are a byte range
// relative to the start of the parsed instance and must lie inside it.
// Derived entries are decoded by Open.
type Entry struct {
	Name   string
	Offset int64
	Size   int64
	Labels []string
	Open   func() (io.ReadCloser, error)
}

func (e Entry) IsDerived() bool {
	return e.Offset < 0
}

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if ext != "" && strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
