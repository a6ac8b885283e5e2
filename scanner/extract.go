package scanner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"unravel/hasher"
	"unravel/parser"
	"unravel/utils"
)

// ErrOutput reports that the unpack or results directory could not be
// written. It ends the session.
var ErrOutput = errors.New("output failure")

var errTooLarge = errors.New("content exceeds maximum file size")

type extracted struct {
	backing string
	hashes  map[string]string
	size    int64
}

// trackedWriter remembers write failures so they can be told apart from read
// failures after a copy.
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

// extract copies r into the unpack directory at treePath, hashing it on the
// way. The file appears under its final name only once complete. A positive
// limit caps the number of bytes accepted.
func (s *Session) extract(r io.Reader, sizeHint, limit int64, treePath string) (extracted, error) {
	backing := filepath.Join(s.cfg.UnpackDirectory, filepath.FromSlash(treePath))
	if !utils.IsPathWithin(backing, []string{s.cfg.UnpackDirectory}) {
		return extracted{}, fmt.Errorf("%s escapes the unpack directory", treePath)
	}
	if err := os.MkdirAll(filepath.Dir(backing), 0o755); err != nil {
		return extracted{}, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	tmp, err := os.CreateTemp(s.cfg.TemporaryDirectory, "extract-*")
	if err != nil {
		return extracted{}, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	name := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(name)
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	m := hasher.New(s.cfg.HashAlgorithms)
	w := &trackedWriter{w: tmp}
	n, err := m.Copy(w, r, sizeHint)
	switch {
	case w.err != nil:
		cleanup()
		return extracted{}, fmt.Errorf("%w: %v", ErrOutput, w.err)
	case err != nil:
		cleanup()
		return extracted{}, &parser.IOError{Op: "extract " + treePath, Err: err}
	case limit > 0 && n > limit:
		cleanup()
		return extracted{}, errTooLarge
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return extracted{}, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	if err := os.Rename(name, backing); err != nil {
		os.Remove(name)
		return extracted{}, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	return extracted{backing: backing, hashes: m.Sums(), size: n}, nil
}
