package scanner

import (
	"io"
	"os"
	"strings"

	"golang.org/x/exp/mmap"
)

var openMmapReader = mmap.Open

// source is the random access view a file is scanned through.
type source interface {
	io.ReaderAt
	io.Closer
}

// openSource opens path for scanning. In auto mode files of at least
// mmapMinSize bytes are memory mapped, falling back to plain reads when
// mapping fails.
func openSource(path string, size int64, mode string, mmapMinSize int64) (source, error) {
	if mmapMinSize <= 0 {
		mmapMinSize = 128 * 1024
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "mmap":
		if size > 0 {
			r, err := openMmapReader(path)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	case "auto":
		if size >= mmapMinSize {
			r, err := openMmapReader(path)
			if err == nil {
				return r, nil
			}
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// readHead returns up to n bytes from the start of r.
func readHead(r io.ReaderAt, size int64, n int) ([]byte, error) {
	if size < int64(n) {
		n = int(size)
	}
	buf := make([]byte, n)
	read, err := r.ReadAt(buf, 0)
	if read == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		return buf[:read], nil
	}
	return nil, err
}
