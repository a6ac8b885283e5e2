// Package hasher computes several content digests in a single pass.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"

	"unravel/logger"
)

// Primary is the digest that identifies content throughout a session.
const Primary = "sha256"

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

var constructors = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"blake3": func() hash.Hash { return blake3.New(32, nil) },
	"xxh64":  func() hash.Hash { return xxhash.New() },
}

// Supported returns the names of the available algorithms.
func Supported() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether algo can be computed.
func IsSupported(algo string) bool {
	_, ok := constructors[algo]
	return ok
}

type hasherEntry struct {
	name string
	h    hash.Hash
}

// Multi feeds every write to all configured digests. The primary digest is
// always included.
type Multi struct {
	hashers []hasherEntry
	size    int64
}

// New returns a Multi for algorithms. Unknown names are logged and skipped.
func New(algorithms []string) *Multi {
	m := &Multi{}
	seen := make(map[string]struct{}, len(algorithms)+1)
	for _, algo := range append([]string{Primary}, algorithms...) {
		if _, ok := seen[algo]; ok {
			continue
		}
		ctor, ok := constructors[algo]
		if !ok {
			logger.Warnf("Unsupported hash algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		m.hashers = append(m.hashers, hasherEntry{name: algo, h: ctor()})
	}
	return m
}

func (m *Multi) Write(p []byte) (int, error) {
	for i := range m.hashers {
		m.hashers[i].h.Write(p)
	}
	m.size += int64(len(p))
	return len(p), nil
}

// Size returns the number of bytes written.
func (m *Multi) Size() int64 { return m.size }

// Sums returns the hex digests keyed by algorithm.
func (m *Multi) Sums() map[string]string {
	out := make(map[string]string, len(m.hashers))
	for i := range m.hashers {
		out[m.hashers[i].name] = hex.EncodeToString(m.hashers[i].h.Sum(nil))
	}
	return out
}

// Copy writes r to dst while hashing it, using pooled buffers sized by the
// expected length. dst may be nil.
func (m *Multi) Copy(dst io.Writer, r io.Reader, sizeHint int64) (int64, error) {
	bufferPool := &hashBufferSmallPool
	if sizeHint >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufferPtr)

	var w io.Writer = m
	if dst != nil {
		w = io.MultiWriter(dst, m)
	}
	return io.CopyBuffer(w, onlyReader{r}, *bufferPtr)
}

// onlyReader hides WriterTo so CopyBuffer uses the pooled buffer.
type onlyReader struct{ io.Reader }

// ComputeHashes hashes the file at path.
func ComputeHashes(path string, algorithms []string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var sizeHint int64
	if info, statErr := file.Stat(); statErr == nil {
		sizeHint = info.Size()
	}
	m := New(algorithms)
	if _, err := m.Copy(nil, file, sizeHint); err != nil {
		return nil, err
	}
	return m.Sums(), nil
}
