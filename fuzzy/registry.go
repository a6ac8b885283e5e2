// Package fuzzy computes similarity digests for result records.
package fuzzy

import (
	"os"
	"sort"
	"strings"
	"sync"

	"unravel/logger"
)

// Hasher defines a fuzzy hashing implementation.
type Hasher interface {
	Name() string
	Hash(f *os.File) (string, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]Hasher{}
)

// Register adds a fuzzy hasher to the registry.
func Register(hasher Hasher) {
	if hasher == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(hasher.Name())] = hasher
}

// Lookup returns a registered hasher by name.
func Lookup(name string) (Hasher, bool) {
	mu.RLock()
	defer mu.RUnlock()
	hasher, ok := registry[strings.ToLower(name)]
	return hasher, ok
}

// Available returns the sorted names of registered hashers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Limits bounds the content sizes that get fuzzy hashed.
type Limits struct {
	MinSize int64
	MaxSize int64
}

func (l Limits) allows(size int64) bool {
	if size < l.MinSize {
		return false
	}
	return l.MaxSize <= 0 || size <= l.MaxSize
}

// HashFile runs the named hashers over the file at path. Hashers that cannot
// digest the content (too little variance, for example) are left out.
func HashFile(path string, size int64, names []string, limits Limits) map[string]string {
	if len(names) == 0 || !limits.allows(size) {
		return nil
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		h, ok := Lookup(name)
		if !ok {
			logger.Warnf("Unknown fuzzy hash algorithm: %s", name)
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			logger.Debugf("Fuzzy hash %s skipped for %s: %v", name, path, err)
			return out
		}
		digest, err := h.Hash(f)
		f.Close()
		if err != nil {
			logger.Debugf("Fuzzy hash %s failed for %s: %v", name, path, err)
			continue
		}
		out[h.Name()] = digest
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
