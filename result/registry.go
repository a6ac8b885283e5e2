package result

import (
	"context"
	"sync"
	"sync/atomic"
)

// ChildKind tells how a child was produced from its parent.
type ChildKind string

const (
	KindClaim ChildKind = "claim"
	KindEntry ChildKind = "entry"
	KindCarve ChildKind = "carve"
)

// ChildRef describes a child of unpacked content. Offset is -1 for content
// that was derived rather than cut out of the parent.
type ChildRef struct {
	Name    string
	Kind    ChildKind
	Offset  int64
	Size    int64
	Hashes  map[string]string
	Backing string
	Labels  []string
}

// Extent returns the child's position in the parent, or nil for derived
// content.
func (c ChildRef) Extent() *Extent {
	if c.Offset < 0 {
		return nil
	}
	return &Extent{Offset: c.Offset, Size: c.Size}
}

// Outcome is everything learned from unpacking one piece of content. It is
// immutable once published.
type Outcome struct {
	Hash        string
	Size        int64
	Labels      []string
	Metadata    map[string]any
	MimeType    string
	Parser      string
	Claims      []Claim
	Children    []ChildRef
	Hashes      map[string]string
	FuzzyHashes map[string]string
}

type slot struct {
	done    chan struct{}
	outcome *Outcome
}

// Registry maps content hashes to outcomes. The first requester of a hash
// becomes its owner; later requesters wait until the owner publishes or
// abandons it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*slot
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*slot)}
}

// Ticket is held by the owner of an in-flight hash.
type Ticket struct {
	reg  *Registry
	hash string
	slot *slot
	once sync.Once
}

// Acquire returns the published outcome for hash, or a ticket when the caller
// is now responsible for producing it. It waits, without holding the registry
// lock, while another owner is working on the same hash.
func (r *Registry) Acquire(ctx context.Context, hash string) (*Outcome, *Ticket, error) {
	for {
		r.mu.Lock()
		s, ok := r.entries[hash]
		if !ok {
			s = &slot{done: make(chan struct{})}
			r.entries[hash] = s
			r.mu.Unlock()
			r.misses.Add(1)
			return nil, &Ticket{reg: r, hash: hash, slot: s}, nil
		}
		outcome := s.outcome
		r.mu.Unlock()
		if outcome != nil {
			r.hits.Add(1)
			return outcome, nil, nil
		}

		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		// an abandoned slot is gone from the map; try to become the owner
	}
}

// Lookup returns the published outcome for hash without waiting.
func (r *Registry) Lookup(hash string) (*Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[hash]
	if !ok || s.outcome == nil {
		return nil, false
	}
	return s.outcome, true
}

// Publish stores the outcome and wakes waiters.
func (t *Ticket) Publish(o *Outcome) {
	t.once.Do(func() {
		t.reg.mu.Lock()
		t.slot.outcome = o
		t.reg.mu.Unlock()
		close(t.slot.done)
	})
}

// Abandon gives up ownership; the next waiter becomes the owner.
func (t *Ticket) Abandon() {
	t.once.Do(func() {
		t.reg.mu.Lock()
		if t.reg.entries[t.hash] == t.slot {
			delete(t.reg.entries, t.hash)
		}
		t.reg.mu.Unlock()
		close(t.slot.done)
	})
}

// Hash returns the content hash the ticket owns.
func (t *Ticket) Hash() string { return t.hash }

// Stats returns the number of cache hits and misses.
func (r *Registry) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

// Len returns the number of published or in-flight hashes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
