package parser

import (
	"fmt"
	"sort"
	"strings"
)

// Registered is a parser together with its dispatch priority.
type Registered struct {
	Parser   Parser
	Priority int
	order    int
}

// Registry is an explicit, ordered table of parsers. It is built once before a
// session starts and only read afterwards.
type Registry struct {
	entries []Registered
	byName  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds p with the given priority. Higher priorities are tried first
// when several parsers match at the same offset.
func (r *Registry) Register(p Parser, priority int) error {
	if p == nil {
		return fmt.Errorf("register: nil parser")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("register: parser without a name")
	}
	key := strings.ToLower(name)
	if _, ok := r.byName[key]; ok {
		return fmt.Errorf("register: duplicate parser %q", name)
	}
	for _, sig := range p.Signatures() {
		if len(sig.Pattern) == 0 || sig.Offset < 0 {
			return fmt.Errorf("register: parser %q has an invalid signature", name)
		}
	}
	if len(p.Signatures()) == 0 && len(p.Extensions()) == 0 {
		return fmt.Errorf("register: parser %q has neither signatures nor extensions", name)
	}
	r.byName[key] = len(r.entries)
	r.entries = append(r.entries, Registered{Parser: p, Priority: priority, order: len(r.entries)})
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(p Parser, priority int) {
	if err := r.Register(p, priority); err != nil {
		panic(err)
	}
}

// Lookup returns the registered parser with the given name.
func (r *Registry) Lookup(name string) (Registered, bool) {
	idx, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Registered{}, false
	}
	return r.entries[idx], true
}

// Parsers returns all parsers ordered by priority, highest first, with
// registration order breaking ties.
func (r *Registry) Parsers() []Registered {
	out := append([]Registered(nil), r.entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less orders two registrations for dispatch.
func Less(a, b Registered) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.order < b.order
}

// Order is the registration index, used as the final tie-breaker.
func (r Registered) Order() int { return r.order }

func (r *Registry) Len() int { return len(r.entries) }

// MaxSignatureSpan returns the largest Offset+len(Pattern) over all signatures.
func (r *Registry) MaxSignatureSpan() int64 {
	var span int64
	for _, e := range r.entries {
		for _, sig := range e.Parser.Signatures() {
			if end := sig.Offset + int64(len(sig.Pattern)); end > span {
				span = end
			}
		}
	}
	return span
}
