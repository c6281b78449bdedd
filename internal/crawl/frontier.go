package crawl

import (
	"strings"
	"sync"

	"shotcrawl/internal/model"
)

// Normalize drops the fragment identifier so page#a and page#b share a key.
func Normalize(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

type visitKey struct {
	auth    model.AuthContext
	address string
}

// Frontier records which (auth context, address) pairs were scheduled.
// Entries are added at decision time and never removed.
type Frontier struct {
	base string

	mu      sync.Mutex
	visited map[visitKey]struct{}
}

// NewFrontier creates a frontier that accepts addresses under base.
func NewFrontier(base string) *Frontier {
	return &Frontier{
		base:    base,
		visited: make(map[visitKey]struct{}),
	}
}

// SameOrigin reports whether the normalized address lies under the base
// address. The test is a plain string prefix match.
func (f *Frontier) SameOrigin(address string) bool {
	return strings.HasPrefix(address, f.base)
}

// ShouldVisit returns true exactly once per (auth, normalized address).
// Cross-origin addresses are rejected without being recorded.
func (f *Frontier) ShouldVisit(auth model.AuthContext, raw string) bool {
	address := Normalize(raw)
	if !f.SameOrigin(address) {
		return false
	}

	key := visitKey{auth: auth, address: address}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.visited[key]; seen {
		return false
	}
	f.visited[key] = struct{}{}
	return true
}

// Len returns the number of recorded pairs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
