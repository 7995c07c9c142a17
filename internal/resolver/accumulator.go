package resolver

import (
	"sync"

	"github.com/altinn-access/go-core/pkg/types"
)

// accumulator is the thread-safe, append-only attribute bag shared by
// the concurrent resolution branches of one Resolve call. Attributes are
// deduplicated by (id, value); removal is never needed.
type accumulator struct {
	mu    sync.Mutex
	attrs []types.AttributeMatch
	keys  map[string]struct{}
	ids   map[string]int
}

func newAccumulator(known []types.AttributeMatch) *accumulator {
	acc := &accumulator{
		keys: make(map[string]struct{}),
		ids:  make(map[string]int),
	}
	acc.add(known)
	return acc
}

// add merges attributes, returning how many were new.
func (a *accumulator) add(attrs []types.AttributeMatch) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	added := 0
	for _, attr := range attrs {
		key := attr.Key()
		if _, ok := a.keys[key]; ok {
			continue
		}
		a.keys[key] = struct{}{}
		a.ids[attr.ID]++
		a.attrs = append(a.attrs, attr)
		added++
	}
	return added
}

// size returns the number of distinct attributes.
func (a *accumulator) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attrs)
}

// hasAllIDs reports whether every id is present with at least one value.
func (a *accumulator) hasAllIDs(ids []string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if a.ids[id] == 0 {
			return false
		}
	}
	return true
}

// snapshot returns a copy of the current attribute set.
func (a *accumulator) snapshot() []types.AttributeMatch {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.AttributeMatch, len(a.attrs))
	copy(out, a.attrs)
	return out
}
