// Package resolver expands partial attribute sets into the complete sets
// authorization decisions need. Resolvers form a static tree mirroring
// the attribute namespace hierarchy; leaves are atomic lookups with
// declared inputs and outputs, and Resolve runs eligible branches
// concurrently until a fixed point is reached.
package resolver

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/pkg/types"
)

// ResolveFunc computes new attributes from the currently known set.
// Returning no attributes is valid ("nothing derivable"); an error
// aborts the whole Resolve call.
type ResolveFunc func(ctx context.Context, attributes []types.AttributeMatch) ([]types.AttributeMatch, error)

// Resolution is a leaf lookup: it cannot run until every Needs id is
// present, is skipped once every Resolves id is already present, and is
// skipped when the caller's wants don't intersect Resolves.
type Resolution struct {
	Needs    []string
	Resolves []string
	Fn       ResolveFunc
}

// Resolver is one internal node of the resolver tree. Build the tree at
// startup with AddChild/AddResolution and treat it as immutable
// afterwards; Resolve is safe for concurrent use on an immutable tree.
type Resolver struct {
	name        string
	children    []*Resolver
	resolutions []Resolution
	logger      *zap.Logger
}

// New creates a resolver node named after the attribute namespace it
// covers (e.g. "urn:altinn:keyrole").
func New(name string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{name: name, logger: logger}
}

// Name returns the node's namespace name.
func (r *Resolver) Name() string {
	return r.name
}

// AddChild attaches a child resolver node.
func (r *Resolver) AddChild(child *Resolver) *Resolver {
	r.children = append(r.children, child)
	return r
}

// AddResolution attaches a leaf lookup.
func (r *Resolver) AddResolution(needs, resolves []string, fn ResolveFunc) *Resolver {
	r.resolutions = append(r.resolutions, Resolution{Needs: needs, Resolves: resolves, Fn: fn})
	return r
}

// Resolve expands known into the closure of all derivable attributes
// relevant to wants. An empty wants means "resolve everything
// reachable". The result is a deduplicated superset of known with no
// guaranteed ordering. Any leaf failure aborts the call: callers must
// treat an error as "resolution indeterminate", never as a partial set.
func (r *Resolver) Resolve(ctx context.Context, known []types.AttributeMatch, wants []string) ([]types.AttributeMatch, error) {
	acc := newAccumulator(known)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		before := acc.size()
		if err := r.runRound(ctx, acc, wants); err != nil {
			return nil, err
		}
		// Fixed point: every round either adds at least one distinct
		// attribute or the loop exits, so termination is guaranteed even
		// for cyclic needs/resolves declarations.
		if acc.size() == before {
			return acc.snapshot(), nil
		}
	}
}

// runRound fans out every eligible child and leaf concurrently and
// merges their results into the accumulator.
func (r *Resolver) runRound(ctx context.Context, acc *accumulator, wants []string) error {
	snapshot := acc.snapshot()
	var tasks []func(context.Context) ([]types.AttributeMatch, error)

	for _, child := range r.children {
		if !nameRelevant(child.name, wants) {
			continue
		}
		c := child
		tasks = append(tasks, func(taskCtx context.Context) ([]types.AttributeMatch, error) {
			return c.Resolve(taskCtx, snapshot, wants)
		})
	}

	for _, res := range r.resolutions {
		if !acc.hasAllIDs(res.Needs) {
			continue
		}
		if acc.hasAllIDs(res.Resolves) {
			// Already resolved: firing again cannot add anything, and
			// skipping is what terminates self-feeding declarations.
			continue
		}
		if !resolvesRelevant(res.Resolves, wants) {
			continue
		}
		fn := res.Fn
		tasks = append(tasks, func(taskCtx context.Context) ([]types.AttributeMatch, error) {
			return fn(taskCtx, snapshot)
		})
	}

	if len(tasks) == 0 {
		return nil
	}
	return runConcurrent(ctx, tasks, acc)
}

// runConcurrent executes the tasks in parallel, funneling results into
// the accumulator. The first failure cancels every sibling branch and
// is returned.
func runConcurrent(ctx context.Context, tasks []func(context.Context) ([]types.AttributeMatch, error), acc *accumulator) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(fn func(context.Context) ([]types.AttributeMatch, error)) {
			defer wg.Done()
			attrs, err := fn(runCtx)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			acc.add(attrs)
		}(task)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// nameRelevant reports whether a child node covers any want: its name is
// a prefix of, or is prefixed by, the want. Empty wants match everything.
func nameRelevant(name string, wants []string) bool {
	if len(wants) == 0 {
		return true
	}
	for _, want := range wants {
		if strings.HasPrefix(want, name) || strings.HasPrefix(name, want) {
			return true
		}
	}
	return false
}

// resolvesRelevant reports whether any resolved attribute id intersects
// the wants, by prefix in either direction.
func resolvesRelevant(resolves, wants []string) bool {
	if len(wants) == 0 {
		return true
	}
	for _, id := range resolves {
		for _, want := range wants {
			if strings.HasPrefix(id, want) || strings.HasPrefix(want, id) {
				return true
			}
		}
	}
	return false
}
