package prp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/blob"
	"github.com/altinn-access/go-core/internal/xacml"
)

// Config configures the retrieval point's version cache.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns the default retrieval point configuration.
func DefaultConfig() Config {
	return Config{
		CacheSize: 4096,
		CacheTTL:  time.Hour,
	}
}

// PolicyRetrievalPoint serves XACML policies to the administration and
// information points: authoritative policies by resource key, delegation
// policies by (path, version).
type PolicyRetrievalPoint struct {
	authoritative *AuthoritativeStore
	blobStore     blob.PolicyStore
	cache         *policyCache
	logger        *zap.Logger
}

// New creates a retrieval point over the authoritative store and the
// delegation policy blob store.
func New(authoritative *AuthoritativeStore, blobStore blob.PolicyStore, config Config, logger *zap.Logger) *PolicyRetrievalPoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyRetrievalPoint{
		authoritative: authoritative,
		blobStore:     blobStore,
		cache:         newPolicyCache(config.CacheSize, config.CacheTTL),
		logger:        logger,
	}
}

// GetPolicy returns the authoritative policy for an app or registry
// resource key, or nil when none is registered.
func (p *PolicyRetrievalPoint) GetPolicy(_ context.Context, resourceKey string) (*xacml.Policy, error) {
	if p.authoritative == nil {
		return nil, nil
	}
	return p.authoritative.Get(resourceKey), nil
}

// GetPolicyVersion reads one pinned delegation policy version. Versions
// are immutable, so cache hits never need revalidation. A missing
// version returns (nil, nil): the caller decides whether that is an
// inconsistency or an empty placeholder.
func (p *PolicyRetrievalPoint) GetPolicyVersion(ctx context.Context, path, versionID string) (*xacml.Policy, error) {
	key := path + "|" + versionID
	if policy, ok := p.cache.get(key); ok {
		return policy.Clone(), nil
	}

	data, err := p.blobStore.GetVersion(ctx, path, versionID)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy version %s@%s: %w", path, versionID, err)
	}

	policy, err := xacml.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse policy version %s@%s: %w", path, versionID, err)
	}
	// The cache keeps its own copy: callers own the returned policy and
	// are free to mutate it.
	if policy != nil {
		p.cache.set(key, policy.Clone())
	}
	return policy, nil
}
