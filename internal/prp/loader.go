// Package prp is the policy retrieval point: authoritative app and
// resource policies loaded from a policy directory, and delegation
// policy versions read from blob storage pinned by version id.
package prp

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/xacml"
)

// AuthoritativeStore holds the authoritative XACML policies keyed by
// resource key: "{org}/{app}" for apps (nested directories) and the
// registry id for registry resources. Reload swaps the whole map so
// readers never see a half-loaded directory.
type AuthoritativeStore struct {
	dir    string
	logger *zap.Logger

	mu       sync.RWMutex
	policies map[string]*xacml.Policy
}

// NewAuthoritativeStore creates a store over the given policy directory.
func NewAuthoritativeStore(dir string, logger *zap.Logger) *AuthoritativeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthoritativeStore{
		dir:      dir,
		logger:   logger,
		policies: make(map[string]*xacml.Policy),
	}
}

// Load reads every .xml policy under the directory. Files that fail to
// parse are skipped with a warning so one bad file cannot take down the
// whole authoritative set.
func (s *AuthoritativeStore) Load() error {
	loaded := make(map[string]*xacml.Policy)

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".xml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("Failed to read policy file", zap.String("file", path), zap.Error(err))
			return nil
		}
		policy, err := xacml.Unmarshal(data)
		if err != nil || policy == nil {
			s.logger.Warn("Failed to parse policy file", zap.String("file", path), zap.Error(err))
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
		loaded[key] = policy
		return nil
	})
	if err != nil {
		return fmt.Errorf("load policy directory %s: %w", s.dir, err)
	}

	s.mu.Lock()
	s.policies = loaded
	s.mu.Unlock()

	s.logger.Info("Authoritative policies loaded",
		zap.String("dir", s.dir),
		zap.Int("count", len(loaded)),
	)
	return nil
}

// Get returns the authoritative policy for a resource key, or nil.
func (s *AuthoritativeStore) Get(resourceKey string) *xacml.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[resourceKey]
}

// Count returns the number of loaded policies.
func (s *AuthoritativeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}
