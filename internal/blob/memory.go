package blob

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLeaseTTL bounds how long a crashed writer can block a path.
const DefaultLeaseTTL = 30 * time.Second

// MemoryStore is an in-process PolicyStore for tests and local runs.
// Leases are single-holder per path with TTL expiry.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	leaseTTL time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	versions    []memoryVersion
	leaseID     string
	leaseExpiry time.Time
}

type memoryVersion struct {
	id      string
	content []byte
}

// NewMemoryStore creates an empty store with the default lease TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*memoryEntry),
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
}

// SetLeaseTTL overrides the lease TTL (tests).
func (s *MemoryStore) SetLeaseTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaseTTL = ttl
}

// Exists reports whether any version exists at the path.
func (s *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[path]
	return ok && len(entry.versions) > 0, nil
}

// Write stores content unconditionally.
func (s *MemoryStore) Write(_ context.Context, path string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendVersion(path, content), nil
}

// WriteConditional stores content only while leaseID holds the path.
func (s *MemoryStore) WriteConditional(_ context.Context, path string, content []byte, leaseID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[path]
	if !ok || leaseID == "" || entry.leaseID != leaseID || s.now().After(entry.leaseExpiry) {
		return "", ErrLeaseMismatch
	}
	return s.appendVersion(path, content), nil
}

// GetVersion reads one pinned version.
func (s *MemoryStore) GetVersion(_ context.Context, path, versionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[path]
	if !ok {
		return nil, ErrNotFound
	}
	for _, v := range entry.versions {
		if v.id == versionID {
			content := make([]byte, len(v.content))
			copy(content, v.content)
			return content, nil
		}
	}
	return nil, ErrNotFound
}

// AcquireLease takes the exclusive lease for the path.
func (s *MemoryStore) AcquireLease(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[path]
	if !ok {
		entry = &memoryEntry{}
		s.entries[path] = entry
	}
	if entry.leaseID != "" && s.now().Before(entry.leaseExpiry) {
		return "", ErrLeaseNotAvailable
	}

	entry.leaseID = uuid.NewString()
	entry.leaseExpiry = s.now().Add(s.leaseTTL)
	return entry.leaseID, nil
}

// ReleaseLease gives the lease back. Idempotent.
func (s *MemoryStore) ReleaseLease(_ context.Context, path, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[path]
	if !ok || entry.leaseID != leaseID {
		return nil
	}
	entry.leaseID = ""
	entry.leaseExpiry = time.Time{}
	return nil
}

func (s *MemoryStore) appendVersion(path string, content []byte) string {
	entry, ok := s.entries[path]
	if !ok {
		entry = &memoryEntry{}
		s.entries[path] = entry
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	version := memoryVersion{id: uuid.NewString(), content: stored}
	entry.versions = append(entry.versions, version)
	return version.id
}
