package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/altinn-access/go-core/pkg/types"
)

// InMemoryRepository is a ledger implementation backed by a slice, for
// tests and local single-instance runs.
type InMemoryRepository struct {
	mu      sync.RWMutex
	rows    []*types.DelegationChange
	nextID  int
	failing bool
}

// NewInMemoryRepository creates an empty in-memory ledger.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

// FailInserts makes subsequent Insert calls return a nil row, simulating
// the metadata-store failure mode.
func (r *InMemoryRepository) FailInserts(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = fail
}

// Insert appends a change row.
func (r *InMemoryRepository) Insert(_ context.Context, change *types.DelegationChange) (*types.DelegationChange, error) {
	if err := change.Validate(); err != nil {
		return nil, fmt.Errorf("invalid delegation change: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing {
		return nil, nil
	}

	stored := *change
	stored.DelegationChangeID = r.nextID
	r.nextID++
	if stored.Created.IsZero() {
		stored.Created = time.Now().UTC()
	}
	r.rows = append(r.rows, &stored)

	result := stored
	return &result, nil
}

// GetCurrent returns the latest row for one tuple, or (nil, nil).
func (r *InMemoryRepository) GetCurrent(_ context.Context, resourceKey string, offeredByPartyID, coveredByPartyID, coveredByUserID int) (*types.DelegationChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.rows) - 1; i >= 0; i-- {
		row := r.rows[i]
		if row.ResourceKey() == resourceKey &&
			row.OfferedByPartyID == offeredByPartyID &&
			row.CoveredByPartyID == coveredByPartyID &&
			row.CoveredByUserID == coveredByUserID {
			result := *row
			return &result, nil
		}
	}
	return nil, nil
}

// GetAllCurrent returns the latest row per matching tuple.
func (r *InMemoryRepository) GetAllCurrent(_ context.Context, query ChangeQuery) ([]*types.DelegationChange, error) {
	if len(query.OfferedByPartyIDs) == 0 {
		return nil, fmt.Errorf("offeredByPartyIds is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[string]*types.DelegationChange)
	var order []string
	for _, row := range r.rows {
		if !containsInt(query.OfferedByPartyIDs, row.OfferedByPartyID) {
			continue
		}
		if len(query.ResourceKeys) > 0 && !containsString(query.ResourceKeys, row.ResourceKey()) {
			continue
		}
		if len(query.CoveredByPartyIDs) > 0 || len(query.CoveredByUserIDs) > 0 {
			matched := (row.CoveredByPartyID > 0 && containsInt(query.CoveredByPartyIDs, row.CoveredByPartyID)) ||
				(row.CoveredByUserID > 0 && containsInt(query.CoveredByUserIDs, row.CoveredByUserID))
			if !matched {
				continue
			}
		}
		key := tupleKey(row)
		if _, ok := latest[key]; !ok {
			order = append(order, key)
		}
		latest[key] = row
	}

	result := make([]*types.DelegationChange, 0, len(order))
	for _, key := range order {
		row := *latest[key]
		result = append(result, &row)
	}
	return result, nil
}

// GetAll returns the full history for one tuple, oldest first.
func (r *InMemoryRepository) GetAll(_ context.Context, resourceKey string, offeredByPartyID, coveredByPartyID, coveredByUserID int) ([]*types.DelegationChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*types.DelegationChange
	for _, row := range r.rows {
		if row.ResourceKey() == resourceKey &&
			row.OfferedByPartyID == offeredByPartyID &&
			row.CoveredByPartyID == coveredByPartyID &&
			row.CoveredByUserID == coveredByUserID {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

func tupleKey(c *types.DelegationChange) string {
	return fmt.Sprintf("%s|%d|%d|%d", c.ResourceKey(), c.OfferedByPartyID, c.CoveredByPartyID, c.CoveredByUserID)
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
