// Package repository persists the delegation change ledger: one
// append-only row per successful policy mutation, with "current" defined
// as the latest row per (resource, offeredBy, coveredBy) tuple.
package repository

import (
	"context"

	"github.com/altinn-access/go-core/pkg/types"
)

// ChangeQuery filters GetAllCurrent. Empty slices match everything for
// that dimension, except OfferedByPartyIDs which is required.
type ChangeQuery struct {
	OfferedByPartyIDs []int
	ResourceKeys      []string
	CoveredByPartyIDs []int
	CoveredByUserIDs  []int
}

// DelegationChangeRepository is the ledger contract consumed by the
// administration and information points.
type DelegationChangeRepository interface {
	// Insert appends a change row and returns it with the DB-assigned id
	// (>0). A nil result or non-positive id signals insert failure
	// without an infrastructure error.
	Insert(ctx context.Context, change *types.DelegationChange) (*types.DelegationChange, error)

	// GetCurrent returns the latest change row for one (resource,
	// offeredBy, coveredBy) tuple, or (nil, nil) when no row exists.
	// A RevokeLast row is returned as-is; callers branch on its type.
	GetCurrent(ctx context.Context, resourceKey string, offeredByPartyID, coveredByPartyID, coveredByUserID int) (*types.DelegationChange, error)

	// GetAllCurrent returns the latest row per matching tuple.
	GetAllCurrent(ctx context.Context, query ChangeQuery) ([]*types.DelegationChange, error)

	// GetAll returns the full change history for one tuple, oldest first.
	GetAll(ctx context.Context, resourceKey string, offeredByPartyID, coveredByPartyID, coveredByUserID int) ([]*types.DelegationChange, error)
}
