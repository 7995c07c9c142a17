package types

import (
	"errors"
	"time"
)

// DelegationChangeType is the kind of mutation recorded in the ledger.
type DelegationChangeType string

const (
	// DelegationChangeGrant records rules added to a delegation policy.
	DelegationChangeGrant DelegationChangeType = "Grant"
	// DelegationChangeRevoke records rules removed while others remain.
	DelegationChangeRevoke DelegationChangeType = "Revoke"
	// DelegationChangeRevokeLast records that the policy's rule set is
	// now empty. It is a sentinel: further deletes against the path must
	// fail fast instead of reading a stale version.
	DelegationChangeRevokeLast DelegationChangeType = "RevokeLast"
)

// DelegationChange is one immutable row in the delegation ledger. One row
// is appended per successful policy mutation; rows are never updated or
// deleted, and the current state for a (resource, offeredBy, coveredBy)
// tuple is its most recent row.
type DelegationChange struct {
	DelegationChangeID    int                  `json:"delegationChangeId"`
	Type                  DelegationChangeType `json:"delegationChangeType"`
	AltinnAppID           string               `json:"altinnAppId,omitempty"`
	ResourceID            string               `json:"resourceId,omitempty"`
	ResourceType          string               `json:"resourceType,omitempty"`
	OfferedByPartyID      int                  `json:"offeredByPartyId"`
	CoveredByPartyID      int                  `json:"coveredByPartyId,omitempty"`
	CoveredByUserID       int                  `json:"coveredByUserId,omitempty"`
	PerformedByUserID     int                  `json:"performedByUserId"`
	BlobStoragePolicyPath string               `json:"blobStoragePolicyPath"`
	BlobStorageVersionID  string               `json:"blobStorageVersionId"`
	Created               time.Time            `json:"created"`
}

// ResourceKey returns the identifier of the delegated resource: the app
// id ("org/app") for Altinn apps, the registry id otherwise.
func (c *DelegationChange) ResourceKey() string {
	if c.AltinnAppID != "" {
		return c.AltinnAppID
	}
	return c.ResourceID
}

// Validate enforces the ledger row invariants: exactly one recipient kind
// and exactly one resource identifier.
func (c *DelegationChange) Validate() error {
	if c.OfferedByPartyID <= 0 {
		return errors.New("offeredByPartyId is required")
	}
	if (c.CoveredByPartyID > 0) == (c.CoveredByUserID > 0) {
		return errors.New("exactly one of coveredByPartyId and coveredByUserId must be set")
	}
	if (c.AltinnAppID != "") == (c.ResourceID != "") {
		return errors.New("exactly one of altinnAppId and resourceId must be set")
	}
	if c.PerformedByUserID <= 0 {
		return errors.New("performedByUserId is required")
	}
	if c.BlobStoragePolicyPath == "" {
		return errors.New("blobStoragePolicyPath is required")
	}
	switch c.Type {
	case DelegationChangeGrant, DelegationChangeRevoke, DelegationChangeRevokeLast:
	default:
		return errors.New("invalid delegation change type")
	}
	return nil
}
