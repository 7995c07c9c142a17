package types

import (
	"errors"
	"fmt"
)

// RuleType classifies how a delegated rule applies to the covered party.
type RuleType int

const (
	// RuleTypeNone means the type has not been classified.
	RuleTypeNone RuleType = iota
	// RuleTypeDirectlyDelegated means the rule was delegated directly to
	// the covered user or party.
	RuleTypeDirectlyDelegated
	// RuleTypeInheritedViaKeyRole means the rule applies because the
	// covered user holds a key role for the covered party.
	RuleTypeInheritedViaKeyRole
)

func (t RuleType) String() string {
	switch t {
	case RuleTypeDirectlyDelegated:
		return "DirectlyDelegated"
	case RuleTypeInheritedViaKeyRole:
		return "InheritedViaKeyRole"
	default:
		return "None"
	}
}

// Rule is one delegated (resource, action, coveredBy, offeredBy) permit
// statement. Rules are a transient view built from a delegation change
// row plus its pinned policy version; they are never persisted directly.
type Rule struct {
	RuleID              string           `json:"ruleId"`
	Type                RuleType         `json:"type"`
	CreatedSuccessfully bool             `json:"createdSuccessfully"`
	DelegatedByUserID   int              `json:"delegatedByUserId"`
	OfferedByPartyID    int              `json:"offeredByPartyId"`
	CoveredBy           []AttributeMatch `json:"coveredBy"`
	Resource            []AttributeMatch `json:"resource"`
	Action              AttributeMatch   `json:"action"`
}

// Validate checks that the rule carries the attributes required to derive
// a delegation policy path and a ledger row.
func (r *Rule) Validate() error {
	if r.OfferedByPartyID <= 0 {
		return errors.New("offeredByPartyId is required")
	}
	if len(r.Resource) == 0 {
		return errors.New("resource is required")
	}
	if r.Action.Value == "" {
		return errors.New("action is required")
	}
	if len(r.CoveredBy) == 0 {
		return errors.New("coveredBy is required")
	}
	return nil
}

// PolicyMatch identifies one delegation policy by its resource, offering
// party and covered party attributes.
type PolicyMatch struct {
	OfferedByPartyID int              `json:"offeredByPartyId"`
	CoveredBy        []AttributeMatch `json:"coveredBy"`
	Resource         []AttributeMatch `json:"resource"`
}

// RequestToDelete asks for removal of specific rules (by id) from one
// delegation policy, or of the whole policy when RuleIDs is empty and the
// request is routed to the delete-policies operation.
type RequestToDelete struct {
	DeletedByUserID int              `json:"deletedByUserId"`
	PolicyMatch     *PolicyMatch     `json:"policyMatch"`
	RuleIDs         []string         `json:"ruleIds,omitempty"`
}

// Validate checks the request identifies a policy.
func (r *RequestToDelete) Validate() error {
	if r.PolicyMatch == nil {
		return errors.New("policyMatch is required")
	}
	if r.PolicyMatch.OfferedByPartyID <= 0 {
		return errors.New("policyMatch.offeredByPartyId is required")
	}
	if len(r.PolicyMatch.Resource) == 0 {
		return errors.New("policyMatch.resource is required")
	}
	if len(r.PolicyMatch.CoveredBy) == 0 {
		return errors.New("policyMatch.coveredBy is required")
	}
	if r.DeletedByUserID <= 0 {
		return fmt.Errorf("deletedByUserId is required")
	}
	return nil
}
