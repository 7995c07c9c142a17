package xacml

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/altinn-access/go-core/pkg/types"
)

// NewDelegationPolicy builds a fresh delegation policy document for one
// (resource, offeredBy, coveredBy) tuple from the given rules. Every rule
// is assigned a fresh rule id.
func NewDelegationPolicy(resourceKey string, offeredByPartyID int, coveredBy []types.AttributeMatch, rules []*types.Rule) *Policy {
	p := &Policy{
		Xmlns:              PolicyNamespace,
		PolicyID:           fmt.Sprintf("urn:altinn:delegationpolicy:%s:p%d", resourceKey, offeredByPartyID),
		Version:            "1.0",
		RuleCombiningAlgID: RuleCombiningDenyOverrides,
		Description: fmt.Sprintf(
			"Delegation policy containing all delegated rights/actions from party %d for %s", offeredByPartyID, resourceKey),
	}
	for _, r := range rules {
		p.Rules = append(p.Rules, BuildDelegationRule(r, coveredBy))
	}
	return p
}

// BuildDelegationRule converts a delegation rule into its XACML permit
// rule, assigning a fresh rule id and recording it back on the rule.
func BuildDelegationRule(r *types.Rule, coveredBy []types.AttributeMatch) Rule {
	r.RuleID = uuid.NewString()

	subject := make([]Match, 0, len(coveredBy))
	for _, cb := range coveredBy {
		subject = append(subject, newMatch(CategorySubject, cb))
	}
	resource := make([]Match, 0, len(r.Resource))
	for _, res := range r.Resource {
		resource = append(resource, newMatch(CategoryResource, res))
	}
	actionID := r.Action.ID
	if actionID == "" {
		actionID = types.AttributeActionID
	}
	action := newMatch(CategoryAction, types.AttributeMatch{ID: actionID, Value: r.Action.Value})

	return Rule{
		RuleID: r.RuleID,
		Effect: EffectPermit,
		Description: fmt.Sprintf(
			"Delegation of right to perform '%s' by party %d", r.Action.Value, r.OfferedByPartyID),
		Target: Target{AnyOf: []AnyOf{
			{AllOf: []AllOf{{Matches: subject}}},
			{AllOf: []AllOf{{Matches: resource}}},
			{AllOf: []AllOf{{Matches: []Match{action}}}},
		}},
	}
}

func newMatch(category string, attr types.AttributeMatch) Match {
	return Match{
		MatchID:        MatchStringEqual,
		AttributeValue: AttributeValue{DataType: DataTypeString, Value: attr.Value},
		AttributeDesignator: AttributeDesignator{
			AttributeID:   attr.ID,
			Category:      category,
			DataType:      DataTypeString,
			MustBePresent: false,
		},
	}
}
