package xacml

import (
	"sort"

	"github.com/altinn-access/go-core/pkg/types"
)

// CategoryAttributes collects every attribute match in the rule's target
// that designates the given category.
func (r *Rule) CategoryAttributes(category string) []types.AttributeMatch {
	var attrs []types.AttributeMatch
	for _, anyOf := range r.Target.AnyOf {
		for _, allOf := range anyOf.AllOf {
			for _, m := range allOf.Matches {
				if m.AttributeDesignator.Category == category {
					attrs = append(attrs, types.AttributeMatch{
						ID:    m.AttributeDesignator.AttributeID,
						Value: m.AttributeValue.Value,
					})
				}
			}
		}
	}
	return attrs
}

// signature is the category-wise attribute fingerprint used for exact
// duplicate detection: resource and action attribute-for-attribute.
func (r *Rule) signature() string {
	return attributeFingerprint(r.CategoryAttributes(CategoryResource)) + "||" +
		attributeFingerprint(r.CategoryAttributes(CategoryAction))
}

func attributeFingerprint(attrs []types.AttributeMatch) string {
	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key())
	}
	sort.Strings(keys)
	joined := ""
	for i, k := range keys {
		if i > 0 {
			joined += ";"
		}
		joined += k
	}
	return joined
}

// FindEquivalentRule returns the existing rule with the same resource and
// action attributes as candidate, if one exists.
func (p *Policy) FindEquivalentRule(candidate *Rule) (*Rule, bool) {
	want := candidate.signature()
	for i := range p.Rules {
		if p.Rules[i].signature() == want {
			return &p.Rules[i], true
		}
	}
	return nil, false
}

// RemoveRules deletes the rules with the given ids and returns the
// removed rules. Unknown ids are ignored.
func (p *Policy) RemoveRules(ruleIDs []string) []Rule {
	wanted := make(map[string]struct{}, len(ruleIDs))
	for _, id := range ruleIDs {
		wanted[id] = struct{}{}
	}

	var removed []Rule
	kept := p.Rules[:0]
	for _, r := range p.Rules {
		if _, ok := wanted[r.RuleID]; ok {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	p.Rules = kept
	return removed
}

// AuthorizesDelegation reports whether the authoritative policy contains
// a rule covering the requested resource and action: the rule's resource
// attributes must all be present in the requested resource set, and the
// requested action value must match one of the rule's action attributes.
func (p *Policy) AuthorizesDelegation(resource []types.AttributeMatch, action types.AttributeMatch) bool {
	requested := make(map[string]struct{}, len(resource))
	for _, a := range resource {
		requested[a.Key()] = struct{}{}
	}

	for i := range p.Rules {
		rule := &p.Rules[i]
		if rule.Effect != EffectPermit {
			continue
		}
		ruleResource := rule.CategoryAttributes(CategoryResource)
		if len(ruleResource) == 0 {
			continue
		}
		covered := true
		for _, a := range ruleResource {
			if _, ok := requested[a.Key()]; !ok {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}
		for _, a := range rule.CategoryAttributes(CategoryAction) {
			if a.Value == action.Value {
				return true
			}
		}
	}
	return false
}

// FlattenRule builds the externally visible delegation rule from one
// permit rule and its owning change row, distributing the target's
// matches into action, subject and resource buckets.
func FlattenRule(r *Rule, change *types.DelegationChange) *types.Rule {
	flat := &types.Rule{
		RuleID:              r.RuleID,
		Type:                types.RuleTypeDirectlyDelegated,
		CreatedSuccessfully: true,
		DelegatedByUserID:   change.PerformedByUserID,
		OfferedByPartyID:    change.OfferedByPartyID,
		CoveredBy:           r.CategoryAttributes(CategorySubject),
		Resource:            r.CategoryAttributes(CategoryResource),
	}
	if actions := r.CategoryAttributes(CategoryAction); len(actions) > 0 {
		flat.Action = actions[0]
	}
	return flat
}
