package policypath

import (
	"sort"

	"github.com/altinn-access/go-core/pkg/types"
)

// RuleGroup is the set of rules targeting one delegation policy path.
type RuleGroup struct {
	Path  string
	Ref   Ref
	Rules []*types.Rule
}

// GroupRulesByPath partitions rules by their target delegation policy
// path. The grouping key is order-independent: the same rules in any
// input order produce the same path -> rules mapping, with groups
// returned in lexical path order and rules within a group in input
// order. Rules whose attributes cannot derive a path are returned as the
// unsortable remainder with their rule id cleared.
func GroupRulesByPath(rules []*types.Rule) ([]*RuleGroup, []*types.Rule) {
	groups := make(map[string]*RuleGroup)
	var unsortable []*types.Rule

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			r.RuleID = ""
			unsortable = append(unsortable, r)
			continue
		}
		ref, err := FromRule(r)
		if err != nil {
			r.RuleID = ""
			unsortable = append(unsortable, r)
			continue
		}
		path, err := ref.PolicyPath()
		if err != nil {
			r.RuleID = ""
			unsortable = append(unsortable, r)
			continue
		}
		g, ok := groups[path]
		if !ok {
			g = &RuleGroup{Path: path, Ref: ref}
			groups[path] = g
		}
		g.Rules = append(g.Rules, r)
	}

	ordered := make([]*RuleGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })
	return ordered, unsortable
}
