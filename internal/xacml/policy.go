// Package xacml models the XACML 3.0 delegation policy documents stored
// in blob storage: the document structure, XML codec, and the rule
// matching helpers used by the administration and information points.
package xacml

import (
	"encoding/xml"
	"fmt"
)

// XACML 3.0 identifiers used by delegation policies.
const (
	PolicyNamespace = "urn:oasis:names:tc:xacml:3.0:core:schema:wd-17"

	RuleCombiningDenyOverrides = "urn:oasis:names:tc:xacml:3.0:rule-combining-algorithm:deny-overrides"

	CategoryAction   = "urn:oasis:names:tc:xacml:3.0:attribute-category:action"
	CategorySubject  = "urn:oasis:names:tc:xacml:1.0:subject-category:access-subject"
	CategoryResource = "urn:oasis:names:tc:xacml:3.0:attribute-category:resource"

	MatchStringEqual       = "urn:oasis:names:tc:xacml:1.0:function:string-equal"
	MatchStringEqualIgnore = "urn:oasis:names:tc:xacml:3.0:function:string-equal-ignore-case"

	DataTypeString = "http://www.w3.org/2001/XMLSchema#string"

	EffectPermit = "Permit"
	EffectDeny   = "Deny"
)

// Policy is an XACML policy document. Delegation policies hold zero or
// more rules combined with deny-overrides.
type Policy struct {
	XMLName              xml.Name `xml:"Policy"`
	Xmlns                string   `xml:"xmlns,attr,omitempty"`
	PolicyID             string   `xml:"PolicyId,attr"`
	Version              string   `xml:"Version,attr,omitempty"`
	RuleCombiningAlgID   string   `xml:"RuleCombiningAlgId,attr"`
	Description          string   `xml:"Description,omitempty"`
	Target               Target   `xml:"Target"`
	Rules                []Rule   `xml:"Rule"`
	ObligationExpression []byte   `xml:"-"`
}

// Rule is one XACML rule element.
type Rule struct {
	RuleID      string `xml:"RuleId,attr"`
	Effect      string `xml:"Effect,attr"`
	Description string `xml:"Description,omitempty"`
	Target      Target `xml:"Target"`
}

// Target holds the AnyOf conjunction for a policy or rule.
type Target struct {
	AnyOf []AnyOf `xml:"AnyOf"`
}

// AnyOf is a disjunction of AllOf groups.
type AnyOf struct {
	AllOf []AllOf `xml:"AllOf"`
}

// AllOf is a conjunction of attribute matches.
type AllOf struct {
	Matches []Match `xml:"Match"`
}

// Match tests one attribute designator against a literal value.
type Match struct {
	MatchID             string              `xml:"MatchId,attr"`
	AttributeValue      AttributeValue      `xml:"AttributeValue"`
	AttributeDesignator AttributeDesignator `xml:"AttributeDesignator"`
}

// AttributeValue is the literal operand of a match.
type AttributeValue struct {
	DataType string `xml:"DataType,attr"`
	Value    string `xml:",chardata"`
}

// AttributeDesignator names the attribute a match tests.
type AttributeDesignator struct {
	AttributeID   string `xml:"AttributeId,attr"`
	Category      string `xml:"Category,attr"`
	DataType      string `xml:"DataType,attr"`
	MustBePresent bool   `xml:"MustBePresent,attr"`
}

// Clone returns a deep copy. Callers that mutate a policy handed out by
// a shared cache must work on a clone, never the cached document.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Target = p.Target.clone()
	if p.Rules != nil {
		clone.Rules = make([]Rule, len(p.Rules))
		for i := range p.Rules {
			clone.Rules[i] = p.Rules[i]
			clone.Rules[i].Target = p.Rules[i].Target.clone()
		}
	}
	if p.ObligationExpression != nil {
		clone.ObligationExpression = append([]byte(nil), p.ObligationExpression...)
	}
	return &clone
}

func (t Target) clone() Target {
	if t.AnyOf == nil {
		return Target{}
	}
	anyOf := make([]AnyOf, len(t.AnyOf))
	for i, a := range t.AnyOf {
		allOf := make([]AllOf, len(a.AllOf))
		for j, all := range a.AllOf {
			allOf[j] = AllOf{Matches: append([]Match(nil), all.Matches...)}
		}
		anyOf[i] = AnyOf{AllOf: allOf}
	}
	return Target{AnyOf: anyOf}
}

// Marshal serializes the policy with an XML header.
func Marshal(p *Policy) ([]byte, error) {
	if p.Xmlns == "" {
		p.Xmlns = PolicyNamespace
	}
	body, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Unmarshal parses a policy document. Empty input yields (nil, nil) so
// callers can treat placeholder blobs as "no policy yet".
func Unmarshal(data []byte) (*Policy, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p Policy
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	return &p, nil
}
