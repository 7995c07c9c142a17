// Package types provides the shared value types for access management:
// attribute matches, delegation rules, and the delegation change ledger.
package types

// Attribute URNs used throughout delegation policies and the attribute
// resolver. The values are a wire contract shared with sibling platform
// services and must not change.
const (
	AttributeUserID             = "urn:altinn:userid"
	AttributePartyID            = "urn:altinn:partyid"
	AttributeSSN                = "urn:altinn:ssn"
	AttributeOrganizationNumber = "urn:altinn:organizationnumber"
	AttributeOrg                = "urn:altinn:org"
	AttributeApp                = "urn:altinn:app"
	AttributeAppResource        = "urn:altinn:appresource"
	AttributeResourceRegistry   = "urn:altinn:resource"
	AttributeKeyRolePartyIDs    = "urn:altinn:keyrole:partyids"

	AttributeActionID = "urn:oasis:names:tc:xacml:1.0:action:action-id"
)

// AttributeMatch is a single (id, value) attribute pair. It is an
// immutable value type; identity is the id+value combination.
type AttributeMatch struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Key returns the deduplication key for an attribute bag.
func (m AttributeMatch) Key() string {
	return m.ID + "|" + m.Value
}

// FindAttribute returns the first match with the given id, if any.
func FindAttribute(attrs []AttributeMatch, id string) (AttributeMatch, bool) {
	for _, a := range attrs {
		if a.ID == id {
			return a, true
		}
	}
	return AttributeMatch{}, false
}

// DedupAttributes collapses duplicate (id, value) pairs, preserving the
// order of first occurrence.
func DedupAttributes(attrs []AttributeMatch) []AttributeMatch {
	seen := make(map[string]struct{}, len(attrs))
	result := make([]AttributeMatch, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := seen[a.Key()]; ok {
			continue
		}
		seen[a.Key()] = struct{}{}
		result = append(result, a)
	}
	return result
}
