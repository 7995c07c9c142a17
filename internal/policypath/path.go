// Package policypath derives the blob storage paths of delegation
// policies and groups delegation rules by their target path. The path
// layout is a contract shared with read-side caches and blob lifecycle
// tooling and must be preserved bit for bit.
package policypath

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/altinn-access/go-core/pkg/types"
)

// PolicyFileName is the blob name of every delegation policy document.
const PolicyFileName = "delegationpolicy.xml"

// ResourceRegistryPrefix roots paths of registry-keyed delegation
// policies, keeping them apart from {org}/{app} paths.
const ResourceRegistryPrefix = "resourceregistry"

var (
	// ErrMissingResource means neither an app (org+app) nor a registry
	// resource id could be derived from the resource attributes.
	ErrMissingResource = errors.New("resource attributes identify neither an app nor a registry resource")
	// ErrMissingCoveredBy means no covered party or user attribute was present.
	ErrMissingCoveredBy = errors.New("coveredBy attributes contain neither a party id nor a user id")
)

// Ref identifies one delegation policy: the delegated resource, the
// offering party and the covered recipient.
type Ref struct {
	Org              string
	App              string
	ResourceID       string
	OfferedByPartyID int
	CoveredByPartyID int
	CoveredByUserID  int
}

// FromResource derives the resource part of a Ref from resource match
// attributes: either org+app or a registry resource id.
func FromResource(resource []types.AttributeMatch) (Ref, error) {
	var ref Ref
	for _, a := range resource {
		switch a.ID {
		case types.AttributeOrg:
			ref.Org = a.Value
		case types.AttributeApp:
			ref.App = a.Value
		case types.AttributeResourceRegistry:
			ref.ResourceID = a.Value
		}
	}
	if ref.ResourceID != "" {
		// Registry id wins; org/app attributes may still be present as
		// additional resource qualifiers.
		ref.Org, ref.App = "", ""
		return ref, nil
	}
	if ref.Org == "" || ref.App == "" {
		return Ref{}, ErrMissingResource
	}
	return ref, nil
}

// FromRule derives the full policy reference for one delegation rule.
func FromRule(r *types.Rule) (Ref, error) {
	ref, err := FromResource(r.Resource)
	if err != nil {
		return Ref{}, err
	}
	ref.OfferedByPartyID = r.OfferedByPartyID
	if err := ref.setCoveredBy(r.CoveredBy); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// FromPolicyMatch derives the policy reference for a delete request.
func FromPolicyMatch(m *types.PolicyMatch) (Ref, error) {
	ref, err := FromResource(m.Resource)
	if err != nil {
		return Ref{}, err
	}
	ref.OfferedByPartyID = m.OfferedByPartyID
	if err := ref.setCoveredBy(m.CoveredBy); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (r *Ref) setCoveredBy(coveredBy []types.AttributeMatch) error {
	for _, a := range coveredBy {
		switch a.ID {
		case types.AttributePartyID:
			id, err := strconv.Atoi(a.Value)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid covered party id %q", a.Value)
			}
			r.CoveredByPartyID = id
			return nil
		case types.AttributeUserID:
			id, err := strconv.Atoi(a.Value)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid covered user id %q", a.Value)
			}
			r.CoveredByUserID = id
			return nil
		}
	}
	return ErrMissingCoveredBy
}

// IsApp reports whether the reference targets an Altinn app.
func (r Ref) IsApp() bool {
	return r.ResourceID == ""
}

// ResourceKey returns the canonical resource identifier used by the
// ledger and the retrieval point: "org/app" for apps, the registry id
// otherwise.
func (r Ref) ResourceKey() string {
	if r.IsApp() {
		return r.Org + "/" + r.App
	}
	return r.ResourceID
}

// CoveredBy returns the covered recipient as attribute matches.
func (r Ref) CoveredBy() []types.AttributeMatch {
	if r.CoveredByPartyID > 0 {
		return []types.AttributeMatch{{ID: types.AttributePartyID, Value: strconv.Itoa(r.CoveredByPartyID)}}
	}
	return []types.AttributeMatch{{ID: types.AttributeUserID, Value: strconv.Itoa(r.CoveredByUserID)}}
}

// PolicyPath returns the delegation policy blob path:
//
//	{org}/{app}/{offeredByPartyId}/{u|p}{coveredById}/delegationpolicy.xml
//
// for apps, and
//
//	resourceregistry/{resourceId}/{offeredByPartyId}/{u|p}{coveredById}/delegationpolicy.xml
//
// for registry resources. Path segments are URL-escaped so ids cannot
// smuggle separators into the layout.
func (r Ref) PolicyPath() (string, error) {
	if r.OfferedByPartyID <= 0 {
		return "", errors.New("offeredByPartyId is required")
	}

	var covered string
	switch {
	case r.CoveredByPartyID > 0:
		covered = "p" + strconv.Itoa(r.CoveredByPartyID)
	case r.CoveredByUserID > 0:
		covered = "u" + strconv.Itoa(r.CoveredByUserID)
	default:
		return "", ErrMissingCoveredBy
	}

	if r.IsApp() {
		if r.Org == "" || r.App == "" {
			return "", ErrMissingResource
		}
		return fmt.Sprintf("%s/%s/%d/%s/%s",
			url.PathEscape(r.Org), url.PathEscape(r.App), r.OfferedByPartyID, covered, PolicyFileName), nil
	}
	return fmt.Sprintf("%s/%s/%d/%s/%s",
		ResourceRegistryPrefix, url.PathEscape(r.ResourceID), r.OfferedByPartyID, covered, PolicyFileName), nil
}
