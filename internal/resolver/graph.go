package resolver

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/clients"
	"github.com/altinn-access/go-core/internal/resourceregistry"
	"github.com/altinn-access/go-core/pkg/types"
)

// Derived resource attribute ids produced by the registry leaf.
const (
	AttributeResourceType      = "urn:altinn:resource:type"
	AttributeResourceDelegable = "urn:altinn:resource:delegable"
)

// DefaultGraph builds the production resolver tree over the sibling
// platform services. Identity lookups live on the root node; namespaced
// lookups (key roles, resource registry) live on child nodes whose names
// prefix the attributes they produce.
func DefaultGraph(profile clients.Profile, register clients.Register, bridge clients.SBLBridge, registry resourceregistry.Client, logger *zap.Logger) *Resolver {
	root := New("urn:altinn", logger)

	root.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributePartyID, types.AttributeSSN},
		userLeaf(profile),
	)
	root.AddResolution(
		[]string{types.AttributeSSN},
		[]string{types.AttributeUserID, types.AttributePartyID},
		ssnLeaf(profile),
	)
	root.AddResolution(
		[]string{types.AttributePartyID},
		[]string{types.AttributeOrganizationNumber},
		partyLeaf(register),
	)
	root.AddResolution(
		[]string{types.AttributeOrganizationNumber},
		[]string{types.AttributePartyID},
		orgNumberLeaf(register),
	)

	keyRole := New("urn:altinn:keyrole", logger)
	keyRole.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributeKeyRolePartyIDs},
		keyRoleLeaf(bridge),
	)
	root.AddChild(keyRole)

	resource := New(types.AttributeResourceRegistry, logger)
	resource.AddResolution(
		[]string{types.AttributeResourceRegistry},
		[]string{AttributeResourceType, AttributeResourceDelegable},
		resourceLeaf(registry),
	)
	root.AddChild(resource)

	return root
}

func userLeaf(profile clients.Profile) ResolveFunc {
	return func(ctx context.Context, attrs []types.AttributeMatch) ([]types.AttributeMatch, error) {
		userID, err := intAttribute(attrs, types.AttributeUserID)
		if err != nil {
			return nil, err
		}
		user, err := profile.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve user %d: %w", userID, err)
		}
		if user == nil {
			return nil, nil
		}
		var resolved []types.AttributeMatch
		if user.PartyID > 0 {
			resolved = append(resolved, types.AttributeMatch{ID: types.AttributePartyID, Value: strconv.Itoa(user.PartyID)})
		}
		if user.SSN != "" {
			resolved = append(resolved, types.AttributeMatch{ID: types.AttributeSSN, Value: user.SSN})
		}
		return resolved, nil
	}
}

func ssnLeaf(profile clients.Profile) ResolveFunc {
	return func(ctx context.Context, attrs []types.AttributeMatch) ([]types.AttributeMatch, error) {
		ssn, ok := types.FindAttribute(attrs, types.AttributeSSN)
		if !ok {
			return nil, fmt.Errorf("attribute %s not present", types.AttributeSSN)
		}
		user, err := profile.GetUserBySSN(ctx, ssn.Value)
		if err != nil {
			return nil, fmt.Errorf("resolve user by ssn: %w", err)
		}
		if user == nil {
			return nil, nil
		}
		var resolved []types.AttributeMatch
		if user.UserID > 0 {
			resolved = append(resolved, types.AttributeMatch{ID: types.AttributeUserID, Value: strconv.Itoa(user.UserID)})
		}
		if user.PartyID > 0 {
			resolved = append(resolved, types.AttributeMatch{ID: types.AttributePartyID, Value: strconv.Itoa(user.PartyID)})
		}
		return resolved, nil
	}
}

func partyLeaf(register clients.Register) ResolveFunc {
	return func(ctx context.Context, attrs []types.AttributeMatch) ([]types.AttributeMatch, error) {
		partyID, err := intAttribute(attrs, types.AttributePartyID)
		if err != nil {
			return nil, err
		}
		party, err := register.GetParty(ctx, partyID)
		if err != nil {
			return nil, fmt.Errorf("resolve party %d: %w", partyID, err)
		}
		if party == nil || party.OrgNumber == "" {
			return nil, nil
		}
		return []types.AttributeMatch{{ID: types.AttributeOrganizationNumber, Value: party.OrgNumber}}, nil
	}
}

func orgNumberLeaf(register clients.Register) ResolveFunc {
	return func(ctx context.Context, attrs []types.AttributeMatch) ([]types.AttributeMatch, error) {
		orgNumber, ok := types.FindAttribute(attrs, types.AttributeOrganizationNumber)
		if !ok {
			return nil, fmt.Errorf("attribute %s not present", types.AttributeOrganizationNumber)
		}
		party, err := register.LookupPartyByOrgNumber(ctx, orgNumber.Value)
		if err != nil {
			return nil, fmt.Errorf("resolve party by org number: %w", err)
		}
		if party == nil || party.PartyID <= 0 {
			return nil, nil
		}
		return []types.AttributeMatch{{ID: types.AttributePartyID, Value: strconv.Itoa(party.PartyID)}}, nil
	}
}

func keyRoleLeaf(bridge clients.SBLBridge) ResolveFunc {
	return func(ctx context.Context, attrs []types.AttributeMatch) ([]types.AttributeMatch, error) {
		userID, err := intAttribute(attrs, types.AttributeUserID)
		if err != nil {
			return nil, err
		}
		partyIDs, err := bridge.GetKeyRolePartyIDs(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve key role parties for user %d: %w", userID, err)
		}
		resolved := make([]types.AttributeMatch, 0, len(partyIDs))
		for _, id := range partyIDs {
			resolved = append(resolved, types.AttributeMatch{ID: types.AttributeKeyRolePartyIDs, Value: strconv.Itoa(id)})
		}
		return resolved, nil
	}
}

func resourceLeaf(registry resourceregistry.Client) ResolveFunc {
	return func(ctx context.Context, attrs []types.AttributeMatch) ([]types.AttributeMatch, error) {
		id, ok := types.FindAttribute(attrs, types.AttributeResourceRegistry)
		if !ok {
			return nil, fmt.Errorf("attribute %s not present", types.AttributeResourceRegistry)
		}
		resource, err := registry.GetResource(ctx, id.Value)
		if err != nil {
			return nil, fmt.Errorf("resolve resource %s: %w", id.Value, err)
		}
		if resource == nil {
			return nil, nil
		}
		return []types.AttributeMatch{
			{ID: AttributeResourceType, Value: string(resource.ResourceType)},
			{ID: AttributeResourceDelegable, Value: strconv.FormatBool(resource.Delegable)},
		}, nil
	}
}

func intAttribute(attrs []types.AttributeMatch, id string) (int, error) {
	attr, ok := types.FindAttribute(attrs, id)
	if !ok {
		return 0, fmt.Errorf("attribute %s not present", id)
	}
	value, err := strconv.Atoi(attr.Value)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("attribute %s has invalid value %q", id, attr.Value)
	}
	return value, nil
}
