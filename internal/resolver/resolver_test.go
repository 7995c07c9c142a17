package resolver_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinn-access/go-core/internal/clients"
	"github.com/altinn-access/go-core/internal/resolver"
	"github.com/altinn-access/go-core/internal/resourceregistry"
	"github.com/altinn-access/go-core/pkg/types"
)

func attrIDs(attrs []types.AttributeMatch) map[string]bool {
	ids := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		ids[a.ID] = true
	}
	return ids
}

func constantLeaf(calls *int32, resolved ...types.AttributeMatch) resolver.ResolveFunc {
	return func(context.Context, []types.AttributeMatch) ([]types.AttributeMatch, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return resolved, nil
	}
}

func TestResolveChainsLeaves(t *testing.T) {
	r := resolver.New("urn:altinn", nil)
	r.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributePartyID},
		constantLeaf(nil, types.AttributeMatch{ID: types.AttributePartyID, Value: "50001"}),
	)
	r.AddResolution(
		[]string{types.AttributePartyID},
		[]string{types.AttributeOrganizationNumber},
		constantLeaf(nil, types.AttributeMatch{ID: types.AttributeOrganizationNumber, Value: "991825827"}),
	)

	resolved, err := r.Resolve(context.Background(),
		[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}}, nil)
	require.NoError(t, err)

	// The second leaf only becomes eligible once the first has produced
	// the party id, so reaching the org number takes two rounds.
	ids := attrIDs(resolved)
	assert.True(t, ids[types.AttributeUserID])
	assert.True(t, ids[types.AttributePartyID])
	assert.True(t, ids[types.AttributeOrganizationNumber])
}

func TestResolveTerminatesOnSelfFeedingLeaf(t *testing.T) {
	var calls int32
	r := resolver.New("urn:altinn", nil)
	// Needs overlaps resolves: without already-resolved pruning this
	// would fire every round.
	r.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributeUserID, types.AttributePartyID},
		constantLeaf(&calls,
			types.AttributeMatch{ID: types.AttributeUserID, Value: "20001"},
			types.AttributeMatch{ID: types.AttributePartyID, Value: "50001"},
		),
	)

	resolved, err := r.Resolve(context.Background(),
		[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Len(t, resolved, 2, "duplicates are collapsed")
}

func TestResolveSkipsLeafWhenOutputAlreadyKnown(t *testing.T) {
	var calls int32
	r := resolver.New("urn:altinn", nil)
	r.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributePartyID},
		constantLeaf(&calls, types.AttributeMatch{ID: types.AttributePartyID, Value: "50001"}),
	)

	known := []types.AttributeMatch{
		{ID: types.AttributeUserID, Value: "20001"},
		{ID: types.AttributePartyID, Value: "50001"},
	}
	_, err := r.Resolve(context.Background(), known, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestResolveWantsPruning(t *testing.T) {
	var wanted, unrelated int32
	r := resolver.New("urn:altinn", nil)
	r.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributePartyID},
		constantLeaf(&wanted, types.AttributeMatch{ID: types.AttributePartyID, Value: "50001"}),
	)
	r.AddResolution(
		[]string{types.AttributeUserID},
		[]string{"urn:other:thing"},
		constantLeaf(&unrelated, types.AttributeMatch{ID: "urn:other:thing", Value: "x"}),
	)

	resolved, err := r.Resolve(context.Background(),
		[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}},
		[]string{types.AttributePartyID},
	)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&wanted))
	assert.EqualValues(t, 0, atomic.LoadInt32(&unrelated), "leaf outside wants is never invoked")
	assert.True(t, attrIDs(resolved)[types.AttributePartyID])
	assert.False(t, attrIDs(resolved)["urn:other:thing"])
}

func TestResolvePrunesUnrelatedChild(t *testing.T) {
	var calls int32
	root := resolver.New("urn:altinn", nil)
	child := resolver.New("urn:altinn:keyrole", nil)
	child.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributeKeyRolePartyIDs},
		constantLeaf(&calls, types.AttributeMatch{ID: types.AttributeKeyRolePartyIDs, Value: "50009"}),
	)
	root.AddChild(child)

	t.Run("child is visited when wants reach into its namespace", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		resolved, err := root.Resolve(context.Background(),
			[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}},
			[]string{types.AttributeKeyRolePartyIDs},
		)
		require.NoError(t, err)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		assert.True(t, attrIDs(resolved)[types.AttributeKeyRolePartyIDs])
	})

	t.Run("child is skipped for unrelated wants", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		_, err := root.Resolve(context.Background(),
			[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}},
			[]string{"urn:other:thing"},
		)
		require.NoError(t, err)
		assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	})
}

func TestResolveLeafErrorAbortsResolution(t *testing.T) {
	boom := errors.New("profile unreachable")
	r := resolver.New("urn:altinn", nil)
	r.AddResolution(
		[]string{types.AttributeUserID},
		[]string{types.AttributePartyID},
		func(context.Context, []types.AttributeMatch) ([]types.AttributeMatch, error) {
			return nil, boom
		},
	)

	resolved, err := r.Resolve(context.Background(),
		[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, resolved, "no partial result on failure")
}

func TestResolveCancelledContext(t *testing.T) {
	r := resolver.New("urn:altinn", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, []types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// Stub platform services for the default graph.

type stubProfile struct {
	users map[int]*clients.UserProfile
	bySSN map[string]*clients.UserProfile
}

func (s *stubProfile) GetUser(_ context.Context, userID int) (*clients.UserProfile, error) {
	return s.users[userID], nil
}

func (s *stubProfile) GetUserBySSN(_ context.Context, ssn string) (*clients.UserProfile, error) {
	return s.bySSN[ssn], nil
}

type stubRegister struct {
	parties map[int]*clients.Party
	byOrg   map[string]*clients.Party
}

func (s *stubRegister) GetParty(_ context.Context, partyID int) (*clients.Party, error) {
	return s.parties[partyID], nil
}

func (s *stubRegister) LookupPartyByOrgNumber(_ context.Context, orgNumber string) (*clients.Party, error) {
	return s.byOrg[orgNumber], nil
}

type stubBridge struct {
	keyRoles map[int][]int
}

func (s *stubBridge) GetKeyRolePartyIDs(_ context.Context, userID int) ([]int, error) {
	return s.keyRoles[userID], nil
}

func TestDefaultGraph(t *testing.T) {
	profile := &stubProfile{
		users: map[int]*clients.UserProfile{
			20001: {UserID: 20001, PartyID: 50001, SSN: "01017012345"},
		},
		bySSN: map[string]*clients.UserProfile{
			"01017012345": {UserID: 20001, PartyID: 50001},
		},
	}
	register := &stubRegister{
		parties: map[int]*clients.Party{
			50001: {PartyID: 50001, OrgNumber: "991825827"},
		},
		byOrg: map[string]*clients.Party{
			"991825827": {PartyID: 50001},
		},
	}
	bridge := &stubBridge{keyRoles: map[int][]int{20001: {50005, 50006}}}
	registry := resourceregistry.NewStaticClient(&types.ServiceResource{
		Identifier:   "scheme1",
		ResourceType: types.ResourceTypeGenericAccess,
		Delegable:    true,
	})

	graph := resolver.DefaultGraph(profile, register, bridge, registry, nil)

	t.Run("user id expands to party, ssn and org number", func(t *testing.T) {
		resolved, err := graph.Resolve(context.Background(),
			[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}}, nil)
		require.NoError(t, err)

		ids := attrIDs(resolved)
		assert.True(t, ids[types.AttributePartyID])
		assert.True(t, ids[types.AttributeSSN])
		assert.True(t, ids[types.AttributeOrganizationNumber])
		assert.True(t, ids[types.AttributeKeyRolePartyIDs])
	})

	t.Run("key role parties come back as one attribute per party", func(t *testing.T) {
		resolved, err := graph.Resolve(context.Background(),
			[]types.AttributeMatch{{ID: types.AttributeUserID, Value: "20001"}},
			[]string{types.AttributeKeyRolePartyIDs},
		)
		require.NoError(t, err)

		var keyRoles []string
		for _, a := range resolved {
			if a.ID == types.AttributeKeyRolePartyIDs {
				keyRoles = append(keyRoles, a.Value)
			}
		}
		assert.ElementsMatch(t, []string{"50005", "50006"}, keyRoles)
	})

	t.Run("registry resource expands to type and delegability", func(t *testing.T) {
		resolved, err := graph.Resolve(context.Background(),
			[]types.AttributeMatch{{ID: types.AttributeResourceRegistry, Value: "scheme1"}}, nil)
		require.NoError(t, err)

		ids := attrIDs(resolved)
		assert.True(t, ids[resolver.AttributeResourceType])
		assert.True(t, ids[resolver.AttributeResourceDelegable])
	})

	t.Run("unknown user resolves to nothing extra", func(t *testing.T) {
		known := []types.AttributeMatch{{ID: types.AttributeUserID, Value: "99999"}}
		resolved, err := graph.Resolve(context.Background(), known, nil)
		require.NoError(t, err)
		assert.Equal(t, known, resolved)
	})
}
