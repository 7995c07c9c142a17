package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinn-access/go-core/pkg/types"
)

func validRule() *types.Rule {
	return &types.Rule{
		DelegatedByUserID: 20001,
		OfferedByPartyID:  50001,
		CoveredBy:         []types.AttributeMatch{{ID: types.AttributeUserID, Value: "20002"}},
		Resource: []types.AttributeMatch{
			{ID: types.AttributeOrg, Value: "skd"},
			{ID: types.AttributeApp, Value: "taxreport"},
		},
		Action: types.AttributeMatch{ID: types.AttributeActionID, Value: "read"},
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Rule)
		wantErr bool
	}{
		{name: "valid rule", mutate: func(*types.Rule) {}},
		{name: "missing offeredBy", mutate: func(r *types.Rule) { r.OfferedByPartyID = 0 }, wantErr: true},
		{name: "missing resource", mutate: func(r *types.Rule) { r.Resource = nil }, wantErr: true},
		{name: "missing action", mutate: func(r *types.Rule) { r.Action = types.AttributeMatch{} }, wantErr: true},
		{name: "missing coveredBy", mutate: func(r *types.Rule) { r.CoveredBy = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(rule)
			err := rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestToDeleteValidate(t *testing.T) {
	valid := func() *types.RequestToDelete {
		return &types.RequestToDelete{
			DeletedByUserID: 20001,
			PolicyMatch: &types.PolicyMatch{
				OfferedByPartyID: 50001,
				CoveredBy:        []types.AttributeMatch{{ID: types.AttributeUserID, Value: "20002"}},
				Resource: []types.AttributeMatch{
					{ID: types.AttributeOrg, Value: "skd"},
					{ID: types.AttributeApp, Value: "taxreport"},
				},
			},
		}
	}

	t.Run("should accept a complete request", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("should reject a request without policy match", func(t *testing.T) {
		r := valid()
		r.PolicyMatch = nil
		assert.Error(t, r.Validate())
	})

	t.Run("should reject a request without performing user", func(t *testing.T) {
		r := valid()
		r.DeletedByUserID = 0
		assert.Error(t, r.Validate())
	})
}

func TestDelegationChangeValidate(t *testing.T) {
	valid := func() *types.DelegationChange {
		return &types.DelegationChange{
			Type:                  types.DelegationChangeGrant,
			AltinnAppID:           "skd/taxreport",
			OfferedByPartyID:      50001,
			CoveredByUserID:       20002,
			PerformedByUserID:     20001,
			BlobStoragePolicyPath: "skd/taxreport/50001/u20002/delegationpolicy.xml",
			BlobStorageVersionID:  "v1",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*types.DelegationChange)
		wantErr bool
	}{
		{name: "valid grant", mutate: func(*types.DelegationChange) {}},
		{name: "both recipient kinds set", mutate: func(c *types.DelegationChange) { c.CoveredByPartyID = 1 }, wantErr: true},
		{name: "no recipient", mutate: func(c *types.DelegationChange) { c.CoveredByUserID = 0 }, wantErr: true},
		{name: "both resource kinds set", mutate: func(c *types.DelegationChange) { c.ResourceID = "res1" }, wantErr: true},
		{name: "no resource", mutate: func(c *types.DelegationChange) { c.AltinnAppID = "" }, wantErr: true},
		{name: "unknown change type", mutate: func(c *types.DelegationChange) { c.Type = "Upsert" }, wantErr: true},
		{name: "missing policy path", mutate: func(c *types.DelegationChange) { c.BlobStoragePolicyPath = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := valid()
			tt.mutate(change)
			err := change.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDelegationChangeResourceKey(t *testing.T) {
	app := &types.DelegationChange{AltinnAppID: "skd/taxreport"}
	assert.Equal(t, "skd/taxreport", app.ResourceKey())

	registry := &types.DelegationChange{ResourceID: "scheme1"}
	assert.Equal(t, "scheme1", registry.ResourceKey())
}

func TestDedupAttributes(t *testing.T) {
	attrs := []types.AttributeMatch{
		{ID: types.AttributeUserID, Value: "1"},
		{ID: types.AttributePartyID, Value: "2"},
		{ID: types.AttributeUserID, Value: "1"},
		{ID: types.AttributeUserID, Value: "3"},
	}

	deduped := types.DedupAttributes(attrs)
	require.Len(t, deduped, 3)
	assert.Equal(t, types.AttributeMatch{ID: types.AttributeUserID, Value: "1"}, deduped[0])
	assert.Equal(t, types.AttributeMatch{ID: types.AttributePartyID, Value: "2"}, deduped[1])
	assert.Equal(t, types.AttributeMatch{ID: types.AttributeUserID, Value: "3"}, deduped[2])
}

func TestFindAttribute(t *testing.T) {
	attrs := []types.AttributeMatch{
		{ID: types.AttributeOrg, Value: "skd"},
		{ID: types.AttributeApp, Value: "taxreport"},
	}

	match, ok := types.FindAttribute(attrs, types.AttributeApp)
	require.True(t, ok)
	assert.Equal(t, "taxreport", match.Value)

	_, ok = types.FindAttribute(attrs, types.AttributeSSN)
	assert.False(t, ok)
}
