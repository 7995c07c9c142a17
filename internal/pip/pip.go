// Package pip is the policy information point: the read side that
// expands currently active delegation changes into flattened rules for
// authorization and reporting queries.
package pip

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/metrics"
	"github.com/altinn-access/go-core/internal/prp"
	"github.com/altinn-access/go-core/internal/repository"
	"github.com/altinn-access/go-core/internal/xacml"
	"github.com/altinn-access/go-core/pkg/types"
)

// RuleQuery selects delegation changes by the cross-product of the given
// id sets. OfferedByPartyIDs is required; empty sets match everything
// for their dimension.
type RuleQuery struct {
	ResourceIDs       []string
	OfferedByPartyIDs []int
	CoveredByPartyIDs []int
	CoveredByUserIDs  []int
}

// PolicyInformationPoint reads the ledger and the pinned policy versions
// behind it.
type PolicyInformationPoint struct {
	repo    repository.DelegationChangeRepository
	prp     *prp.PolicyRetrievalPoint
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates an information point. metrics may be nil.
func New(repo repository.DelegationChangeRepository, retrieval *prp.PolicyRetrievalPoint, m *metrics.Metrics, logger *zap.Logger) *PolicyInformationPoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyInformationPoint{repo: repo, prp: retrieval, metrics: m, logger: logger}
}

// GetRules returns every Permit rule in the currently active delegation
// policies matching the query, flattened into rule records. Output order
// follows ledger row order then in-policy rule order; callers must not
// depend on it, and no dedup is performed at this layer.
func (p *PolicyInformationPoint) GetRules(ctx context.Context, query RuleQuery) ([]*types.Rule, error) {
	if len(query.OfferedByPartyIDs) == 0 {
		return nil, fmt.Errorf("offeredByPartyIds is required")
	}

	changes, err := p.repo.GetAllCurrent(ctx, repository.ChangeQuery{
		OfferedByPartyIDs: query.OfferedByPartyIDs,
		ResourceKeys:      query.ResourceIDs,
		CoveredByPartyIDs: query.CoveredByPartyIDs,
		CoveredByUserIDs:  query.CoveredByUserIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("read current delegation changes: %w", err)
	}

	var rules []*types.Rule
	for _, change := range changes {
		if change.Type == types.DelegationChangeRevokeLast {
			continue
		}
		policy, err := p.prp.GetPolicyVersion(ctx, change.BlobStoragePolicyPath, change.BlobStorageVersionID)
		if err != nil {
			return nil, err
		}
		if policy == nil {
			p.logger.Error("Ledger row points at missing policy version",
				zap.Int("changeId", change.DelegationChangeID),
				zap.String("path", change.BlobStoragePolicyPath),
				zap.String("version", change.BlobStorageVersionID),
			)
			continue
		}
		for i := range policy.Rules {
			if policy.Rules[i].Effect != xacml.EffectPermit {
				continue
			}
			rules = append(rules, xacml.FlattenRule(&policy.Rules[i], change))
		}
	}

	p.metrics.RecordRulesRead(len(rules))
	return rules, nil
}
