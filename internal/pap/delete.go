package pap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/blob"
	"github.com/altinn-access/go-core/internal/policypath"
	"github.com/altinn-access/go-core/internal/xacml"
	"github.com/altinn-access/go-core/pkg/types"
)

// TryDeleteDelegationPolicyRules removes the named rules from each
// request's delegation policy, journaling a Revoke (or RevokeLast when
// the rule set empties). Returns the rules actually removed. A request
// against a missing policy, a fully revoked policy, or with no matching
// rule ids is a logged no-op, not an error.
func (p *PolicyAdministrationPoint) TryDeleteDelegationPolicyRules(ctx context.Context, requests []*types.RequestToDelete) []*types.Rule {
	var deleted []*types.Rule
	for _, request := range requests {
		removed, err := p.deleteFromPolicy(ctx, request, false)
		if err != nil {
			p.logDeleteFailure(request, err)
			continue
		}
		deleted = append(deleted, removed...)
	}
	return deleted
}

// TryDeleteDelegationPolicies empties each request's delegation policy
// unconditionally, always journaling RevokeLast. Returns every rule the
// cleared policies contained.
func (p *PolicyAdministrationPoint) TryDeleteDelegationPolicies(ctx context.Context, requests []*types.RequestToDelete) []*types.Rule {
	var deleted []*types.Rule
	for _, request := range requests {
		removed, err := p.deleteFromPolicy(ctx, request, true)
		if err != nil {
			p.logDeleteFailure(request, err)
			continue
		}
		deleted = append(deleted, removed...)
	}
	return deleted
}

// deleteFromPolicy performs one delete request under the path's lease.
// wholePolicy selects between removing the request's rule ids and
// clearing the rule set.
func (p *PolicyAdministrationPoint) deleteFromPolicy(ctx context.Context, request *types.RequestToDelete, wholePolicy bool) ([]*types.Rule, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	ref, err := policypath.FromPolicyMatch(request.PolicyMatch)
	if err != nil {
		return nil, err
	}
	path, err := ref.PolicyPath()
	if err != nil {
		return nil, err
	}

	exists, err := p.store.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("check policy existence: %w", err)
	}
	if !exists {
		p.logger.Warn("No delegation policy to delete", zap.String("path", path))
		return nil, nil
	}

	var deleted []*types.Rule
	err = blob.WithLease(ctx, p.store, path, func(leaseID string) error {
		current, err := p.repo.GetCurrent(ctx, ref.ResourceKey(), ref.OfferedByPartyID, ref.CoveredByPartyID, ref.CoveredByUserID)
		if err != nil {
			return fmt.Errorf("read current delegation change: %w", err)
		}
		if current == nil {
			p.logger.Warn("No delegation change recorded for policy", zap.String("path", path))
			return nil
		}
		if current.Type == types.DelegationChangeRevokeLast {
			// Already fully revoked: fail fast instead of reading a
			// stale version.
			p.logger.Warn("Delegation policy already fully revoked", zap.String("path", path))
			return nil
		}

		policy, err := p.prp.GetPolicyVersion(ctx, path, current.BlobStorageVersionID)
		if err != nil {
			return fmt.Errorf("read pinned policy version: %w", err)
		}
		if policy == nil {
			return fmt.Errorf("ledger row %d points at missing policy version %s@%s",
				current.DelegationChangeID, path, current.BlobStorageVersionID)
		}

		var removed []xacml.Rule
		if wholePolicy {
			removed = policy.Rules
			policy.Rules = nil
		} else {
			removed = policy.RemoveRules(request.RuleIDs)
			if len(removed) == 0 {
				p.logger.Warn("No matching rules in delegation policy",
					zap.String("path", path),
					zap.Strings("ruleIds", request.RuleIDs),
				)
				return nil
			}
		}

		changeType := types.DelegationChangeRevoke
		if wholePolicy || len(policy.Rules) == 0 {
			changeType = types.DelegationChangeRevokeLast
		}

		data, err := xacml.Marshal(policy)
		if err != nil {
			return err
		}
		versionID, err := p.store.WriteConditional(ctx, path, data, leaseID)
		if err != nil {
			return fmt.Errorf("write policy version: %w", err)
		}

		change := p.newChange(changeType, ref, current.ResourceType, request.DeletedByUserID, path, versionID)
		inserted, err := p.repo.Insert(ctx, change)
		if err != nil {
			return fmt.Errorf("%w: %v", errOrphanedVersion, err)
		}
		if inserted == nil || inserted.DelegationChangeID <= 0 {
			return errOrphanedVersion
		}

		p.metrics.RecordChange(string(inserted.Type))
		p.pushEvent(ctx, inserted)

		for i := range removed {
			deleted = append(deleted, xacml.FlattenRule(&removed[i], inserted))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (p *PolicyAdministrationPoint) logDeleteFailure(request *types.RequestToDelete, err error) {
	if errors.Is(err, blob.ErrLeaseNotAvailable) {
		p.metrics.RecordLeaseFailure()
		p.metrics.RecordGroupFailure("contention")
		p.logger.Warn("Could not acquire policy lease for delete", zap.Error(err))
		return
	}
	p.metrics.RecordGroupFailure("error")
	p.logger.Error("Failed to delete delegation policy rules", zap.Error(err))
}
