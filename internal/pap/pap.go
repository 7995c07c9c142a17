// Package pap is the policy administration point: it applies additions
// and removals of delegation rules as atomic (policy version, ledger
// row) pairs under per-path lease exclusion.
package pap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/blob"
	"github.com/altinn-access/go-core/internal/events"
	"github.com/altinn-access/go-core/internal/metrics"
	"github.com/altinn-access/go-core/internal/policypath"
	"github.com/altinn-access/go-core/internal/prp"
	"github.com/altinn-access/go-core/internal/repository"
	"github.com/altinn-access/go-core/internal/resourceregistry"
	"github.com/altinn-access/go-core/internal/xacml"
	"github.com/altinn-access/go-core/pkg/types"
)

// errOrphanedVersion marks a blob write whose ledger row never landed.
// The dangling version is permanently ignored because reads always pin
// the version recorded in the ledger; the next successful write simply
// produces a newer version. No compensating delete is attempted.
var errOrphanedVersion = errors.New("policy version written but ledger insert failed")

// PolicyAdministrationPoint orchestrates delegation policy mutations
// across the blob store, the ledger, the retrieval point and the event
// queue.
type PolicyAdministrationPoint struct {
	repo     repository.DelegationChangeRepository
	store    blob.PolicyStore
	prp      *prp.PolicyRetrievalPoint
	queue    events.Queue
	registry resourceregistry.Client
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates an administration point. metrics may be nil.
func New(
	repo repository.DelegationChangeRepository,
	store blob.PolicyStore,
	retrieval *prp.PolicyRetrievalPoint,
	queue events.Queue,
	registry resourceregistry.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PolicyAdministrationPoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue == nil {
		queue = events.NoopQueue{}
	}
	return &PolicyAdministrationPoint{
		repo:     repo,
		store:    store,
		prp:      retrieval,
		queue:    queue,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

// TryWriteDelegationPolicyRules applies the rules, grouped by target
// delegation policy path. Path groups are independent: each succeeds or
// fails as a whole, and groups proceed in parallel. Every input rule
// comes back tagged: CreatedSuccessfully set and classified on success,
// rule id cleared on failure. Rules whose attributes cannot derive a
// path are returned unsorted with empty rule ids.
func (p *PolicyAdministrationPoint) TryWriteDelegationPolicyRules(ctx context.Context, rules []*types.Rule) []*types.Rule {
	groups, unsortable := policypath.GroupRulesByPath(rules)

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(g *policypath.RuleGroup) {
			defer wg.Done()

			start := time.Now()
			err := p.writeGroup(ctx, g)
			p.metrics.ObserveWriteDuration(time.Since(start))

			if err != nil {
				p.failGroup(g, err)
				return
			}
			for _, rule := range g.Rules {
				rule.CreatedSuccessfully = true
				rule.Type = types.RuleTypeDirectlyDelegated
			}
		}(group)
	}
	wg.Wait()

	result := make([]*types.Rule, 0, len(rules))
	for _, g := range groups {
		result = append(result, g.Rules...)
	}
	return append(result, unsortable...)
}

// writeGroup applies one path group: validate, lease, read the pinned
// current version, merge or build, write conditionally, journal, notify.
func (p *PolicyAdministrationPoint) writeGroup(ctx context.Context, g *policypath.RuleGroup) error {
	resourceType, err := p.validateGroup(ctx, g)
	if err != nil {
		return err
	}

	exists, err := p.store.Exists(ctx, g.Path)
	if err != nil {
		return fmt.Errorf("check policy existence: %w", err)
	}
	if !exists {
		// Seed a placeholder so the lease call has a target.
		if _, err := p.store.Write(ctx, g.Path, nil); err != nil {
			return fmt.Errorf("seed policy placeholder: %w", err)
		}
	}

	return blob.WithLease(ctx, p.store, g.Path, func(leaseID string) error {
		ref := g.Ref
		current, err := p.repo.GetCurrent(ctx, ref.ResourceKey(), ref.OfferedByPartyID, ref.CoveredByPartyID, ref.CoveredByUserID)
		if err != nil {
			return fmt.Errorf("read current delegation change: %w", err)
		}

		policy, err := p.mergeOrBuild(ctx, g, current)
		if err != nil {
			return err
		}

		data, err := xacml.Marshal(policy)
		if err != nil {
			return err
		}
		versionID, err := p.store.WriteConditional(ctx, g.Path, data, leaseID)
		if err != nil {
			return fmt.Errorf("write policy version: %w", err)
		}

		change := p.newChange(types.DelegationChangeGrant, ref, resourceType, g.Rules[0].DelegatedByUserID, g.Path, versionID)
		inserted, err := p.repo.Insert(ctx, change)
		if err != nil {
			return fmt.Errorf("%w: %v", errOrphanedVersion, err)
		}
		if inserted == nil || inserted.DelegationChangeID <= 0 {
			return errOrphanedVersion
		}

		p.metrics.RecordChange(string(inserted.Type))
		p.pushEvent(ctx, inserted)
		return nil
	})
}

// mergeOrBuild loads the current pinned policy version and appends the
// group's rules to it, or builds a fresh document when the path has no
// live policy. Appending skips rules already present (exact resource and
// action match); such rules adopt the existing rule's id.
func (p *PolicyAdministrationPoint) mergeOrBuild(ctx context.Context, g *policypath.RuleGroup, current *types.DelegationChange) (*xacml.Policy, error) {
	ref := g.Ref
	if current == nil || current.Type == types.DelegationChangeRevokeLast {
		return xacml.NewDelegationPolicy(ref.ResourceKey(), ref.OfferedByPartyID, ref.CoveredBy(), g.Rules), nil
	}

	// Always the version pinned by the ledger row, never "latest": a
	// concurrent writer on another path or a stale cache must not leak in.
	policy, err := p.prp.GetPolicyVersion(ctx, g.Path, current.BlobStorageVersionID)
	if err != nil {
		return nil, fmt.Errorf("read pinned policy version: %w", err)
	}
	if policy == nil {
		return nil, fmt.Errorf("ledger row %d points at missing policy version %s@%s",
			current.DelegationChangeID, g.Path, current.BlobStorageVersionID)
	}

	for _, rule := range g.Rules {
		built := xacml.BuildDelegationRule(rule, ref.CoveredBy())
		if existing, ok := policy.FindEquivalentRule(&built); ok {
			rule.RuleID = existing.RuleID
			continue
		}
		policy.Rules = append(policy.Rules, built)
	}
	return policy, nil
}

// validateGroup checks that the delegated resource exists and that every
// requested action+resource combination is present in the authoritative
// policy. Any miss fails the whole group: no partial application within
// one path.
func (p *PolicyAdministrationPoint) validateGroup(ctx context.Context, g *policypath.RuleGroup) (string, error) {
	resourceType := string(types.ResourceTypeAltinnApp)
	if !g.Ref.IsApp() {
		resource, err := p.registry.GetResource(ctx, g.Ref.ResourceID)
		if err != nil {
			return "", fmt.Errorf("look up resource %s: %w", g.Ref.ResourceID, err)
		}
		if resource == nil {
			return "", fmt.Errorf("resource %s is not registered", g.Ref.ResourceID)
		}
		if !resource.Delegable {
			return "", fmt.Errorf("resource %s is not delegable", g.Ref.ResourceID)
		}
		resourceType = string(resource.ResourceType)
	}

	authoritative, err := p.prp.GetPolicy(ctx, g.Ref.ResourceKey())
	if err != nil {
		return "", fmt.Errorf("read authoritative policy: %w", err)
	}
	if authoritative == nil {
		return "", fmt.Errorf("no authoritative policy for %s", g.Ref.ResourceKey())
	}
	for _, rule := range g.Rules {
		if !authoritative.AuthorizesDelegation(rule.Resource, rule.Action) {
			return "", fmt.Errorf("action %q on %s is not delegable per the authoritative policy",
				rule.Action.Value, g.Ref.ResourceKey())
		}
	}
	return resourceType, nil
}

// failGroup tags every rule in the group as failed and records why.
func (p *PolicyAdministrationPoint) failGroup(g *policypath.RuleGroup, err error) {
	kind := "error"
	switch {
	case errors.Is(err, blob.ErrLeaseNotAvailable):
		kind = "contention"
		p.metrics.RecordLeaseFailure()
		p.logger.Warn("Could not acquire policy lease",
			zap.String("path", g.Path),
		)
	case errors.Is(err, errOrphanedVersion):
		kind = "orphaned_version"
		p.logger.Error("Policy version written but ledger insert failed; version will be ignored",
			zap.String("path", g.Path),
			zap.Error(err),
		)
	default:
		p.logger.Error("Failed to write delegation policy rules",
			zap.String("path", g.Path),
			zap.Error(err),
		)
	}
	p.metrics.RecordGroupFailure(kind)

	for _, rule := range g.Rules {
		rule.CreatedSuccessfully = false
		rule.RuleID = ""
	}
}

func (p *PolicyAdministrationPoint) newChange(changeType types.DelegationChangeType, ref policypath.Ref, resourceType string, performedBy int, path, versionID string) *types.DelegationChange {
	change := &types.DelegationChange{
		Type:                  changeType,
		OfferedByPartyID:      ref.OfferedByPartyID,
		CoveredByPartyID:      ref.CoveredByPartyID,
		CoveredByUserID:       ref.CoveredByUserID,
		PerformedByUserID:     performedBy,
		BlobStoragePolicyPath: path,
		BlobStorageVersionID:  versionID,
		Created:               time.Now().UTC(),
	}
	if ref.IsApp() {
		change.AltinnAppID = ref.ResourceKey()
		change.ResourceType = string(types.ResourceTypeAltinnApp)
	} else {
		change.ResourceID = ref.ResourceID
		change.ResourceType = resourceType
	}
	return change
}

// pushEvent publishes the change best-effort. Event delivery is outside
// the atomicity contract: a failure is logged and counted, never
// propagated to the caller.
func (p *PolicyAdministrationPoint) pushEvent(ctx context.Context, change *types.DelegationChange) {
	if err := p.queue.Push(ctx, change); err != nil {
		p.metrics.RecordEventPushFailure()
		p.logger.Error("Failed to publish delegation change event",
			zap.Int("changeId", change.DelegationChangeID),
			zap.String("path", change.BlobStoragePolicyPath),
			zap.Error(err),
		)
	}
}
