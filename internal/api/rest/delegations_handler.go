package rest

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/pip"
	"github.com/altinn-access/go-core/pkg/types"
)

// addRulesHandler handles POST /v1/delegations/rules. Full success maps
// to 201, partial success across the batch to 206, total failure to 400.
func (s *Server) addRulesHandler(w http.ResponseWriter, r *http.Request) {
	var rules []*types.Rule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(rules) == 0 {
		writeError(w, http.StatusBadRequest, "no rules given")
		return
	}

	result := s.pap.TryWriteDelegationPolicyRules(r.Context(), rules)

	succeeded := 0
	for _, rule := range result {
		if rule.CreatedSuccessfully {
			succeeded++
		}
	}
	status := http.StatusCreated
	switch {
	case succeeded == 0:
		status = http.StatusBadRequest
	case succeeded < len(result):
		status = http.StatusPartialContent
	}
	writeJSON(w, status, result)
}

// deleteRulesHandler handles POST /v1/delegations/rules/delete.
func (s *Server) deleteRulesHandler(w http.ResponseWriter, r *http.Request) {
	requests, ok := decodeDeleteRequests(w, r)
	if !ok {
		return
	}
	deleted := s.pap.TryDeleteDelegationPolicyRules(r.Context(), requests)
	writeJSON(w, deleteStatus(len(deleted)), deleted)
}

// deletePoliciesHandler handles POST /v1/delegations/policies/delete.
func (s *Server) deletePoliciesHandler(w http.ResponseWriter, r *http.Request) {
	requests, ok := decodeDeleteRequests(w, r)
	if !ok {
		return
	}
	deleted := s.pap.TryDeleteDelegationPolicies(r.Context(), requests)
	writeJSON(w, deleteStatus(len(deleted)), deleted)
}

func decodeDeleteRequests(w http.ResponseWriter, r *http.Request) ([]*types.RequestToDelete, bool) {
	var requests []*types.RequestToDelete
	if err := json.NewDecoder(r.Body).Decode(&requests); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(requests) == 0 {
		writeError(w, http.StatusBadRequest, "no requests given")
		return nil, false
	}
	return requests, true
}

func deleteStatus(deleted int) int {
	if deleted == 0 {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

// queryRulesHandler handles POST /v1/delegations/rules/query.
func (s *Server) queryRulesHandler(w http.ResponseWriter, r *http.Request) {
	var query pip.RuleQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rules, err := s.pip.GetRules(r.Context(), query)
	if err != nil {
		s.logger.Error("Rule query failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rules == nil {
		rules = []*types.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// resolveRequest is the body of POST /v1/attributes/resolve.
type resolveRequest struct {
	Attributes []types.AttributeMatch `json:"attributes"`
	Wants      []string               `json:"wants,omitempty"`
}

// resolveAttributesHandler expands a partial attribute set.
func (s *Server) resolveAttributesHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resolved, err := s.resolver.Resolve(r.Context(), req.Attributes, req.Wants)
	if err != nil {
		s.metrics.RecordResolverError()
		s.logger.Error("attribute resolution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "attribute resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
