package api

import (
	"net/http"
	"strconv"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/policy"
)

func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	var req createPolicyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ID, "id") || !httputil.RequireNonEmpty(w, req.Definition, "definition") {
		return
	}

	v, err := s.policies.Create(r.Context(), tenant, policy.CreateInput{
		ID:          req.ID,
		Name:        req.Name,
		Definition:  req.Definition,
		Language:    req.Language,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	s.recordPolicyOp("create", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionCreate, "policy", req.ID, "success")
	httputil.WriteCreated(w, v)
}

func (s *Server) listActivePolicies(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}

	versions, err := s.policies.AllActive(r.Context(), tenant)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, policyListResponse{Items: versions})
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	v, err := s.policies.GetLatest(r.Context(), tenant, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, v)
}

func (s *Server) updatePolicy(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req updatePolicyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	v, err := s.policies.Update(r.Context(), tenant, id, policy.UpdateInput{
		Name:        req.Name,
		Definition:  req.Definition,
		Language:    req.Language,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	s.recordPolicyOp("update", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionUpdate, "policy", id, "success")
	httputil.WriteSuccess(w, v)
}

// deletePolicy retires the active version. History stays readable; only the
// active set shrinks.
func (s *Server) deletePolicy(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	err := s.policies.Delete(r.Context(), tenant, id)
	s.recordPolicyOp("delete", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionDelete, "policy", id, "success")
	httputil.WriteNoContent(w)
}

func (s *Server) listPolicyVersions(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	versions, err := s.policies.ListVersions(r.Context(), tenant, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, policyListResponse{Items: versions})
}

func (s *Server) getPolicyVersion(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	version, ok := parseVersionOrError(w, r)
	if !ok {
		return
	}

	v, err := s.policies.GetVersion(r.Context(), tenant, id, version)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, v)
}

// rollbackPolicy rolls forward: the target's content is appended as a new
// version rather than the pointer moving backwards.
func (s *Server) rollbackPolicy(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	target, ok := parseVersionOrError(w, r)
	if !ok {
		return
	}

	v, err := s.policies.Rollback(r.Context(), tenant, id, target)
	s.recordPolicyOp("rollback", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionRollback, "policy", id+"@"+strconv.Itoa(target), "success")
	httputil.WriteSuccess(w, v)
}

func parseVersionOrError(w http.ResponseWriter, r *http.Request) (int, bool) {
	v, err := httputil.ParsePathInt64(r, "version")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return 0, false
	}
	if v <= 0 {
		httputil.WriteBadRequest(w, "version must be positive")
		return 0, false
	}
	return int(v), true
}
