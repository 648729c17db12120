package api

import (
	"errors"
	"net/http"

	"github.com/wardenhq/warden/pkg/assignments"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/observability"
)

func parseKindOrError(w http.ResponseWriter, r *http.Request) (assignments.Kind, bool) {
	raw, ok := httputil.ParsePathStringOrError(w, r, "kind")
	if !ok {
		return "", false
	}
	kind, err := assignments.ParseKind(raw)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", false
	}
	return kind, true
}

func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	kind, ok := parseKindOrError(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Parent, "parent") || !httputil.RequireNonEmpty(w, req.Child, "child") {
		return
	}

	err := s.graph.Assign(r.Context(), tenant, kind, req.Parent, req.Child)
	s.recordEdgeOp(kind, "assign", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionAssign, "assignment", req.Parent+"->"+req.Child, "success")
	httputil.WriteCreated(w, assignments.Edge{Tenant: tenant, Kind: kind, Parent: req.Parent, Child: req.Child})
}

func (s *Server) removeAssignment(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	kind, ok := parseKindOrError(w, r)
	if !ok {
		return
	}
	parent, ok := httputil.ParsePathStringOrError(w, r, "parent")
	if !ok {
		return
	}
	child, ok := httputil.ParsePathStringOrError(w, r, "child")
	if !ok {
		return
	}

	err := s.graph.Remove(r.Context(), tenant, kind, parent, child)
	s.recordEdgeOp(kind, "remove", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionUnassign, "assignment", parent+"->"+child, "success")
	httputil.WriteNoContent(w)
}

func (s *Server) listChildren(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	kind, ok := parseKindOrError(w, r)
	if !ok {
		return
	}
	parent, ok := httputil.ParsePathStringOrError(w, r, "parent")
	if !ok {
		return
	}

	children, err := s.graph.Children(r.Context(), tenant, kind, parent)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, membersResponse{Members: children})
}

func (s *Server) listParents(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	kind, ok := parseKindOrError(w, r)
	if !ok {
		return
	}
	child, ok := httputil.ParsePathStringOrError(w, r, "child")
	if !ok {
		return
	}

	parents, err := s.graph.Parents(r.Context(), tenant, kind, child)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, membersResponse{Members: parents})
}

// removeAllAssignments cascade-deletes every outgoing edge of a parent. A
// partial failure still reports 200: edges already removed stay removed, and
// the body says how many were left so the caller can retry deliberately.
func (s *Server) removeAllAssignments(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	kind, ok := parseKindOrError(w, r)
	if !ok {
		return
	}
	parent, ok := httputil.ParsePathStringOrError(w, r, "parent")
	if !ok {
		return
	}

	err := s.graph.RemoveAllForParent(r.Context(), tenant, kind, parent)
	s.recordEdgeOp(kind, "cascade", err)
	if err != nil {
		var cleanup *assignments.CleanupError
		if errors.As(err, &cleanup) {
			if s.metrics != nil {
				s.metrics.CascadeFailures.Inc()
			}
			observability.FromContext(r.Context()).WithError(err).Warn("Cascade removal incomplete")
			s.audit(r, tenant, audit.ActionUnassign, "assignment", parent, "partial")
			httputil.WriteSuccess(w, deleteResponse{
				Status:    "partial",
				Warning:   cleanup.Error(),
				Removed:   cleanup.Removed,
				Remaining: cleanup.Remaining,
			})
			return
		}
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionUnassign, "assignment", parent, "success")
	httputil.WriteSuccess(w, deleteResponse{Status: "deleted"})
}
