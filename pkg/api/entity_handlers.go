package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wardenhq/warden/pkg/assignments"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/store"
)

const defaultPageSize = 50

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	var req createEntityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	role, err := s.entities.CreateRole(r.Context(), tenant, req.Name, req.Description)
	s.recordEntityOp(store.KindRole, "create", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionCreate, "role", req.Name, "success")
	httputil.WriteCreated(w, role)
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	roles, next, err := s.entities.ListRoles(r.Context(), tenant, opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, rolePageResponse{Items: roles, NextToken: next})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	role, err := s.entities.GetRole(r.Context(), tenant, name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	var req updateEntityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := s.entities.UpdateRole(r.Context(), tenant, name, store.EntityUpdate{Description: req.Description})
	s.recordEntityOp(store.KindRole, "update", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionUpdate, "role", name, "success")
	httputil.WriteSuccess(w, role)
}

// deleteRole removes the role and then best-effort cleans up every edge that
// references it: role-permission edges where it is the parent, and
// group-role / user-role edges where it is the child. A cascade failure does
// not undo the delete; the response reports what was left behind.
func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	err := s.entities.DeleteRole(r.Context(), tenant, name)
	s.recordEntityOp(store.KindRole, "delete", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionDelete, "role", name, "success")

	resp := s.cascadeEntityEdges(r, tenant, name,
		[]assignments.Kind{assignments.RolePermission},
		[]assignments.Kind{assignments.GroupRole, assignments.UserRole})
	httputil.WriteSuccess(w, resp)
}

func (s *Server) createPermission(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	var req createEntityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	perm, err := s.entities.CreatePermission(r.Context(), tenant, req.Name, req.Description)
	s.recordEntityOp(store.KindPermission, "create", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionCreate, "permission", req.Name, "success")
	httputil.WriteCreated(w, perm)
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	perms, next, err := s.entities.ListPermissions(r.Context(), tenant, opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, permissionPageResponse{Items: perms, NextToken: next})
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	perm, err := s.entities.GetPermission(r.Context(), tenant, name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

func (s *Server) updatePermission(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	var req updateEntityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := s.entities.UpdatePermission(r.Context(), tenant, name, store.EntityUpdate{Description: req.Description})
	s.recordEntityOp(store.KindPermission, "update", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionUpdate, "permission", name, "success")
	httputil.WriteSuccess(w, perm)
}

// deletePermission removes the permission plus the role-permission and
// user-permission edges pointing at it.
func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	err := s.entities.DeletePermission(r.Context(), tenant, name)
	s.recordEntityOp(store.KindPermission, "delete", err)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionDelete, "permission", name, "success")

	resp := s.cascadeEntityEdges(r, tenant, name,
		nil,
		[]assignments.Kind{assignments.RolePermission, assignments.UserPermission})
	httputil.WriteSuccess(w, resp)
}

// cascadeEntityEdges removes the deleted entity's edges from the graph. The
// entity delete has already committed, so failures here degrade to a warning
// in the response rather than an error status.
func (s *Server) cascadeEntityEdges(r *http.Request, tenant, name string, asParent, asChild []assignments.Kind) deleteResponse {
	resp := deleteResponse{Status: "deleted"}
	logger := observability.FromContext(r.Context())

	for _, kind := range asParent {
		if err := s.graph.RemoveAllForParent(r.Context(), tenant, kind, name); err != nil {
			s.noteCascadeFailure(&resp, logger, err)
		}
	}
	for _, kind := range asChild {
		parents, err := s.graph.Parents(r.Context(), tenant, kind, name)
		if err != nil {
			s.noteCascadeFailure(&resp, logger, fmt.Errorf("list %s parents of %q: %w", kind, name, err))
			continue
		}
		for i, parent := range parents {
			if err := s.graph.Remove(r.Context(), tenant, kind, parent, name); err != nil {
				s.noteCascadeFailure(&resp, logger, &assignments.CleanupError{
					Tenant:    tenant,
					Kind:      kind,
					Parent:    parent,
					Removed:   i,
					Remaining: len(parents) - i,
					Err:       err,
				})
				break
			}
			resp.Removed++
			if s.metrics != nil {
				s.metrics.CascadeEdgesRemoved.Inc()
			}
		}
	}
	return resp
}

func (s *Server) noteCascadeFailure(resp *deleteResponse, logger *observability.Logger, err error) {
	if s.metrics != nil {
		s.metrics.CascadeFailures.Inc()
	}
	logger.WithError(err).Warn("Cascade cleanup incomplete after delete")

	var cleanup *assignments.CleanupError
	if errors.As(err, &cleanup) {
		resp.Removed += cleanup.Removed
		resp.Remaining += cleanup.Remaining
	}
	if resp.Warning == "" {
		resp.Warning = err.Error()
	}
}

func listOptions(w http.ResponseWriter, r *http.Request) (store.ListOptions, bool) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return store.ListOptions{}, false
	}
	return store.ListOptions{
		Limit: limit,
		Token: httputil.ParseQueryString(r, "token", ""),
	}, true
}
