package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store provides role and permission CRUD over an EntityBackend.
type Store struct {
	backend EntityBackend
	now     func() time.Time
}

// NewStore creates a new entity store.
func NewStore(backend EntityBackend) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
	}
}

// EntityUpdate carries the mutable fields of an entity. Nil fields are left
// unchanged.
type EntityUpdate struct {
	Description *string `json:"description,omitempty"`
}

// CreateRole creates a new role. Returns ErrAlreadyExists if the name is
// taken within the tenant.
func (s *Store) CreateRole(ctx context.Context, tenant, name, description string) (*Role, error) {
	e, err := s.create(ctx, tenant, KindRole, name, description)
	if err != nil {
		return nil, err
	}
	return roleFromEntity(e), nil
}

// GetRole retrieves a role by name. Returns ErrNotFound if absent.
func (s *Store) GetRole(ctx context.Context, tenant, name string) (*Role, error) {
	e, err := s.backend.Get(ctx, tenant, KindRole, name)
	if err != nil {
		return nil, err
	}
	return roleFromEntity(e), nil
}

// ListRoles returns one page of roles plus a continuation token for the
// next page.
func (s *Store) ListRoles(ctx context.Context, tenant string, opts ListOptions) ([]Role, string, error) {
	page, err := s.backend.List(ctx, tenant, KindRole, opts)
	if err != nil {
		return nil, "", err
	}
	roles := make([]Role, 0, len(page.Items))
	for i := range page.Items {
		roles = append(roles, *roleFromEntity(&page.Items[i]))
	}
	return roles, page.NextToken, nil
}

// UpdateRole merges the supplied fields onto an existing role and bumps its
// UpdatedAt. Returns ErrNotFound if the role does not exist.
func (s *Store) UpdateRole(ctx context.Context, tenant, name string, upd EntityUpdate) (*Role, error) {
	e, err := s.update(ctx, tenant, KindRole, name, upd)
	if err != nil {
		return nil, err
	}
	return roleFromEntity(e), nil
}

// DeleteRole deletes a role. Deleting an absent role returns ErrNotFound so
// callers can tell "already gone" from "just removed". Cascade cleanup of
// assignment edges referencing the role is the caller's responsibility.
func (s *Store) DeleteRole(ctx context.Context, tenant, name string) error {
	return s.backend.Delete(ctx, tenant, KindRole, name)
}

// CreatePermission creates a new permission. Returns ErrAlreadyExists if
// the name is taken within the tenant.
func (s *Store) CreatePermission(ctx context.Context, tenant, name, description string) (*Permission, error) {
	e, err := s.create(ctx, tenant, KindPermission, name, description)
	if err != nil {
		return nil, err
	}
	return permissionFromEntity(e), nil
}

// GetPermission retrieves a permission by name. Returns ErrNotFound if
// absent.
func (s *Store) GetPermission(ctx context.Context, tenant, name string) (*Permission, error) {
	e, err := s.backend.Get(ctx, tenant, KindPermission, name)
	if err != nil {
		return nil, err
	}
	return permissionFromEntity(e), nil
}

// ListPermissions returns one page of permissions plus a continuation token.
func (s *Store) ListPermissions(ctx context.Context, tenant string, opts ListOptions) ([]Permission, string, error) {
	page, err := s.backend.List(ctx, tenant, KindPermission, opts)
	if err != nil {
		return nil, "", err
	}
	perms := make([]Permission, 0, len(page.Items))
	for i := range page.Items {
		perms = append(perms, *permissionFromEntity(&page.Items[i]))
	}
	return perms, page.NextToken, nil
}

// UpdatePermission merges the supplied fields onto an existing permission.
// Returns ErrNotFound if the permission does not exist.
func (s *Store) UpdatePermission(ctx context.Context, tenant, name string, upd EntityUpdate) (*Permission, error) {
	e, err := s.update(ctx, tenant, KindPermission, name, upd)
	if err != nil {
		return nil, err
	}
	return permissionFromEntity(e), nil
}

// DeletePermission deletes a permission. Returns ErrNotFound if absent.
func (s *Store) DeletePermission(ctx context.Context, tenant, name string) error {
	return s.backend.Delete(ctx, tenant, KindPermission, name)
}

func (s *Store) create(ctx context.Context, tenant string, kind EntityKind, name, description string) (*Entity, error) {
	if err := validateKey(tenant, name); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	e := Entity{
		Tenant:      tenant,
		Kind:        kind,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.backend.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return &e, nil
}

func (s *Store) update(ctx context.Context, tenant string, kind EntityKind, name string, upd EntityUpdate) (*Entity, error) {
	e, err := s.backend.Get(ctx, tenant, kind, name)
	if err != nil {
		return nil, err
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	e.UpdatedAt = s.now().UTC()
	if err := s.backend.Update(ctx, *e); err != nil {
		return nil, fmt.Errorf("update %s %q: %w", kind, name, err)
	}
	return e, nil
}

func validateKey(tenant, name string) error {
	if strings.TrimSpace(tenant) == "" {
		return fmt.Errorf("tenant is required")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
