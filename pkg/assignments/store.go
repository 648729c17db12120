package assignments

import (
	"context"
	"fmt"
	"strings"
)

// Kind enumerates the four directed edge relations in the graph.
type Kind string

const (
	// GroupRole links an identity-provider group to a role.
	GroupRole Kind = "group-role"
	// RolePermission links a role to a permission it grants.
	RolePermission Kind = "role-permission"
	// UserRole links an individual user directly to a role.
	UserRole Kind = "user-role"
	// UserPermission links an individual user directly to a permission.
	UserPermission Kind = "user-permission"
)

// ParseKind converts a string into a Kind, rejecting unknown values.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case GroupRole, RolePermission, UserRole, UserPermission:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown assignment kind %q", s)
}

// Edge is a directed membership fact. Edges carry no attributes beyond
// identity; membership is a boolean fact.
type Edge struct {
	Tenant string `json:"tenant"`
	Kind   Kind   `json:"kind"`
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// EdgeBackend is the persistence contract for the assignment graph.
//
// PutPair and DeletePair must write the forward and inverse records in one
// atomic batch: both apply or neither does. Both must be idempotent.
// Forward and Inverse are single-partition lookups, never scans.
type EdgeBackend interface {
	PutPair(ctx context.Context, e Edge) error
	DeletePair(ctx context.Context, e Edge) error
	Forward(ctx context.Context, tenant string, kind Kind, parent string) ([]string, error)
	Inverse(ctx context.Context, tenant string, kind Kind, child string) ([]string, error)
}

// CleanupError reports a cascade removal that stopped partway. Edges
// deleted before the failure stay deleted; Remaining counts the edge pairs
// left behind.
type CleanupError struct {
	Tenant    string
	Kind      Kind
	Parent    string
	Removed   int
	Remaining int
	Err       error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup incomplete for %s parent %q: removed %d, %d remaining: %v",
		e.Kind, e.Parent, e.Removed, e.Remaining, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Store is the assignment graph store.
type Store struct {
	backend EdgeBackend
}

// NewStore creates a new assignment graph store.
func NewStore(backend EdgeBackend) *Store {
	return &Store{backend: backend}
}

// Assign records the edge (parent -> child). Re-assigning an existing edge
// is a no-op.
func (s *Store) Assign(ctx context.Context, tenant string, kind Kind, parent, child string) error {
	e := Edge{Tenant: tenant, Kind: kind, Parent: parent, Child: child}
	if err := validateEdge(e); err != nil {
		return err
	}
	if err := s.backend.PutPair(ctx, e); err != nil {
		return fmt.Errorf("assign %s %q -> %q: %w", kind, parent, child, err)
	}
	return nil
}

// Remove deletes the edge (parent -> child) from both indexes. Removing an
// absent edge is a no-op.
func (s *Store) Remove(ctx context.Context, tenant string, kind Kind, parent, child string) error {
	e := Edge{Tenant: tenant, Kind: kind, Parent: parent, Child: child}
	if err := validateEdge(e); err != nil {
		return err
	}
	if err := s.backend.DeletePair(ctx, e); err != nil {
		return fmt.Errorf("remove %s %q -> %q: %w", kind, parent, child, err)
	}
	return nil
}

// Children returns every child assigned to parent, via the forward index.
func (s *Store) Children(ctx context.Context, tenant string, kind Kind, parent string) ([]string, error) {
	return s.backend.Forward(ctx, tenant, kind, parent)
}

// Parents returns every parent holding child, via the inverse index.
func (s *Store) Parents(ctx context.Context, tenant string, kind Kind, child string) ([]string, error) {
	return s.backend.Inverse(ctx, tenant, kind, child)
}

// RemoveAllForParent cascade-deletes every outgoing edge of parent. It is
// best-effort: each pair delete is atomic, but the cascade as a whole is
// not. On partial failure it returns a CleanupError; already-deleted edges
// stay deleted and the operation must not be retried automatically.
func (s *Store) RemoveAllForParent(ctx context.Context, tenant string, kind Kind, parent string) error {
	children, err := s.backend.Forward(ctx, tenant, kind, parent)
	if err != nil {
		return fmt.Errorf("list edges for %s parent %q: %w", kind, parent, err)
	}

	for i, child := range children {
		e := Edge{Tenant: tenant, Kind: kind, Parent: parent, Child: child}
		if err := s.backend.DeletePair(ctx, e); err != nil {
			return &CleanupError{
				Tenant:    tenant,
				Kind:      kind,
				Parent:    parent,
				Removed:   i,
				Remaining: len(children) - i,
				Err:       err,
			}
		}
	}
	return nil
}

func validateEdge(e Edge) error {
	if strings.TrimSpace(e.Tenant) == "" {
		return fmt.Errorf("tenant is required")
	}
	if strings.TrimSpace(e.Parent) == "" || strings.TrimSpace(e.Child) == "" {
		return fmt.Errorf("parent and child are required")
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return err
	}
	return nil
}
