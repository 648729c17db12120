package policy

import (
	"context"
	"time"
)

// Version is one immutable row in a policy's append-only history. The
// (Tenant, ID, Version) triple is the identifying key; ID is the stable
// logical policy identifier.
type Version struct {
	Tenant      string            `json:"tenant"`
	ID          string            `json:"id"`
	Version     int               `json:"version"`
	Name        string            `json:"name"`
	Definition  string            `json:"definition"`
	Language    string            `json:"language"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// VersionBackend is the persistence contract for policy version chains.
//
// Append writes v conditionally on its version number being unused and, when
// priorActive > 0, deactivates that version in the same atomic batch. A
// failed condition (either side) must surface as store.ErrConflict without
// any partial write. Deactivate is conditional on the version still being
// active and returns store.ErrConflict otherwise. Get returns
// store.ErrNotFound for an absent row; List returns rows in ascending
// version order; ActiveForTenant is a tenant-scoped query over currently
// active versions only.
type VersionBackend interface {
	Append(ctx context.Context, v Version, priorActive int) error
	Get(ctx context.Context, tenant, id string, version int) (*Version, error)
	List(ctx context.Context, tenant, id string) ([]Version, error)
	Active(ctx context.Context, tenant, id string) (*Version, error)
	Deactivate(ctx context.Context, tenant, id string, version int) error
	ActiveForTenant(ctx context.Context, tenant string) ([]Version, error)
}

// CreateInput carries the fields of a new policy. ID doubles as the policy
// name and must be unique within the tenant.
type CreateInput struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Definition  string            `json:"definition"`
	Language    string            `json:"language"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UpdateInput carries the mutable fields of a policy. Nil fields are
// carried over from the prior active version unchanged; a non-nil Metadata
// replaces the prior map wholesale.
type UpdateInput struct {
	Name        *string           `json:"name,omitempty"`
	Definition  *string           `json:"definition,omitempty"`
	Language    *string           `json:"language,omitempty"`
	Description *string           `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
