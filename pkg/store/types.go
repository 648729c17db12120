package store

import (
	"context"
	"time"
)

// EntityKind discriminates the keyed entity collections.
type EntityKind string

const (
	KindRole       EntityKind = "role"
	KindPermission EntityKind = "permission"
)

// Entity is the stored representation shared by roles and permissions.
// The (Tenant, Kind, Name) triple is the identifying key.
type Entity struct {
	Tenant      string    `json:"tenant"`
	Kind        EntityKind `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named grant target that groups and users can be assigned to.
type Role struct {
	Tenant      string    `json:"tenant"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a named capability that roles and users can carry.
type Permission struct {
	Tenant      string    `json:"tenant"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListOptions controls pagination for entity listings. Token is the opaque
// continuation token returned by a previous page; empty starts from the
// beginning.
type ListOptions struct {
	Limit int
	Token string
}

// EntityPage is one page of a listing. NextToken is empty on the last page.
// Ordering is insertion-order-stable, but concurrent writes during
// pagination may shift entries between pages.
type EntityPage struct {
	Items     []Entity
	NextToken string
}

// EntityBackend is the persistence contract for keyed entities.
//
// Insert must be conditional on the key being absent and return
// ErrAlreadyExists otherwise. Update and Delete must be conditional on the
// key being present and return ErrNotFound otherwise. None of the methods
// may fall back to a separate existence read.
type EntityBackend interface {
	Insert(ctx context.Context, e Entity) error
	Get(ctx context.Context, tenant string, kind EntityKind, name string) (*Entity, error)
	List(ctx context.Context, tenant string, kind EntityKind, opts ListOptions) (*EntityPage, error)
	Update(ctx context.Context, e Entity) error
	Delete(ctx context.Context, tenant string, kind EntityKind, name string) error
}

func roleFromEntity(e *Entity) *Role {
	return &Role{
		Tenant:      e.Tenant,
		Name:        e.Name,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func permissionFromEntity(e *Entity) *Permission {
	return &Permission{
		Tenant:      e.Tenant,
		Name:        e.Name,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
