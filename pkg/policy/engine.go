package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wardenhq/warden/pkg/store"
)

// defaultConflictRetries bounds how often a lost optimistic-concurrency
// race is retried with fresh state before ErrConflict reaches the caller.
const defaultConflictRetries = 3

// Engine manages policy version chains on top of a VersionBackend.
type Engine struct {
	backend  VersionBackend
	retries  int
	now      func() time.Time
	onChange []func(tenant string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConflictRetries overrides the bounded retry count for optimistic
// concurrency conflicts.
func WithConflictRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// WithChangeListener registers a hook invoked after every successful
// mutation of a tenant's policy set. Used for cache invalidation.
func WithChangeListener(fn func(tenant string)) Option {
	return func(e *Engine) {
		e.onChange = append(e.onChange, fn)
	}
}

// NewEngine creates a policy version engine.
func NewEngine(backend VersionBackend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		retries: defaultConflictRetries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create writes version 1 of a new policy, active. Returns
// store.ErrAlreadyExists if the id is taken within the tenant.
func (e *Engine) Create(ctx context.Context, tenant string, in CreateInput) (*Version, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("policy id is required")
	}
	if in.Definition == "" {
		return nil, fmt.Errorf("policy definition is required")
	}
	name := in.Name
	if name == "" {
		name = in.ID
	}

	v := Version{
		Tenant:      tenant,
		ID:          in.ID,
		Name:        name,
		Definition:  in.Definition,
		Language:    in.Language,
		Description: in.Description,
		Metadata:    copyMetadata(in.Metadata),
		Active:      true,
		CreatedAt:   e.now().UTC(),
	}
	for attempt := 0; ; attempt++ {
		if _, err := e.backend.Active(ctx, tenant, in.ID); err == nil {
			return nil, fmt.Errorf("policy %q: %w", in.ID, store.ErrAlreadyExists)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		// A deleted policy keeps its history; re-creating the id continues
		// the chain so version numbers are never reused.
		versions, err := e.backend.List(ctx, tenant, in.ID)
		if err != nil {
			return nil, err
		}
		v.Version = 1
		if n := len(versions); n > 0 {
			v.Version = versions[n-1].Version + 1
		}

		err = e.backend.Append(ctx, v, 0)
		if err == nil {
			e.notify(tenant)
			return &v, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= e.retries {
			return nil, fmt.Errorf("create policy %q: %w", in.ID, err)
		}
	}
}

// GetLatest returns the currently active version of a policy. Returns
// store.ErrNotFound if the policy has no active version (never created, or
// deleted).
func (e *Engine) GetLatest(ctx context.Context, tenant, id string) (*Version, error) {
	return e.backend.Active(ctx, tenant, id)
}

// GetVersion returns one historical version. Returns
// store.ErrVersionNotFound if that version was never written.
func (e *Engine) GetVersion(ctx context.Context, tenant, id string, version int) (*Version, error) {
	v, err := e.backend.Get(ctx, tenant, id, version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("policy %q version %d: %w", id, version, store.ErrVersionNotFound)
		}
		return nil, err
	}
	return v, nil
}

// ListVersions returns the full audit trail of a policy in ascending
// version order. Returns store.ErrNotFound for an unknown policy id.
func (e *Engine) ListVersions(ctx context.Context, tenant, id string) ([]Version, error) {
	versions, err := e.backend.List(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("policy %q: %w", id, store.ErrNotFound)
	}
	return versions, nil
}

// Update appends a new version carrying the prior active version's content
// merged with the supplied fields, and moves the active pointer to it.
// Returns store.ErrNotFound if the policy has no active version, or
// store.ErrConflict once bounded retries against concurrent writers are
// exhausted.
func (e *Engine) Update(ctx context.Context, tenant, id string, in UpdateInput) (*Version, error) {
	v, err := e.appendWithRetry(ctx, tenant, id, func(cur *Version) Version {
		next := *cur
		next.Version = cur.Version + 1
		next.Active = true
		next.CreatedAt = e.now().UTC()
		next.Metadata = copyMetadata(cur.Metadata)
		if in.Name != nil {
			next.Name = *in.Name
		}
		if in.Definition != nil {
			next.Definition = *in.Definition
		}
		if in.Language != nil {
			next.Language = *in.Language
		}
		if in.Description != nil {
			next.Description = *in.Description
		}
		if in.Metadata != nil {
			next.Metadata = copyMetadata(in.Metadata)
		}
		return next
	})
	if err != nil {
		return nil, err
	}
	e.notify(tenant)
	return v, nil
}

// Rollback appends a new version whose content is copied verbatim from the
// target version, and moves the active pointer to it. The target row is
// never reactivated or rewritten; the chain stays append-only. Returns
// store.ErrVersionNotFound if the target does not exist.
func (e *Engine) Rollback(ctx context.Context, tenant, id string, target int) (*Version, error) {
	tgt, err := e.GetVersion(ctx, tenant, id, target)
	if err != nil {
		return nil, err
	}

	v, err := e.appendWithRetry(ctx, tenant, id, func(cur *Version) Version {
		next := *tgt
		next.Version = cur.Version + 1
		next.Active = true
		next.CreatedAt = e.now().UTC()
		next.Metadata = copyMetadata(tgt.Metadata)
		return next
	})
	if err != nil {
		return nil, err
	}
	e.notify(tenant)
	return v, nil
}

// Delete deactivates the current active version without a replacement.
// Historical rows are retained for audit; only the active set changes.
// Returns store.ErrNotFound if the policy has no active version.
func (e *Engine) Delete(ctx context.Context, tenant, id string) error {
	for attempt := 0; ; attempt++ {
		cur, err := e.backend.Active(ctx, tenant, id)
		if err != nil {
			return err
		}
		err = e.backend.Deactivate(ctx, tenant, id, cur.Version)
		if err == nil {
			e.notify(tenant)
			return nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= e.retries {
			return fmt.Errorf("delete policy %q: %w", id, err)
		}
	}
}

// AllActive returns the active version of every live policy in the tenant,
// ordered by policy id. This is the feed for bundle export.
func (e *Engine) AllActive(ctx context.Context, tenant string) ([]Version, error) {
	versions, err := e.backend.ActiveForTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ID < versions[j].ID })
	return versions, nil
}

// appendWithRetry runs the read-modify-append cycle under optimistic
// concurrency: the append is conditional on the observed active version
// still being the newest, and a lost race re-reads and tries again.
func (e *Engine) appendWithRetry(ctx context.Context, tenant, id string, build func(cur *Version) Version) (*Version, error) {
	for attempt := 0; ; attempt++ {
		cur, err := e.backend.Active(ctx, tenant, id)
		if err != nil {
			return nil, err
		}

		next := build(cur)
		err = e.backend.Append(ctx, next, cur.Version)
		if err == nil {
			return &next, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= e.retries {
			return nil, fmt.Errorf("append policy %q version %d: %w", id, next.Version, err)
		}
	}
}

func (e *Engine) notify(tenant string) {
	for _, fn := range e.onChange {
		fn(tenant)
	}
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
