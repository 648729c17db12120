package policy

import (
	"context"
	"sync"

	"github.com/wardenhq/warden/pkg/store"
)

// MemoryBackend is an in-process VersionBackend used for tests and local
// development. Append and Deactivate hold one lock for the whole batch,
// matching the atomicity of the production backend's transactions.
type MemoryBackend struct {
	mu     sync.RWMutex
	chains map[string][]Version // keyed by tenant + "/" + id, ascending
}

// NewMemoryBackend creates an empty in-memory version backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{chains: make(map[string][]Version)}
}

func chainKey(tenant, id string) string {
	return tenant + "/" + id
}

// Append implements VersionBackend.
func (b *MemoryBackend) Append(ctx context.Context, v Version, priorActive int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := chainKey(v.Tenant, v.ID)
	chain := b.chains[key]

	for i := range chain {
		if chain[i].Version == v.Version {
			return store.ErrConflict
		}
	}
	if priorActive > 0 {
		prior := -1
		for i := range chain {
			if chain[i].Version == priorActive && chain[i].Active {
				prior = i
				break
			}
		}
		if prior < 0 {
			return store.ErrConflict
		}
		chain[prior].Active = false
	}
	b.chains[key] = append(chain, v)
	return nil
}

// Get implements VersionBackend.
func (b *MemoryBackend) Get(ctx context.Context, tenant, id string, version int) (*Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, v := range b.chains[chainKey(tenant, id)] {
		if v.Version == version {
			out := v
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// List implements VersionBackend.
func (b *MemoryBackend) List(ctx context.Context, tenant, id string) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	chain := b.chains[chainKey(tenant, id)]
	out := make([]Version, len(chain))
	copy(out, chain)
	return out, nil
}

// Active implements VersionBackend.
func (b *MemoryBackend) Active(ctx context.Context, tenant, id string) (*Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, v := range b.chains[chainKey(tenant, id)] {
		if v.Active {
			out := v
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// Deactivate implements VersionBackend.
func (b *MemoryBackend) Deactivate(ctx context.Context, tenant, id string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	chain := b.chains[chainKey(tenant, id)]
	for i := range chain {
		if chain[i].Version == version {
			if !chain[i].Active {
				return store.ErrConflict
			}
			chain[i].Active = false
			return nil
		}
	}
	return store.ErrConflict
}

// ActiveForTenant implements VersionBackend.
func (b *MemoryBackend) ActiveForTenant(ctx context.Context, tenant string) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Version
	for key, chain := range b.chains {
		if len(key) < len(tenant)+1 || key[:len(tenant)+1] != tenant+"/" {
			continue
		}
		for _, v := range chain {
			if v.Active {
				out = append(out, v)
			}
		}
	}
	return out, nil
}
