package store

import (
	"context"
	"encoding/base64"
	"sync"
)

// MemoryBackend is an in-process EntityBackend used for tests and local
// development. It honors the same conditional-write contract as the
// production backend.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]Entity
	// order preserves insertion order per partition for stable pagination.
	order map[string][]string
}

// NewMemoryBackend creates an empty in-memory entity backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string]Entity),
		order: make(map[string][]string),
	}
}

func entityPartition(tenant string, kind EntityKind) string {
	return tenant + "/" + string(kind)
}

func entityKey(tenant string, kind EntityKind, name string) string {
	return entityPartition(tenant, kind) + "/" + name
}

// Insert implements EntityBackend.
func (b *MemoryBackend) Insert(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := entityKey(e.Tenant, e.Kind, e.Name)
	if _, ok := b.items[key]; ok {
		return ErrAlreadyExists
	}
	b.items[key] = e
	part := entityPartition(e.Tenant, e.Kind)
	b.order[part] = append(b.order[part], e.Name)
	return nil
}

// Get implements EntityBackend.
func (b *MemoryBackend) Get(ctx context.Context, tenant string, kind EntityKind, name string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.items[entityKey(tenant, kind, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// List implements EntityBackend. The continuation token is the
// base64-encoded name of the last entity on the previous page.
func (b *MemoryBackend) List(ctx context.Context, tenant string, kind EntityKind, opts ListOptions) (*EntityPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	part := entityPartition(tenant, kind)
	names := b.order[part]

	start := 0
	if opts.Token != "" {
		last, err := decodeToken(opts.Token)
		if err != nil {
			return nil, err
		}
		for i, n := range names {
			if n == last {
				start = i + 1
				break
			}
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = len(names)
	}

	page := &EntityPage{}
	for i := start; i < len(names) && len(page.Items) < limit; i++ {
		if e, ok := b.items[entityKey(tenant, kind, names[i])]; ok {
			page.Items = append(page.Items, e)
		}
	}
	if n := len(page.Items); n > 0 && start+n < len(names) {
		page.NextToken = encodeToken(page.Items[n-1].Name)
	}
	return page, nil
}

// Update implements EntityBackend.
func (b *MemoryBackend) Update(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := entityKey(e.Tenant, e.Kind, e.Name)
	if _, ok := b.items[key]; !ok {
		return ErrNotFound
	}
	b.items[key] = e
	return nil
}

// Delete implements EntityBackend.
func (b *MemoryBackend) Delete(ctx context.Context, tenant string, kind EntityKind, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := entityKey(tenant, kind, name)
	if _, ok := b.items[key]; !ok {
		return ErrNotFound
	}
	delete(b.items, key)

	part := entityPartition(tenant, kind)
	names := b.order[part]
	for i, n := range names {
		if n == name {
			b.order[part] = append(names[:i:i], names[i+1:]...)
			break
		}
	}
	return nil
}

func encodeToken(name string) string {
	return base64.URLEncoding.EncodeToString([]byte(name))
}

func decodeToken(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
