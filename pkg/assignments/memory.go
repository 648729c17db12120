package assignments

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is an in-process EdgeBackend used for tests and local
// development. Pair writes hold one lock, so they are atomic the same way
// the production backend's transactional batches are.
type MemoryBackend struct {
	mu      sync.RWMutex
	forward map[string]map[string]struct{}
	inverse map[string]map[string]struct{}
}

// NewMemoryBackend creates an empty in-memory edge backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		forward: make(map[string]map[string]struct{}),
		inverse: make(map[string]map[string]struct{}),
	}
}

func forwardKey(tenant string, kind Kind, parent string) string {
	return tenant + "/" + string(kind) + "/p/" + parent
}

func inverseKey(tenant string, kind Kind, child string) string {
	return tenant + "/" + string(kind) + "/c/" + child
}

// PutPair implements EdgeBackend.
func (b *MemoryBackend) PutPair(ctx context.Context, e Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fk := forwardKey(e.Tenant, e.Kind, e.Parent)
	ik := inverseKey(e.Tenant, e.Kind, e.Child)
	if b.forward[fk] == nil {
		b.forward[fk] = make(map[string]struct{})
	}
	if b.inverse[ik] == nil {
		b.inverse[ik] = make(map[string]struct{})
	}
	b.forward[fk][e.Child] = struct{}{}
	b.inverse[ik][e.Parent] = struct{}{}
	return nil
}

// DeletePair implements EdgeBackend.
func (b *MemoryBackend) DeletePair(ctx context.Context, e Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.forward[forwardKey(e.Tenant, e.Kind, e.Parent)], e.Child)
	delete(b.inverse[inverseKey(e.Tenant, e.Kind, e.Child)], e.Parent)
	return nil
}

// Forward implements EdgeBackend.
func (b *MemoryBackend) Forward(ctx context.Context, tenant string, kind Kind, parent string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedMembers(b.forward[forwardKey(tenant, kind, parent)]), nil
}

// Inverse implements EdgeBackend.
func (b *MemoryBackend) Inverse(ctx context.Context, tenant string, kind Kind, child string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedMembers(b.inverse[inverseKey(tenant, kind, child)]), nil
}

func sortedMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
