package assignments

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AssignBidirectional(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	require.NoError(t, s.Assign(ctx, "acme", GroupRole, "editors", "writer"))

	children, err := s.Children(ctx, "acme", GroupRole, "editors")
	require.NoError(t, err)
	assert.Equal(t, []string{"writer"}, children)

	parents, err := s.Parents(ctx, "acme", GroupRole, "writer")
	require.NoError(t, err)
	assert.Equal(t, []string{"editors"}, parents)
}

func TestStore_AssignIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	require.NoError(t, s.Assign(ctx, "acme", RolePermission, "writer", "documents.write"))
	require.NoError(t, s.Assign(ctx, "acme", RolePermission, "writer", "documents.write"))

	children, err := s.Children(ctx, "acme", RolePermission, "writer")
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestStore_RemoveBothIndexes(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	require.NoError(t, s.Assign(ctx, "acme", UserRole, "alice", "writer"))
	require.NoError(t, s.Remove(ctx, "acme", UserRole, "alice", "writer"))

	children, err := s.Children(ctx, "acme", UserRole, "alice")
	require.NoError(t, err)
	assert.Empty(t, children)

	parents, err := s.Parents(ctx, "acme", UserRole, "writer")
	require.NoError(t, err)
	assert.Empty(t, parents)

	// Second remove is a no-op, not an error.
	assert.NoError(t, s.Remove(ctx, "acme", UserRole, "alice", "writer"))
}

func TestStore_KindsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	require.NoError(t, s.Assign(ctx, "acme", UserRole, "alice", "writer"))
	require.NoError(t, s.Assign(ctx, "acme", GroupRole, "alice", "writer"))

	require.NoError(t, s.Remove(ctx, "acme", UserRole, "alice", "writer"))

	parents, err := s.Parents(ctx, "acme", GroupRole, "writer")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, parents)
}

func TestStore_TenantsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	require.NoError(t, s.Assign(ctx, "acme", GroupRole, "editors", "writer"))
	require.NoError(t, s.Assign(ctx, "globex", GroupRole, "editors", "reviewer"))

	children, err := s.Children(ctx, "acme", GroupRole, "editors")
	require.NoError(t, err)
	assert.Equal(t, []string{"writer"}, children)
}

func TestStore_RemoveAllForParent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	require.NoError(t, s.Assign(ctx, "acme", GroupRole, "editors", "writer"))
	require.NoError(t, s.Assign(ctx, "acme", GroupRole, "editors", "reviewer"))
	require.NoError(t, s.Assign(ctx, "acme", GroupRole, "admins", "writer"))

	require.NoError(t, s.RemoveAllForParent(ctx, "acme", GroupRole, "editors"))

	children, err := s.Children(ctx, "acme", GroupRole, "editors")
	require.NoError(t, err)
	assert.Empty(t, children)

	// Inverse entries for the cascaded parent are gone, other parents stay.
	parents, err := s.Parents(ctx, "acme", GroupRole, "writer")
	require.NoError(t, err)
	assert.Equal(t, []string{"admins"}, parents)

	parents, err = s.Parents(ctx, "acme", GroupRole, "reviewer")
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestStore_RemoveAllForParentEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())
	assert.NoError(t, s.RemoveAllForParent(ctx, "acme", GroupRole, "nobody"))
}

// failAfterBackend fails every DeletePair after the first n calls.
type failAfterBackend struct {
	EdgeBackend
	n     int
	calls int
}

func (f *failAfterBackend) DeletePair(ctx context.Context, e Edge) error {
	f.calls++
	if f.calls > f.n {
		return fmt.Errorf("simulated backend outage")
	}
	return f.EdgeBackend.DeletePair(ctx, e)
}

func TestStore_RemoveAllForParentPartialFailure(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	backend := &failAfterBackend{EdgeBackend: mem, n: 2}
	s := NewStore(backend)

	for i := 0; i < 5; i++ {
		require.NoError(t, mem.PutPair(ctx, Edge{
			Tenant: "acme", Kind: GroupRole, Parent: "editors", Child: fmt.Sprintf("role-%d", i),
		}))
	}

	err := s.RemoveAllForParent(ctx, "acme", GroupRole, "editors")
	require.Error(t, err)

	var cleanup *CleanupError
	require.True(t, errors.As(err, &cleanup))
	assert.Equal(t, 2, cleanup.Removed)
	assert.Equal(t, 3, cleanup.Remaining)
	assert.Equal(t, "editors", cleanup.Parent)

	// Already-deleted edges stay deleted.
	children, qerr := s.Children(ctx, "acme", GroupRole, "editors")
	require.NoError(t, qerr)
	assert.Len(t, children, 3)
}

func TestStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	assert.Error(t, s.Assign(ctx, "", GroupRole, "a", "b"))
	assert.Error(t, s.Assign(ctx, "acme", GroupRole, "", "b"))
	assert.Error(t, s.Assign(ctx, "acme", Kind("bogus"), "a", "b"))
	assert.Error(t, s.Remove(ctx, "acme", Kind("bogus"), "a", "b"))
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"group-role", "role-permission", "user-role", "user-permission"} {
		k, err := ParseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, Kind(valid), k)
	}
	_, err := ParseKind("group_role")
	assert.Error(t, err)
}
