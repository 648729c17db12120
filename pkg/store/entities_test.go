package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoleCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	role, err := s.CreateRole(ctx, "acme", "writer", "can write things")
	require.NoError(t, err)
	assert.Equal(t, "acme", role.Tenant)
	assert.Equal(t, "writer", role.Name)
	assert.False(t, role.CreatedAt.IsZero())
	assert.Equal(t, role.CreatedAt, role.UpdatedAt)

	got, err := s.GetRole(ctx, "acme", "writer")
	require.NoError(t, err)
	assert.Equal(t, "can write things", got.Description)

	desc := "updated"
	updated, err := s.UpdateRole(ctx, "acme", "writer", EntityUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Description)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))

	require.NoError(t, s.DeleteRole(ctx, "acme", "writer"))

	_, err = s.GetRole(ctx, "acme", "writer")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	_, err := s.CreateRole(ctx, "acme", "writer", "")
	require.NoError(t, err)

	_, err = s.CreateRole(ctx, "acme", "writer", "second attempt")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same name under another tenant or kind is a different key.
	_, err = s.CreateRole(ctx, "globex", "writer", "")
	assert.NoError(t, err)
	_, err = s.CreatePermission(ctx, "acme", "writer", "")
	assert.NoError(t, err)
}

func TestStore_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	desc := "nope"
	_, err := s.UpdateRole(ctx, "acme", "ghost", EntityUpdate{Description: &desc})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdatePermission(ctx, "acme", "ghost", EntityUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteMissingReportsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	assert.ErrorIs(t, s.DeleteRole(ctx, "acme", "ghost"), ErrNotFound)
	assert.ErrorIs(t, s.DeletePermission(ctx, "acme", "ghost"), ErrNotFound)

	_, err := s.CreateRole(ctx, "acme", "temp", "")
	require.NoError(t, err)
	require.NoError(t, s.DeleteRole(ctx, "acme", "temp"))
	// Second delete distinguishes "already gone".
	assert.ErrorIs(t, s.DeleteRole(ctx, "acme", "temp"), ErrNotFound)
}

func TestStore_ValidatesKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	_, err := s.CreateRole(ctx, "", "writer", "")
	assert.Error(t, err)
	_, err = s.CreateRole(ctx, "acme", "  ", "")
	assert.Error(t, err)
}

func TestStore_ListPagination(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	for i := 0; i < 7; i++ {
		_, err := s.CreatePermission(ctx, "acme", fmt.Sprintf("perm-%d", i), "")
		require.NoError(t, err)
	}

	var all []Permission
	token := ""
	pages := 0
	for {
		perms, next, err := s.ListPermissions(ctx, "acme", ListOptions{Limit: 3, Token: token})
		require.NoError(t, err)
		all = append(all, perms...)
		pages++
		if next == "" {
			break
		}
		token = next
	}

	assert.Equal(t, 3, pages)
	require.Len(t, all, 7)
	// Insertion-order stable.
	for i, p := range all {
		assert.Equal(t, fmt.Sprintf("perm-%d", i), p.Name)
	}
}

func TestStore_ListEmptyTenant(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	roles, next, err := s.ListRoles(ctx, "nobody", ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.Empty(t, next)
}

func TestMemoryBackend_TokenRoundTrip(t *testing.T) {
	tok := encodeToken("perm-3")
	name, err := decodeToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "perm-3", name)

	_, err = decodeToken("%%%not-base64%%%")
	assert.Error(t, err)
}
