package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserStore(t *testing.T, config EntityStoreConfig) *UserStore {
	t.Helper()
	config.Now = fixedClock
	store, err := NewUserStore(config)
	require.NoError(t, err)
	return store
}

func TestUserStore_Lookups(t *testing.T) {
	store := newTestUserStore(t, EntityStoreConfig{})
	require.NoError(t, store.Add(&User{ID: "u1", ExternalID: "ext-1", Email: "Alice@Example.com", Name: "Alice", Role: RoleUser, CreatedAt: baseTime}))
	require.NoError(t, store.Add(&User{ID: "u2", ExternalID: "ext-2", Email: "bob@example.com", Name: "Bob", Role: RoleMerchant, CreatedAt: baseTime.Add(-time.Hour)}))

	t.Run("email is case-insensitive", func(t *testing.T) {
		user, ok := store.GetByEmail("  alice@EXAMPLE.com ")
		require.True(t, ok)
		assert.Equal(t, "u1", user.ID)
	})

	t.Run("external id", func(t *testing.T) {
		user, ok := store.GetByExternalID("ext-2")
		require.True(t, ok)
		assert.Equal(t, "Bob", user.Name)

		_, ok = store.GetByExternalID("EXT-2")
		assert.False(t, ok)
	})

	t.Run("role filter and search", func(t *testing.T) {
		assert.Len(t, store.GetFiltered("", RoleMerchant, FilterAll), 1)
		users := store.GetFiltered("bo", "", "")
		require.Len(t, users, 1)
		assert.Equal(t, "u2", users[0].ID)
	})
}

func TestUserStore_EmailChangeAndDelete(t *testing.T) {
	store := newTestUserStore(t, EntityStoreConfig{})
	require.NoError(t, store.Add(&User{ID: "u1", Email: "old@example.com", CreatedAt: baseTime}))
	require.NoError(t, store.Add(&User{ID: "u1", Email: "new@example.com", CreatedAt: baseTime}))

	_, ok := store.GetByEmail("old@example.com")
	assert.False(t, ok)
	user, ok := store.GetByEmail("new@example.com")
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)

	assert.True(t, store.Delete("u1"))
	_, ok = store.GetByEmail("new@example.com")
	assert.False(t, ok)
	assert.False(t, store.Delete("u1"))
}

func TestUserStore_EvictedUserNotReturnedByEmail(t *testing.T) {
	store := newTestUserStore(t, EntityStoreConfig{MaxRecords: 1})
	require.NoError(t, store.AddMany([]*User{
		{ID: "u1", Email: "a@example.com", CreatedAt: baseTime},
		{ID: "u2", Email: "b@example.com", CreatedAt: baseTime},
	}))

	_, ok := store.GetByEmail("a@example.com")
	assert.False(t, ok)
	_, ok = store.GetByEmail("b@example.com")
	assert.True(t, ok)
}

func TestUserStore_Clear(t *testing.T) {
	store := newTestUserStore(t, EntityStoreConfig{})
	require.NoError(t, store.Add(&User{ID: "u1", Email: "a@example.com", ExternalID: "x", CreatedAt: baseTime}))

	store.Clear()
	assert.Equal(t, 0, store.Size())
	_, ok := store.GetByEmail("a@example.com")
	assert.False(t, ok)
	_, ok = store.GetByExternalID("x")
	assert.False(t, ok)
}

func TestUserStore_ChurnKeepsSecondaryIndexesBounded(t *testing.T) {
	store := newTestUserStore(t, EntityStoreConfig{MaxRecords: 10})
	for i := 0; i < 5000; i++ {
		require.NoError(t, store.Add(&User{
			ID:         fmt.Sprintf("u%d", i),
			ExternalID: fmt.Sprintf("ext-%d", i),
			Email:      fmt.Sprintf("user%d@example.com", i),
			CreatedAt:  baseTime,
		}))
	}

	assert.Equal(t, 10, store.Size())
	assert.Len(t, store.byEmail, 10)
	assert.Len(t, store.byExternal, 10)
	// email and its local part are unique; "example" and "com" are shared
	assert.Equal(t, 22, store.Stats().IndexedTerms)

	require.True(t, store.Delete("u4999"))
	assert.Len(t, store.byEmail, 9)
	assert.Len(t, store.byExternal, 9)
}

func TestUserStore_PaddedEmail(t *testing.T) {
	store := newTestUserStore(t, EntityStoreConfig{})
	require.NoError(t, store.Add(&User{ID: "u1", Email: "  Carol@Example.com\t", CreatedAt: baseTime}))

	user, ok := store.GetByEmail("carol@example.com")
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)

	require.True(t, store.Delete("u1"))
	assert.Empty(t, store.byEmail)
}
