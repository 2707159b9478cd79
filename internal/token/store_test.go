package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, got, "absent tenant should return nil record and nil error")

	now := time.Now().UTC()
	record := &CachedToken{
		TenantID:  "tenant-a",
		Token:     "tok-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, store.Put(ctx, record))

	got, err = store.Get(ctx, "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.Token)

	// Mutating the returned record must not touch the stored copy.
	got.Token = "mutated"
	again, err := store.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", again.Token)
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, &CachedToken{TenantID: "tenant-a", Token: "old", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, &CachedToken{TenantID: "tenant-a", Token: "new", ExpiresAt: now.Add(time.Hour)}))

	got, err := store.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Token)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &CachedToken{TenantID: "tenant-a", Token: "tok"}))
	require.NoError(t, store.Delete(ctx, "tenant-a"))
	require.NoError(t, store.Delete(ctx, "tenant-a"), "deleting an absent record must not error")
	require.NoError(t, store.Delete(ctx, "never-existed"))

	got, err := store.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_DeleteExpiredBefore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, &CachedToken{TenantID: "old", Token: "a", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Put(ctx, &CachedToken{TenantID: "recent", Token: "b", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Put(ctx, &CachedToken{TenantID: "live", Token: "c", ExpiresAt: now.Add(time.Hour)}))

	// Expired records stay visible until swept.
	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	removed, err := store.DeleteExpiredBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the record past the cutoff is removed")

	removed, err = store.DeleteExpiredBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	records, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "live", records[0].TenantID)
}
