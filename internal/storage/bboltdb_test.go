package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *BBoltStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "nested", "connector.db")
	store, err := NewBBoltStore(dbPath, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	return store
}

func TestBBoltStore_SetGetDelete(t *testing.T) {
	store := setupTestDB(t)

	require.NoError(t, store.Set(CredentialsBucket, "k", []byte("v"), time.Time{}))

	value, found, err := store.Get(CredentialsBucket, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, store.Delete(CredentialsBucket, "k"))
	_, found, err = store.Get(CredentialsBucket, "k")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = store.Get("unknown", "k")
	assert.Error(t, err)
}

func TestBBoltStore_Expiry(t *testing.T) {
	store := setupTestDB(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(SessionsBucket, "live", []byte("1"), now.Add(time.Minute)))
	require.NoError(t, store.Set(SessionsBucket, "dead", []byte("2"), now.Add(-time.Minute)))
	require.NoError(t, store.Set(SessionsBucket, "forever", []byte("3"), time.Time{}))

	_, found, err := store.Get(SessionsBucket, "dead")
	require.NoError(t, err)
	assert.False(t, found)

	keys, err := store.Keys(SessionsBucket)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"live", "forever"}, keys)

	n, err := store.DeleteExpired(SessionsBucket)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	now = now.Add(2 * time.Minute)
	n, err = store.DeleteExpired(SessionsBucket)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, found, err = store.Get(SessionsBucket, "forever")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestBBoltStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "connector.db")

	store, err := NewBBoltStore(dbPath, 0)
	require.NoError(t, err)
	require.NoError(t, store.Set(CredentialsBucket, "k", []byte("v"), time.Time{}))
	require.NoError(t, store.Close())
	// Closing twice only fails on the db handle, never panics.
	assert.NotPanics(t, func() { _ = store.Close() })

	store, err = NewBBoltStore(dbPath, 0)
	require.NoError(t, err)
	defer store.Close()

	value, found, err := store.Get(CredentialsBucket, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), value)
}

func TestSessionAndCredentialStores(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	sessions := NewSessionStore(store)
	require.NoError(t, sessions.SaveSession(ctx, &domain.OAuthSession{
		Key:       "s1",
		State:     "st",
		ExpiresAt: time.Now().Add(time.Minute),
	}))
	got, err := sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "st", got.State)
	require.NoError(t, sessions.DeleteSession(ctx, "s1"))
	_, err = sessions.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	creds := NewCredentialStore(store)
	_, err = creds.GetCredential(ctx, "alice")
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)

	rt := "rt"
	require.NoError(t, creds.SaveCredential(ctx, &domain.CredentialRecord{
		Key:          "alice",
		Provider:     "google",
		Token:        []byte(`{"access_token":"at"}`),
		RefreshToken: &rt,
	}))
	record, err := creds.GetCredential(ctx, "alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"at"}`, string(record.Token))
	require.NotNil(t, record.RefreshToken)
	assert.Equal(t, "rt", *record.RefreshToken)

	keys, err := creds.ListCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, keys)
}
