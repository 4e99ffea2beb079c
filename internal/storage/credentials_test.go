package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialStoreRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewCredentialStore(filepath.Join(dir, "credentials"), filepath.Join(dir, "secret.key"))
	require.NoError(t, err)

	creds := Credentials{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-def",
		Username:     "ada",
		Role:         "student",
	}
	require.NoError(t, store.Save(creds))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, creds, loaded)
}

func TestCredentialsSealedAtRest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "credentials")
	store, err := NewCredentialStore(path, filepath.Join(dir, "secret.key"))
	require.NoError(t, err)

	require.NoError(t, store.Save(Credentials{AccessToken: "super-secret-token"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "super-secret-token")
}

func TestCredentialStoreReopenWithSameKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	credPath := filepath.Join(dir, "credentials")
	keyPath := filepath.Join(dir, "secret.key")

	first, err := NewCredentialStore(credPath, keyPath)
	require.NoError(t, err)
	require.NoError(t, first.Save(Credentials{AccessToken: "tok"}))

	// A second store instance must pick up the same sealing key.
	second, err := NewCredentialStore(credPath, keyPath)
	require.NoError(t, err)
	loaded, err := second.Load()
	require.NoError(t, err)
	require.Equal(t, "tok", loaded.AccessToken)
}

func TestCredentialStoreClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewCredentialStore(filepath.Join(dir, "credentials"), filepath.Join(dir, "secret.key"))
	require.NoError(t, err)

	require.NoError(t, store.Save(Credentials{AccessToken: "tok"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice is not an error")

	_, err = store.Load()
	require.Error(t, err)
}

func TestGetOrCreateSecretKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secret.key")

	key, err := GetOrCreateSecretKey(path)
	require.NoError(t, err)
	require.Len(t, key, 32)

	// Key file permissions are owner-only.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := GetOrCreateSecretKey(path)
	require.NoError(t, err)
	require.Equal(t, key, again)
}

func TestLoadSecretKeyRejectsBadContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	badBase64 := filepath.Join(dir, "bad.key")
	require.NoError(t, os.WriteFile(badBase64, []byte("!!not-base64!!"), 0600))
	_, err := LoadSecretKey(badBase64)
	require.Error(t, err)

	wrongLen := filepath.Join(dir, "short.key")
	require.NoError(t, os.WriteFile(wrongLen, []byte("c2hvcnQ="), 0600))
	_, err = LoadSecretKey(wrongLen)
	require.Error(t, err)
}
