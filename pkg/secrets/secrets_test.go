package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "https://studio.pixieset.com/wedding", "https://studio.pixieset.com/wedding"},
		{"trailing slash", "https://studio.pixieset.com/wedding/", "https://studio.pixieset.com/wedding"},
		{"host case", "HTTPS://Studio.Pixieset.com/wedding/", "https://studio.pixieset.com/wedding"},
		{"query and fragment", "https://studio.pixieset.com/wedding/?pid=3#top", "https://studio.pixieset.com/wedding"},
		{"whitespace", "  https://studio.pixieset.com/wedding  ", "https://studio.pixieset.com/wedding"},
		{"not a url", "wedding/", "wedding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Key(tt.input))
		})
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "h*****2", Mask("hunter2"))
}

func TestManagerRoundTrip(t *testing.T) {
	manager, store := NewMockManager()

	require.NoError(t, manager.Store("https://studio.pixieset.com/wedding/", "hunter2"))
	assert.Equal(t, 1, store.Count())

	password, ok := manager.Password("https://STUDIO.pixieset.com/wedding")
	assert.True(t, ok)
	assert.Equal(t, "hunter2", password)

	creds, err := manager.List()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "https://studio.pixieset.com/wedding", creds[0].Gallery)

	require.NoError(t, manager.Delete("https://studio.pixieset.com/wedding"))
	_, ok = manager.Password("https://studio.pixieset.com/wedding")
	assert.False(t, ok)

	err = manager.Delete("https://studio.pixieset.com/wedding")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRejectsEmpty(t *testing.T) {
	manager, _ := NewMockManager()
	assert.ErrorIs(t, manager.Store("", "pw"), ErrInvalid)
	assert.ErrorIs(t, manager.Store("https://studio.pixieset.com/g", ""), ErrInvalid)
}

func TestManagerFallsThroughStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	broken.RetrieveError = errors.New("keychain locked")
	working := NewMockStore()

	manager := NewManagerWithStores(broken, working)
	require.NoError(t, manager.Store("https://studio.pixieset.com/g", "pw"))
	assert.Equal(t, 0, broken.Count())
	assert.Equal(t, 1, working.Count())

	password, ok := manager.Password("https://studio.pixieset.com/g")
	assert.True(t, ok)
	assert.Equal(t, "pw", password)
}

func TestManagerStoreAllFail(t *testing.T) {
	manager := NewManagerWithStores(NewEnvironmentStore())
	err := manager.Store("https://studio.pixieset.com/g", "pw")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestEnvironmentStore(t *testing.T) {
	store := &EnvironmentStore{lookup: func(key string) string {
		if key == PasswordEnv {
			return "from-env"
		}
		return ""
	}}

	cred, err := store.Retrieve("https://studio.pixieset.com/any")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cred.Password)

	empty := &EnvironmentStore{lookup: func(string) string { return "" }}
	_, err = empty.Retrieve("https://studio.pixieset.com/any")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Store(&Credential{Gallery: "g", Password: "p"}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("g"), ErrStoreUnavailable)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "passwords.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = store.Retrieve("https://studio.pixieset.com/a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Store(&Credential{Gallery: "https://studio.pixieset.com/a", Password: "alpha"}))
	require.NoError(t, store.Store(&Credential{Gallery: "https://studio.pixieset.com/b", Password: "bravo"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "alpha")

	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)

	// a second instance reuses the stored passphrase
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	cred, err := reopened.Retrieve("https://studio.pixieset.com/b")
	require.NoError(t, err)
	assert.Equal(t, "bravo", cred.Password)

	creds, err := reopened.List()
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	require.NoError(t, reopened.Delete("https://studio.pixieset.com/a"))
	require.NoError(t, reopened.Delete("https://studio.pixieset.com/b"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, reopened.Delete("https://studio.pixieset.com/b"), ErrNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "passwords.enc")

	t.Setenv(PassphraseEnv, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Gallery: "g", Password: "p"}))

	t.Setenv(PassphraseEnv, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("g")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
