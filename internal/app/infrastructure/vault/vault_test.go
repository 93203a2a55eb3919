package vault

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cheap KDF params keep the suite fast
func newTestVault(t *testing.T, path, pass string) *Vault {
	t.Helper()

	v, err := New(path, []byte(pass))
	require.NoError(t, err)
	v.params = kdfParams{Time: 1, Memory: 1024, Threads: 1}
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.vault")
	v := newTestVault(t, path, "hunter2")

	require.NoError(t, v.Save("secret-token-value"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "secret-token-value"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := v.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-token-value", got)
}

func TestVault_WrongPassphrase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.vault")
	require.NoError(t, newTestVault(t, path, "right").Save("tok"))

	_, err := newTestVault(t, path, "wrong").Load()
	assert.Error(t, err)
}

func TestVault_EmptyAndClear(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "token.vault")
	v := newTestVault(t, path, "pass")

	_, err := v.Load()
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, v.Save("tok"))
	require.NoError(t, v.Clear())
	require.NoError(t, v.Clear())

	_, err = v.Load()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNew_RequiresPassphrase(t *testing.T) {
	t.Parallel()

	_, err := New("x", nil)
	assert.ErrorIs(t, err, ErrNoPassphrase)
}
