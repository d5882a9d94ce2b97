package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrips(t *testing.T) {
	e, err := New("", "test-user")
	require.NoError(t, err)

	plaintext := []byte(`{"hello":"world"}`)
	sealed, err := e.seal(plaintext)
	require.NoError(t, err)

	opened, err := e.open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealedWireFormatHasNonceAndTag(t *testing.T) {
	e, err := New("", "test-user")
	require.NoError(t, err)

	sealed, err := e.seal([]byte("x"))
	require.NoError(t, err)
	// nonce(12) || ciphertext(len(plaintext)) || tag(16)
	assert.Equal(t, 12+1+16, len(sealed))
}

func TestKeyDerivationIsDeterministicForSameInputs(t *testing.T) {
	a, err := New("", "alice")
	require.NoError(t, err)
	b, err := New("", "alice")
	require.NoError(t, err)
	assert.Equal(t, a.key, b.key)
}

func TestKeyDerivationDiffersByUser(t *testing.T) {
	a, err := New("", "alice")
	require.NoError(t, err)
	b, err := New("", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, a.key, b.key)
}

func TestStartWritesFourFilesWithOwnerOnlyMode(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir, "test-user")
	require.NoError(t, err)

	err = e.Start("http://127.0.0.1:8765", map[string][]byte{
		FileMain:   []byte(`{}`),
		FileAgents: []byte(`{}`),
		FileRules:  []byte(`{}`),
		FileHooks:  []byte(`{}`),
	})
	require.NoError(t, err)
	t.Cleanup(e.Stop)

	for _, name := range []string{FileMain, FileAgents, FileRules, FileHooks} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
	assert.Equal(t, "1", os.Getenv(EnvEnabled))
	assert.Equal(t, dir, os.Getenv(EnvSettingsDir))
	assert.Equal(t, "http://127.0.0.1:8765", os.Getenv(EnvAPIURL))
}

func TestStopUnlinksFiles(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir, "test-user")
	require.NoError(t, err)
	require.NoError(t, e.Start("http://127.0.0.1:8765", map[string][]byte{
		FileMain: []byte(`{}`),
	}))

	e.Stop()

	_, err = os.Stat(filepath.Join(dir, FileMain))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, os.Getenv(EnvEnabled))
}
