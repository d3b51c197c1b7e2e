package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"file":   NewFile(filepath.Join(t.TempDir(), "berth", "servers.toml")),
		"memory": NewMemory(),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Token("https://a.example")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetToken("https://a.example/", "ptr_abc"))
			require.NoError(t, s.SetToken("https://b.example", "jwt"))

			token, ok, err := s.Token("https://a.example")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "ptr_abc", token)

			servers, err := s.Servers()
			require.NoError(t, err)
			assert.Equal(t, []string{"https://a.example", "https://b.example"}, servers)

			require.NoError(t, s.RemoveToken("https://a.example"))
			require.NoError(t, s.RemoveToken("https://never.example"))
			_, ok, err = s.Token("https://a.example")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFile_PermissionsAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	require.NoError(t, NewFile(path).SetToken("https://a.example", "secret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, ok, err := NewFile(path).Token("https://a.example")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secret", token)
}

func TestFile_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	require.NoError(t, os.WriteFile(path, []byte("servers = [[["), 0o600))

	_, _, err := NewFile(path).Token("https://a.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse secrets")
}

func TestStore_SchemelessServerMatchesCanonicalURL(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetToken("portainer.test:9443/", "jwt"))

			for _, server := range []string{"portainer.test:9443", "https://portainer.test:9443", " https://portainer.test:9443/ "} {
				token, ok, err := s.Token(server)
				require.NoError(t, err)
				assert.True(t, ok, server)
				assert.Equal(t, "jwt", token, server)
			}
			_, ok, err := s.Token("http://portainer.test:9443")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.RemoveToken("https://portainer.test:9443"))
			servers, err := s.Servers()
			require.NoError(t, err)
			assert.Empty(t, servers)
		})
	}
}

func TestFile_HandWrittenKeysAreNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	require.NoError(t, os.WriteFile(path, []byte("[servers.'portainer.test:9443/']\ntoken = 'stale'\n"), 0o600))

	f := NewFile(path)
	token, ok, err := f.Token("https://portainer.test:9443")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "stale", token)

	require.NoError(t, f.RemoveToken("portainer.test:9443"))
	servers, err := f.Servers()
	require.NoError(t, err)
	assert.Empty(t, servers)
}
