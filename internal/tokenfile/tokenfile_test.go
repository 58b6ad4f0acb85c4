package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoad_FileNotFound(t *testing.T) {
	tf, err := Load("/nonexistent/path/token.json")
	assert.Nil(t, tf)
	assert.NoError(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Save(path, &File{
		Token: &oauth2.Token{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			TokenType:    "Bearer",
			Expiry:       expiry,
		},
		Account: "alice@example.com",
	}))

	tf, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, tf)
	assert.Equal(t, "access-123", tf.Token.AccessToken)
	assert.Equal(t, "refresh-456", tf.Token.RefreshToken)
	assert.True(t, tf.Token.Expiry.Equal(expiry))
	assert.Equal(t, "alice@example.com", tf.Account)
	assert.WithinDuration(t, time.Now(), tf.SavedAt, 5*time.Second)
}

func TestSave_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	require.NoError(t, Save(path, &File{Token: &oauth2.Token{AccessToken: "a"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"old"}`), 0o600))

	tf, err := Load(path)
	assert.Nil(t, tf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, &File{Token: &oauth2.Token{AccessToken: "a"}}))

	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Second remove is a no-op.
	assert.NoError(t, Remove(path))
}
