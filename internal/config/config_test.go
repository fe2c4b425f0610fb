package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BACKEND_BASE_URL", "https://api.appsaludable.example")
	t.Setenv("IDENTITY_BASE_URL", "https://identity.appsaludable.example")
	t.Setenv("IDENTITY_API_KEY", "test-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.LogEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1", cfg.CallbackHost)
	assert.Equal(t, 0, cfg.CallbackPort)
	assert.Equal(t, "file", cfg.StorageBackend)
	assert.Equal(t, "https://login.microsoftonline.com/common/v2.0", cfg.MicrosoftIssuer)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.appsaludable.example")
	// t.Setenv registers the restore; unsetting afterwards guarantees the
	// variable is absent for this test regardless of the outer environment.
	t.Setenv("IDENTITY_BASE_URL", "")
	os.Unsetenv("IDENTITY_BASE_URL")
	t.Setenv("IDENTITY_API_KEY", "")
	os.Unsetenv("IDENTITY_API_KEY")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "keyring")
	t.Setenv("CALLBACK_PORT", "8123")
	t.Setenv("GOOGLE_CLIENT_ID", "google-app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "keyring", cfg.StorageBackend)
	assert.Equal(t, 8123, cfg.CallbackPort)
	assert.Equal(t, "google-app", cfg.GoogleClientID)
}
