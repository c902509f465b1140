package core_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestLoadConfigFromEnvDefaultsToSQLite(t *testing.T) {
	for _, k := range []string{"STORAGE_PROVIDER", "EMBEDDING_PROVIDER", "SQLITE_PATH"} {
		os.Unsetenv(k)
	}

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Provider)
	assert.Equal(t, "noop", cfg.Embedding.Provider)
	assert.Equal(t, "./mnemo.db", cfg.Storage.Config["db_path"])
}

func TestLoadConfigFromEnvPostgres(t *testing.T) {
	os.Setenv("STORAGE_PROVIDER", "postgres")
	os.Setenv("POSTGRES_HOST", "db.internal")
	os.Setenv("POSTGRES_PORT", "6543")
	defer func() {
		os.Unsetenv("STORAGE_PROVIDER")
		os.Unsetenv("POSTGRES_HOST")
		os.Unsetenv("POSTGRES_PORT")
	}()

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Provider)
	assert.Equal(t, "db.internal", cfg.Storage.Config["host"])
	assert.Equal(t, 6543, cfg.Storage.Config["port"])
}

func TestLoadConfigFromEnvCipher(t *testing.T) {
	os.Setenv("CIPHER_ENABLED", "true")
	os.Setenv("CIPHER_KEY_HEX", "deadbeef")
	defer func() {
		os.Unsetenv("CIPHER_ENABLED")
		os.Unsetenv("CIPHER_KEY_HEX")
	}()

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg.Cipher)
	assert.True(t, cfg.Cipher.Enabled)
	assert.Equal(t, "deadbeef", cfg.Cipher.KeyHex)
}

func TestConfigValidateRequiresStorageProvider(t *testing.T) {
	cfg := &core.Config{Embedding: core.EmbeddingConfig{Provider: "noop"}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfigValidateRequiresEmbeddingProvider(t *testing.T) {
	cfg := &core.Config{Storage: core.StorageConfig{Provider: "sqlite"}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfigValidateDefaultsDelegationDepth(t *testing.T) {
	cfg := &core.Config{
		Storage:   core.StorageConfig{Provider: "sqlite"},
		Embedding: core.EmbeddingConfig{Provider: "noop"},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Auth.MaxDelegationDepth)
}
