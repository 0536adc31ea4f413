package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpilot/leadpilot/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "openrouter", cfg.DefaultProvider)
	assert.Equal(t, 3, cfg.MaxRefinements)
	assert.Equal(t, 2, cfg.MaxRetriesPerCombination)
	assert.Equal(t, time.Minute, cfg.CredentialCooldownTTL)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("PORT", "9999")
	t.Setenv("OPENAI_API_KEYS", "sk-1, sk-2 ,,")
	t.Setenv("GROQ_API_KEYS", "gq-1")
	t.Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)

	creds := cfg.EnvCredentials()
	require.Len(t, creds[domain.ProviderOpenAI], 2)
	assert.Equal(t, "sk-1", creds[domain.ProviderOpenAI][0].Secret)
	assert.Equal(t, "sk-2", creds[domain.ProviderOpenAI][1].Secret)
	require.Len(t, creds[domain.ProviderGroq], 1)

	// Test mode shortens the backoff budget.
	maxElapsed, initial, _, _ := cfg.GetAIBackoffConfig()
	assert.Less(t, maxElapsed, 5*time.Second)
	assert.Less(t, initial, time.Second)
}

func TestBaseURL(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.BaseURL(domain.ProviderOpenAI), "api.openai.com")
	assert.Contains(t, cfg.BaseURL(domain.ProviderGroq), "groq.com")
	assert.Contains(t, cfg.BaseURL(domain.ProviderOpenRouter), "openrouter.ai")
	assert.Empty(t, cfg.BaseURL(domain.ProviderStub))
}

func TestLoadCredentialsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  openrouter:
    - secret: sk-or-1
      owner: growth
      metadata:
        tier: free
    - secret: sk-or-2
  groq:
    - secret: ""
`), 0o600))

	creds, err := LoadCredentialsFile(path)
	require.NoError(t, err)
	require.Len(t, creds[domain.ProviderOpenRouter], 2)
	assert.Equal(t, "growth", creds[domain.ProviderOpenRouter][0].OwnerID)
	assert.Equal(t, "free", creds[domain.ProviderOpenRouter][0].Metadata["tier"])
	assert.Empty(t, creds[domain.ProviderGroq], "blank secrets are dropped")
}

func TestLoadCredentialsFileUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  anthropic:\n    - secret: sk-ant\n"), 0o600))
	_, err := LoadCredentialsFile(path)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCredentialsMergesEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  openrouter:\n    - secret: sk-file\n"), 0o600))

	t.Setenv("OPENROUTER_API_KEYS", "sk-env")
	t.Setenv("CREDENTIALS_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)

	creds, err := cfg.Credentials()
	require.NoError(t, err)
	require.Len(t, creds[domain.ProviderOpenRouter], 2)
	assert.Equal(t, "sk-env", creds[domain.ProviderOpenRouter][0].Secret, "env keys come first")
	assert.Equal(t, "sk-file", creds[domain.ProviderOpenRouter][1].Secret)
}

func TestCredentialsMissingFile(t *testing.T) {
	t.Setenv("CREDENTIALS_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	cfg, err := Load()
	require.NoError(t, err)
	_, err = cfg.Credentials()
	require.Error(t, err)
}
