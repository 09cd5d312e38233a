package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	cfg, err := load("", env(map[string]string{"ANTHROPIC_API_KEY": "sk-test"}))
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.Provider.Name)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3*time.Minute, cfg.Dispatcher.HandlerTimeout)
	assert.Equal(t, 5, cfg.Dispatcher.MaxLoopbackDepth)
	assert.Equal(t, 90*24*time.Hour, cfg.Memory.StaleAfter)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	_, err := load("", env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.api_key")
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "travel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/travel
provider:
  name: gemini
  model: gemini-2.5-flash
store:
  backend: postgres
  postgres:
    host: db.internal
    table: trips
llm:
  timeout: 30s
  backoff: [1s, 2s, 4s]
dispatcher:
  max_per_handler: 2
`), 0o600))

	cfg, err := load(path, env(map[string]string{
		"GEMINI_API_KEY":  "g-key",
		"POSTGRES_PORT":   "6543",
		"LLM_MAX_RETRIES": "5",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/travel", cfg.DataDir)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "gemini-2.5-flash", cfg.Provider.Model)
	assert.Equal(t, "g-key", cfg.Provider.APIKey)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "db.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, 6543, cfg.Store.Postgres.Port)
	assert.Equal(t, "trips", cfg.Store.Postgres.Table)
	assert.Equal(t, "postgres", cfg.Store.Postgres.User)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.LLM.Backoff)
	assert.Equal(t, 2, cfg.Dispatcher.MaxPerHandler)
}

func TestLoadEnvSelectsProviderAndStore(t *testing.T) {
	cfg, err := load("", env(map[string]string{
		"TRAVEL_PROVIDER":   "openai",
		"OPENAI_API_KEY":    "o-key",
		"ANTHROPIC_API_KEY": "ignored",
		"TRAVEL_STORE":      "redis",
		"REDIS_ADDR":        "cache:6379",
		"REDIS_DB":          "2",
		"LLM_TIMEOUT":       "90s",
	}))
	require.NoError(t, err)
	assert.Equal(t, "o-key", cfg.Provider.APIKey)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	_, err := load("", env(map[string]string{
		"ANTHROPIC_API_KEY": "k",
		"LLM_TIMEOUT":       "soon",
		"REDIS_DB":          "two",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_TIMEOUT")
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestLoadErrors(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o600))
	_, err = load(path, env(map[string]string{"ANTHROPIC_API_KEY": "k"}))
	assert.Error(t, err)
}

func TestValidateSelectedStoreOnly(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "k"
	cfg.Store.Mongo = MongoConfig{}
	require.NoError(t, cfg.Validate())

	cfg.Store.Backend = StoreMongo
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.mongo.uri")

	cfg.Store.Backend = "sqlite"
	assert.Error(t, cfg.Validate())
}
