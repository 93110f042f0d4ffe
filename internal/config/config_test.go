package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"program_id": "BPFLoaderUpgradeab1e11111111111111111111111"}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultRetries, cfg.Retries)
	assert.Equal(t, DefaultRetryDelayMs, cfg.RetryDelayMs)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, DefaultEventBufferSize, cfg.EventBufferSize)
	assert.Equal(t, DefaultLogFile, cfg.LogFile)
}

func TestLoadConfigReadsValues(t *testing.T) {
	path := writeConfig(t, `{
		"program_id": "BPFLoaderUpgradeab1e11111111111111111111111",
		"postgres_url": "postgres://settler:pw@localhost:5432/pools",
		"workers": 8,
		"emitter_allow_list": ["21/4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"],
		"debug_logging": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.DebugLogging)
	assert.Len(t, cfg.EmitterAllowList, 1)
	assert.NotEmpty(t, cfg.PostgresURL)
}

func TestLoadConfigValidation(t *testing.T) {
	// Missing program id.
	path := writeConfig(t, `{}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)

	// Malformed program id.
	path = writeConfig(t, `{"program_id": "not-base58!"}`)
	_, err = LoadConfig(path)
	assert.Error(t, err)

	// Allow-list entries must carry the chain prefix.
	path = writeConfig(t, `{
		"program_id": "BPFLoaderUpgradeab1e11111111111111111111111",
		"emitter_allow_list": ["missing-chain-prefix"]
	}`)
	_, err = LoadConfig(path)
	assert.Error(t, err)

	// Negative worker count.
	path = writeConfig(t, `{
		"program_id": "BPFLoaderUpgradeab1e11111111111111111111111",
		"workers": -1
	}`)
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `{"program_id": "BPFLoaderUpgradeab1e11111111111111111111111"}`)

	t.Setenv("POOLBRIDGE_POSTGRES_URL", "postgres://env-host/pools")
	t.Setenv("POOLBRIDGE_EMITTER_ALLOW_LIST", "21/abc, 2/def")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/pools", cfg.PostgresURL)
	assert.Equal(t, []string{"21/abc", "2/def"}, cfg.EmitterAllowList)
}
