package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_FillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, int64(DefaultMaxOutputTokens), cfg.MaxOutputTokens)
	assert.Equal(t, DefaultTemperature, cfg.Temperature)
	assert.Equal(t, DefaultLLMTimeout, cfg.LLMTimeout)
	assert.Equal(t, DefaultMaxRounds, cfg.MaxRounds)
	assert.Equal(t, DefaultAWSRegion, cfg.AWSRegion)
	assert.Equal(t, DefaultTable, cfg.Table)
	assert.Equal(t, DefaultScanTimeout, cfg.ScanTimeout)
	assert.Equal(t, DefaultRenderTimeout, cfg.RenderTimeout)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, time.Duration(0), cfg.DatasetCacheTTL)
}

func TestConfig_Validate_RejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "negative rounds", cfg: Config{MaxRounds: -1}},
		{name: "temperature above one", cfg: Config{Temperature: 1.5}},
		{name: "negative cache ttl", cfg: Config{DatasetCacheTTL: -time.Second}},
		{name: "negative render timeout", cfg: Config{RenderTimeout: -time.Second}},
		{name: "negative scan timeout", cfg: Config{ScanTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Load_FileThenEnv(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sensorlake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("table: FromFile\naws_region: eu-west-1\nmax_rounds: 3\nrender_timeout: 2s\nscan_timeout: 5s\n"), 0o600))

	cfg, err := load(path, func(key string) string {
		switch key {
		case EnvTable:
			return "FromEnv"
		case EnvAnthropicAPIKey:
			return "sk-test"
		}
		return ""
	})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxRounds)
	assert.Equal(t, 2*time.Second, cfg.RenderTimeout)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "FromEnv", cfg.Table)
	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestConfig_Load_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), func(string) string { return "" })
	require.Error(t, err)
}

func TestConfig_RequireCredentials(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	err := cfg.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvAnthropicAPIKey)
}
