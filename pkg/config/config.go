// Package config holds process-wide settings. Values come from defaults, an
// optional YAML file, then environment variables; CLI flags are applied by
// the caller last.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel           = "claude-3-5-haiku-20241022"
	DefaultMaxOutputTokens = 4096
	DefaultTemperature     = 0.3
	DefaultLLMTimeout      = 60 * time.Second
	DefaultMaxRounds       = 6
	DefaultAWSRegion       = "us-east-2"
	DefaultTable           = "DatosSensorMqtt"
	DefaultScanTimeout     = 30 * time.Second
	DefaultRenderTimeout   = 10 * time.Second
	DefaultListenAddr      = "0.0.0.0:8080"
	DefaultMCPListenAddr   = "0.0.0.0:8090"

	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvAWSRegion       = "AWS_REGION"
	EnvTable           = "SENSORLAKE_TABLE"
	EnvModel           = "SENSORLAKE_MODEL"
)

type Config struct {
	// AnthropicAPIKey is only ever read from the environment.
	AnthropicAPIKey string `yaml:"-"`

	Model           string        `yaml:"model"`
	MaxOutputTokens int64         `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`
	MaxRounds       int           `yaml:"max_rounds"`

	AWSRegion       string        `yaml:"aws_region"`
	Table           string        `yaml:"table"`
	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	DatasetCacheTTL time.Duration `yaml:"dataset_cache_ttl"`

	RenderTimeout time.Duration `yaml:"render_timeout"`

	ListenAddr    string `yaml:"listen_addr"`
	MCPListenAddr string `yaml:"mcp_listen_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// Load builds a Config from an optional YAML file and the environment. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.AnthropicAPIKey = getenv(EnvAnthropicAPIKey)
	if v := getenv(EnvAWSRegion); v != "" {
		c.AWSRegion = v
	}
	if v := getenv(EnvTable); v != "" {
		c.Table = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Model = v
	}
}

func (c *Config) Validate() error {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.MaxOutputTokens < 0 {
		return errors.New("max output tokens must be greater than 0")
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", c.Temperature)
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = DefaultLLMTimeout
	}
	if c.LLMTimeout < 0 {
		return errors.New("llm timeout must be greater than 0")
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxRounds < 0 {
		return errors.New("max rounds must be greater than 0")
	}
	if c.AWSRegion == "" {
		c.AWSRegion = DefaultAWSRegion
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.ScanTimeout < 0 {
		return errors.New("scan timeout must be greater than 0")
	}
	if c.DatasetCacheTTL < 0 {
		return errors.New("dataset cache ttl must not be negative")
	}
	if c.RenderTimeout == 0 {
		c.RenderTimeout = DefaultRenderTimeout
	}
	if c.RenderTimeout < 0 {
		return errors.New("render timeout must be greater than 0")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MCPListenAddr == "" {
		c.MCPListenAddr = DefaultMCPListenAddr
	}
	return nil
}

// RequireCredentials reports whether the model credential is present. It is
// separate from Validate so offline commands like export can run without it.
func (c *Config) RequireCredentials() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("%s is required", EnvAnthropicAPIKey)
	}
	return nil
}
