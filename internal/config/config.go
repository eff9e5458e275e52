package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
}

type ProviderConfig struct {
	Name    string `yaml:"name,omitempty"` // "openrouter" or "anthropic"
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type EvaluationConfig struct {
	MaxAttempts     int           `yaml:"max_attempts,omitempty"`
	InitialDelay    time.Duration `yaml:"initial_delay,omitempty"`
	FreeConcurrency int           `yaml:"free_concurrency,omitempty"`
	PaidConcurrency int           `yaml:"paid_concurrency,omitempty"`
	FreePacing      time.Duration `yaml:"free_pacing,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Default returns a usable config when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Provider.Name) == "" {
		cfg.Provider.Name = "openrouter"
	}
	if cfg.Evaluation.MaxAttempts <= 0 {
		cfg.Evaluation.MaxAttempts = 4
	}
	if cfg.Evaluation.InitialDelay <= 0 {
		cfg.Evaluation.InitialDelay = 4 * time.Second
	}
	if cfg.Evaluation.FreeConcurrency <= 0 {
		cfg.Evaluation.FreeConcurrency = 3
	}
	if cfg.Evaluation.PaidConcurrency <= 0 {
		cfg.Evaluation.PaidConcurrency = 20
	}
	if cfg.Evaluation.FreePacing <= 0 {
		cfg.Evaluation.FreePacing = time.Second
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Name)) {
	case "anthropic", "claude":
		if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
			cfg.Provider.APIKey = v
		}
	default:
		if v := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); v != "" {
			cfg.Provider.APIKey = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("SECBENCH_DB_PATH")); v != "" {
		cfg.Storage.Path = v
	}
}
