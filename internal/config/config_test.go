package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
provider:
  name: openrouter
  api_key: file-key
evaluation:
  max_attempts: 2
  initial_delay: 100ms
  free_concurrency: 5
storage:
  type: memory
server:
  addr: ":9999"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "file-key" {
		t.Fatalf("APIKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Evaluation.MaxAttempts != 2 || cfg.Evaluation.InitialDelay != 100*time.Millisecond {
		t.Fatalf("evaluation = %+v", cfg.Evaluation)
	}
	if cfg.Evaluation.FreeConcurrency != 5 {
		t.Fatalf("FreeConcurrency = %d", cfg.Evaluation.FreeConcurrency)
	}
	// Unset values fall back to defaults.
	if cfg.Evaluation.PaidConcurrency != 20 {
		t.Fatalf("PaidConcurrency = %d, want default 20", cfg.Evaluation.PaidConcurrency)
	}
	if cfg.Evaluation.FreePacing != time.Second {
		t.Fatalf("FreePacing = %v, want default 1s", cfg.Evaluation.FreePacing)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Type != "memory" {
		t.Fatalf("Storage.Type = %q", cfg.Storage.Type)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "provider: [broken")
	if _, err := Load(path); err == nil {
		t.Fatal("invalid yaml accepted")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Provider.Name != "openrouter" {
		t.Fatalf("Provider.Name = %q", cfg.Provider.Name)
	}
	if cfg.Evaluation.MaxAttempts != 4 || cfg.Evaluation.InitialDelay != 4*time.Second {
		t.Fatalf("evaluation defaults = %+v", cfg.Evaluation)
	}
	if cfg.Evaluation.FreeConcurrency != 3 || cfg.Evaluation.PaidConcurrency != 20 {
		t.Fatalf("concurrency defaults = %+v", cfg.Evaluation)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("SECBENCH_DB_PATH", "/tmp/override.db")

	path := writeConfig(t, `
provider:
  name: openrouter
  api_key: file-key
storage:
  path: data/file.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Fatalf("APIKey = %q, want env override", cfg.Provider.APIKey)
	}
	if cfg.Storage.Path != "/tmp/override.db" {
		t.Fatalf("Storage.Path = %q, want env override", cfg.Storage.Path)
	}
}

func TestEnvOverrideAnthropicProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("OPENROUTER_API_KEY", "openrouter-key")

	path := writeConfig(t, `
provider:
  name: anthropic
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "anthropic-key" {
		t.Fatalf("APIKey = %q, want the anthropic env key", cfg.Provider.APIKey)
	}
}
