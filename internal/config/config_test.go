package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.DispatchMode != DispatchAsynq || cfg.JobStoreDriver != StoreRedis {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JobTTL() != 0 {
		t.Fatalf("jobs must not expire by default, got %v", cfg.JobTTL())
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yml")
	yaml := "port: \"9090\"\ndispatch_mode: local\njob_store_driver: sqlite\njob_store_dsn: /tmp/jobs.db\nfetch_timeout_seconds: 5\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env must override yaml, got port %s", cfg.Port)
	}
	if cfg.DispatchMode != DispatchLocal || cfg.JobStoreDriver != StoreSQLite || cfg.JobStoreDSN != "/tmp/jobs.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.FetchTimeoutDuration() != 5*time.Second {
		t.Fatalf("unexpected fetch timeout: %v", cfg.FetchTimeoutDuration())
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad dispatch mode":     func(c *Config) { c.DispatchMode = "lambda" },
		"bad store driver":      func(c *Config) { c.JobStoreDriver = "dynamodb" },
		"sqlite without dsn":    func(c *Config) { c.JobStoreDriver = StoreSQLite },
		"missing redis url":     func(c *Config) { c.QueueRedisURL = "" },
		"missing bucket":        func(c *Config) { c.StorageBucket = "" },
		"expiring in release":   func(c *Config) { c.GinMode = "release"; c.JobExpireMinutes = 10 },
		"local without workers": func(c *Config) { c.DispatchMode = DispatchLocal; c.RunWorkers = false },
	}
	for name, mutate := range cases {
		cfg := defaults()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	if err := defaults().Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}

	// asynq なら別プロセスのワーカーに任せられる
	cfg := defaults()
	cfg.RunWorkers = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("asynq without in-process workers must be valid: %v", err)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("RUN_WORKERS", "false")
	if getEnvAsBool("RUN_WORKERS", true) {
		t.Fatal("expected false")
	}
	t.Setenv("RUN_WORKERS", "maybe")
	if !getEnvAsBool("RUN_WORKERS", true) {
		t.Fatal("invalid values must fall back to the default")
	}
}
