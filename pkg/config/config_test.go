package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bamsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.APIVersion != "v2" {
		t.Errorf("api_version = %q, want v2", cfg.Server.APIVersion)
	}
	if !cfg.Server.VerifySSL {
		t.Error("verify_ssl should default to true")
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Execution.FailurePolicy != "fail_group" {
		t.Errorf("failure_policy = %q, want fail_group", cfg.Execution.FailurePolicy)
	}
	if cfg.Execution.CheckpointInterval != 30*time.Second {
		t.Errorf("checkpoint_interval = %v, want 30s", cfg.Execution.CheckpointInterval)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  url: https://bam.example.com
  username: api
  password: secret
  timeout: 5s
logging:
  level: debug
execution:
  failure_policy: continue
  checkpoint_every: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.URL != "https://bam.example.com" {
		t.Errorf("url = %q", cfg.Server.URL)
	}
	if cfg.Server.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Server.Timeout)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("level = %q, want normalized DEBUG", cfg.Logging.Level)
	}
	if cfg.Execution.CheckpointEvery != 5 {
		t.Errorf("checkpoint_every = %d, want 5", cfg.Execution.CheckpointEvery)
	}
	// Untouched sections keep their defaults.
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("cache ttl = %v, want 1h", cfg.Cache.TTL)
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("BAM_URL", "https://env.example.com")
	t.Setenv("BAM_USERNAME", "envuser")
	t.Setenv("BAM_PASSWORD", "envpass")
	t.Setenv("LOG_LEVEL", "warn")

	path := writeConfig(t, `
server:
  url: https://file.example.com
  username: fileuser
  password: filepass
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.URL != "https://env.example.com" {
		t.Errorf("url = %q, want the environment value", cfg.Server.URL)
	}
	if cfg.Server.Username != "envuser" {
		t.Errorf("username = %q, want envuser", cfg.Server.Username)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("level = %q, want WARN", cfg.Logging.Level)
	}
}

func TestLoadEnvironmentWithoutFile(t *testing.T) {
	t.Setenv("BAM_URL", "https://env.example.com")
	t.Setenv("BAM_USERNAME", "api")
	t.Setenv("BAM_PASSWORD", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.URL != "https://env.example.com" {
		t.Errorf("url = %q, want the environment value", cfg.Server.URL)
	}
}

func TestLoadURLWithoutCredentialsFails(t *testing.T) {
	path := writeConfig(t, `
server:
  url: https://bam.example.com
  username: api
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load accepted a URL without a password")
	}
	if !strings.Contains(err.Error(), "username and password") {
		t.Errorf("error %q does not name the missing credentials", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bamsync.yaml")
	cfg := GetDefaultConfig()
	cfg.Server.URL = "https://bam.example.com"
	cfg.Server.Username = "api"
	cfg.Server.Password = "secret"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if loaded.Server.URL != cfg.Server.URL {
		t.Errorf("url = %q, want %q", loaded.Server.URL, cfg.Server.URL)
	}
}
