package config

import (
	"strings"
	"testing"
)

func TestValidateDefaultConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadEnums(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "log level",
			mutate: func(c *Config) { c.Logging.Level = "TRACE" },
			want:   "logging.level",
		},
		{
			name:   "log format",
			mutate: func(c *Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
		{
			name:   "failure policy",
			mutate: func(c *Config) { c.Execution.FailurePolicy = "abort" },
			want:   "execution.failure_policy",
		},
		{
			name:   "conflict resolution",
			mutate: func(c *Config) { c.Execution.ConflictResolution = "ask" },
			want:   "execution.conflict_resolution",
		},
		{
			name:   "update mode",
			mutate: func(c *Config) { c.Execution.UpdateMode = "replace" },
			want:   "execution.update_mode",
		},
		{
			name:   "server url",
			mutate: func(c *Config) { c.Server.URL = "not a url"; c.Server.Username = "u"; c.Server.Password = "p" },
			want:   "server.url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Execution.MinConcurrency = 20
	cfg.Execution.MaxConcurrency = 10
	cfg.Execution.InitialConcurrency = 10
	err := Validate(cfg)
	if err == nil {
		t.Fatal("min above max accepted")
	}
	if !strings.Contains(err.Error(), "min_concurrency") {
		t.Errorf("error %q does not mention min_concurrency", err)
	}
}

func TestValidateReportsAllProblemsAtOnce(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "TRACE"
	cfg.Execution.FailurePolicy = "abort"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	msg := err.Error()
	if !strings.Contains(msg, "logging.level") || !strings.Contains(msg, "execution.failure_policy") {
		t.Errorf("error %q should report both violations", msg)
	}
}
