package config

import (
	"strings"
	"time"
)

// defaultSettings is the flat key → default map registered with viper.
// Keys must match the mapstructure tags.
func defaultSettings() map[string]any {
	return map[string]any{
		"server.url":             "",
		"server.username":        "",
		"server.password":        "",
		"server.api_version":     "v2",
		"server.verify_ssl":      true,
		"server.timeout":         "30s",
		"server.max_connections": 50,
		"server.max_keepalive":   20,
		"server.retry_attempts":  3,

		"logging.level":  "INFO",
		"logging.format": "text",
		"logging.output": "stderr",

		"metrics.enabled": false,
		"metrics.port":    9090,

		"cache.dir":          ".resolver_cache",
		"cache.ttl":          "1h",
		"cache.negative_ttl": "5m",

		"checkpoint.path":          ".checkpoints/bamsync.db",
		"checkpoint.changelog_dir": ".changelogs",

		"execution.initial_concurrency": 10,
		"execution.min_concurrency":     1,
		"execution.max_concurrency":     50,
		"execution.failure_policy":      "fail_group",
		"execution.conflict_resolution": "fail",
		"execution.update_mode":         "upsert",
		"execution.checkpoint_every":    25,
		"execution.checkpoint_interval": "30s",
	}
}

// ApplyDefaults fills zero values left after unmarshalling and
// normalizes case-insensitive fields. Values arriving through viper
// already carry the registered defaults; this covers configs built in
// code.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyCacheDefaults(&cfg.Cache)
	applyCheckpointDefaults(&cfg.Checkpoint)
	applyExecutionDefaults(&cfg.Execution)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 50
	}
	if cfg.MaxKeepalive == 0 {
		cfg.MaxKeepalive = 20
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.NegativeTTL == 0 {
		cfg.NegativeTTL = 5 * time.Minute
	}
}

func applyCheckpointDefaults(cfg *CheckpointConfig) {
	if cfg.Path == "" {
		cfg.Path = ".checkpoints/bamsync.db"
	}
	if cfg.ChangelogDir == "" {
		cfg.ChangelogDir = ".changelogs"
	}
}

func applyExecutionDefaults(cfg *ExecutionConfig) {
	if cfg.InitialConcurrency == 0 {
		cfg.InitialConcurrency = 10
	}
	if cfg.MinConcurrency == 0 {
		cfg.MinConcurrency = 1
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 50
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = "fail_group"
	}
	if cfg.ConflictResolution == "" {
		cfg.ConflictResolution = "fail"
	}
	if cfg.UpdateMode == "" {
		cfg.UpdateMode = "upsert"
	}
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 25
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config with every default applied. Useful
// for generating sample files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{VerifySSL: true},
		Cache:  CacheConfig{Dir: ".resolver_cache"},
	}
	ApplyDefaults(cfg)
	return cfg
}
