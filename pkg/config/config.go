package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config captures everything a bamsync run needs outside the CSV itself.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest)
//  2. Environment variables (BAM_*, plus LOG_LEVEL / LOG_FORMAT)
//  3. Configuration file (YAML)
//  4. Defaults (lowest)
type Config struct {
	// Server holds the Address Manager connection settings.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Cache configures the resolver's path cache layers.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Checkpoint configures progress persistence.
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`

	// Execution tunes the executor: concurrency bounds, policies,
	// checkpoint cadence.
	Execution ExecutionConfig `mapstructure:"execution" yaml:"execution"`
}

// ServerConfig holds the Address Manager connection settings.
//
// Environment overrides: BAM_URL, BAM_USERNAME, BAM_PASSWORD,
// BAM_API_VERSION, BAM_VERIFY_SSL, BAM_MAX_CONNECTIONS,
// BAM_MAX_KEEPALIVE. A URL from any source without both username and
// password is rejected at validation time.
type ServerConfig struct {
	// URL is the Address Manager base URL (scheme + host).
	URL string `mapstructure:"url" validate:"omitempty,url" yaml:"url"`

	// Username and Password authenticate the session exchange.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// APIVersion selects the REST API version path segment. Default "v2".
	APIVersion string `mapstructure:"api_version" yaml:"api_version"`

	// VerifySSL controls TLS certificate verification. Default true.
	VerifySSL bool `mapstructure:"verify_ssl" yaml:"verify_ssl"`

	// Timeout is the per-request timeout. Default 30s.
	Timeout time.Duration `mapstructure:"timeout" validate:"omitempty,gt=0" yaml:"timeout"`

	// MaxConnections caps sockets to the server. Default 50.
	MaxConnections int `mapstructure:"max_connections" validate:"omitempty,min=1" yaml:"max_connections"`

	// MaxKeepalive caps idle pooled connections. Default 20.
	MaxKeepalive int `mapstructure:"max_keepalive" validate:"omitempty,min=1" yaml:"max_keepalive"`

	// RetryAttempts bounds transient-error retries. Default 3.
	RetryAttempts int `mapstructure:"retry_attempts" validate:"omitempty,min=1" yaml:"retry_attempts"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the optional Prometheus endpoint. When
// Enabled is false no instruments are registered and recording is free.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint. Default 9090.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CacheConfig configures the resolver's path cache.
type CacheConfig struct {
	// Dir is the disk cache directory. Default .resolver_cache;
	// empty string after explicit override disables the disk layer.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// TTL bounds disk cache entries. Default 1h.
	TTL time.Duration `mapstructure:"ttl" validate:"omitempty,gt=0" yaml:"ttl"`

	// NegativeTTL bounds not-found entries. Default 5m.
	NegativeTTL time.Duration `mapstructure:"negative_ttl" validate:"omitempty,gt=0" yaml:"negative_ttl"`
}

// CheckpointConfig configures progress persistence.
type CheckpointConfig struct {
	// Path is the sqlite database file. Default .checkpoints/bamsync.db.
	Path string `mapstructure:"path" yaml:"path"`

	// ChangelogDir receives exported changelog CSVs. Default .changelogs.
	ChangelogDir string `mapstructure:"changelog_dir" yaml:"changelog_dir"`
}

// ExecutionConfig tunes the executor.
type ExecutionConfig struct {
	// Concurrency bounds for the adaptive throttle.
	// Defaults: initial 10, min 1, max 50.
	InitialConcurrency int `mapstructure:"initial_concurrency" validate:"omitempty,min=1" yaml:"initial_concurrency"`
	MinConcurrency     int `mapstructure:"min_concurrency" validate:"omitempty,min=1" yaml:"min_concurrency"`
	MaxConcurrency     int `mapstructure:"max_concurrency" validate:"omitempty,min=1" yaml:"max_concurrency"`

	// FailurePolicy: fail_fast, fail_group, or continue. Default fail_group.
	FailurePolicy string `mapstructure:"failure_policy" validate:"required,oneof=fail_fast fail_group continue" yaml:"failure_policy"`

	// ConflictResolution: fail, overwrite, merge, or manual. Default fail.
	ConflictResolution string `mapstructure:"conflict_resolution" validate:"required,oneof=fail overwrite merge manual" yaml:"conflict_resolution"`

	// UpdateMode: create_only, upsert, or update_only. Default upsert.
	UpdateMode string `mapstructure:"update_mode" validate:"required,oneof=create_only upsert update_only" yaml:"update_mode"`

	// CheckpointEvery persists progress after this many completed
	// operations. Default 25.
	CheckpointEvery int `mapstructure:"checkpoint_every" validate:"omitempty,min=1" yaml:"checkpoint_every"`

	// CheckpointInterval persists progress at least this often. Default 30s.
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval" validate:"omitempty,gt=0" yaml:"checkpoint_interval"`
}

// Load loads configuration from file, environment, and defaults.
// A missing config file is fine; environment variables and defaults
// still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the configuration as YAML. Permissions are 0600
// because the file may carry the API password.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper wires environment variables, defaults, and the config file
// location.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The documented environment surface uses flat names, not the
	// section-derived ones the replacer would produce.
	_ = v.BindEnv("server.url", "BAM_URL")
	_ = v.BindEnv("server.username", "BAM_USERNAME")
	_ = v.BindEnv("server.password", "BAM_PASSWORD")
	_ = v.BindEnv("server.api_version", "BAM_API_VERSION")
	_ = v.BindEnv("server.verify_ssl", "BAM_VERIFY_SSL")
	_ = v.BindEnv("server.max_connections", "BAM_MAX_CONNECTIONS")
	_ = v.BindEnv("server.max_keepalive", "BAM_MAX_KEEPALIVE")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")

	// Registering defaults also teaches viper the key set, so bound
	// environment variables survive Unmarshal without a config file.
	for key, value := range defaultSettings() {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("bamsync")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if one exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDecodeHooks converts strings to durations so config files can
// write "30s" or "1h".
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, honouring
// XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "bamsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "bamsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "bamsync.yaml")
}
