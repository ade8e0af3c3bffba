// ABOUTME: Configuration loading and parsing for the chat sync client.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Cache     CacheConfig     `yaml:"cache"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig identifies the remote conversation store.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	// CSRFToken is passed through in the anti-forgery header on mutating
	// calls. Typically set via ${CHATSYNC_CSRF_TOKEN}.
	CSRFToken string `yaml:"csrf_token"`
}

// TransportConfig holds timeout and retry settings.
type TransportConfig struct {
	Timeout       time.Duration `yaml:"-"`
	RetryDelay    time.Duration `yaml:"-"`
	RetryAttempts int           `yaml:"retry_attempts"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw    string `yaml:"timeout"`
	RetryDelayRaw string `yaml:"retry_delay"`
}

// SessionConfig holds session identity storage settings.
type SessionConfig struct {
	// StoragePath is where the session id is kept between runs.
	// Empty means in-memory only.
	StoragePath string `yaml:"storage_path"`
}

// CacheConfig bounds the local history cache.
type CacheConfig struct {
	DedupTTL     time.Duration `yaml:"-"`
	DedupMaxSize int           `yaml:"dedup_max_size"`

	DedupTTLRaw string `yaml:"dedup_ttl"`
}

// ArchiveConfig holds the optional offline archive settings.
type ArchiveConfig struct {
	// Path of the archive database. Empty disables archiving.
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	parsed, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url is not a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("server.base_url must be absolute (got %q)", c.Server.BaseURL)
	}

	if c.Transport.RetryAttempts < 0 {
		return fmt.Errorf("transport.retry_attempts must not be negative")
	}
	if c.Cache.DedupMaxSize < 0 {
		return fmt.Errorf("cache.dedup_max_size must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Transport.TimeoutRaw != "" {
		cfg.Transport.Timeout, err = time.ParseDuration(cfg.Transport.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Transport.TimeoutRaw, err)
		}
	}

	if cfg.Transport.RetryDelayRaw != "" {
		cfg.Transport.RetryDelay, err = time.ParseDuration(cfg.Transport.RetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_delay %q: %w", cfg.Transport.RetryDelayRaw, err)
		}
	}

	if cfg.Cache.DedupTTLRaw != "" {
		cfg.Cache.DedupTTL, err = time.ParseDuration(cfg.Cache.DedupTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedup_ttl %q: %w", cfg.Cache.DedupTTLRaw, err)
		}
	}

	return nil
}
