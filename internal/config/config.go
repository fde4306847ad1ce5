// ABOUTME: Configuration loading and parsing for bot-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bot-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// GatewayConfig holds bot connection and interaction timing configuration
type GatewayConfig struct {
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"-"`
	ResponseTimeout time.Duration `yaml:"-"`
	ResponseTTL     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RateWindowRaw      string `yaml:"rate_window"`
	ResponseTimeoutRaw string `yaml:"response_timeout"`
	ResponseTTLRaw     string `yaml:"response_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults for gateway timing when the config omits them.
const (
	DefaultRateLimit       = 60
	DefaultRateWindow      = 60 * time.Second
	DefaultResponseTimeout = 30 * time.Second
	DefaultResponseTTL     = 5 * time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
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

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in gateway timing values that the file left unset.
func (c *Config) applyDefaults() {
	if c.Gateway.RateLimit == 0 {
		c.Gateway.RateLimit = DefaultRateLimit
	}
	if c.Gateway.RateWindow == 0 {
		c.Gateway.RateWindow = DefaultRateWindow
	}
	if c.Gateway.ResponseTimeout == 0 {
		c.Gateway.ResponseTimeout = DefaultResponseTimeout
	}
	if c.Gateway.ResponseTTL == 0 {
		c.Gateway.ResponseTTL = DefaultResponseTTL
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("gateway.rate_limit must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.RateWindowRaw != "" {
		cfg.Gateway.RateWindow, err = time.ParseDuration(cfg.Gateway.RateWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing rate_window %q: %w", cfg.Gateway.RateWindowRaw, err)
		}
	}

	if cfg.Gateway.ResponseTimeoutRaw != "" {
		cfg.Gateway.ResponseTimeout, err = time.ParseDuration(cfg.Gateway.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", cfg.Gateway.ResponseTimeoutRaw, err)
		}
	}

	if cfg.Gateway.ResponseTTLRaw != "" {
		cfg.Gateway.ResponseTTL, err = time.ParseDuration(cfg.Gateway.ResponseTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing response_ttl %q: %w", cfg.Gateway.ResponseTTLRaw, err)
		}
	}

	return nil
}
