package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `toml:"output"` // "stdout", "stderr" or a file path
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host       string `toml:"host"`
	Port       string `toml:"port"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	Name       string `toml:"name"`
	TLSMode    bool   `toml:"tls"`
	LogQueries bool   `toml:"log_queries"`
	MaxConns   int32  `toml:"max_conns"`
	MinConns   int32  `toml:"min_conns"`
}

// LMTPServerConfig holds the inbound LMTP server configuration.
type LMTPServerConfig struct {
	Start    bool   `toml:"start"`
	Addr     string `toml:"addr"`
	Hostname string `toml:"hostname"`
	// MaxMessageBytes limits the size of an inbound payload. Zero means
	// the go-smtp default.
	MaxMessageBytes int64 `toml:"max_message_bytes"`
}

// RelayConfig holds the outbound SMTP relay configuration.
type RelayConfig struct {
	Host        string `toml:"host"` // host:port of the smarthost
	UseTLS      bool   `toml:"tls"`
	UseStartTLS bool   `toml:"starttls"`
	TLSVerify   bool   `toml:"tls_verify"`
	Username    string `toml:"username"` // SASL PLAIN, optional
	Password    string `toml:"password"`
}

// LookupCacheConfig holds the directory lookup cache configuration.
// TTLs are duration strings like "5m" or "30s".
type LookupCacheConfig struct {
	Enabled     bool   `toml:"enabled"`
	PositiveTTL string `toml:"positive_ttl"`
	NegativeTTL string `toml:"negative_ttl"`
	MaxSize     int    `toml:"max_size"`
}

// ParsedPositiveTTL returns the positive TTL, falling back to the
// default on an empty or invalid value.
func (c *LookupCacheConfig) ParsedPositiveTTL() time.Duration {
	return parseDuration(c.PositiveTTL, 5*time.Minute)
}

// ParsedNegativeTTL returns the negative TTL, falling back to the
// default on an empty or invalid value.
func (c *LookupCacheConfig) ParsedNegativeTTL() time.Duration {
	return parseDuration(c.NegativeTTL, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// HTTPAPIConfig holds the health/metrics endpoint configuration.
type HTTPAPIConfig struct {
	Start bool   `toml:"start"`
	Addr  string `toml:"addr"`
}

// Config holds all configuration for the application.
type Config struct {
	Logging     LoggingConfig     `toml:"logging"`
	Database    DatabaseConfig    `toml:"database"`
	LookupCache LookupCacheConfig `toml:"lookup_cache"`
	LMTP        LMTPServerConfig  `toml:"lmtp"`
	Relay       RelayConfig       `toml:"relay"`
	HTTPAPI     HTTPAPIConfig     `toml:"http_api"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Name:     "onebody",
			MaxConns: 10,
			MinConns: 2,
		},
		LookupCache: LookupCacheConfig{
			Enabled:     true,
			PositiveTTL: "5m",
			NegativeTTL: "30s",
			MaxSize:     10000,
		},
		LMTP: LMTPServerConfig{
			Start:    true,
			Addr:     ":24",
			Hostname: "localhost",
		},
		Relay: RelayConfig{
			TLSVerify: true,
		},
		HTTPAPI: HTTPAPIConfig{
			Start: false,
			Addr:  ":9090",
		},
	}
}

// Load reads a TOML configuration file into cfg. A missing file is not an
// error; defaults and flags carry the configuration then.
func Load(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse configuration file '%s': %w", path, err)
	}
	return nil
}
