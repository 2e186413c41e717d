// Package config provides configuration management for soundsproxy using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"soundsproxy/internal/urlutil"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultUpstreamTimeout = 30 * time.Second
	defaultSegmentTimeout  = 60 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryDelay      = 1 * time.Second
	defaultPrefetchWindow  = 2
	defaultFeedMaxAge      = 15 * time.Minute
	defaultEpisodeMaxAge   = 7 * 24 * time.Hour
)

// DefaultUserAgent is sent on all upstream requests. The BBC media selector
// rejects unrecognised clients, so this mimics the Sounds mobile app.
const DefaultUserAgent = "BBCSounds/2.6.0.14059 (iPhone13,3; iOS 15.3.1) MediaSelectorClient/7.0.4 BBCHTTPClient/9.0.0"

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UpstreamConfig holds BBC Sounds API and segment fetch configuration.
type UpstreamConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SegmentTimeout time.Duration `mapstructure:"segment_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	PrefetchWindow int           `mapstructure:"prefetch_window"`
}

// CacheConfig holds blob store cache configuration. The cache is optional:
// when Bucket is empty every request runs its own pipeline.
type CacheConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// PublicBaseURL, when set, lets the episode handler redirect clients to
	// the stored object instead of streaming it through the proxy.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SOUNDSPROXY_ and use underscores
// for nesting. Example: SOUNDSPROXY_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/soundsproxy")
		v.AddConfigPath("$HOME/.soundsproxy")
	}

	v.SetEnvPrefix("SOUNDSPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0)) // streaming responses must not time out
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("upstream.user_agent", DefaultUserAgent)
	v.SetDefault("upstream.request_timeout", defaultUpstreamTimeout)
	v.SetDefault("upstream.segment_timeout", defaultSegmentTimeout)
	v.SetDefault("upstream.retry_attempts", defaultRetryAttempts)
	v.SetDefault("upstream.retry_delay", defaultRetryDelay)
	v.SetDefault("upstream.prefetch_window", defaultPrefetchWindow)

	v.SetDefault("cache.bucket", "")
	v.SetDefault("cache.endpoint", "s3.amazonaws.com")
	v.SetDefault("cache.region", "")
	v.SetDefault("cache.access_key", "")
	v.SetDefault("cache.secret_key", "")
	v.SetDefault("cache.use_ssl", true)
	v.SetDefault("cache.public_base_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Upstream.RetryAttempts < 0 {
		return fmt.Errorf("upstream.retry_attempts must not be negative")
	}
	if c.Upstream.PrefetchWindow < 1 {
		return fmt.Errorf("upstream.prefetch_window must be at least 1")
	}

	if c.Cache.Bucket != "" && c.Cache.Endpoint == "" {
		return fmt.Errorf("cache.endpoint is required when cache.bucket is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PublicBaseURL returns the externally visible base URL for building episode
// links, falling back to the listen address when base_url is not configured.
func (c *ServerConfig) PublicBaseURL() string {
	if c.BaseURL != "" {
		return urlutil.NormalizeBaseURL(c.BaseURL)
	}
	host := c.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}

// Enabled reports whether the blob store cache is configured.
func (c *CacheConfig) Enabled() bool {
	return c.Bucket != ""
}
