// Package config provides a standardized way to load, validate, and access
// application configuration. It supports loading configuration from
// environment variables, files (JSON/YAML), and explicit overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smartpcr/pass-cancel/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	API       APIConfig       `json:"api" yaml:"api"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Events    EventsConfig    `json:"events" yaml:"events"`
}

// ServerConfig holds configuration for the primary delay server
type ServerConfig struct {
	Port           int           `json:"port" yaml:"port"`
	LogLevel       string        `json:"log_level" yaml:"log_level"`
	LogFormat      string        `json:"log_format" yaml:"log_format"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout,omitempty"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout,omitempty"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout,omitempty"`
	IdleTimeout    time.Duration `json:"idle_timeout" yaml:"idle_timeout,omitempty"`
	MaxDelay       int           `json:"max_delay_seconds" yaml:"max_delay_seconds"`
}

// APIConfig holds configuration for the second (router-based) host
type APIConfig struct {
	Port int `json:"port" yaml:"port"`
}

// SecurityConfig holds security related configuration
type SecurityConfig struct {
	RateLimit      int      `json:"rate_limit" yaml:"rate_limit"`
	IPRateLimit    int      `json:"ip_rate_limit" yaml:"ip_rate_limit"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers"`
	// AllowedIPs restricts callers to the listed IPs or CIDR ranges.
	// Empty means no restriction.
	AllowedIPs []string `json:"allowed_ips" yaml:"allowed_ips"`
}

// TelemetryConfig holds OpenTelemetry related configuration
type TelemetryConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	OTLPEndpoint  string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SamplingRatio float64 `json:"sampling_ratio" yaml:"sampling_ratio"`
	Environment   string  `json:"environment" yaml:"environment"`
}

// EventsConfig holds outcome-event publishing configuration
type EventsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	ProjectID string `json:"project_id" yaml:"project_id"`
	TopicID   string `json:"topic_id" yaml:"topic_id"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			LogLevel:       "info",
			LogFormat:      "json",
			RequestTimeout: 120 * time.Second,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   130 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxDelay:       300,
		},
		API: APIConfig{
			Port: 8081,
		},
		Security: SecurityConfig{
			RateLimit:      120, // 120 requests per minute
			IPRateLimit:    60,  // 60 requests per minute per IP
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Content-Type",
				"Accept-Encoding",
				"X-Request-ID",
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			OTLPEndpoint:  "localhost:4317",
			SamplingRatio: 0.1,
			Environment:   "development",
		},
		Events: EventsConfig{
			Enabled: false,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return errors.NewValidationError("Server.Port must be between 1024 and 65535")
	}
	if c.API.Port < 1024 || c.API.Port > 65535 {
		return errors.NewValidationError("API.Port must be between 1024 and 65535")
	}
	if c.Server.Port == c.API.Port {
		return errors.NewValidationError("Server.Port and API.Port must differ")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if _, ok := validLogLevels[strings.ToLower(c.Server.LogLevel)]; !ok {
		return errors.NewValidationError("Server.LogLevel must be one of: debug, info, warn, error")
	}

	if c.Server.MaxDelay <= 0 {
		return errors.NewValidationError("Server.MaxDelay must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.NewValidationError("Server.RequestTimeout must be positive")
	}

	if c.Security.RateLimit < 0 {
		return errors.NewValidationError("Security.RateLimit cannot be negative")
	}
	if c.Security.IPRateLimit < 0 {
		return errors.NewValidationError("Security.IPRateLimit cannot be negative")
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return errors.NewValidationError("Telemetry.OTLPEndpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return errors.NewValidationError("Telemetry.SamplingRatio must be between 0 and 1")
	}

	if c.Events.Enabled {
		if c.Events.ProjectID == "" {
			return errors.NewValidationError("Events.ProjectID is required when events are enabled")
		}
		if c.Events.TopicID == "" {
			return errors.NewValidationError("Events.TopicID is required when events are enabled")
		}
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables. Only fields
// actually present in the environment are set, so the result merges cleanly
// over file-based configuration.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}

	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("API_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.API.Port = port
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Server.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Server.LogFormat = val
	}
	if val := os.Getenv("MAX_DELAY_SECONDS"); val != "" {
		if max, err := strconv.Atoi(val); err == nil && max > 0 {
			cfg.Server.MaxDelay = max
		}
	}
	if val := os.Getenv("REQUEST_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			cfg.Server.RequestTimeout = time.Duration(timeout) * time.Second
		}
	}
	if val := os.Getenv("READ_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			cfg.Server.ReadTimeout = time.Duration(timeout) * time.Second
		}
	}
	if val := os.Getenv("WRITE_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			cfg.Server.WriteTimeout = time.Duration(timeout) * time.Second
		}
	}
	if val := os.Getenv("IDLE_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			cfg.Server.IdleTimeout = time.Duration(timeout) * time.Second
		}
	}

	if val := os.Getenv("RATE_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil && limit >= 0 {
			cfg.Security.RateLimit = limit
		}
	}
	if val := os.Getenv("IP_RATE_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil && limit >= 0 {
			cfg.Security.IPRateLimit = limit
		}
	}
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		cfg.Security.AllowedOrigins = strings.Split(val, ",")
	}
	if val := os.Getenv("ALLOWED_METHODS"); val != "" {
		cfg.Security.AllowedMethods = strings.Split(val, ",")
	}
	if val := os.Getenv("ALLOWED_HEADERS"); val != "" {
		cfg.Security.AllowedHeaders = strings.Split(val, ",")
	}
	if val := os.Getenv("ALLOWED_IPS"); val != "" {
		cfg.Security.AllowedIPs = strings.Split(val, ",")
	}

	if val := os.Getenv("ENABLE_TRACING"); val != "" {
		cfg.Telemetry.Enabled = strings.ToLower(val) == "true" || val == "1"
	}
	if val := os.Getenv("OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("TRACE_SAMPLING_RATIO"); val != "" {
		if ratio, err := strconv.ParseFloat(val, 64); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.Telemetry.SamplingRatio = ratio
		}
	}
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}

	if val := os.Getenv("ENABLE_EVENTS"); val != "" {
		cfg.Events.Enabled = strings.ToLower(val) == "true" || val == "1"
	}
	if val := os.Getenv("PROJECT_ID"); val != "" {
		cfg.Events.ProjectID = val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		cfg.Events.TopicID = val
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a JSON or YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := DefaultConfig()

	// Temporary struct with string durations, so files may say "30s" or "30"
	type tempConfig struct {
		Server struct {
			Port           int    `json:"port" yaml:"port"`
			LogLevel       string `json:"log_level" yaml:"log_level"`
			LogFormat      string `json:"log_format" yaml:"log_format"`
			RequestTimeout string `json:"request_timeout" yaml:"request_timeout"`
			ReadTimeout    string `json:"read_timeout" yaml:"read_timeout"`
			WriteTimeout   string `json:"write_timeout" yaml:"write_timeout"`
			IdleTimeout    string `json:"idle_timeout" yaml:"idle_timeout"`
			MaxDelay       int    `json:"max_delay_seconds" yaml:"max_delay_seconds"`
		} `json:"server" yaml:"server"`
		API struct {
			Port int `json:"port" yaml:"port"`
		} `json:"api" yaml:"api"`
		Security  SecurityConfig  `json:"security" yaml:"security"`
		Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
		Events    EventsConfig    `json:"events" yaml:"events"`
	}

	var tempCfg tempConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &tempCfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse JSON config file")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tempCfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse YAML config file")
		}
	default:
		return nil, errors.NewValidationError("unsupported config file format: " + ext)
	}

	if tempCfg.Server.Port != 0 {
		cfg.Server.Port = tempCfg.Server.Port
	}
	if tempCfg.Server.LogLevel != "" {
		cfg.Server.LogLevel = tempCfg.Server.LogLevel
	}
	if tempCfg.Server.LogFormat != "" {
		cfg.Server.LogFormat = tempCfg.Server.LogFormat
	}
	if tempCfg.Server.MaxDelay != 0 {
		cfg.Server.MaxDelay = tempCfg.Server.MaxDelay
	}
	if d, ok := parseDuration(tempCfg.Server.RequestTimeout); ok {
		cfg.Server.RequestTimeout = d
	}
	if d, ok := parseDuration(tempCfg.Server.ReadTimeout); ok {
		cfg.Server.ReadTimeout = d
	}
	if d, ok := parseDuration(tempCfg.Server.WriteTimeout); ok {
		cfg.Server.WriteTimeout = d
	}
	if d, ok := parseDuration(tempCfg.Server.IdleTimeout); ok {
		cfg.Server.IdleTimeout = d
	}

	if tempCfg.API.Port != 0 {
		cfg.API.Port = tempCfg.API.Port
	}

	if tempCfg.Security.RateLimit != 0 {
		cfg.Security.RateLimit = tempCfg.Security.RateLimit
	}
	if tempCfg.Security.IPRateLimit != 0 {
		cfg.Security.IPRateLimit = tempCfg.Security.IPRateLimit
	}
	if len(tempCfg.Security.AllowedOrigins) > 0 {
		cfg.Security.AllowedOrigins = tempCfg.Security.AllowedOrigins
	}
	if len(tempCfg.Security.AllowedMethods) > 0 {
		cfg.Security.AllowedMethods = tempCfg.Security.AllowedMethods
	}
	if len(tempCfg.Security.AllowedHeaders) > 0 {
		cfg.Security.AllowedHeaders = tempCfg.Security.AllowedHeaders
	}
	if len(tempCfg.Security.AllowedIPs) > 0 {
		cfg.Security.AllowedIPs = tempCfg.Security.AllowedIPs
	}

	if tempCfg.Telemetry.Enabled {
		cfg.Telemetry.Enabled = true
	}
	if tempCfg.Telemetry.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = tempCfg.Telemetry.OTLPEndpoint
	}
	if tempCfg.Telemetry.SamplingRatio != 0 {
		cfg.Telemetry.SamplingRatio = tempCfg.Telemetry.SamplingRatio
	}
	if tempCfg.Telemetry.Environment != "" {
		cfg.Telemetry.Environment = tempCfg.Telemetry.Environment
	}

	if tempCfg.Events.Enabled {
		cfg.Events.Enabled = true
	}
	if tempCfg.Events.ProjectID != "" {
		cfg.Events.ProjectID = tempCfg.Events.ProjectID
	}
	if tempCfg.Events.TopicID != "" {
		cfg.Events.TopicID = tempCfg.Events.TopicID
	}

	return cfg, nil
}

// parseDuration accepts either plain seconds ("30") or a Go duration ("30s")
func parseDuration(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	return 0, false
}

// MergeConfigs merges two configurations, with the second taking precedence
func MergeConfigs(base, override *Config) *Config {
	result := *base

	// Only override non-zero values
	if override == nil {
		return &result
	}

	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Server.LogLevel != "" {
		result.Server.LogLevel = override.Server.LogLevel
	}
	if override.Server.LogFormat != "" {
		result.Server.LogFormat = override.Server.LogFormat
	}
	if override.Server.MaxDelay != 0 {
		result.Server.MaxDelay = override.Server.MaxDelay
	}
	if override.Server.RequestTimeout != 0 {
		result.Server.RequestTimeout = override.Server.RequestTimeout
	}
	if override.Server.ReadTimeout != 0 {
		result.Server.ReadTimeout = override.Server.ReadTimeout
	}
	if override.Server.WriteTimeout != 0 {
		result.Server.WriteTimeout = override.Server.WriteTimeout
	}
	if override.Server.IdleTimeout != 0 {
		result.Server.IdleTimeout = override.Server.IdleTimeout
	}

	if override.API.Port != 0 {
		result.API.Port = override.API.Port
	}

	if override.Security.RateLimit != 0 {
		result.Security.RateLimit = override.Security.RateLimit
	}
	if override.Security.IPRateLimit != 0 {
		result.Security.IPRateLimit = override.Security.IPRateLimit
	}
	if len(override.Security.AllowedOrigins) > 0 {
		result.Security.AllowedOrigins = override.Security.AllowedOrigins
	}
	if len(override.Security.AllowedMethods) > 0 {
		result.Security.AllowedMethods = override.Security.AllowedMethods
	}
	if len(override.Security.AllowedHeaders) > 0 {
		result.Security.AllowedHeaders = override.Security.AllowedHeaders
	}
	if len(override.Security.AllowedIPs) > 0 {
		result.Security.AllowedIPs = override.Security.AllowedIPs
	}

	// We need to explicitly check booleans
	if override.Telemetry.Enabled {
		result.Telemetry.Enabled = true
	}
	if override.Telemetry.OTLPEndpoint != "" {
		result.Telemetry.OTLPEndpoint = override.Telemetry.OTLPEndpoint
	}
	if override.Telemetry.SamplingRatio != 0 {
		result.Telemetry.SamplingRatio = override.Telemetry.SamplingRatio
	}
	if override.Telemetry.Environment != "" {
		result.Telemetry.Environment = override.Telemetry.Environment
	}

	if override.Events.Enabled {
		result.Events.Enabled = true
	}
	if override.Events.ProjectID != "" {
		result.Events.ProjectID = override.Events.ProjectID
	}
	if override.Events.TopicID != "" {
		result.Events.TopicID = override.Events.TopicID
	}

	return &result
}

// Load loads the configuration from multiple sources with the following precedence:
// 1. Override (highest precedence)
// 2. Environment variables
// 3. Config file
// 4. Default values (lowest precedence)
func Load(configFile string, override *Config) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		fileCfg, err := LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = MergeConfigs(cfg, fileCfg)
	}

	envCfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	cfg = MergeConfigs(cfg, envCfg)

	if override != nil {
		cfg = MergeConfigs(cfg, override)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error marshaling config: %v", err)
	}
	return string(bytes)
}
