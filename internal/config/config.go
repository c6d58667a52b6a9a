// Package config provides configuration loading and validation for the API
// server. It uses koanf to merge environment variables with optional file
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`

	// Ledger
	LedgerRPCURL         string `koanf:"ledger_rpc_url"`
	LedgerStreamURL      string `koanf:"ledger_stream_url"`
	LedgerCallTimeoutMS  int    `koanf:"ledger_call_timeout_ms"`
	LedgerProbeTTLMS     int    `koanf:"ledger_probe_ttl_ms"`
	VotingPeriodHours    int    `koanf:"voting_period_hours"`

	// Content store (S3-compatible)
	ContentBucketName       string `koanf:"content_bucket_name"`
	ContentAccessKeyID      string `koanf:"content_access_key_id"`
	ContentSecretAccessKey  string `koanf:"content_secret_access_key"`
	ContentEndpoint         string `koanf:"content_endpoint"`
	ContentURLExpiryMinutes int    `koanf:"content_url_expiry_minutes"`

	// Tracing
	OTLPEndpoint string `koanf:"otlp_endpoint"` // empty disables trace export
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL            = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret              = errors.New("JWT_SECRET is required")
	ErrMissingLedgerRPCURL           = errors.New("LEDGER_RPC_URL is required")
	ErrMissingLedgerStreamURL        = errors.New("LEDGER_STREAM_URL is required")
	ErrMissingContentBucketName      = errors.New("CONTENT_BUCKET_NAME is required")
	ErrMissingContentAccessKeyID     = errors.New("CONTENT_ACCESS_KEY_ID is required")
	ErrMissingContentSecretAccessKey = errors.New("CONTENT_SECRET_ACCESS_KEY is required")
	ErrMissingContentEndpoint        = errors.New("CONTENT_ENDPOINT is required")
	ErrInvalidInteger                = errors.New("value must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultLedgerCallTimeoutMS     = 3000
	DefaultLedgerProbeTTLMS        = 5000
	DefaultVotingPeriodHours       = 72
	DefaultContentURLExpiryMinutes = 15
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// YAML file first, lower precedence
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefaultMulti([]string{"GENCONSENT_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	callTimeout, err := getEnvIntOrDefault("LEDGER_CALL_TIMEOUT_MS", k.Int("ledger_call_timeout_ms"), DefaultLedgerCallTimeoutMS)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	probeTTL, err := getEnvIntOrDefault("LEDGER_PROBE_TTL_MS", k.Int("ledger_probe_ttl_ms"), DefaultLedgerProbeTTLMS)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	votingPeriod, err := getEnvIntOrDefault("VOTING_PERIOD_HOURS", k.Int("voting_period_hours"), DefaultVotingPeriodHours)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	urlExpiry, err := getEnvIntOrDefault("CONTENT_URL_EXPIRY_MINUTES", k.Int("content_url_expiry_minutes"), DefaultContentURLExpiryMinutes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:                    port,
		Env:                     getEnvOrDefaultMulti([]string{"GENCONSENT_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:             getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:               getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		LedgerRPCURL:            getEnvOrKoanf("LEDGER_RPC_URL", k, "ledger_rpc_url"),
		LedgerStreamURL:         getEnvOrKoanf("LEDGER_STREAM_URL", k, "ledger_stream_url"),
		LedgerCallTimeoutMS:     callTimeout,
		LedgerProbeTTLMS:        probeTTL,
		VotingPeriodHours:       votingPeriod,
		ContentBucketName:       getEnvOrKoanf("CONTENT_BUCKET_NAME", k, "content_bucket_name"),
		ContentAccessKeyID:      getEnvOrKoanf("CONTENT_ACCESS_KEY_ID", k, "content_access_key_id"),
		ContentSecretAccessKey:  getEnvOrKoanf("CONTENT_SECRET_ACCESS_KEY", k, "content_secret_access_key"),
		ContentEndpoint:         getEnvOrKoanf("CONTENT_ENDPOINT", k, "content_endpoint"),
		ContentURLExpiryMinutes: urlExpiry,
		OTLPEndpoint:            getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)
	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise
// the koanf value, or default. Returns an error if the environment variable is
// set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.LedgerRPCURL == "" {
		errs = append(errs, ErrMissingLedgerRPCURL)
	}
	if c.LedgerStreamURL == "" {
		errs = append(errs, ErrMissingLedgerStreamURL)
	}
	if c.ContentBucketName == "" {
		errs = append(errs, ErrMissingContentBucketName)
	}
	if c.ContentAccessKeyID == "" {
		errs = append(errs, ErrMissingContentAccessKeyID)
	}
	if c.ContentSecretAccessKey == "" {
		errs = append(errs, ErrMissingContentSecretAccessKey)
	}
	if c.ContentEndpoint == "" {
		errs = append(errs, ErrMissingContentEndpoint)
	}
	return errs
}

// IsDevelopment returns true when running in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
