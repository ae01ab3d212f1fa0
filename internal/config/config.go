package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
	"github.com/spf13/viper"
)

const (
	envPrefix           = "BPMNSTORE"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDriver       = "sqlite"
	defaultDSN          = "bpmnstore.db"
	defaultSlowQueryMs  = 200
	defaultLogLevel     = "info"
	defaultAuthIssuer   = "bpmnstore"
	defaultTokenTTLMins = 30
)

// AppConfig captures runtime configuration for the API server and CLI.
type AppConfig struct {
	HTTPAddress        string
	DatabaseDriver     database.Driver
	DatabaseDSN        string
	DatabaseMaxConns   int
	SlowQueryThreshold time.Duration
	LogLevel           string
	AuthSigningSecret  string
	AuthIssuer         string
	TokenTTL           time.Duration
}

// AuthEnabled reports whether mutating routes require a service token.
func (c AppConfig) AuthEnabled() bool {
	return strings.TrimSpace(c.AuthSigningSecret) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDriver)
	configViper.SetDefault("database.dsn", defaultDSN)
	configViper.SetDefault("database.max_open_conns", 0)
	configViper.SetDefault("database.slow_query_ms", defaultSlowQueryMs)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	driver, err := database.ParseDriver(configViper.GetString("database.driver"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("database.driver: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDriver:     driver,
		DatabaseDSN:        configViper.GetString("database.dsn"),
		DatabaseMaxConns:   configViper.GetInt("database.max_open_conns"),
		SlowQueryThreshold: time.Duration(configViper.GetInt("database.slow_query_ms")) * time.Millisecond,
		LogLevel:           configViper.GetString("log.level"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// DatabaseConfig returns the connection settings shared by both stores.
func (c AppConfig) DatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.DatabaseDriver,
		DSN:          c.DatabaseDSN,
		MaxOpenConns: c.DatabaseMaxConns,
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.DatabaseMaxConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}
	if c.AuthEnabled() && strings.TrimSpace(c.AuthIssuer) == "" {
		return fmt.Errorf("auth.issuer is required when auth.signing_secret is set")
	}
	return nil
}
