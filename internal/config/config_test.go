package config

import (
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected address %s", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != database.DriverSQLite || cfg.DatabaseDSN != defaultDSN {
		t.Fatalf("unexpected database settings %s %s", cfg.DatabaseDriver, cfg.DatabaseDSN)
	}
	if cfg.SlowQueryThreshold != 200*time.Millisecond {
		t.Fatalf("unexpected slow query threshold %v", cfg.SlowQueryThreshold)
	}
	if cfg.AuthEnabled() {
		t.Fatalf("auth must be disabled without a signing secret")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("BPMNSTORE_DATABASE_DRIVER", "postgres")
	t.Setenv("BPMNSTORE_DATABASE_DSN", "host=db user=bpmn dbname=bpmn")
	t.Setenv("BPMNSTORE_AUTH_SIGNING_SECRET", "secret")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseDriver != database.DriverPostgres {
		t.Fatalf("expected postgres driver, got %s", cfg.DatabaseDriver)
	}
	if cfg.DatabaseConfig().DSN != "host=db user=bpmn dbname=bpmn" {
		t.Fatalf("unexpected dsn %s", cfg.DatabaseConfig().DSN)
	}
	if !cfg.AuthEnabled() || cfg.AuthIssuer != defaultAuthIssuer {
		t.Fatalf("expected auth enabled with default issuer")
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name      string
		key       string
		value     any
		wantError string
	}{
		{name: "unknown-driver", key: "database.driver", value: "oracle", wantError: "database.driver"},
		{name: "empty-dsn", key: "database.dsn", value: " ", wantError: "database.dsn is required"},
		{name: "empty-address", key: "http.address", value: "", wantError: "http.address is required"},
		{name: "negative-pool", key: "database.max_open_conns", value: -1, wantError: "max_open_conns"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.value)
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.wantError) {
				t.Fatalf("expected error containing %q, got %v", testCase.wantError, err)
			}
		})
	}
}

func TestLoadRequiresIssuerWithSecret(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("auth.issuer", " ")
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected issuer validation error")
	}
}
