package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
)

func memoryConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Driver: DriverSQLite,
		DSN:    fmt.Sprintf("file:bpmnstore_db_%d?mode=memory&cache=shared", time.Now().UnixNano()),
	}
}

func TestManagerSharesHandleByKey(t *testing.T) {
	manager := NewManager(nil)
	t.Cleanup(func() { _ = manager.Close() })
	cfg := memoryConfig(t)

	first, err := manager.Acquire(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	second, err := manager.Acquire(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected reentrant acquire to return the pooled handle")
	}
	if refs := manager.references(cfg); refs != 2 {
		t.Fatalf("expected 2 references, got %d", refs)
	}

	if err := manager.Release(cfg); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := first.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("handle should stay open while referenced: %v", err)
	}
	if err := manager.Release(cfg); err != nil {
		t.Fatalf("final release failed: %v", err)
	}
	if refs := manager.references(cfg); refs != 0 {
		t.Fatalf("expected pool to be dropped, got %d references", refs)
	}
	if err := manager.Release(cfg); err != nil {
		t.Fatalf("releasing an unknown key should be a no-op: %v", err)
	}
}

func TestManagerPropagatesOpenFailure(t *testing.T) {
	manager := NewManager(nil)
	cause := errors.New("connection refused")
	manager.open = func(context.Context, Config) (*gorm.DB, error) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, cause)
	}

	_, err := manager.Acquire(context.Background(), Config{Driver: DriverPostgres, DSN: "host=nowhere"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestOpenValidatesConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "missing-dsn", cfg: Config{Driver: DriverSQLite}, wantErr: ErrMissingDSN},
		{name: "unknown-driver", cfg: Config{Driver: "oracle", DSN: "x"}, wantErr: ErrUnknownDriver},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Open(context.Background(), testCase.cfg)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestParseDriver(t *testing.T) {
	testCases := map[string]Driver{
		"":           DriverSQLite,
		"SQLite":     DriverSQLite,
		"postgres":   DriverPostgres,
		"postgresql": DriverPostgres,
	}
	for input, want := range testCases {
		got, err := ParseDriver(input)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseDriver(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestLeaseOpenAndCloseAreIdempotent(t *testing.T) {
	manager := NewManager(nil)
	t.Cleanup(func() { _ = manager.Close() })
	cfg := memoryConfig(t)
	lease := NewLease(manager, cfg)

	if _, err := lease.DB(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized before open, got %v", err)
	}

	setupCalls := 0
	setup := func(*gorm.DB) error {
		setupCalls++
		return nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := lease.Open(context.Background(), setup); err != nil {
			t.Fatalf("open attempt %d failed: %v", attempt, err)
		}
	}
	if setupCalls != 1 {
		t.Fatalf("expected setup to run once, ran %d times", setupCalls)
	}
	if refs := manager.references(cfg); refs != 1 {
		t.Fatalf("expected a single reference, got %d", refs)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := lease.Close(); err != nil {
			t.Fatalf("close attempt %d failed: %v", attempt, err)
		}
	}
	if refs := manager.references(cfg); refs != 0 {
		t.Fatalf("expected reference to be released, got %d", refs)
	}
	if _, err := lease.DB(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized after close, got %v", err)
	}
}

func TestLeaseReleasesWhenSetupFails(t *testing.T) {
	manager := NewManager(nil)
	t.Cleanup(func() { _ = manager.Close() })
	cfg := memoryConfig(t)
	lease := NewLease(manager, cfg)

	setupErr := errors.New("migrate failed")
	err := lease.Open(context.Background(), func(*gorm.DB) error { return setupErr })
	if !errors.Is(err, setupErr) {
		t.Fatalf("expected setup error, got %v", err)
	}
	if refs := manager.references(cfg); refs != 0 {
		t.Fatalf("expected failed open to release its reference, got %d", refs)
	}
}

func TestLeaseRequiresProvider(t *testing.T) {
	lease := NewLease(nil, Config{Driver: DriverSQLite, DSN: "unused"})
	if err := lease.Open(context.Background(), nil); !errors.Is(err, ErrMissingProvider) {
		t.Fatalf("expected missing provider error, got %v", err)
	}
}
