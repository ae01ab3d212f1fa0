package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	// DriverSQLite selects the pure-Go SQLite dialect.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres selects the PostgreSQL dialect.
	DriverPostgres Driver = "postgres"
)

var (
	// ErrUnknownDriver indicates that the configured dialect is not supported.
	ErrUnknownDriver = errors.New("database: unknown driver")
	// ErrMissingDSN indicates that no data source name was configured.
	ErrMissingDSN = errors.New("database: dsn is required")
	// ErrUnavailable wraps failures to open or reach the backing database.
	ErrUnavailable = errors.New("database: storage unavailable")
)

// ParseDriver validates raw input and returns a Driver.
func ParseDriver(rawInput string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(rawInput))) {
	case DriverSQLite, "sqlite3", "":
		return DriverSQLite, nil
	case DriverPostgres, "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, rawInput)
	}
}

// Config describes a single logical database connection.
type Config struct {
	Driver       Driver
	DSN          string
	MaxOpenConns int
	Logger       gormlogger.Interface
}

// Key identifies the pooled handle shared by every store using the same database.
func (c Config) Key() string {
	return string(c.Driver) + "|" + c.DSN
}

func (c Config) validate() error {
	if _, err := ParseDriver(string(c.Driver)); err != nil {
		return err
	}
	if strings.TrimSpace(c.DSN) == "" {
		return ErrMissingDSN
	}
	return nil
}

// Open establishes a connection pool for the configured dialect and verifies it is reachable.
func Open(ctx context.Context, cfg Config) (*gorm.DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	driver, _ := ParseDriver(string(cfg.Driver))

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(cfg.DSN)
	}

	gormLog := cfg.Logger
	if gormLog == nil {
		gormLog = gormlogger.Discard
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch {
	case driver == DriverSQLite:
		// single writer; also serializes write transactions per process
		sqlDB.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, driver, err)
	}

	return db, nil
}
