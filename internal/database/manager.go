package database

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Provider hands out pooled database handles keyed by configuration.
type Provider interface {
	Acquire(ctx context.Context, cfg Config) (*gorm.DB, error)
	Release(cfg Config) error
}

type pooledHandle struct {
	db   *gorm.DB
	refs int
}

// Manager is a reentrant Provider: every Acquire for the same Config.Key shares one pool,
// and the pool is closed when the last holder releases it.
type Manager struct {
	mu     sync.Mutex
	pools  map[string]*pooledHandle
	open   func(context.Context, Config) (*gorm.DB, error)
	logger *zap.Logger
}

// NewManager constructs an empty connection manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pools:  make(map[string]*pooledHandle),
		open:   Open,
		logger: logger,
	}
}

// Acquire returns the shared handle for cfg, opening it on first use.
func (m *Manager) Acquire(ctx context.Context, cfg Config) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cfg.Key()
	if handle, ok := m.pools[key]; ok {
		handle.refs++
		return handle.db, nil
	}

	db, err := m.open(ctx, cfg)
	if err != nil {
		m.logger.Error("database connection failed",
			zap.String("driver", string(cfg.Driver)),
			zap.Error(err))
		return nil, err
	}
	m.pools[key] = &pooledHandle{db: db, refs: 1}
	m.logger.Info("database connection opened", zap.String("driver", string(cfg.Driver)))
	return db, nil
}

// Release drops one reference to the handle for cfg. Unknown keys are ignored.
func (m *Manager) Release(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cfg.Key()
	handle, ok := m.pools[key]
	if !ok {
		return nil
	}
	handle.refs--
	if handle.refs > 0 {
		return nil
	}
	delete(m.pools, key)
	m.logger.Info("database connection closed", zap.String("driver", string(cfg.Driver)))
	return closeHandle(handle.db)
}

// Close releases every pool regardless of outstanding references.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for key, handle := range m.pools {
		delete(m.pools, key)
		if err := closeHandle(handle.db); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) references(cfg Config) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handle, ok := m.pools[cfg.Key()]; ok {
		return handle.refs
	}
	return 0
}

func closeHandle(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
