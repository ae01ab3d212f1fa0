package database

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"
)

var (
	// ErrNotInitialized indicates that a store was used before Initialize or after Dispose.
	ErrNotInitialized = errors.New("database: store not initialized")
	// ErrMissingProvider indicates that no connection provider was supplied.
	ErrMissingProvider = errors.New("database: connection provider is required")
)

// Lease owns one store's claim on a pooled handle. Open and Close are idempotent.
type Lease struct {
	provider Provider
	config   Config

	mu sync.RWMutex
	db *gorm.DB
}

// NewLease binds a provider and configuration without connecting.
func NewLease(provider Provider, cfg Config) *Lease {
	return &Lease{provider: provider, config: cfg}
}

// Open acquires the handle and runs setup once. Calling Open on an open lease is a no-op.
func (l *Lease) Open(ctx context.Context, setup func(*gorm.DB) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		return nil
	}
	if l.provider == nil {
		return ErrMissingProvider
	}

	db, err := l.provider.Acquire(ctx, l.config)
	if err != nil {
		return err
	}
	if setup != nil {
		if err := setup(db.WithContext(ctx)); err != nil {
			_ = l.provider.Release(l.config)
			return err
		}
	}
	l.db = db
	return nil
}

// Close returns the handle to the provider. Closing a closed lease is a no-op.
func (l *Lease) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	l.db = nil
	return l.provider.Release(l.config)
}

// DB returns the live handle or ErrNotInitialized.
func (l *Lease) DB() (*gorm.DB, error) {
	if l == nil {
		return nil, ErrNotInitialized
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return nil, ErrNotInitialized
	}
	return l.db, nil
}
