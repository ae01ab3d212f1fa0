package definitions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
	"gorm.io/gorm"
)

// steppingClock advances by one second on every reading so createdAt values never collide.
type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Unix(1700000000, 0).UTC()}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	manager := database.NewManager(nil)
	cfg := database.Config{
		Driver: database.DriverSQLite,
		DSN:    fmt.Sprintf("file:bpmnstore_definitions_%d?mode=memory&cache=shared", time.Now().UnixNano()),
	}

	service, err := NewService(ServiceConfig{
		Connections: manager,
		Database:    cfg,
		Clock:       newSteppingClock().Now,
	})
	if err != nil {
		t.Fatalf("failed to construct definitions service: %v", err)
	}
	if err := service.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize definitions service: %v", err)
	}

	db, err := manager.Acquire(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to acquire inspection handle: %v", err)
	}
	t.Cleanup(func() {
		_ = service.Dispose()
		_ = manager.Close()
	})
	return service, db
}

func mustName(t *testing.T, value string) Name {
	t.Helper()
	name, err := NewName(value)
	if err != nil {
		t.Fatalf("unexpected name error: %v", err)
	}
	return name
}

func countRevisions(t *testing.T, db *gorm.DB, name string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&Definition{}).Where("name = ?", name).Count(&count).Error; err != nil {
		t.Fatalf("failed to count revisions: %v", err)
	}
	return count
}
