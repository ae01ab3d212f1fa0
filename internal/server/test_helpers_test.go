package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/definitions"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/processmodels"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

type testStores struct {
	definitions   *definitions.Service
	processModels *processmodels.Service
}

func newTestStores(t *testing.T) testStores {
	t.Helper()

	manager := database.NewManager(nil)
	cfg := database.Config{
		Driver: database.DriverSQLite,
		DSN:    fmt.Sprintf("file:bpmnstore_server_%d?mode=memory&cache=shared", time.Now().UnixNano()),
	}
	clock := &steppingClock{current: time.Unix(1700000000, 0).UTC()}

	definitionService, err := definitions.NewService(definitions.ServiceConfig{
		Connections: manager,
		Database:    cfg,
		Clock:       clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct definitions service: %v", err)
	}
	modelService, err := processmodels.NewService(processmodels.ServiceConfig{
		Connections: manager,
		Database:    cfg,
	})
	if err != nil {
		t.Fatalf("failed to construct process model service: %v", err)
	}
	ctx := context.Background()
	if err := definitionService.Initialize(ctx); err != nil {
		t.Fatalf("failed to initialize definitions service: %v", err)
	}
	if err := modelService.Initialize(ctx); err != nil {
		t.Fatalf("failed to initialize process model service: %v", err)
	}
	t.Cleanup(func() {
		_ = definitionService.Dispose()
		_ = modelService.Dispose()
		_ = manager.Close()
	})
	return testStores{definitions: definitionService, processModels: modelService}
}

func newTestHandler(t *testing.T, tokens TokenValidator, realtime *RevisionDispatcher) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stores := newTestStores(t)
	deps := Dependencies{
		Definitions:       stores.definitions,
		ProcessModels:     stores.processModels,
		Realtime:          realtime,
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            zap.NewNop(),
	}
	if tokens != nil {
		deps.Tokens = tokens
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return handler
}
