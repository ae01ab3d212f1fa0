package processmodels

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	manager := database.NewManager(nil)
	service, err := NewService(ServiceConfig{
		Connections: manager,
		Database: database.Config{
			Driver: database.DriverSQLite,
			DSN:    fmt.Sprintf("file:bpmnstore_models_%d?mode=memory&cache=shared", time.Now().UnixNano()),
		},
	})
	if err != nil {
		t.Fatalf("failed to construct process model service: %v", err)
	}
	if err := service.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize process model service: %v", err)
	}
	t.Cleanup(func() {
		_ = service.Dispose()
		_ = manager.Close()
	})
	return service
}

func mustID(t *testing.T, value string) ID {
	t.Helper()
	id, err := NewID(value)
	if err != nil {
		t.Fatalf("unexpected id error: %v", err)
	}
	return id
}

func TestServiceCreateGetList(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"shipping", "billing"} {
		if _, err := service.Create(ctx, mustID(t, id), "<bpmn id=\""+id+"\"/>"); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}

	model, err := service.Get(ctx, mustID(t, "billing"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if model.ID != "billing" || model.XML != `<bpmn id="billing"/>` {
		t.Fatalf("unexpected model %#v", model)
	}

	models, err := service.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(models) != 2 || models[0].ID != "billing" || models[1].ID != "shipping" {
		t.Fatalf("unexpected listing %#v", models)
	}
}

func TestServiceCreateRejectsDuplicateID(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Create(ctx, mustID(t, "shipping"), "<bpmn/>"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := service.Create(ctx, mustID(t, "shipping"), "<bpmn version=\"2\"/>")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	model, err := service.Get(ctx, mustID(t, "shipping"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if model.XML != "<bpmn/>" {
		t.Fatalf("duplicate create must not overwrite, got %s", model.XML)
	}
}

func TestServiceGetUnknownID(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Get(context.Background(), mustID(t, "missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceRequiresInitialize(t *testing.T) {
	service, err := NewService(ServiceConfig{Connections: database.NewManager(nil)})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	if _, err := service.List(context.Background()); !errors.Is(err, database.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestNewIDValidation(t *testing.T) {
	if _, err := NewID("  "); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected invalid id error, got %v", err)
	}
	id, err := NewID(" shipping ")
	if err != nil || id != "shipping" {
		t.Fatalf("expected trimmed id, got %q (%v)", id, err)
	}
}
