package processmodels

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew = "processmodels.service.new"
	opInitialize = "processmodels.initialize"
	opDispose    = "processmodels.dispose"
	opCreate     = "processmodels.create"
	opGet        = "processmodels.get"
	opList       = "processmodels.list"

	columnProcessModelID = "processModelId"
	fieldProcessModelID  = "process_model_id"
)

var errMissingProvider = errors.New("connection provider is required")

// ServiceConfig describes the collaborators of the process model repository.
type ServiceConfig struct {
	Connections database.Provider
	Database    database.Config
	IDProvider  database.IDProvider
	Logger      *zap.Logger
}

// Service stores process models: created once, fetched by id, or listed.
type Service struct {
	lease      *database.Lease
	idProvider database.IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration. Call Initialize before use.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Connections == nil {
		return nil, serviceerror.New(opServiceNew, "missing_provider", errMissingProvider)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = database.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		lease:      database.NewLease(cfg.Connections, cfg.Database),
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// Initialize acquires the connection and ensures the ProcessModels table exists.
func (s *Service) Initialize(ctx context.Context) error {
	return s.lease.Open(ctx, func(db *gorm.DB) error {
		if err := db.AutoMigrate(&ProcessModel{}); err != nil {
			s.logError(opInitialize, "migrate_failed", err)
			return serviceerror.New(opInitialize, "migrate_failed", err)
		}
		return nil
	})
}

// Dispose releases the connection.
func (s *Service) Dispose() error {
	if err := s.lease.Close(); err != nil {
		s.logError(opDispose, "release_failed", err)
		return serviceerror.New(opDispose, "release_failed", err)
	}
	return nil
}

// Create stores a new process model. An existing id fails with ErrConflict.
func (s *Service) Create(ctx context.Context, id ID, xml string) (Projection, error) {
	db, err := s.database(opCreate)
	if err != nil {
		return Projection{}, err
	}
	if xml == "" {
		return Projection{}, serviceerror.New(opCreate, "invalid_xml", ErrInvalidXML)
	}

	rowID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String(fieldProcessModelID, id.String()))
		return Projection{}, serviceerror.New(opCreate, "id_generation_failed", err)
	}
	row := ProcessModel{ID: rowID, ProcessModelID: id.String(), XML: xml}

	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: columnProcessModelID}}, DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		s.logError(opCreate, "insert_failed", result.Error, zap.String(fieldProcessModelID, id.String()))
		return Projection{}, serviceerror.New(opCreate, "insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Projection{}, serviceerror.New(opCreate, "conflict",
			fmt.Errorf("%w: process model %q already exists", ErrConflict, id.String()))
	}
	return project(row), nil
}

// Get returns the process model with the given id.
func (s *Service) Get(ctx context.Context, id ID) (Projection, error) {
	db, err := s.database(opGet)
	if err != nil {
		return Projection{}, err
	}
	var row ProcessModel
	err = db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: columnProcessModelID}, Value: id.String()}).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Projection{}, serviceerror.New(opGet, "not_found",
			fmt.Errorf("%w: process model %q", ErrNotFound, id.String()))
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String(fieldProcessModelID, id.String()))
		return Projection{}, serviceerror.New(opGet, "query_failed", err)
	}
	return project(row), nil
}

// List returns every process model ordered by id.
func (s *Service) List(ctx context.Context) ([]Projection, error) {
	db, err := s.database(opList)
	if err != nil {
		return nil, err
	}
	var rows []ProcessModel
	if err := db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: columnProcessModelID}}).
		Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, serviceerror.New(opList, "query_failed", err)
	}
	projections := make([]Projection, 0, len(rows))
	for _, row := range rows {
		projections = append(projections, project(row))
	}
	return projections, nil
}

func (s *Service) database(operation string) (*gorm.DB, error) {
	if s == nil {
		return nil, serviceerror.New(operation, "not_initialized", database.ErrNotInitialized)
	}
	db, err := s.lease.DB()
	if err != nil {
		return nil, serviceerror.New(operation, "not_initialized", err)
	}
	return db, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attrs := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	logger.Error("process models service error", attrs...)
}
