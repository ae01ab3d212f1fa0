package definitions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingProvider   = errors.New("connection provider is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew   = "definitions.service.new"
	opInitialize   = "definitions.initialize"
	opDispose      = "definitions.dispose"
	opPersist      = "definitions.persist"
	opGetCurrent   = "definitions.get_current"
	opGetHistory   = "definitions.get_history"
	opGetByHash    = "definitions.get_by_hash"
	opListCurrent  = "definitions.list_current"
	opDeleteByName = "definitions.delete_by_name"

	fieldDefinitionName = "definition_name"
	fieldDefinitionHash = "definition_hash"

	reasonNotInitialized = "not_initialized"
	reasonInvalidXML     = "invalid_xml"
	reasonConflict       = "conflict"
	reasonNotFound       = "not_found"
	reasonQueryFailed    = "query_failed"
	reasonLockFailed     = "lock_failed"
	reasonInsertFailed   = "insert_failed"
	reasonRefreshFailed  = "refresh_failed"
	reasonIDFailed       = "id_generation_failed"
	reasonDeleteFailed   = "delete_failed"
	reasonMigrateFailed  = "migrate_failed"
	reasonReleaseFailed  = "release_failed"
)

// ServiceConfig describes the collaborators of the definition store.
type ServiceConfig struct {
	Connections database.Provider
	Database    database.Config
	Clock       func() time.Time
	IDProvider  database.IDProvider
	Hasher      Hasher
	Logger      *zap.Logger
}

// Service is the versioned, content-addressed definition store. Every call round-trips to the database.
type Service struct {
	lease      *database.Lease
	clock      func() time.Time
	idProvider database.IDProvider
	hasher     Hasher
	logger     *zap.Logger
}

// NewService validates the configuration. Call Initialize before use.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Connections == nil {
		return nil, serviceerror.New(opServiceNew, "missing_provider", errMissingProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = database.NewUUIDProvider()
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = NewSHA256Hasher()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		lease:      database.NewLease(cfg.Connections, cfg.Database),
		clock:      clock,
		idProvider: idProvider,
		hasher:     hasher,
		logger:     logger,
	}, nil
}

// Initialize acquires the connection and ensures the Definitions table exists. Repeated calls are no-ops.
func (s *Service) Initialize(ctx context.Context) error {
	err := s.lease.Open(ctx, func(db *gorm.DB) error {
		if migrateErr := db.AutoMigrate(&Definition{}); migrateErr != nil {
			return serviceerror.New(opInitialize, reasonMigrateFailed, migrateErr)
		}
		return nil
	})
	if err != nil {
		s.logError(opInitialize, "open_failed", err)
		return err
	}
	return nil
}

// Dispose releases the connection. Repeated calls are no-ops.
func (s *Service) Dispose() error {
	if err := s.lease.Close(); err != nil {
		s.logError(opDispose, reasonReleaseFailed, err)
		return serviceerror.New(opDispose, reasonReleaseFailed, err)
	}
	return nil
}

// PersistOutcome describes the revision left current by a persist call.
type PersistOutcome struct {
	Definition ProcessDefinition
	Result     PersistResult
}

// Persist stores xml under name. An unchanged payload refreshes updatedAt on the current revision,
// new content appends a revision, and an existing name with overwriteExisting=false fails with ErrConflict.
// The resolve-decide-act sequence runs in one transaction serialized per name.
func (s *Service) Persist(ctx context.Context, name Name, xml string, overwriteExisting bool) (PersistOutcome, error) {
	db, err := s.database(opPersist)
	if err != nil {
		return PersistOutcome{}, err
	}
	if xml == "" {
		s.logError(opPersist, reasonInvalidXML, ErrInvalidXML, zap.String(fieldDefinitionName, name.String()))
		return PersistOutcome{}, serviceerror.New(opPersist, reasonInvalidXML, ErrInvalidXML)
	}

	incomingHash := s.hasher.Hash(xml)
	var outcome PersistOutcome

	transactionError := db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if lockErr := lockName(transaction, name); lockErr != nil {
			s.logError(opPersist, reasonLockFailed, lockErr, zap.String(fieldDefinitionName, name.String()))
			return serviceerror.New(opPersist, reasonLockFailed, lockErr)
		}

		current, resolveErr := resolveCurrent(transaction, name, true)
		if resolveErr != nil {
			s.logError(opPersist, reasonQueryFailed, resolveErr, zap.String(fieldDefinitionName, name.String()))
			return serviceerror.New(opPersist, reasonQueryFailed, resolveErr)
		}

		now := s.clock().UTC()
		action, result := decideWrite(current, incomingHash, overwriteExisting)
		switch action {
		case writeActionReject:
			return serviceerror.New(opPersist, reasonConflict,
				fmt.Errorf("%w: process definition %q already exists", ErrConflict, name.String()))

		case writeActionRefresh:
			if updateErr := transaction.Model(current).UpdateColumn(columnUpdatedAt, now).Error; updateErr != nil {
				s.logError(opPersist, reasonRefreshFailed, updateErr,
					zap.String(fieldDefinitionName, name.String()),
					zap.String(fieldDefinitionHash, current.Hash))
				return serviceerror.New(opPersist, reasonRefreshFailed, updateErr)
			}
			current.UpdatedAt = now
			outcome = PersistOutcome{Definition: projectDefinition(*current), Result: result}
			return nil

		default:
			rowID, idErr := s.idProvider.NewID()
			if idErr != nil {
				s.logError(opPersist, reasonIDFailed, idErr, zap.String(fieldDefinitionName, name.String()))
				return serviceerror.New(opPersist, reasonIDFailed, idErr)
			}
			revision := Definition{
				ID:        rowID,
				Name:      name.String(),
				XML:       xml,
				Hash:      incomingHash.String(),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if createErr := transaction.Create(&revision).Error; createErr != nil {
				s.logError(opPersist, reasonInsertFailed, createErr,
					zap.String(fieldDefinitionName, name.String()),
					zap.String(fieldDefinitionHash, revision.Hash))
				return serviceerror.New(opPersist, reasonInsertFailed, createErr)
			}
			outcome = PersistOutcome{Definition: projectDefinition(revision), Result: result}
			return nil
		}
	})
	if transactionError != nil {
		return PersistOutcome{}, transactionError
	}

	s.logger.Debug("process definition persisted",
		zap.String(fieldDefinitionName, name.String()),
		zap.String(fieldDefinitionHash, outcome.Definition.Hash),
		zap.String("result", string(outcome.Result)))
	return outcome, nil
}

// GetCurrent returns the revision of name with the greatest createdAt.
func (s *Service) GetCurrent(ctx context.Context, name Name) (ProcessDefinition, error) {
	db, err := s.database(opGetCurrent)
	if err != nil {
		return ProcessDefinition{}, err
	}

	current, err := resolveCurrent(db.WithContext(ctx), name, false)
	if err != nil {
		s.logError(opGetCurrent, reasonQueryFailed, err, zap.String(fieldDefinitionName, name.String()))
		return ProcessDefinition{}, serviceerror.New(opGetCurrent, reasonQueryFailed, err)
	}
	if current == nil {
		return ProcessDefinition{}, serviceerror.New(opGetCurrent, reasonNotFound,
			fmt.Errorf("%w: process definition with name %q", ErrNotFound, name.String()))
	}
	return projectDefinition(*current), nil
}

// GetHistory returns every revision of name, newest first. An unknown name is ErrNotFound, never an empty list.
func (s *Service) GetHistory(ctx context.Context, name Name) ([]ProcessDefinition, error) {
	db, err := s.database(opGetHistory)
	if err != nil {
		return nil, err
	}

	revisions, err := listRevisions(db.WithContext(ctx), name)
	if err != nil {
		s.logError(opGetHistory, reasonQueryFailed, err, zap.String(fieldDefinitionName, name.String()))
		return nil, serviceerror.New(opGetHistory, reasonQueryFailed, err)
	}
	if len(revisions) == 0 {
		return nil, serviceerror.New(opGetHistory, reasonNotFound,
			fmt.Errorf("%w: no history for process definition %q", ErrNotFound, name.String()))
	}
	return projectDefinitions(revisions), nil
}

// GetByHash returns the revision whose fingerprint equals hash.
func (s *Service) GetByHash(ctx context.Context, hash Hash) (ProcessDefinition, error) {
	db, err := s.database(opGetByHash)
	if err != nil {
		return ProcessDefinition{}, err
	}

	match, err := resolveByHash(db.WithContext(ctx), hash)
	if err != nil {
		s.logError(opGetByHash, reasonQueryFailed, err, zap.String(fieldDefinitionHash, hash.String()))
		return ProcessDefinition{}, serviceerror.New(opGetByHash, reasonQueryFailed, err)
	}
	if match == nil {
		return ProcessDefinition{}, serviceerror.New(opGetByHash, reasonNotFound,
			fmt.Errorf("%w: process definition with hash %q", ErrNotFound, hash.String()))
	}
	return projectDefinition(*match), nil
}

// ListCurrent returns the current revision of every distinct name, ordered by name.
func (s *Service) ListCurrent(ctx context.Context) ([]ProcessDefinition, error) {
	db, err := s.database(opListCurrent)
	if err != nil {
		return nil, err
	}

	var current []ProcessDefinition
	transactionError := db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		names, listErr := listNames(transaction)
		if listErr != nil {
			s.logError(opListCurrent, reasonQueryFailed, listErr)
			return serviceerror.New(opListCurrent, reasonQueryFailed, listErr)
		}
		current = make([]ProcessDefinition, 0, len(names))
		for _, name := range names {
			revision, resolveErr := resolveCurrent(transaction, name, false)
			if resolveErr != nil {
				s.logError(opListCurrent, reasonQueryFailed, resolveErr, zap.String(fieldDefinitionName, name.String()))
				return serviceerror.New(opListCurrent, reasonQueryFailed, resolveErr)
			}
			if revision == nil {
				continue
			}
			current = append(current, projectDefinition(*revision))
		}
		return nil
	})
	if transactionError != nil {
		return nil, transactionError
	}
	return current, nil
}

// DeleteByName removes every revision of name. Deleting an unknown name succeeds.
func (s *Service) DeleteByName(ctx context.Context, name Name) error {
	db, err := s.database(opDeleteByName)
	if err != nil {
		return err
	}

	result := db.WithContext(ctx).Where(queryName, name.String()).Delete(&Definition{})
	if result.Error != nil {
		s.logError(opDeleteByName, reasonDeleteFailed, result.Error, zap.String(fieldDefinitionName, name.String()))
		return serviceerror.New(opDeleteByName, reasonDeleteFailed, result.Error)
	}
	s.logger.Info("process definition deleted",
		zap.String(fieldDefinitionName, name.String()),
		zap.Int64("revisions", result.RowsAffected))
	return nil
}

func (s *Service) database(operation string) (*gorm.DB, error) {
	if s == nil {
		return nil, serviceerror.New(operation, reasonNotInitialized, database.ErrNotInitialized)
	}
	db, err := s.lease.DB()
	if err != nil {
		s.logError(operation, reasonNotInitialized, err)
		return nil, serviceerror.New(operation, reasonNotInitialized, err)
	}
	return db, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("definitions service error", attrs...)
}
