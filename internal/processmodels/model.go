package processmodels

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidID indicates that a process model identifier is empty or exceeds storage bounds.
	ErrInvalidID = errors.New("processmodels: invalid process model id")
	// ErrInvalidXML indicates that an empty payload was submitted.
	ErrInvalidXML = errors.New("processmodels: invalid xml")
	// ErrNotFound indicates that no process model matched.
	ErrNotFound = errors.New("processmodels: not found")
	// ErrConflict indicates that the identifier is already taken.
	ErrConflict = errors.New("processmodels: conflict")
)

// ID identifies a process model.
type ID string

// NewID validates raw input and returns an ID.
func NewID(rawInput string) (ID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidID, maxIdentifierLength)
	}
	return ID(trimmed), nil
}

// String returns the underlying identifier.
func (id ID) String() string {
	return string(id)
}

// ProcessModel is the stored row. XML uses a text column so payloads are never truncated.
type ProcessModel struct {
	ID             string `gorm:"column:id;primaryKey;size:36;not null"`
	ProcessModelID string `gorm:"column:processModelId;size:190;not null;uniqueIndex:idx_process_models_model_id"`
	XML            string `gorm:"column:xml;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ProcessModel) TableName() string {
	return "ProcessModels"
}

// Projection is the caller-facing view of a process model.
type Projection struct {
	ID  string `json:"id"`
	XML string `json:"xml"`
}

func project(row ProcessModel) Projection {
	return Projection{ID: row.ProcessModelID, XML: row.XML}
}
