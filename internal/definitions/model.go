package definitions

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxNameLength = 190
	hashLength    = 64

	tableDefinitions = "Definitions"
	columnName       = "name"
	columnHash       = "hash"
	columnCreatedAt  = "createdAt"
	columnUpdatedAt  = "updatedAt"
)

var (
	// ErrInvalidName indicates that a definition name is empty or exceeds storage bounds.
	ErrInvalidName = errors.New("definitions: invalid name")
	// ErrInvalidHash indicates that a fingerprint is not a hex encoded SHA-256 digest.
	ErrInvalidHash = errors.New("definitions: invalid hash")
	// ErrInvalidXML indicates that an empty payload was submitted.
	ErrInvalidXML = errors.New("definitions: invalid xml")
	// ErrNotFound indicates that a read query matched no rows.
	ErrNotFound = errors.New("definitions: not found")
	// ErrConflict indicates that a revision exists and overwriting was disallowed.
	ErrConflict = errors.New("definitions: conflict")
)

// Name identifies a family of revisions. It is not unique per row.
type Name string

// NewName validates raw input and returns a Name.
func NewName(rawInput string) (Name, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return Name(trimmed), nil
}

// String returns the underlying name.
func (name Name) String() string {
	return string(name)
}

// Hash is a content fingerprint of a definition payload.
type Hash string

// NewHash validates raw input and returns a lowercase Hash.
func NewHash(rawInput string) (Hash, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if len(normalized) != hashLength {
		return "", fmt.Errorf("%w: expected %d hex characters", ErrInvalidHash, hashLength)
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", fmt.Errorf("%w: not hex", ErrInvalidHash)
	}
	return Hash(normalized), nil
}

// String returns the hex digest.
func (hash Hash) String() string {
	return string(hash)
}

// Definition is one persisted revision. Rows are append-only; only UpdatedAt is ever rewritten.
type Definition struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	Name      string    `gorm:"column:name;size:190;not null;index:idx_definitions_name_created,priority:1"`
	XML       string    `gorm:"column:xml;type:text;not null"`
	Hash      string    `gorm:"column:hash;size:64;not null;index:idx_definitions_hash"`
	CreatedAt time.Time `gorm:"column:createdAt;not null;index:idx_definitions_name_created,priority:2"`
	UpdatedAt time.Time `gorm:"column:updatedAt;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Definition) TableName() string {
	return tableDefinitions
}

// ProcessDefinition is the caller-facing view of a stored revision.
type ProcessDefinition struct {
	Name      string    `json:"name"`
	XML       string    `json:"xml"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func projectDefinition(row Definition) ProcessDefinition {
	return ProcessDefinition{
		Name:      row.Name,
		XML:       row.XML,
		Hash:      row.Hash,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func projectDefinitions(rows []Definition) []ProcessDefinition {
	projected := make([]ProcessDefinition, 0, len(rows))
	for _, row := range rows {
		projected = append(projected, projectDefinition(row))
	}
	return projected
}
