package definitions

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const queryName = columnName + " = ?"

var orderCreatedAtDesc = clause.OrderByColumn{
	Column: clause.Column{Name: columnCreatedAt},
	Desc:   true,
}

// resolveCurrent returns the revision with the greatest createdAt for name, or nil when none exists.
// Rows with equal timestamps may be returned in any order.
func resolveCurrent(tx *gorm.DB, name Name, forUpdate bool) (*Definition, error) {
	query := tx.Where(queryName, name.String()).Order(orderCreatedAtDesc)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var current Definition
	err := query.Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &current, nil
}

// resolveByHash returns a revision whose fingerprint equals hash, or nil. When the same
// content was stored more than once the newest row wins.
func resolveByHash(tx *gorm.DB, hash Hash) (*Definition, error) {
	var match Definition
	err := tx.Where(clause.Eq{Column: clause.Column{Name: columnHash}, Value: hash.String()}).
		Order(orderCreatedAtDesc).
		Take(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func listRevisions(tx *gorm.DB, name Name) ([]Definition, error) {
	var revisions []Definition
	if err := tx.Where(queryName, name.String()).
		Order(orderCreatedAtDesc).
		Find(&revisions).Error; err != nil {
		return nil, err
	}
	return revisions, nil
}

func listNames(tx *gorm.DB) ([]Name, error) {
	var rawNames []string
	if err := tx.Model(&Definition{}).
		Distinct(columnName).
		Order(columnName).
		Pluck(columnName, &rawNames).Error; err != nil {
		return nil, err
	}
	names := make([]Name, 0, len(rawNames))
	for _, rawName := range rawNames {
		names = append(names, Name(rawName))
	}
	return names, nil
}

// lockName serializes writers for one name. SQLite pools hold a single connection, so
// only PostgreSQL needs an explicit transaction-scoped advisory lock.
func lockName(tx *gorm.DB, name Name) error {
	if tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", name.String()).Error
}
