package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// findOrCreate returns the id of the row in table matching the match
// columns, inserting insert when no row exists yet. Creation is
// optimistic: when the insert loses a race against a concurrent caller and
// hits a uniqueness constraint, the now-existing row is re-read once and
// returned instead of failing. This is the single retry the whole module
// relies on; every resolver and ensure operation funnels through here.
func findOrCreate(tx *gorm.DB, table string, match map[string]any, insert map[string]any) (uint, error) {
	var row struct{ ID uint }
	err := tx.Table(table).Select("id").Where(match).Take(&row).Error
	if err == nil {
		return row.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	now := time.Now()
	if _, ok := insert["created_at"]; !ok {
		insert["created_at"] = now
	}
	if _, ok := insert["updated_at"]; !ok {
		insert["updated_at"] = now
	}
	if err := tx.Table(table).Create(insert).Error; err != nil {
		if !isUniqueViolation(err) {
			return 0, err
		}
		// Lost the race: a concurrent transaction inserted the same row.
		// Fall through to the re-read.
	}
	if err := tx.Table(table).Select("id").Where(match).Take(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// isUniqueViolation recognizes a uniqueness-constraint failure from either
// driver. TranslateError maps most of them to gorm.ErrDuplicatedKey; the
// string checks cover raw driver errors from sessions opened without it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "SQLSTATE 23505")
}
