package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/kasuganosora/kadim/server/apperr"
	"gorm.io/gorm"
)

// ErrStaleWrite is returned by UpdateVersioned when the row changed after it was read.
var ErrStaleWrite = errors.New("db: stale write")

// RunTx runs fn inside one transaction. When a versioned write inside fn loses a
// race the whole transaction is rolled back and fn runs again, up to attempts
// times. Business errors from fn are returned unchanged; stale writes that
// survive every attempt and transient driver failures become apperr.Unavailable.
func RunTx(ctx context.Context, gdb *gorm.DB, attempts int, fn func(tx *gorm.DB) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperr.Unavailable("request cancelled", ctxErr)
		}
		err = gdb.WithContext(ctx).Transaction(fn)
		if !errors.Is(err, ErrStaleWrite) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleWrite):
		return apperr.Unavailable("concurrent update, retry", err)
	case apperr.KindOf(err) == apperr.KindInternal && IsTransient(err):
		return apperr.Unavailable("database busy, retry", err)
	}
	return err
}

// UpdateVersioned writes updates to the row id of model's table only while its
// version column still equals version, and bumps the version.
func UpdateVersioned(tx *gorm.DB, model any, id, version int64, updates map[string]any) error {
	cols := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		cols[k] = v
	}
	cols["version"] = version + 1
	res := tx.Model(model).Where("id = ? AND version = ?", id, version).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// IsUniqueViolation detects duplicate-key errors from the supported drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}

// IsTransient reports driver errors worth retrying: lock contention,
// serialization failures, dropped connections and deadlines.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"database is locked",
		"deadlock",
		"lock wait timeout",
		"could not serialize",
		"serialization failure",
		"connection refused",
		"connection reset",
		"bad connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
