// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// SQLite error fragments. modernc.org/sqlite reports result codes in the
// message text, so classification matches on it.
const (
	msgBusy       = "SQLITE_BUSY"
	msgLocked     = "database is locked"
	msgUnique     = "UNIQUE constraint failed"
	msgForeignKey = "FOREIGN KEY constraint failed"
)

func errContains(err error, fragment string) bool {
	return err != nil && strings.Contains(err.Error(), fragment)
}

// IsSQLiteConflictError reports a busy or locked database. Both warrant a retry.
func IsSQLiteConflictError(err error) bool {
	return errContains(err, msgBusy) || errContains(err, msgLocked)
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure on
// column, given as "table.column". An empty column matches any unique failure.
func IsUniqueViolation(err error, column string) bool {
	if !errContains(err, msgUnique) {
		return false
	}
	return column == "" || errContains(err, column)
}

// IsForeignKeyViolation reports an insert or update referencing a missing row.
func IsForeignKeyViolation(err error) bool {
	return errContains(err, msgForeignKey)
}
