// Package repository holds the MySQL stores and the sentinel errors they
// share. Handlers and services match these with errors.Is.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrEmailExists and ErrUsernameExists report a unique index violation
	// on the users table.
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")

	// ErrForbidden is returned when the caller acts on a resource they do
	// not own. Handlers translate it into an HTTP 403 response.
	ErrForbidden = errors.New("forbidden")
)

const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a unique violation and which index
// it hit, as named in the server message.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	return strings.ToLower(me.Message), true
}
