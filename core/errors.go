package core

import (
	"errors"
)

var (
	// ErrRecordNotFound is returned when a lookup by identifier finds no row.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidQuery is returned when a query is malformed or cannot be executed.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrConnectionFailed is returned when the database connection cannot be established or is lost.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrInvalidSQL is returned when a raw SQL statement is empty or malformed.
	ErrInvalidSQL = errors.New("invalid sql")
	// ErrUnknownDialect is returned when no dialect is registered for a driver.
	ErrUnknownDialect = errors.New("unknown dialect")
)
