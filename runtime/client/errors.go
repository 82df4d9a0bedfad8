package client

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Error types for store operations.
var (
	// ErrUnknownMode is returned for cursor modes outside the closed set.
	ErrUnknownMode = errors.New("unknown cursor mode")

	// ErrUnsupported is returned when the provider cannot run a statement,
	// such as "returning *" on MySQL or an old SQLite.
	ErrUnsupported = errors.New("statement not supported by provider")

	// ErrCursorClosed is returned when a closed cursor is used.
	ErrCursorClosed = errors.New("cursor closed")

	// ErrUniqueConstraint is returned when a unique constraint is violated.
	ErrUniqueConstraint = errors.New("unique constraint violation")

	// ErrForeignKeyConstraint is returned when a foreign key constraint is violated.
	ErrForeignKeyConstraint = errors.New("foreign key constraint violation")

	// ErrNullConstraint is returned when a null constraint is violated.
	ErrNullConstraint = errors.New("null constraint violation")
)

// StatementError represents a statement execution error with context.
type StatementError struct {
	Operation string
	Table     string
	Query     string
	Cause     error
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s on %s: %v", e.Operation, e.Table, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StatementError) Unwrap() error {
	return e.Cause
}

// Is reports whether the driver error is a known constraint violation.
func (e *StatementError) Is(target error) bool {
	switch target {
	case ErrUniqueConstraint, ErrForeignKeyConstraint, ErrNullConstraint:
		return classify(e.Cause) == target
	}
	return false
}

// classify maps driver errors to constraint sentinels.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrUniqueConstraint
		case "23503":
			return ErrForeignKeyConstraint
		case "23502":
			return ErrNullConstraint
		}
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return ErrUniqueConstraint
		case 1451, 1452:
			return ErrForeignKeyConstraint
		case 1048:
			return ErrNullConstraint
		}
		return nil
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ErrUniqueConstraint
		case sqlite3.ErrConstraintForeignKey:
			return ErrForeignKeyConstraint
		case sqlite3.ErrConstraintNotNull:
			return ErrNullConstraint
		}
	}
	return nil
}

// IsUniqueConstraint checks if an error is a unique constraint violation.
func IsUniqueConstraint(err error) bool {
	return errors.Is(err, ErrUniqueConstraint)
}

// IsForeignKeyConstraint checks if an error is a foreign key constraint violation.
func IsForeignKeyConstraint(err error) bool {
	return errors.Is(err, ErrForeignKeyConstraint)
}

// IsNullConstraint checks if an error is a null constraint violation.
func IsNullConstraint(err error) bool {
	return errors.Is(err, ErrNullConstraint)
}
