package sqlgen

import "errors"

var (
	// ErrEmptyFilter is returned when a WHERE clause is compiled from no groups.
	ErrEmptyFilter = errors.New("empty filter")

	// ErrInvalidFilter is returned for malformed groups or conditions.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrFilterRequired is returned when an update or delete has no filter.
	ErrFilterRequired = errors.New("filter required")

	// ErrEmptyValues is returned when an insert or update has no columns.
	ErrEmptyValues = errors.New("no values to write")

	// ErrColumnMismatch is returned when bulk insert rows do not share the
	// first row's column set.
	ErrColumnMismatch = errors.New("bulk insert rows have different columns")

	// ErrInvalidLimit is returned for negative limits or offsets.
	ErrInvalidLimit = errors.New("limit and offset must be non-negative")

	// ErrEmptyTable is returned when no table name is given.
	ErrEmptyTable = errors.New("table name required")

	// ErrUnsupportedValue is returned when a value has no literal form.
	ErrUnsupportedValue = errors.New("value cannot be rendered as a literal")

	// ErrArgCount is returned when placeholders and arguments disagree.
	ErrArgCount = errors.New("placeholder and argument counts differ")

	// ErrUnsupportedStatement is returned when a dialect cannot express a
	// statement.
	ErrUnsupportedStatement = errors.New("statement not supported by dialect")

	// ErrUnknownProvider is returned for database providers without a dialect.
	ErrUnknownProvider = errors.New("unknown database provider")
)
