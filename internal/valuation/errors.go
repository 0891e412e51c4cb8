package valuation

import (
	"errors"
	"fmt"

	"appraiser/internal/database"
)

// Kind classifies errors surfaced to callers such as the HTTP layer.
type Kind string

const (
	KindDatabaseNotFound Kind = "database_not_found"
	KindDatabaseError    Kind = "database_error"
	KindRelationNotFound Kind = "relation_not_found"
	KindTypeNotFound     Kind = "type_not_found"
	KindCalculationError Kind = "calculation_error"
	KindInvalidRatio     Kind = "invalid_ratio"
	KindDataFetchFailed  Kind = "data_fetch_failed"
	KindInvalidParameter Kind = "invalid_parameter"
	KindUnexpectedError  Kind = "unexpected_error"
)

// Error is returned by every engine operation that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err, or KindUnexpectedError for foreign errors.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnexpectedError
}

// storageError classifies a storage failure seen during recomputation.
func storageError(err error, action string) *Error {
	if errors.Is(err, database.ErrDatabaseNotFound) {
		return newError(KindDatabaseNotFound, err, "%s: database is unavailable", action)
	}
	return newError(KindDatabaseError, err, "%s failed", action)
}
