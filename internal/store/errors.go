package store

import (
	"errors"
	"fmt"
)

// Store error types for categorizing persistence failures.
var (
	// ErrConnectionFailed indicates a failure to reach the backing store.
	ErrConnectionFailed = errors.New("store: connection failed")

	// ErrQueryFailed indicates a statement execution failure.
	ErrQueryFailed = errors.New("store: query failed")

	// ErrNotFound indicates no persisted rule set exists yet.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidData indicates persisted data could not be decoded.
	ErrInvalidData = errors.New("store: invalid data")
)

// StorageError wraps store errors with additional context.
type StorageError struct {
	Op    string // Operation that failed (e.g., "Load", "Save", "Migrate")
	Table string // Table or file involved, if applicable
	Err   error  // Underlying error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("store.%s(%s): %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("store.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// WrapConnectionError wraps an error as a connection error.
func WrapConnectionError(op string, err error) error {
	return &StorageError{
		Op:  op,
		Err: fmt.Errorf("%w: %v", ErrConnectionFailed, err),
	}
}

// WrapQueryError wraps an error as a query error.
func WrapQueryError(op, table string, err error) error {
	return &StorageError{
		Op:    op,
		Table: table,
		Err:   fmt.Errorf("%w: %v", ErrQueryFailed, err),
	}
}

// WrapInvalidData wraps a decode failure.
func WrapInvalidData(op, table string, err error) error {
	return &StorageError{
		Op:    op,
		Table: table,
		Err:   fmt.Errorf("%w: %w", ErrInvalidData, err),
	}
}

// WrapNotFoundError wraps a missing rule set.
func WrapNotFoundError(op, table string) error {
	return &StorageError{
		Op:    op,
		Table: table,
		Err:   ErrNotFound,
	}
}
