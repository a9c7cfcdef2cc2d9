package catalog

import (
	"errors"
	"fmt"

	"github.com/xianghua-2/MYDB/storage"
)

var (
	ErrEmptyFieldList     = errors.New("catalog: empty field list")
	ErrInvalidFieldType   = errors.New("catalog: invalid field type")
	ErrNoSuchTable        = errors.New("catalog: no such table")
	ErrFieldMismatch      = errors.New("catalog: field mismatch")
	ErrDuplicateTableName = errors.New("catalog: duplicate table name")
	ErrMalformed          = errors.New("catalog: malformed statement")
	ErrCorrupt            = errors.New("catalog: corrupt entry")
)

// ClientInputError is a statement that can not be executed as written; it has no side
// effects and the transaction remains usable.
type ClientInputError struct {
	Err error
}

func (e *ClientInputError) Error() string {
	return e.Err.Error()
}

func (e *ClientInputError) Unwrap() error {
	return e.Err
}

// SchemaConflictError is a create of a table whose name is already visible; the
// transaction remains active.
type SchemaConflictError struct {
	Err error
}

func (e *SchemaConflictError) Error() string {
	return e.Err.Error()
}

func (e *SchemaConflictError) Unwrap() error {
	return e.Err
}

// StorageConflictError is a write-write conflict reported by the store. It is retryable by
// the client; it is never retried here.
type StorageConflictError struct {
	Err error
}

func (e *StorageConflictError) Error() string {
	return e.Err.Error()
}

func (e *StorageConflictError) Unwrap() error {
	return e.Err
}

// FatalIOError means a schema change or a row could not be made or read durably; the
// operation must not be treated as complete.
type FatalIOError struct {
	Err error
}

func (e *FatalIOError) Error() string {
	return e.Err.Error()
}

func (e *FatalIOError) Unwrap() error {
	return e.Err
}

type StmtError struct {
	Op    string
	Table string
	Err   error
}

func (e *StmtError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Table, e.Err)
}

func (e *StmtError) Unwrap() error {
	return e.Err
}

func clientError(err error, format string, args ...interface{}) error {
	return &ClientInputError{Err: fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))}
}

func fatalError(err error) error {
	return &FatalIOError{Err: err}
}

// storageError classifies an error returned by the store.
func storageError(err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return &StorageConflictError{Err: err}
	} else if errors.Is(err, storage.ErrNoTransaction) ||
		errors.Is(err, storage.ErrTransactionDone) {

		return &ClientInputError{Err: err}
	}
	return err
}

func stmtError(op, tbl string, err error) error {
	if err == nil {
		return nil
	}
	return &StmtError{Op: op, Table: tbl, Err: err}
}

// Class names the class of err: client, schema, conflict, fatal, or storage.
func Class(err error) string {
	var cie *ClientInputError
	var sce *SchemaConflictError
	var stce *StorageConflictError
	var fie *FatalIOError

	switch {
	case errors.As(err, &cie):
		return "client"
	case errors.As(err, &sce):
		return "schema"
	case errors.As(err, &stce):
		return "conflict"
	case errors.As(err, &fie):
		return "fatal"
	}
	return "storage"
}

// IsFatal reports whether err is a FatalIOError.
func IsFatal(err error) bool {
	var fie *FatalIOError
	return errors.As(err, &fie)
}
