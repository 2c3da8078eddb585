package docbase

import (
	"errors"
	"fmt"

	"github.com/hupe1980/docbase/internal/engine"
	"github.com/hupe1980/docbase/internal/indexstore"
	"github.com/hupe1980/docbase/model"
)

var (
	// ErrClosed is returned when the database has been closed.
	ErrClosed = errors.New("database is closed")

	// ErrInvalidArgument is returned for caller-contract violations
	// such as a blank collection name or a nil document batch.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCollectionNotFound is returned when an operation targets a
	// collection that does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
)

// ErrInvalidName indicates a collection name that is not a valid
// identifier.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidName struct {
	Name  string
	cause error
}

func (e *ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid collection name: %q", e.Name)
}

func (e *ErrInvalidName) Unwrap() error { return e.cause }

// ErrCollectionLimit indicates that creating a collection would
// overflow the directory size budget.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCollectionLimit struct {
	Name  string
	cause error
}

func (e *ErrCollectionLimit) Error() string {
	return fmt.Sprintf("collection directory is full, cannot add %q", e.Name)
}

func (e *ErrCollectionLimit) Unwrap() error { return e.cause }

// ErrCollectionExists indicates a name collision with an existing
// collection.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCollectionExists struct {
	Name  string
	cause error
}

func (e *ErrCollectionExists) Error() string {
	return fmt.Sprintf("collection %q already exists", e.Name)
}

func (e *ErrCollectionExists) Unwrap() error { return e.cause }

// ErrInvalidDataType indicates a document identity of a type that
// cannot serve as a key (null or a reserved sentinel).
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidDataType struct {
	Type  model.Type
	cause error
}

func (e *ErrInvalidDataType) Error() string {
	return fmt.Sprintf("invalid data type for document identity: %s", e.Type)
}

func (e *ErrInvalidDataType) Unwrap() error { return e.cause }

// ErrDuplicateKey indicates a unique index violation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDuplicateKey struct {
	Index string
	Key   model.Value
	cause error
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate key %s in unique index %q", e.Key, e.Index)
}

func (e *ErrDuplicateKey) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, engine.ErrInvalidArgument) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	var invalidName *engine.InvalidNameError
	if errors.As(err, &invalidName) {
		return &ErrInvalidName{Name: invalidName.Name, cause: err}
	}
	var limit *engine.LimitError
	if errors.As(err, &limit) {
		return &ErrCollectionLimit{Name: limit.Name, cause: err}
	}
	var exists *engine.ExistsError
	if errors.As(err, &exists) {
		return &ErrCollectionExists{Name: exists.Name, cause: err}
	}
	var invalidID *engine.InvalidIDError
	if errors.As(err, &invalidID) {
		return &ErrInvalidDataType{Type: invalidID.Type, cause: err}
	}
	var dup *indexstore.DuplicateKeyError
	if errors.As(err, &dup) {
		return &ErrDuplicateKey{Index: dup.Index, Key: dup.Key, cause: err}
	}

	return err
}
