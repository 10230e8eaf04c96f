// Package common defines shared constants and sentinel errors used across
// client and fake-backend layers of revsearch. Callers should use errors.Is
// to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Storage errors. StorageError wraps ErrStorage together with one of the
	// kinds below.
	ErrStorage         = errors.New("storage error")
	ErrArtifactMissing = errors.New("artifact missing")
	ErrWriteFailed     = errors.New("write failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// StorageError reports a failed artifact or index operation. It matches
// ErrStorage, its Kind and the underlying cause with errors.Is.
type StorageError struct {
	Kind error
	Key  string
	Err  error
}

func NewStorageError(kind error, key string, err error) *StorageError {
	return &StorageError{Kind: kind, Key: key, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage error (%v): %s", e.Kind, e.Key)
	}
	return fmt.Sprintf("storage error (%v): %s: %v", e.Kind, e.Key, e.Err)
}

func (e *StorageError) Unwrap() []error {
	errs := []error{ErrStorage}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
