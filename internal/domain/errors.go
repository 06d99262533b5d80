package domain

import (
	"errors"
	"fmt"
)

// ErrDuplicateTimestamp is returned when a sample with the same timestamp is
// already stored. The existing row is left untouched.
var ErrDuplicateTimestamp = errors.New("duplicate sample timestamp")

// ErrSampleNotFound means no sample has been recorded yet.
var ErrSampleNotFound = errors.New("sample not found")

// StorageError is any store fault other than a duplicate timestamp: a lost
// connection, a failed transaction or a driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// MissingConfigError names a required configuration key that was not set.
type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Key)
}

// InvalidConfigError names a configuration key whose value cannot be used.
type InvalidConfigError struct {
	Key    string
	Value  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%q: %s", e.Key, e.Value, e.Reason)
}

// RenderError is a failed chart render for the image at Path.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is a storage fault other than a
// duplicate timestamp.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
