package keyfs

import (
	"errors"
	"fmt"
)

const (
	// Raised when the target key is absent or inaccessible. Maps from the
	// store's own "not found" responses.
	ErrNotFound ErrorCode = "NotFound"

	// Raised by Create when overwrite is disabled and an accessible object
	// already exists at the resolved key.
	ErrAlreadyExists ErrorCode = "AlreadyExists"

	// See IsADirectory() / NotADirectory() for helper functions for these
	// errors.
	ErrIsADirectory  ErrorCode = "IsADirectory"
	ErrNotADirectory ErrorCode = "NotADirectory"

	// Raised when none of the path resolution rules apply to an
	// expression. See ResolveKey.
	ErrInvalidPath ErrorCode = "InvalidPath"

	// Raised for operation shapes the store cannot express: append, and
	// truncation to any length other than zero.
	ErrUnsupported ErrorCode = "Unsupported"

	// Raised when a Cursor is advanced past its last entry.
	ErrNoSuchEntry ErrorCode = "NoSuchEntry"
)

// Error is implemented by every error kind raised by this package. Errors
// returned by an ObjectStore that do not implement it are collaborator
// failures, passed through to callers unchanged.
type Error interface {
	error
	ErrorCode() ErrorCode
}

type ErrorCode string

func (e ErrorCode) ErrorCode() ErrorCode { return e }
func (e ErrorCode) Error() string        { return string(e) }

func (e ErrorCode) Message() string {
	switch e {
	case ErrNotFound:
		return "The specified key does not exist"
	case ErrAlreadyExists:
		return "An object already exists at the specified key"
	case ErrIsADirectory:
		return "The target is a directory"
	case ErrNotADirectory:
		return "The target is not a directory"
	case ErrInvalidPath:
		return "The path cannot be resolved"
	case ErrUnsupported:
		return "The operation is not supported"
	case ErrNoSuchEntry:
		return "The listing has no more entries"
	default:
		return ""
	}
}

type resourceError struct {
	Code     ErrorCode
	Resource string
}

var _ Error = &resourceError{}

func (e *resourceError) ErrorCode() ErrorCode { return e.Code }

func (e *resourceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code.Message(), e.Resource)
}

func ResourceError(code ErrorCode, resource string) error {
	return &resourceError{Code: code, Resource: resource}
}

func KeyNotFound(key Key) error      { return ResourceError(ErrNotFound, string(key)) }
func FileAlreadyExists(p Path) error { return ResourceError(ErrAlreadyExists, string(p)) }
func IsADirectory(p Path) error      { return ResourceError(ErrIsADirectory, string(p)) }
func NotADirectory(key Key) error    { return ResourceError(ErrNotADirectory, string(key)) }
func PathInvalid(p Path) error       { return ResourceError(ErrInvalidPath, string(p)) }

// HasErrorCode reports whether err, or any error it wraps, carries the
// given code.
func HasErrorCode(err error, code ErrorCode) bool {
	var kerr Error
	if !errors.As(err, &kerr) {
		return false
	}
	return kerr.ErrorCode() == code
}

func IsNotFound(err error) bool      { return HasErrorCode(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return HasErrorCode(err, ErrAlreadyExists) }
func IsUnsupported(err error) bool   { return HasErrorCode(err, ErrUnsupported) }
