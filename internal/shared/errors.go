package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrPrivileges indicates the caller lacks a required privilege.
	ErrPrivileges = errors.New("insufficient privileges")
	// ErrConfiguration indicates a malformed collection or privilege declaration.
	ErrConfiguration = errors.New("configuration error")
	// ErrDuplicate indicates a uniqueness guard rejected the write.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrMethodNotAllowed is returned for actions a collection does not permit.
	ErrMethodNotAllowed = errors.New("method not allowed")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates a missing or expired token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// PrivilegesError names the privileges the caller failed to present.
type PrivilegesError struct {
	Privileges []string
}

func (e *PrivilegesError) Error() string {
	return fmt.Sprintf("User does not have required privileges for that action! Missing privileges: %s.", strings.Join(e.Privileges, ", "))
}

// Is makes PrivilegesError match ErrPrivileges.
func (e *PrivilegesError) Is(target error) bool {
	return target == ErrPrivileges
}

// DuplicateError reports the field whose value is already taken.
type DuplicateError struct {
	Field string
	Value any
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("entry with field %q with value %q already exists", e.Field, fmt.Sprint(e.Value))
}

// Is makes DuplicateError match ErrDuplicate.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Configurationf wraps ErrConfiguration with a formatted message.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
