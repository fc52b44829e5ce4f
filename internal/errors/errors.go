// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"fmt"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindValidation

	// KindPermission marks authorization failures: the caller is in
	// neither the allowed-user nor allowed-group set of the effective ACL.
	KindPermission

	// KindNotActive marks operations that require the ACTIVE role while
	// the controller is not active. Raised after authorization, before
	// any delegation.
	KindNotActive

	// KindTransition marks a failed role transition. The role is left
	// unchanged when an error of this kind is returned.
	KindTransition

	// KindHealth marks a failed liveness check on the controller's
	// active-only services.
	KindHealth

	// KindConfiguration marks operations whose configuration
	// preconditions are not met.
	KindConfiguration

	// KindRemote wraps a failure surfaced from an external collaborator
	// during delegation.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindNotActive:
		return "not_active"
	case KindTransition:
		return "transition"
	case KindHealth:
		return "health"
	case KindConfiguration:
		return "configuration"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// KindFromString maps a wire name back to a Kind. Unrecognized names
// map to KindUnknown.
func KindFromString(s string) Kind {
	switch s {
	case "internal":
		return KindInternal
	case "validation":
		return KindValidation
	case "permission":
		return KindPermission
	case "not_active":
		return KindNotActive
	case "transition":
		return KindTransition
	case "health":
		return KindHealth
	case "configuration":
		return KindConfiguration
	case "remote":
		return KindRemote
	default:
		return KindUnknown
	}
}

// Error represents a structured error in the foreman system.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{
		Kind:    kind,
		Message: msg,
	}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    msg,
		Underlying: err,
	}
}

// Wrapf wraps an existing error as a new Error of the specified kind with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Underlying: err,
	}
}

// Attr attaches an attribute to an error. If the error is not an *Error, it wraps it as KindInternal.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Kind:       KindInternal,
			Message:    err.Error(),
			Underlying: err,
		}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetKind returns the Kind of the error, or KindUnknown if it's not a foreman error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if err's type contains an Unwrap method returning error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
