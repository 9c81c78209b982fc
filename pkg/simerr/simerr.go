// Package simerr defines the closed set of error kinds the simulation core
// can raise. Storage, compute, and messaging failures are all collapsed
// into one of these kinds before they cross an actor boundary; controllers
// never see a raw transport or I/O error.
package simerr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error kinds a simforge component may
// raise.
type Kind string

const (
	FileNotFound         Kind = "FileNotFound"
	NotEnoughSpace       Kind = "NotEnoughSpace"
	NotEnoughResources   Kind = "NotEnoughResources"
	InvalidArgument      Kind = "InvalidArgument"
	ServiceIsDown        Kind = "ServiceIsDown"
	NetworkError         Kind = "NetworkError"
	HostError            Kind = "HostError"
	JobTimeout           Kind = "JobTimeout"
	JobKilled            Kind = "JobKilled"
	InternalError        Kind = "InternalError"
)

// Error is a tagged, optionally-wrapped failure cause. It satisfies the
// standard errors.Is/errors.As contract: errors.Is(err, simerr.New(
// simerr.FileNotFound, "")) works because Is compares Kind, and As
// unwraps to reach the Cause.
type Error struct {
	Kind    Kind
	Service string // service/actor that raised it, when known
	Cause   error
}

func (e *Error) Error() string {
	if e.Service != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Service, e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, whatever its
// Service or Cause. A bare Kind is not an error value; to test an error
// against a Kind, use the package-level Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds a bare *Error of the given kind, with no underlying cause.
func New(kind Kind, service string) *Error {
	return &Error{Kind: kind, Service: service}
}

// Wrap builds a *Error of the given kind around an underlying cause.
func Wrap(kind Kind, service string, cause error) *Error {
	return &Error{Kind: kind, Service: service, Cause: cause}
}

// Of returns the Kind of err if it (or something it wraps) is a *Error,
// and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
// Use as: simerr.Is(err, simerr.FileNotFound).
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
