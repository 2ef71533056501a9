// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package coderecoder holds the types and error taxonomy shared by every
// store and component in the snapshot engine: it has no dependents outside
// this module and exists so that filestore, projectstore, planner, and the
// CLI can all speak the same vocabulary without importing each other.
package coderecoder

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed. Every public store method
// returns an error that satisfies errors.As(err, *Error) with one of
// these kinds, never a bare error, so callers can branch on failure mode
// without string matching.
type Kind string

const (
	// NotActivated means the operation requires a bound store (cache
	// directory + project root) and none is set.
	NotActivated Kind = "NotActivated"

	// InvalidPath means the path guard rejected a target or destination.
	InvalidPath Kind = "InvalidPath"

	// NotFound means the requested snapshot, file, or session id does
	// not exist.
	NotFound Kind = "NotFound"

	// Corrupt means a snapshot's stored bytes don't match its recorded
	// size/hash, or its directory is unexpectedly empty.
	Corrupt Kind = "Corrupt"

	// NoBaseline means the restore planner could not find any usable
	// full snapshot to anchor a chain.
	NoBaseline Kind = "NoBaseline"

	// IoError means an underlying filesystem call failed.
	IoError Kind = "IoError"

	// ChangeDetectorFailed means all four change-detection layers
	// errored out; the caller decides whether to force a snapshot.
	ChangeDetectorFailed Kind = "ChangeDetectorFailed"
)

// Error is the concrete error type every store returns for a domain
// failure. It carries a Kind for programmatic branching and wraps the
// underlying cause (if any) for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, coderecoder.New(coderecoder.NotFound, ""))
// style checks, or use errors.As (or KindOf) for the message/cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, or "" if err is not (or does not
// wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
