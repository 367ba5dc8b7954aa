// Package hosterrors models the §7 error taxonomy as typed, wrapped errors:
// Configuration, Startup, Transport, Tool, Sandbox, and Model. Each category
// carries enough context to decide how it propagates (4xx with a message,
// sticky failure record, RUN_ERROR event, tool-result error field, retry vs
// no-retry) without the caller needing to string-match error text.
//
// This is the Go-native replacement for the source's ExceptionGroup: instead
// of a tree of nested exceptions, FlattenErrors walks an errors.Join tree (or
// a single wrapped error) and returns the leaf messages in order, the way
// §9's "exception-group flattening" note describes.
package hosterrors

import (
	"errors"
	"fmt"
)

// Category is the error taxonomy from §7.
type Category string

const (
	Configuration Category = "configuration"
	Startup       Category = "startup"
	Transport     Category = "transport"
	Tool          Category = "tool"
	Sandbox       Category = "sandbox"
	Model         Category = "model"
)

// HostError is the common shape for every taxonomy category.
type HostError struct {
	Category Category
	Op       string // operation that failed, e.g. "providers.start"
	Err      error
	// Retryable marks whether the caller's retry loop (currently only C4
	// startup) should attempt again after backoff.
	Retryable bool
}

func (e *HostError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

func newErr(cat Category, op string, retryable bool, err error) *HostError {
	return &HostError{Category: cat, Op: op, Err: err, Retryable: retryable}
}

func NewConfiguration(op string, err error) *HostError { return newErr(Configuration, op, false, err) }
func NewStartup(op string, retryable bool, err error) *HostError {
	return newErr(Startup, op, retryable, err)
}
func NewTransport(op string, err error) *HostError { return newErr(Transport, op, false, err) }
func NewTool(op string, err error) *HostError      { return newErr(Tool, op, false, err) }
func NewSandbox(op string, retryable bool, err error) *HostError {
	return newErr(Sandbox, op, retryable, err)
}
func NewModel(op string, err error) *HostError { return newErr(Model, op, false, err) }

// IsRetryable reports whether err (or a HostError anywhere in its chain) is
// marked retryable.
func IsRetryable(err error) bool {
	var he *HostError
	if errors.As(err, &he) {
		return he.Retryable
	}
	return false
}

// CategoryOf extracts the taxonomy category, returning "" if err isn't a
// HostError.
func CategoryOf(err error) Category {
	var he *HostError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// FlattenErrors flattens an errors.Join tree (or a plain error) into its leaf
// messages, in encounter order. Mirrors the source's "exception group"
// flattening: the caller logs all, but the taxonomy's first leaf message is
// what gets recorded as the sticky failure reason (see providers.Manager.FailureFor).
func FlattenErrors(err error) []string {
	if err == nil {
		return nil
	}
	type unwrapMulti interface{ Unwrap() []error }
	var out []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if m, ok := e.(unwrapMulti); ok {
			for _, sub := range m.Unwrap() {
				walk(sub)
			}
			return
		}
		out = append(out, e.Error())
	}
	walk(err)
	if len(out) == 0 {
		out = []string{err.Error()}
	}
	return out
}

// FirstLeaf returns the first leaf message from FlattenErrors, used as the
// sticky failure reason.
func FirstLeaf(err error) string {
	leaves := FlattenErrors(err)
	if len(leaves) == 0 {
		return ""
	}
	return leaves[0]
}
