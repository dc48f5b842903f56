package dialog

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Dispatch when the user's queue is full.
	ErrBusy = errors.New("too many pending requests")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("engine closed")
	// ErrFileTooLarge rejects edits above the configured ceiling.
	ErrFileTooLarge = errors.New("file too large to edit")
	// ErrNotText rejects edits of binary content.
	ErrNotText = errors.New("file is not valid UTF-8 text")
	// ErrEditConflict aborts a save when the file changed after it was opened.
	ErrEditConflict = errors.New("file changed on the server since it was opened")

	errPreempted = errors.New("preempted by disconnect")
)

// ValidationError rejects user input; the prompt is repeated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Code reports a stable identifier for handler summaries.
func (e *ValidationError) Code() string { return "VALIDATION" }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
