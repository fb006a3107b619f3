package trix

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
)

// CorruptIndexError is the panic value raised when an index file cannot be
// parsed mid-search. Indexes are trusted build artifacts, so search does not
// try to recover from one.
type CorruptIndexError struct {
	Path   string
	Line   string
	Reason string
	Err    error
}

func (e *CorruptIndexError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Path, e.Reason)
	if e.Line != "" {
		msg += fmt.Sprintf(" in line %q", truncate(e.Line, 80))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptIndexError) Unwrap() []error {
	if e.Err != nil {
		return []error{apperrors.ErrCorruptIndex, e.Err}
	}
	return []error{apperrors.ErrCorruptIndex}
}

func corrupt(path, line, reason string, err error) {
	panic(&CorruptIndexError{Path: path, Line: line, Reason: reason, Err: err})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
