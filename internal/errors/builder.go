package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorBuilder accumulates hints and details before marking an error with a sentinel.
type ErrorBuilder struct {
	err     error
	details map[string]any
}

// NewError starts a builder from a message.
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.NewWithDepth(1, msg)}
}

// NewErrorf starts a builder from a formatted message.
func NewErrorf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: errors.NewWithDepthf(1, format, args...)}
}

// WithError starts a builder wrapping an existing error.
func WithError(err error) *ErrorBuilder {
	if err == nil {
		err = errors.NewWithDepth(1, "unknown error")
	}
	return &ErrorBuilder{err: err}
}

// WithMessage prefixes the wrapped error with msg.
func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WrapWithDepth(1, b.err, msg)
	return b
}

// WithHint attaches a user facing hint.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

// WithHintf attaches a formatted user facing hint.
func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	return b.WithHint(fmt.Sprintf(format, args...))
}

// WithReportableDetails attaches structured details safe to return to API callers.
func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	if b.details == nil {
		b.details = make(map[string]any, len(details))
	}
	for k, v := range details {
		b.details[k] = v
	}
	return b
}

// Mark finalizes the builder, marking the error with the given sentinel.
func (b *ErrorBuilder) Mark(sentinel error) error {
	err := b.err
	if len(b.details) > 0 {
		err = &detailedError{cause: err, details: b.details}
	}
	return errors.Mark(err, sentinel)
}

type detailedError struct {
	cause   error
	details map[string]any
}

func (e *detailedError) Error() string { return e.cause.Error() }
func (e *detailedError) Unwrap() error { return e.cause }

func reportableDetails(err error) map[string]any {
	var de *detailedError
	if errors.As(err, &de) {
		return de.details
	}
	return nil
}
