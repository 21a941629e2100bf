package taxtable

import (
	"errors"
	"fmt"
)

// Document-level failures. A *ParseError always matches exactly one of these
// through errors.Is.
var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrUnrecognizedFormat   = errors.New("unrecognized format")
	ErrInvalidStructure     = errors.New("invalid document structure")
	ErrCorruptFile          = errors.New("corrupt file")
	ErrParseTimeout         = errors.New("parse timeout")
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// ParseError aborts a whole conversion. Message is safe to show to users.
type ParseError struct {
	Kind    error
	Message string
	Err     error
}

// NewParseError builds a ParseError of the given kind.
func NewParseError(kind error, message string, cause error) *ParseError {
	return &ParseError{Kind: kind, Message: message, Err: cause}
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ParseError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Code returns a stable machine-readable code for the failure kind.
func (e *ParseError) Code() string {
	switch e.Kind {
	case ErrUnsupportedExtension:
		return "unsupported_extension"
	case ErrUnrecognizedFormat:
		return "unrecognized_format"
	case ErrInvalidStructure:
		return "invalid_structure"
	case ErrCorruptFile:
		return "corrupt_file"
	case ErrParseTimeout:
		return "parse_timeout"
	default:
		return "parse_error"
	}
}
