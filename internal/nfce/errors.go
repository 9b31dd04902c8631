package nfce

import "errors"

var (
	// ErrInputTooLarge is returned when the input exceeds the configured rune limit.
	ErrInputTooLarge = errors.New("input too large")
	// ErrEmptyInput is returned for blank or whitespace-only input.
	ErrEmptyInput = errors.New("empty input")
	// ErrEncoding is returned when the input is not valid UTF-8 text.
	ErrEncoding = errors.New("input is not valid text")
)

// ErrorKind names one of the hard-failure classes a parse can end in.
type ErrorKind string

const (
	KindInputTooLarge ErrorKind = "input_too_large"
	KindEmptyInput    ErrorKind = "empty_input"
	KindEncoding      ErrorKind = "encoding_error"
)

// ParseError is a structural failure that prevented extraction entirely.
// Missing fields are never reported as a ParseError.
type ParseError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	err     error
}

func newParseError(kind ErrorKind, sentinel error, message string) *ParseError {
	return &ParseError{Kind: kind, Message: message, err: sentinel}
}

func (e *ParseError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the package sentinel so callers can use errors.Is.
func (e *ParseError) Unwrap() error {
	return e.err
}
