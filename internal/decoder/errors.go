package decoder

import (
	"errors"
	"fmt"
)

// MalformedEncodingError is returned when a base64 or quoted-printable
// payload violates its own grammar.
type MalformedEncodingError struct {
	Encoding string
	Err      error
}

func (e MalformedEncodingError) Unwrap() error { return e.Err }

func (e MalformedEncodingError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Encoding, e.Err)
}

// IsMalformedEncoding reports whether err is, or wraps, a MalformedEncodingError
func IsMalformedEncoding(err error) bool {
	return errors.As(err, new(MalformedEncodingError))
}

// SourceReadError is returned when the byte stream being decoded fails
type SourceReadError struct {
	Err error
}

func (e SourceReadError) Unwrap() error { return e.Err }

func (e SourceReadError) Error() string {
	return fmt.Sprintf("failed to read source: %v", e.Err)
}

// IsSourceRead reports whether err is, or wraps, a SourceReadError
func IsSourceRead(err error) bool {
	return errors.As(err, new(SourceReadError))
}
