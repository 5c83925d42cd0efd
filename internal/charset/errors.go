package charset

import (
	"errors"
	"fmt"
)

// UnsupportedCharsetError is returned when a charset name cannot be resolved
// to a decoder.
type UnsupportedCharsetError struct {
	Name string
	Err  error
}

func (e UnsupportedCharsetError) Unwrap() error { return e.Err }

func (e UnsupportedCharsetError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unsupported charset %q", e.Name)
	}
	return fmt.Sprintf("unsupported charset %q: %v", e.Name, e.Err)
}

// IsUnsupportedCharset reports whether err is, or wraps, an UnsupportedCharsetError
func IsUnsupportedCharset(err error) bool {
	return errors.As(err, new(UnsupportedCharsetError))
}
