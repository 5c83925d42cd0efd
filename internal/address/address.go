package address

import (
	"errors"
	"fmt"
	"strings"
)

// Address is a mailbox with an optional display name. Name is empty, never
// missing, when the mailbox has no display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// String formats a as `"Name" <email>`, or the bare email without a name
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	name := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a.Name)
	return `"` + name + `" <` + a.Email + ">"
}

// FormatError is returned when a rebuilt address is not a valid mailbox
type FormatError struct {
	Raw string
	Err error
}

func (e FormatError) Unwrap() error { return e.Err }

func (e FormatError) Error() string {
	return fmt.Sprintf("invalid address %q: %v", e.Raw, e.Err)
}

// IsFormatError reports whether err is, or wraps, a FormatError
func IsFormatError(err error) bool {
	return errors.As(err, new(FormatError))
}
