// Package validate provides shared validation functions for request input.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/hay-kot/criterio"
)

// MinNameLength is the minimum length of a sender name after trimming.
const MinNameLength = 3

// ErrAddressTooShort is wrapped by Address when too few digits remain.
var ErrAddressTooShort = errors.New("phone number is too short")

// NormalizeAddress keeps only the digits of raw and strips leading zeros,
// so "+55 (11) 99999-9999" and "005511999999999" both become "5511999999999".
func NormalizeAddress(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// Address normalizes raw and checks it has at least minDigits digits.
func Address(raw string, minDigits int) (string, error) {
	n := NormalizeAddress(raw)
	if n == "" || len(n) < minDigits {
		return "", fmt.Errorf("%w: must contain at least %d digits", ErrAddressTooShort, minDigits)
	}
	return n, nil
}

// SenderName validates a sender name has at least MinNameLength characters
// after trimming whitespace.
func SenderName(name string) error {
	if len([]rune(strings.TrimSpace(name))) < MinNameLength {
		return fmt.Errorf("must be at least %d characters long", MinNameLength)
	}
	return nil
}

// MessageBody validates a message is not blank.
func MessageBody(msg string) error {
	if strings.IndexFunc(msg, func(r rune) bool { return !unicode.IsSpace(r) }) < 0 {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}

// Required reports every name whose value in fields is missing or blank.
// The result is nil or a criterio.FieldErrors.
func Required(fields map[string]string, names ...string) error {
	var errs criterio.FieldErrorsBuilder
	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			errs = errs.Append(name, fmt.Errorf("is required"))
		}
	}
	return errs.ToError()
}
