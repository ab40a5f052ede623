package identity

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when an identifier or shift pattern is not a
// non-empty string of decimal digits.
var ErrInvalidInput = errors.New("invalid cipher input")

// Obfuscate shifts every digit of id forward by the digit of pattern at the
// same position, cycling through pattern when id is longer.
// The result has the same length as id.
func Obfuscate(id, pattern string) (string, error) {
	return shift(id, pattern, 1)
}

// Reveal undoes Obfuscate: Reveal(Obfuscate(x, p), p) == x.
func Reveal(dummy, pattern string) (string, error) {
	return shift(dummy, pattern, -1)
}

// shift is the single cycling routine used by both directions. Position i is
// always keyed by pattern[i%len(pattern)].
func shift(value, pattern string, sign int) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("%w: empty shift pattern", ErrInvalidInput)
	}
	if !IsNumeric(pattern) {
		return "", fmt.Errorf("%w: shift pattern is not numeric", ErrInvalidInput)
	}
	if !IsNumeric(value) {
		return "", fmt.Errorf("%w: identifier is not numeric", ErrInvalidInput)
	}

	out := make([]byte, len(value))
	for i := 0; i < len(value); i++ {
		d := int(value[i] - '0')
		k := int(pattern[i%len(pattern)] - '0')
		out[i] = byte('0' + (d+sign*k+10)%10)
	}
	return string(out), nil
}
