package identity

import "strings"

// IsNumeric reports whether s is a non-empty string of ASCII digits 0-9.
// Unicode digits from other scripts are rejected.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CleanValue trims the padding DICOM puts around string values (trailing
// spaces and NUL bytes) so that padded numbers are still recognised as numeric.
func CleanValue(s string) string {
	return strings.Trim(s, " \x00")
}
