package identity

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ShiftKeys holds the two shift patterns of a key file. It is loaded once at
// startup and treated as read-only afterwards.
type ShiftKeys struct {
	ID   string // applied to accession numbers and other identifiers
	Date string // applied to DA values
}

// Validate checks that both patterns are non-empty digit strings.
func (k ShiftKeys) Validate() error {
	if !IsNumeric(k.ID) {
		return fmt.Errorf("%w: identifier shift pattern must be a non-empty digit string", ErrInvalidInput)
	}
	if !IsNumeric(k.Date) {
		return fmt.Errorf("%w: date shift pattern must be a non-empty digit string", ErrInvalidInput)
	}
	return nil
}

// LoadShiftKeys reads a key file. Line 1 is the identifier pattern and line 2
// the date pattern; anything after line 2 is ignored.
func LoadShiftKeys(path string) (ShiftKeys, error) {
	file, err := os.Open(path)
	if err != nil {
		return ShiftKeys{}, fmt.Errorf("could not open key file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return ShiftKeys{}, fmt.Errorf("could not read key file %s: %w", path, err)
	}
	if len(lines) < 2 {
		return ShiftKeys{}, fmt.Errorf("key file %s: expected 2 lines, found %d", path, len(lines))
	}

	keys := ShiftKeys{ID: lines[0], Date: lines[1]}
	if err := keys.Validate(); err != nil {
		return ShiftKeys{}, fmt.Errorf("key file %s: %w", path, err)
	}
	return keys, nil
}
