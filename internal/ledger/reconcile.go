package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
)

// ReadAll returns the entries of a ledger or side file written with
// DefaultHeader, skipping header rows.
func ReadAll(path string) ([]Entry, error) {
	return readEntries(path, DefaultHeader)
}

// ReadAll returns the entries of the ledger file, skipping rows equal to the
// ledger's header.
func (l *Ledger) ReadAll() ([]Entry, error) {
	return readEntries(l.path, l.header)
}

func readEntries(path string, header []string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open ledger: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(header)

	var entries []Entry
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", path, err)
		}
		if slices.Equal(row, header) {
			continue
		}
		entries = append(entries, Entry{
			Image:         row[0],
			RealID:        row[1],
			SourceContext: row[2],
			DummyID:       row[3],
		})
	}
	return entries, nil
}

// SideFiles lists the side files written next to the ledger at path.
func SideFiles(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(globEscape(abs) + "_*")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Merge appends the rows of every side file to the ledger and removes the
// side files that were merged. It returns the number of entries moved.
// Side files must not be written to while Merge runs.
func (l *Ledger) Merge(ctx context.Context) (int, error) {
	sides, err := SideFiles(l.path)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, side := range sides {
		entries, err := readEntries(side, l.header)
		if err != nil {
			return moved, err
		}

		err = l.withLock(ctx, func() error {
			for _, e := range entries {
				if err := appendRows(l.path, l.header, e.row()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return moved, fmt.Errorf("could not merge %s: %w", side, err)
		}
		moved += len(entries)

		if err := os.Remove(side); err != nil {
			return moved, fmt.Errorf("could not remove merged side file: %w", err)
		}
		l.logger.Infof("Merged %d entries from %s", len(entries), side)
	}
	return moved, nil
}

func globEscape(path string) string {
	special := []rune{'*', '?', '[', '\\'}
	out := make([]rune, 0, len(path))
	for _, r := range path {
		if slices.Contains(special, r) {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
