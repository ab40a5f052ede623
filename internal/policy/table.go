package policy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Column names accepted for the category column. AnonymizedByCBIG is the
// name used by the confidentiality-profile spreadsheet the tables come from.
var categoryColumns = []string{"action", "category", "anonymizedbycbig"}

// Load reads a policy table from a CSV file.
func Load(path string) (*Policy, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open policy table: %w", err)
	}
	defer file.Close()

	p, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("policy table %s: %w", path, err)
	}
	return p, nil
}

// Parse reads a policy table. The first row is a header naming a Tag column
// and an Action (or Category) column; other columns are ignored. Rows with an
// empty tag are skipped. Structured tags may be written with or without
// quotes.
func Parse(r io.Reader) (*Policy, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table")
		}
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	tagCol, actionCol := -1, -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		switch {
		case name == "tag":
			tagCol = i
		case lo.Contains(categoryColumns, name):
			actionCol = i
		}
	}
	if tagCol < 0 || actionCol < 0 {
		return nil, fmt.Errorf("header must name a Tag column and an Action column, got %v", header)
	}

	var rules []Rule
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tagCol >= len(row) || strings.TrimSpace(row[tagCol]) == "" {
			continue
		}
		row = joinSplitTag(row, tagCol)

		t, err := ParseTag(row[tagCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		action := Keep
		if actionCol < len(row) {
			action = ParseAction(row[actionCol])
		}
		rules = append(rules, Rule{Tag: t, Action: action})
	}

	return New(rules)
}

// joinSplitTag rejoins an unquoted "(gggg,eeee)" or "gggg,eeee" tag that the
// CSV reader split across two cells, so the remaining cells line up with the
// header again.
func joinSplitTag(row []string, col int) []string {
	if col+1 >= len(row) {
		return row
	}
	first, second := strings.TrimSpace(row[col]), strings.TrimSpace(row[col+1])
	split := strings.HasPrefix(first, "(") && !strings.Contains(first, ")") && strings.HasSuffix(second, ")")
	if !split {
		split = isHexWord(first) && isHexWord(second)
	}
	if !split {
		return row
	}

	joined := make([]string, 0, len(row)-1)
	joined = append(joined, row[:col]...)
	joined = append(joined, first+","+second)
	return append(joined, row[col+2:]...)
}

func isHexWord(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 16)
	return err == nil
}

// ParseTag accepts "0x00080050", "00080050", "(0008,0050)", "0008,0050" or a
// DICOM keyword such as "AccessionNumber".
func ParseTag(s string) (tag.Tag, error) {
	raw := strings.TrimSpace(s)
	v := strings.Trim(raw, "()")

	if group, element, ok := strings.Cut(v, ","); ok {
		g, err := strconv.ParseUint(strings.TrimSpace(group), 16, 16)
		if err != nil {
			return tag.Tag{}, fmt.Errorf("invalid tag group in %q", raw)
		}
		e, err := strconv.ParseUint(strings.TrimSpace(element), 16, 16)
		if err != nil {
			return tag.Tag{}, fmt.Errorf("invalid tag element in %q", raw)
		}
		return tag.Tag{Group: uint16(g), Element: uint16(e)}, nil
	}

	hex := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	if n, err := strconv.ParseUint(hex, 16, 32); err == nil && (hex != v || len(hex) == 8) {
		return tag.Tag{Group: uint16(n >> 16), Element: uint16(n)}, nil
	}

	info, err := tag.FindByName(v)
	if err != nil {
		return tag.Tag{}, fmt.Errorf("unknown tag %q", raw)
	}
	return info.Tag, nil
}
