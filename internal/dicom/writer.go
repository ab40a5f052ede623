package dicom

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Set replaces the value of t. When t is absent a new string element is
// inserted in tag order. An empty value blanks the element whatever its type;
// sequences can only be blanked.
func (d *Dataset) Set(t tag.Tag, value string) error {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil {
		return d.insert(t, value)
	}

	newValue, err := valueFor(elem, value)
	if err != nil {
		return fmt.Errorf("could not set %s: %w", t, err)
	}

	// Create a new element with the updated value
	newElem := *elem
	newElem.Value = newValue
	if newValue.ValueType() == dicom.Sequences {
		newElem.ValueLength = tag.VLUndefinedLength
	} else {
		newElem.ValueLength = uint32(len(value))
	}

	// Replace element in dataset
	for i, e := range d.Data.Elements {
		if e.Tag == t {
			d.Data.Elements[i] = &newElem
			break
		}
	}
	return nil
}

// ClearTag clears a tag value (sets to empty string). Absent tags are ignored.
func (d *Dataset) ClearTag(t tag.Tag) error {
	if !d.Contains(t) {
		return nil
	}
	return d.Set(t, "")
}

func (d *Dataset) insert(t tag.Tag, value string) error {
	elem, err := dicom.NewElement(t, []string{value})
	if err != nil {
		return fmt.Errorf("could not create %s: %w", t, err)
	}

	elems := d.Data.Elements
	i := sort.Search(len(elems), func(i int) bool {
		return tagLess(t, elems[i].Tag)
	})
	elems = append(elems, nil)
	copy(elems[i+1:], elems[i:])
	elems[i] = elem
	d.Data.Elements = elems
	return nil
}

func tagLess(a, b tag.Tag) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Element < b.Element
}

func valueFor(elem *dicom.Element, value string) (dicom.Value, error) {
	valueType := dicom.Strings
	if elem.Value != nil {
		valueType = elem.Value.ValueType()
	}

	switch valueType {
	case dicom.Sequences:
		if value != "" {
			return nil, fmt.Errorf("sequence elements can only be cleared")
		}
		return dicom.NewValue([][]*dicom.Element{})
	case dicom.Ints:
		ints := []int{}
		for _, part := range splitValues(value) {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", part)
			}
			ints = append(ints, n)
		}
		return dicom.NewValue(ints)
	case dicom.Floats:
		floats := []float64{}
		for _, part := range splitValues(value) {
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", part)
			}
			floats = append(floats, f)
		}
		return dicom.NewValue(floats)
	case dicom.Bytes:
		return dicom.NewValue([]byte(value))
	default:
		return dicom.NewValue([]string{value})
	}
}

func splitValues(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, `\`)
}

// Save writes the DICOM dataset to a file, creating parent directories.
func (d *Dataset) Save(outputPath string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}

	// Write DICOM with relaxed verification (many real-world DICOM files
	// don't strictly follow VR specifications)
	if err := dicom.Write(file, d.Data,
		dicom.SkipVRVerification(),
		dicom.SkipValueTypeVerification(),
		dicom.DefaultMissingTransferSyntax(),
	); err != nil {
		file.Close()
		return fmt.Errorf("could not write DICOM: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	return nil
}
