package dicom

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Dataset wraps a DICOM dataset for easier access. It implements the
// record interface consumed by the anonymizer.
type Dataset struct {
	Data     dicom.Dataset
	FilePath string
}

// ReadDicom reads a DICOM file and returns the dataset.
func ReadDicom(path string) (*Dataset, error) {
	return read(path)
}

// ReadDicomMetadataOnly reads only the metadata (no pixel data).
func ReadDicomMetadataOnly(path string) (*Dataset, error) {
	return read(path, dicom.SkipPixelData())
}

func read(path string, opts ...dicom.ParseOption) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{
		Data:     ds,
		FilePath: path,
	}, nil
}

// Tags returns the top-level tags present in the dataset, in file order.
func (d *Dataset) Tags() []tag.Tag {
	tags := make([]tag.Tag, 0, len(d.Data.Elements))
	for _, e := range d.Data.Elements {
		tags = append(tags, e.Tag)
	}
	return tags
}

// Contains reports whether t is present at the top level of the dataset.
func (d *Dataset) Contains(t tag.Tag) bool {
	_, err := d.Data.FindElementByTag(t)
	return err == nil
}

// TryGet returns the value of t rendered as a string. Multiple values are
// joined with the DICOM backslash delimiter. ok is false when t is absent.
func (d *Dataset) TryGet(t tag.Tag) (value string, ok bool) {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil {
		return "", false
	}
	return elementString(elem), true
}

// GetString returns a string value for a tag, or empty string if not found.
func (d *Dataset) GetString(t tag.Tag) string {
	v, _ := d.TryGet(t)
	return v
}

// GetModality returns the DICOM modality (e.g., "US", "CT", "MR", "CR", "DX").
func (d *Dataset) GetModality() string {
	return d.GetString(tag.Modality)
}

func elementString(elem *dicom.Element) string {
	if elem.Value == nil {
		return ""
	}

	switch v := elem.Value.GetValue().(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(v, `\`)
	case string:
		return v
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, `\`)
	case []float64:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, `\`)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case []*dicom.SequenceItemValue:
		return fmt.Sprintf("<sequence of %d items>", len(v))
	case dicom.PixelDataInfo:
		return "<pixel data>"
	default:
		return fmt.Sprintf("%v", v)
	}
}
