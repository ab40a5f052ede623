package dicom

import (
	"fmt"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func newTestDataset(t *testing.T) *Dataset {
	t.Helper()
	return &Dataset{Data: dicom.Dataset{Elements: []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{"1.2.3.4.5"}),
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.StudyDate, []string{"20180607"}),
		mustNewElement(tag.AccessionNumber, []string{"0050"}),
		mustNewElement(tag.Modality, []string{"CT"}),
		mustNewElement(tag.PatientName, []string{"DOE^JOHN"}),
		mustNewElement(tag.PatientID, []string{"123456"}),
		mustNewElement(tag.Rows, []int{512}),
	}}}
}
