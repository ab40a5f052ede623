package dicom

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestTryGetAndContains(t *testing.T) {
	ds := newTestDataset(t)

	v, ok := ds.TryGet(tag.AccessionNumber)
	assert.True(t, ok)
	assert.Equal(t, "0050", v)

	v, ok = ds.TryGet(tag.Rows)
	assert.True(t, ok)
	assert.Equal(t, "512", v)

	_, ok = ds.TryGet(tag.StudyID)
	assert.False(t, ok)
	assert.False(t, ds.Contains(tag.StudyID))
	assert.True(t, ds.Contains(tag.PatientName))
	assert.Equal(t, "CT", ds.GetModality())
}

func TestTags(t *testing.T) {
	ds := newTestDataset(t)
	tags := ds.Tags()
	assert.Len(t, tags, len(ds.Data.Elements))
	assert.Contains(t, tags, tag.PatientID)
}

func TestSetExistingAndClear(t *testing.T) {
	ds := newTestDataset(t)

	require.NoError(t, ds.Set(tag.PatientID, "999"))
	assert.Equal(t, "999", ds.GetString(tag.PatientID))

	require.NoError(t, ds.ClearTag(tag.PatientName))
	v, ok := ds.TryGet(tag.PatientName)
	assert.True(t, ok)
	assert.Equal(t, "", v)

	require.NoError(t, ds.ClearTag(tag.PatientAddress))
	assert.False(t, ds.Contains(tag.PatientAddress))

	require.NoError(t, ds.Set(tag.Rows, ""))
	assert.Equal(t, "", ds.GetString(tag.Rows))
}

func TestSetInsertsInTagOrder(t *testing.T) {
	ds := newTestDataset(t)

	require.NoError(t, ds.Set(tag.StudyID, "STUDY1"))
	assert.Equal(t, "STUDY1", ds.GetString(tag.StudyID))

	tags := ds.Tags()
	for i := 1; i < len(tags); i++ {
		assert.True(t, tagLess(tags[i-1], tags[i]), "%s before %s", tags[i-1], tags[i])
	}
}

func TestSaveAndRead(t *testing.T) {
	ds := newTestDataset(t)
	require.NoError(t, ds.Set(tag.PatientName, ""))

	out := filepath.Join(t.TempDir(), "nested", "out.dcm")
	require.NoError(t, ds.Save(out))

	read, err := ReadDicom(out)
	require.NoError(t, err)
	assert.Equal(t, "0050", read.GetString(tag.AccessionNumber))
	assert.Equal(t, "", read.GetString(tag.PatientName))
	assert.Equal(t, out, read.FilePath)

	meta, err := ReadDicomMetadataOnly(out)
	require.NoError(t, err)
	assert.Equal(t, "CT", meta.GetModality())
}

func TestReadDicomErrors(t *testing.T) {
	_, err := ReadDicom(filepath.Join(t.TempDir(), "missing.dcm"))
	assert.Error(t, err)
}
