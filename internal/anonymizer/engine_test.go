package anonymizer

import (
	"fmt"
	"sort"
	"testing"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentify/internal/identity"
	"dicom-deidentify/internal/policy"
)

// memRecord is an in-memory Record.
type memRecord struct {
	values map[tag.Tag]string
	sets   []tag.Tag
	failOn map[tag.Tag]bool
}

func newMemRecord(values map[tag.Tag]string) *memRecord {
	return &memRecord{values: values}
}

func (r *memRecord) Tags() []tag.Tag {
	tags := make([]tag.Tag, 0, len(r.values))
	for t := range r.values {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Group != tags[j].Group {
			return tags[i].Group < tags[j].Group
		}
		return tags[i].Element < tags[j].Element
	})
	return tags
}

func (r *memRecord) Contains(t tag.Tag) bool {
	_, ok := r.values[t]
	return ok
}

func (r *memRecord) TryGet(t tag.Tag) (string, bool) {
	v, ok := r.values[t]
	return v, ok
}

func (r *memRecord) Set(t tag.Tag, value string) error {
	if r.failOn[t] && value != "" {
		return fmt.Errorf("read-only")
	}
	r.values[t] = value
	r.sets = append(r.sets, t)
	return nil
}

var testKeys = identity.ShiftKeys{ID: "3", Date: "1234"}

func testPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	p, err := policy.New([]policy.Rule{
		{Tag: tag.PatientName, Action: policy.Remove},
		{Tag: tag.PatientAddress, Action: policy.Remove},
		{Tag: tag.AccessionNumber, Action: policy.ReplaceWithShiftedID},
		{Tag: tag.PatientID, Action: policy.ReplaceWithShiftedID},
		{Tag: tag.StudyDate, Action: policy.ReplaceDate},
	})
	require.NoError(t, err)
	return p
}

func TestApplyNumericAccession(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "0050",
		tag.PatientName:     "DOE^JOHN",
		tag.PatientID:       "123456",
		tag.StudyDate:       "20180607",
		tag.Modality:        "MR",
	})

	engine := NewEngine(testPolicy(t), testKeys)
	res, err := engine.Apply(rec, Request{Locator: "/in/s1/IM1.dcm", SourceContext: "s1"})
	require.NoError(t, err)

	assert.Equal(t, "3383", res.DummyID)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "3383", rec.values[tag.AccessionNumber])
	assert.Equal(t, "", rec.values[tag.PatientName])
	assert.Equal(t, "456789", rec.values[tag.PatientID])
	assert.Equal(t, "32421831", rec.values[tag.StudyDate])
	assert.Equal(t, "MR", rec.values[tag.Modality])
	assert.NotContains(t, rec.sets, tag.Modality)

	assert.Equal(t, "/in/s1/IM1.dcm", res.Entry.Image)
	assert.Equal(t, "0050", res.Entry.RealID)
	assert.Equal(t, "s1", res.Entry.SourceContext)
	assert.Equal(t, "3383", res.Entry.DummyID)
	assert.Same(t, rec, res.Record)
}

func TestApplyLogsOnlyDummyID(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	rec := newMemRecord(map[tag.Tag]string{tag.AccessionNumber: "0050"})

	engine := NewEngine(testPolicy(t), testKeys, WithLogger(log.NewEntry(logger)))
	_, err := engine.Apply(rec, Request{Locator: "/in/s1/IM1.dcm", SourceContext: "s1"})
	require.NoError(t, err)

	require.NotEmpty(t, hook.AllEntries())
	for _, entry := range hook.AllEntries() {
		assert.NotContains(t, entry.Message, "0050")
	}
	assert.Equal(t, "Dummy ID 3383", hook.LastEntry().Message)
}

func TestApplyAbsentFieldsAreSkipped(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{tag.AccessionNumber: "1"})

	res, err := NewEngine(testPolicy(t), testKeys).Apply(rec, Request{SourceContext: "dir"})
	require.NoError(t, err)

	assert.Equal(t, "4", res.DummyID)
	assert.False(t, rec.Contains(tag.PatientName))
	assert.False(t, rec.Contains(tag.PatientAddress))
	assert.Len(t, rec.values, 1)
}

func TestApplyNonNumericAccessionFallsBack(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "ACC-77",
		tag.PatientName:     "DOE^JANE",
	})

	res, err := NewEngine(testPolicy(t), testKeys).Apply(rec, Request{SourceContext: "study_a"})
	require.NoError(t, err)

	assert.Equal(t, "study_a", res.DummyID)
	assert.Equal(t, "study_a", res.Entry.RealID)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, KindUnresolvedIdentifier, res.Warnings[0].Kind)

	// The accession value itself is still PHI and must not survive.
	assert.Equal(t, "", rec.values[tag.AccessionNumber])
	assert.Equal(t, KindNonNumericFieldValue, res.Warnings[len(res.Warnings)-1].Kind)
}

func TestApplyNumericFallbackIsShifted(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{})

	res, err := NewEngine(testPolicy(t), testKeys).Apply(rec, Request{SourceContext: "0050"})
	require.NoError(t, err)
	assert.Equal(t, "3383", res.DummyID)
}

func TestApplyUnresolvedIdentifier(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{tag.AccessionNumber: "N/A"})

	_, err := NewEngine(testPolicy(t), testKeys).Apply(rec, Request{Locator: "x.dcm"})
	require.Error(t, err)
	assert.Equal(t, KindUnresolvedIdentifier, KindOf(err))
}

func TestApplyNilRecord(t *testing.T) {
	_, err := NewEngine(testPolicy(t), testKeys).Apply(nil, Request{Locator: "x.dcm"})
	assert.Equal(t, KindUnreadableRecord, KindOf(err))
}

func TestApplyNonNumericReplaceFieldIsBlanked(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "12",
		tag.PatientID:       "MRN-5521",
		tag.StudyDate:       "2018-06-07",
	})

	res, err := NewEngine(testPolicy(t), testKeys).Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)

	assert.Equal(t, "", rec.values[tag.PatientID])
	assert.Equal(t, "", rec.values[tag.StudyDate])
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Equal(t, KindNonNumericFieldValue, w.Kind)
		assert.NotContains(t, w.Message, "MRN-5521")
	}
}

func TestApplyOverrideIDWinsForStudyField(t *testing.T) {
	p, err := policy.New([]policy.Rule{
		{Tag: tag.StudyID, Action: policy.ReplaceWithShiftedID},
	})
	require.NoError(t, err)

	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "0050",
		tag.StudyID:         "42",
	})
	res, err := NewEngine(p, testKeys).Apply(rec, Request{SourceContext: "d", OverrideID: "STUDY-A"})
	require.NoError(t, err)

	assert.Equal(t, "STUDY-A", rec.values[tag.StudyID])
	assert.Equal(t, "3383", res.DummyID)
}

func TestApplyFailedSetBlanksField(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "0050",
		tag.PatientID:       "123",
	})
	rec.failOn = map[tag.Tag]bool{tag.PatientID: true}

	res, err := NewEngine(testPolicy(t), testKeys).Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)
	assert.Equal(t, "", rec.values[tag.PatientID])
	assert.NotEmpty(t, res.Warnings)
}

func TestRemoveIsIdempotent(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "0050",
		tag.PatientName:     "DOE^JOHN",
	})
	engine := NewEngine(testPolicy(t), testKeys)

	_, err := engine.Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)
	_, err = engine.Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)

	assert.Equal(t, "", rec.values[tag.PatientName])
}

// Shifted fields move again on every pass, so records must be anonymized once.
func TestReplaceIsNotIdempotent(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "0050",
		tag.StudyDate:       "20180607",
	})
	engine := NewEngine(testPolicy(t), testKeys)

	first, err := engine.Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)
	second, err := engine.Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)

	assert.Equal(t, "3383", first.DummyID)
	assert.Equal(t, "6616", second.DummyID)
	assert.Equal(t, "6616", rec.values[tag.AccessionNumber])
	assert.NotEqual(t, "32421831", rec.values[tag.StudyDate])

	id, err := identity.Reveal(rec.values[tag.AccessionNumber], testKeys.ID)
	require.NoError(t, err)
	id, err = identity.Reveal(id, testKeys.ID)
	require.NoError(t, err)
	assert.Equal(t, "0050", id)
}

func TestKeepFieldsAreNeverTouched(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber:  "7",
		tag.StudyDescription: "BRAIN W/O",
		tag.PatientSex:       "F",
	})

	_, err := NewEngine(testPolicy(t), testKeys).Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)

	assert.Equal(t, []tag.Tag{tag.AccessionNumber}, rec.sets)
	assert.Equal(t, "BRAIN W/O", rec.values[tag.StudyDescription])
}

func TestWithPrimaryField(t *testing.T) {
	rec := newMemRecord(map[tag.Tag]string{
		tag.AccessionNumber: "ACC",
		tag.PatientID:       "0050",
	})

	res, err := NewEngine(testPolicy(t), testKeys, WithPrimaryField(tag.PatientID)).
		Apply(rec, Request{SourceContext: "d"})
	require.NoError(t, err)
	assert.Equal(t, "3383", res.DummyID)
}
