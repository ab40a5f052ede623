package policy

import "github.com/suyashkumar/dicom/pkg/tag"

// Default returns the built-in policy, based on the DICOM Basic Application
// Level Confidentiality Profile (PS3.15 Annex E).
func Default() *Policy {
	p, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultRules returns the rules behind Default, in table order.
func DefaultRules() []Rule {
	var rules []Rule
	for _, t := range defaultReplace {
		rules = append(rules, Rule{Tag: t, Action: ReplaceWithShiftedID})
	}
	for _, t := range defaultReplaceDate {
		rules = append(rules, Rule{Tag: t, Action: ReplaceDate})
	}
	for _, t := range defaultRemove {
		rules = append(rules, Rule{Tag: t, Action: Remove})
	}
	return rules
}

// Numeric identifiers that must stay linkable.
var defaultReplace = []tag.Tag{
	tag.AccessionNumber,
	tag.PatientID,
	tag.StudyID,
	tag.OtherPatientIDs,
}

// YYYYMMDD dates, shifted with the date key.
var defaultReplaceDate = []tag.Tag{
	tag.StudyDate,
	tag.SeriesDate,
	tag.AcquisitionDate,
	tag.ContentDate,
	tag.InstanceCreationDate,
}

var defaultRemove = []tag.Tag{
	// Patient identifiers
	tag.PatientName,
	tag.PatientBirthDate,
	tag.PatientAge,
	// tag.PatientSex - KEPT for clinical relevance
	tag.PatientAddress,
	tag.PatientTelephoneNumbers,
	tag.OtherPatientIDsSequence,
	tag.PatientBirthTime,
	tag.PatientMotherBirthName,
	tag.MilitaryRank,
	tag.EthnicGroup,
	tag.PatientReligiousPreference,
	tag.PatientComments,

	// Times (dates are shifted instead)
	tag.StudyTime,
	tag.SeriesTime,
	tag.AcquisitionTime,
	tag.ContentTime,
	tag.InstanceCreationTime,

	// Institution information
	tag.InstitutionName,
	tag.InstitutionAddress,
	tag.InstitutionalDepartmentName,
	tag.StationName,

	// Physicians and operators
	tag.ReferringPhysicianName,
	tag.ReferringPhysicianAddress,
	tag.ReferringPhysicianTelephoneNumbers,
	tag.PerformingPhysicianName,
	tag.OperatorsName,
	tag.PhysiciansOfRecord,
	tag.NameOfPhysiciansReadingStudy,
	tag.RequestingPhysician,
	tag.ScheduledPerformingPhysicianName,

	// Other identifiers
	tag.RequestAttributesSequence,
	tag.PerformedProcedureStepID,
	tag.ScheduledProcedureStepID,
}
