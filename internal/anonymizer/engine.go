package anonymizer

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-deidentify/internal/identity"
	"dicom-deidentify/internal/ledger"
	"dicom-deidentify/internal/policy"
)

// Record is a set of tagged fields the engine can inspect and mutate in place.
type Record interface {
	Tags() []tag.Tag
	Contains(t tag.Tag) bool
	TryGet(t tag.Tag) (string, bool)
	Set(t tag.Tag, value string) error
}

// Request carries the per-record context supplied by the caller.
type Request struct {
	Locator       string // input path, recorded in the audit entry
	SourceContext string // containing directory name, used when the primary field is not numeric
	OverrideID    string // written verbatim to the override field when set
}

// Result is the outcome of anonymizing one record.
type Result struct {
	Record   Record
	DummyID  string
	Entry    ledger.Entry
	Warnings []Warning
}

// Engine applies a policy to records. It holds no per-record state and is
// safe for concurrent use.
type Engine struct {
	policy        *policy.Policy
	keys          identity.ShiftKeys
	primaryField  tag.Tag
	overrideField tag.Tag
	logger        *log.Entry
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPrimaryField sets the field the dummy identifier is derived from.
func WithPrimaryField(t tag.Tag) EngineOption {
	return func(e *Engine) { e.primaryField = t }
}

// WithOverrideField sets the field Request.OverrideID is written to.
func WithOverrideField(t tag.Tag) EngineOption {
	return func(e *Engine) { e.overrideField = t }
}

// WithLogger sets the logger warnings are reported to.
func WithLogger(logger *log.Entry) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine. The accession number is the primary field and
// the study ID the override field unless changed by options.
func NewEngine(p *policy.Policy, keys identity.ShiftKeys, opts ...EngineOption) *Engine {
	e := &Engine{
		policy:        p,
		keys:          keys,
		primaryField:  tag.AccessionNumber,
		overrideField: tag.StudyID,
		logger:        log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply anonymizes rec in place and returns its dummy identifier together with
// the audit entry the caller should append to the ledger.
//
// Field problems never abort the record: a field due for shifting that does
// not hold digits is blanked and reported in Result.Warnings. Apply is not
// idempotent for shifted fields: a second call shifts them again.
func (e *Engine) Apply(rec Record, req Request) (Result, error) {
	if rec == nil {
		return Result{}, &Error{Kind: KindUnreadableRecord, Locator: req.Locator, Err: errors.New("no record")}
	}

	logger := e.logger.WithField("file", req.Locator)
	res := Result{Record: rec}
	warn := func(kind ErrorKind, format string, args ...interface{}) {
		w := Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
		res.Warnings = append(res.Warnings, w)
		logger.Warn(w.Message)
	}

	primary, err := e.resolvePrimary(rec, req, warn)
	if err != nil {
		return Result{}, err
	}

	dummy := primary
	if identity.IsNumeric(primary) {
		dummy, err = identity.Obfuscate(primary, e.keys.ID)
		if err != nil {
			return Result{}, &Error{Kind: KindInvalidInput, Locator: req.Locator, Err: err}
		}
	}
	logger.Debugf("Dummy ID %s", dummy)

	for _, t := range rec.Tags() {
		e.applyField(rec, t, warn)
	}

	if req.OverrideID != "" {
		if err := rec.Set(e.overrideField, req.OverrideID); err != nil {
			warn(KindInvalidInput, "could not write override identifier to %s: %v", e.overrideField, err)
		}
	}

	res.DummyID = dummy
	res.Entry = ledger.Entry{
		Image:         req.Locator,
		RealID:        primary,
		SourceContext: req.SourceContext,
		DummyID:       dummy,
	}
	return res, nil
}

// resolvePrimary picks the numeric primary field, falling back to the source
// context as a plain bucket label.
func (e *Engine) resolvePrimary(rec Record, req Request, warn func(ErrorKind, string, ...interface{})) (string, error) {
	value, ok := rec.TryGet(e.primaryField)
	value = identity.CleanValue(value)
	if ok && identity.IsNumeric(value) {
		return value, nil
	}

	if req.SourceContext == "" {
		return "", &Error{
			Kind:    KindUnresolvedIdentifier,
			Locator: req.Locator,
			Err:     fmt.Errorf("%s is not numeric and no fallback identifier is available", e.primaryField),
		}
	}

	warn(KindUnresolvedIdentifier,
		"%s is not numeric thus shifting is not supported. Use directory name %q instead.",
		e.primaryField, req.SourceContext)
	return req.SourceContext, nil
}

func (e *Engine) applyField(rec Record, t tag.Tag, warn func(ErrorKind, string, ...interface{})) {
	action := e.policy.ActionFor(t)
	if action == policy.Keep {
		return
	}
	value, ok := rec.TryGet(t)
	if !ok {
		return
	}

	var newValue string
	switch action {
	case policy.Remove:
		newValue = ""
	case policy.ReplaceWithShiftedID, policy.ReplaceDate:
		newValue = e.shiftField(t, action, identity.CleanValue(value), warn)
	}

	if err := rec.Set(t, newValue); err != nil {
		warn(KindInvalidInput, "could not update %s: %v", t, err)
		// Never leave PHI behind: try blanking instead.
		if newValue != "" {
			if err := rec.Set(t, ""); err != nil {
				warn(KindInvalidInput, "could not blank %s: %v", t, err)
			}
		}
	}
}

// shiftField returns the shifted value, or "" when value cannot be shifted.
func (e *Engine) shiftField(t tag.Tag, action policy.Action, value string, warn func(ErrorKind, string, ...interface{})) string {
	if value == "" {
		return ""
	}

	pattern := e.keys.ID
	if action == policy.ReplaceDate {
		pattern = e.keys.Date
	}

	shifted, err := identity.Obfuscate(value, pattern)
	if err != nil {
		warn(KindNonNumericFieldValue,
			"tag value of %s is not numeric thus shifting is not supported. Removing tag value instead.", t)
		return ""
	}
	return shifted
}
