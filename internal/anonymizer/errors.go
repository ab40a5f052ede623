package anonymizer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-record failure or warning.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindUnresolvedIdentifier
	KindNonNumericFieldValue
	KindUnreadableRecord
	KindWriteFailed
	KindAuditFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindUnresolvedIdentifier:
		return "unresolved identifier"
	case KindNonNumericFieldValue:
		return "non-numeric field value"
	case KindUnreadableRecord:
		return "unreadable record"
	case KindWriteFailed:
		return "write failed"
	case KindAuditFailed:
		return "audit failed"
	default:
		return "unknown"
	}
}

// ErrBatchPartialFailure is returned by ProcessFolder when at least one
// record failed. All other records were still processed.
var ErrBatchPartialFailure = errors.New("some records failed")

// Error is a hard failure for one record.
type Error struct {
	Kind    ErrorKind
	Locator string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Locator, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Locator, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Warning is a field-level problem that was recovered locally.
type Warning struct {
	Kind    ErrorKind
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}
