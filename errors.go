package toothconv

import (
	"sort"

	"github.com/pkg/errors"
)

// Conditions raised while converting. ErrMalformedInput is fatal, all others cause the affected
// record or image entry to be skipped.
var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrMissingImage      = errors.New("missing image")
	ErrInvalidClass      = errors.New("invalid class")
	ErrOutOfBounds       = errors.New("out of bounds")
	ErrMalformedGeometry = errors.New("malformed geometry")
	ErrDuplicateLabel    = errors.New("duplicate label file")
)

// Reason returns the summary bucket for err, i.e. the message of its condition sentinel, or
// "other" if err does not wrap one.
func Reason(err error) string {
	cause := errors.Cause(err)
	for _, c := range []error{ErrMalformedInput, ErrMissingImage, ErrInvalidClass, ErrOutOfBounds,
		ErrMalformedGeometry, ErrDuplicateLabel} {
		if cause == c {
			return c.Error()
		}
	}
	return "other"
}

// Summary counts the outcome of a conversion run.
type Summary struct {
	Images         int            // Image entries seen.
	Files          int            // Label files written.
	Records        int            // Annotation records seen.
	Written        int            // Label lines written (per format).
	Clamped        int            // Records whose corners were clamped into the image.
	SkippedImages  int            // Image entries skipped entirely.
	SkippedRecords int            // Records skipped.
	Reasons        map[string]int // Skip counts by Reason.
}

func (s *Summary) skip(err error, entry bool) {
	if s.Reasons == nil {
		s.Reasons = make(map[string]int)
	}
	s.Reasons[Reason(err)]++
	if entry {
		s.SkippedImages++
	} else {
		s.SkippedRecords++
	}
}

// ReasonKeys returns the keys of s.Reasons in lexical order.
func (s Summary) ReasonKeys() []string {
	keys := make([]string, 0, len(s.Reasons))
	for k := range s.Reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
