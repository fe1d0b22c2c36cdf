package issues

import "errors"

// ErrOrderingViolation indicates the spatial service returned members of one
// cluster non-adjacently. Downstream emission would open a second report for
// the same physical cluster, so the run aborts instead.
var ErrOrderingViolation = errors.New("cluster rows not adjacent in spatial response")

// ErrUnknownKey indicates the spatial response referenced an issue key that
// was not part of the request batch.
var ErrUnknownKey = errors.New("spatial response references unknown issue key")

// ErrBadReportID indicates the reporting service returned a zero or negative
// id from a creation call.
var ErrBadReportID = errors.New("reporting service returned non-positive report id")

// ErrMissingDescription indicates an issue reached emission without the
// descriptive payload required to build the report message.
var ErrMissingDescription = errors.New("issue has no descriptive payload")
