// Package audit implements the catalog checks: duplicate detection over a
// product's uniqueness key and input/output accountability reconciliation.
package audit

import "errors"

// ErrValidationFailed marks a run that completed but found problems, so
// callers can distinguish bad data from tool failure.
var ErrValidationFailed = errors.New("validation failed")
