// Package invariant verifies cross-stage data contracts between pipeline
// stages. A violated invariant is fatal to the run: the checker never
// repairs records or filters them out, it reports and the run aborts.
package invariant

import (
	"fmt"
	"strings"
)

// SampleLimit bounds how many offending record IDs a Violation carries.
// The count is always exact; the sample exists so the log line stays
// readable on mass violations.
const SampleLimit = 5

// Violation reports a failed invariant. It implements error and is
// treated as fatal by the orchestrator.
type Violation struct {
	Name           string   `json:"name"`
	OffendingCount int      `json:"offending_count"`
	Sample         []string `json:"sample"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("invariant %q violated by %d record(s), sample: [%s]",
		v.Name, v.OffendingCount, strings.Join(v.Sample, ", "))
}

// Check evaluates predicate against every record and returns nil when
// all hold, or a Violation carrying the exact offending count and a
// bounded ID sample. The input is never modified.
func Check[T any](name string, predicate func(*T) bool, id func(*T) string, records []T) *Violation {
	var v *Violation
	for i := range records {
		if predicate(&records[i]) {
			continue
		}
		if v == nil {
			v = &Violation{Name: name}
		}
		v.OffendingCount++
		if len(v.Sample) < SampleLimit {
			v.Sample = append(v.Sample, id(&records[i]))
		}
	}
	return v
}

// AsError converts a possibly-nil Violation to an error. A typed nil
// *Violation in an error value would read as non-nil; this keeps the
// nil-means-pass convention intact across the interface boundary.
func (v *Violation) AsError() error {
	if v == nil {
		return nil
	}
	return v
}
