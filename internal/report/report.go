// Package report defines the inbound symptom report and its
// normalization rules. Every pipeline entry point goes through
// Normalize before any clinical logic runs.
package report

import (
	"strings"

	"github.com/linnemanlabs/go-core/xerrors"
)

// ErrEmptySymptoms is the only validation error a report can produce.
var ErrEmptySymptoms = xerrors.New("symptoms are required")

// AnonymousPatientID is assigned when a report carries no patient id.
const AnonymousPatientID = "anonymous"

// maxSeverity is the top of the patient-facing 0-10 severity scale.
const maxSeverity = 10

// Gender is free-form but lower-cased on input.
type Gender string

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are inside the WGS84 envelope.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Profile carries the demographic fields the rule set keys on. Missing
// numeric values stay zero, which never satisfies a rule predicate.
type Profile struct {
	Age          int
	Gender       Gender
	Temperature  float64
	DurationDays int
}

// SymptomReport is one triage request after transport decoding.
type SymptomReport struct {
	PatientID string
	Symptoms  string
	Profile   Profile

	// Severity is the patient's 0-10 self rating, nil when not given.
	Severity *float64
	// DurationDays is how long the symptoms have lasted, nil when not given.
	DurationDays *int

	// Location is optional; without it the outbreak stage is skipped.
	Location *Location
}

// Sanitize strips characters with injection potential and trims
// surrounding whitespace.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ';', '<', '>', '$', '`':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// JoinSymptoms flattens a symptom list into the canonical comma-joined
// text form, dropping empty items.
func JoinSymptoms(items []string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			parts = append(parts, item)
		}
	}
	return strings.Join(parts, ", ")
}

// Normalize sanitizes the report in place and fills defaults: a missing
// patient id becomes AnonymousPatientID and an invalid location is
// dropped rather than rejected. Returns ErrEmptySymptoms when nothing
// remains of the symptom text.
func (r *SymptomReport) Normalize() error {
	r.Symptoms = Sanitize(r.Symptoms)
	if r.Symptoms == "" {
		return ErrEmptySymptoms
	}

	r.PatientID = strings.TrimSpace(r.PatientID)
	if r.PatientID == "" {
		r.PatientID = AnonymousPatientID
	}

	if r.Location != nil && !r.Location.Valid() {
		r.Location = nil
	}

	if r.DurationDays != nil && r.Profile.DurationDays == 0 {
		r.Profile.DurationDays = *r.DurationDays
	}
	return nil
}

// SeverityScore returns the self rating normalized to [0,1], or false
// when the patient gave none.
func (r *SymptomReport) SeverityScore() (float64, bool) {
	if r.Severity == nil {
		return 0, false
	}
	s := *r.Severity / maxSeverity
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return s, true
}
