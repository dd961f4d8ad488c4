package triage

import (
	"time"

	"github.com/arogyalabs/sahay/internal/outbreak"
)

// UrgencyLevel is one of the four ordered care tiers.
type UrgencyLevel string

const (
	SelfCare  UrgencyLevel = "SELF_CARE"
	Routine   UrgencyLevel = "ROUTINE"
	Urgent    UrgencyLevel = "URGENT"
	Emergency UrgencyLevel = "EMERGENCY"
)

// urgencyOrder defines the escalation scale, least to most urgent.
var urgencyOrder = []UrgencyLevel{SelfCare, Routine, Urgent, Emergency}

// Valid reports whether u is one of the four known tiers.
func (u UrgencyLevel) Valid() bool {
	for _, level := range urgencyOrder {
		if u == level {
			return true
		}
	}
	return false
}

func (u UrgencyLevel) rank() int {
	for i, level := range urgencyOrder {
		if u == level {
			return i
		}
	}
	return -1
}

// Escalate returns the next tier up. EMERGENCY stays EMERGENCY, and an
// unknown level is normalized to ROUTINE before escalating.
func (u UrgencyLevel) Escalate() UrgencyLevel {
	idx := u.rank()
	if idx < 0 {
		idx = Routine.rank()
	}
	if idx < len(urgencyOrder)-1 {
		idx++
	}
	return urgencyOrder[idx]
}

// Source records whether an assessment came from the remote model or the
// deterministic rule path.
type Source string

const (
	SourceModel Source = "model"
	SourceRules Source = "rule_based"
)

// Assessment is a validated advisory result, either from the remote
// reasoning service or the fallback classifier.
type Assessment struct {
	Urgency           UrgencyLevel `json:"urgency_level"`
	Confidence        float64      `json:"confidence"`
	Reasoning         string       `json:"reasoning"`
	RedFlags          []string     `json:"red_flags"`
	CarePathway       string       `json:"care_pathway"`
	FollowUpQuestions []string     `json:"follow_up_questions,omitempty"`
	Source            Source       `json:"source"`
}

// Trend is the direction of a patient's symptom-severity trajectory.
type Trend string

const (
	TrendWorsening Trend = "worsening"
	TrendStable    Trend = "stable"
	TrendImproving Trend = "improving"
)

// Trajectory summarizes a patient's recent severity history relative to
// the current report.
type Trajectory struct {
	HasHistory bool    `json:"has_history"`
	Trend      Trend   `json:"trend,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	DaysSpan   int     `json:"days,omitempty"`
	Sessions   int     `json:"sessions_count,omitempty"`
}

// HistoryEntry is one retained triage session for a patient. The store
// keeps at most 7 days of entries per patient; writes prune older rows.
type HistoryEntry struct {
	CreatedAt time.Time    `json:"created_at"`
	Symptoms  string       `json:"symptoms"`
	Urgency   UrgencyLevel `json:"urgency_level"`

	// Severity is the explicit 0-1 score captured with the session,
	// nil when the patient gave no self rating.
	Severity *float64 `json:"severity_score,omitempty"`
	// DurationDays captures the reported duration, nil when absent.
	DurationDays *int `json:"reported_duration_days,omitempty"`
}

// Decision is the finalized triage outcome returned to the caller.
type Decision struct {
	SessionID  string       `json:"session_id,omitempty"`
	PatientID  string       `json:"patient_id"`
	Urgency    UrgencyLevel `json:"urgency_level"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
	Action     string       `json:"action,omitempty"`
	RedFlags   []string     `json:"red_flags"`
	// CarePathway names the facility type to visit (PHC/CHC/Hospital/...).
	CarePathway       string   `json:"care_pathway,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	Source            Source   `json:"source"`
	Disclaimer        string   `json:"disclaimer,omitempty"`

	Trajectory *Trajectory         `json:"trajectory,omitempty"`
	Outbreak   *outbreak.Detection `json:"community_alert,omitempty"`

	Symptoms    string    `json:"symptoms"`
	LocationLat *float64  `json:"location_lat,omitempty"`
	LocationLng *float64  `json:"location_lng,omitempty"`
	Model       string    `json:"ai_model"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	Duration    float64   `json:"duration_seconds,omitempty"`
}

// clampConfidence keeps confidence inside [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
