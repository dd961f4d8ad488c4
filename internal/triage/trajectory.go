package triage

import (
	"context"
	"math"
	"strings"
	"time"
)

// severityMarkers is the fixed marker set used to derive a severity score
// from symptom text when no explicit rating was captured.
var severityMarkers = []string{"chest pain", "breathing", "unconscious", "high fever", "bleeding"}

// trendThreshold is how far the current score must deviate from the mean
// before the trend leaves "stable".
const trendThreshold = 0.15

// TrajectoryAnalyzer classifies a patient's short-term severity trend
// from the retained history window.
type TrajectoryAnalyzer struct {
	history HistoryStore
	now     func() time.Time
}

// NewTrajectoryAnalyzer creates an analyzer over the given history store.
func NewTrajectoryAnalyzer(history HistoryStore) *TrajectoryAnalyzer {
	return &TrajectoryAnalyzer{history: history, now: time.Now}
}

// Analyze fetches up to 7 days of history for the patient and compares it
// against the current report. With fewer than two historical entries it
// reports HasHistory=false and nothing else.
//
// explicitScore is the patient's normalized 0-1 self rating for the
// current report, explicitDays the reported duration; both may be nil.
func (a *TrajectoryAnalyzer) Analyze(ctx context.Context, patientID, symptoms string, explicitScore *float64, explicitDays *int) (Trajectory, error) {
	history, err := a.history.History(ctx, patientID, HistoryWindow)
	if err != nil {
		return Trajectory{}, err
	}
	if len(history) < 2 {
		return Trajectory{}, nil
	}

	scores := make([]float64, len(history))
	for i, entry := range history {
		if entry.Severity != nil {
			scores[i] = *entry.Severity
		} else {
			scores[i] = SeverityScore(entry.Symptoms)
		}
	}

	current := SeverityScore(symptoms)
	if explicitScore != nil {
		current = *explicitScore
	}

	trend, confidence := classifyTrend(scores, current)

	days := int(a.now().Sub(history[0].CreatedAt).Hours() / 24)
	if explicitDays != nil {
		days = *explicitDays
	}

	return Trajectory{
		HasHistory: true,
		Trend:      trend,
		Confidence: confidence,
		DaysSpan:   days,
		Sessions:   len(history),
	}, nil
}

// SeverityScore is the fraction of fixed severity markers present in the
// text, in [0,1]. Matching is case-insensitive substring.
func SeverityScore(symptoms string) float64 {
	lowered := strings.ToLower(symptoms)
	hits := 0
	for _, marker := range severityMarkers {
		if strings.Contains(lowered, marker) {
			hits++
		}
	}
	return float64(hits) / float64(len(severityMarkers))
}

// classifyTrend decides the direction from the historical scores plus the
// current one. Worsening when the last two historical scores and the
// current form a strictly increasing run, or when the current score sits
// more than the threshold above the overall mean; improving when it sits
// more than the threshold below.
func classifyTrend(history []float64, current float64) (Trend, float64) {
	sum := current
	for _, s := range history {
		sum += s
	}
	avg := sum / float64(len(history)+1)

	trend := TrendStable
	switch {
	case consecutiveWorsening(history, current):
		trend = TrendWorsening
	case current > avg+trendThreshold:
		trend = TrendWorsening
	case current < avg-trendThreshold:
		trend = TrendImproving
	}

	confidence := math.Min(0.95, math.Abs(current-avg)+0.5)
	return trend, confidence
}

func consecutiveWorsening(history []float64, current float64) bool {
	if len(history) < 2 {
		return false
	}
	a, b := history[len(history)-2], history[len(history)-1]
	return a < b && b < current
}
