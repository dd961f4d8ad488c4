package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/arogyalabs/sahay/internal/outbreak"
	"github.com/arogyalabs/sahay/internal/report"
)

// Advisor is the probabilistic symptom-reasoning collaborator. Assess
// must always return a usable assessment: transient remote failures are
// absorbed by its retry/fallback discipline and never surface here. The
// only expected error is context cancellation.
type Advisor interface {
	Assess(ctx context.Context, symptoms string, profile report.Profile) (*Assessment, error)
}

const (
	disclaimerText   = "Due to uncertainty in symptom assessment, we recommend consulting a health worker."
	defaultReasoning = "Based on your symptoms, medical consultation recommended."
)

// Engine runs the triage decision pipeline for one report:
//
//	red-flag check -> (emergency shortcut) | advisory call ->
//	trajectory merge -> outbreak merge -> finalize
//
// The engine is stateless and safe for concurrent use; shared state lives
// behind the injected stores.
type Engine struct {
	rules      *RuleEngine
	advisor    Advisor
	trajectory *TrajectoryAnalyzer
	history    HistoryStore
	outbreaks  *outbreak.Detector
	model      string
	logger     log.Logger
	metrics    *Metrics
	now        func() time.Time
}

// NewEngine creates a triage engine. metrics may be nil.
func NewEngine(rules *RuleEngine, advisor Advisor, history HistoryStore, outbreaks *outbreak.Detector, model string, logger log.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		rules:      rules,
		advisor:    advisor,
		trajectory: NewTrajectoryAnalyzer(history),
		history:    history,
		outbreaks:  outbreaks,
		model:      model,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Run produces a decision for a normalized report. The returned error is
// non-nil only when the context is canceled mid-pipeline; every domain
// failure (remote advisory, history, outbreak, persistence) is absorbed.
func (e *Engine) Run(ctx context.Context, r *report.SymptomReport) (*Decision, error) {
	start := e.now()

	L := e.logger.With("patient_id", r.PatientID)

	finding := e.rules.Evaluate(r.Symptoms, r.Profile)
	if finding.Rule != "" {
		e.metrics.observeRedFlag(finding)
		L.Info(ctx, "red flag matched",
			"rule", finding.Rule,
			"override", string(finding.Override),
			"shortcut", finding.Triggered,
		)
	}

	if finding.Triggered {
		d := e.emergencyShortcut(r, finding)
		d.Duration = e.now().Sub(start).Seconds()
		e.metrics.observeDecision(d, "shortcut")
		return d, nil
	}

	assessment, err := e.advisor.Assess(ctx, r.Symptoms, r.Profile)
	if err != nil {
		return nil, fmt.Errorf("advisory assess: %w", err)
	}

	d := &Decision{
		PatientID:         r.PatientID,
		Urgency:           assessment.Urgency,
		Confidence:        clampConfidence(assessment.Confidence),
		Reasoning:         assessment.Reasoning,
		RedFlags:          assessment.RedFlags,
		CarePathway:       assessment.CarePathway,
		FollowUpQuestions: assessment.FollowUpQuestions,
		Source:            assessment.Source,
		Symptoms:          r.Symptoms,
	}
	if r.Location != nil {
		lat, lng := r.Location.Lat, r.Location.Lng
		d.LocationLat, d.LocationLng = &lat, &lng
	}

	e.mergeTrajectory(ctx, r, d, L)
	e.mergeOutbreak(ctx, r, d, L)
	e.finalize(r, d, finding)
	e.appendHistory(ctx, r, d, L)

	d.Duration = e.now().Sub(start).Seconds()
	e.metrics.observeDecision(d, "full")
	return d, nil
}

// emergencyShortcut terminates the pipeline on an immediate-emergency
// rule match. No advisory call, no history append, no outbreak writes.
func (e *Engine) emergencyShortcut(r *report.SymptomReport, f Finding) *Decision {
	d := &Decision{
		PatientID:  r.PatientID,
		Urgency:    Emergency,
		Confidence: 1.0,
		Reasoning:  f.Reasoning,
		Action:     f.Action,
		RedFlags:   []string{f.Rule},
		Source:     SourceRules,
		Symptoms:   r.Symptoms,
		Model:      e.model,
		AnalyzedAt: e.now().UTC(),
	}
	if r.Location != nil {
		lat, lng := r.Location.Lat, r.Location.Lng
		d.LocationLat, d.LocationLng = &lat, &lng
	}
	return d
}

// mergeTrajectory folds the patient's severity trend into the decision.
// Trend escalation moves the urgency exactly one tier; history failures
// are logged and swallowed.
func (e *Engine) mergeTrajectory(ctx context.Context, r *report.SymptomReport, d *Decision, L log.Logger) {
	var explicitScore *float64
	if s, ok := r.SeverityScore(); ok {
		explicitScore = &s
	}

	traj, err := e.trajectory.Analyze(ctx, r.PatientID, r.Symptoms, explicitScore, r.DurationDays)
	if err != nil {
		L.Error(ctx, err, "trajectory analysis failed, continuing without history")
	} else if traj.HasHistory {
		t := traj
		d.Trajectory = &t
		if traj.Trend == TrendWorsening && traj.Confidence > 0.7 {
			d.Urgency = d.Urgency.Escalate()
			d.Reasoning = fmt.Sprintf("%s | Symptoms worsening over %d days", d.Reasoning, traj.DaysSpan)
			e.metrics.observeTrendEscalation()
			L.Info(ctx, "trend escalation applied",
				"trend", string(traj.Trend),
				"confidence", traj.Confidence,
				"urgency", string(d.Urgency),
			)
		}
	}

}

// appendHistory records the report with the finalized urgency, so
// override-adjusted decisions are what later trend analyses see.
// Failures are logged and swallowed.
func (e *Engine) appendHistory(ctx context.Context, r *report.SymptomReport, d *Decision, L log.Logger) {
	var explicitScore *float64
	if s, ok := r.SeverityScore(); ok {
		explicitScore = &s
	}

	entry := HistoryEntry{
		CreatedAt:    e.now().UTC(),
		Symptoms:     r.Symptoms,
		Urgency:      d.Urgency,
		Severity:     explicitScore,
		DurationDays: r.DurationDays,
	}
	if err := e.history.Append(ctx, r.PatientID, entry); err != nil {
		L.Error(ctx, err, "history append failed")
	}
}

// mergeOutbreak checks the report's neighborhood for an outbreak signal
// and grows the event corpus. Both steps are skipped for unlocated
// reports; both fail soft.
func (e *Engine) mergeOutbreak(ctx context.Context, r *report.SymptomReport, d *Decision, L log.Logger) {
	if r.Location == nil || e.outbreaks == nil {
		return
	}
	loc := *r.Location

	det, err := e.outbreaks.Detect(ctx, loc.Lat, loc.Lng, r.Symptoms, outbreak.DefaultParams)
	if err != nil {
		L.Error(ctx, err, "outbreak detection failed")
	} else if det.Detected {
		d.Outbreak = det
		d.Reasoning = fmt.Sprintf("%s | Alert: %s", d.Reasoning, det.AlertMessage)
		e.metrics.observeOutbreak()
		L.Info(ctx, "outbreak signal merged", "cases", det.Cases, "radius_km", det.RadiusKm)
	}

	// The corpus grows with every located analysis, detected or not.
	if err := e.outbreaks.Record(ctx, loc.Lat, loc.Lng, r.Symptoms); err != nil {
		L.Error(ctx, err, "outbreak event record failed")
	}
}

// finalize applies override precedence and the output guarantees. An
// urgent-care rule match wins over any model- or trend-derived urgency.
func (e *Engine) finalize(_ *report.SymptomReport, d *Decision, f Finding) {
	if f.Override != "" {
		d.Urgency = f.Override
		if f.Action != "" {
			d.Action = f.Action
		}
	}
	if !d.Urgency.Valid() {
		d.Urgency = Routine
	}
	d.Confidence = clampConfidence(d.Confidence)
	if d.Confidence < 0.7 {
		d.Disclaimer = disclaimerText
	}
	if d.Reasoning == "" {
		d.Reasoning = defaultReasoning
	}
	if d.RedFlags == nil {
		d.RedFlags = []string{}
	}
	d.Model = e.model
	d.AnalyzedAt = e.now().UTC()
}
