package triage

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/arogyalabs/sahay/internal/outbreak"
	"github.com/arogyalabs/sahay/internal/report"
)

// Notifier delivers alerts for decisions that carry an outbreak signal.
type Notifier interface {
	Send(ctx context.Context, d *Decision) error
}

// HistoryReport is the 7-day session list for a patient plus the current
// trend direction.
type HistoryReport struct {
	Trend    Trend          `json:"trend"`
	Sessions []HistoryEntry `json:"sessions"`
}

// Service is the business boundary for triage operations: input
// validation, pipeline dispatch, session persistence, notification.
type Service struct {
	engine    *Engine
	sessions  SessionStore
	history   HistoryStore
	outbreaks *outbreak.Detector
	notifier  Notifier
	logger    log.Logger
	metrics   *Metrics
}

// NewService creates a triage service. notifier and metrics may be nil.
func NewService(engine *Engine, sessions SessionStore, history HistoryStore, outbreaks *outbreak.Detector, notifier Notifier, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		engine:    engine,
		sessions:  sessions,
		history:   history,
		outbreaks: outbreaks,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
	}
}

// Analyze validates the report, runs the pipeline, and persists the
// decision. A persistence failure is logged and swallowed: the decision
// comes back with an empty session id. The only validation error is
// report.ErrEmptySymptoms.
func (s *Service) Analyze(ctx context.Context, r *report.SymptomReport) (*Decision, error) {
	if err := r.Normalize(); err != nil {
		return nil, err
	}

	d, err := s.engine.Run(ctx, r)
	if err != nil {
		return nil, err
	}

	d.SessionID = ulid.Make().String()
	if err := s.sessions.Save(ctx, d); err != nil {
		s.logger.Error(ctx, err, "triage session persistence failed", "patient_id", d.PatientID)
		s.metrics.observeSessionSaveFailure()
		d.SessionID = ""
	}

	if s.notifier != nil && d.Outbreak != nil {
		// Notification is best-effort and must not hold up the response.
		go func(d *Decision) {
			ctx := context.WithoutCancel(ctx)
			if err := s.notifier.Send(ctx, d); err != nil {
				s.logger.Warn(ctx, "outbreak notification failed", "error", err)
			}
		}(d)
	}

	s.logger.Info(ctx, "triage decision",
		"patient_id", d.PatientID,
		"urgency", string(d.Urgency),
		"source", string(d.Source),
		"session_id", d.SessionID,
		"duration", d.Duration,
	)
	return d, nil
}

// Session retrieves a persisted decision by session id.
func (s *Service) Session(ctx context.Context, sessionID string) (*Decision, bool, error) {
	return s.sessions.Get(ctx, sessionID)
}

// PatientHistory returns the retained session window for a patient with
// the trend of its severity scores.
func (s *Service) PatientHistory(ctx context.Context, patientID string) (*HistoryReport, error) {
	entries, err := s.history.History(ctx, patientID, HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	trend := TrendStable
	if len(entries) >= 2 {
		scores := make([]float64, len(entries))
		for i, e := range entries {
			if e.Severity != nil {
				scores[i] = *e.Severity
			} else {
				scores[i] = SeverityScore(e.Symptoms)
			}
		}
		trend, _ = classifyTrend(scores[:len(scores)-1], scores[len(scores)-1])
	}

	if entries == nil {
		entries = []HistoryEntry{}
	}
	return &HistoryReport{Trend: trend, Sessions: entries}, nil
}

// ActiveOutbreaks runs the aggregate grid scan over the event corpus.
func (s *Service) ActiveOutbreaks(ctx context.Context, p outbreak.Params) ([]outbreak.Cluster, error) {
	return s.outbreaks.ActiveClusters(ctx, p)
}
