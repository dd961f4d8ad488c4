// Package pgstore provides PostgreSQL implementations of
// triage.HistoryStore and triage.SessionStore.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arogyalabs/sahay/internal/triage"
)

var tracer = otel.Tracer("github.com/arogyalabs/sahay/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage sessions and patient history in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// History returns a patient's entries no older than maxAge, oldest first.
func (s *Store) History(ctx context.Context, patientID string, maxAge time.Duration) ([]triage.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.History", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT created_at, symptoms, urgency_level, severity_score, reported_duration_days
		FROM patient_history
		WHERE patient_id = $1 AND created_at >= $2
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, patientID, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query history: %w", err))
	}
	defer rows.Close()

	var entries []triage.HistoryEntry
	for rows.Next() {
		var e triage.HistoryEntry
		if err := rows.Scan(&e.CreatedAt, &e.Symptoms, &e.Urgency, &e.Severity, &e.DurationDays); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan history row: %w", err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("history rows: %w", err))
	}
	return entries, nil
}

// Append inserts the entry and prunes rows older than the retention
// window in the same transaction.
func (s *Store) Append(ctx context.Context, patientID string, entry triage.HistoryEntry) error {
	ctx, span := tracer.Start(ctx, "pgstore.Append", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	_, err = tx.Exec(ctx,
		`INSERT INTO patient_history
			(patient_id, created_at, symptoms, urgency_level, severity_score, reported_duration_days)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		patientID, entry.CreatedAt, entry.Symptoms, string(entry.Urgency), entry.Severity, entry.DurationDays,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert history: %w", err))
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM patient_history WHERE patient_id = $1 AND created_at < $2`,
		patientID, time.Now().UTC().Add(-triage.HistoryWindow),
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("prune history: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Save inserts a finalized decision.
func (s *Store) Save(ctx context.Context, d *triage.Decision) error {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	redFlags, err := json.Marshal(d.RedFlags)
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal red flags: %w", err))
	}
	followUps, err := json.Marshal(d.FollowUpQuestions)
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal follow-up questions: %w", err))
	}

	var trajectory, alert []byte
	if d.Trajectory != nil {
		if trajectory, err = json.Marshal(d.Trajectory); err != nil {
			return spanErr(span, fmt.Errorf("marshal trajectory: %w", err))
		}
	}
	if d.Outbreak != nil {
		if alert, err = json.Marshal(d.Outbreak); err != nil {
			return spanErr(span, fmt.Errorf("marshal community alert: %w", err))
		}
	}

	query := `INSERT INTO triage_sessions (
		id, patient_id, symptoms, urgency_level, confidence, reasoning, action,
		red_flags, care_pathway, follow_up_questions, source, disclaimer,
		trajectory, community_alert, location_lat, location_lng,
		ai_model, analyzed_at, duration_s
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	_, err = s.pool.Exec(ctx, query,
		d.SessionID, d.PatientID, d.Symptoms, string(d.Urgency), d.Confidence, d.Reasoning, d.Action,
		redFlags, d.CarePathway, followUps, string(d.Source), d.Disclaimer,
		trajectory, alert, d.LocationLat, d.LocationLng,
		d.Model, d.AnalyzedAt, d.Duration,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert session: %w", err))
	}
	return nil
}

// Get retrieves a decision by session id.
func (s *Store) Get(ctx context.Context, sessionID string) (*triage.Decision, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT id, patient_id, symptoms, urgency_level, confidence, reasoning, action,
		red_flags, care_pathway, follow_up_questions, source, disclaimer,
		trajectory, community_alert, location_lat, location_lng,
		ai_model, analyzed_at, duration_s
	FROM triage_sessions WHERE id = $1`

	var (
		d                 triage.Decision
		redFlags          []byte
		followUps         []byte
		trajectory, alert []byte
	)
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&d.SessionID, &d.PatientID, &d.Symptoms, &d.Urgency, &d.Confidence, &d.Reasoning, &d.Action,
		&redFlags, &d.CarePathway, &followUps, &d.Source, &d.Disclaimer,
		&trajectory, &alert, &d.LocationLat, &d.LocationLng,
		&d.Model, &d.AnalyzedAt, &d.Duration,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, spanErr(span, fmt.Errorf("query session: %w", err))
	}

	if err := json.Unmarshal(redFlags, &d.RedFlags); err != nil {
		return nil, false, spanErr(span, fmt.Errorf("unmarshal red flags: %w", err))
	}
	if len(followUps) > 0 {
		if err := json.Unmarshal(followUps, &d.FollowUpQuestions); err != nil {
			return nil, false, spanErr(span, fmt.Errorf("unmarshal follow-up questions: %w", err))
		}
	}
	if len(trajectory) > 0 {
		if err := json.Unmarshal(trajectory, &d.Trajectory); err != nil {
			return nil, false, spanErr(span, fmt.Errorf("unmarshal trajectory: %w", err))
		}
	}
	if len(alert) > 0 {
		if err := json.Unmarshal(alert, &d.Outbreak); err != nil {
			return nil, false, spanErr(span, fmt.Errorf("unmarshal community alert: %w", err))
		}
	}
	return &d, true, nil
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
