// Package pgstore provides a PostgreSQL implementation of outbreak.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arogyalabs/sahay/internal/outbreak"
)

var tracer = otel.Tracer("github.com/arogyalabs/sahay/internal/outbreak/pgstore")

//go:embed schema.sql
var schema string

// Store persists the outbreak event corpus in PostgreSQL. Rows are
// append-only; reads are time+bounding-box range scans.
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

// Insert appends one event.
func (s *Store) Insert(ctx context.Context, e outbreak.Event) error {
	ctx, span := tracer.Start(ctx, "pgstore.Insert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	tokens, err := json.Marshal(e.Tokens)
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal tokens: %w", err))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO outbreak_events (created_at, lat, lng, symptoms_text, symptoms_tokens)
		VALUES ($1,$2,$3,$4,$5)`,
		e.CreatedAt, e.Lat, e.Lng, e.Symptoms, tokens,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert event: %w", err))
	}
	return nil
}

// QueryRange returns events inside the box created at or after since.
func (s *Store) QueryRange(ctx context.Context, box outbreak.BBox, since time.Time) ([]outbreak.Event, error) {
	ctx, span := tracer.Start(ctx, "pgstore.QueryRange", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT created_at, lat, lng, symptoms_text, symptoms_tokens
		FROM outbreak_events
		WHERE created_at >= $1
		  AND lat BETWEEN $2 AND $3
		  AND lng BETWEEN $4 AND $5`

	rows, err := s.pool.Query(ctx, query, since, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	var events []outbreak.Event
	for rows.Next() {
		var (
			e      outbreak.Event
			tokens []byte
		)
		if err := rows.Scan(&e.CreatedAt, &e.Lat, &e.Lng, &e.Symptoms, &tokens); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan event row: %w", err))
		}
		if err := json.Unmarshal(tokens, &e.Tokens); err != nil {
			return nil, spanErr(span, fmt.Errorf("unmarshal tokens: %w", err))
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("event rows: %w", err))
	}
	return events, nil
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
