// Package postgres owns pgx pool construction and per-query
// observability shared by the SQL-backed stores.
package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
)

// QueryObserver receives per-query metrics (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, outcome string, dur time.Duration) {
	f(ctx, outcome, dur)
}

type observerHolder struct{ QueryObserver }

var queryObserver atomic.Pointer[observerHolder]

// SetQueryObserver installs the process-wide query observer.
func SetQueryObserver(o QueryObserver) {
	queryObserver.Store(&observerHolder{o})
}

// NewPool connects to PostgreSQL with tracing and query logging wired in.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// otelpgx creates spans; the logging tracer wraps it for structured
	// query logs and the metrics observer.
	cfg.ConnConfig.Tracer = &loggingTracer{inner: otelpgx.NewTracer()}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

type ctxKey string

const ctxKeyStart ctxKey = "pgx.start"

type loggingTracer struct {
	inner pgx.QueryTracer
}

func (t *loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx = t.inner.TraceQueryStart(ctx, conn, data)
	return context.WithValue(ctx, ctxKeyStart, time.Now())
}

func (t *loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	t.inner.TraceQueryEnd(ctx, conn, data)

	var dur time.Duration
	if start, ok := ctx.Value(ctxKeyStart).(time.Time); ok {
		dur = time.Since(start)
	}

	if holder := queryObserver.Load(); holder != nil && holder.QueryObserver != nil && dur > 0 {
		outcome := "ok"
		if data.Err != nil {
			outcome = "error"
		}
		holder.ObserveQuery(ctx, outcome, dur)
	}

	if data.Err != nil {
		log.FromContext(ctx).Error(ctx, data.Err, "db query failed", "db.duration", dur.Seconds())
	}
}
