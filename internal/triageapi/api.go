// Package triageapi exposes the triage service over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/arogyalabs/sahay/internal/outbreak"
	"github.com/arogyalabs/sahay/internal/report"
	"github.com/arogyalabs/sahay/internal/triage"
)

// TriageService defines the business operations the API needs.
type TriageService interface {
	Analyze(ctx context.Context, r *report.SymptomReport) (*triage.Decision, error)
	Session(ctx context.Context, sessionID string) (*triage.Decision, bool, error)
	PatientHistory(ctx context.Context, patientID string) (*triage.HistoryReport, error)
	ActiveOutbreaks(ctx context.Context, p outbreak.Params) ([]outbreak.Cluster, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	svc     TriageService
	adminMW func(http.Handler) http.Handler
}

// New creates a new API handler. adminMW guards the aggregate reporting
// routes and may be nil to leave them open.
func New(logger log.Logger, svc TriageService, adminMW func(http.Handler) http.Handler) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:  logger,
		svc:     svc,
		adminMW: adminMW,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleAnalyze)
		r.Get("/sessions/{id}", a.handleGetSession)
		r.Get("/patients/{id}/history", a.handlePatientHistory)

		r.Group(func(r chi.Router) {
			if a.adminMW != nil {
				r.Use(a.adminMW)
			}
			r.Get("/outbreaks/active", a.handleActiveOutbreaks)
		})
	})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("sahay.session.id", id))

	d, ok, err := a.svc.Session(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get session", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (a *API) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hr, err := a.svc.PatientHistory(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get patient history", "patient_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, hr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
