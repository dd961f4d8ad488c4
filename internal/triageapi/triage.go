package triageapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arogyalabs/sahay/internal/outbreak"
	"github.com/arogyalabs/sahay/internal/report"
)

// triageRequest is the POST /api/v1/triage payload. Symptoms may be a
// single string or an array of strings.
type triageRequest struct {
	PatientID     string           `json:"patient_id"`
	Symptoms      json.RawMessage  `json:"symptoms"`
	PatientAge    int              `json:"patient_age"`
	PatientGender string           `json:"patient_gender"`
	Temperature   float64          `json:"temperature"`
	Severity      *float64         `json:"severity"`
	DurationDays  *int             `json:"duration_days"`
	Location      *report.Location `json:"location"`
}

func (req *triageRequest) symptomsText() (string, error) {
	if len(req.Symptoms) == 0 {
		return "", nil
	}

	var single string
	if err := json.Unmarshal(req.Symptoms, &single); err == nil {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(req.Symptoms, &many); err != nil {
		return "", err
	}
	return report.JoinSymptoms(many), nil
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	symptoms, err := req.symptomsText()
	if err != nil {
		http.Error(w, `{"error":"symptoms must be a string or an array of strings"}`, http.StatusBadRequest)
		return
	}

	sr := &report.SymptomReport{
		PatientID: req.PatientID,
		Symptoms:  symptoms,
		Profile: report.Profile{
			Age:         req.PatientAge,
			Gender:      report.Gender(strings.ToLower(req.PatientGender)),
			Temperature: req.Temperature,
		},
		Severity:     req.Severity,
		DurationDays: req.DurationDays,
		Location:     req.Location,
	}

	d, err := a.svc.Analyze(r.Context(), sr)
	if err != nil {
		if errors.Is(err, report.ErrEmptySymptoms) {
			http.Error(w, `{"error":"symptoms are required"}`, http.StatusBadRequest)
			return
		}
		a.logger.Error(r.Context(), err, "triage analysis failed", "patient_id", sr.PatientID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("sahay.session.id", d.SessionID),
		attribute.String("sahay.triage.urgency", string(d.Urgency)),
	)

	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleActiveOutbreaks(w http.ResponseWriter, r *http.Request) {
	params := outbreak.DefaultParams

	q := r.URL.Query()
	if v := q.Get("radius_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			http.Error(w, `{"error":"invalid radius_km"}`, http.StatusBadRequest)
			return
		}
		params.RadiusKm = f
	}
	if v := q.Get("window_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid window_hours"}`, http.StatusBadRequest)
			return
		}
		params.WindowHours = n
	}
	if v := q.Get("min_cases"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid min_cases"}`, http.StatusBadRequest)
			return
		}
		params.MinCases = n
	}

	clusters, err := a.svc.ActiveOutbreaks(r.Context(), params)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list active outbreaks")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if clusters == nil {
		clusters = []outbreak.Cluster{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clusters": clusters,
		"params":   params,
	})
}
