// Package outbreak detects spatio-temporal clusters of similar symptom
// reports from a geotagged event corpus.
package outbreak

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Event is one geotagged symptom report. Events are append-only: the
// corpus grows with every located analysis and is never deduplicated.
type Event struct {
	CreatedAt time.Time `json:"created_at"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Symptoms  string    `json:"symptoms_text"`
	Tokens    []string  `json:"symptoms_tokens"`
}

// BBox is a coarse rectangular prefilter applied before precise distance
// computation.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// World covers the whole globe, used for aggregate cluster scans.
var World = BBox{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}

// Contains reports whether the point lies inside the box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Store is the persistence interface for the event corpus. Insertion
// order is irrelevant; reads are time+space range scans.
type Store interface {
	Insert(ctx context.Context, e Event) error
	QueryRange(ctx context.Context, box BBox, since time.Time) ([]Event, error)
}

// Detection is the outcome of a per-request outbreak check.
type Detection struct {
	Detected          bool     `json:"outbreak_detected"`
	RadiusKm          float64  `json:"radius_km,omitempty"`
	Cases             int      `json:"cases,omitempty"`
	WindowHours       int      `json:"window_hours,omitempty"`
	AlertMessage      string   `json:"alert_message,omitempty"`
	RecommendedAction string   `json:"recommended_action,omitempty"`
	SymptomCluster    []string `json:"symptom_cluster,omitempty"`
}

// Cluster is one aggregate grid cell from an active-outbreak scan.
type Cluster struct {
	CenterLat   float64  `json:"center_lat"`
	CenterLng   float64  `json:"center_lng"`
	Cases       int      `json:"cases"`
	RadiusKm    float64  `json:"radius_km"`
	WindowHours int      `json:"window_hours"`
	TopSymptoms []string `json:"top_symptoms"`
}

// Params tune a detection or cluster scan.
type Params struct {
	RadiusKm            float64
	WindowHours         int
	MinCases            int
	SimilarityThreshold float64
}

// DefaultParams are the per-request detection defaults.
var DefaultParams = Params{
	RadiusKm:            5,
	WindowHours:         48,
	MinCases:            15,
	SimilarityThreshold: 0.45,
}

// Tokenize splits symptom text on whitespace, commas, and pipes,
// lower-cases it, and drops empties. The result is a sorted token set.
func Tokenize(symptoms string) []string {
	text := strings.ToLower(symptoms)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '|'
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			set[f] = struct{}{}
		}
	}

	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}
