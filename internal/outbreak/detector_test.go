package outbreak

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

type stubStore struct {
	events    []Event
	insertErr error
}

func (s *stubStore) Insert(_ context.Context, e Event) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.events = append(s.events, e)
	return nil
}

func (s *stubStore) QueryRange(_ context.Context, box BBox, since time.Time) ([]Event, error) {
	var out []Event
	for _, e := range s.events {
		if box.Contains(e.Lat, e.Lng) && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubPublisher struct {
	keys []string
	err  error
}

func (p *stubPublisher) Publish(_ context.Context, key string, _ []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}

func seedEvents(s *stubStore, n int, lat, lng float64, symptoms string, age time.Duration) {
	for i := 0; i < n; i++ {
		s.events = append(s.events, Event{
			CreatedAt: time.Now().UTC().Add(-age),
			Lat:       lat,
			Lng:       lng,
			Symptoms:  symptoms,
			Tokens:    Tokenize(symptoms),
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := Tokenize("Fever, vomiting | FEVER\nrash\r  cough")
	want := []string{"cough", "fever", "rash", "vomiting"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize = %v, want %v", got, want)
		}
	}

	if got := Tokenize("  , | "); len(got) != 0 {
		t.Errorf("Tokenize(separators) = %v, want empty", got)
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	const eps = 1e-9

	// Identical sets with a known cluster pair: full score.
	a := Tokenize("fever vomiting")
	if got := similarity(a, a); math.Abs(got-1.0) > eps {
		t.Errorf("similarity(identical cluster) = %v, want 1.0", got)
	}

	// Subset overlap with cluster pair in both: 0.7*(2/3) + 0.3.
	b := Tokenize("fever vomiting diarrhea")
	want := 0.7*(2.0/3.0) + 0.3
	if got := similarity(a, b); math.Abs(got-want) > eps {
		t.Errorf("similarity = %v, want %v", got, want)
	}

	// No overlap at all.
	if got := similarity(Tokenize("rash"), Tokenize("cough")); got != 0 {
		t.Errorf("similarity(disjoint) = %v, want 0", got)
	}

	// Empty sets never match.
	if got := similarity(nil, a); got != 0 {
		t.Errorf("similarity(empty) = %v, want 0", got)
	}
}

func TestHaversineKm(t *testing.T) {
	t.Parallel()

	if got := haversineKm(26.2, 81.2, 26.2, 81.2); got != 0 {
		t.Errorf("distance to self = %v, want 0", got)
	}

	// One degree of latitude is about 111 km.
	got := haversineKm(26.0, 81.0, 27.0, 81.0)
	if got < 110 || got > 112 {
		t.Errorf("1 degree latitude = %v km, want ~111", got)
	}
}

func TestDetect_AtThreshold(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	seedEvents(store, 15, 26.2, 81.2, "fever vomiting", time.Hour)
	d := NewDetector(store, nil, nil)

	det, err := d.Detect(context.Background(), 26.2, 81.2, "fever vomiting", DefaultParams)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !det.Detected {
		t.Fatal("Detected = false at exactly MinCases, want true")
	}
	if det.Cases != 15 {
		t.Errorf("Cases = %d, want 15", det.Cases)
	}
	if det.AlertMessage == "" || det.RecommendedAction == "" {
		t.Error("alert message and recommended action must be populated")
	}
}

func TestDetect_BelowThreshold(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	seedEvents(store, 14, 26.2, 81.2, "fever vomiting", time.Hour)
	d := NewDetector(store, nil, nil)

	det, err := d.Detect(context.Background(), 26.2, 81.2, "fever vomiting", DefaultParams)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if det.Detected {
		t.Errorf("Detected = true with %d cases, want false below MinCases", det.Cases)
	}
}

func TestDetect_ExcludesDistantAndStale(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	seedEvents(store, 10, 26.2, 81.2, "fever vomiting", time.Hour)
	// Outside the radius but inside the bounding box corner.
	seedEvents(store, 10, 26.245, 81.245, "fever vomiting", time.Hour)
	// Inside the radius but outside the window.
	seedEvents(store, 10, 26.2, 81.2, "fever vomiting", 72*time.Hour)
	d := NewDetector(store, nil, nil)

	det, err := d.Detect(context.Background(), 26.2, 81.2, "fever vomiting", DefaultParams)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if det.Detected {
		t.Errorf("Detected = true, want false: only %d nearby fresh cases", 10)
	}
}

func TestDetect_DissimilarSymptomsExcluded(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	seedEvents(store, 20, 26.2, 81.2, "broken ankle", time.Hour)
	d := NewDetector(store, nil, nil)

	det, err := d.Detect(context.Background(), 26.2, 81.2, "fever vomiting", DefaultParams)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if det.Detected {
		t.Error("Detected = true for dissimilar symptom reports, want false")
	}
}

func TestRecord_TruncatesAndPublishes(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	pub := &stubPublisher{}
	d := NewDetector(store, pub, nil)

	long := strings.Repeat("fever ", 200)
	if err := d.Record(context.Background(), 26.2, 81.2, long); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	if len(store.events[0].Symptoms) != maxStoredSymptomLen {
		t.Errorf("stored symptom len = %d, want truncated to %d", len(store.events[0].Symptoms), maxStoredSymptomLen)
	}
	if len(pub.keys) != 1 || pub.keys[0] != "26.20:81.20" {
		t.Errorf("published keys = %v, want [26.20:81.20]", pub.keys)
	}
}

func TestRecord_PublishFailureSwallowed(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	pub := &stubPublisher{err: errors.New("broker down")}
	d := NewDetector(store, pub, nil)

	if err := d.Record(context.Background(), 26.2, 81.2, "fever"); err != nil {
		t.Fatalf("Record = %v, want feed failure swallowed", err)
	}
	if len(store.events) != 1 {
		t.Errorf("events = %d, want 1", len(store.events))
	}
}

func TestRecord_InsertFailureSurfaces(t *testing.T) {
	t.Parallel()

	store := &stubStore{insertErr: errors.New("store down")}
	d := NewDetector(store, nil, nil)

	if err := d.Record(context.Background(), 26.2, 81.2, "fever"); err == nil {
		t.Error("Record = nil, want insert error surfaced")
	}
}

func TestActiveClusters(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	seedEvents(store, 20, 26.20, 81.20, "fever vomiting", time.Hour)
	seedEvents(store, 16, 40.70, -74.00, "cough fever", time.Hour)
	seedEvents(store, 3, 10.00, 10.00, "rash", time.Hour)
	d := NewDetector(store, nil, nil)

	clusters, err := d.ActiveClusters(context.Background(), DefaultParams)
	if err != nil {
		t.Fatalf("ActiveClusters: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2 (small bucket dropped)", len(clusters))
	}

	// Sorted by cases, largest first.
	if clusters[0].Cases != 20 || clusters[1].Cases != 16 {
		t.Errorf("cases = [%d, %d], want [20, 16]", clusters[0].Cases, clusters[1].Cases)
	}
	if math.Abs(clusters[0].CenterLat-26.20) > 1e-9 {
		t.Errorf("CenterLat = %v, want 26.20", clusters[0].CenterLat)
	}
	if len(clusters[0].TopSymptoms) != 2 {
		t.Errorf("TopSymptoms = %v, want the 2 distinct tokens", clusters[0].TopSymptoms)
	}
}

func TestTopTokens_Ordering(t *testing.T) {
	t.Parallel()

	counts := map[string]int{"fever": 5, "cough": 5, "rash": 2, "a": 1, "b": 1, "c": 1, "d": 1}
	got := topTokens(counts, 5)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// Count descending, token ascending on ties.
	if got[0] != "cough" || got[1] != "fever" || got[2] != "rash" {
		t.Errorf("topTokens = %v, want [cough fever rash ...]", got)
	}
}
