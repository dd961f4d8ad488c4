package outbreak

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const (
	earthRadiusKm = 6371
	// kmPerDegreeLat approximates one degree of latitude.
	kmPerDegreeLat = 111

	maxStoredSymptomLen = 500
)

// symptomClusters are the fixed symptom pairs that boost similarity when
// present in both token sets.
var symptomClusters = [][]string{
	{"fever", "vomiting"},
	{"fever", "diarrhea"},
	{"cough", "fever"},
	{"rash", "fever"},
}

// Publisher receives every recorded event for downstream surveillance
// consumers. Publish failures never affect detection.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Detector records geotagged symptom events and answers outbreak queries
// against the corpus.
type Detector struct {
	store     Store
	publisher Publisher
	logger    log.Logger
	now       func() time.Time
}

// NewDetector creates a detector over the given store. publisher may be
// nil when no event feed is configured.
func NewDetector(store Store, publisher Publisher, logger log.Logger) *Detector {
	if logger == nil {
		logger = log.Nop()
	}
	return &Detector{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Record appends one event to the corpus. There is no deduplication: two
// identical reports produce two events. When a feed publisher is
// configured the event is also published; feed errors are logged and
// swallowed.
func (d *Detector) Record(ctx context.Context, lat, lng float64, symptoms string) error {
	if len(symptoms) > maxStoredSymptomLen {
		symptoms = symptoms[:maxStoredSymptomLen]
	}
	e := Event{
		CreatedAt: d.now().UTC(),
		Lat:       lat,
		Lng:       lng,
		Symptoms:  symptoms,
		Tokens:    Tokenize(symptoms),
	}

	if err := d.store.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert outbreak event: %w", err)
	}

	if d.publisher != nil {
		if err := publishEvent(ctx, d.publisher, e); err != nil {
			d.logger.Warn(ctx, "outbreak event feed publish failed", "error", err)
		}
	}
	return nil
}

// Detect checks whether the report at (lat, lng) sits inside a cluster of
// at least MinCases similar reports within RadiusKm and WindowHours.
func (d *Detector) Detect(ctx context.Context, lat, lng float64, symptoms string, p Params) (*Detection, error) {
	cutoff := d.now().UTC().Add(-time.Duration(p.WindowHours) * time.Hour)

	latDelta := p.RadiusKm / kmPerDegreeLat
	lngDelta := p.RadiusKm / math.Max(1, kmPerDegreeLat*math.Cos(lat*math.Pi/180))
	box := BBox{
		MinLat: lat - latDelta, MaxLat: lat + latDelta,
		MinLng: lng - lngDelta, MaxLng: lng + lngDelta,
	}

	candidates, err := d.store.QueryRange(ctx, box, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query outbreak events: %w", err)
	}

	target := Tokenize(symptoms)
	cases := 0
	for _, c := range candidates {
		if haversineKm(lat, lng, c.Lat, c.Lng) > p.RadiusKm {
			continue
		}
		if similarity(target, c.Tokens) >= p.SimilarityThreshold {
			cases++
		}
	}

	if cases < p.MinCases {
		return &Detection{Detected: false}, nil
	}
	return &Detection{
		Detected:          true,
		RadiusKm:          p.RadiusKm,
		Cases:             cases,
		WindowHours:       p.WindowHours,
		AlertMessage:      "Possible localized outbreak detected in your area.",
		RecommendedAction: "Notify local health officer and increase monitoring.",
		SymptomCluster:    target,
	}, nil
}

// ActiveClusters buckets all events in the window by coordinates rounded
// to two decimals (~1.1 km cells) and returns one cluster per bucket with
// at least MinCases events. This is a coarse aggregate view, cheaper than
// pairwise distance clustering, used for reporting rather than
// per-request detection.
func (d *Detector) ActiveClusters(ctx context.Context, p Params) ([]Cluster, error) {
	cutoff := d.now().UTC().Add(-time.Duration(p.WindowHours) * time.Hour)

	events, err := d.store.QueryRange(ctx, World, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query outbreak events: %w", err)
	}

	buckets := make(map[string][]Event)
	for _, e := range events {
		key := fmt.Sprintf("%.2f:%.2f", e.Lat, e.Lng)
		buckets[key] = append(buckets[key], e)
	}

	var clusters []Cluster
	for _, items := range buckets {
		if len(items) < p.MinCases {
			continue
		}
		var sumLat, sumLng float64
		counts := make(map[string]int)
		for _, e := range items {
			sumLat += e.Lat
			sumLng += e.Lng
			for _, t := range e.Tokens {
				counts[t]++
			}
		}
		clusters = append(clusters, Cluster{
			CenterLat:   sumLat / float64(len(items)),
			CenterLng:   sumLng / float64(len(items)),
			Cases:       len(items),
			RadiusKm:    p.RadiusKm,
			WindowHours: p.WindowHours,
			TopSymptoms: topTokens(counts, 5),
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Cases > clusters[j].Cases })
	return clusters, nil
}

// similarity blends token-set Jaccard overlap with a fixed-cluster bonus:
// 0.7*jaccard + 0.3 when any known symptom pair is a subset of both sets.
func similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	intersection := 0
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
		if _, ok := setA[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	jaccard := float64(intersection) / float64(union)

	clusterMatch := 0.0
	for _, cluster := range symptomClusters {
		if containsAll(setA, cluster) && containsAll(setB, cluster) {
			clusterMatch = 1.0
			break
		}
	}
	return 0.7*jaccard + 0.3*clusterMatch
}

func containsAll(set map[string]struct{}, tokens []string) bool {
	for _, t := range tokens {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// haversineKm is the great-circle distance between two points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func topTokens(counts map[string]int, n int) []string {
	type tc struct {
		token string
		count int
	}
	all := make([]tc, 0, len(counts))
	for t, c := range counts {
		all = append(all, tc{t, c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].token < all[j].token
	})
	if len(all) > n {
		all = all[:n]
	}
	tokens := make([]string, len(all))
	for i, t := range all {
		tokens[i] = t.token
	}
	return tokens
}
