package advisory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arogyalabs/sahay/internal/report"
	"github.com/arogyalabs/sahay/internal/triage"
)

// scriptedProvider returns the queued results in order, then repeats the
// last one.
type scriptedProvider struct {
	results []providerResult
	calls   int
}

type providerResult struct {
	raw *RawResult
	err error
}

func (p *scriptedProvider) Assess(_ context.Context, _ string, _ report.Profile) (*RawResult, error) {
	i := p.calls
	p.calls++
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	r := p.results[i]
	return r.raw, r.err
}

func strp(s string) *string { return &s }
func f64p(f float64) *float64 { return &f }

func goodRaw() *RawResult {
	return &RawResult{
		UrgencyLevel: strp("ROUTINE"),
		Confidence:   f64p(0.9),
		Reasoning:    strp("Sounds minor."),
		RedFlags:     []string{},
		CarePathway:  strp("PHC/CHC"),
	}
}

// newTestClient disables real sleeping and records requested delays.
func newTestClient(p Provider, cache Cache, hooks triage.AdvisoryHooks) (*Client, *[]time.Duration) {
	c := New(p, cache, DefaultConfig, nil, hooks)
	delays := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return c, delays
}

func TestAssess_Success(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{results: []providerResult{{raw: goodRaw()}}}
	c, delays := newTestClient(p, nil, triage.AdvisoryHooks{})

	a, err := c.Assess(context.Background(), "mild headache", report.Profile{Age: 30})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Urgency != triage.Routine {
		t.Errorf("Urgency = %q, want %q", a.Urgency, triage.Routine)
	}
	if a.Source != triage.SourceModel {
		t.Errorf("Source = %q, want %q", a.Source, triage.SourceModel)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
	if len(*delays) != 0 {
		t.Errorf("delays = %v, want none on first-attempt success", *delays)
	}
}

func TestAssess_RetryBackoff(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{results: []providerResult{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{raw: goodRaw()},
	}}
	c, delays := newTestClient(p, nil, triage.AdvisoryHooks{})

	a, err := c.Assess(context.Background(), "mild headache", report.Profile{})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Source != triage.SourceModel {
		t.Errorf("Source = %q, want model after eventual success", a.Source)
	}
	if p.calls != 3 {
		t.Errorf("provider calls = %d, want 3", p.calls)
	}

	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestAssess_FallbackAfterExhaustion(t *testing.T) {
	t.Parallel()

	fallbacks := 0
	p := &scriptedProvider{results: []providerResult{{err: errors.New("down")}}}
	c, _ := newTestClient(p, nil, triage.AdvisoryHooks{OnFallback: func() { fallbacks++ }})

	a, err := c.Assess(context.Background(), "high fever and vomiting", report.Profile{})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if p.calls != DefaultConfig.Retries {
		t.Errorf("provider calls = %d, want attempt budget %d", p.calls, DefaultConfig.Retries)
	}
	if fallbacks != 1 {
		t.Errorf("fallback hook calls = %d, want 1", fallbacks)
	}
	if a.Source != triage.SourceRules {
		t.Errorf("Source = %q, want %q", a.Source, triage.SourceRules)
	}
	if a.Urgency != triage.Urgent {
		t.Errorf("Urgency = %q, want fallback %q for fever", a.Urgency, triage.Urgent)
	}
	if a.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", a.Confidence)
	}
	// Fallback confidence is under 0.7, so the caution sentence applies.
	if !strings.Contains(a.Reasoning, cautionSentence) {
		t.Errorf("Reasoning = %q, want caution sentence appended", a.Reasoning)
	}
}

func TestAssess_InvalidResponseRetried(t *testing.T) {
	t.Parallel()

	missingField := goodRaw()
	missingField.CarePathway = nil
	badUrgency := goodRaw()
	badUrgency.UrgencyLevel = strp("PANIC")

	p := &scriptedProvider{results: []providerResult{
		{raw: missingField},
		{raw: badUrgency},
		{raw: goodRaw()},
	}}
	c, _ := newTestClient(p, nil, triage.AdvisoryHooks{})

	a, err := c.Assess(context.Background(), "mild headache", report.Profile{})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("provider calls = %d, want invalid payloads to ride the retry path", p.calls)
	}
	if a.Urgency != triage.Routine {
		t.Errorf("Urgency = %q, want %q", a.Urgency, triage.Routine)
	}
}

func TestAssess_CacheHitSkipsProvider(t *testing.T) {
	t.Parallel()

	hits := 0
	p := &scriptedProvider{results: []providerResult{{raw: goodRaw()}}}
	c, _ := newTestClient(p, NewMapCache(), triage.AdvisoryHooks{OnCacheHit: func() { hits++ }})
	ctx := context.Background()
	profile := report.Profile{Age: 30, Gender: "female"}

	first, err := c.Assess(ctx, "mild headache", profile)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	second, err := c.Assess(ctx, "mild headache", profile)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (second served from cache)", p.calls)
	}
	if hits != 1 {
		t.Errorf("cache hit hook calls = %d, want 1", hits)
	}
	if second.Urgency != first.Urgency || second.Reasoning != first.Reasoning {
		t.Errorf("cached assessment differs: %+v vs %+v", second, first)
	}

	// Different age is a different cache key.
	if _, err := c.Assess(ctx, "mild headache", report.Profile{Age: 31, Gender: "female"}); err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2 after profile change", p.calls)
	}
}

func TestAssess_SafetyForcesEmergency(t *testing.T) {
	t.Parallel()

	// Model is adversarially confident that chest pain is fine.
	raw := goodRaw()
	raw.UrgencyLevel = strp("SELF_CARE")
	raw.Confidence = f64p(0.99)
	p := &scriptedProvider{results: []providerResult{{raw: raw}}}
	c, _ := newTestClient(p, nil, triage.AdvisoryHooks{})

	a, err := c.Assess(context.Background(), "slight chest pain", report.Profile{Age: 30})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Urgency != triage.Emergency {
		t.Errorf("Urgency = %q, want safety-forced %q", a.Urgency, triage.Emergency)
	}
}

func TestAssess_DeniedTermsStripped(t *testing.T) {
	t.Parallel()

	raw := goodRaw()
	raw.Reasoning = strp("No sign of self-harm or violence here.")
	p := &scriptedProvider{results: []providerResult{{raw: raw}}}
	c, _ := newTestClient(p, nil, triage.AdvisoryHooks{})

	a, err := c.Assess(context.Background(), "mild headache", report.Profile{})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	for _, term := range deniedTerms {
		if strings.Contains(a.Reasoning, term) {
			t.Errorf("Reasoning = %q, still contains %q", a.Reasoning, term)
		}
	}
}

func TestAssess_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	raw := goodRaw()
	raw.Confidence = f64p(3.7)
	p := &scriptedProvider{results: []providerResult{{raw: raw}}}
	c, _ := newTestClient(p, nil, triage.AdvisoryHooks{})

	a, err := c.Assess(context.Background(), "mild headache", report.Profile{})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", a.Confidence)
	}
}

func TestAssess_ContextCancellation(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{results: []providerResult{{err: errors.New("down")}}}
	c, _ := newTestClient(p, nil, triage.AdvisoryHooks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Assess(ctx, "fever", report.Profile{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Assess = %v, want context.Canceled, not the fallback", err)
	}
}

func TestFallback_Tiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symptoms string
		urgency  triage.UrgencyLevel
	}{
		{"sudden chest pain", triage.Emergency},
		{"trouble breathing", triage.Emergency},
		{"fever all week", triage.Urgent},
		{"vomiting", triage.Urgent},
		{"itchy arm", triage.Routine},
	}
	for _, tt := range tests {
		a := Fallback(tt.symptoms)
		if a.Urgency != tt.urgency {
			t.Errorf("Fallback(%q).Urgency = %q, want %q", tt.symptoms, a.Urgency, tt.urgency)
		}
		if a.CarePathway != "PHC/CHC" {
			t.Errorf("CarePathway = %q, want PHC/CHC", a.CarePathway)
		}
	}
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	got := CacheKey("fever", report.Profile{Age: 30, Gender: "female"})
	if got != "fever|30|female" {
		t.Errorf("CacheKey = %q, want fever|30|female", got)
	}
}
