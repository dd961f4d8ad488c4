// Package advisory wraps the remote symptom-reasoning service with the
// retry, validation, fallback, safety, and caching discipline the triage
// pipeline depends on. Assess always yields a usable assessment.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/arogyalabs/sahay/internal/report"
	"github.com/arogyalabs/sahay/internal/triage"
)

// Provider is a remote reasoning backend. It returns the raw, unvalidated
// response shape; the client owns validation and post-processing.
type Provider interface {
	Assess(ctx context.Context, symptoms string, profile report.Profile) (*RawResult, error)
}

// RawResult is the dynamically-shaped remote response. Pointer fields
// distinguish "absent" from zero values so validation can reject
// incomplete payloads.
type RawResult struct {
	UrgencyLevel      *string  `json:"urgency_level"`
	Confidence        *float64 `json:"confidence"`
	Reasoning         *string  `json:"reasoning"`
	RedFlags          []string `json:"red_flags"`
	CarePathway       *string  `json:"care_pathway"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// errIncomplete marks a response that failed schema validation; it rides
// the same retry path as transport errors.
var errIncomplete = errors.New("incomplete advisory response")

// Config tunes the retry loop.
type Config struct {
	// Retries is the total attempt budget, not additional attempts.
	Retries int
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// DefaultConfig matches the service defaults: 3 attempts, 10s each.
var DefaultConfig = Config{Retries: 3, Timeout: 10 * time.Second}

// emergencyTerms force EMERGENCY on any assessment, model or fallback.
var emergencyTerms = []string{"chest pain", "breathing", "unconscious"}

// deniedTerms are stripped from reasoning text before it reaches patients.
var deniedTerms = []string{"harm", "violence", "suicide"}

const cautionSentence = "If symptoms worsen or you feel unsafe, seek urgent care."

// Client implements triage.Advisor over a Provider.
type Client struct {
	provider Provider
	cache    Cache
	cfg      Config
	logger   log.Logger
	hooks    triage.AdvisoryHooks
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an advisory client. cache may be nil to disable caching,
// hooks fields may be nil.
func New(provider Provider, cache Cache, cfg Config, logger log.Logger, hooks triage.AdvisoryHooks) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultConfig.Retries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		hooks:    hooks,
		sleep:    sleepCtx,
	}
}

// Assess returns a post-processed assessment for the symptoms. Results
// are cached by (symptom text, age, gender); cache hits come back
// unchanged with no re-validation. On a miss the remote service is tried
// up to the attempt budget, then the deterministic fallback classifier
// takes over. The only returned error is context cancellation.
func (c *Client) Assess(ctx context.Context, symptoms string, profile report.Profile) (*triage.Assessment, error) {
	key := CacheKey(symptoms, profile)

	if c.cache != nil {
		if a, ok, err := c.cache.Get(ctx, key); err != nil {
			c.logger.Warn(ctx, "advisory cache read failed", "error", err)
		} else if ok {
			if c.hooks.OnCacheHit != nil {
				c.hooks.OnCacheHit()
			}
			return a, nil
		}
	}

	a, err := c.callWithRetry(ctx, symptoms, profile)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn(ctx, "advisory service unavailable, using fallback classifier", "error", err)
		if c.hooks.OnFallback != nil {
			c.hooks.OnFallback()
		}
		a = Fallback(symptoms)
	}

	applySafety(symptoms, a)

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, a); err != nil {
			c.logger.Warn(ctx, "advisory cache write failed", "error", err)
		}
	}
	return a, nil
}

// callWithRetry runs bounded attempts with exponential backoff. The delay
// before attempt n (n>=2) is 0.5*2^(n-2) seconds.
func (c *Client) callWithRetry(ctx context.Context, symptoms string, profile report.Profile) (*triage.Assessment, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 1 {
			delay := 500 * time.Millisecond << (attempt - 2)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		a, err := c.attempt(ctx, symptoms, profile)
		elapsed := time.Since(start).Seconds()

		if err != nil {
			c.observeAttempt("error", elapsed)
			c.logger.Warn(ctx, "advisory attempt failed",
				"attempt", attempt,
				"elapsed", elapsed,
				"error", err,
			)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		c.observeAttempt("ok", elapsed)
		return a, nil
	}
	return nil, fmt.Errorf("advisory service unavailable after %d attempts: %w", c.cfg.Retries, lastErr)
}

// attempt runs one bounded call. The provider call executes on its own
// goroutine so a hung transport cannot stall the request handler past the
// attempt timeout.
func (c *Client) attempt(ctx context.Context, symptoms string, profile report.Profile) (*triage.Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type outcome struct {
		raw *RawResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		raw, err := c.provider.Assess(ctx, symptoms, profile)
		ch <- outcome{raw, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return validate(out.raw)
	}
}

func (c *Client) observeAttempt(outcome string, seconds float64) {
	if c.hooks.OnAttempt != nil {
		c.hooks.OnAttempt(outcome, seconds)
	}
}

// validate enforces the response schema: urgency_level, confidence,
// reasoning, red_flags, and care_pathway are all required, and the
// urgency must be one of the four tiers. Anything else is a failure that
// rides the retry path.
func validate(raw *RawResult) (*triage.Assessment, error) {
	if raw == nil || raw.UrgencyLevel == nil || raw.Confidence == nil ||
		raw.Reasoning == nil || raw.RedFlags == nil || raw.CarePathway == nil {
		return nil, errIncomplete
	}
	urgency := triage.UrgencyLevel(*raw.UrgencyLevel)
	if !urgency.Valid() {
		return nil, fmt.Errorf("%w: unknown urgency %q", errIncomplete, *raw.UrgencyLevel)
	}

	confidence := *raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &triage.Assessment{
		Urgency:           urgency,
		Confidence:        confidence,
		Reasoning:         *raw.Reasoning,
		RedFlags:          raw.RedFlags,
		CarePathway:       *raw.CarePathway,
		FollowUpQuestions: raw.FollowUpQuestions,
		Source:            triage.SourceModel,
	}, nil
}

// Fallback is the deterministic 2-tier keyword classifier used when the
// remote service is exhausted.
func Fallback(symptoms string) *triage.Assessment {
	lowered := strings.ToLower(symptoms)

	urgency := triage.Routine
	reasoning := "Monitor symptoms and schedule a routine check-up."
	switch {
	case strings.Contains(lowered, "chest pain") || strings.Contains(lowered, "breathing"):
		urgency = triage.Emergency
		reasoning = "Seek emergency care immediately."
	case strings.Contains(lowered, "fever") || strings.Contains(lowered, "vomiting"):
		urgency = triage.Urgent
		reasoning = "See a doctor within 24 hours."
	}

	return &triage.Assessment{
		Urgency:           urgency,
		Confidence:        0.6,
		Reasoning:         reasoning,
		RedFlags:          []string{},
		CarePathway:       "PHC/CHC",
		FollowUpQuestions: []string{},
		Source:            triage.SourceRules,
	}
}

// applySafety post-processes every assessment, model or fallback, before
// caching: emergency terms force the top tier, low confidence appends the
// caution sentence, and denied terms are stripped from reasoning.
func applySafety(symptoms string, a *triage.Assessment) {
	lowered := strings.ToLower(symptoms)
	for _, term := range emergencyTerms {
		if strings.Contains(lowered, term) {
			a.Urgency = triage.Emergency
			break
		}
	}

	if a.Confidence < 0.7 {
		a.Reasoning = strings.TrimSpace(a.Reasoning + " " + cautionSentence)
	}

	for _, term := range deniedTerms {
		a.Reasoning = strings.ReplaceAll(a.Reasoning, term, "")
	}
	a.Reasoning = strings.TrimSpace(a.Reasoning)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
