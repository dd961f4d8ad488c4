package triage

import (
	"strings"

	"github.com/arogyalabs/sahay/internal/report"
)

// RuleTier separates rules that terminate the pipeline from rules that
// only force the final urgency.
type RuleTier string

const (
	// TierImmediateEmergency rules short-circuit the pipeline entirely.
	TierImmediateEmergency RuleTier = "IMMEDIATE_EMERGENCY"
	// TierUrgentCare rules let the pipeline run but pin the final
	// urgency to URGENT at finalize time.
	TierUrgentCare RuleTier = "URGENT_CARE"
)

// RedFlagRule is one deterministic safety predicate. Rules are evaluated
// in declared order within their tier; the first match wins.
type RedFlagRule struct {
	Name      string
	Tier      RuleTier
	Match     func(symptoms string, p report.Profile) bool
	Reasoning string
	Action    string
}

// Finding is the outcome of a red-flag evaluation.
type Finding struct {
	// Triggered means an immediate-emergency rule matched and the
	// pipeline must short-circuit.
	Triggered bool
	Reasoning string
	Action    string
	// Override is the urgency forced by the matched rule, empty when
	// no rule matched.
	Override UrgencyLevel
	Rule     string
}

// RuleEngine evaluates an ordered red-flag rule set.
type RuleEngine struct {
	rules []RedFlagRule
}

// NewRuleEngine creates a rule engine over the given rules. Pass
// DefaultRules for the standard clinical set.
func NewRuleEngine(rules []RedFlagRule) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// Evaluate checks the immediate-emergency rules first, then the
// urgent-care rules. Missing numeric profile fields are zero-valued, so
// evaluation never fails on an incomplete profile.
func (e *RuleEngine) Evaluate(symptoms string, p report.Profile) Finding {
	lowered := strings.ToLower(symptoms)

	for _, tier := range []RuleTier{TierImmediateEmergency, TierUrgentCare} {
		for _, rule := range e.rules {
			if rule.Tier != tier || !rule.Match(lowered, p) {
				continue
			}
			f := Finding{
				Reasoning: rule.Reasoning,
				Action:    rule.Action,
				Rule:      rule.Name,
			}
			if tier == TierImmediateEmergency {
				f.Triggered = true
				f.Override = Emergency
			} else {
				f.Override = Urgent
			}
			return f
		}
	}
	return Finding{}
}

// DefaultRules is the standard rule set. Match functions receive
// lower-cased symptom text.
var DefaultRules = []RedFlagRule{
	{
		Name: "chest_pain_over_45",
		Tier: TierImmediateEmergency,
		Match: func(s string, p report.Profile) bool {
			return strings.Contains(s, "chest pain") && p.Age > 45
		},
		Reasoning: "Chest pain in adults over 45 may indicate heart attack.",
		Action:    "Go to emergency immediately - call ambulance.",
	},
	{
		Name: "breathing_blue_lips",
		Tier: TierImmediateEmergency,
		Match: func(s string, _ report.Profile) bool {
			return strings.Contains(s, "difficulty breathing") && strings.Contains(s, "blue lips")
		},
		Reasoning: "Blue lips with breathing difficulty indicates oxygen deprivation.",
		Action:    "Call ambulance immediately.",
	},
	{
		Name: "unconscious",
		Tier: TierImmediateEmergency,
		Match: func(s string, _ report.Profile) bool {
			return strings.Contains(s, "unconscious") || strings.Contains(s, "unresponsive")
		},
		Reasoning: "Loss of consciousness requires immediate medical attention.",
		Action:    "Call ambulance - do not delay.",
	},
	{
		Name: "severe_bleeding",
		Tier: TierImmediateEmergency,
		Match: func(s string, _ report.Profile) bool {
			return strings.Contains(s, "severe bleeding") || strings.Contains(s, "heavy bleeding")
		},
		Reasoning: "Severe bleeding can lead to shock.",
		Action:    "Apply pressure, call ambulance.",
	},
	{
		Name: "infant_high_fever",
		Tier: TierImmediateEmergency,
		Match: func(_ string, p report.Profile) bool {
			return p.Temperature > 103 && p.Age < 2
		},
		Reasoning: "High fever in infants can be dangerous.",
		Action:    "Visit emergency within 1 hour.",
	},
	{
		Name: "possible_meningitis",
		Tier: TierUrgentCare,
		Match: func(s string, _ report.Profile) bool {
			return strings.Contains(s, "fever") && strings.Contains(s, "headache") && strings.Contains(s, "stiff neck")
		},
		Reasoning: "Combination suggests possible meningitis.",
		Action:    "Visit clinic within 4 hours.",
	},
	{
		Name: "persistent_vomiting",
		Tier: TierUrgentCare,
		Match: func(s string, p report.Profile) bool {
			return strings.Contains(s, "vomiting") && p.DurationDays > 2
		},
		Reasoning: "Persistent vomiting can lead to dehydration.",
		Action:    "See doctor same day.",
	},
}
