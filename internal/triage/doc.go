// Package triage implements the urgency triage decision core. It defines
// the Service (validation, persistence, dispatch), Engine (pipeline state
// machine), red-flag rule engine, trajectory analyzer, store interfaces,
// and domain models.
package triage
