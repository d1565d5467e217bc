// Package models defines shared error variables for LeadPulse.
package models

import "errors"

// Error variables for better error handling and testability
var (
	// Transcript / segmentation input errors. These fail fast: no timeline is produced.
	ErrEmptyTranscript      = errors.New("transcript has no messages")
	ErrZeroDuration         = errors.New("transcript duration must be positive")
	ErrOverlapExceedsWindow = errors.New("overlap must be smaller than segment duration")

	// Scorer errors. After one retry the pipeline degrades to a fallback point
	// rather than surfacing these to the caller.
	ErrScorerUnavailable = errors.New("sentiment scorer unavailable")
	ErrScorerBadResponse = errors.New("sentiment scorer returned malformed response")

	// Rule validation errors.
	ErrEmptyRuleID             = errors.New("rule id cannot be empty")
	ErrNoTriggers              = errors.New("rule requires at least one trigger")
	ErrNoActions               = errors.New("rule requires at least one action")
	ErrUnknownTriggerKind      = errors.New("unknown trigger kind")
	ErrInvalidTriggerWeight    = errors.New("trigger weight must be in (0, 1]")
	ErrMissingTriggerParam     = errors.New("trigger is missing its kind-specific parameter")
	ErrUnknownActionKind       = errors.New("unknown action kind")
	ErrInvalidActionStatus     = errors.New("status_change action targets an unknown status")
	ErrMissingActionParam      = errors.New("action is missing its kind-specific parameter")
	ErrInvalidConstraintStatus = errors.New("constraint references an unknown status")

	// Execution errors.
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrConcurrencyConflict = errors.New("lead was modified concurrently")

	// Store errors.
	ErrLeadNotFound = errors.New("lead not found")
	ErrRuleNotFound = errors.New("rule not found")
)
