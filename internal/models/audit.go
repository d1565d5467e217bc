// Package models defines evaluation and audit record structures for LeadPulse.
package models

import "time"

// TriggerResult is the outcome of evaluating one trigger against a lead.
type TriggerResult struct {
	Kind       TriggerKind `json:"kind"`
	Weight     float64     `json:"weight"`
	Satisfied  bool        `json:"satisfied"`
	Confidence float64     `json:"confidence"` // in [0, 1]
}

// ActionResult is the outcome of executing one action of a fired rule.
type ActionResult struct {
	Action    Action `json:"action"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
	EventID   string `json:"event_id,omitempty"` // set by schedule_meeting on success
}

// RuleEvaluationResult is the append-only audit record of one (lead, rule)
// evaluation. ConstraintsPassed=false distinguishes "rule skipped" from
// "rule fired but an action failed".
type RuleEvaluationResult struct {
	ID                string          `json:"id"`
	LeadID            string          `json:"lead_id"`
	RuleID            string          `json:"rule_id"`
	ConstraintsPassed bool            `json:"constraints_passed"`
	TriggerResults    []TriggerResult `json:"trigger_results,omitempty"`
	FiringRatio       float64         `json:"firing_ratio"`
	Fired             bool            `json:"fired"`
	OnCooldown        bool            `json:"on_cooldown,omitempty"`
	ActionResults     []ActionResult  `json:"action_results,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// AuditRecord captures one executed action, success or failure, for the
// activity feed. Immutable once appended.
type AuditRecord struct {
	ID                 string     `json:"id"`
	LeadID             string     `json:"lead_id"`
	RuleID             string     `json:"rule_id"`
	Action             Action     `json:"action"`
	PreviousStatus     LeadStatus `json:"previous_status"`
	NewStatus          LeadStatus `json:"new_status"`
	Succeeded          bool       `json:"succeeded"`
	Error              string     `json:"error,omitempty"`
	TriggerConfidences []float64  `json:"trigger_confidences,omitempty"`
	Timestamp          time.Time  `json:"timestamp"`
}
