// Package models defines the declarative automation rule structures for LeadPulse.
package models

import "time"

// TriggerKind identifies one variant of the trigger union. The set is closed:
// evaluators switch exhaustively over these constants and reject anything else.
type TriggerKind string

const (
	// TriggerSentimentThreshold fires when the lead's sentiment score reaches a threshold.
	TriggerSentimentThreshold TriggerKind = "sentiment_threshold"
	// TriggerEngagementIncrease fires when engagement rose by at least a minimum amount.
	TriggerEngagementIncrease TriggerKind = "engagement_increase"
	// TriggerQualificationThreshold fires when the qualification score reaches a minimum.
	TriggerQualificationThreshold TriggerKind = "qualification_threshold"
	// TriggerTimeSinceContact fires when the lead has been quiet for a minimum number of days.
	TriggerTimeSinceContact TriggerKind = "time_since_contact"
	// TriggerCriticalMomentType fires when the latest timeline contains a moment of a given type.
	TriggerCriticalMomentType TriggerKind = "critical_moment_type"
)

// IsValidTriggerKind checks if the given trigger kind is supported.
func IsValidTriggerKind(k TriggerKind) bool {
	switch k {
	case TriggerSentimentThreshold, TriggerEngagementIncrease, TriggerQualificationThreshold,
		TriggerTimeSinceContact, TriggerCriticalMomentType:
		return true
	default:
		return false
	}
}

// Trigger is one weighted condition of a rule. Exactly the parameter fields
// for its Kind are meaningful; Validate enforces per-kind requirements.
type Trigger struct {
	Kind   TriggerKind `json:"kind"`
	Weight float64     `json:"weight"` // in (0, 1]

	// sentiment_threshold
	Threshold float64 `json:"threshold,omitempty"`
	// engagement_increase
	MinIncrease float64 `json:"min_increase,omitempty"`
	// qualification_threshold
	MinScore float64 `json:"min_score,omitempty"`
	// time_since_contact
	MinDays float64 `json:"min_days,omitempty"`
	// critical_moment_type
	MomentType CriticalMomentType `json:"moment_type,omitempty"`
}

// Validate checks the trigger's kind, weight and kind-specific parameters.
func (t Trigger) Validate() error {
	if !IsValidTriggerKind(t.Kind) {
		return ErrUnknownTriggerKind
	}
	if t.Weight <= 0 || t.Weight > 1 {
		return ErrInvalidTriggerWeight
	}
	switch t.Kind {
	case TriggerSentimentThreshold:
		if t.Threshold <= 0 {
			return ErrMissingTriggerParam
		}
	case TriggerEngagementIncrease:
		if t.MinIncrease <= 0 {
			return ErrMissingTriggerParam
		}
	case TriggerQualificationThreshold:
		if t.MinScore <= 0 {
			return ErrMissingTriggerParam
		}
	case TriggerTimeSinceContact:
		if t.MinDays <= 0 {
			return ErrMissingTriggerParam
		}
	case TriggerCriticalMomentType:
		if t.MomentType == "" {
			return ErrMissingTriggerParam
		}
	}
	return nil
}

// ActionKind identifies one variant of the action union.
type ActionKind string

const (
	// ActionStatusChange transitions the lead to a new lifecycle status.
	ActionStatusChange ActionKind = "status_change"
	// ActionScheduleMeeting requests a follow-up via the scheduling capability.
	ActionScheduleMeeting ActionKind = "schedule_meeting"
	// ActionSendNotification dispatches a templated notification on a channel.
	ActionSendNotification ActionKind = "send_notification"
)

// IsValidActionKind checks if the given action kind is supported.
func IsValidActionKind(k ActionKind) bool {
	switch k {
	case ActionStatusChange, ActionScheduleMeeting, ActionSendNotification:
		return true
	default:
		return false
	}
}

// Action is one side effect executed when a rule fires. Exactly the fields
// for its Kind are meaningful.
type Action struct {
	Kind ActionKind `json:"kind"`

	// status_change
	NewStatus LeadStatus `json:"new_status,omitempty"`
	// schedule_meeting
	FollowUpType string `json:"follow_up_type,omitempty"`
	Priority     string `json:"priority,omitempty"`
	// send_notification
	Channel  string `json:"channel,omitempty"`
	Template string `json:"template,omitempty"`
}

// Validate checks the action's kind and kind-specific parameters.
func (a Action) Validate() error {
	if !IsValidActionKind(a.Kind) {
		return ErrUnknownActionKind
	}
	switch a.Kind {
	case ActionStatusChange:
		if !IsValidLeadStatus(a.NewStatus) {
			return ErrInvalidActionStatus
		}
	case ActionScheduleMeeting:
		if a.FollowUpType == "" {
			return ErrMissingActionParam
		}
	case ActionSendNotification:
		if a.Channel == "" || a.Template == "" {
			return ErrMissingActionParam
		}
	}
	return nil
}

// RuleConstraints gate trigger evaluation entirely: a lead failing any
// constraint skips the rule with no side effects. Operators are expected to
// list terminal statuses in ExcludedStatuses; the engine does not hardcode
// terminality.
type RuleConstraints struct {
	MinScore         *float64     `json:"min_score,omitempty"`
	RequiredStatuses []LeadStatus `json:"required_statuses,omitempty"`
	ExcludedStatuses []LeadStatus `json:"excluded_statuses,omitempty"`
}

// RuleStats are rolling per-rule statistics maintained for operator tuning.
type RuleStats struct {
	TimesTriggered int     `json:"times_triggered"`
	SuccessRate    float64 `json:"success_rate"`   // successes / attempts
	AverageImpact  float64 `json:"average_impact"` // mean qualification-score delta per firing
}

// Rule is one automation policy: constraints, weighted triggers and ordered
// actions. FiringThreshold and CooldownHours override the engine defaults
// when set.
type Rule struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Triggers    []Trigger       `json:"triggers"`
	Actions     []Action        `json:"actions"`
	Constraints RuleConstraints `json:"constraints"`
	IsActive    bool            `json:"is_active"`

	FiringThreshold *float64 `json:"firing_threshold,omitempty"`
	CooldownHours   *int     `json:"cooldown_hours,omitempty"`

	Stats     RuleStats `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate performs comprehensive validation on a Rule structure.
func (r Rule) Validate() error {
	if r.ID == "" {
		return ErrEmptyRuleID
	}
	if len(r.Triggers) == 0 {
		return ErrNoTriggers
	}
	if len(r.Actions) == 0 {
		return ErrNoActions
	}
	for _, t := range r.Triggers {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	for _, s := range r.Constraints.RequiredStatuses {
		if !IsValidLeadStatus(s) {
			return ErrInvalidConstraintStatus
		}
	}
	for _, s := range r.Constraints.ExcludedStatuses {
		if !IsValidLeadStatus(s) {
			return ErrInvalidConstraintStatus
		}
	}
	return nil
}
