package models

import (
	"errors"
	"testing"
)

func validRule() Rule {
	return Rule{
		ID:       "r1",
		Name:     "hot lead",
		IsActive: true,
		Triggers: []Trigger{
			{Kind: TriggerSentimentThreshold, Weight: 0.6, Threshold: 0.7},
			{Kind: TriggerEngagementIncrease, Weight: 0.4, MinIncrease: 20},
		},
		Actions: []Action{
			{Kind: ActionStatusChange, NewStatus: StatusQualified},
		},
	}
}

func TestRuleValidate(t *testing.T) {
	if err := validRule().Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr error
	}{
		{"empty id", func(r *Rule) { r.ID = "" }, ErrEmptyRuleID},
		{"no triggers", func(r *Rule) { r.Triggers = nil }, ErrNoTriggers},
		{"no actions", func(r *Rule) { r.Actions = nil }, ErrNoActions},
		{"unknown trigger kind", func(r *Rule) { r.Triggers[0].Kind = "vibes" }, ErrUnknownTriggerKind},
		{"zero weight", func(r *Rule) { r.Triggers[0].Weight = 0 }, ErrInvalidTriggerWeight},
		{"weight above one", func(r *Rule) { r.Triggers[0].Weight = 1.5 }, ErrInvalidTriggerWeight},
		{"missing threshold", func(r *Rule) { r.Triggers[0].Threshold = 0 }, ErrMissingTriggerParam},
		{"unknown action kind", func(r *Rule) { r.Actions[0].Kind = "launch" }, ErrUnknownActionKind},
		{"invalid target status", func(r *Rule) { r.Actions[0].NewStatus = "golden" }, ErrInvalidActionStatus},
		{"bad required status", func(r *Rule) { r.Constraints.RequiredStatuses = []LeadStatus{"warm"} }, ErrInvalidConstraintStatus},
		{"bad excluded status", func(r *Rule) { r.Constraints.ExcludedStatuses = []LeadStatus{"warm"} }, ErrInvalidConstraintStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			if err := rule.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTriggerValidatePerKindParams(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		wantErr error
	}{
		{"sentiment ok", Trigger{Kind: TriggerSentimentThreshold, Weight: 1, Threshold: 0.5}, nil},
		{"engagement missing", Trigger{Kind: TriggerEngagementIncrease, Weight: 0.5}, ErrMissingTriggerParam},
		{"qualification ok", Trigger{Kind: TriggerQualificationThreshold, Weight: 0.5, MinScore: 60}, nil},
		{"time missing", Trigger{Kind: TriggerTimeSinceContact, Weight: 0.5}, ErrMissingTriggerParam},
		{"moment ok", Trigger{Kind: TriggerCriticalMomentType, Weight: 0.5, MomentType: MomentObjection}, nil},
		{"moment missing", Trigger{Kind: TriggerCriticalMomentType, Weight: 0.5}, ErrMissingTriggerParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestActionValidatePerKindParams(t *testing.T) {
	meeting := Action{Kind: ActionScheduleMeeting}
	if !errors.Is(meeting.Validate(), ErrMissingActionParam) {
		t.Error("schedule_meeting without follow-up type accepted")
	}
	notification := Action{Kind: ActionSendNotification, Channel: "sms"}
	if !errors.Is(notification.Validate(), ErrMissingActionParam) {
		t.Error("send_notification without template accepted")
	}
	notification.Template = "hi {{name}}"
	if err := notification.Validate(); err != nil {
		t.Errorf("valid notification rejected: %v", err)
	}
}

func TestLabelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  SentimentLabel
	}{
		{0.5, SentimentPositive},
		{0.2, SentimentNeutral},
		{0.0, SentimentNeutral},
		{-0.2, SentimentNeutral},
		{-0.21, SentimentNegative},
	}
	for _, tt := range tests {
		if got := LabelForScore(tt.score); got != tt.want {
			t.Errorf("LabelForScore(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
