// Package rules evaluates declarative automation rules against lead signal
// state.
//
// Trigger evaluation is pure: each evaluator is a function of the Signal
// snapshot alone, returning whether the trigger is satisfied and with what
// confidence. Side effects belong to the action executor.
package rules

import (
	"time"

	"github.com/outreachlab/leadpulse/internal/models"
)

// Signal is the snapshot a rule evaluation reads: the lead's rolling state,
// the latest sentiment timeline (may be nil when no call was analyzed yet),
// and the evaluation time.
type Signal struct {
	Lead     models.Lead
	Timeline *models.SentimentTimeline
	Now      time.Time
}

// EvaluateTrigger evaluates one trigger against a signal snapshot. Confidence
// follows the ratio-to-threshold pattern, capped at 1; an unknown kind
// evaluates unsatisfied with zero confidence.
func EvaluateTrigger(t models.Trigger, sig Signal) models.TriggerResult {
	result := models.TriggerResult{Kind: t.Kind, Weight: t.Weight}

	switch t.Kind {
	case models.TriggerSentimentThreshold:
		result.Satisfied = sig.Lead.SentimentScore >= t.Threshold
		result.Confidence = ratioConfidence(sig.Lead.SentimentScore, t.Threshold)

	case models.TriggerEngagementIncrease:
		increase := sig.Lead.EngagementScore - sig.Lead.PreviousEngagementScore
		result.Satisfied = increase >= t.MinIncrease
		result.Confidence = ratioConfidence(increase, t.MinIncrease)

	case models.TriggerQualificationThreshold:
		result.Satisfied = sig.Lead.QualificationScore >= t.MinScore
		result.Confidence = ratioConfidence(sig.Lead.QualificationScore, t.MinScore)

	case models.TriggerTimeSinceContact:
		if sig.Lead.LastContactDate.IsZero() {
			// Never contacted: quiet "forever", trigger fully satisfied.
			result.Satisfied = true
			result.Confidence = 1
			break
		}
		days := sig.Now.Sub(sig.Lead.LastContactDate).Hours() / 24
		result.Satisfied = days >= t.MinDays
		result.Confidence = ratioConfidence(days, t.MinDays)

	case models.TriggerCriticalMomentType:
		if sig.Timeline == nil {
			break
		}
		for _, m := range sig.Timeline.CriticalMoments {
			if m.Type != t.MomentType {
				continue
			}
			result.Satisfied = true
			if m.Confidence > result.Confidence {
				result.Confidence = m.Confidence
			}
		}
	}

	return result
}

// ratioConfidence maps value/threshold to [0, 1].
func ratioConfidence(value, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	ratio := value / threshold
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
