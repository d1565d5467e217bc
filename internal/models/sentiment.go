// Package models defines sentiment-timeline structures for LeadPulse.
package models

// Sentiment label thresholds for the overall score.
const (
	// PositiveLabelThreshold is the overall score above which a timeline is labeled positive.
	PositiveLabelThreshold = 0.2
	// NegativeLabelThreshold is the overall score below which a timeline is labeled negative.
	NegativeLabelThreshold = -0.2
)

// SentimentLabel is the coarse classification of an overall sentiment score.
type SentimentLabel string

const (
	// SentimentPositive indicates an overall score above PositiveLabelThreshold.
	SentimentPositive SentimentLabel = "positive"
	// SentimentNegative indicates an overall score below NegativeLabelThreshold.
	SentimentNegative SentimentLabel = "negative"
	// SentimentNeutral indicates an overall score between the two thresholds.
	SentimentNeutral SentimentLabel = "neutral"
)

// LabelForScore maps an overall sentiment score to its label.
func LabelForScore(score float64) SentimentLabel {
	switch {
	case score > PositiveLabelThreshold:
		return SentimentPositive
	case score < NegativeLabelThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// SentimentPoint is the per-segment sentiment estimate. Immutable once
// produced; a new analysis run supersedes prior points rather than patching
// them.
type SentimentPoint struct {
	TimeStart       float64  `json:"time_start"`
	TimeEnd         float64  `json:"time_end"`
	Sentiment       float64  `json:"sentiment"`  // in [-1, 1]
	Confidence      float64  `json:"confidence"` // in [0, 1]
	DominantEmotion string   `json:"dominant_emotion"`
	KeyPhrases      []string `json:"key_phrases,omitempty"`
}

// SentimentChange is a detected transition between two consecutive points
// whose sentiment delta exceeds the change threshold.
type SentimentChange struct {
	From      SentimentPoint `json:"from"`
	To        SentimentPoint `json:"to"`
	Delta     float64        `json:"delta"`
	TimeStart float64        `json:"time_start"`
	TimeEnd   float64        `json:"time_end"`
}

// CriticalMomentType classifies a flagged instant of outsized relevance.
type CriticalMomentType string

const (
	// MomentNegativeShift marks a steep negative sentiment swing.
	MomentNegativeShift CriticalMomentType = "negative_shift"
	// MomentObjection marks language matching objection vocabulary.
	MomentObjection CriticalMomentType = "objection"
	// MomentBuyingSignal marks language matching buying-signal vocabulary.
	MomentBuyingSignal CriticalMomentType = "buying_signal"
)

// CriticalMoment is a flagged instant in the call that operators should
// review: a large negative swing, an objection, or a buying signal.
type CriticalMoment struct {
	Type        CriticalMomentType `json:"type"`
	TimePoint   float64            `json:"time_point"`
	Description string             `json:"description"`
	Confidence  float64            `json:"confidence"`
}

// OverallSentiment is the confidence-weighted summary of a timeline.
type OverallSentiment struct {
	Score float64        `json:"score"`
	Label SentimentLabel `json:"label"`
}

// SentimentTimeline is the full output of one analysis run over a transcript.
// Created once per run and never mutated; a new run supersedes, not patches,
// the prior timeline.
type SentimentTimeline struct {
	CallID               string            `json:"call_id"`
	LeadID               string            `json:"lead_id"`
	OverallSentiment     OverallSentiment  `json:"overall_sentiment"`
	SentimentProgression []SentimentPoint  `json:"sentiment_progression"`
	SentimentChanges     []SentimentChange `json:"sentiment_changes,omitempty"`
	CriticalMoments      []CriticalMoment  `json:"critical_moments,omitempty"`
}

// SegmentScore is the raw result returned by a sentiment scorer capability
// for one segment of lead speech.
type SegmentScore struct {
	Sentiment       float64  `json:"sentiment"`
	Confidence      float64  `json:"confidence"`
	DominantEmotion string   `json:"dominant_emotion"`
	KeyPhrases      []string `json:"key_phrases,omitempty"`
}
