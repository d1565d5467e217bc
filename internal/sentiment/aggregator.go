package sentiment

import (
	"fmt"
	"math"
	"strings"

	"github.com/outreachlab/leadpulse/internal/models"
)

// Default aggregation configuration constants
const (
	// DefaultChangeThreshold is the minimum absolute sentiment delta between
	// consecutive points reported as a change.
	DefaultChangeThreshold = 0.3
	// DefaultCriticalDropThreshold is the (stricter) negative delta flagged
	// as a critical negative shift.
	DefaultCriticalDropThreshold = 0.5
	// MinChangeConfidence is the confidence floor below which points are
	// excluded from change detection. Degraded points sit below it.
	MinChangeConfidence = 0.3
)

// objectionVocabulary and buyingSignalVocabulary are the key-phrase markers
// scanned for critical moments. Matching is case-insensitive substring.
var (
	objectionVocabulary = []string{
		"too expensive", "can't afford", "over budget", "not a priority",
		"not sure", "need to think", "talk to my", "already using",
		"competitor", "concern", "problem with", "not convinced",
	}
	buyingSignalVocabulary = []string{
		"how much", "pricing", "price", "next steps", "when can we start",
		"contract", "trial", "demo", "send me", "sounds good", "let's do",
		"sign up", "onboarding",
	}
)

// Aggregator turns an ordered sequence of sentiment points into a timeline.
// It is a pure function of its input: identical points always yield an
// identical timeline, even though the scorer that produced the points is not
// deterministic.
type Aggregator struct {
	changeThreshold       float64
	criticalDropThreshold float64
}

// AggregatorOption defines a configuration option for the aggregator.
type AggregatorOption func(*Aggregator)

// WithChangeThreshold overrides the sentiment-change detection threshold.
func WithChangeThreshold(t float64) AggregatorOption {
	return func(a *Aggregator) { a.changeThreshold = t }
}

// WithCriticalDropThreshold overrides the negative-shift detection threshold.
func WithCriticalDropThreshold(t float64) AggregatorOption {
	return func(a *Aggregator) { a.criticalDropThreshold = t }
}

// NewAggregator creates an aggregator with the given options over defaults.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		changeThreshold:       DefaultChangeThreshold,
		criticalDropThreshold: DefaultCriticalDropThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildTimeline assembles the timeline for one analysis run.
func (a *Aggregator) BuildTimeline(callID, leadID string, points []models.SentimentPoint) models.SentimentTimeline {
	tl := models.SentimentTimeline{
		CallID:               callID,
		LeadID:               leadID,
		OverallSentiment:     a.overall(points),
		SentimentProgression: points,
	}
	tl.SentimentChanges = a.detectChanges(points)
	tl.CriticalMoments = a.detectCriticalMoments(points)
	return tl
}

// overall computes the confidence-weighted average sentiment, clamped to
// [-1, 1]. Zero total confidence yields a neutral score.
func (a *Aggregator) overall(points []models.SentimentPoint) models.OverallSentiment {
	var weighted, total float64
	for _, p := range points {
		weighted += p.Sentiment * p.Confidence
		total += p.Confidence
	}
	score := 0.0
	if total > 0 {
		score = clamp(weighted/total, -1, 1)
	}
	return models.OverallSentiment{Score: score, Label: models.LabelForScore(score)}
}

// detectChanges reports transitions between consecutive confident points
// whose absolute delta reaches the change threshold.
func (a *Aggregator) detectChanges(points []models.SentimentPoint) []models.SentimentChange {
	var changes []models.SentimentChange
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if prev.Confidence < MinChangeConfidence || cur.Confidence < MinChangeConfidence {
			continue
		}
		delta := cur.Sentiment - prev.Sentiment
		if math.Abs(delta) < a.changeThreshold {
			continue
		}
		changes = append(changes, models.SentimentChange{
			From:      prev,
			To:        cur,
			Delta:     delta,
			TimeStart: prev.TimeStart,
			TimeEnd:   cur.TimeEnd,
		})
	}
	return changes
}

// detectCriticalMoments flags steep negative swings and points whose key
// phrases match objection or buying-signal vocabulary.
func (a *Aggregator) detectCriticalMoments(points []models.SentimentPoint) []models.CriticalMoment {
	var moments []models.CriticalMoment

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if prev.Confidence < MinChangeConfidence || cur.Confidence < MinChangeConfidence {
			continue
		}
		delta := cur.Sentiment - prev.Sentiment
		if delta <= -a.criticalDropThreshold {
			moments = append(moments, models.CriticalMoment{
				Type:        models.MomentNegativeShift,
				TimePoint:   cur.TimeStart,
				Description: fmt.Sprintf("sentiment dropped %.2f within %.0fs", -delta, cur.TimeEnd-prev.TimeStart),
				Confidence:  minFloat(prev.Confidence, cur.Confidence),
			})
		}
	}

	for _, p := range points {
		if phrase, ok := matchVocabulary(p.KeyPhrases, objectionVocabulary); ok {
			moments = append(moments, models.CriticalMoment{
				Type:        models.MomentObjection,
				TimePoint:   p.TimeStart,
				Description: fmt.Sprintf("objection raised: %q", phrase),
				Confidence:  p.Confidence,
			})
		}
		if phrase, ok := matchVocabulary(p.KeyPhrases, buyingSignalVocabulary); ok {
			moments = append(moments, models.CriticalMoment{
				Type:        models.MomentBuyingSignal,
				TimePoint:   p.TimeStart,
				Description: fmt.Sprintf("buying signal: %q", phrase),
				Confidence:  p.Confidence,
			})
		}
	}

	return moments
}

// matchVocabulary returns the first key phrase containing any vocabulary
// marker, case-insensitively.
func matchVocabulary(phrases, vocabulary []string) (string, bool) {
	for _, phrase := range phrases {
		lower := strings.ToLower(phrase)
		for _, marker := range vocabulary {
			if strings.Contains(lower, marker) {
				return phrase, true
			}
		}
	}
	return "", false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
