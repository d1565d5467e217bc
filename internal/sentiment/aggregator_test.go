package sentiment

import (
	"math"
	"reflect"
	"testing"

	"github.com/outreachlab/leadpulse/internal/models"
)

func point(start, end, sentiment, confidence float64, phrases ...string) models.SentimentPoint {
	return models.SentimentPoint{
		TimeStart:  start,
		TimeEnd:    end,
		Sentiment:  sentiment,
		Confidence: confidence,
		KeyPhrases: phrases,
	}
}

func TestOverallConfidenceWeighted(t *testing.T) {
	agg := NewAggregator()
	tl := agg.BuildTimeline("c1", "l1", []models.SentimentPoint{
		point(0, 30, 0.8, 0.9),
		point(25, 55, -0.2, 0.1),
	})

	want := (0.8*0.9 + -0.2*0.1) / (0.9 + 0.1)
	if math.Abs(tl.OverallSentiment.Score-want) > 1e-9 {
		t.Errorf("overall score = %v, want %v", tl.OverallSentiment.Score, want)
	}
	if tl.OverallSentiment.Label != models.SentimentPositive {
		t.Errorf("label = %q, want positive", tl.OverallSentiment.Label)
	}
}

func TestOverallZeroConfidenceIsNeutral(t *testing.T) {
	agg := NewAggregator()
	tl := agg.BuildTimeline("c1", "l1", []models.SentimentPoint{
		point(0, 30, 0.9, 0),
		point(25, 55, -0.9, 0),
	})
	if tl.OverallSentiment.Score != 0 {
		t.Errorf("overall score = %v, want 0", tl.OverallSentiment.Score)
	}
	if tl.OverallSentiment.Label != models.SentimentNeutral {
		t.Errorf("label = %q, want neutral", tl.OverallSentiment.Label)
	}
}

func TestDetectChangesSkipsLowConfidencePoints(t *testing.T) {
	agg := NewAggregator()

	// The middle point is a degraded fallback; the 0.9 swing around it must
	// not be reported because its confidence sits below the floor.
	tl := agg.BuildTimeline("c1", "l1", []models.SentimentPoint{
		point(0, 30, 0.5, 0.9),
		point(25, 55, -0.4, NoDataConfidence),
		point(50, 80, 0.55, 0.9),
	})
	if len(tl.SentimentChanges) != 0 {
		t.Errorf("expected no changes around degraded point, got %d", len(tl.SentimentChanges))
	}

	tl = agg.BuildTimeline("c1", "l1", []models.SentimentPoint{
		point(0, 30, 0.5, 0.9),
		point(25, 55, -0.4, 0.8),
	})
	if len(tl.SentimentChanges) != 1 {
		t.Fatalf("expected 1 change, got %d", len(tl.SentimentChanges))
	}
	change := tl.SentimentChanges[0]
	if math.Abs(change.Delta - -0.9) > 1e-9 {
		t.Errorf("delta = %v, want -0.9", change.Delta)
	}
	if change.TimeStart != 0 || change.TimeEnd != 55 {
		t.Errorf("change window = [%v,%v], want [0,55]", change.TimeStart, change.TimeEnd)
	}
}

func TestDetectChangesBelowThresholdIgnored(t *testing.T) {
	agg := NewAggregator()
	tl := agg.BuildTimeline("c1", "l1", []models.SentimentPoint{
		point(0, 30, 0.1, 0.9),
		point(25, 55, 0.35, 0.9),
	})
	if len(tl.SentimentChanges) != 0 {
		t.Errorf("0.25 delta reported as change, threshold is %v", DefaultChangeThreshold)
	}
}

func TestCriticalMomentNegativeShift(t *testing.T) {
	agg := NewAggregator()
	tl := agg.BuildTimeline("c1", "l1", []models.SentimentPoint{
		point(0, 30, 0.4, 0.9),
		point(25, 55, -0.2, 0.7),
	})

	var shift *models.CriticalMoment
	for i := range tl.CriticalMoments {
		if tl.CriticalMoments[i].Type == models.MomentNegativeShift {
			shift = &tl.CriticalMoments[i]
		}
	}
	if shift == nil {
		t.Fatal("0.6 drop not flagged as negative shift")
	}
	if shift.TimePoint != 25 {
		t.Errorf("shift time point = %v, want 25", shift.TimePoint)
	}
	if shift.Confidence != 0.7 {
		t.Errorf("shift confidence = %v, want min of pair 0.7", shift.Confidence)
	}
}

func TestCriticalMomentVocabulary(t *testing.T) {
	agg := NewAggregator()
	tl := agg.BuildTimeline("c1", "l1", []models.SentimentPoint{
		point(0, 30, -0.3, 0.8, "it's Too Expensive for us"),
		point(25, 55, 0.6, 0.9, "what are the Next Steps"),
	})

	var kinds []models.CriticalMomentType
	for _, m := range tl.CriticalMoments {
		kinds = append(kinds, m.Type)
	}
	wantObjection, wantBuying := false, false
	for _, k := range kinds {
		if k == models.MomentObjection {
			wantObjection = true
		}
		if k == models.MomentBuyingSignal {
			wantBuying = true
		}
	}
	if !wantObjection {
		t.Errorf("objection vocabulary not flagged, moments = %v", kinds)
	}
	if !wantBuying {
		t.Errorf("buying-signal vocabulary not flagged, moments = %v", kinds)
	}
}

func TestBuildTimelineDeterministic(t *testing.T) {
	agg := NewAggregator()
	points := []models.SentimentPoint{
		point(0, 30, 0.4, 0.9, "pricing"),
		point(25, 55, -0.3, 0.8, "not sure"),
		point(50, 80, 0.1, 0.5),
	}
	a := agg.BuildTimeline("c1", "l1", points)
	b := agg.BuildTimeline("c1", "l1", points)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical points produced different timelines")
	}
}
