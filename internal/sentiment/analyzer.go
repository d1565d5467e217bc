package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/outreachlab/leadpulse/internal/metrics"
	"github.com/outreachlab/leadpulse/internal/models"
	"github.com/outreachlab/leadpulse/internal/transcript"
)

// DefaultScoringConcurrency bounds concurrent scorer calls per transcript.
const DefaultScoringConcurrency = 3

// Analyzer runs the full pipeline for one transcript: segmentation, bounded
// concurrent scoring, aggregation.
type Analyzer struct {
	segmenter   *transcript.Segmenter
	scorer      *SegmentScorer
	aggregator  *Aggregator
	concurrency int
}

// AnalyzerOption defines a configuration option for the analyzer.
type AnalyzerOption func(*Analyzer)

// WithScoringConcurrency overrides how many scorer calls run at once.
func WithScoringConcurrency(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// NewAnalyzer wires the pipeline stages together.
func NewAnalyzer(seg *transcript.Segmenter, scorer *SegmentScorer, agg *Aggregator, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		segmenter:   seg,
		scorer:      scorer,
		aggregator:  agg,
		concurrency: DefaultScoringConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze produces the sentiment timeline for a finished transcript. When ctx
// is canceled, in-flight scorer calls are allowed to complete but no partial
// timeline is published. A transcript with no duration or no messages fails
// fast.
func (a *Analyzer) Analyze(ctx context.Context, t models.ConversationTranscript, lead models.LeadContext) (models.SentimentTimeline, error) {
	if t.DurationSeconds <= 0 {
		slog.Warn("Analyzer: transcript has no duration", "callID", t.CallID, "leadID", lead.LeadID)
		return models.SentimentTimeline{}, fmt.Errorf("analyze call %s: %w", t.CallID, models.ErrZeroDuration)
	}
	segments := a.segmenter.Segment(t)
	if len(segments) == 0 {
		slog.Warn("Analyzer: transcript yields no segments", "callID", t.CallID, "leadID", lead.LeadID)
		return models.SentimentTimeline{}, fmt.Errorf("analyze call %s: %w", t.CallID, models.ErrEmptyTranscript)
	}
	slog.Info("Analyzer starting", "callID", t.CallID, "leadID", lead.LeadID, "segments", len(segments), "concurrency", a.concurrency)

	// In-flight calls keep their own timeout even if the request is canceled;
	// cancellation is honored between dispatches and at publish time.
	callCtx := context.WithoutCancel(ctx)

	points := make([]models.SentimentPoint, len(segments))
	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup

dispatch:
	for i, seg := range segments {
		select {
		case <-ctx.Done():
			slog.Warn("Analyzer canceled mid-dispatch", "callID", t.CallID, "dispatched", i, "total", len(segments))
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, seg models.Segment) {
			defer wg.Done()
			defer func() { <-sem }()
			points[i] = a.scorer.ScoreSegment(callCtx, seg, lead)
		}(i, seg)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		metrics.AnalysesCanceled.Inc()
		return models.SentimentTimeline{}, fmt.Errorf("analyze call %s: %w", t.CallID, err)
	}

	tl := a.aggregator.BuildTimeline(t.CallID, lead.LeadID, points)
	metrics.TimelinesBuilt.Inc()
	slog.Info("Analyzer finished", "callID", t.CallID, "leadID", lead.LeadID,
		"overall", tl.OverallSentiment.Score, "label", tl.OverallSentiment.Label,
		"changes", len(tl.SentimentChanges), "criticalMoments", len(tl.CriticalMoments))
	return tl, nil
}
