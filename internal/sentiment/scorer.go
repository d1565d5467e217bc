// Package sentiment turns segmented transcripts into sentiment timelines.
//
// Scoring is delegated to a pluggable Scorer capability; this package owns
// retry, timeout, throttling and graceful degradation around it.
package sentiment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/outreachlab/leadpulse/internal/metrics"
	"github.com/outreachlab/leadpulse/internal/models"
)

// Scorer is the pluggable sentiment-scoring capability. Implementations are
// backed by an external language-model service with its own fallback chain.
type Scorer interface {
	Score(ctx context.Context, segmentText string, lead models.LeadContext) (models.SegmentScore, error)
}

// Default scorer wrapper configuration constants
const (
	// DefaultScoreTimeout bounds one scoring call.
	DefaultScoreTimeout = 10 * time.Second
	// DefaultRetryBackoff is the pause before the single retry of a failed call.
	DefaultRetryBackoff = 500 * time.Millisecond
	// DefaultThrottleDelay is the minimum spacing between scoring calls, to
	// respect external provider rate limits.
	DefaultThrottleDelay = 100 * time.Millisecond
)

// Confidence levels for degraded points.
const (
	// NoDataConfidence marks a point for a segment without lead speech.
	// Well below the aggregator's change-detection floor, so degraded points
	// never produce change events.
	NoDataConfidence = 0.1
	// FallbackConfidence marks a point produced after the scorer failed twice.
	FallbackConfidence = 0.3
)

// SegmentScorer wraps a Scorer capability with retry, timeout and throttling.
type SegmentScorer struct {
	scorer   Scorer
	timeout  time.Duration
	backoff  time.Duration
	throttle time.Duration

	mu       sync.Mutex
	nextCall time.Time
}

// ScorerOption defines a configuration option for the segment scorer.
type ScorerOption func(*SegmentScorer)

// WithScoreTimeout overrides the per-call timeout.
func WithScoreTimeout(d time.Duration) ScorerOption {
	return func(s *SegmentScorer) { s.timeout = d }
}

// WithRetryBackoff overrides the pause before the single retry.
func WithRetryBackoff(d time.Duration) ScorerOption {
	return func(s *SegmentScorer) { s.backoff = d }
}

// WithThrottleDelay overrides the minimum spacing between scoring calls.
func WithThrottleDelay(d time.Duration) ScorerOption {
	return func(s *SegmentScorer) { s.throttle = d }
}

// NewSegmentScorer creates a segment scorer around the given capability.
func NewSegmentScorer(scorer Scorer, opts ...ScorerOption) *SegmentScorer {
	s := &SegmentScorer{
		scorer:   scorer,
		timeout:  DefaultScoreTimeout,
		backoff:  DefaultRetryBackoff,
		throttle: DefaultThrottleDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreSegment produces the sentiment point for one segment. Segments without
// lead speech yield a no-data point; scorer failure after one retry yields a
// fallback point. A single failing segment never aborts the timeline.
func (s *SegmentScorer) ScoreSegment(ctx context.Context, seg models.Segment, lead models.LeadContext) models.SentimentPoint {
	point := models.SentimentPoint{TimeStart: seg.StartSeconds, TimeEnd: seg.EndSeconds}

	text := seg.LeadText()
	if text == "" {
		slog.Debug("SegmentScorer: no lead participation in segment", "leadID", lead.LeadID, "start", seg.StartSeconds)
		point.Sentiment = 0
		point.Confidence = NoDataConfidence
		point.DominantEmotion = "neutral"
		point.KeyPhrases = []string{"no lead participation"}
		return point
	}

	score, err := s.scoreWithRetry(ctx, text, lead)
	if err != nil {
		slog.Warn("SegmentScorer degrading to fallback point", "error", err, "leadID", lead.LeadID, "start", seg.StartSeconds)
		metrics.ScorerFallbacks.Inc()
		point.Sentiment = 0
		point.Confidence = FallbackConfidence
		point.DominantEmotion = "uncertain"
		point.KeyPhrases = []string{"error in analysis"}
		return point
	}

	point.Sentiment = clamp(score.Sentiment, -1, 1)
	point.Confidence = clamp(score.Confidence, 0, 1)
	point.DominantEmotion = score.DominantEmotion
	point.KeyPhrases = score.KeyPhrases
	return point
}

// scoreWithRetry makes one scoring call with a timeout, retrying exactly once
// after a backoff pause.
func (s *SegmentScorer) scoreWithRetry(ctx context.Context, text string, lead models.LeadContext) (models.SegmentScore, error) {
	s.waitTurn(ctx)
	score, err := s.scoreOnce(ctx, text, lead)
	if err == nil {
		return score, nil
	}

	slog.Debug("SegmentScorer retrying after failure", "error", err, "leadID", lead.LeadID, "backoff", s.backoff)
	select {
	case <-time.After(s.backoff):
	case <-ctx.Done():
		return models.SegmentScore{}, ctx.Err()
	}

	s.waitTurn(ctx)
	return s.scoreOnce(ctx, text, lead)
}

func (s *SegmentScorer) scoreOnce(ctx context.Context, text string, lead models.LeadContext) (models.SegmentScore, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	score, err := s.scorer.Score(callCtx, text, lead)
	metrics.ScorerLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScorerErrors.Inc()
		return models.SegmentScore{}, err
	}
	metrics.SegmentsScored.Inc()
	return score, nil
}

// waitTurn enforces the inter-call throttle across concurrent workers.
func (s *SegmentScorer) waitTurn(ctx context.Context) {
	s.mu.Lock()
	now := time.Now()
	wait := s.nextCall.Sub(now)
	if wait < 0 {
		wait = 0
	}
	s.nextCall = now.Add(wait + s.throttle)
	s.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
