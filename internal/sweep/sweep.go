// Package sweep orchestrates lead processing: the real-time path that turns a
// finished call transcript into updated lead state, and the batch path that
// re-evaluates every lead on a schedule.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/outreachlab/leadpulse/internal/metrics"
	"github.com/outreachlab/leadpulse/internal/models"
	"github.com/outreachlab/leadpulse/internal/rules"
	"github.com/outreachlab/leadpulse/internal/sentiment"
	"github.com/outreachlab/leadpulse/internal/store"
)

// DefaultSweepConcurrency is the number of leads evaluated in parallel during
// a batch sweep.
const DefaultSweepConcurrency = 5

// Runner wires the analysis pipeline, the store, and the rule engine into the
// two processing entry points.
type Runner struct {
	analyzer    *sentiment.Analyzer
	store       store.Store
	engine      *rules.Engine
	concurrency int
	now         func() time.Time
}

// Option defines a configuration option for the runner.
type Option func(*Runner)

// WithSweepConcurrency sets the batch sweep worker count.
func WithSweepConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a sweep runner.
func NewRunner(analyzer *sentiment.Analyzer, st store.Store, engine *rules.Engine, opts ...Option) *Runner {
	r := &Runner{
		analyzer:    analyzer,
		store:       st,
		engine:      engine,
		concurrency: DefaultSweepConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessTranscript is the real-time path, invoked when a call ends. It
// analyzes the transcript, persists the resulting timeline, folds the
// sentiment into the lead's signal state, and immediately evaluates the rule
// set against the refreshed lead.
//
// A canceled or failed analysis persists nothing: the lead keeps its previous
// signal state and the next batch sweep sees no phantom timeline.
func (r *Runner) ProcessTranscript(ctx context.Context, t models.ConversationTranscript) ([]models.RuleEvaluationResult, error) {
	lead, err := r.store.GetLead(t.LeadID)
	if err != nil {
		return nil, fmt.Errorf("process transcript for call %s: %w", t.CallID, err)
	}
	slog.Debug("Runner processing transcript", "callID", t.CallID, "leadID", t.LeadID, "messages", len(t.Messages))

	timeline, err := r.analyzer.Analyze(ctx, t, lead.Context())
	if err != nil {
		return nil, fmt.Errorf("process transcript for call %s: %w", t.CallID, err)
	}

	if err := r.store.SaveTimeline(timeline); err != nil {
		return nil, fmt.Errorf("process transcript for call %s: %w", t.CallID, err)
	}

	lead.ApplyTimeline(timeline, r.now())
	if err := r.store.SaveLead(*lead); err != nil {
		return nil, fmt.Errorf("process transcript for call %s: %w", t.CallID, err)
	}
	slog.Info("Runner transcript processed", "callID", t.CallID, "leadID", t.LeadID,
		"overallScore", timeline.OverallSentiment.Score, "criticalMoments", len(timeline.CriticalMoments))

	return r.engine.EvaluateLead(ctx, *lead)
}

// RunSweep is the batch path: it evaluates the full rule set against every
// stored lead using a bounded worker pool. One lead's failure never stalls
// the sweep; errors are logged and counted in the summary.
func (r *Runner) RunSweep(ctx context.Context) error {
	start := r.now()
	leads, err := r.store.ListLeads()
	if err != nil {
		return fmt.Errorf("sweep could not list leads: %w", err)
	}
	slog.Info("Runner sweep starting", "leads", len(leads), "workers", r.concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.concurrency)
	var mu sync.Mutex
	var evaluated, failed int

dispatch:
	for _, lead := range leads {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(lead models.Lead) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := r.engine.EvaluateLead(ctx, lead)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				slog.Error("Runner sweep lead evaluation failed", "error", err, "leadID", lead.ID)
				return
			}
			evaluated++
		}(lead)
	}
	wg.Wait()

	metrics.SweepsTotal.Inc()
	metrics.SweepDuration.Observe(r.now().Sub(start).Seconds())
	slog.Info("Runner sweep finished", "evaluated", evaluated, "failed", failed,
		"duration", r.now().Sub(start).String())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sweep interrupted after %d of %d leads: %w", evaluated+failed, len(leads), err)
	}
	return nil
}
