package rules

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/outreachlab/leadpulse/internal/actions"
	"github.com/outreachlab/leadpulse/internal/metrics"
	"github.com/outreachlab/leadpulse/internal/models"
	"github.com/outreachlab/leadpulse/internal/store"
)

// Engine-level defaults, overridable per rule.
const (
	// DefaultFiringThreshold is the minimum satisfied-weight ratio for a rule to fire.
	DefaultFiringThreshold = 0.6
	// DefaultCooldown is the minimum spacing between firings of one rule for one lead.
	DefaultCooldown = 24 * time.Hour
)

// Engine evaluates rules against leads and drives action execution.
type Engine struct {
	repo            Repository
	store           store.Store
	executor        *actions.Executor
	firingThreshold float64
	cooldown        time.Duration
	now             func() time.Time
}

// EngineOption defines a configuration option for the engine.
type EngineOption func(*Engine)

// WithFiringThreshold overrides the engine-level firing threshold.
func WithFiringThreshold(t float64) EngineOption {
	return func(e *Engine) { e.firingThreshold = t }
}

// WithCooldown overrides the engine-level cooldown window.
func WithCooldown(d time.Duration) EngineOption {
	return func(e *Engine) { e.cooldown = d }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a rule engine. Rules are reloaded from the repository on
// every EvaluateLead call, never cached.
func NewEngine(repo Repository, st store.Store, executor *actions.Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:            repo,
		store:           st,
		executor:        executor,
		firingThreshold: DefaultFiringThreshold,
		cooldown:        DefaultCooldown,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateLead evaluates every active rule against one lead. Each evaluation
// is recorded whether the rule fired, was skipped by constraints, or was
// suppressed by its cooldown.
func (e *Engine) EvaluateLead(ctx context.Context, lead models.Lead) ([]models.RuleEvaluationResult, error) {
	rules, err := e.repo.ListActiveRules()
	if err != nil {
		return nil, err
	}
	timeline, err := e.store.GetLatestTimeline(lead.ID)
	if err != nil {
		slog.Warn("Engine could not load latest timeline", "error", err, "leadID", lead.ID)
	}
	sig := Signal{Lead: lead, Timeline: timeline, Now: e.now()}

	results := make([]models.RuleEvaluationResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, e.evaluateRule(ctx, sig, rule))
	}
	return results, nil
}

// evaluateRule runs the full pipeline for one (lead, rule) pair: constraint
// check, trigger evaluation, weighted firing decision, cooldown, action
// execution, statistics update.
func (e *Engine) evaluateRule(ctx context.Context, sig Signal, rule models.Rule) models.RuleEvaluationResult {
	metrics.RulesEvaluated.Inc()
	result := models.RuleEvaluationResult{
		ID:        uuid.NewString(),
		LeadID:    sig.Lead.ID,
		RuleID:    rule.ID,
		Timestamp: e.now(),
	}

	// Constraints dominate: a violation skips the rule with no side effects
	// and no trigger evaluation.
	if !constraintsPass(rule.Constraints, sig.Lead) {
		slog.Debug("Engine rule skipped by constraints", "leadID", sig.Lead.ID, "ruleID", rule.ID)
		metrics.RulesSkipped.Inc()
		e.record(result)
		return result
	}
	result.ConstraintsPassed = true

	var satisfiedWeight, totalWeight float64
	confidences := make([]float64, 0, len(rule.Triggers))
	for _, trigger := range rule.Triggers {
		tr := EvaluateTrigger(trigger, sig)
		result.TriggerResults = append(result.TriggerResults, tr)
		confidences = append(confidences, tr.Confidence)
		totalWeight += trigger.Weight
		if tr.Satisfied {
			satisfiedWeight += trigger.Weight
		}
	}
	if totalWeight > 0 {
		result.FiringRatio = satisfiedWeight / totalWeight
	}

	threshold := e.firingThreshold
	if rule.FiringThreshold != nil {
		threshold = *rule.FiringThreshold
	}
	if result.FiringRatio < threshold {
		slog.Debug("Engine rule below firing threshold", "leadID", sig.Lead.ID, "ruleID", rule.ID,
			"ratio", result.FiringRatio, "threshold", threshold)
		e.record(result)
		return result
	}

	if e.onCooldown(sig, rule) {
		slog.Info("Engine rule suppressed by cooldown", "leadID", sig.Lead.ID, "ruleID", rule.ID)
		metrics.CooldownSuppress.Inc()
		result.OnCooldown = true
		e.record(result)
		return result
	}

	result.ActionResults = e.executor.ExecuteActions(ctx, sig.Lead, rule, confidences)

	// OR-success across actions: one succeeding action marks the firing
	// successful. Deliberate, matching long-standing operator expectations.
	fired := false
	for _, ar := range result.ActionResults {
		if ar.Succeeded {
			fired = true
			break
		}
	}
	result.Fired = fired

	if fired {
		metrics.RulesFired.Inc()
		if err := e.store.SetLastFired(sig.Lead.ID, rule.ID, e.now()); err != nil {
			slog.Error("Engine failed to record firing time", "error", err, "leadID", sig.Lead.ID, "ruleID", rule.ID)
		}
	}
	e.updateStats(sig.Lead, rule, fired)
	e.record(result)

	slog.Info("Engine rule evaluated", "leadID", sig.Lead.ID, "ruleID", rule.ID,
		"ratio", result.FiringRatio, "fired", fired)
	return result
}

// constraintsPass checks the rule's constraints against the lead.
func constraintsPass(c models.RuleConstraints, lead models.Lead) bool {
	if c.MinScore != nil && lead.QualificationScore < *c.MinScore {
		return false
	}
	if len(c.RequiredStatuses) > 0 && !containsStatus(c.RequiredStatuses, lead.Status) {
		return false
	}
	if containsStatus(c.ExcludedStatuses, lead.Status) {
		return false
	}
	return true
}

func containsStatus(list []models.LeadStatus, s models.LeadStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// onCooldown reports whether the rule fired for this lead within its cooldown
// window. A store read failure counts as not on cooldown; the CAS on status
// writes still protects against double application.
func (e *Engine) onCooldown(sig Signal, rule models.Rule) bool {
	cooldown := e.cooldown
	if rule.CooldownHours != nil {
		cooldown = time.Duration(*rule.CooldownHours) * time.Hour
	}
	last, err := e.store.GetLastFired(sig.Lead.ID, rule.ID)
	if err != nil {
		slog.Warn("Engine cooldown lookup failed", "error", err, "leadID", sig.Lead.ID, "ruleID", rule.ID)
		return false
	}
	return last != nil && sig.Now.Sub(*last) < cooldown
}

// updateStats folds one fire attempt into the rule's rolling statistics:
// attempt count, success rate and average qualification-score impact.
func (e *Engine) updateStats(lead models.Lead, rule models.Rule, success bool) {
	stats := rule.Stats
	prevAttempts := float64(stats.TimesTriggered)
	successes := math.Round(stats.SuccessRate * prevAttempts)
	if success {
		successes++
	}
	stats.TimesTriggered++
	stats.SuccessRate = successes / float64(stats.TimesTriggered)

	impact := 0.0
	if fresh, err := e.store.GetLead(lead.ID); err == nil {
		impact = fresh.QualificationScore - lead.QualificationScore
	}
	stats.AverageImpact = (stats.AverageImpact*prevAttempts + impact) / float64(stats.TimesTriggered)

	if err := e.store.UpdateRuleStats(rule.ID, stats); err != nil {
		slog.Error("Engine failed to update rule stats", "error", err, "ruleID", rule.ID)
	}
}

// record appends the evaluation result to the audit store.
func (e *Engine) record(result models.RuleEvaluationResult) {
	if err := e.store.AddEvaluation(result); err != nil {
		slog.Error("Engine failed to append evaluation", "error", err, "leadID", result.LeadID, "ruleID", result.RuleID)
	}
}
