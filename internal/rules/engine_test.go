package rules

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/outreachlab/leadpulse/internal/actions"
	"github.com/outreachlab/leadpulse/internal/models"
	"github.com/outreachlab/leadpulse/internal/notify"
	"github.com/outreachlab/leadpulse/internal/schedule"
	"github.com/outreachlab/leadpulse/internal/store"
)

func newTestEngine(t *testing.T, st store.Store, rules []models.Rule, opts ...EngineOption) *Engine {
	t.Helper()
	dispatcher := notify.NewDispatcher()
	dispatcher.Register("log", notify.LogSender{})
	executor := actions.NewExecutor(st, schedule.NewLogScheduler(), dispatcher)
	return NewEngine(NewStaticRepository(rules), st, executor, opts...)
}

func qualifyRule() models.Rule {
	return models.Rule{
		ID:       "qualify-hot-lead",
		Name:     "qualify hot lead",
		IsActive: true,
		Triggers: []models.Trigger{
			{Kind: models.TriggerSentimentThreshold, Weight: 0.6, Threshold: 0.7},
			{Kind: models.TriggerEngagementIncrease, Weight: 0.4, MinIncrease: 20},
		},
		Actions: []models.Action{
			{Kind: models.ActionStatusChange, NewStatus: models.StatusQualified},
		},
		Constraints: models.RuleConstraints{
			ExcludedStatuses: []models.LeadStatus{models.StatusConverted, models.StatusNotInterested},
		},
	}
}

func hotLead() models.Lead {
	return models.Lead{
		ID:                      "lead-1",
		Name:                    "Dana",
		Status:                  models.StatusContacted,
		SentimentScore:          0.8,
		EngagementScore:         68,
		PreviousEngagementScore: 45,
		QualificationScore:      70,
		Version:                 1,
	}
}

func TestEvaluateLeadFiresAndAppliesActions(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	engine := newTestEngine(t, st, []models.Rule{qualifyRule()})

	results, err := engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("EvaluateLead failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(results))
	}

	res := results[0]
	if !res.ConstraintsPassed {
		t.Error("constraints should pass for a contacted lead")
	}
	if res.FiringRatio != 1 {
		t.Errorf("firing ratio = %v, want 1", res.FiringRatio)
	}
	if !res.Fired {
		t.Error("rule did not fire")
	}

	updated, err := st.GetLead("lead-1")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusQualified {
		t.Errorf("lead status = %s, want qualified", updated.Status)
	}
	if updated.Version != 2 {
		t.Errorf("lead version = %d, want 2", updated.Version)
	}

	last, err := st.GetLastFired("lead-1", "qualify-hot-lead")
	if err != nil || last == nil {
		t.Errorf("firing time not recorded: %v, %v", last, err)
	}

	audits, _ := st.ListAuditRecords("lead-1")
	if len(audits) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(audits))
	}
	if audits[0].PreviousStatus != models.StatusContacted || audits[0].NewStatus != models.StatusQualified {
		t.Errorf("audit transition = %s -> %s", audits[0].PreviousStatus, audits[0].NewStatus)
	}
}

func TestConstraintViolationSkipsTriggers(t *testing.T) {
	st := store.NewInMemoryStore()
	minScore := 60.0
	rule := qualifyRule()
	rule.Constraints.MinScore = &minScore

	lead := hotLead()
	lead.QualificationScore = 50
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	engine := newTestEngine(t, st, []models.Rule{rule})

	results, err := engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("EvaluateLead failed: %v", err)
	}
	res := results[0]
	if res.ConstraintsPassed {
		t.Error("constraints passed with qualification 50 against minimum 60")
	}
	if len(res.TriggerResults) != 0 {
		t.Error("triggers evaluated despite constraint violation")
	}
	if res.Fired {
		t.Error("rule fired despite constraint violation")
	}
	fresh, _ := st.GetLead("lead-1")
	if fresh.Status != models.StatusContacted {
		t.Errorf("side effect despite constraint violation: status %s", fresh.Status)
	}

	// The skip is still recorded for audit.
	evals, _ := st.ListEvaluations("lead-1")
	if len(evals) != 1 {
		t.Errorf("expected skip to be recorded, got %d evaluations", len(evals))
	}
}

func TestRequiredStatusSkips(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	lead.Status = models.StatusNew
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}

	rule := qualifyRule()
	rule.Constraints.RequiredStatuses = []models.LeadStatus{models.StatusContacted}
	engine := newTestEngine(t, st, []models.Rule{rule})

	results, err := engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("EvaluateLead failed: %v", err)
	}
	if results[0].ConstraintsPassed {
		t.Error("new lead passed a rule requiring contacted")
	}
}

func TestExcludedStatusSkips(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	lead.Status = models.StatusConverted
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	engine := newTestEngine(t, st, []models.Rule{qualifyRule()})

	results, err := engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("EvaluateLead failed: %v", err)
	}
	if results[0].ConstraintsPassed {
		t.Error("converted lead passed a rule that excludes converted")
	}
}

func TestWeightedFiringRatio(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	lead.SentimentScore = 0.8 // satisfies the 0.8-weight trigger
	lead.PreviousEngagementScore = 68
	lead.EngagementScore = 68 // fails the 0.2-weight trigger
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}

	// Weights need not sum to 1: satisfied 0.8 of 1.2 total is a ratio of
	// about 0.67, above the 0.6 default.
	rule := qualifyRule()
	rule.Triggers[0].Weight = 0.8
	rule.Triggers[1].Weight = 0.4
	engine := newTestEngine(t, st, []models.Rule{rule})

	results, err := engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("EvaluateLead failed: %v", err)
	}
	res := results[0]
	if math.Abs(res.FiringRatio-0.8/1.2) > 1e-9 {
		t.Errorf("firing ratio = %v, want 0.67", res.FiringRatio)
	}
	if !res.Fired {
		t.Error("ratio 0.67 against threshold 0.6 did not fire")
	}

	// Flip the weights: the satisfied trigger now carries 0.4 of 1.2.
	st2 := store.NewInMemoryStore()
	if err := st2.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	rule.Triggers[0].Weight = 0.4
	rule.Triggers[1].Weight = 0.8
	engine = newTestEngine(t, st2, []models.Rule{rule})

	results, err = engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("EvaluateLead failed: %v", err)
	}
	res = results[0]
	if math.Abs(res.FiringRatio-0.4/1.2) > 1e-9 {
		t.Errorf("firing ratio = %v, want 0.33", res.FiringRatio)
	}
	if res.Fired {
		t.Error("ratio 0.33 against threshold 0.6 fired")
	}
	fresh, _ := st2.GetLead("lead-1")
	if fresh.Status != models.StatusContacted {
		t.Errorf("side effect below threshold: status %s", fresh.Status)
	}
}

func TestPerRuleFiringThresholdOverride(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	lead.PreviousEngagementScore = 68
	lead.EngagementScore = 68
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}

	// Ratio will be 0.6; a per-rule threshold of 0.5 lets it fire even though
	// a stricter engine default would not.
	strict := 0.9
	rule := qualifyRule()
	rule.FiringThreshold = &strict
	engine := newTestEngine(t, st, []models.Rule{rule})

	results, err := engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Fired {
		t.Error("ratio 0.6 fired against per-rule threshold 0.9")
	}

	lenient := 0.5
	rule.FiringThreshold = &lenient
	engine = newTestEngine(t, st, []models.Rule{rule})
	results, err = engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Fired {
		t.Error("ratio 0.6 did not fire against per-rule threshold 0.5")
	}
}

func TestCooldownSuppressesRefire(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	engine := newTestEngine(t, st, []models.Rule{qualifyRule()}, WithClock(clock))

	results, err := engine.EvaluateLead(context.Background(), lead)
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Fired {
		t.Fatal("first evaluation did not fire")
	}

	// One hour later, inside the 24h default cooldown. Use the fresh lead so
	// the constraint and triggers would otherwise still permit firing.
	now = now.Add(time.Hour)
	fresh, _ := st.GetLead("lead-1")
	fresh.Status = models.StatusContacted // reset as if an operator reverted it
	fresh.Version++
	if err := st.SaveLead(*fresh); err != nil {
		t.Fatal(err)
	}

	results, err = engine.EvaluateLead(context.Background(), *fresh)
	if err != nil {
		t.Fatal(err)
	}
	res := results[0]
	if !res.OnCooldown {
		t.Error("evaluation one hour after firing not marked on cooldown")
	}
	if res.Fired {
		t.Error("rule refired inside cooldown window")
	}

	// Past the cooldown it may fire again.
	now = now.Add(25 * time.Hour)
	results, err = engine.EvaluateLead(context.Background(), *fresh)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].OnCooldown {
		t.Error("still on cooldown 26 hours after firing")
	}
}

func TestPerRuleCooldownOverride(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}

	hours := 1
	rule := qualifyRule()
	rule.CooldownHours = &hours

	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, st, []models.Rule{rule}, WithClock(func() time.Time { return now }))

	if results, _ := engine.EvaluateLead(context.Background(), lead); !results[0].Fired {
		t.Fatal("first evaluation did not fire")
	}

	now = now.Add(90 * time.Minute)
	fresh, _ := st.GetLead("lead-1")
	fresh.Status = models.StatusContacted
	fresh.Version++
	if err := st.SaveLead(*fresh); err != nil {
		t.Fatal(err)
	}

	results, err := engine.EvaluateLead(context.Background(), *fresh)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].OnCooldown {
		t.Error("90 minutes past firing still on a 1 hour cooldown")
	}
}

func TestStatsUpdatedAfterFiring(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := hotLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	rule := qualifyRule()
	if err := st.SaveRule(rule); err != nil {
		t.Fatal(err)
	}
	engine := newTestEngine(t, st, []models.Rule{rule})

	if _, err := engine.EvaluateLead(context.Background(), lead); err != nil {
		t.Fatal(err)
	}

	stored, err := st.GetRule(rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Stats.TimesTriggered != 1 {
		t.Errorf("times triggered = %d, want 1", stored.Stats.TimesTriggered)
	}
	if stored.Stats.SuccessRate != 1 {
		t.Errorf("success rate = %v, want 1", stored.Stats.SuccessRate)
	}
}

func TestStoreRepositorySkipsInvalidRules(t *testing.T) {
	st := store.NewInMemoryStore()
	good := qualifyRule()
	bad := models.Rule{ID: "broken", IsActive: true} // no triggers, no actions
	if err := st.SaveRule(good); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveRule(bad); err != nil {
		t.Fatal(err)
	}

	repo := NewStoreRepository(st)
	rules, err := repo.ListActiveRules()
	if err != nil {
		t.Fatalf("ListActiveRules failed: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != good.ID {
		t.Errorf("loaded rules = %+v, want only the valid one", rules)
	}
}
