package actions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/outreachlab/leadpulse/internal/models"
	"github.com/outreachlab/leadpulse/internal/notify"
	"github.com/outreachlab/leadpulse/internal/schedule"
	"github.com/outreachlab/leadpulse/internal/store"
)

// failingScheduler always refuses to schedule.
type failingScheduler struct{}

func (failingScheduler) Schedule(ctx context.Context, leadID, followUpType, priority string) (string, error) {
	return "", errors.New("calendar service down")
}

// conflictingStore wraps a Store and forces CAS conflicts a set number of times.
type conflictingStore struct {
	store.Store
	conflicts int
}

func (s *conflictingStore) UpdateLeadStatusCAS(id string, newStatus models.LeadStatus, expectedVersion int64) (*models.Lead, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return nil, models.ErrConcurrencyConflict
	}
	return s.Store.UpdateLeadStatusCAS(id, newStatus, expectedVersion)
}

// capturingPublisher records published audit records.
type capturingPublisher struct {
	records []models.AuditRecord
	err     error
}

func (p *capturingPublisher) PublishAudit(rec models.AuditRecord) error {
	p.records = append(p.records, rec)
	return p.err
}

func newTestExecutor(st store.Store, opts ...ExecutorOption) *Executor {
	dispatcher := notify.NewDispatcher()
	dispatcher.Register("log", notify.LogSender{})
	return NewExecutor(st, schedule.NewLogScheduler(), dispatcher, opts...)
}

func testLead() models.Lead {
	return models.Lead{ID: "lead-1", Name: "Dana", Status: models.StatusContacted, Version: 1}
}

func statusRule(actions ...models.Action) models.Rule {
	return models.Rule{ID: "r1", Actions: actions}
}

func TestExecuteStatusChange(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := testLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	executor := newTestExecutor(st)

	rule := statusRule(models.Action{Kind: models.ActionStatusChange, NewStatus: models.StatusQualified})
	results := executor.ExecuteActions(context.Background(), lead, rule, []float64{0.9})

	if len(results) != 1 || !results[0].Succeeded {
		t.Fatalf("results = %+v", results)
	}
	fresh, _ := st.GetLead("lead-1")
	if fresh.Status != models.StatusQualified || fresh.Version != 2 {
		t.Errorf("lead after action = %+v", fresh)
	}
}

func TestInvalidTransitionFailsActionNotSiblings(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := testLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	executor := newTestExecutor(st)

	// contacted -> converted is not allowed; the notification after it must
	// still run.
	rule := statusRule(
		models.Action{Kind: models.ActionStatusChange, NewStatus: models.StatusConverted},
		models.Action{Kind: models.ActionSendNotification, Channel: "log", Template: "ping"},
	)
	results := executor.ExecuteActions(context.Background(), lead, rule, nil)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Succeeded {
		t.Error("invalid transition reported as success")
	}
	if !strings.Contains(results[0].Error, "invalid") && !strings.Contains(results[0].Error, "transition") {
		t.Errorf("error does not describe the transition: %q", results[0].Error)
	}
	if !results[1].Succeeded {
		t.Errorf("sibling notification failed: %q", results[1].Error)
	}
	fresh, _ := st.GetLead("lead-1")
	if fresh.Status != models.StatusContacted {
		t.Errorf("lead mutated by failed action: %s", fresh.Status)
	}
}

func TestCASConflictRetriesWithFreshState(t *testing.T) {
	inner := store.NewInMemoryStore()
	lead := testLead()
	if err := inner.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	st := &conflictingStore{Store: inner, conflicts: 1}
	executor := newTestExecutor(st)

	rule := statusRule(models.Action{Kind: models.ActionStatusChange, NewStatus: models.StatusQualified})
	results := executor.ExecuteActions(context.Background(), lead, rule, nil)

	if !results[0].Succeeded {
		t.Fatalf("retry after one conflict failed: %q", results[0].Error)
	}
	fresh, _ := inner.GetLead("lead-1")
	if fresh.Status != models.StatusQualified {
		t.Errorf("status = %s, want qualified", fresh.Status)
	}
}

func TestCASConflictTwiceDefers(t *testing.T) {
	inner := store.NewInMemoryStore()
	lead := testLead()
	if err := inner.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	st := &conflictingStore{Store: inner, conflicts: 2}
	executor := newTestExecutor(st)

	rule := statusRule(models.Action{Kind: models.ActionStatusChange, NewStatus: models.StatusQualified})
	results := executor.ExecuteActions(context.Background(), lead, rule, nil)

	if results[0].Succeeded {
		t.Fatal("persistent conflict reported as success")
	}
	if results[0].Error != models.ErrConcurrencyConflict.Error() {
		t.Errorf("error = %q, want concurrency conflict", results[0].Error)
	}
	fresh, _ := inner.GetLead("lead-1")
	if fresh.Status != models.StatusContacted {
		t.Errorf("status = %s, want unchanged contacted", fresh.Status)
	}
}

func TestScheduleMeetingFailureRecorded(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := testLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	dispatcher := notify.NewDispatcher()
	executor := NewExecutor(st, failingScheduler{}, dispatcher)

	rule := statusRule(models.Action{Kind: models.ActionScheduleMeeting, FollowUpType: "demo", Priority: "high"})
	results := executor.ExecuteActions(context.Background(), lead, rule, nil)

	if results[0].Succeeded {
		t.Error("scheduling failure reported as success")
	}
	if results[0].Error == "" {
		t.Error("scheduling failure has no error text")
	}
}

func TestScheduleMeetingReturnsEventID(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := testLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	executor := newTestExecutor(st)

	rule := statusRule(models.Action{Kind: models.ActionScheduleMeeting, FollowUpType: "demo", Priority: "high"})
	results := executor.ExecuteActions(context.Background(), lead, rule, nil)
	if !results[0].Succeeded || results[0].EventID == "" {
		t.Errorf("result = %+v, want success with event id", results[0])
	}
}

func TestUnknownNotificationChannelFails(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := testLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	executor := newTestExecutor(st)

	rule := statusRule(models.Action{Kind: models.ActionSendNotification, Channel: "carrier-pigeon", Template: "coo"})
	results := executor.ExecuteActions(context.Background(), lead, rule, nil)
	if results[0].Succeeded {
		t.Error("unknown channel reported as success")
	}
}

func TestEveryActionAudited(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := testLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	publisher := &capturingPublisher{}
	executor := newTestExecutor(st, WithAuditPublisher(publisher))

	rule := statusRule(
		models.Action{Kind: models.ActionStatusChange, NewStatus: models.StatusQualified},
		models.Action{Kind: models.ActionStatusChange, NewStatus: models.StatusNew}, // invalid
		models.Action{Kind: models.ActionSendNotification, Channel: "log", Template: "ok"},
	)
	confidences := []float64{0.7, 0.4}
	executor.ExecuteActions(context.Background(), lead, rule, confidences)

	audits, _ := st.ListAuditRecords("lead-1")
	if len(audits) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(audits))
	}
	if audits[0].PreviousStatus != models.StatusContacted || audits[0].NewStatus != models.StatusQualified {
		t.Errorf("first audit transition = %s -> %s", audits[0].PreviousStatus, audits[0].NewStatus)
	}
	// The second action failed; its audit keeps the post-first-action state.
	if audits[1].Succeeded {
		t.Error("failed action audited as success")
	}
	if audits[1].PreviousStatus != models.StatusQualified {
		t.Errorf("second audit previous status = %s, want qualified", audits[1].PreviousStatus)
	}
	for _, rec := range audits {
		if len(rec.TriggerConfidences) != len(confidences) {
			t.Errorf("audit %s missing trigger confidences", rec.ID)
		}
	}
	if len(publisher.records) != 3 {
		t.Errorf("feed received %d records, want 3", len(publisher.records))
	}
}

func TestFeedFailureIsNonFatal(t *testing.T) {
	st := store.NewInMemoryStore()
	lead := testLead()
	if err := st.SaveLead(lead); err != nil {
		t.Fatal(err)
	}
	publisher := &capturingPublisher{err: errors.New("broker unreachable")}
	executor := newTestExecutor(st, WithAuditPublisher(publisher))

	rule := statusRule(models.Action{Kind: models.ActionStatusChange, NewStatus: models.StatusQualified})
	results := executor.ExecuteActions(context.Background(), lead, rule, nil)
	if !results[0].Succeeded {
		t.Error("feed failure leaked into action result")
	}
	audits, _ := st.ListAuditRecords("lead-1")
	if len(audits) != 1 {
		t.Errorf("local audit trail incomplete: %d records", len(audits))
	}
}
