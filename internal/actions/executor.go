// Package actions applies the side effects of fired rules.
//
// Status changes go through a compare-and-swap on the lead's version so a
// real-time evaluation and a concurrent batch sweep can never silently
// overwrite each other. Scheduling and notification are delegated to
// capability interfaces; their failures are recorded, never fatal.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/outreachlab/leadpulse/internal/metrics"
	"github.com/outreachlab/leadpulse/internal/models"
	"github.com/outreachlab/leadpulse/internal/notify"
	"github.com/outreachlab/leadpulse/internal/schedule"
	"github.com/outreachlab/leadpulse/internal/store"
)

// AuditPublisher forwards audit records to an activity feed. Optional;
// publish failures are logged and swallowed.
type AuditPublisher interface {
	PublishAudit(rec models.AuditRecord) error
}

// Executor applies rule actions against lead signal state.
type Executor struct {
	store     store.Store
	scheduler schedule.Scheduler
	notifier  *notify.Dispatcher
	feed      AuditPublisher
}

// ExecutorOption defines a configuration option for the executor.
type ExecutorOption func(*Executor)

// WithAuditPublisher attaches an activity-feed publisher.
func WithAuditPublisher(p AuditPublisher) ExecutorOption {
	return func(e *Executor) { e.feed = p }
}

// NewExecutor creates an action executor.
func NewExecutor(st store.Store, sched schedule.Scheduler, dispatcher *notify.Dispatcher, opts ...ExecutorOption) *Executor {
	e := &Executor{store: st, scheduler: sched, notifier: dispatcher}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteActions runs a fired rule's actions in declared order. One failing
// action never aborts its siblings; every action is audited either way. The
// returned results preserve action order.
func (e *Executor) ExecuteActions(ctx context.Context, lead models.Lead, rule models.Rule, confidences []float64) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(rule.Actions))
	current := lead

	for _, action := range rule.Actions {
		before := current
		var result models.ActionResult
		switch action.Kind {
		case models.ActionStatusChange:
			var updated *models.Lead
			result, updated = e.executeStatusChange(ctx, current, action)
			if updated != nil {
				current = *updated
			}
		case models.ActionScheduleMeeting:
			result = e.executeScheduleMeeting(ctx, current, action)
		case models.ActionSendNotification:
			result = e.executeSendNotification(ctx, current, action)
		default:
			result = models.ActionResult{Action: action, Succeeded: false, Error: models.ErrUnknownActionKind.Error()}
		}

		if result.Succeeded {
			metrics.ActionsExecuted.WithLabelValues(string(action.Kind)).Inc()
		} else {
			metrics.ActionFailures.WithLabelValues(string(action.Kind)).Inc()
		}
		e.audit(before, current, rule, result, confidences)
		results = append(results, result)
	}
	return results
}

// executeStatusChange validates the transition and writes the new status with
// one CAS retry. On a second conflict the write is surfaced as a failure and
// left for the next evaluation sweep, which re-reads fresh state.
func (e *Executor) executeStatusChange(ctx context.Context, lead models.Lead, action models.Action) (models.ActionResult, *models.Lead) {
	result := models.ActionResult{Action: action}

	if !models.CanTransition(lead.Status, action.NewStatus) {
		slog.Warn("Executor invalid transition", "leadID", lead.ID, "from", lead.Status, "to", action.NewStatus)
		result.Error = fmt.Sprintf("%v: %s -> %s", models.ErrInvalidTransition, lead.Status, action.NewStatus)
		return result, nil
	}

	updated, err := e.store.UpdateLeadStatusCAS(lead.ID, action.NewStatus, lead.Version)
	if errors.Is(err, models.ErrConcurrencyConflict) {
		slog.Debug("Executor CAS conflict, retrying with fresh state", "leadID", lead.ID)
		fresh, getErr := e.store.GetLead(lead.ID)
		if getErr != nil {
			result.Error = getErr.Error()
			return result, nil
		}
		if !models.CanTransition(fresh.Status, action.NewStatus) {
			result.Error = fmt.Sprintf("%v: %s -> %s", models.ErrInvalidTransition, fresh.Status, action.NewStatus)
			return result, nil
		}
		updated, err = e.store.UpdateLeadStatusCAS(fresh.ID, action.NewStatus, fresh.Version)
		if errors.Is(err, models.ErrConcurrencyConflict) {
			metrics.ConcurrencyConflicts.Inc()
			slog.Warn("Executor CAS conflict persisted, deferring to next sweep", "leadID", lead.ID)
			result.Error = models.ErrConcurrencyConflict.Error()
			return result, nil
		}
	}
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	slog.Info("Executor status changed", "leadID", lead.ID, "from", lead.Status, "to", updated.Status)
	result.Succeeded = true
	return result, updated
}

// executeScheduleMeeting requests a follow-up from the scheduling capability.
func (e *Executor) executeScheduleMeeting(ctx context.Context, lead models.Lead, action models.Action) models.ActionResult {
	result := models.ActionResult{Action: action}
	eventID, err := e.scheduler.Schedule(ctx, lead.ID, action.FollowUpType, action.Priority)
	if err != nil {
		slog.Error("Executor scheduling failed", "error", err, "leadID", lead.ID, "followUpType", action.FollowUpType)
		result.Error = err.Error()
		return result
	}
	result.Succeeded = true
	result.EventID = eventID
	return result
}

// executeSendNotification dispatches the notification on the action's channel.
func (e *Executor) executeSendNotification(ctx context.Context, lead models.Lead, action models.Action) models.ActionResult {
	result := models.ActionResult{Action: action}
	if err := e.notifier.Dispatch(ctx, lead, action.Channel, action.Template); err != nil {
		slog.Error("Executor notification failed", "error", err, "leadID", lead.ID, "channel", action.Channel)
		result.Error = err.Error()
		return result
	}
	result.Succeeded = true
	return result
}

// audit appends the immutable record of one executed action and forwards it
// to the activity feed when one is attached.
func (e *Executor) audit(before, after models.Lead, rule models.Rule, result models.ActionResult, confidences []float64) {
	rec := models.AuditRecord{
		ID:                 uuid.NewString(),
		LeadID:             before.ID,
		RuleID:             rule.ID,
		Action:             result.Action,
		PreviousStatus:     before.Status,
		NewStatus:          after.Status,
		Succeeded:          result.Succeeded,
		Error:              result.Error,
		TriggerConfidences: confidences,
		Timestamp:          time.Now(),
	}
	if err := e.store.AddAuditRecord(rec); err != nil {
		slog.Error("Executor audit append failed", "error", err, "leadID", before.ID, "ruleID", rule.ID)
	}
	if e.feed != nil {
		if err := e.feed.PublishAudit(rec); err != nil {
			slog.Warn("Executor audit publish failed", "error", err, "leadID", before.ID)
		}
	}
}
