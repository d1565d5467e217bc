// Package schedule defines the pluggable follow-up scheduling capability.
//
// The real calendar system is an external collaborator; the engine only
// requests follow-ups through this interface and records the outcome.
package schedule

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Scheduler requests a follow-up for a lead and returns the created event id.
type Scheduler interface {
	Schedule(ctx context.Context, leadID, followUpType, priority string) (string, error)
}

// LogScheduler is a stand-in Scheduler that only logs the request. Used when
// no calendar integration is configured, so rule actions still complete and
// audit cleanly.
type LogScheduler struct{}

// NewLogScheduler creates a logging scheduler.
func NewLogScheduler() *LogScheduler {
	return &LogScheduler{}
}

// Schedule logs the request and fabricates an event id.
func (s *LogScheduler) Schedule(ctx context.Context, leadID, followUpType, priority string) (string, error) {
	eventID := uuid.NewString()
	slog.Info("LogScheduler follow-up requested", "leadID", leadID, "followUpType", followUpType, "priority", priority, "eventID", eventID)
	return eventID, nil
}
