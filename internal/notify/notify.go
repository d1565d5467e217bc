// Package notify dispatches rule-triggered notifications.
//
// A Sender delivers one message on one channel; the Dispatcher routes an
// action's channel name to the registered sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/outreachlab/leadpulse/internal/models"
)

// Sender delivers a rendered notification to a lead on one channel.
type Sender interface {
	Send(ctx context.Context, lead models.Lead, template string) error
}

// ErrUnknownChannel is returned when an action names a channel no sender is
// registered for.
var ErrUnknownChannel = fmt.Errorf("no sender registered for channel")

// Dispatcher routes notifications by channel name.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{senders: make(map[string]Sender)}
}

// Register binds a sender to a channel name, replacing any previous binding.
func (d *Dispatcher) Register(channel string, sender Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[channel] = sender
	slog.Debug("Notification sender registered", "channel", channel)
}

// Dispatch delivers a notification on the named channel.
func (d *Dispatcher) Dispatch(ctx context.Context, lead models.Lead, channel, template string) error {
	d.mu.RLock()
	sender, ok := d.senders[channel]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return sender.Send(ctx, lead, template)
}

// LogSender writes notifications to the log. Used for the "internal" channel
// and as a stand-in when no provider is configured.
type LogSender struct{}

// Send logs the notification.
func (s LogSender) Send(ctx context.Context, lead models.Lead, template string) error {
	slog.Info("Notification", "leadID", lead.ID, "template", template)
	return nil
}
