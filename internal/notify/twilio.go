// Package notify dispatches rule-triggered notifications.
//
// This file implements the Twilio-backed SMS sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/outreachlab/leadpulse/internal/models"
)

var phoneNumberRegex = regexp.MustCompile(`[^0-9+]`)

// TwilioOpts holds configuration options for the Twilio sender.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
}

// TwilioOption defines a configuration option for the Twilio sender.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID, overriding $TWILIO_ACCOUNT_SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, overriding $TWILIO_AUTH_TOKEN.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFrom sets the sending phone number, overriding $TWILIO_FROM_NUMBER.
func WithFrom(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// TwilioSender delivers SMS notifications via the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender creates a Twilio sender. Credentials fall back to the
// TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN / TWILIO_FROM_NUMBER environment
// variables.
func NewTwilioSender(opts ...TwilioOption) (*TwilioSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("twilio credentials not configured")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Debug("Creating Twilio sender", "from", cfg.From)
	return &TwilioSender{client: client, from: cfg.From}, nil
}

// Send delivers the template as an SMS to the lead's phone number.
func (s *TwilioSender) Send(ctx context.Context, lead models.Lead, template string) error {
	to, err := canonicalizePhone(lead.Phone)
	if err != nil {
		slog.Error("TwilioSender invalid recipient", "error", err, "leadID", lead.ID)
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(template)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioSender send failed", "error", err, "leadID", lead.ID)
		return fmt.Errorf("failed to send notification to %s: %w", lead.ID, err)
	}
	slog.Debug("TwilioSender send succeeded", "leadID", lead.ID)
	return nil
}

// canonicalizePhone strips formatting characters and validates the number has
// at least 6 digits.
func canonicalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("lead has no phone number")
	}
	canonical := phoneNumberRegex.ReplaceAllString(phone, "")
	digits := len(canonical)
	if len(canonical) > 0 && canonical[0] == '+' {
		digits--
	}
	if digits < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}
