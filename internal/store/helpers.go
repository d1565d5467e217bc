package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outreachlab/leadpulse/internal/models"
)

// nullTime returns nil for a zero time so nullable columns stay NULL.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// leadScanner abstracts sql.Row and sql.Rows for shared scanning.
type leadScanner interface {
	Scan(dest ...interface{}) error
}

func scanLeadFrom(sc leadScanner) (*models.Lead, error) {
	var lead models.Lead
	var name, company, phone sql.NullString
	var lastContact, statusUpdated, createdAt, updatedAt sql.NullTime
	err := sc.Scan(
		&lead.ID, &name, &company, &phone, &lead.Status,
		&lead.QualificationScore, &lead.SentimentScore,
		&lead.EngagementScore, &lead.PreviousEngagementScore,
		&lastContact, &statusUpdated, &lead.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	lead.Name = name.String
	lead.Company = company.String
	lead.Phone = phone.String
	lead.LastContactDate = lastContact.Time
	lead.StatusUpdatedAt = statusUpdated.Time
	lead.CreatedAt = createdAt.Time
	lead.UpdatedAt = updatedAt.Time
	return &lead, nil
}

func scanLead(row *sql.Row) (*models.Lead, error) { return scanLeadFrom(row) }

func scanLeadRows(rows *sql.Rows) (*models.Lead, error) { return scanLeadFrom(rows) }

// marshalRule serializes the full rule definition. Rolling stats live in
// dedicated columns; the copy inside the JSON document is ignored on load.
func marshalRule(rule models.Rule) (string, error) {
	b, err := json.Marshal(rule)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rule %s: %w", rule.ID, err)
	}
	return string(b), nil
}

func scanRuleFrom(sc leadScanner) (*models.Rule, error) {
	var definition string
	var isActive bool
	var stats models.RuleStats
	if err := sc.Scan(&definition, &isActive, &stats.TimesTriggered, &stats.SuccessRate, &stats.AverageImpact); err != nil {
		return nil, err
	}
	var rule models.Rule
	if err := json.Unmarshal([]byte(definition), &rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule definition: %w", err)
	}
	rule.IsActive = isActive
	rule.Stats = stats
	return &rule, nil
}

func scanRuleRow(row *sql.Row) (*models.Rule, error) { return scanRuleFrom(row) }

func scanRuleRows(rows *sql.Rows) (*models.Rule, error) { return scanRuleFrom(rows) }

func marshalTimeline(tl models.SentimentTimeline) (string, error) {
	b, err := json.Marshal(tl)
	if err != nil {
		return "", fmt.Errorf("failed to marshal timeline for %s: %w", tl.LeadID, err)
	}
	return string(b), nil
}

func unmarshalTimeline(doc string) (*models.SentimentTimeline, error) {
	var tl models.SentimentTimeline
	if err := json.Unmarshal([]byte(doc), &tl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timeline: %w", err)
	}
	return &tl, nil
}

func marshalEvaluation(res models.RuleEvaluationResult) (string, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to marshal evaluation %s: %w", res.ID, err)
	}
	return string(b), nil
}

func unmarshalEvaluation(doc string) (*models.RuleEvaluationResult, error) {
	var res models.RuleEvaluationResult
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
	}
	return &res, nil
}

func marshalAudit(rec models.AuditRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit record %s: %w", rec.ID, err)
	}
	return string(b), nil
}

func unmarshalAudit(doc string) (*models.AuditRecord, error) {
	var rec models.AuditRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
	}
	return &rec, nil
}
