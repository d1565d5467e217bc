// Package store provides storage backends for LeadPulse.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/outreachlab/leadpulse/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the PostgreSQL-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// SaveLead inserts or replaces a lead record.
func (s *PostgresStore) SaveLead(lead models.Lead) error {
	_, err := s.db.Exec(`
		INSERT INTO leads
		(id, name, company, phone, status, qualification_score, sentiment_score,
		 engagement_score, previous_engagement_score, last_contact_date,
		 status_updated_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, company = EXCLUDED.company, phone = EXCLUDED.phone,
			status = EXCLUDED.status, qualification_score = EXCLUDED.qualification_score,
			sentiment_score = EXCLUDED.sentiment_score,
			engagement_score = EXCLUDED.engagement_score,
			previous_engagement_score = EXCLUDED.previous_engagement_score,
			last_contact_date = EXCLUDED.last_contact_date,
			status_updated_at = EXCLUDED.status_updated_at,
			version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		lead.ID, lead.Name, lead.Company, lead.Phone, lead.Status,
		lead.QualificationScore, lead.SentimentScore, lead.EngagementScore,
		lead.PreviousEngagementScore, nullTime(lead.LastContactDate),
		nullTime(lead.StatusUpdatedAt), lead.Version, lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveLead failed", "error", err, "leadID", lead.ID)
		return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}
	slog.Debug("PostgresStore SaveLead succeeded", "leadID", lead.ID, "status", lead.Status)
	return nil
}

// GetLead returns a lead by id, or models.ErrLeadNotFound.
func (s *PostgresStore) GetLead(id string) (*models.Lead, error) {
	row := s.db.QueryRow(`
		SELECT id, name, company, phone, status, qualification_score, sentiment_score,
		       engagement_score, previous_engagement_score, last_contact_date,
		       status_updated_at, version, created_at, updated_at
		FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrLeadNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetLead failed", "error", err, "leadID", id)
		return nil, err
	}
	return lead, nil
}

// ListLeads returns all leads ordered by id.
func (s *PostgresStore) ListLeads() ([]models.Lead, error) {
	rows, err := s.db.Query(`
		SELECT id, name, company, phone, status, qualification_score, sentiment_score,
		       engagement_score, previous_engagement_score, last_contact_date,
		       status_updated_at, version, created_at, updated_at
		FROM leads ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLeadRows(rows)
		if err != nil {
			slog.Error("PostgresStore ListLeads scan failed", "error", err)
			return nil, err
		}
		leads = append(leads, *lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	slog.Debug("PostgresStore ListLeads succeeded", "count", len(leads))
	return leads, nil
}

// UpdateLeadStatusCAS applies a compare-and-swap status write keyed on version.
func (s *PostgresStore) UpdateLeadStatusCAS(id string, newStatus models.LeadStatus, expectedVersion int64) (*models.Lead, error) {
	now := time.Now()
	res, err := s.db.Exec(`
		UPDATE leads SET status = $1, status_updated_at = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		newStatus, now, now, id, expectedVersion)
	if err != nil {
		slog.Error("PostgresStore UpdateLeadStatusCAS failed", "error", err, "leadID", id)
		return nil, fmt.Errorf("failed to update lead %s status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.GetLead(id); err != nil {
			return nil, err
		}
		slog.Debug("PostgresStore CAS conflict", "leadID", id, "expectedVersion", expectedVersion)
		return nil, models.ErrConcurrencyConflict
	}
	return s.GetLead(id)
}

// SaveRule inserts or replaces a rule, storing the definition as JSON and the
// rolling stats in dedicated columns.
func (s *PostgresStore) SaveRule(rule models.Rule) error {
	definition, err := marshalRule(rule)
	if err != nil {
		slog.Error("PostgresStore SaveRule marshal failed", "error", err, "ruleID", rule.ID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO rules
		(id, name, definition, is_active, times_triggered, success_rate, average_impact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, definition = EXCLUDED.definition,
			is_active = EXCLUDED.is_active, times_triggered = EXCLUDED.times_triggered,
			success_rate = EXCLUDED.success_rate, average_impact = EXCLUDED.average_impact,
			updated_at = EXCLUDED.updated_at`,
		rule.ID, rule.Name, definition, rule.IsActive,
		rule.Stats.TimesTriggered, rule.Stats.SuccessRate, rule.Stats.AverageImpact,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveRule failed", "error", err, "ruleID", rule.ID)
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	slog.Debug("PostgresStore SaveRule succeeded", "ruleID", rule.ID)
	return nil
}

// GetRule returns a rule by id, or models.ErrRuleNotFound.
func (s *PostgresStore) GetRule(id string) (*models.Rule, error) {
	row := s.db.QueryRow(`
		SELECT definition, is_active, times_triggered, success_rate, average_impact
		FROM rules WHERE id = $1`, id)
	rule, err := scanRuleRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrRuleNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetRule failed", "error", err, "ruleID", id)
		return nil, err
	}
	return rule, nil
}

// ListActiveRules returns all active rules ordered by id.
func (s *PostgresStore) ListActiveRules() ([]models.Rule, error) {
	rows, err := s.db.Query(`
		SELECT definition, is_active, times_triggered, success_rate, average_impact
		FROM rules WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListActiveRules query failed", "error", err)
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRuleRows(rows)
		if err != nil {
			slog.Error("PostgresStore ListActiveRules scan failed", "error", err)
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveRules succeeded", "count", len(rules))
	return rules, nil
}

// UpdateRuleStats writes back a rule's rolling statistics.
func (s *PostgresStore) UpdateRuleStats(id string, stats models.RuleStats) error {
	res, err := s.db.Exec(`
		UPDATE rules SET times_triggered = $1, success_rate = $2, average_impact = $3, updated_at = $4
		WHERE id = $5`,
		stats.TimesTriggered, stats.SuccessRate, stats.AverageImpact, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateRuleStats failed", "error", err, "ruleID", id)
		return fmt.Errorf("failed to update rule %s stats: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

// SaveTimeline appends a completed analysis run.
func (s *PostgresStore) SaveTimeline(tl models.SentimentTimeline) error {
	doc, err := marshalTimeline(tl)
	if err != nil {
		slog.Error("PostgresStore SaveTimeline marshal failed", "error", err, "leadID", tl.LeadID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO timelines (call_id, lead_id, timeline) VALUES ($1, $2, $3)`,
		tl.CallID, tl.LeadID, doc)
	if err != nil {
		slog.Error("PostgresStore SaveTimeline failed", "error", err, "leadID", tl.LeadID)
		return fmt.Errorf("failed to save timeline for %s: %w", tl.LeadID, err)
	}
	slog.Debug("PostgresStore SaveTimeline succeeded", "leadID", tl.LeadID, "callID", tl.CallID)
	return nil
}

// GetLatestTimeline returns the most recent timeline for the lead, or nil.
func (s *PostgresStore) GetLatestTimeline(leadID string) (*models.SentimentTimeline, error) {
	var doc string
	err := s.db.QueryRow(`
		SELECT timeline FROM timelines WHERE lead_id = $1 ORDER BY id DESC LIMIT 1`, leadID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestTimeline failed", "error", err, "leadID", leadID)
		return nil, err
	}
	return unmarshalTimeline(doc)
}

// AddEvaluation appends an evaluation result.
func (s *PostgresStore) AddEvaluation(res models.RuleEvaluationResult) error {
	doc, err := marshalEvaluation(res)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO evaluations (id, lead_id, rule_id, constraints_passed, fired, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.LeadID, res.RuleID, res.ConstraintsPassed, res.Fired, doc, res.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddEvaluation failed", "error", err, "leadID", res.LeadID, "ruleID", res.RuleID)
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns evaluation results for a lead in append order.
func (s *PostgresStore) ListEvaluations(leadID string) ([]models.RuleEvaluationResult, error) {
	rows, err := s.db.Query(`SELECT result FROM evaluations WHERE lead_id = $1 ORDER BY created_at`, leadID)
	if err != nil {
		slog.Error("PostgresStore ListEvaluations query failed", "error", err, "leadID", leadID)
		return nil, err
	}
	defer rows.Close()

	var out []models.RuleEvaluationResult
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		res, err := unmarshalEvaluation(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// AddAuditRecord appends an audit record.
func (s *PostgresStore) AddAuditRecord(rec models.AuditRecord) error {
	doc, err := marshalAudit(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO audit_records (id, lead_id, rule_id, record, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.LeadID, rec.RuleID, doc, rec.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddAuditRecord failed", "error", err, "leadID", rec.LeadID)
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListAuditRecords returns audit records for a lead in append order.
func (s *PostgresStore) ListAuditRecords(leadID string) ([]models.AuditRecord, error) {
	rows, err := s.db.Query(`SELECT record FROM audit_records WHERE lead_id = $1 ORDER BY created_at`, leadID)
	if err != nil {
		slog.Error("PostgresStore ListAuditRecords query failed", "error", err, "leadID", leadID)
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec, err := unmarshalAudit(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetLastFired returns the last firing time for (leadID, ruleID), or nil.
func (s *PostgresStore) GetLastFired(leadID, ruleID string) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRow(`
		SELECT last_fired_at FROM rule_firings WHERE lead_id = $1 AND rule_id = $2`,
		leadID, ruleID).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLastFired failed", "error", err, "leadID", leadID, "ruleID", ruleID)
		return nil, err
	}
	return &at, nil
}

// SetLastFired records a firing time for (leadID, ruleID).
func (s *PostgresStore) SetLastFired(leadID, ruleID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO rule_firings (lead_id, rule_id, last_fired_at) VALUES ($1, $2, $3)
		ON CONFLICT (lead_id, rule_id) DO UPDATE SET last_fired_at = EXCLUDED.last_fired_at`,
		leadID, ruleID, at)
	if err != nil {
		slog.Error("PostgresStore SetLastFired failed", "error", err, "leadID", leadID, "ruleID", ruleID)
		return err
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
