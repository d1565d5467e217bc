// Package store provides storage backends for LeadPulse.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/outreachlab/leadpulse/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the SQLite-backed Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given options. The DSN
// is a file path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveLead inserts or replaces a lead record.
func (s *SQLiteStore) SaveLead(lead models.Lead) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO leads
		(id, name, company, phone, status, qualification_score, sentiment_score,
		 engagement_score, previous_engagement_score, last_contact_date,
		 status_updated_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Name, lead.Company, lead.Phone, lead.Status,
		lead.QualificationScore, lead.SentimentScore, lead.EngagementScore,
		lead.PreviousEngagementScore, nullTime(lead.LastContactDate),
		nullTime(lead.StatusUpdatedAt), lead.Version, lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveLead failed", "error", err, "leadID", lead.ID)
		return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}
	slog.Debug("SQLiteStore SaveLead succeeded", "leadID", lead.ID, "status", lead.Status)
	return nil
}

// GetLead returns a lead by id, or models.ErrLeadNotFound.
func (s *SQLiteStore) GetLead(id string) (*models.Lead, error) {
	row := s.db.QueryRow(`
		SELECT id, name, company, phone, status, qualification_score, sentiment_score,
		       engagement_score, previous_engagement_score, last_contact_date,
		       status_updated_at, version, created_at, updated_at
		FROM leads WHERE id = ?`, id)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrLeadNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetLead failed", "error", err, "leadID", id)
		return nil, err
	}
	return lead, nil
}

// ListLeads returns all leads ordered by id.
func (s *SQLiteStore) ListLeads() ([]models.Lead, error) {
	rows, err := s.db.Query(`
		SELECT id, name, company, phone, status, qualification_score, sentiment_score,
		       engagement_score, previous_engagement_score, last_contact_date,
		       status_updated_at, version, created_at, updated_at
		FROM leads ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLeadRows(rows)
		if err != nil {
			slog.Error("SQLiteStore ListLeads scan failed", "error", err)
			return nil, err
		}
		leads = append(leads, *lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	slog.Debug("SQLiteStore ListLeads succeeded", "count", len(leads))
	return leads, nil
}

// UpdateLeadStatusCAS applies a compare-and-swap status write keyed on version.
func (s *SQLiteStore) UpdateLeadStatusCAS(id string, newStatus models.LeadStatus, expectedVersion int64) (*models.Lead, error) {
	now := time.Now()
	res, err := s.db.Exec(`
		UPDATE leads SET status = ?, status_updated_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		newStatus, now, now, id, expectedVersion)
	if err != nil {
		slog.Error("SQLiteStore UpdateLeadStatusCAS failed", "error", err, "leadID", id)
		return nil, fmt.Errorf("failed to update lead %s status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either the lead is gone or the version moved under us.
		if _, err := s.GetLead(id); err != nil {
			return nil, err
		}
		slog.Debug("SQLiteStore CAS conflict", "leadID", id, "expectedVersion", expectedVersion)
		return nil, models.ErrConcurrencyConflict
	}
	return s.GetLead(id)
}

// SaveRule inserts or replaces a rule, storing the definition as JSON and the
// rolling stats in dedicated columns.
func (s *SQLiteStore) SaveRule(rule models.Rule) error {
	definition, err := marshalRule(rule)
	if err != nil {
		slog.Error("SQLiteStore SaveRule marshal failed", "error", err, "ruleID", rule.ID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO rules
		(id, name, definition, is_active, times_triggered, success_rate, average_impact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, definition, rule.IsActive,
		rule.Stats.TimesTriggered, rule.Stats.SuccessRate, rule.Stats.AverageImpact,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveRule failed", "error", err, "ruleID", rule.ID)
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	slog.Debug("SQLiteStore SaveRule succeeded", "ruleID", rule.ID)
	return nil
}

// GetRule returns a rule by id, or models.ErrRuleNotFound.
func (s *SQLiteStore) GetRule(id string) (*models.Rule, error) {
	row := s.db.QueryRow(`
		SELECT definition, is_active, times_triggered, success_rate, average_impact
		FROM rules WHERE id = ?`, id)
	rule, err := scanRuleRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrRuleNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetRule failed", "error", err, "ruleID", id)
		return nil, err
	}
	return rule, nil
}

// ListActiveRules returns all active rules ordered by id.
func (s *SQLiteStore) ListActiveRules() ([]models.Rule, error) {
	rows, err := s.db.Query(`
		SELECT definition, is_active, times_triggered, success_rate, average_impact
		FROM rules WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListActiveRules query failed", "error", err)
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRuleRows(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActiveRules scan failed", "error", err)
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveRules succeeded", "count", len(rules))
	return rules, nil
}

// UpdateRuleStats writes back a rule's rolling statistics.
func (s *SQLiteStore) UpdateRuleStats(id string, stats models.RuleStats) error {
	res, err := s.db.Exec(`
		UPDATE rules SET times_triggered = ?, success_rate = ?, average_impact = ?, updated_at = ?
		WHERE id = ?`,
		stats.TimesTriggered, stats.SuccessRate, stats.AverageImpact, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateRuleStats failed", "error", err, "ruleID", id)
		return fmt.Errorf("failed to update rule %s stats: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

// SaveTimeline appends a completed analysis run.
func (s *SQLiteStore) SaveTimeline(tl models.SentimentTimeline) error {
	doc, err := marshalTimeline(tl)
	if err != nil {
		slog.Error("SQLiteStore SaveTimeline marshal failed", "error", err, "leadID", tl.LeadID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO timelines (call_id, lead_id, timeline) VALUES (?, ?, ?)`,
		tl.CallID, tl.LeadID, doc)
	if err != nil {
		slog.Error("SQLiteStore SaveTimeline failed", "error", err, "leadID", tl.LeadID)
		return fmt.Errorf("failed to save timeline for %s: %w", tl.LeadID, err)
	}
	slog.Debug("SQLiteStore SaveTimeline succeeded", "leadID", tl.LeadID, "callID", tl.CallID)
	return nil
}

// GetLatestTimeline returns the most recent timeline for the lead, or nil.
func (s *SQLiteStore) GetLatestTimeline(leadID string) (*models.SentimentTimeline, error) {
	var doc string
	err := s.db.QueryRow(`
		SELECT timeline FROM timelines WHERE lead_id = ? ORDER BY id DESC LIMIT 1`, leadID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestTimeline failed", "error", err, "leadID", leadID)
		return nil, err
	}
	return unmarshalTimeline(doc)
}

// AddEvaluation appends an evaluation result.
func (s *SQLiteStore) AddEvaluation(res models.RuleEvaluationResult) error {
	doc, err := marshalEvaluation(res)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO evaluations (id, lead_id, rule_id, constraints_passed, fired, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.LeadID, res.RuleID, res.ConstraintsPassed, res.Fired, doc, res.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddEvaluation failed", "error", err, "leadID", res.LeadID, "ruleID", res.RuleID)
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns evaluation results for a lead in append order.
func (s *SQLiteStore) ListEvaluations(leadID string) ([]models.RuleEvaluationResult, error) {
	rows, err := s.db.Query(`SELECT result FROM evaluations WHERE lead_id = ? ORDER BY created_at`, leadID)
	if err != nil {
		slog.Error("SQLiteStore ListEvaluations query failed", "error", err, "leadID", leadID)
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
func (s *SQLiteStore) AddAuditRecord(rec models.AuditRecord) error {
	doc, err := marshalAudit(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO audit_records (id, lead_id, rule_id, record, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.LeadID, rec.RuleID, doc, rec.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddAuditRecord failed", "error", err, "leadID", rec.LeadID)
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListAuditRecords returns audit records for a lead in append order.
func (s *SQLiteStore) ListAuditRecords(leadID string) ([]models.AuditRecord, error) {
	rows, err := s.db.Query(`SELECT record FROM audit_records WHERE lead_id = ? ORDER BY created_at`, leadID)
	if err != nil {
		slog.Error("SQLiteStore ListAuditRecords query failed", "error", err, "leadID", leadID)
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
func (s *SQLiteStore) GetLastFired(leadID, ruleID string) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRow(`
		SELECT last_fired_at FROM rule_firings WHERE lead_id = ? AND rule_id = ?`,
		leadID, ruleID).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLastFired failed", "error", err, "leadID", leadID, "ruleID", ruleID)
		return nil, err
	}
	return &at, nil
}

// SetLastFired records a firing time for (leadID, ruleID).
func (s *SQLiteStore) SetLastFired(leadID, ruleID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO rule_firings (lead_id, rule_id, last_fired_at) VALUES (?, ?, ?)`,
		leadID, ruleID, at)
	if err != nil {
		slog.Error("SQLiteStore SetLastFired failed", "error", err, "leadID", leadID, "ruleID", ruleID)
		return err
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
