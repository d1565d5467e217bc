// Package store provides storage backends for LeadPulse.
//
// It includes an in-memory store for tests and single-process use, plus
// SQLite and PostgreSQL backends with the same schema.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/outreachlab/leadpulse/internal/models"
)

// Store is the persistence surface consumed by the engine: lead signal state
// with optimistic concurrency, rule definitions and rolling stats, produced
// timelines, append-only evaluation and audit records, and per-(lead, rule)
// cooldown marks.
type Store interface {
	SaveLead(lead models.Lead) error
	GetLead(id string) (*models.Lead, error)
	ListLeads() ([]models.Lead, error)
	// UpdateLeadStatusCAS writes a new status if and only if the stored
	// version still equals expectedVersion. Returns the updated lead, or
	// models.ErrConcurrencyConflict on a stale version.
	UpdateLeadStatusCAS(id string, newStatus models.LeadStatus, expectedVersion int64) (*models.Lead, error)

	SaveRule(rule models.Rule) error
	GetRule(id string) (*models.Rule, error)
	ListActiveRules() ([]models.Rule, error)
	UpdateRuleStats(id string, stats models.RuleStats) error

	SaveTimeline(tl models.SentimentTimeline) error
	GetLatestTimeline(leadID string) (*models.SentimentTimeline, error)

	AddEvaluation(res models.RuleEvaluationResult) error
	ListEvaluations(leadID string) ([]models.RuleEvaluationResult, error)
	AddAuditRecord(rec models.AuditRecord) error
	ListAuditRecords(leadID string) ([]models.AuditRecord, error)

	// Cooldown bookkeeping per (leadID, ruleID).
	GetLastFired(leadID, ruleID string) (*time.Time, error)
	SetLastFired(leadID, ruleID string, at time.Time) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN (file path for SQLite, URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a mutex-guarded in-memory Store.
type InMemoryStore struct {
	mu          sync.RWMutex
	leads       map[string]models.Lead
	rules       map[string]models.Rule
	timelines   map[string][]models.SentimentTimeline
	evaluations []models.RuleEvaluationResult
	audits      []models.AuditRecord
	lastFired   map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leads:     make(map[string]models.Lead),
		rules:     make(map[string]models.Rule),
		timelines: make(map[string][]models.SentimentTimeline),
		lastFired: make(map[string]time.Time),
	}
}

// SaveLead inserts or replaces a lead record.
func (s *InMemoryStore) SaveLead(lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID] = lead
	return nil
}

// GetLead returns a lead by id, or models.ErrLeadNotFound.
func (s *InMemoryStore) GetLead(id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, models.ErrLeadNotFound
	}
	return &lead, nil
}

// ListLeads returns all leads ordered by id.
func (s *InMemoryStore) ListLeads() ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateLeadStatusCAS applies a compare-and-swap status write.
func (s *InMemoryStore) UpdateLeadStatusCAS(id string, newStatus models.LeadStatus, expectedVersion int64) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, models.ErrLeadNotFound
	}
	if lead.Version != expectedVersion {
		slog.Debug("InMemoryStore CAS conflict", "leadID", id, "expected", expectedVersion, "actual", lead.Version)
		return nil, models.ErrConcurrencyConflict
	}
	now := time.Now()
	lead.Status = newStatus
	lead.StatusUpdatedAt = now
	lead.UpdatedAt = now
	lead.Version++
	s.leads[id] = lead
	return &lead, nil
}

// SaveRule inserts or replaces a rule definition.
func (s *InMemoryStore) SaveRule(rule models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

// GetRule returns a rule by id, or models.ErrRuleNotFound.
func (s *InMemoryStore) GetRule(id string) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, models.ErrRuleNotFound
	}
	return &rule, nil
}

// ListActiveRules returns active rules ordered by id.
func (s *InMemoryStore) ListActiveRules() ([]models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Rule
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateRuleStats replaces a rule's rolling statistics.
func (s *InMemoryStore) UpdateRuleStats(id string, stats models.RuleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return models.ErrRuleNotFound
	}
	rule.Stats = stats
	rule.UpdatedAt = time.Now()
	s.rules[id] = rule
	return nil
}

// SaveTimeline appends a completed analysis run for the lead.
func (s *InMemoryStore) SaveTimeline(tl models.SentimentTimeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines[tl.LeadID] = append(s.timelines[tl.LeadID], tl)
	return nil
}

// GetLatestTimeline returns the most recent timeline for the lead, or nil.
func (s *InMemoryStore) GetLatestTimeline(leadID string) (*models.SentimentTimeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := s.timelines[leadID]
	if len(runs) == 0 {
		return nil, nil
	}
	tl := runs[len(runs)-1]
	return &tl, nil
}

// AddEvaluation appends an evaluation result.
func (s *InMemoryStore) AddEvaluation(res models.RuleEvaluationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations = append(s.evaluations, res)
	return nil
}

// ListEvaluations returns evaluation results for a lead in append order.
func (s *InMemoryStore) ListEvaluations(leadID string) ([]models.RuleEvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RuleEvaluationResult
	for _, e := range s.evaluations {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}

// AddAuditRecord appends an audit record.
func (s *InMemoryStore) AddAuditRecord(rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, rec)
	return nil
}

// ListAuditRecords returns audit records for a lead in append order.
func (s *InMemoryStore) ListAuditRecords(leadID string) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditRecord
	for _, a := range s.audits {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetLastFired returns the last firing time for (leadID, ruleID), or nil.
func (s *InMemoryStore) GetLastFired(leadID, ruleID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.lastFired[leadID+"\x00"+ruleID]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

// SetLastFired records a firing time for (leadID, ruleID).
func (s *InMemoryStore) SetLastFired(leadID, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFired[leadID+"\x00"+ruleID] = at
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
