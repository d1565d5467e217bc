package rules

import (
	"log/slog"

	"github.com/outreachlab/leadpulse/internal/models"
	"github.com/outreachlab/leadpulse/internal/store"
)

// Repository loads the active rule set. The engine reloads it at the start of
// every sweep, so rule edits take effect without a restart and no mutable
// rule list hides in package state.
type Repository interface {
	ListActiveRules() ([]models.Rule, error)
}

// StoreRepository loads rules from a Store, dropping definitions that fail
// validation so one malformed rule cannot stall a sweep.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository creates a store-backed rule repository.
func NewStoreRepository(st store.Store) *StoreRepository {
	return &StoreRepository{store: st}
}

// ListActiveRules returns the active, valid rules.
func (r *StoreRepository) ListActiveRules() ([]models.Rule, error) {
	loaded, err := r.store.ListActiveRules()
	if err != nil {
		return nil, err
	}
	valid := make([]models.Rule, 0, len(loaded))
	for _, rule := range loaded {
		if err := rule.Validate(); err != nil {
			slog.Warn("StoreRepository skipping invalid rule", "error", err, "ruleID", rule.ID)
			continue
		}
		valid = append(valid, rule)
	}
	slog.Debug("StoreRepository loaded rules", "total", len(loaded), "valid", len(valid))
	return valid, nil
}

// StaticRepository serves a fixed rule set. Used in tests and for rules
// defined in configuration.
type StaticRepository struct {
	rules []models.Rule
}

// NewStaticRepository creates a repository over a fixed slice of rules.
func NewStaticRepository(rules []models.Rule) *StaticRepository {
	return &StaticRepository{rules: rules}
}

// ListActiveRules returns the active subset of the fixed rules.
func (r *StaticRepository) ListActiveRules() ([]models.Rule, error) {
	var out []models.Rule
	for _, rule := range r.rules {
		if rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}
