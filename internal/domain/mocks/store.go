// Package mocks provides in-memory test doubles for the domain ports.
package mocks

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/complypilot/comply-core/internal/domain/entities"
)

// Store is a map-backed ports.Store for service tests. It mirrors the SQLite
// repository's semantics: query ordering, idempotent soft delete, the
// cumulative moving average, and the mutate-once transaction guard.
type Store struct {
	Rules        map[string]*entities.ExceptionRule
	Transactions map[string]*entities.TransactionRecord
	Snapshots    map[string]*entities.KPISnapshot

	// QueryRulesErr, when set, is returned by QueryRules to exercise the
	// decision engine's degraded path.
	QueryRulesErr error
}

// NewStore creates an empty mock store.
func NewStore() *Store {
	return &Store{
		Rules:        make(map[string]*entities.ExceptionRule),
		Transactions: make(map[string]*entities.TransactionRecord),
		Snapshots:    make(map[string]*entities.KPISnapshot),
	}
}

// EnsureSchema is a no-op.
func (s *Store) EnsureSchema(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// SaveRule stores a copy of the rule.
func (s *Store) SaveRule(_ context.Context, rule *entities.ExceptionRule) error {
	copied := *rule
	s.Rules[rule.ID] = &copied
	return nil
}

// FindRule returns the rule or nil.
func (s *Store) FindRule(_ context.Context, id string) (*entities.ExceptionRule, error) {
	rule, ok := s.Rules[id]
	if !ok {
		return nil, nil
	}
	copied := *rule
	return &copied, nil
}

// QueryRules filters active rules and sorts them by the documented
// tie-break.
func (s *Store) QueryRules(_ context.Context, filter entities.RuleFilter) ([]entities.ExceptionRule, error) {
	if s.QueryRulesErr != nil {
		return nil, s.QueryRulesErr
	}

	result := make([]entities.ExceptionRule, 0, len(s.Rules))
	for _, rule := range s.Rules {
		if !rule.IsActive {
			continue
		}
		if filter.Vendor != "" && !strings.EqualFold(rule.Vendor, filter.Vendor) {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(rule.Category, filter.Category) {
			continue
		}
		if filter.RuleType != "" && rule.RuleType != filter.RuleType {
			continue
		}
		if filter.MinSuccessRate > 0 && rule.SuccessRate < filter.MinSuccessRate {
			continue
		}
		result = append(result, *rule)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].AppliedCount != result[j].AppliedCount {
			return result[i].AppliedCount > result[j].AppliedCount
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SetRuleActive flips the active flag idempotently.
func (s *Store) SetRuleActive(_ context.Context, id string, active bool, at time.Time) (bool, error) {
	rule, ok := s.Rules[id]
	if !ok || rule.IsActive == active {
		return false, nil
	}
	rule.IsActive = active
	if active {
		rule.DeletedAt = nil
	} else {
		deleted := at
		rule.DeletedAt = &deleted
	}
	return true, nil
}

// RecordRuleUsage applies the cumulative moving average.
func (s *Store) RecordRuleUsage(_ context.Context, id string, success bool, at time.Time) error {
	rule, ok := s.Rules[id]
	if !ok {
		return entities.ErrRuleNotFound
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	count := float64(rule.AppliedCount)
	rule.SuccessRate = (rule.SuccessRate*count + outcome) / (count + 1)
	rule.AppliedCount++
	applied := at
	rule.LastAppliedAt = &applied
	return nil
}

// RuleStats aggregates over the rule map.
func (s *Store) RuleStats(_ context.Context) (*entities.RuleStats, error) {
	stats := &entities.RuleStats{}
	var rateSum float64
	var rated int
	for _, rule := range s.Rules {
		stats.TotalRules++
		if rule.AppliedCount > 0 {
			rateSum += rule.SuccessRate
			rated++
		}
		if rule.IsActive {
			stats.TotalApplications += rule.AppliedCount
			if rule.AppliedCount > 0 {
				stats.ActiveRules++
			}
		}
	}
	if rated > 0 {
		stats.AvgSuccessRate = rateSum / float64(rated)
	}
	return stats, nil
}

// SaveTransaction stores a copy of the transaction.
func (s *Store) SaveTransaction(_ context.Context, tx *entities.TransactionRecord) error {
	copied := *tx
	s.Transactions[tx.ID] = &copied
	return nil
}

// FindTransaction returns the transaction or nil.
func (s *Store) FindTransaction(_ context.Context, id string) (*entities.TransactionRecord, error) {
	tx, ok := s.Transactions[id]
	if !ok {
		return nil, nil
	}
	copied := *tx
	return &copied, nil
}

// ApplyHumanDecision enforces the mutate-once guard.
func (s *Store) ApplyHumanDecision(_ context.Context, id string, decision entities.Decision, rationale string, overrode bool, trail []string, at time.Time) (bool, error) {
	tx, ok := s.Transactions[id]
	if !ok || tx.UpdatedAt != nil {
		return false, nil
	}
	tx.FinalDecision = decision
	tx.DecisionRationale = rationale
	tx.HumanOverride = overrode
	tx.AuditTrail = trail
	updated := at
	tx.UpdatedAt = &updated
	return true, nil
}

// ListTransactions returns transactions for a date, newest first.
func (s *Store) ListTransactions(_ context.Context, date string, limit int) ([]entities.TransactionRecord, error) {
	result := make([]entities.TransactionRecord, 0, len(s.Transactions))
	for _, tx := range s.Transactions {
		if date != "" && tx.CreatedAt.Format(entities.DateLayout) != date {
			continue
		}
		result = append(result, *tx)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// TransactionTotals aggregates over the transaction map.
func (s *Store) TransactionTotals(_ context.Context, date string) (*entities.TransactionTotals, error) {
	totals := &entities.TransactionTotals{}
	var processingSum float64
	for _, tx := range s.Transactions {
		if date != "" && tx.CreatedAt.Format(entities.DateLayout) != date {
			continue
		}
		totals.Total++
		processingSum += float64(tx.ProcessingMS)
		if tx.HumanOverride {
			totals.HumanCorrections++
		}
		if tx.FinalDecision == entities.DecisionApproved && !tx.HumanOverride {
			totals.AutoApproved++
		}
		if len(tx.AuditTrail) > 0 {
			totals.WithAuditTrail++
		}
	}
	if totals.Total > 0 {
		totals.AvgProcessingMS = processingSum / float64(totals.Total)
	}
	return totals, nil
}

// RuleRetention aggregates applied rule usage.
func (s *Store) RuleRetention(_ context.Context, date string) (*entities.RuleRetention, error) {
	retention := &entities.RuleRetention{}
	for _, rule := range s.Rules {
		if rule.AppliedCount == 0 {
			continue
		}
		if date != "" {
			if rule.LastAppliedAt == nil || rule.LastAppliedAt.Format(entities.DateLayout) != date {
				continue
			}
		}
		retention.Applications += rule.AppliedCount
		retention.WeightedSuccess += float64(rule.AppliedCount) * rule.SuccessRate
	}
	return retention, nil
}

// SaveSnapshot overwrites the snapshot for its date.
func (s *Store) SaveSnapshot(_ context.Context, snapshot *entities.KPISnapshot) error {
	copied := *snapshot
	s.Snapshots[snapshot.Date] = &copied
	return nil
}

// FindSnapshot returns the cached snapshot or nil.
func (s *Store) FindSnapshot(_ context.Context, date string) (*entities.KPISnapshot, error) {
	snapshot, ok := s.Snapshots[date]
	if !ok {
		return nil, nil
	}
	copied := *snapshot
	return &copied, nil
}
