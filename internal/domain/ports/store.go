// Package ports defines the interfaces the domain depends on.
package ports

import (
	"context"
	"time"

	"github.com/complypilot/comply-core/internal/domain/entities"
)

// Store is the durable state owned by this core: learned exception rules,
// transaction outcomes, and the derived per-day KPI cache. A single process
// is the only writer; the store guarantees row-level atomicity for the
// usage increment, and nothing stronger.
type Store interface {
	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the underlying database.
	Close() error

	// Rule operations

	// SaveRule inserts a new exception rule.
	SaveRule(ctx context.Context, rule *entities.ExceptionRule) error

	// FindRule finds a rule by ID regardless of its active flag.
	// Returns nil when the rule does not exist.
	FindRule(ctx context.Context, id string) (*entities.ExceptionRule, error)

	// QueryRules returns active rules matching the filter, ordered by
	// applied_count descending then created_at descending then id. The
	// ordering is the documented tie-break for automated rule matching.
	QueryRules(ctx context.Context, filter entities.RuleFilter) ([]entities.ExceptionRule, error)

	// SetRuleActive soft-deletes (active=false) or restores (active=true)
	// a rule. Returns false when the rule is absent or already in the
	// target state.
	SetRuleActive(ctx context.Context, id string, active bool, at time.Time) (bool, error)

	// RecordRuleUsage applies one usage outcome to a rule's cumulative
	// moving average, atomically per row. Returns entities.ErrRuleNotFound
	// for an unknown id.
	RecordRuleUsage(ctx context.Context, id string, success bool, at time.Time) error

	// RuleStats summarizes the rule base.
	RuleStats(ctx context.Context) (*entities.RuleStats, error)

	// Transaction operations

	// SaveTransaction inserts a new transaction record.
	SaveTransaction(ctx context.Context, tx *entities.TransactionRecord) error

	// FindTransaction finds a transaction by ID, or nil when absent.
	FindTransaction(ctx context.Context, id string) (*entities.TransactionRecord, error)

	// ApplyHumanDecision records the one allowed post-decision mutation.
	// Returns false when the transaction is absent or was already reviewed.
	ApplyHumanDecision(ctx context.Context, id string, decision entities.Decision, rationale string, overrode bool, trail []string, at time.Time) (bool, error)

	// ListTransactions lists transactions for a day (empty date = all),
	// newest first.
	ListTransactions(ctx context.Context, date string, limit int) ([]entities.TransactionRecord, error)

	// Metrics aggregates

	// TransactionTotals aggregates transaction counters for a day (empty
	// date = all-time).
	TransactionTotals(ctx context.Context, date string) (*entities.TransactionTotals, error)

	// RuleRetention aggregates applied rule usage for a day keyed by
	// last_applied_at (empty date = all-time).
	RuleRetention(ctx context.Context, date string) (*entities.RuleRetention, error)

	// SaveSnapshot upserts the derived KPI snapshot for its date.
	SaveSnapshot(ctx context.Context, snapshot *entities.KPISnapshot) error

	// FindSnapshot returns the cached snapshot for a date, or nil.
	FindSnapshot(ctx context.Context, date string) (*entities.KPISnapshot, error)
}
