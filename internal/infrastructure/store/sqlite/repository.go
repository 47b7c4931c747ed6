// Package sqlite provides a SQLite implementation of the Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/infrastructure/config"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Repository implements ports.Store using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Learned exception rules (soft-deleted, never removed)
	CREATE TABLE IF NOT EXISTS exception_rules (
		id TEXT PRIMARY KEY,
		rule_type TEXT NOT NULL,
		description TEXT NOT NULL,
		vendor TEXT,
		category TEXT,
		currency TEXT,
		international INTEGER,
		condition TEXT NOT NULL,
		applied_count INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 1.0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		last_applied_at TIMESTAMP,
		deleted_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rules_vendor ON exception_rules(vendor);
	CREATE INDEX IF NOT EXISTS idx_rules_category ON exception_rules(category);

	-- Transaction outcomes (created once, mutated once on human review)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		invoice_ref TEXT NOT NULL,
		invoice TEXT NOT NULL,
		risk_score REAL NOT NULL,
		risk_level TEXT NOT NULL,
		compliant INTEGER NOT NULL,
		compliance_confidence REAL NOT NULL,
		violated_policies TEXT,
		manual_exception INTEGER NOT NULL DEFAULT 0,
		final_decision TEXT NOT NULL,
		decision_rationale TEXT,
		human_override INTEGER NOT NULL DEFAULT 0,
		applied_rule_id TEXT,
		processing_ms INTEGER NOT NULL DEFAULT 0,
		audit_trail TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);

	-- Derived per-day KPI cache (always recomputable)
	CREATE TABLE IF NOT EXISTS daily_metrics (
		date TEXT PRIMARY KEY,
		human_correction_rate REAL NOT NULL,
		context_retention_score REAL NOT NULL,
		auto_approval_rate REAL NOT NULL,
		audit_traceability_score REAL NOT NULL,
		transaction_count INTEGER NOT NULL,
		avg_processing_ms REAL NOT NULL,
		computed_at TIMESTAMP NOT NULL
	);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// ruleColumns is the column list shared by every rule SELECT.
const ruleColumns = `id, rule_type, description, vendor, category, currency, international,
	condition, applied_count, success_rate, is_active, created_at, last_applied_at, deleted_at`

// SaveRule inserts a new exception rule.
func (r *Repository) SaveRule(ctx context.Context, rule *entities.ExceptionRule) error {
	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("marshaling condition: %w", err)
	}

	query := `
		INSERT INTO exception_rules (id, rule_type, description, vendor, category, currency,
			international, condition, applied_count, success_rate, is_active, created_at,
			last_applied_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		string(rule.RuleType),
		rule.Description,
		nullString(rule.Vendor),
		nullString(rule.Category),
		nullString(rule.Currency),
		nullBool(rule.International),
		string(condition),
		rule.AppliedCount,
		rule.SuccessRate,
		rule.IsActive,
		rule.CreatedAt,
		nullTime(rule.LastAppliedAt),
		nullTime(rule.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("saving rule: %w", err)
	}
	return nil
}

// FindRule finds a rule by ID regardless of its active flag.
func (r *Repository) FindRule(ctx context.Context, id string) (*entities.ExceptionRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM exception_rules WHERE id = ?`, ruleColumns)
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// QueryRules returns active rules matching the filter, most-proven first.
// The ordering (applied_count desc, created_at desc, id) is the documented
// tie-break for automated rule matching and must stay deterministic.
func (r *Repository) QueryRules(ctx context.Context, filter entities.RuleFilter) ([]entities.ExceptionRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM exception_rules WHERE is_active = 1`, ruleColumns)
	args := make([]any, 0, 4)

	if filter.Vendor != "" {
		query += ` AND vendor = ? COLLATE NOCASE`
		args = append(args, filter.Vendor)
	}
	if filter.Category != "" {
		query += ` AND category = ? COLLATE NOCASE`
		args = append(args, filter.Category)
	}
	if filter.RuleType != "" {
		query += ` AND rule_type = ?`
		args = append(args, string(filter.RuleType))
	}
	if filter.MinSuccessRate > 0 {
		query += ` AND success_rate >= ?`
		args = append(args, filter.MinSuccessRate)
	}
	query += ` ORDER BY applied_count DESC, created_at DESC, id ASC`

	return r.queryRules(ctx, query, args...)
}

// SetRuleActive soft-deletes or restores a rule. The WHERE clause makes the
// operation idempotent: a rule already in the target state affects no rows.
func (r *Repository) SetRuleActive(ctx context.Context, id string, active bool, at time.Time) (bool, error) {
	var query string
	var args []any
	if active {
		query = `UPDATE exception_rules SET is_active = 1, deleted_at = NULL WHERE id = ? AND is_active = 0`
		args = []any{id}
	} else {
		query = `UPDATE exception_rules SET is_active = 0, deleted_at = ? WHERE id = ? AND is_active = 1`
		args = []any{at, id}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating rule active flag: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RecordRuleUsage folds one usage outcome into the rule's cumulative moving
// average. A single UPDATE keeps the read-modify-write atomic per row, so
// two concurrent applications of the same rule cannot lose an increment.
func (r *Repository) RecordRuleUsage(ctx context.Context, id string, success bool, at time.Time) error {
	outcome := 0.0
	if success {
		outcome = 1.0
	}

	query := `
		UPDATE exception_rules
		SET success_rate = (success_rate * applied_count + ?) / (applied_count + 1),
			applied_count = applied_count + 1,
			last_applied_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, outcome, at, id)
	if err != nil {
		return fmt.Errorf("recording rule usage: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return entities.ErrRuleNotFound
	}
	return nil
}

// RuleStats summarizes the rule base for the admin surface.
func (r *Repository) RuleStats(ctx context.Context) (*entities.RuleStats, error) {
	stats := &entities.RuleStats{}

	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN is_active = 1 AND applied_count > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 THEN applied_count ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN applied_count > 0 THEN success_rate END), 0)
		FROM exception_rules
	`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalRules,
		&stats.ActiveRules,
		&stats.TotalApplications,
		&stats.AvgSuccessRate,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating rule stats: %w", err)
	}

	topQuery := fmt.Sprintf(`
		SELECT %s FROM exception_rules
		WHERE is_active = 1 AND applied_count > 0
		ORDER BY applied_count DESC, created_at DESC, id ASC
		LIMIT 5
	`, ruleColumns)
	if stats.TopByUsage, err = r.queryRules(ctx, topQuery); err != nil {
		return nil, err
	}

	recentQuery := fmt.Sprintf(`
		SELECT %s FROM exception_rules
		WHERE is_active = 1
		ORDER BY created_at DESC, id ASC
		LIMIT 5
	`, ruleColumns)
	if stats.MostRecent, err = r.queryRules(ctx, recentQuery); err != nil {
		return nil, err
	}

	return stats, nil
}

// queryRules is a helper to execute rule queries.
func (r *Repository) queryRules(ctx context.Context, query string, args ...any) ([]entities.ExceptionRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := make([]entities.ExceptionRule, 0, 16)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRule scans one exception rule row.
func scanRule(row scanner) (*entities.ExceptionRule, error) {
	var rule entities.ExceptionRule
	var ruleType, condition string
	var vendor, category, currency sql.NullString
	var international sql.NullBool
	var lastApplied, deleted sql.NullTime

	err := row.Scan(
		&rule.ID,
		&ruleType,
		&rule.Description,
		&vendor,
		&category,
		&currency,
		&international,
		&condition,
		&rule.AppliedCount,
		&rule.SuccessRate,
		&rule.IsActive,
		&rule.CreatedAt,
		&lastApplied,
		&deleted,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning rule: %w", err)
	}

	rule.RuleType = entities.RuleType(ruleType)
	rule.Vendor = vendor.String
	rule.Category = category.String
	rule.Currency = currency.String
	if international.Valid {
		rule.International = &international.Bool
	}
	if lastApplied.Valid {
		t := lastApplied.Time
		rule.LastAppliedAt = &t
	}
	if deleted.Valid {
		t := deleted.Time
		rule.DeletedAt = &t
	}

	if err := json.Unmarshal([]byte(condition), &rule.Condition); err != nil {
		return nil, fmt.Errorf("unmarshaling condition: %w", err)
	}

	return &rule, nil
}

const transactionColumns = `id, invoice_ref, invoice, risk_score, risk_level, compliant,
	compliance_confidence, violated_policies, manual_exception, final_decision,
	decision_rationale, human_override, applied_rule_id, processing_ms, audit_trail,
	created_at, updated_at`

// SaveTransaction inserts a new transaction record.
func (r *Repository) SaveTransaction(ctx context.Context, tx *entities.TransactionRecord) error {
	invoice, err := json.Marshal(tx.Invoice)
	if err != nil {
		return fmt.Errorf("marshaling invoice snapshot: %w", err)
	}
	policies, err := json.Marshal(tx.Verdict.ViolatedPolicies)
	if err != nil {
		return fmt.Errorf("marshaling violated policies: %w", err)
	}
	trail, err := json.Marshal(tx.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshaling audit trail: %w", err)
	}

	query := `
		INSERT INTO transactions (id, invoice_ref, invoice, risk_score, risk_level, compliant,
			compliance_confidence, violated_policies, manual_exception, final_decision,
			decision_rationale, human_override, applied_rule_id, processing_ms, audit_trail,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		tx.ID,
		tx.InvoiceRef,
		string(invoice),
		tx.RiskScore,
		string(tx.RiskLevel),
		tx.Verdict.Compliant,
		tx.Verdict.Confidence,
		string(policies),
		tx.Verdict.ManualException,
		string(tx.FinalDecision),
		nullString(tx.DecisionRationale),
		tx.HumanOverride,
		nullString(tx.AppliedRuleID),
		tx.ProcessingMS,
		string(trail),
		tx.CreatedAt,
		nullTime(tx.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving transaction: %w", err)
	}
	return nil
}

// FindTransaction finds a transaction by ID.
func (r *Repository) FindTransaction(ctx context.Context, id string) (*entities.TransactionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = ?`, transactionColumns)
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ApplyHumanDecision records the single post-decision mutation a transaction
// allows. The updated_at guard makes a second review a no-op; created_at is
// never touched.
func (r *Repository) ApplyHumanDecision(ctx context.Context, id string, decision entities.Decision, rationale string, overrode bool, trail []string, at time.Time) (bool, error) {
	trailJSON, err := json.Marshal(trail)
	if err != nil {
		return false, fmt.Errorf("marshaling audit trail: %w", err)
	}

	query := `
		UPDATE transactions
		SET final_decision = ?, decision_rationale = ?, human_override = ?,
			audit_trail = ?, updated_at = ?
		WHERE id = ? AND updated_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		string(decision),
		nullString(rationale),
		overrode,
		string(trailJSON),
		at,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("applying human decision: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListTransactions lists transactions for a day (empty date = all), newest first.
func (r *Repository) ListTransactions(ctx context.Context, date string, limit int) ([]entities.TransactionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions`, transactionColumns)
	args := make([]any, 0, 2)
	if date != "" {
		query += ` WHERE date(created_at) = ?`
		args = append(args, date)
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]entities.TransactionRecord, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// scanTransaction scans one transaction row.
func scanTransaction(row scanner) (*entities.TransactionRecord, error) {
	var tx entities.TransactionRecord
	var invoice, riskLevel, decision, policies, trail string
	var rationale, appliedRuleID sql.NullString
	var updated sql.NullTime

	err := row.Scan(
		&tx.ID,
		&tx.InvoiceRef,
		&invoice,
		&tx.RiskScore,
		&riskLevel,
		&tx.Verdict.Compliant,
		&tx.Verdict.Confidence,
		&policies,
		&tx.Verdict.ManualException,
		&decision,
		&rationale,
		&tx.HumanOverride,
		&appliedRuleID,
		&tx.ProcessingMS,
		&trail,
		&tx.CreatedAt,
		&updated,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}

	tx.RiskLevel = entities.RiskLevel(riskLevel)
	tx.FinalDecision = entities.Decision(decision)
	tx.DecisionRationale = rationale.String
	tx.AppliedRuleID = appliedRuleID.String
	if updated.Valid {
		t := updated.Time
		tx.UpdatedAt = &t
	}

	if err := json.Unmarshal([]byte(invoice), &tx.Invoice); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(policies), &tx.Verdict.ViolatedPolicies); err != nil {
		return nil, fmt.Errorf("unmarshaling violated policies: %w", err)
	}
	if err := json.Unmarshal([]byte(trail), &tx.AuditTrail); err != nil {
		return nil, fmt.Errorf("unmarshaling audit trail: %w", err)
	}

	return &tx, nil
}

// TransactionTotals aggregates transaction counters for a day (empty date =
// all-time).
func (r *Repository) TransactionTotals(ctx context.Context, date string) (*entities.TransactionTotals, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(human_override), 0),
			COALESCE(SUM(CASE WHEN final_decision = 'approved' AND human_override = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN audit_trail IS NOT NULL AND audit_trail NOT IN ('', '[]', 'null') THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(processing_ms), 0)
		FROM transactions
	`
	args := make([]any, 0, 1)
	if date != "" {
		query += ` WHERE date(created_at) = ?`
		args = append(args, date)
	}

	var totals entities.TransactionTotals
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&totals.Total,
		&totals.HumanCorrections,
		&totals.AutoApproved,
		&totals.WithAuditTrail,
		&totals.AvgProcessingMS,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating transaction totals: %w", err)
	}
	return &totals, nil
}

// RuleRetention aggregates applied rule usage, keyed by last_applied_at when
// a date is given. Soft-deleted rules keep contributing: their history is
// part of what the system learned.
func (r *Repository) RuleRetention(ctx context.Context, date string) (*entities.RuleRetention, error) {
	query := `
		SELECT COALESCE(SUM(applied_count), 0),
			COALESCE(SUM(applied_count * success_rate), 0)
		FROM exception_rules
		WHERE applied_count > 0
	`
	args := make([]any, 0, 1)
	if date != "" {
		query += ` AND date(last_applied_at) = ?`
		args = append(args, date)
	}

	var retention entities.RuleRetention
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&retention.Applications,
		&retention.WeightedSuccess,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating rule retention: %w", err)
	}
	return &retention, nil
}

// SaveSnapshot upserts the derived KPI snapshot for its date.
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot *entities.KPISnapshot) error {
	query := `
		INSERT INTO daily_metrics (date, human_correction_rate, context_retention_score,
			auto_approval_rate, audit_traceability_score, transaction_count,
			avg_processing_ms, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			human_correction_rate = excluded.human_correction_rate,
			context_retention_score = excluded.context_retention_score,
			auto_approval_rate = excluded.auto_approval_rate,
			audit_traceability_score = excluded.audit_traceability_score,
			transaction_count = excluded.transaction_count,
			avg_processing_ms = excluded.avg_processing_ms,
			computed_at = excluded.computed_at
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.Date,
		snapshot.HumanCorrectionRate,
		snapshot.ContextRetentionScore,
		snapshot.AutoApprovalRate,
		snapshot.AuditTraceabilityScore,
		snapshot.TransactionCount,
		snapshot.AvgProcessingMS,
		snapshot.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// FindSnapshot returns the cached snapshot for a date, or nil.
func (r *Repository) FindSnapshot(ctx context.Context, date string) (*entities.KPISnapshot, error) {
	query := `
		SELECT date, human_correction_rate, context_retention_score, auto_approval_rate,
			audit_traceability_score, transaction_count, avg_processing_ms, computed_at
		FROM daily_metrics
		WHERE date = ?
	`
	row := r.db.QueryRowContext(ctx, query, date)

	var s entities.KPISnapshot
	err := row.Scan(
		&s.Date,
		&s.HumanCorrectionRate,
		&s.ContextRetentionScore,
		&s.AutoApprovalRate,
		&s.AuditTraceabilityScore,
		&s.TransactionCount,
		&s.AvgProcessingMS,
		&s.ComputedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return &s, nil
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullBool maps a nil pointer to NULL.
func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// nullTime maps a nil pointer to NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
