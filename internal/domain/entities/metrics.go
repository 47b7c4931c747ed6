package entities

import "time"

// DateLayout is the canonical day key for metrics snapshots.
const DateLayout = "2006-01-02"

// KPISnapshot holds the learning-effectiveness metrics for one calendar day
// (or all-time when Date is empty). It is derived from transactions and rule
// usage and always recomputable; the persisted copy is a cache.
type KPISnapshot struct {
	Date string `json:"date,omitempty"`

	// HumanCorrectionRate is the percentage of transactions a human had to
	// override. Lower is better.
	HumanCorrectionRate float64 `json:"human_correction_rate"`
	// ContextRetentionScore is the application-weighted success rate of
	// learned rules, as a percentage. Higher is better.
	ContextRetentionScore float64 `json:"context_retention_score"`
	// AutoApprovalRate is the percentage of transactions approved without
	// any human involvement. Higher is better.
	AutoApprovalRate float64 `json:"auto_approval_rate"`
	// AuditTraceabilityScore is the percentage of transactions carrying a
	// non-empty audit trail.
	AuditTraceabilityScore float64 `json:"audit_traceability_score"`

	TransactionCount int       `json:"transaction_count"`
	AvgProcessingMS  float64   `json:"avg_processing_ms"`
	ComputedAt       time.Time `json:"computed_at"`
}

// TransactionTotals are the aggregate counters a snapshot is computed from.
type TransactionTotals struct {
	Total            int
	HumanCorrections int
	// AutoApproved counts transactions approved without a human override.
	AutoApproved    int
	WithAuditTrail  int
	AvgProcessingMS float64
}

// RuleRetention aggregates rule usage for the context retention score.
type RuleRetention struct {
	// Applications is the sum of applied_count over rules that have fired.
	Applications int
	// WeightedSuccess is the sum of applied_count × success_rate.
	WeightedSuccess float64
}

// RuleStats summarizes the learned rule base for the admin surface.
type RuleStats struct {
	TotalRules        int             `json:"total_rules"`
	ActiveRules       int             `json:"active_rules"` // active with at least one application
	TotalApplications int             `json:"total_applications"`
	AvgSuccessRate    float64         `json:"avg_success_rate"`
	TopByUsage        []ExceptionRule `json:"top_by_usage"`
	MostRecent        []ExceptionRule `json:"most_recent"`
}
