package entities

import "time"

// Decision is the outcome state of a transaction review.
type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionRejected    Decision = "rejected"
	DecisionNeedsReview Decision = "needs_review"
)

// RiskLevel buckets a risk score for policy thresholds.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment is the upstream risk reviewer's output.
type RiskAssessment struct {
	Score float64   `json:"score"` // 0-100
	Level RiskLevel `json:"level"`
}

// ComplianceVerdict is the upstream compliance reviewer's output.
type ComplianceVerdict struct {
	Compliant        bool     `json:"compliant"`
	Confidence       float64  `json:"confidence"` // 0-1
	ViolatedPolicies []string `json:"violated_policies,omitempty"`
	// ManualException marks a case the reviewer has flagged as requiring a
	// human-granted exception; automation must refuse these.
	ManualException bool `json:"manual_exception,omitempty"`
}

// Invoice is the frozen input snapshot a transaction was decided on.
type Invoice struct {
	Ref           string  `json:"ref"`
	Vendor        string  `json:"vendor"`
	Category      string  `json:"category"`
	Currency      string  `json:"currency"`
	Amount        float64 `json:"amount"`
	International bool    `json:"international"`
	Description   string  `json:"description,omitempty"`
}

// TransactionRecord is the durable record of one compliance decision.
// It is created once at decision time and mutated at most once more, when a
// human reviews it. CreatedAt is immutable; UpdatedAt marks the human review.
type TransactionRecord struct {
	ID         string  `json:"id"`
	InvoiceRef string  `json:"invoice_ref"`
	Invoice    Invoice `json:"invoice"`

	RiskScore float64           `json:"risk_score"`
	RiskLevel RiskLevel         `json:"risk_level"`
	Verdict   ComplianceVerdict `json:"verdict"`

	FinalDecision     Decision `json:"final_decision"`
	DecisionRationale string   `json:"decision_rationale,omitempty"`
	// HumanOverride is true when a human changed the automated outcome.
	HumanOverride bool `json:"human_override"`
	// AppliedRuleID links the transaction to the exception rule that
	// auto-decided it, so a later human override can be charged back
	// against that rule's success rate.
	AppliedRuleID string `json:"applied_rule_id,omitempty"`

	ProcessingMS int64    `json:"processing_ms"`
	AuditTrail   []string `json:"audit_trail,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// HumanDecision is the "human decision received" event consumed from the
// review surface.
type HumanDecision struct {
	TransactionID string   `json:"transaction_id"`
	Decision      Decision `json:"decision"` // approved or rejected
	Reasoning     string   `json:"reasoning,omitempty"`
	// LearnRule asks the system to distill an exception rule from this
	// correction.
	LearnRule    bool     `json:"learn_rule,omitempty"`
	RuleTypeHint RuleType `json:"rule_type_hint,omitempty"`
}
