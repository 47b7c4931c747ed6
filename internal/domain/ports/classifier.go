package ports

import (
	"context"

	"github.com/complypilot/comply-core/internal/domain/entities"
)

// RuleDraft is a proposed exception rule distilled from a human correction.
type RuleDraft struct {
	RuleType    entities.RuleType
	Description string
	Scope       entities.RuleScope
	Condition   map[string]any
}

// IntentClassifier turns a human correction into a rule draft. The hosted
// model that implements this lives outside the core; callers wire in their
// own implementation (or none, in which case rule learning is skipped).
type IntentClassifier interface {
	// DraftRule proposes a rule from the reviewed transaction and the
	// human's reasoning. A nil draft with nil error means the correction
	// does not generalize into a rule.
	DraftRule(ctx context.Context, tx *entities.TransactionRecord, decision entities.HumanDecision) (*RuleDraft, error)
}
