package services

import (
	"context"
	"fmt"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/ports"
	"go.uber.org/zap"
)

// FeedbackService applies human review decisions to transactions and feeds
// the outcome back into the rule base: an override of a rule-decided
// transaction counts as a failed application of that rule, and a correction
// can optionally be distilled into a new rule.
type FeedbackService struct {
	store      ports.Store
	rules      *RuleService
	classifier ports.IntentClassifier // optional; nil disables rule learning
	logger     *zap.Logger
}

// NewFeedbackService creates a new feedback service. classifier may be nil,
// in which case "learn a rule from this" requests are logged and skipped.
func NewFeedbackService(store ports.Store, rules *RuleService, classifier ports.IntentClassifier, logger *zap.Logger) *FeedbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackService{
		store:      store,
		rules:      rules,
		classifier: classifier,
		logger:     logger,
	}
}

// Apply records a human decision against its transaction. Returns false when
// the transaction is unknown or was already reviewed; a transaction is
// mutated at most once after creation.
func (s *FeedbackService) Apply(ctx context.Context, decision entities.HumanDecision) (bool, error) {
	tx, err := s.store.FindTransaction(ctx, decision.TransactionID)
	if err != nil {
		return false, fmt.Errorf("loading transaction: %w", err)
	}
	if tx == nil {
		s.logger.Warn("human decision for unknown transaction",
			zap.String("transaction_id", decision.TransactionID))
		return false, nil
	}
	if tx.UpdatedAt != nil {
		s.logger.Warn("transaction already reviewed, ignoring decision",
			zap.String("transaction_id", tx.ID))
		return false, nil
	}

	overrode := decision.Decision != tx.FinalDecision
	rationale := decision.Reasoning
	if rationale == "" {
		rationale = fmt.Sprintf("human reviewer decided %s", decision.Decision)
	}

	trail := append(tx.AuditTrail, fmt.Sprintf("Human review: %s (%s)", decision.Decision, rationale))

	applied, err := s.store.ApplyHumanDecision(ctx, tx.ID, decision.Decision, rationale, overrode, trail, timeNow().UTC())
	if err != nil {
		return false, fmt.Errorf("applying human decision: %w", err)
	}
	if !applied {
		return false, nil
	}

	// Charge an override back against the rule that made the call. This is
	// how a rule's success rate ever drops below 1.0.
	if overrode && tx.AppliedRuleID != "" {
		if _, err := s.rules.RecordUsage(ctx, tx.AppliedRuleID, false); err != nil {
			s.logger.Warn("failed to record rule failure",
				zap.String("rule_id", tx.AppliedRuleID),
				zap.Error(err))
		}
	}

	if decision.LearnRule {
		s.learnRule(ctx, tx, decision)
	}

	return true, nil
}

// learnRule distills a new exception rule from the correction when an intent
// classifier is wired in. Learning failures never fail the review itself.
func (s *FeedbackService) learnRule(ctx context.Context, tx *entities.TransactionRecord, decision entities.HumanDecision) {
	if s.classifier == nil {
		s.logger.Info("rule learning requested but no classifier configured",
			zap.String("transaction_id", tx.ID))
		return
	}

	draft, err := s.classifier.DraftRule(ctx, tx, decision)
	if err != nil {
		s.logger.Warn("intent classification failed, skipping rule learning",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		return
	}
	if draft == nil {
		s.logger.Debug("correction does not generalize into a rule",
			zap.String("transaction_id", tx.ID))
		return
	}

	ruleType := draft.RuleType
	if decision.RuleTypeHint != "" {
		ruleType = decision.RuleTypeHint
	}

	ruleID, err := s.rules.AddRule(ctx, ruleType, draft.Description, draft.Scope, draft.Condition)
	if err != nil {
		s.logger.Warn("failed to store learned rule",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		return
	}
	s.logger.Info("distilled rule from human correction",
		zap.String("transaction_id", tx.ID),
		zap.String("rule_id", ruleID))
}
