// Package services contains the domain logic for rule learning, automated
// decisions, metrics, and audit trail merging.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// RuleService manages the learned exception rule base.
type RuleService struct {
	store  ports.Store
	logger *zap.Logger
}

// NewRuleService creates a new rule service.
func NewRuleService(store ports.Store, logger *zap.Logger) *RuleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleService{
		store:  store,
		logger: logger,
	}
}

// AddRule validates the condition payload, normalizes the description, and
// stores a fresh rule. A malformed condition is logged and reported as
// entities.ErrInvalidCondition; nothing is stored.
func (s *RuleService) AddRule(ctx context.Context, ruleType entities.RuleType, description string, scope entities.RuleScope, condition map[string]any) (string, error) {
	cond, err := entities.ParseCondition(condition)
	if err != nil {
		s.logger.Warn("rejecting rule with malformed condition",
			zap.String("rule_type", string(ruleType)),
			zap.Error(err))
		return "", entities.ErrInvalidCondition
	}

	rule := &entities.ExceptionRule{
		ID:            uuid.New().String(),
		RuleType:      ruleType,
		Description:   normalizeDescription(description, cond, scope, ruleType),
		Vendor:        scope.Vendor,
		Category:      scope.Category,
		Currency:      scope.Currency,
		International: scope.International,
		Condition:     cond,
		AppliedCount:  0,
		SuccessRate:   1.0,
		IsActive:      true,
		CreatedAt:     timeNow().UTC(),
	}

	if err := s.store.SaveRule(ctx, rule); err != nil {
		return "", fmt.Errorf("adding rule: %w", err)
	}

	s.logger.Info("learned exception rule",
		zap.String("rule_id", rule.ID),
		zap.String("rule_type", string(ruleType)),
		zap.String("vendor", scope.Vendor))
	return rule.ID, nil
}

// normalizeDescription guarantees every stored rule carries a meaningful
// description. Placeholder input falls back to the condition's reason, then
// to the rule's scope, then to a generic label.
func normalizeDescription(description string, cond entities.RuleCondition, scope entities.RuleScope, ruleType entities.RuleType) string {
	if !entities.IsPlaceholderDescription(description) {
		return description
	}
	if !entities.IsPlaceholderDescription(cond.Reason) {
		return cond.Reason
	}
	if scope.Vendor != "" {
		return fmt.Sprintf("%s exception for %s", ruleType, scope.Vendor)
	}
	if scope.Category != "" {
		return fmt.Sprintf("%s exception for %s", ruleType, scope.Category)
	}
	return fmt.Sprintf("Learned %s rule", ruleType)
}

// Get returns a rule by ID, or nil when absent.
func (s *RuleService) Get(ctx context.Context, id string) (*entities.ExceptionRule, error) {
	return s.store.FindRule(ctx, id)
}

// Query returns active rules matching the filter in the store's documented
// order: most applications first, then most recent.
func (s *RuleService) Query(ctx context.Context, filter entities.RuleFilter) ([]entities.ExceptionRule, error) {
	if filter.MinSuccessRate < 0 {
		filter.MinSuccessRate = 0
	}
	if filter.MinSuccessRate > 1 {
		filter.MinSuccessRate = 1
	}
	return s.store.QueryRules(ctx, filter)
}

// SoftDelete deactivates a rule, keeping its history. Returns false when the
// rule is absent or already deleted.
func (s *RuleService) SoftDelete(ctx context.Context, id string) (bool, error) {
	return s.store.SetRuleActive(ctx, id, false, timeNow().UTC())
}

// Restore reactivates a soft-deleted rule. Returns false when the rule is
// absent or already active.
func (s *RuleService) Restore(ctx context.Context, id string) (bool, error) {
	return s.store.SetRuleActive(ctx, id, true, timeNow().UTC())
}

// RecordUsage folds one application outcome into the rule's moving average.
// An unknown rule id is logged and reported as applied=false; it is not a
// fault.
func (s *RuleService) RecordUsage(ctx context.Context, id string, success bool) (bool, error) {
	err := s.store.RecordRuleUsage(ctx, id, success, timeNow().UTC())
	if errors.Is(err, entities.ErrRuleNotFound) {
		s.logger.Warn("usage recorded against unknown rule", zap.String("rule_id", id))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("recording usage: %w", err)
	}
	return true, nil
}

// Stats summarizes the rule base for the admin surface.
func (s *RuleService) Stats(ctx context.Context) (*entities.RuleStats, error) {
	return s.store.RuleStats(ctx)
}
