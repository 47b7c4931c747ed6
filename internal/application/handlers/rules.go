package handlers

import (
	"context"
	"fmt"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/services"
)

// RuleHandler exposes rule administration to the UI/API surface.
type RuleHandler struct {
	rules *services.RuleService
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(rules *services.RuleService) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// Add stores a new exception rule and returns its id.
func (h *RuleHandler) Add(ctx context.Context, ruleType entities.RuleType, description string, scope entities.RuleScope, condition map[string]any) (string, error) {
	id, err := h.rules.AddRule(ctx, ruleType, description, scope, condition)
	if err != nil {
		return "", fmt.Errorf("adding rule: %w", err)
	}
	return id, nil
}

// List returns active rules matching the filter.
func (h *RuleHandler) List(ctx context.Context, filter entities.RuleFilter) ([]entities.ExceptionRule, error) {
	rules, err := h.rules.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return rules, nil
}

// Get returns one rule by id, active or not.
func (h *RuleHandler) Get(ctx context.Context, id string) (*entities.ExceptionRule, error) {
	return h.rules.Get(ctx, id)
}

// Delete soft-deletes a rule.
func (h *RuleHandler) Delete(ctx context.Context, id string) (bool, error) {
	return h.rules.SoftDelete(ctx, id)
}

// Restore reactivates a soft-deleted rule.
func (h *RuleHandler) Restore(ctx context.Context, id string) (bool, error) {
	return h.rules.Restore(ctx, id)
}

// Stats summarizes the rule base.
func (h *RuleHandler) Stats(ctx context.Context) (*entities.RuleStats, error) {
	return h.rules.Stats(ctx)
}
