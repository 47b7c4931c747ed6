package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/mocks"
	"github.com/complypilot/comply-core/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDecisionFixture(t *testing.T) (*mocks.Store, *RuleService, *DecisionService) {
	t.Helper()
	store := mocks.NewStore()
	rules := NewRuleService(store, nil)
	engine := NewDecisionService(store, rules, config.Default().Automation, nil)
	return store, rules, engine
}

func pendingInput(invoice entities.Invoice, verdict *entities.ComplianceVerdict, level entities.RiskLevel) EvaluationInput {
	return EvaluationInput{
		Invoice:         invoice,
		CurrentDecision: entities.DecisionNeedsReview,
		Verdict:         verdict,
		Risk:            entities.RiskAssessment{Level: level},
	}
}

func TestDecisionService_Guards(t *testing.T) {
	ctx := context.Background()
	store, rules, _ := newDecisionFixture(t)
	verdict := &entities.ComplianceVerdict{Compliant: true, Confidence: 0.99}

	t.Run("disabled", func(t *testing.T) {
		cfg := config.Default().Automation
		cfg.Enabled = false
		engine := NewDecisionService(store, rules, cfg, nil)

		outcome := engine.Evaluate(ctx, pendingInput(entities.Invoice{}, verdict, entities.RiskLow))
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceDisabled, outcome.Source)
	})

	t.Run("missing verdict", func(t *testing.T) {
		_, _, engine := newDecisionFixture(t)
		outcome := engine.Evaluate(ctx, pendingInput(entities.Invoice{}, nil, entities.RiskLow))
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceMissingPolicy, outcome.Source)
	})

	t.Run("already finalized", func(t *testing.T) {
		_, _, engine := newDecisionFixture(t)
		input := pendingInput(entities.Invoice{}, verdict, entities.RiskLow)
		input.CurrentDecision = entities.DecisionApproved

		outcome := engine.Evaluate(ctx, input)
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceFinalized, outcome.Source)
	})

	t.Run("manual exception", func(t *testing.T) {
		_, _, engine := newDecisionFixture(t)
		manual := &entities.ComplianceVerdict{Compliant: true, Confidence: 0.99, ManualException: true}

		outcome := engine.Evaluate(ctx, pendingInput(entities.Invoice{}, manual, entities.RiskLow))
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceManualException, outcome.Source)
	})
}

func TestDecisionService_RuleMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("matching rule overrides and records usage", func(t *testing.T) {
		store, rules, engine := newDecisionFixture(t)
		id, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "Acme standing approval", entities.RuleScope{Vendor: "Acme"}, map[string]any{
			"amount_threshold": 1200.0,
			"auto_decision":    "approved",
		})
		require.NoError(t, err)

		invoice := entities.Invoice{Vendor: "Acme", Amount: 1200, Currency: "USD"}
		verdict := &entities.ComplianceVerdict{Compliant: true, Confidence: 0.6}

		outcome := engine.Evaluate(ctx, pendingInput(invoice, verdict, entities.RiskHigh))
		assert.True(t, outcome.ShouldOverride)
		assert.Equal(t, entities.DecisionApproved, outcome.Decision)
		assert.Equal(t, SourceRule, outcome.Source)
		assert.Equal(t, id, outcome.AppliedRuleID)
		// confidence = max(verdict confidence, rule success rate)
		assert.Equal(t, 1.0, outcome.Confidence)
		assert.Contains(t, outcome.Reason, "Acme standing approval")

		rule := store.Rules[id]
		assert.Equal(t, 1, rule.AppliedCount)
		assert.Equal(t, 1.0, rule.SuccessRate)
	})

	t.Run("vendor match is case-insensitive", func(t *testing.T) {
		_, rules, engine := newDecisionFixture(t)
		_, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "r", entities.RuleScope{Vendor: "ACME"}, map[string]any{
			"auto_decision": "approved",
		})
		require.NoError(t, err)

		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Vendor: "acme", Amount: 50},
			&entities.ComplianceVerdict{Compliant: false, Confidence: 0.2},
			entities.RiskCritical))
		assert.True(t, outcome.ShouldOverride)
		assert.Equal(t, SourceRule, outcome.Source)
	})

	t.Run("amount outside tolerance window does not match", func(t *testing.T) {
		_, rules, engine := newDecisionFixture(t)
		_, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "r", entities.RuleScope{Vendor: "Acme"}, map[string]any{
			"amount_threshold": 1000.0,
			"auto_decision":    "approved",
		})
		require.NoError(t, err)

		verdict := &entities.ComplianceVerdict{Compliant: false, Confidence: 0.2}

		for amount, want := range map[float64]bool{900: true, 1100: true, 899: false, 1101: false} {
			outcome := engine.Evaluate(ctx, pendingInput(
				entities.Invoice{Vendor: "Acme", Amount: amount}, verdict, entities.RiskCritical))
			assert.Equal(t, want, outcome.ShouldOverride, "amount %.0f", amount)
		}
	})

	t.Run("international flag must match exactly when specified", func(t *testing.T) {
		_, rules, engine := newDecisionFixture(t)
		domestic := false
		_, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "r",
			entities.RuleScope{Vendor: "Acme", International: &domestic},
			map[string]any{"auto_decision": "approved"})
		require.NoError(t, err)

		verdict := &entities.ComplianceVerdict{Compliant: false, Confidence: 0.2}

		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Vendor: "Acme", International: true}, verdict, entities.RiskCritical))
		assert.False(t, outcome.ShouldOverride)

		outcome = engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Vendor: "Acme", International: false}, verdict, entities.RiskCritical))
		assert.True(t, outcome.ShouldOverride)
	})

	t.Run("rules without a directive are skipped", func(t *testing.T) {
		_, rules, engine := newDecisionFixture(t)
		_, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "advisory only", entities.RuleScope{Vendor: "Acme"}, nil)
		require.NoError(t, err)

		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Vendor: "Acme", Amount: 100},
			&entities.ComplianceVerdict{Compliant: false, Confidence: 0.2},
			entities.RiskCritical))
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceNoMatch, outcome.Source)
	})

	t.Run("rules below the success-rate floor are excluded", func(t *testing.T) {
		store, rules, engine := newDecisionFixture(t)
		id, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "r", entities.RuleScope{Vendor: "Acme"}, map[string]any{
			"auto_decision": "approved",
		})
		require.NoError(t, err)

		// 1 success then 2 failures drops the rate to 1/3, under the 0.7 floor
		for _, success := range []bool{true, false, false} {
			_, err := rules.RecordUsage(ctx, id, success)
			require.NoError(t, err)
		}
		assert.InDelta(t, 1.0/3.0, store.Rules[id].SuccessRate, 1e-9)

		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Vendor: "Acme", Amount: 100},
			&entities.ComplianceVerdict{Compliant: false, Confidence: 0.2},
			entities.RiskCritical))
		assert.False(t, outcome.ShouldOverride)
	})

	t.Run("most-proven matching rule wins", func(t *testing.T) {
		store, rules, engine := newDecisionFixture(t)

		rejectID, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "reject acme", entities.RuleScope{Vendor: "Acme"}, map[string]any{
			"auto_decision": "rejected",
		})
		require.NoError(t, err)
		approveID, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "approve acme", entities.RuleScope{Vendor: "Acme"}, map[string]any{
			"auto_decision": "approved",
		})
		require.NoError(t, err)

		// Make the reject rule the proven one.
		for i := 0; i < 3; i++ {
			_, err := rules.RecordUsage(ctx, rejectID, true)
			require.NoError(t, err)
		}
		require.Greater(t, store.Rules[rejectID].AppliedCount, store.Rules[approveID].AppliedCount)

		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Vendor: "Acme", Amount: 100},
			&entities.ComplianceVerdict{Compliant: true, Confidence: 0.2},
			entities.RiskCritical))
		assert.True(t, outcome.ShouldOverride)
		assert.Equal(t, entities.DecisionRejected, outcome.Decision)
		assert.Equal(t, rejectID, outcome.AppliedRuleID)
	})

	t.Run("store failure degrades to no match", func(t *testing.T) {
		store, rules, engine := newDecisionFixture(t)
		_, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "r", entities.RuleScope{Vendor: "Acme"}, map[string]any{
			"auto_decision": "approved",
		})
		require.NoError(t, err)
		store.QueryRulesErr = errors.New("database is locked")

		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Vendor: "Acme", Amount: 100},
			&entities.ComplianceVerdict{Compliant: false, Confidence: 0.2},
			entities.RiskCritical))
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceNoMatch, outcome.Source)
	})
}

func TestDecisionService_Heuristic(t *testing.T) {
	ctx := context.Background()
	_, _, engine := newDecisionFixture(t)

	compliant := func(confidence float64) *entities.ComplianceVerdict {
		return &entities.ComplianceVerdict{Compliant: true, Confidence: confidence}
	}

	t.Run("medium risk at the exact amount limit is eligible", func(t *testing.T) {
		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Amount: 2500}, compliant(0.95), entities.RiskMedium))
		assert.True(t, outcome.ShouldOverride)
		assert.Equal(t, entities.DecisionApproved, outcome.Decision)
		assert.Equal(t, SourceHeuristic, outcome.Source)
	})

	t.Run("one cent over the limit is not", func(t *testing.T) {
		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Amount: 2500.01}, compliant(0.95), entities.RiskMedium))
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceNoMatch, outcome.Source)
	})

	t.Run("confidence below the level minimum is not", func(t *testing.T) {
		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Amount: 100}, compliant(0.89), entities.RiskMedium))
		assert.False(t, outcome.ShouldOverride)
	})

	t.Run("low risk has its own thresholds", func(t *testing.T) {
		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Amount: 9000}, compliant(0.85), entities.RiskLow))
		assert.True(t, outcome.ShouldOverride)
	})

	t.Run("high and critical risk are never auto-approved", func(t *testing.T) {
		for _, level := range []entities.RiskLevel{entities.RiskHigh, entities.RiskCritical} {
			outcome := engine.Evaluate(ctx, pendingInput(
				entities.Invoice{Amount: 1}, compliant(1.0), level))
			assert.False(t, outcome.ShouldOverride, "level %s", level)
		}
	})

	t.Run("non-compliant is never auto-approved", func(t *testing.T) {
		outcome := engine.Evaluate(ctx, pendingInput(
			entities.Invoice{Amount: 100},
			&entities.ComplianceVerdict{Compliant: false, Confidence: 1.0},
			entities.RiskLow))
		assert.False(t, outcome.ShouldOverride)
		assert.Equal(t, SourceNoMatch, outcome.Source)
	})
}

func TestAutoDecision_AuditMessage(t *testing.T) {
	override := AutoDecision{
		ShouldOverride: true,
		Decision:       entities.DecisionApproved,
		Reason:         "matched learned rule",
		Confidence:     0.92,
		Source:         SourceRule,
	}
	assert.Equal(t,
		"Decision engine: auto-approved via rule (confidence 0.92): matched learned rule",
		override.AuditMessage())

	pending := AutoDecision{Source: SourceNoMatch, Reason: "no rule or heuristic applies"}
	assert.Equal(t,
		"Decision engine: left for human review (no_match): no rule or heuristic applies",
		pending.AuditMessage())
}

func TestDecisionService_TieBreakIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store, _, engine := newDecisionFixture(t)

	// Two equally proven rules created at the same instant: the id breaks
	// the tie, so repeated evaluations agree.
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"rule-a", "rule-b"} {
		require.NoError(t, store.SaveRule(ctx, &entities.ExceptionRule{
			ID:          id,
			RuleType:    entities.RuleTypeVendorException,
			Description: id,
			Vendor:      "Acme",
			Condition:   entities.RuleCondition{AutoDecision: entities.DecisionApproved},
			SuccessRate: 1.0,
			IsActive:    true,
			CreatedAt:   created,
		}))
	}

	verdict := &entities.ComplianceVerdict{Compliant: true, Confidence: 0.3}
	first := engine.Evaluate(ctx, pendingInput(entities.Invoice{Vendor: "Acme", Amount: 10}, verdict, entities.RiskCritical))
	require.True(t, first.ShouldOverride)
	assert.Equal(t, "rule-a", first.AppliedRuleID)
}
