package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complypilot/comply-core/internal/application/handlers"
	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/services"
	"github.com/complypilot/comply-core/internal/infrastructure/config"
	"github.com/complypilot/comply-core/internal/infrastructure/store/sqlite"
)

// testEnv wires the real SQLite store through the full service stack, the
// same way the CLI does.
type testEnv struct {
	repo     *sqlite.Repository
	rules    *services.RuleService
	decision *handlers.DecisionHandler
	feedback *handlers.FeedbackHandler
	metrics  *handlers.MetricsHandler
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.EnsureSchema(context.Background()))

	cfg := config.Default()
	rules := services.NewRuleService(repo, nil)
	engine := services.NewDecisionService(repo, rules, cfg.Automation, nil)
	feedback := services.NewFeedbackService(repo, rules, nil, nil)
	metrics := services.NewMetricsService(repo, nil)

	return &testEnv{
		repo:     repo,
		rules:    rules,
		decision: handlers.NewDecisionHandler(repo, engine),
		feedback: handlers.NewFeedbackHandler(feedback),
		metrics:  handlers.NewMetricsHandler(metrics),
	}
}

func pendingInvoice(ref, vendor string, amount float64, confidence float64, level entities.RiskLevel) handlers.ProcessInput {
	return handlers.ProcessInput{
		Invoice: entities.Invoice{
			Ref:      ref,
			Vendor:   vendor,
			Currency: "USD",
			Amount:   amount,
		},
		CurrentDecision: entities.DecisionNeedsReview,
		Verdict:         &entities.ComplianceVerdict{Compliant: true, Confidence: confidence},
		Risk:            entities.RiskAssessment{Level: level},
		Trails: []entities.Trail{
			{Origin: "Policy", Messages: []string{"Delegating to risk review (pending)", "Policy check complete"}},
			{Origin: "Risk", Messages: []string{"Risk assessment complete"}},
		},
	}
}

func TestLifecycle_RuleLearnsFromCorrection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupEnv(t)

	// A learned rule auto-approves Acme invoices around 1200.
	ruleID, err := env.rules.AddRule(ctx, entities.RuleTypeVendorException,
		"Acme standing approval",
		entities.RuleScope{Vendor: "Acme"},
		map[string]any{
			"amount_threshold": 1200.0,
			"auto_decision":    "approved",
		})
	require.NoError(t, err)

	// A pending Acme invoice inside the tolerance window is automated even
	// with a weak compliance confidence.
	result, err := env.decision.Process(ctx, pendingInvoice("INV-1", "Acme", 1200, 0.6, entities.RiskHigh))
	require.NoError(t, err)
	assert.True(t, result.Outcome.ShouldOverride)
	assert.Equal(t, services.SourceRule, result.Outcome.Source)
	assert.Equal(t, entities.DecisionApproved, result.Transaction.FinalDecision)

	rule, err := env.rules.Get(ctx, ruleID)
	require.NoError(t, err)
	assert.Equal(t, 1, rule.AppliedCount)
	assert.Equal(t, 1.0, rule.SuccessRate)

	// The stored trail keeps the upstream narrative minus the stale pending
	// line, plus the engine's own entry.
	tx, err := env.repo.FindTransaction(ctx, result.Transaction.ID)
	require.NoError(t, err)
	require.Len(t, tx.AuditTrail, 3)
	assert.Equal(t, "[Policy] Policy check complete", tx.AuditTrail[0])

	// A human rejects the automated approval: the override is durable and
	// charges the rule.
	applied, err := env.feedback.Handle(ctx, entities.HumanDecision{
		TransactionID: tx.ID,
		Decision:      entities.DecisionRejected,
		Reasoning:     "duplicate of INV-0",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	rule, err = env.rules.Get(ctx, ruleID)
	require.NoError(t, err)
	assert.Equal(t, 2, rule.AppliedCount)
	assert.InDelta(t, 0.5, rule.SuccessRate, 1e-9)

	tx, err = env.repo.FindTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.DecisionRejected, tx.FinalDecision)
	assert.True(t, tx.HumanOverride)
	require.NotNil(t, tx.UpdatedAt)

	// A second review attempt bounces off the mutate-once guard.
	again, err := env.feedback.Handle(ctx, entities.HumanDecision{
		TransactionID: tx.ID,
		Decision:      entities.DecisionApproved,
	})
	require.NoError(t, err)
	assert.False(t, again)

	// With the success rate at 0.5 the rule falls below the 0.7 floor and
	// stops matching.
	result, err = env.decision.Process(ctx, pendingInvoice("INV-2", "Acme", 1200, 0.6, entities.RiskHigh))
	require.NoError(t, err)
	assert.False(t, result.Outcome.ShouldOverride)
	assert.Equal(t, services.SourceNoMatch, result.Outcome.Source)
}

func TestLifecycle_HeuristicAndMetrics(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupEnv(t)

	// Low-risk compliant invoice under the amount cap: heuristic approval.
	auto, err := env.decision.Process(ctx, pendingInvoice("INV-10", "Globex", 900, 0.95, entities.RiskLow))
	require.NoError(t, err)
	assert.Equal(t, services.SourceHeuristic, auto.Outcome.Source)
	assert.Equal(t, entities.DecisionApproved, auto.Transaction.FinalDecision)

	// High-risk invoice stays pending.
	pending, err := env.decision.Process(ctx, pendingInvoice("INV-11", "Globex", 900, 0.95, entities.RiskHigh))
	require.NoError(t, err)
	assert.False(t, pending.Outcome.ShouldOverride)

	// Reviewer agrees with the pending one.
	applied, err := env.feedback.Handle(ctx, entities.HumanDecision{
		TransactionID: pending.Transaction.ID,
		Decision:      entities.DecisionApproved,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	today := time.Now().UTC().Format(entities.DateLayout)
	snapshot, err := env.metrics.Snapshot(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.TransactionCount)
	// needs_review -> approved is an override of the recorded decision.
	assert.InDelta(t, 50.0, snapshot.HumanCorrectionRate, 1e-9)
	assert.InDelta(t, 50.0, snapshot.AutoApprovalRate, 1e-9)
	assert.InDelta(t, 100.0, snapshot.AuditTraceabilityScore, 1e-9)

	// The snapshot is cached by date and recomputation overwrites it.
	cached, err := env.repo.FindSnapshot(ctx, today)
	require.NoError(t, err)
	require.NotNil(t, cached)

	snapshot2, err := env.metrics.Snapshot(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, snapshot.TransactionCount, snapshot2.TransactionCount)
}

func TestLifecycle_KillSwitch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupEnv(t)

	cfg := config.Default()
	cfg.Automation.Enabled = false
	rules := services.NewRuleService(env.repo, nil)
	engine := services.NewDecisionService(env.repo, rules, cfg.Automation, nil)
	decision := handlers.NewDecisionHandler(env.repo, engine)

	_, err := rules.AddRule(ctx, entities.RuleTypeVendorException, "r",
		entities.RuleScope{Vendor: "Acme"}, map[string]any{"auto_decision": "approved"})
	require.NoError(t, err)

	result, err := decision.Process(ctx, pendingInvoice("INV-20", "Acme", 100, 0.99, entities.RiskLow))
	require.NoError(t, err)
	assert.False(t, result.Outcome.ShouldOverride)
	assert.Equal(t, services.SourceDisabled, result.Outcome.Source)
	assert.Equal(t, entities.DecisionNeedsReview, result.Transaction.FinalDecision)
}

func TestLifecycle_SoftDeletedRuleStopsMatching(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupEnv(t)

	ruleID, err := env.rules.AddRule(ctx, entities.RuleTypeVendorException, "r",
		entities.RuleScope{Vendor: "Acme"}, map[string]any{"auto_decision": "approved"})
	require.NoError(t, err)

	deleted, err := env.rules.SoftDelete(ctx, ruleID)
	require.NoError(t, err)
	assert.True(t, deleted)

	result, err := env.decision.Process(ctx, pendingInvoice("INV-30", "Acme", 100, 0.2, entities.RiskHigh))
	require.NoError(t, err)
	assert.False(t, result.Outcome.ShouldOverride)

	// History survives the delete and still counts toward retention.
	rule, err := env.rules.Get(ctx, ruleID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.False(t, rule.IsActive)

	restored, err := env.rules.Restore(ctx, ruleID)
	require.NoError(t, err)
	assert.True(t, restored)

	result, err = env.decision.Process(ctx, pendingInvoice("INV-31", "Acme", 100, 0.2, entities.RiskHigh))
	require.NoError(t, err)
	assert.True(t, result.Outcome.ShouldOverride)
}
