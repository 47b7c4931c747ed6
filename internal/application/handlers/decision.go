// Package handlers wires domain services into the operations the admin
// surface and upstream pipeline call.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/ports"
	"github.com/complypilot/comply-core/internal/domain/services"
	"github.com/google/uuid"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// DecisionHandler runs the automation step for a transaction pending
// escalation and records the durable outcome.
type DecisionHandler struct {
	store    ports.Store
	decision *services.DecisionService
}

// NewDecisionHandler creates a new decision handler.
func NewDecisionHandler(store ports.Store, decision *services.DecisionService) *DecisionHandler {
	return &DecisionHandler{
		store:    store,
		decision: decision,
	}
}

// ProcessInput is a transaction handed over by the upstream reviewers.
type ProcessInput struct {
	Invoice         entities.Invoice
	CurrentDecision entities.Decision
	Verdict         *entities.ComplianceVerdict
	Risk            entities.RiskAssessment
	// Trails are the upstream reviewers' narratives, merged (stale pending
	// placeholders dropped) into the stored audit trail.
	Trails []entities.Trail
}

// ProcessResult is the recorded outcome of one automation pass.
type ProcessResult struct {
	Outcome     services.AutoDecision
	Transaction *entities.TransactionRecord
}

// Process evaluates the transaction, folds the upstream trails and the
// engine's own narrative into one audit trail, and persists the record.
func (h *DecisionHandler) Process(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	started := timeNow()

	outcome := h.decision.Evaluate(ctx, services.EvaluationInput{
		Invoice:         input.Invoice,
		CurrentDecision: input.CurrentDecision,
		Verdict:         input.Verdict,
		Risk:            input.Risk,
	})

	finalDecision := input.CurrentDecision
	if outcome.ShouldOverride {
		finalDecision = outcome.Decision
	}

	trail := mergeAll(input.Trails)
	trail = append(trail, outcome.AuditMessage())

	tx := &entities.TransactionRecord{
		ID:                uuid.New().String(),
		InvoiceRef:        input.Invoice.Ref,
		Invoice:           input.Invoice,
		RiskScore:         input.Risk.Score,
		RiskLevel:         input.Risk.Level,
		FinalDecision:     finalDecision,
		DecisionRationale: outcome.Reason,
		AppliedRuleID:     outcome.AppliedRuleID,
		ProcessingMS:      timeNow().Sub(started).Milliseconds(),
		AuditTrail:        trail,
		CreatedAt:         timeNow().UTC(),
	}
	if input.Verdict != nil {
		tx.Verdict = *input.Verdict
	}

	if err := h.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("recording transaction outcome: %w", err)
	}

	return &ProcessResult{Outcome: outcome, Transaction: tx}, nil
}

// mergeAll folds the upstream trails pairwise, left to right.
func mergeAll(trails []entities.Trail) []string {
	switch len(trails) {
	case 0:
		return []string{}
	case 1:
		return services.MergeTrails(trails[0], entities.Trail{})
	}

	merged := services.MergeTrails(trails[0], trails[1])
	for _, trail := range trails[2:] {
		merged = services.MergeTrails(entities.Trail{Messages: merged}, trail)
	}
	return merged
}
