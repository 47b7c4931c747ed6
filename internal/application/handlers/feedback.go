package handlers

import (
	"context"
	"fmt"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/services"
)

// FeedbackHandler receives "human decision received" events from the review
// surface.
type FeedbackHandler struct {
	feedback *services.FeedbackService
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(feedback *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// Handle applies a human decision. Returns false when the transaction is
// unknown or was already reviewed.
func (h *FeedbackHandler) Handle(ctx context.Context, decision entities.HumanDecision) (bool, error) {
	if decision.TransactionID == "" {
		return false, fmt.Errorf("transaction id is required")
	}
	if decision.Decision != entities.DecisionApproved && decision.Decision != entities.DecisionRejected {
		return false, fmt.Errorf("human decision must be %s or %s", entities.DecisionApproved, entities.DecisionRejected)
	}
	return h.feedback.Apply(ctx, decision)
}
