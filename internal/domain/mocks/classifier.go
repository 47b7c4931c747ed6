package mocks

import (
	"context"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/ports"
)

// Classifier is a canned ports.IntentClassifier.
type Classifier struct {
	Draft *ports.RuleDraft
	Err   error
	Calls int
}

// DraftRule returns the canned draft or error.
func (c *Classifier) DraftRule(_ context.Context, _ *entities.TransactionRecord, _ entities.HumanDecision) (*ports.RuleDraft, error) {
	c.Calls++
	return c.Draft, c.Err
}
