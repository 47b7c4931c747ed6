package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/ports"
	"github.com/complypilot/comply-core/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DecisionSource identifies why the engine did (or did not) automate.
type DecisionSource string

const (
	SourceRule            DecisionSource = "rule"
	SourceHeuristic       DecisionSource = "heuristic"
	SourceDisabled        DecisionSource = "disabled"
	SourceFinalized       DecisionSource = "finalized"
	SourceNoMatch         DecisionSource = "no_match"
	SourceMissingPolicy   DecisionSource = "missing_policy"
	SourceManualException DecisionSource = "manual_exception"
)

// EvaluationInput is a transaction pending escalation together with the
// upstream reviewers' verdicts.
type EvaluationInput struct {
	Invoice         entities.Invoice
	CurrentDecision entities.Decision
	Verdict         *entities.ComplianceVerdict
	Risk            entities.RiskAssessment
}

// AutoDecision is the engine's answer for one pending transaction.
type AutoDecision struct {
	ShouldOverride bool
	Decision       entities.Decision
	Reason         string
	Confidence     float64
	Source         DecisionSource
	// AppliedRuleID is set when a learned rule produced the decision.
	AppliedRuleID string
}

// AuditMessage formats the outcome as a single narrative line suitable for a
// transaction's audit trail.
func (d AutoDecision) AuditMessage() string {
	if d.ShouldOverride {
		return fmt.Sprintf("Decision engine: auto-%s via %s (confidence %.2f): %s",
			d.Decision, d.Source, d.Confidence, d.Reason)
	}
	return fmt.Sprintf("Decision engine: left for human review (%s): %s", d.Source, d.Reason)
}

// DecisionService decides whether a transaction pending human review can be
// resolved automatically, either by a learned exception rule or by the risk
// heuristic. It never fails a transaction: any store trouble during matching
// degrades to "no match" and the case stays with a human.
type DecisionService struct {
	store  ports.Store
	rules  *RuleService
	cfg    config.AutomationConfig
	logger *zap.Logger
}

// NewDecisionService creates a new decision service.
func NewDecisionService(store ports.Store, rules *RuleService, cfg config.AutomationConfig, logger *zap.Logger) *DecisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionService{
		store:  store,
		rules:  rules,
		cfg:    cfg,
		logger: logger,
	}
}

// Evaluate runs the automation algorithm: guard checks, then learned rule
// matching (most-proven rule first), then the risk heuristic fallback.
func (s *DecisionService) Evaluate(ctx context.Context, input EvaluationInput) AutoDecision {
	if !s.cfg.Enabled {
		return AutoDecision{Source: SourceDisabled, Reason: "automated decisions are disabled"}
	}
	if input.Verdict == nil {
		return AutoDecision{Source: SourceMissingPolicy, Reason: "no compliance verdict available"}
	}
	if input.CurrentDecision != entities.DecisionNeedsReview {
		return AutoDecision{
			Source: SourceFinalized,
			Reason: fmt.Sprintf("decision already finalized as %s", input.CurrentDecision),
		}
	}
	if input.Verdict.ManualException {
		return AutoDecision{
			Source: SourceManualException,
			Reason: "compliance verdict requires a manually granted exception",
		}
	}

	if outcome, ok := s.matchRule(ctx, input); ok {
		return outcome
	}

	if outcome, ok := s.applyHeuristic(input); ok {
		return outcome
	}

	return AutoDecision{Source: SourceNoMatch, Reason: "no rule or heuristic applies"}
}

// matchRule tests the invoice against candidate rules in the store's
// documented order and returns the first rule that grants an auto decision.
func (s *DecisionService) matchRule(ctx context.Context, input EvaluationInput) (AutoDecision, bool) {
	candidates := s.candidateRules(ctx, input.Invoice)

	for i := range candidates {
		rule := &candidates[i]
		if rule.Condition.AutoDecision == "" {
			continue
		}
		if !ruleMatches(rule, input.Invoice) {
			continue
		}

		// First match wins; when two matching rules disagree on the
		// directive, the conflict is surfaced in the log, not resolved.
		s.warnOnConflict(rule, candidates[i+1:], input.Invoice)

		if applied, err := s.rules.RecordUsage(ctx, rule.ID, true); err != nil || !applied {
			s.logger.Warn("failed to record rule usage",
				zap.String("rule_id", rule.ID),
				zap.Error(err))
		}

		confidence := input.Verdict.Confidence
		if rule.SuccessRate > confidence {
			confidence = rule.SuccessRate
		}

		return AutoDecision{
			ShouldOverride: true,
			Decision:       rule.Condition.AutoDecision,
			Reason: fmt.Sprintf("matched learned rule %q (success rate %.0f%%)",
				rule.Description, rule.SuccessRate*100),
			Confidence:    confidence,
			Source:        SourceRule,
			AppliedRuleID: rule.ID,
		}, true
	}
	return AutoDecision{}, false
}

// candidateRules unions the vendor and category query results, deduplicated
// by id and re-sorted to the documented tie-break (most applications, then
// most recent, then id). A failed lookup degrades to an empty candidate set.
func (s *DecisionService) candidateRules(ctx context.Context, invoice entities.Invoice) []entities.ExceptionRule {
	var candidates []entities.ExceptionRule
	seen := make(map[string]bool)

	filters := make([]entities.RuleFilter, 0, 2)
	if invoice.Vendor != "" {
		filters = append(filters, entities.RuleFilter{Vendor: invoice.Vendor, MinSuccessRate: s.cfg.MinRuleSuccessRate})
	}
	if invoice.Category != "" {
		filters = append(filters, entities.RuleFilter{Category: invoice.Category, MinSuccessRate: s.cfg.MinRuleSuccessRate})
	}

	for _, filter := range filters {
		rules, err := s.store.QueryRules(ctx, filter)
		if err != nil {
			s.logger.Warn("rule lookup failed, treating as no match",
				zap.String("vendor", filter.Vendor),
				zap.String("category", filter.Category),
				zap.Error(err))
			continue
		}
		for _, rule := range rules {
			if !seen[rule.ID] {
				seen[rule.ID] = true
				candidates = append(candidates, rule)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].AppliedCount != candidates[j].AppliedCount {
			return candidates[i].AppliedCount > candidates[j].AppliedCount
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}

// warnOnConflict logs when a later candidate would have matched with the
// opposite directive. Which rule should win is deliberately left undefined;
// first-in-order wins, and the conflict is made visible for the rule admins.
func (s *DecisionService) warnOnConflict(winner *entities.ExceptionRule, rest []entities.ExceptionRule, invoice entities.Invoice) {
	for i := range rest {
		other := &rest[i]
		if other.Condition.AutoDecision == "" || other.Condition.AutoDecision == winner.Condition.AutoDecision {
			continue
		}
		if ruleMatches(other, invoice) {
			s.logger.Warn("conflicting auto-decision directives; first rule in order wins",
				zap.String("winning_rule", winner.ID),
				zap.String("conflicting_rule", other.ID),
				zap.String("winning_decision", string(winner.Condition.AutoDecision)),
				zap.String("conflicting_decision", string(other.Condition.AutoDecision)))
			return
		}
	}
}

// ruleMatches tests an invoice against a rule's scope and amount condition.
// Scope strings match case-insensitively; the international flag must match
// exactly when specified.
func ruleMatches(rule *entities.ExceptionRule, invoice entities.Invoice) bool {
	if rule.Vendor != "" && !strings.EqualFold(strings.TrimSpace(rule.Vendor), strings.TrimSpace(invoice.Vendor)) {
		return false
	}
	if rule.Category != "" && !strings.EqualFold(strings.TrimSpace(rule.Category), strings.TrimSpace(invoice.Category)) {
		return false
	}
	if rule.Currency != "" && !strings.EqualFold(strings.TrimSpace(rule.Currency), strings.TrimSpace(invoice.Currency)) {
		return false
	}
	if rule.International != nil && *rule.International != invoice.International {
		return false
	}
	return rule.Condition.MatchesAmount(invoice.Amount)
}

// applyHeuristic auto-approves low-value, high-confidence compliant invoices
// per the configured risk-level thresholds. Only low and medium risk levels
// are eligible.
func (s *DecisionService) applyHeuristic(input EvaluationInput) (AutoDecision, bool) {
	if !input.Verdict.Compliant {
		return AutoDecision{}, false
	}

	var threshold config.HeuristicThreshold
	switch input.Risk.Level {
	case entities.RiskLow:
		threshold = s.cfg.LowRisk
	case entities.RiskMedium:
		threshold = s.cfg.MediumRisk
	default:
		return AutoDecision{}, false
	}

	if input.Verdict.Confidence < threshold.MinConfidence || input.Invoice.Amount > threshold.MaxAmount {
		return AutoDecision{}, false
	}

	return AutoDecision{
		ShouldOverride: true,
		Decision:       entities.DecisionApproved,
		Reason: fmt.Sprintf("%s risk, compliant with confidence %.2f, amount %.2f within limit %.2f",
			input.Risk.Level, input.Verdict.Confidence, input.Invoice.Amount, threshold.MaxAmount),
		Confidence: input.Verdict.Confidence,
		Source:     SourceHeuristic,
	}, true
}
