package entities

import "strconv"

// DefaultAmountTolerance is the implicit window around an amount threshold
// when the rule does not specify one: threshold × (1 ± 0.10), inclusive.
const DefaultAmountTolerance = 0.10

// RuleCondition is the validated form of a rule's condition payload.
// Unknown keys in the raw payload are ignored for forward compatibility;
// only the fields below carry matching semantics.
type RuleCondition struct {
	// AmountThreshold matches invoice amounts within the tolerance window
	// around the threshold.
	AmountThreshold *float64 `json:"amount_threshold,omitempty"`
	// Tolerance overrides DefaultAmountTolerance, as a fraction of the
	// threshold (0.1 = ±10%).
	Tolerance *float64 `json:"tolerance,omitempty"`
	// MinAmount and MaxAmount are hard inclusive bounds.
	MinAmount *float64 `json:"min_amount,omitempty"`
	MaxAmount *float64 `json:"max_amount,omitempty"`
	// AutoDecision grants the rule authority to resolve a pending review
	// automatically. Empty means the rule is advisory only.
	AutoDecision Decision `json:"auto_decision,omitempty"`
	// Reason is the human explanation captured when the rule was taught.
	Reason string `json:"reason,omitempty"`
}

// ParseCondition converts a free-form condition payload into a validated
// RuleCondition. Unknown keys are silently ignored. Returns
// ErrInvalidCondition when a known key carries an unusable value.
func ParseCondition(raw map[string]any) (RuleCondition, error) {
	var cond RuleCondition
	if raw == nil {
		return cond, nil
	}

	var err error
	if cond.AmountThreshold, err = optionalNumber(raw, "amount_threshold"); err != nil {
		return RuleCondition{}, err
	}
	if cond.Tolerance, err = optionalNumber(raw, "tolerance"); err != nil {
		return RuleCondition{}, err
	}
	if cond.MinAmount, err = optionalNumber(raw, "min_amount"); err != nil {
		return RuleCondition{}, err
	}
	if cond.MaxAmount, err = optionalNumber(raw, "max_amount"); err != nil {
		return RuleCondition{}, err
	}
	if cond.Tolerance != nil && *cond.Tolerance < 0 {
		return RuleCondition{}, ErrInvalidCondition
	}

	if v, ok := raw["auto_decision"]; ok {
		s, ok := v.(string)
		if !ok {
			return RuleCondition{}, ErrInvalidCondition
		}
		decision := Decision(NormalizeName(s))
		if decision != DecisionApproved && decision != DecisionRejected {
			return RuleCondition{}, ErrInvalidCondition
		}
		cond.AutoDecision = decision
	}

	if v, ok := raw["reason"]; ok {
		if s, ok := v.(string); ok {
			cond.Reason = s
		}
	}

	return cond, nil
}

// optionalNumber reads a numeric key that may arrive as float64, int, or a
// numeric string (JSON decoders and spreadsheet imports disagree on types).
func optionalNumber(raw map[string]any, key string) (*float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	case int64:
		f := float64(n)
		return &f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, ErrInvalidCondition
		}
		return &f, nil
	default:
		return nil, ErrInvalidCondition
	}
}

// MatchesAmount reports whether an invoice amount satisfies the condition's
// amount constraints. Threshold matching uses the tolerance window; min/max
// are hard inclusive bounds. A condition without amount constraints matches
// any amount.
func (c RuleCondition) MatchesAmount(amount float64) bool {
	if c.AmountThreshold != nil {
		tolerance := DefaultAmountTolerance
		if c.Tolerance != nil {
			tolerance = *c.Tolerance
		}
		lower := *c.AmountThreshold * (1 - tolerance)
		upper := *c.AmountThreshold * (1 + tolerance)
		if amount < lower || amount > upper {
			return false
		}
	}
	if c.MinAmount != nil && amount < *c.MinAmount {
		return false
	}
	if c.MaxAmount != nil && amount > *c.MaxAmount {
		return false
	}
	return true
}
