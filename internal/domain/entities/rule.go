// Package entities contains core domain data structures.
package entities

import (
	"errors"
	"strings"
	"time"
)

// Common errors for rule and transaction operations.
var (
	ErrInvalidCondition    = errors.New("invalid rule condition")
	ErrRuleNotFound        = errors.New("rule not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// RuleType categorizes how an exception rule was taught.
type RuleType string

// Built-in rule types. The type is advisory; matching is driven entirely by
// the rule's scope and condition.
const (
	RuleTypeVendorException   RuleType = "vendor_exception"
	RuleTypeCategoryException RuleType = "category_exception"
	RuleTypeAmountException   RuleType = "amount_exception"
	RuleTypeManualOverride    RuleType = "manual_override"
)

// RuleScope narrows where an exception rule applies. All fields are optional;
// an empty field means "any".
type RuleScope struct {
	Vendor        string `json:"vendor,omitempty"`
	Category      string `json:"category,omitempty"`
	Currency      string `json:"currency,omitempty"`
	International *bool  `json:"international,omitempty"`
}

// ExceptionRule is a human-taught override condition plus an optional
// automation directive. Rules are soft-deleted, never removed, so that
// usage history survives for the retention metrics.
type ExceptionRule struct {
	ID            string        `json:"id"`
	RuleType      RuleType      `json:"rule_type"`
	Description   string        `json:"description"`
	Vendor        string        `json:"vendor,omitempty"`
	Category      string        `json:"category,omitempty"`
	Currency      string        `json:"currency,omitempty"`
	International *bool         `json:"international,omitempty"`
	Condition     RuleCondition `json:"condition"`

	// AppliedCount and SuccessRate together form a cumulative moving
	// average over every recorded application of the rule. SuccessRate
	// starts at 1.0 for a fresh rule and is never reset.
	AppliedCount int     `json:"applied_count"`
	SuccessRate  float64 `json:"success_rate"`

	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAppliedAt *time.Time `json:"last_applied_at,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// RuleFilter selects active rules. Empty string fields are ignored.
type RuleFilter struct {
	Vendor         string
	Category       string
	RuleType       RuleType
	MinSuccessRate float64
}

// NormalizeName lowercases and trims a scope value for case-insensitive
// matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// descriptionPlaceholders are human-entered values treated as "no description".
var descriptionPlaceholders = map[string]bool{
	"":     true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"null": true,
	"-":    true,
}

// IsPlaceholderDescription reports whether a human-supplied description
// carries no information and should be synthesized instead.
func IsPlaceholderDescription(desc string) bool {
	return descriptionPlaceholders[NormalizeName(desc)]
}
