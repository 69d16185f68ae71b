// Package policy decides, after a gateway returns a failed Result, whether the
// router may fall back to the next gateway. Rules are govaluate expressions
// evaluated against the Facts of the failed attempt.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Knetic/govaluate"
)

// PolicyDecision is the outcome of a policy evaluation.
type PolicyDecision struct {
	AllowFallback  bool // try the next gateway in the route
	EscalateManual bool // flag the payment for manual review
}

// PolicyRule maps an expression to a decision. Rules are tried in ascending
// Priority; ties keep their declaration order. The first match wins.
type PolicyRule struct {
	ID         string
	Expression string
	Priority   int
	Decision   PolicyDecision
}

// Facts describe a failed attempt. They are exposed to expressions as
// success, error_code, message, attempt, gateway, operation, amount and
// currency.
type Facts struct {
	Success   bool
	ErrorCode string
	Message   string
	Attempt   int
	Gateway   string
	Operation string
	Amount    int64
	Currency  string
}

func (f Facts) parameters() map[string]interface{} {
	return map[string]interface{}{
		"success":    f.Success,
		"error_code": f.ErrorCode,
		"message":    f.Message,
		"attempt":    float64(f.Attempt),
		"gateway":    f.Gateway,
		"operation":  f.Operation,
		"amount":     float64(f.Amount),
		"currency":   f.Currency,
	}
}

type compiledRule struct {
	PolicyRule
	expr *govaluate.EvaluableExpression
}

// PaymentPolicyEnforcer holds compiled rules.
type PaymentPolicyEnforcer struct {
	rules    []compiledRule
	fallback PolicyDecision
}

// NewPaymentPolicyEnforcer compiles rules. Any rule that fails to compile
// rejects the whole set.
func NewPaymentPolicyEnforcer(rules []PolicyRule) (*PaymentPolicyEnforcer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if strings.TrimSpace(r.Expression) == "" {
			return nil, fmt.Errorf("policy rule ID '%s' has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule ID '%s': %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{PolicyRule: r, expr: expr})
	}
	slices.SortStableFunc(compiled, func(a, b compiledRule) int {
		return a.Priority - b.Priority
	})
	return &PaymentPolicyEnforcer{rules: compiled}, nil
}

// WithDefault sets the decision returned when no rule matches. The zero
// decision forbids fallback.
func (ppe *PaymentPolicyEnforcer) WithDefault(d PolicyDecision) *PaymentPolicyEnforcer {
	ppe.fallback = d
	return ppe
}

// Evaluate returns the decision of the first matching rule, or the default.
func (ppe *PaymentPolicyEnforcer) Evaluate(f Facts) (PolicyDecision, error) {
	d, _, err := ppe.Match(f)
	return d, err
}

// Match is Evaluate that also names the rule that matched; the ID is empty
// when the default applied.
func (ppe *PaymentPolicyEnforcer) Match(f Facts) (PolicyDecision, string, error) {
	params := f.parameters()
	for _, r := range ppe.rules {
		out, err := r.expr.Evaluate(params)
		if err != nil {
			return PolicyDecision{}, "", fmt.Errorf("failed to evaluate rule ID '%s': %w", r.ID, err)
		}
		matched, ok := out.(bool)
		if !ok {
			return PolicyDecision{}, "", fmt.Errorf("policy rule ID '%s' evaluated to %T, want bool", r.ID, out)
		}
		if matched {
			return r.Decision, r.ID, nil
		}
	}
	return ppe.fallback, "", nil
}

// DefaultRules fall back on transient gateway trouble and keep card-level
// declines on the gateway that issued them.
func DefaultRules() []PolicyRule {
	return []PolicyRule{
		{
			ID:         "card_declines_are_final",
			Expression: "error_code in ('card_declined', 'insufficient_funds', 'incorrect_number', 'incorrect_cvc', 'expired_card')",
			Priority:   1,
			Decision:   PolicyDecision{AllowFallback: false},
		},
		{
			ID:         "transient_errors_fall_back",
			Expression: "error_code == 'processing_error' || error_code == 'rate_limited' || error_code == 'ADAPTER_EXECUTION_ERROR'",
			Priority:   2,
			Decision:   PolicyDecision{AllowFallback: true},
		},
		{
			ID:         "unclassified_failure_falls_back_once",
			Expression: "error_code == '' && attempt < 2",
			Priority:   3,
			Decision:   PolicyDecision{AllowFallback: true},
		},
	}
}
