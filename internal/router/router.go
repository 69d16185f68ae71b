// Package router sends a payment operation to the first healthy gateway in a
// configured order and, when that gateway fails, asks the policy whether the
// next one may be tried.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/policy"
	"github.com/yourorg/payment-gateway/internal/processor"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
)

// ErrorCircuitOpen is the error code of the Result returned when every
// gateway in the route was skipped.
const ErrorCircuitOpen = "CIRCUIT_OPEN"

// ErrNotRoutable is returned for operations bound to an earlier
// authorization; those must go back to the gateway that issued it.
var ErrNotRoutable = errors.New("router: operation is bound to its issuing gateway")

// Executor runs one operation on one gateway. *processor.Processor
// implements it.
type Executor interface {
	Execute(ctx context.Context, kind gateway.Kind, op gateway.Operation, req processor.Request) (response.Result, error)
}

// Config lists the gateways to try, in order.
type Config struct {
	Gateways []gateway.Kind
}

// Attempt records what happened at one gateway of the route.
type Attempt struct {
	Gateway   gateway.Kind `json:"gateway"`
	Skipped   bool         `json:"skipped,omitempty"` // circuit open
	Success   bool         `json:"success"`
	ErrorCode string       `json:"error_code,omitempty"`
	Rule      string       `json:"rule,omitempty"` // policy rule that decided the fallback
}

// Outcome is the Result of a routed operation plus the path it took.
type Outcome struct {
	Result   response.Result
	Gateway  gateway.Kind // gateway that produced Result
	Attempts []Attempt
}

// Router routes operations across gateways.
type Router struct {
	executor       Executor
	gateways       []gateway.Kind
	circuitBreaker *circuitbreaker.CircuitBreaker
	policy         *policy.PaymentPolicyEnforcer
	log            *reporting.Log
	logger         *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(r *Router) { r.circuitBreaker = cb }
}

// WithPolicy replaces policy.DefaultRules.
func WithPolicy(p *policy.PaymentPolicyEnforcer) Option {
	return func(r *Router) { r.policy = p }
}

// WithLog records a FALLBACK entry each time the route moves on.
func WithLog(l *reporting.Log) Option {
	return func(r *Router) { r.log = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a Router over exec.
func NewRouter(exec Executor, cfg Config, opts ...Option) (*Router, error) {
	if exec == nil {
		return nil, errors.New("router: executor cannot be nil")
	}
	if len(cfg.Gateways) == 0 {
		return nil, errors.New("router: at least one gateway is required")
	}
	seen := make(map[gateway.Kind]bool, len(cfg.Gateways))
	for _, k := range cfg.Gateways {
		if seen[k] {
			return nil, fmt.Errorf("router: gateway %s listed twice", k)
		}
		seen[k] = true
	}

	r := &Router{
		executor: exec,
		gateways: append([]gateway.Kind(nil), cfg.Gateways...),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.circuitBreaker == nil {
		r.circuitBreaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{})
	}
	if r.policy == nil {
		p, err := policy.NewPaymentPolicyEnforcer(policy.DefaultRules())
		if err != nil {
			return nil, fmt.Errorf("router: default policy: %w", err)
		}
		r.policy = p
	}
	return r, nil
}

// Gateways returns the route order.
func (r *Router) Gateways() []gateway.Kind {
	return append([]gateway.Kind(nil), r.gateways...)
}

// Routable reports whether op may be sent to more than one gateway.
func Routable(op gateway.Operation) bool {
	switch op {
	case gateway.OpPurchase, gateway.OpAuthorize, gateway.OpStore, gateway.OpVerify:
		return true
	}
	return false
}

// Route runs op on the first gateway whose circuit allows it. A failed
// Result moves on to the next gateway only when the policy allows fallback.
// The returned error is non-nil only for unroutable operations, canceled
// contexts and adapter errors the policy did not recover from.
func (r *Router) Route(ctx context.Context, op gateway.Operation, req processor.Request) (*Outcome, error) {
	if !Routable(op) {
		return nil, fmt.Errorf("%w: %s", ErrNotRoutable, op)
	}

	out := &Outcome{}
	attempt := 0
	var skipped []string

	for i, kind := range r.gateways {
		if !r.circuitBreaker.AllowRequest(string(kind)) {
			out.Attempts = append(out.Attempts, Attempt{Gateway: kind, Skipped: true, ErrorCode: ErrorCircuitOpen})
			skipped = append(skipped, string(kind))
			r.logger.Info("skipping gateway with open circuit",
				zap.String("gateway", string(kind)), zap.String("operation", string(op)))
			continue
		}
		attempt++

		res, err := r.executor.Execute(ctx, kind, op, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			res = response.Failure(err.Error(), nil, response.WithErrorCode(processor.ErrorAdapterExecution))
		} else {
			r.recordHealth(kind, res)
		}

		a := Attempt{Gateway: kind, Success: res.Success(), ErrorCode: res.ErrorCode()}
		out.Result, out.Gateway = res, kind

		if res.Success() {
			out.Attempts = append(out.Attempts, a)
			return out, nil
		}

		decision, rule, perr := r.policy.Match(policy.Facts{
			Success:   false,
			ErrorCode: res.ErrorCode(),
			Message:   res.Message(),
			Attempt:   attempt,
			Gateway:   string(kind),
			Operation: string(op),
			Amount:    req.Amount,
			Currency:  req.Options.Currency,
		})
		a.Rule = rule
		out.Attempts = append(out.Attempts, a)
		if perr != nil {
			r.logger.Error("policy evaluation failed; keeping failed result",
				zap.String("gateway", string(kind)), zap.Error(perr))
			return out, err
		}
		if decision.EscalateManual {
			r.logger.Warn("payment flagged for manual review",
				zap.String("gateway", string(kind)),
				zap.String("operation", string(op)),
				zap.String("rule", rule),
				zap.String("order_id", req.Options.OrderID))
		}

		last := i == len(r.gateways)-1
		if !decision.AllowFallback || last {
			return out, err
		}

		r.logger.Info("falling back to next gateway",
			zap.String("gateway", string(kind)),
			zap.String("error_code", res.ErrorCode()),
			zap.String("rule", rule),
			zap.Int("attempt", attempt))
		r.recordFallback(kind, op, req, res)
	}

	if out.Result == nil {
		out.Result = response.Failure(
			fmt.Sprintf("No gateway available for %s: circuit open for %s", op, strings.Join(skipped, ", ")),
			nil, response.WithErrorCode(ErrorCircuitOpen))
	}
	return out, nil
}

// recordHealth feeds the circuit breaker. Card-level declines prove the
// gateway is answering, so they count as successes.
func (r *Router) recordHealth(kind gateway.Kind, res response.Result) {
	if res.Success() || gateway.IsCardError(res.ErrorCode()) {
		r.circuitBreaker.RecordSuccess(string(kind))
		return
	}
	r.circuitBreaker.RecordFailure(string(kind))
}

func (r *Router) recordFallback(kind gateway.Kind, op gateway.Operation, req processor.Request, res response.Result) {
	if r.log == nil {
		return
	}
	r.log.Append(reporting.LogEntry{
		Timestamp:    time.Now().UTC(),
		RequestID:    uuid.NewString(),
		Gateway:      string(kind),
		Operation:    string(op),
		Status:       reporting.StatusFallback,
		Amount:       req.Amount,
		Currency:     req.Options.Currency,
		ErrorCode:    res.ErrorCode(),
		ErrorMessage: res.Message(),
	})
}
