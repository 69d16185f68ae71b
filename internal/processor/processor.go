// Package processor dispatches canonical operations to the configured
// gateway adapters and records every outcome.
package processor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/response"
)

const (
	tracerName = "github.com/yourorg/payment-gateway/internal/processor"

	ErrorAdapterNotFound  = "ADAPTER_NOT_FOUND"
	ErrorAdapterExecution = "ADAPTER_EXECUTION_ERROR"
)

// Request carries the arguments of any Adapter operation. Each operation
// reads only the fields it needs.
type Request struct {
	Amount        int64
	PaymentMethod gateway.PaymentMethod
	Authorization string
	Options       gateway.Options
}

// Processor wraps adapter calls, selecting the adapter by gateway kind.
type Processor struct {
	adapterRegistry map[gateway.Kind]gateway.Adapter
	logger          *zap.Logger
	tracer          trace.Tracer
	log             *reporting.Log
	outcomes        *prometheus.CounterVec
}

// Option configures a Processor.
type Option func(*Processor)

// WithLog sets the outcome log shared with reporting.
func WithLog(l *reporting.Log) Option {
	return func(p *Processor) { p.log = l }
}

// WithRegisterer registers the outcome counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Processor) {
		p.outcomes = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "paygw",
			Subsystem: "processor",
			Name:      "operations_total",
			Help:      "Logical gateway operations by gateway, operation and outcome.",
		}, []string{"gateway", "operation", "outcome"})
	}
}

// NewProcessor creates a Processor over adapters. Two adapters reporting the
// same Kind is a configuration error.
func NewProcessor(logger *zap.Logger, adapters []gateway.Adapter, opts ...Option) (*Processor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		adapterRegistry: make(map[gateway.Kind]gateway.Adapter, len(adapters)),
		logger:          logger,
		tracer:          otel.Tracer(tracerName),
		log:             reporting.NewLog(),
	}
	for _, a := range adapters {
		if _, dup := p.adapterRegistry[a.Kind()]; dup {
			return nil, fmt.Errorf("processor: duplicate adapter for gateway %s", a.Kind())
		}
		p.adapterRegistry[a.Kind()] = a
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Adapter returns the adapter registered for kind.
func (p *Processor) Adapter(kind gateway.Kind) (gateway.Adapter, bool) {
	a, ok := p.adapterRegistry[kind]
	return a, ok
}

// Kinds lists the registered gateways in name order.
func (p *Processor) Kinds() []gateway.Kind {
	kinds := make([]gateway.Kind, 0, len(p.adapterRegistry))
	for k := range p.adapterRegistry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Log returns the outcome log.
func (p *Processor) Log() *reporting.Log {
	return p.log
}

// Execute runs op on the adapter registered for kind. An unknown kind yields
// a failed Result with ErrorAdapterNotFound. A non-nil error means the
// request itself was unusable for the adapter.
func (p *Processor) Execute(ctx context.Context, kind gateway.Kind, op gateway.Operation, req Request) (response.Result, error) {
	ctx, span := p.tracer.Start(ctx, "processor."+string(op),
		trace.WithAttributes(
			attribute.String("payment.gateway", string(kind)),
			attribute.String("payment.operation", string(op)),
			attribute.Int64("payment.amount", req.Amount),
		))
	defer span.End()

	entry := reporting.LogEntry{
		Timestamp: time.Now().UTC(),
		RequestID: uuid.NewString(),
		Gateway:   string(kind),
		Operation: string(op),
		Amount:    req.Amount,
		Currency:  req.Options.Currency,
	}

	adapterToUse, ok := p.adapterRegistry[kind]
	if !ok {
		res := response.Failure(fmt.Sprintf("No adapter registered for gateway: %s", kind), nil,
			response.WithErrorCode(ErrorAdapterNotFound))
		span.SetStatus(codes.Error, ErrorAdapterNotFound)
		p.record(entry, res)
		return res, nil
	}

	res, err := dispatch(ctx, adapterToUse, op, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("adapter rejected request",
			zap.String("gateway", string(kind)), zap.String("operation", string(op)), zap.Error(err))
		failure := response.Failure(err.Error(), nil, response.WithErrorCode(ErrorAdapterExecution))
		p.record(entry, failure)
		return nil, fmt.Errorf("processor: %s %s: %w", kind, op, err)
	}

	span.SetAttributes(
		attribute.Bool("payment.success", res.Success()),
		attribute.String("payment.error_code", res.ErrorCode()),
	)
	if !res.Success() {
		span.SetStatus(codes.Error, res.Message())
	}
	p.logger.Info("gateway operation completed",
		zap.String("gateway", string(kind)),
		zap.String("operation", string(op)),
		zap.Bool("success", res.Success()),
		zap.String("error_code", res.ErrorCode()),
		zap.Int("calls", callCount(res)))
	p.record(entry, res)
	return res, nil
}

func dispatch(ctx context.Context, a gateway.Adapter, op gateway.Operation, req Request) (response.Result, error) {
	switch op {
	case gateway.OpPurchase:
		return a.Purchase(ctx, req.Amount, req.PaymentMethod, req.Options)
	case gateway.OpAuthorize:
		return a.Authorize(ctx, req.Amount, req.PaymentMethod, req.Options)
	case gateway.OpCapture:
		return a.Capture(ctx, req.Amount, req.Authorization, req.Options)
	case gateway.OpVoid:
		return a.Void(ctx, req.Authorization, req.Options)
	case gateway.OpRefund:
		return a.Refund(ctx, req.Amount, req.Authorization, req.Options)
	case gateway.OpStore:
		card, ok := req.PaymentMethod.(gateway.CreditCard)
		if !ok {
			return nil, gateway.ErrUnsupportedPaymentMethod
		}
		return a.Store(ctx, card, req.Options)
	case gateway.OpUnstore:
		return a.Unstore(ctx, req.Authorization, req.Options)
	case gateway.OpVerify:
		card, ok := req.PaymentMethod.(gateway.CreditCard)
		if !ok {
			return nil, gateway.ErrUnsupportedPaymentMethod
		}
		return a.Verify(ctx, card, req.Options)
	}
	return nil, fmt.Errorf("%w: %s", gateway.ErrNotSupported, op)
}

func callCount(res response.Result) int {
	if m, ok := res.(*response.MultiResponse); ok {
		return m.Len()
	}
	return 1
}

func (p *Processor) record(entry reporting.LogEntry, res response.Result) {
	entry.Status = reporting.StatusSuccess
	outcome := "success"
	if !res.Success() {
		entry.Status = reporting.StatusFailure
		outcome = "failure"
		entry.ErrorCode = res.ErrorCode()
		entry.ErrorMessage = res.Message()
	}
	entry.Authorization = res.Authorization()
	if entry.ErrorCode != ErrorAdapterNotFound && entry.ErrorCode != ErrorAdapterExecution {
		entry.Calls = callCount(res)
	}
	p.log.Append(entry)
	if p.outcomes != nil {
		p.outcomes.WithLabelValues(entry.Gateway, entry.Operation, outcome).Inc()
	}
}
