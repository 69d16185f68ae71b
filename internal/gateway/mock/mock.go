// Package mock provides a scriptable gateway.Adapter for tests and the demo
// server. It can stand in for any Kind.
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/scrub"
)

// Call is one recorded adapter invocation.
type Call struct {
	Operation     gateway.Operation
	Amount        int64
	PaymentMethod gateway.PaymentMethod
	Authorization string
	Options       gateway.Options
}

// MockAdapter answers every operation through ProcessFunc, or with an
// approved Response carrying a fresh uuid authorization when it is nil.
type MockAdapter struct {
	Name        gateway.Kind
	ProcessFunc func(ctx context.Context, call Call) (response.Result, error)

	mu    sync.Mutex
	calls []Call
}

// NewMockAdapter creates a MockAdapter reporting kind.
func NewMockAdapter(kind gateway.Kind) *MockAdapter {
	return &MockAdapter{Name: kind}
}

// Kind implements gateway.Adapter.
func (m *MockAdapter) Kind() gateway.Kind {
	return m.Name
}

// Calls returns the invocations seen so far.
func (m *MockAdapter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockAdapter) process(ctx context.Context, call Call) (response.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, call)
	}

	// Default behavior: success
	authorization := call.Authorization
	if authorization == "" {
		authorization = uuid.NewString()
	}
	return response.New(true, "Transaction approved", map[string]any{
		"mock_processed": true,
		"operation":      string(call.Operation),
		"amount":         call.Amount,
	}, response.WithAuthorization(authorization), response.WithTest(true)), nil
}

func (m *MockAdapter) Purchase(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpPurchase, Amount: amount, PaymentMethod: pm, Options: opts})
}

func (m *MockAdapter) Authorize(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpAuthorize, Amount: amount, PaymentMethod: pm, Options: opts})
}

func (m *MockAdapter) Capture(ctx context.Context, amount int64, authorization string, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpCapture, Amount: amount, Authorization: authorization, Options: opts})
}

func (m *MockAdapter) Void(ctx context.Context, authorization string, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpVoid, Authorization: authorization, Options: opts})
}

func (m *MockAdapter) Refund(ctx context.Context, amount int64, authorization string, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpRefund, Amount: amount, Authorization: authorization, Options: opts})
}

func (m *MockAdapter) Store(ctx context.Context, card gateway.CreditCard, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpStore, PaymentMethod: card, Options: opts})
}

func (m *MockAdapter) Unstore(ctx context.Context, token string, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpUnstore, Authorization: token, Options: opts})
}

func (m *MockAdapter) Verify(ctx context.Context, card gateway.CreditCard, opts gateway.Options) (response.Result, error) {
	return m.process(ctx, Call{Operation: gateway.OpVerify, PaymentMethod: card, Options: opts})
}

var scrubber = scrub.New(
	scrub.JSONField("number", "verification_value", "cvv"),
	scrub.FormField("number", "cvv"),
	scrub.AuthorizationHeader(),
)

// Scrub redacts card fields in JSON or form transcripts.
func (m *MockAdapter) Scrub(transcript string) string {
	return scrubber.Scrub(transcript)
}
