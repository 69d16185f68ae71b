// Package gateway defines the contract every payment gateway adapter honors.
// Adapters translate the canonical operations below into one gateway's wire
// format and normalize the answers into response.Result values.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourorg/payment-gateway/internal/response"
)

// Kind identifies a gateway variant.
type Kind string

const (
	KindAlelo   Kind = "alelo"
	KindStripe  Kind = "stripe"
	KindOrbital Kind = "orbital"
	KindMock    Kind = "mock"
)

// ParseKind maps a gateway name onto a known Kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case KindAlelo, KindStripe, KindOrbital, KindMock:
		return k, nil
	}
	return "", fmt.Errorf("gateway: unknown gateway %q", name)
}

// Operation names an Adapter method.
type Operation string

const (
	OpPurchase  Operation = "purchase"
	OpAuthorize Operation = "authorize"
	OpCapture   Operation = "capture"
	OpVoid      Operation = "void"
	OpRefund    Operation = "refund"
	OpStore     Operation = "store"
	OpUnstore   Operation = "unstore"
	OpVerify    Operation = "verify"
)

// ParseOperation maps an operation name onto a known Operation.
func ParseOperation(name string) (Operation, error) {
	switch op := Operation(name); op {
	case OpPurchase, OpAuthorize, OpCapture, OpVoid, OpRefund, OpStore, OpUnstore, OpVerify:
		return op, nil
	}
	return "", fmt.Errorf("gateway: unknown operation %q", name)
}

var (
	// ErrNotSupported is returned for operations a gateway does not offer.
	ErrNotSupported = errors.New("gateway: operation not supported")
	// ErrUnsupportedPaymentMethod is returned when a payment method variant
	// cannot be used for the requested operation.
	ErrUnsupportedPaymentMethod = errors.New("gateway: unsupported payment method")
	// ErrUnsupportedCurrency is returned when a gateway cannot charge in the
	// requested currency.
	ErrUnsupportedCurrency = errors.New("gateway: unsupported currency")
	// ErrMissingCredential is returned by adapter constructors when a
	// required credential is absent.
	ErrMissingCredential = errors.New("gateway: missing required credential")
)

// MissingCredential wraps ErrMissingCredential with the offending field.
func MissingCredential(kind Kind, field string) error {
	return fmt.Errorf("%s: %s: %w", kind, field, ErrMissingCredential)
}

// Adapter is implemented by each gateway variant.
//
// Business outcomes (approvals, declines, transport failures, malformed
// payloads) are always reported through the Result. The error return is
// reserved for caller mistakes: an unsupported operation or payment method,
// or a canceled context.
type Adapter interface {
	Kind() Kind
	Purchase(ctx context.Context, amount int64, pm PaymentMethod, opts Options) (response.Result, error)
	Authorize(ctx context.Context, amount int64, pm PaymentMethod, opts Options) (response.Result, error)
	Capture(ctx context.Context, amount int64, authorization string, opts Options) (response.Result, error)
	Void(ctx context.Context, authorization string, opts Options) (response.Result, error)
	Refund(ctx context.Context, amount int64, authorization string, opts Options) (response.Result, error)
	Store(ctx context.Context, card CreditCard, opts Options) (response.Result, error)
	Unstore(ctx context.Context, token string, opts Options) (response.Result, error)
	Verify(ctx context.Context, card CreditCard, opts Options) (response.Result, error)
	// Scrub redacts the gateway's secrets from a captured wire transcript.
	Scrub(transcript string) string
}

// Unsupported answers every operation with ErrNotSupported. Adapters embed it
// and override what their gateway offers.
type Unsupported struct{}

func (Unsupported) Purchase(context.Context, int64, PaymentMethod, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Authorize(context.Context, int64, PaymentMethod, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Capture(context.Context, int64, string, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Void(context.Context, string, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Refund(context.Context, int64, string, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Store(context.Context, CreditCard, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Unstore(context.Context, string, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

func (Unsupported) Verify(context.Context, CreditCard, Options) (response.Result, error) {
	return nil, ErrNotSupported
}

// ErrInvalidAuthorization is returned when an authorization string handed
// back to an adapter is not one it issued.
var ErrInvalidAuthorization = errors.New("gateway: malformed authorization")
