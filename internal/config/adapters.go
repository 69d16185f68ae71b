package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/gateway/alelo"
	"github.com/yourorg/payment-gateway/internal/gateway/mock"
	"github.com/yourorg/payment-gateway/internal/gateway/orbital"
	"github.com/yourorg/payment-gateway/internal/gateway/stripe"
	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
	"github.com/yourorg/payment-gateway/internal/transport"
)

// BuildAdapters constructs every enabled gateway. Each adapter gets a logger
// named after its gateway; topts are passed to every adapter's transport.
func (c *Config) BuildAdapters(logger *zap.Logger, topts ...transport.Option) ([]gateway.Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var adapters []gateway.Adapter
	for _, kind := range c.EnabledGateways() {
		l := logger.Named(string(kind))
		var (
			a   gateway.Adapter
			err error
		)
		switch kind {
		case gateway.KindAlelo:
			a, err = alelo.New(alelo.Config{
				ClientID:     c.Alelo.ClientID,
				ClientSecret: c.Alelo.ClientSecret,
				Test:         c.Alelo.Test,
				BaseURL:      c.Alelo.BaseURL,
			}, alelo.WithLogger(l), alelo.WithTransport(topts...))
		case gateway.KindStripe:
			a, err = stripe.NewStripeAdapter(stripe.Config{
				SecretKey:  c.Stripe.SecretKey,
				BaseURL:    c.Stripe.BaseURL,
				RetryDelay: c.Stripe.RetryDelay,
			}, stripe.WithLogger(l), stripe.WithTransport(topts...))
		case gateway.KindOrbital:
			a, err = orbital.New(orbital.Config{
				Username:   c.Orbital.Username,
				Password:   c.Orbital.Password,
				MerchantID: c.Orbital.MerchantID,
				TerminalID: c.Orbital.TerminalID,
				BIN:        c.Orbital.BIN,
				Test:       c.Orbital.Test,
				URL:        c.Orbital.URL,
			}, orbital.WithLogger(l), orbital.WithTransport(topts...))
		case gateway.KindMock:
			a = mock.NewMockAdapter(gateway.KindMock)
		}
		if err != nil {
			return nil, fmt.Errorf("config: build %s adapter: %w", kind, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// BreakerConfig converts the circuit_breaker section.
func (c *Config) BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold:         c.CircuitBreaker.FailureThreshold,
		ResetTimeout:             c.CircuitBreaker.ResetTimeout,
		HalfOpenSuccessThreshold: c.CircuitBreaker.HalfOpenSuccessThreshold,
	}
}
