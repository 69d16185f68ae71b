package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/response"
)

var _ gateway.Adapter = (*MockAdapter)(nil)

func TestNewMockAdapter(t *testing.T) {
	m := NewMockAdapter(gateway.KindStripe)
	require.NotNil(t, m)
	assert.Equal(t, gateway.KindStripe, m.Kind())
}

func TestMockAdapter_DefaultBehavior(t *testing.T) {
	m := NewMockAdapter(gateway.KindMock)

	res, err := m.Purchase(context.Background(), 1000, gateway.CreditCard{Number: "4242424242424242"}, gateway.Options{OrderID: "o-1"})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.NotEmpty(t, res.Authorization())
	assert.Equal(t, true, res.Param("mock_processed"))
	assert.Equal(t, "purchase", res.Param("operation"))

	res, err = m.Capture(context.Background(), 1000, "auth-1", gateway.Options{})
	require.NoError(t, err)
	assert.Equal(t, "auth-1", res.Authorization())

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, gateway.OpPurchase, calls[0].Operation)
	assert.Equal(t, "o-1", calls[0].Options.OrderID)
	assert.Equal(t, gateway.OpCapture, calls[1].Operation)
}

func TestMockAdapter_WithCustomFunc(t *testing.T) {
	m := NewMockAdapter(gateway.KindMock)
	m.ProcessFunc = func(ctx context.Context, call Call) (response.Result, error) {
		if call.Operation == gateway.OpRefund {
			return nil, gateway.ErrNotSupported
		}
		return response.Failure("Insufficient funds", nil, response.WithErrorCode(gateway.ErrorInsufficientFunds)), nil
	}

	res, err := m.Authorize(context.Background(), 500, gateway.StoredToken("tok"), gateway.Options{})
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, "Insufficient funds", res.Message())
	assert.Equal(t, gateway.ErrorInsufficientFunds, res.ErrorCode())

	_, err = m.Refund(context.Background(), 500, "auth", gateway.Options{})
	assert.ErrorIs(t, err, gateway.ErrNotSupported)
}

func TestMockAdapter_CanceledContext(t *testing.T) {
	m := NewMockAdapter(gateway.KindMock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Verify(ctx, gateway.CreditCard{}, gateway.Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, m.Calls(), 1)
}

func TestMockAdapter_Scrub(t *testing.T) {
	m := NewMockAdapter(gateway.KindMock)
	in := `{"number":"4242424242424242","verification_value":"123","order_id":"4242424242424242"}`
	out := m.Scrub(in)
	assert.Equal(t, `{"number":"[FILTERED]","verification_value":"[FILTERED]","order_id":"4242424242424242"}`, out)
	assert.Equal(t, out, m.Scrub(out))
}
