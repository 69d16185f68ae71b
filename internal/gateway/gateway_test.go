package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("alelo")
	require.NoError(t, err)
	assert.Equal(t, KindAlelo, k)

	_, err = ParseKind("paypal")
	assert.Error(t, err)
}

func TestParseOperation(t *testing.T) {
	for _, name := range []string{"purchase", "authorize", "capture", "void", "refund", "store", "unstore", "verify"} {
		op, err := ParseOperation(name)
		require.NoError(t, err)
		assert.Equal(t, Operation(name), op)
	}
	_, err := ParseOperation("settle")
	assert.Error(t, err)
}

func TestMissingCredential(t *testing.T) {
	err := MissingCredential(KindStripe, "SecretKey")
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, err.Error(), "SecretKey")
}

func TestUnsupported(t *testing.T) {
	var u Unsupported
	ctx := context.Background()

	_, err := u.Purchase(ctx, 100, CreditCard{}, Options{})
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = u.Capture(ctx, 100, "auth", Options{})
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = u.Unstore(ctx, "tok", Options{})
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = u.Verify(ctx, CreditCard{}, Options{})
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestCreditCard_Formatting(t *testing.T) {
	card := CreditCard{Number: "4111 1111 1111 1111", Month: 3, Year: 2031, FirstName: "Longbob", LastName: "Longsen"}

	assert.Equal(t, "Longbob Longsen", card.Name())
	assert.Equal(t, "1111", card.Last4())
	assert.Equal(t, "0331", card.ExpiryMMYY())
	assert.Equal(t, "203103", card.ExpiryYYYYMM())
}

func TestCreditCard_Validate(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		card CreditCard
		want error
	}{
		{"valid", CreditCard{Number: "4242424242424242", Month: 12, Year: 2030}, nil},
		{"expires end of this month", CreditCard{Number: "4242424242424242", Month: 3, Year: 2026}, nil},
		{"expired", CreditCard{Number: "4242424242424242", Month: 2, Year: 2026}, ErrExpiredCard},
		{"bad luhn", CreditCard{Number: "4242424242424241", Month: 12, Year: 2030}, ErrInvalidCardNumber},
		{"too short", CreditCard{Number: "4242", Month: 12, Year: 2030}, ErrInvalidCardNumber},
		{"bad month", CreditCard{Number: "4242424242424242", Month: 13, Year: 2030}, ErrInvalidExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.card.Validate(now)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.99", FormatAmount(1099, "USD"))
	assert.Equal(t, "1.00", FormatAmount(100, "brl"))
	assert.Equal(t, "0.00", FormatAmount(0, "EUR"))
	assert.Equal(t, "0.05", FormatAmount(5, "USD"))
	assert.Equal(t, "1099", FormatAmount(1099, "JPY"))
}

func TestOptions_CurrencyOr(t *testing.T) {
	assert.Equal(t, "BRL", Options{}.CurrencyOr("BRL"))
	assert.Equal(t, "USD", Options{Currency: "USD"}.CurrencyOr("BRL"))
}

func TestIsCardError(t *testing.T) {
	assert.True(t, IsCardError(ErrorCardDeclined))
	assert.True(t, IsCardError(ErrorExpiredCard))
	assert.False(t, IsCardError(ErrorProcessing))
	assert.False(t, IsCardError(ErrorRateLimited))
	assert.False(t, IsCardError(""))
}
