package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/transport"
)

var visa = gateway.CreditCard{
	Number:            "4242424242424242",
	VerificationValue: "314",
	Month:             12,
	Year:              2030,
	FirstName:         "Jane",
	LastName:          "Doe",
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc, extra ...transport.Option) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	topts := append([]transport.Option{transport.WithHTTPClient(server.Client())}, extra...)
	a, err := NewStripeAdapter(Config{SecretKey: "sk_test_apikey", BaseURL: server.URL, RetryDelay: time.Millisecond},
		WithTransport(topts...))
	require.NoError(t, err)
	return a
}

func readForm(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	form, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	return form
}

func TestNewStripeAdapter(t *testing.T) {
	_, err := NewStripeAdapter(Config{})
	assert.ErrorIs(t, err, gateway.ErrMissingCredential)

	a, err := NewStripeAdapter(Config{SecretKey: "sk_live_x"})
	require.NoError(t, err)
	assert.Equal(t, gateway.KindStripe, a.Kind())
	assert.Equal(t, stripeAPIBaseURL, a.apiBaseURL)
	assert.Equal(t, defaultRetryDelay, a.retryDelay)
	assert.False(t, a.test())
}

func TestGenerateIdempotencyKey(t *testing.T) {
	key1 := generateIdempotencyKey("order1")
	key2 := generateIdempotencyKey("order1")

	assert.True(t, strings.HasPrefix(key1, "order1-"))
	assert.NotEqual(t, key1, key2)
	assert.LessOrEqual(t, len(generateIdempotencyKey(strings.Repeat("x", 300))), 255)
}

func TestBuildChargePayload(t *testing.T) {
	opts := gateway.Options{Currency: "USD", Description: "Custom Description", OrderID: "o-1",
		BillingAddress: &gateway.Address{Address1: "456 My Street", City: "Ottawa", State: "ON", Zip: "K1C2N6", Country: "CA"}}
	payload, err := buildChargePayload(12345, visa, opts)
	require.NoError(t, err)
	assert.Equal(t, "12345", payload.Get("amount"))
	assert.Equal(t, "usd", payload.Get("currency"))
	assert.Equal(t, "4242424242424242", payload.Get("card[number]"))
	assert.Equal(t, "Jane Doe", payload.Get("card[name]"))
	assert.Equal(t, "K1C2N6", payload.Get("card[address_zip]"))
	assert.Equal(t, "Custom Description", payload.Get("description"))
	assert.Equal(t, "o-1", payload.Get("metadata[order_id]"))

	payload, err = buildChargePayload(500, gateway.StoredToken("tok_visa"), gateway.Options{})
	require.NoError(t, err)
	assert.Equal(t, "usd", payload.Get("currency"))
	assert.Equal(t, "tok_visa", payload.Get("source"))

	payload, err = buildChargePayload(500, gateway.StoredToken("cus_123"), gateway.Options{})
	require.NoError(t, err)
	assert.Equal(t, "cus_123", payload.Get("customer"))
	assert.Empty(t, payload.Get("source"))
}

func TestPurchase_Success(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charges", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_apikey", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		form := readForm(t, r)
		assert.Equal(t, "1099", form.Get("amount"))
		assert.Equal(t, "usd", form.Get("currency"))
		assert.Empty(t, form.Get("capture"))

		json.NewEncoder(w).Encode(map[string]any{"id": "ch_12345", "status": "succeeded", "amount": 1099})
	})

	res, err := a.Purchase(context.Background(), 1099, visa, gateway.Options{})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "ch_12345", res.Authorization())
	assert.Equal(t, "Transaction approved", res.Message())
	assert.Equal(t, "succeeded", res.Param("status"))
	assert.True(t, res.Test())
}

func TestAuthorize_SendsCaptureFalse(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", readForm(t, r).Get("capture"))
		fmt.Fprint(w, `{"id":"ch_auth","captured":false}`)
	})

	res, err := a.Authorize(context.Background(), 500, visa, gateway.Options{})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "ch_auth", res.Authorization())
}

func TestPurchase_CardDeclined(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds.","charge":"ch_declined"}}`)
	})

	res, err := a.Purchase(context.Background(), 2000, visa, gateway.Options{Currency: "EUR"})
	require.NoError(t, err, "a decline is not an error")
	assert.False(t, res.Success())
	assert.Equal(t, "Your card has insufficient funds.", res.Message())
	assert.Equal(t, "insufficient_funds", res.ErrorCode())
	assert.Equal(t, "ch_declined", res.Authorization())
}

func TestPurchase_DeclineCodesNormalize(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"generic decline", `{"error":{"type":"card_error","code":"card_declined","decline_code":"generic_decline","message":"Your card was declined."}}`, gateway.ErrorCardDeclined},
		{"do not honor", `{"error":{"type":"card_error","code":"card_declined","decline_code":"do_not_honor","message":"Your card was declined."}}`, gateway.ErrorCardDeclined},
		{"lost card", `{"error":{"type":"card_error","code":"card_declined","decline_code":"lost_card","message":"Your card was declined."}}`, gateway.ErrorCardDeclined},
		{"expired card", `{"error":{"type":"card_error","code":"expired_card","message":"Your card has expired."}}`, gateway.ErrorExpiredCard},
		{"unknown card error", `{"error":{"type":"card_error","code":"card_velocity_exceeded","message":"Too many attempts."}}`, gateway.ErrorCardDeclined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				fmt.Fprint(w, tt.body)
			})

			res, err := a.Purchase(context.Background(), 2000, visa, gateway.Options{})
			require.NoError(t, err)
			assert.False(t, res.Success())
			assert.Equal(t, tt.wantCode, res.ErrorCode())
			assert.True(t, gateway.IsCardError(res.ErrorCode()))
		})
	}
}

func TestPurchase_RawDeclineCodeKept(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","decline_code":"generic_decline","message":"Your card was declined."}}`)
	})

	res, err := a.Purchase(context.Background(), 2000, visa, gateway.Options{})
	require.NoError(t, err)
	assert.Equal(t, gateway.ErrorCardDeclined, res.ErrorCode())
	assert.Equal(t, "generic_decline", res.Param("decline_code"))
}

func TestPurchase_DeclineWithoutDeclineCode(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"incorrect_cvc","message":"Your card's security code is incorrect."}}`)
	})

	res, err := a.Purchase(context.Background(), 2000, visa, gateway.Options{})
	require.NoError(t, err)
	assert.Equal(t, gateway.ErrorIncorrectCVC, res.ErrorCode())
	assert.Equal(t, "Your card's security code is incorrect.", res.Message())
}

func TestPurchase_ServerErrorWithRetry(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	keys := map[string]bool{}
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		keys[r.Header.Get("Idempotency-Key")] = true
		mu.Unlock()
		if n <= defaultRetryAttempts {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"transient server issue"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"ch_retry_ok","status":"succeeded"}`)
	})

	res, err := a.Purchase(context.Background(), 500, visa, gateway.Options{})
	require.NoError(t, err)
	assert.True(t, res.Success(), "should succeed after retries")
	assert.Equal(t, "ch_retry_ok", res.Authorization())
	assert.Equal(t, defaultRetryAttempts+1, attempts)
	assert.Len(t, keys, 1, "retries reuse the idempotency key")
}

func TestPurchase_AllRetriesFail(t *testing.T) {
	attempts := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"service down"}`)
	})

	res, err := a.Purchase(context.Background(), 300, visa, gateway.Options{Currency: "GBP"})
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, gateway.ErrorProcessing, res.ErrorCode())
	assert.Equal(t, "Stripe API request failed with HTTP 503", res.Message())
	assert.Equal(t, defaultRetryAttempts+1, attempts)
}

func TestPurchase_RateLimited(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Too many requests"}}`)
	})

	res, err := a.Purchase(context.Background(), 300, visa, gateway.Options{})
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, gateway.ErrorRateLimited, res.ErrorCode())
	assert.Equal(t, "Too many requests", res.Message())
}

func TestPurchase_NetworkErrorAllRetriesFail(t *testing.T) {
	hc := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return nil, fmt.Errorf("simulated network error")
			},
		},
		Timeout: 100 * time.Millisecond,
	}
	a, err := NewStripeAdapter(Config{SecretKey: "sk_test_neterr", BaseURL: "http://nonexistent-stripe-endpoint.example.com", RetryDelay: time.Millisecond},
		WithTransport(transport.WithHTTPClient(hc)))
	require.NoError(t, err)

	res, err := a.Purchase(context.Background(), 100, visa, gateway.Options{})
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, gateway.ErrorProcessing, res.ErrorCode())
	assert.Contains(t, res.Message(), "simulated network error")
}

func TestCaptureVoidRefund_RoundTripChargeID(t *testing.T) {
	var seen []string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		form := readForm(t, r)
		seen = append(seen, r.URL.Path+"?"+form.Encode())
		switch r.URL.Path {
		case "/charges/ch_abc/capture":
			fmt.Fprint(w, `{"id":"ch_abc","captured":true}`)
		case "/refunds":
			fmt.Fprint(w, `{"id":"re_1","charge":"ch_abc"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	res, err := a.Capture(ctx, 700, "ch_abc", gateway.Options{})
	require.NoError(t, err)
	assert.True(t, res.Success())

	res, err = a.Void(ctx, "ch_abc", gateway.Options{})
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.Authorization())

	res, err = a.Refund(ctx, 300, "ch_abc", gateway.Options{})
	require.NoError(t, err)
	assert.True(t, res.Success())

	assert.Equal(t, []string{
		"/charges/ch_abc/capture?amount=700",
		"/refunds?charge=ch_abc",
		"/refunds?amount=300&charge=ch_abc",
	}, seen)
}

func TestStoreAndUnstore(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			form := readForm(t, r)
			assert.Equal(t, "4242424242424242", form.Get("card[number]"))
			assert.Equal(t, "jane@example.com", form.Get("email"))
			fmt.Fprint(w, `{"id":"cus_9","object":"customer"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/customers/cus_9":
			assert.Empty(t, r.Header.Get("Idempotency-Key"))
			fmt.Fprint(w, `{"id":"cus_9","deleted":true}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	res, err := a.Store(ctx, visa, gateway.Options{Email: "jane@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "cus_9", res.Authorization())

	res, err = a.Unstore(ctx, res.Authorization(), gateway.Options{})
	require.NoError(t, err)
	assert.True(t, res.Success())
}

func TestVerify_PrimaryIsAuthorization(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/charges":
			assert.Equal(t, "100", readForm(t, r).Get("amount"))
			fmt.Fprint(w, `{"id":"ch_verify","captured":false}`)
		case "/refunds":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"code":"charge_already_refunded","message":"Charge has already been refunded."}}`)
		}
	})

	res, err := a.Verify(context.Background(), visa, gateway.Options{})
	require.NoError(t, err)

	multi, ok := res.(*response.MultiResponse)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
	assert.True(t, multi.Success(), "a failed void does not fail verification")
	assert.Equal(t, "ch_verify", multi.Authorization())
	assert.False(t, multi.Last().Success())
}

func TestVerify_DeclineSkipsVoid(t *testing.T) {
	calls := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"code":"card_declined","message":"Your card was declined."}}`)
	})

	res, err := a.Verify(context.Background(), visa, gateway.Options{})
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, "Your card was declined.", res.Message())
	assert.Equal(t, 1, calls)
}

func TestScrub(t *testing.T) {
	tr := &transport.Transcript{}
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"ch_1"}`)
	}, transport.WithTranscript(tr))

	_, err := a.Purchase(context.Background(), 100, visa, gateway.Options{})
	require.NoError(t, err)

	raw := tr.String()
	require.Contains(t, raw, "4242424242424242")

	scrubbed := a.Scrub(raw)
	assert.NotContains(t, scrubbed, "4242424242424242")
	assert.NotContains(t, scrubbed, "card%5Bcvc%5D=314")
	assert.NotContains(t, scrubbed, "sk_test_apikey")
	assert.Contains(t, scrubbed, "card%5Bnumber%5D=[FILTERED]")
	assert.Contains(t, scrubbed, "Authorization: Bearer [FILTERED]")
	assert.Equal(t, scrubbed, a.Scrub(scrubbed))
}
