package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/scrub"
	"github.com/yourorg/payment-gateway/internal/transport"
)

const (
	stripeAPIBaseURL     = "https://api.stripe.com/v1"
	defaultRetryAttempts = 2
	defaultRetryDelay    = 500 * time.Millisecond
	defaultCurrency      = "usd"
	verifyAmount         = 100
)

// Config is the immutable account configuration.
type Config struct {
	SecretKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// RetryDelay overrides the pause between retried attempts.
	RetryDelay time.Duration
}

// Adapter implements gateway.Adapter for Stripe's form-encoded API.
type Adapter struct {
	cfg        Config
	apiBaseURL string
	retryDelay time.Duration
	client     *transport.Client
	logger     *zap.Logger
	scrubber   *scrub.Scrubber

	transportOpts []transport.Option
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTransport passes options through to the underlying transport client.
func WithTransport(opts ...transport.Option) Option {
	return func(a *Adapter) { a.transportOpts = append(a.transportOpts, opts...) }
}

// NewStripeAdapter validates cfg and returns an Adapter.
func NewStripeAdapter(cfg Config, opts ...Option) (*Adapter, error) {
	if cfg.SecretKey == "" {
		return nil, gateway.MissingCredential(gateway.KindStripe, "SecretKey")
	}
	a := &Adapter{
		cfg:        cfg,
		apiBaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		retryDelay: cfg.RetryDelay,
		logger:     zap.NewNop(),
		scrubber: scrub.New(
			scrub.FormField("card[number]", "card[cvc]"),
			scrub.AuthorizationHeader(),
		),
	}
	if a.apiBaseURL == "" {
		a.apiBaseURL = stripeAPIBaseURL
	}
	if a.retryDelay == 0 {
		a.retryDelay = defaultRetryDelay
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("gateway", string(gateway.KindStripe)))
	topts := append([]transport.Option{transport.WithLogger(a.logger), transport.WithScrubber(a.Scrub)}, a.transportOpts...)
	a.client = transport.NewClient(string(gateway.KindStripe), topts...)
	return a, nil
}

// Kind returns gateway.KindStripe.
func (a *Adapter) Kind() gateway.Kind {
	return gateway.KindStripe
}

func (a *Adapter) test() bool {
	return strings.HasPrefix(a.cfg.SecretKey, "sk_test_")
}

// generateIdempotencyKey creates one key per logical operation. Retries of
// the same operation reuse it so Stripe can deduplicate them.
func generateIdempotencyKey(orderID string) string {
	key := uuid.NewString()
	if orderID != "" {
		key = orderID + "-" + key
	}
	if len(key) > 255 { // Stripe max length for idempotency key
		return key[:255]
	}
	return key
}

func result(r *response.Response, err error) (response.Result, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (a *Adapter) Purchase(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	return result(a.charge(ctx, amount, pm, opts, true))
}

func (a *Adapter) Authorize(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	return result(a.charge(ctx, amount, pm, opts, false))
}

func (a *Adapter) charge(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options, capture bool) (*response.Response, error) {
	payload, err := buildChargePayload(amount, pm, opts)
	if err != nil {
		return nil, err
	}
	if !capture {
		payload.Set("capture", "false")
	}
	return a.commit(ctx, http.MethodPost, "/charges", payload, opts)
}

// Capture settles a previously authorized charge.
func (a *Adapter) Capture(ctx context.Context, amount int64, authorization string, opts gateway.Options) (response.Result, error) {
	payload := url.Values{}
	if amount > 0 {
		payload.Set("amount", strconv.FormatInt(amount, 10))
	}
	return result(a.commit(ctx, http.MethodPost, "/charges/"+url.PathEscape(authorization)+"/capture", payload, opts))
}

// Void releases an uncaptured charge by refunding it in full.
func (a *Adapter) Void(ctx context.Context, authorization string, opts gateway.Options) (response.Result, error) {
	return result(a.void(ctx, authorization, opts))
}

func (a *Adapter) void(ctx context.Context, authorization string, opts gateway.Options) (*response.Response, error) {
	payload := url.Values{}
	payload.Set("charge", authorization)
	return a.commit(ctx, http.MethodPost, "/refunds", payload, opts)
}

func (a *Adapter) Refund(ctx context.Context, amount int64, authorization string, opts gateway.Options) (response.Result, error) {
	payload := url.Values{}
	payload.Set("charge", authorization)
	payload.Set("amount", strconv.FormatInt(amount, 10))
	return result(a.commit(ctx, http.MethodPost, "/refunds", payload, opts))
}

// Store creates a customer holding the card; the authorization is the
// customer id.
func (a *Adapter) Store(ctx context.Context, card gateway.CreditCard, opts gateway.Options) (response.Result, error) {
	payload := url.Values{}
	addCard(payload, card, opts.BillingAddress)
	if opts.Email != "" {
		payload.Set("email", opts.Email)
	}
	if opts.Description != "" {
		payload.Set("description", opts.Description)
	}
	return result(a.commit(ctx, http.MethodPost, "/customers", payload, opts))
}

func (a *Adapter) Unstore(ctx context.Context, token string, opts gateway.Options) (response.Result, error) {
	return result(a.commit(ctx, http.MethodDelete, "/customers/"+url.PathEscape(token), nil, opts))
}

// Verify authorizes a nominal amount and voids it. The authorization is the
// outcome; a failed void does not fail the verification.
func (a *Adapter) Verify(ctx context.Context, card gateway.CreditCard, opts gateway.Options) (response.Result, error) {
	auth, err := a.charge(ctx, verifyAmount, card, opts, false)
	if err != nil {
		return nil, err
	}
	multi := response.NewMulti(response.WithPrimary(response.PrimaryFirst))
	if _, err := multi.Process(response.Static(auth)); err != nil {
		return nil, err
	}
	if _, err := multi.ProcessIgnoringResult(func() *response.Response {
		r, err := a.void(ctx, auth.Authorization(), opts)
		if err != nil {
			return response.Failure(err.Error(), nil, response.WithTest(a.test()))
		}
		return r
	}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return multi.Freeze(), nil
}

// Scrub redacts card numbers, CVCs and the API key.
func (a *Adapter) Scrub(transcript string) string {
	return a.scrubber.Scrub(transcript)
}

// buildChargePayload creates the form body for a charge. Stripe expects the
// amount in minor units.
func buildChargePayload(amount int64, pm gateway.PaymentMethod, opts gateway.Options) (url.Values, error) {
	payload := url.Values{}
	payload.Set("amount", strconv.FormatInt(amount, 10))
	payload.Set("currency", strings.ToLower(opts.CurrencyOr(defaultCurrency)))
	if opts.Description != "" {
		payload.Set("description", opts.Description)
	}
	if opts.OrderID != "" {
		payload.Set("metadata[order_id]", opts.OrderID)
	}
	if opts.Email != "" {
		payload.Set("receipt_email", opts.Email)
	}
	if opts.IP != "" {
		payload.Set("metadata[ip]", opts.IP)
	}

	switch m := pm.(type) {
	case gateway.CreditCard:
		addCard(payload, m, opts.BillingAddress)
	case gateway.StoredToken:
		if strings.HasPrefix(string(m), "cus_") {
			payload.Set("customer", string(m))
		} else {
			payload.Set("source", string(m))
		}
	default:
		return nil, gateway.ErrUnsupportedPaymentMethod
	}
	if opts.CustomerID != "" && payload.Get("customer") == "" {
		payload.Set("customer", opts.CustomerID)
	}
	return payload, nil
}

func addCard(payload url.Values, card gateway.CreditCard, billing *gateway.Address) {
	payload.Set("card[number]", card.Number)
	payload.Set("card[exp_month]", strconv.Itoa(card.Month))
	payload.Set("card[exp_year]", strconv.Itoa(card.Year))
	if card.VerificationValue != "" {
		payload.Set("card[cvc]", card.VerificationValue)
	}
	if name := card.Name(); name != "" {
		payload.Set("card[name]", name)
	}
	if billing == nil {
		return
	}
	payload.Set("card[address_line1]", billing.Address1)
	if billing.Address2 != "" {
		payload.Set("card[address_line2]", billing.Address2)
	}
	payload.Set("card[address_city]", billing.City)
	payload.Set("card[address_state]", billing.State)
	payload.Set("card[address_zip]", billing.Zip)
	payload.Set("card[address_country]", billing.Country)
}

// StripeErrorResponse represents the error structure from Stripe API
type StripeErrorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Message     string `json:"message"`
		DeclineCode string `json:"decline_code"`
		Charge      string `json:"charge"`
	} `json:"error"`
}

// stripeCodes maps Stripe error and decline codes onto normalized codes.
// Decline codes not listed here (generic_decline, do_not_honor, lost_card and
// so on) fall through to card_declined.
var stripeCodes = map[string]string{
	"card_declined":      gateway.ErrorCardDeclined,
	"insufficient_funds": gateway.ErrorInsufficientFunds,
	"incorrect_number":   gateway.ErrorIncorrectNumber,
	"invalid_number":     gateway.ErrorIncorrectNumber,
	"incorrect_cvc":      gateway.ErrorIncorrectCVC,
	"invalid_cvc":        gateway.ErrorIncorrectCVC,
	"expired_card":       gateway.ErrorExpiredCard,
	"processing_error":   gateway.ErrorProcessing,
	"rate_limit":         gateway.ErrorRateLimited,
}

func normalizeError(status int, e StripeErrorResponse) string {
	if code, ok := stripeCodes[e.Error.DeclineCode]; ok {
		return code
	}
	if code, ok := stripeCodes[e.Error.Code]; ok {
		return code
	}
	switch {
	case e.Error.Type == "card_error", e.Error.Code == "card_declined", e.Error.DeclineCode != "",
		status == http.StatusPaymentRequired:
		return gateway.ErrorCardDeclined
	case status == http.StatusTooManyRequests:
		return gateway.ErrorRateLimited
	default:
		return gateway.ErrorProcessing
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// commit sends the request, retrying 429, 5xx and network failures with the
// same Idempotency-Key, and normalizes the final answer into a Response.
func (a *Adapter) commit(ctx context.Context, method, path string, payload url.Values, opts gateway.Options) (*response.Response, error) {
	var body []byte
	if payload != nil {
		body = []byte(payload.Encode())
	}
	headers := map[string]string{
		"Authorization":   "Bearer " + a.cfg.SecretKey,
		"Content-Type":    "application/x-www-form-urlencoded",
		"Idempotency-Key": generateIdempotencyKey(opts.OrderID),
	}
	if method == http.MethodDelete {
		delete(headers, "Idempotency-Key")
	}

	var (
		raw []byte
		err error
	)
	for attempt := 0; attempt <= defaultRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.retryDelay):
			}
		}
		raw, err = a.client.Request(ctx, method, a.apiBaseURL+path, body, headers)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			break
		}
		re, isStatus := transport.AsResponseError(err)
		if isStatus && !retryable(re.StatusCode) {
			break
		}
		if attempt < defaultRetryAttempts {
			a.logger.Warn("retrying request",
				zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))
		}
	}
	return a.parse(raw, err), nil
}

func (a *Adapter) parse(raw []byte, err error) *response.Response {
	re, isStatus := transport.AsResponseError(err)
	if err != nil && !isStatus {
		return response.Failure(err.Error(), nil,
			response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.test()))
	}

	params := map[string]any{}
	if jerr := json.Unmarshal(raw, &params); jerr != nil || params == nil {
		msg := "Invalid JSON response received from Stripe"
		if isStatus {
			msg = fmt.Sprintf("Stripe API request failed with HTTP %d", re.StatusCode)
		}
		return response.Failure(msg, map[string]any{"raw_response": string(raw)},
			response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.test()))
	}

	if isStatus {
		var stripeErr StripeErrorResponse
		_ = json.Unmarshal(raw, &stripeErr)
		if stripeErr.Error.DeclineCode != "" {
			params["decline_code"] = stripeErr.Error.DeclineCode
		}
		code := normalizeError(re.StatusCode, stripeErr)
		msg := stripeErr.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("Stripe API request failed with HTTP %d", re.StatusCode)
		}
		return response.Failure(msg, params,
			response.WithErrorCode(code),
			response.WithAuthorization(stripeErr.Error.Charge),
			response.WithTest(a.test()))
	}

	id, _ := params["id"].(string)
	if deleted, ok := params["deleted"].(bool); ok && !deleted {
		return response.Failure("Customer was not deleted", params, response.WithAuthorization(id), response.WithTest(a.test()))
	}
	return response.New(true, "Transaction approved", params,
		response.WithAuthorization(id), response.WithTest(a.test()))
}
