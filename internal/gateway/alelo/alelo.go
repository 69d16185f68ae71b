// Package alelo adapts the Alelo capture API. Card data travels as a JWE
// encrypted with a short-lived RSA key the gateway issues per merchant
// session, so every charge needs an access token and an encryption key. Both
// can be passed in through gateway.Options.Session and are refreshed once if
// the gateway reports them as expired.
package alelo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/scrub"
	"github.com/yourorg/payment-gateway/internal/transport"
)

const (
	liveURL = "https://desenvolvedor.alelo.com.br/api/"
	testURL = "https://sandbox-api.alelo.com.br/alelo/sandbox/"

	tokenPath   = "captura-oauth-provider/oauth/token"
	keyPath     = "capture/key?format=json"
	chargePath  = "capture/transaction"
	refundPath  = "capture/transaction/refund"
	tokenScope  = "/capture"
	currencyBRL = "BRL"

	statusConfirmed = "CONFIRMADA"
	statusRefunded  = "ESTORNADA"

	msgInvalidJSON = "Invalid JSON response"
)

// Config is the immutable per-merchant configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Test         bool
	// BaseURL overrides the live or sandbox endpoint.
	BaseURL string
}

// Adapter implements gateway.Adapter for Alelo.
type Adapter struct {
	gateway.Unsupported

	cfg      Config
	baseURL  string
	client   *transport.Client
	logger   *zap.Logger
	scrubber *scrub.Scrubber
	contract *monitor.ContractMonitor
}

// Option configures an Adapter.
type Option func(*adapterOptions)

type adapterOptions struct {
	logger    *zap.Logger
	transport []transport.Option
}

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *adapterOptions) { o.logger = l }
}

// WithTransport passes options through to the underlying transport client.
func WithTransport(opts ...transport.Option) Option {
	return func(o *adapterOptions) { o.transport = append(o.transport, opts...) }
}

var chargeContract = monitor.MustContractMonitor("alelo-charge", `{
	"type": "object",
	"properties": {
		"requestId": { "type": "string" },
		"status": { "type": "string" }
	},
	"required": ["status"]
}`)

// New validates cfg and returns an Adapter.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	if cfg.ClientID == "" {
		return nil, gateway.MissingCredential(gateway.KindAlelo, "ClientID")
	}
	if cfg.ClientSecret == "" {
		return nil, gateway.MissingCredential(gateway.KindAlelo, "ClientSecret")
	}
	o := adapterOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	a := &Adapter{
		cfg:      cfg,
		baseURL:  cfg.BaseURL,
		logger:   o.logger.With(zap.String("gateway", string(gateway.KindAlelo))),
		contract: chargeContract,
		scrubber: scrub.New(
			scrub.JSONField("access_token", "publicKey", "token", "securityCode", "cardNumber"),
			scrub.FormField("client_secret"),
			scrub.AuthorizationHeader(),
			scrub.Header("X-Ibm-Client-Secret"),
		),
	}
	if a.baseURL == "" {
		a.baseURL = liveURL
		if cfg.Test {
			a.baseURL = testURL
		}
	}
	if !strings.HasSuffix(a.baseURL, "/") {
		a.baseURL += "/"
	}
	topts := append([]transport.Option{transport.WithLogger(a.logger), transport.WithScrubber(a.Scrub)}, o.transport...)
	a.client = transport.NewClient(string(gateway.KindAlelo), topts...)
	return a, nil
}

func (a *Adapter) Kind() gateway.Kind { return gateway.KindAlelo }

// Purchase charges a card. Alelo has no separate authorization step.
func (a *Adapter) Purchase(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	card, ok := pm.(gateway.CreditCard)
	if !ok {
		return nil, gateway.ErrUnsupportedPaymentMethod
	}
	requestID := uuid.NewString()
	payload := map[string]any{
		"requestId":       requestID,
		"merchantOrderId": opts.OrderID,
		"amount":          json.Number(gateway.FormatAmount(amount, opts.CurrencyOr(currencyBRL))),
		"cardNumber":      card.Number,
		"cardholderName":  card.Name(),
		"expirationMonth": card.Month,
		"expirationYear":  card.Year % 100,
		"securityCode":    card.VerificationValue,
	}
	if opts.Description != "" {
		payload["softDescriptor"] = opts.Description
	}
	return a.commit(ctx, http.MethodPost, chargePath, payload, statusConfirmed, opts)
}

// Refund reverses a confirmed charge identified by its requestId.
func (a *Adapter) Refund(ctx context.Context, amount int64, authorization string, opts gateway.Options) (response.Result, error) {
	payload := map[string]any{
		"requestId": authorization,
		"amount":    json.Number(gateway.FormatAmount(amount, opts.CurrencyOr(currencyBRL))),
	}
	return a.commit(ctx, http.MethodPut, refundPath, payload, statusRefunded, opts)
}

// Scrub redacts card data, OAuth secrets, access tokens and encryption keys.
func (a *Adapter) Scrub(transcript string) string {
	return a.scrubber.Scrub(transcript)
}

// credentials is the session state of one logical operation.
type credentials struct {
	token string
	key   string
	keyID string
}

func credentialsFrom(s *gateway.Session) credentials {
	if s == nil {
		return credentials{}
	}
	return credentials{token: s.AccessToken, key: s.EncryptionKey, keyID: s.KeyID}
}

// commit runs token -> key -> submit. An expired credential on the first
// pass discards the session and replays the whole sequence exactly once.
func (a *Adapter) commit(ctx context.Context, method, path string, payload map[string]any, okStatus string, opts gateway.Options) (response.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	multi := response.NewMulti()
	creds := credentialsFrom(opts.Session)

	expired, err := a.attempt(ctx, multi, &creds, method, path, body, okStatus, true)
	if err != nil {
		return nil, err
	}
	if expired {
		a.logger.Info("credentials expired, refreshing and resubmitting", zap.String("path", path))
		creds = credentials{}
		if _, err := a.attempt(ctx, multi, &creds, method, path, body, okStatus, false); err != nil {
			return nil, err
		}
	}
	return multi.Freeze(), nil
}

// attempt performs one pass. It reports expired=true, without recording the
// rejected call, when retry is allowed and the gateway answered 401, or 404
// for a key id it no longer knows.
func (a *Adapter) attempt(ctx context.Context, multi *response.MultiResponse, creds *credentials, method, path string, body []byte, okStatus string, retry bool) (bool, error) {
	if creds.token == "" {
		r := a.fetchToken(ctx)
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !record(multi, r) {
			return false, nil
		}
		creds.token = r.Message()
	}

	if creds.key == "" {
		r, status := a.fetchKey(ctx, creds.token)
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if retry && credentialExpired(status) {
			return true, nil
		}
		if !record(multi, r) {
			return false, nil
		}
		creds.key = r.Message()
		creds.keyID, _ = r.Param("uuid").(string)
	}

	r, status := a.submit(ctx, *creds, method, path, body, okStatus)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if retry && credentialExpired(status) {
		return true, nil
	}
	record(multi, r)
	return false, nil
}

// declined reports whether a charge status means the gateway refused the
// card itself. A messageUser body is required as well.
func declined(status int) bool {
	return status >= 400 && status < 500 && !credentialExpired(status) && status != http.StatusTooManyRequests
}

func credentialExpired(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusNotFound
}

func record(multi *response.MultiResponse, r *response.Response) bool {
	recorded, err := multi.Process(response.Static(r))
	return err == nil && recorded != nil && recorded.Success()
}

func (a *Adapter) fetchToken(ctx context.Context) *response.Response {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("scope", tokenScope)

	raw, err := a.client.Post(ctx, a.baseURL+tokenPath, []byte(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	})
	params, failure := a.decode(raw, err)
	if failure != nil {
		return failure
	}
	token, _ := params["access_token"].(string)
	if token == "" {
		return a.failure(params, "access_token missing from token response")
	}
	return response.New(true, token, params, response.WithTest(a.cfg.Test))
}

func (a *Adapter) fetchKey(ctx context.Context, token string) (*response.Response, int) {
	raw, err := a.client.Request(ctx, http.MethodGet, a.baseURL+keyPath, nil, a.headers(token))
	status := statusOf(err)
	params, failure := a.decode(raw, err)
	if failure != nil {
		return failure, status
	}
	key, _ := params["publicKey"].(string)
	if key == "" {
		return a.failure(params, "publicKey missing from key response"), status
	}
	return response.New(true, key, params, response.WithTest(a.cfg.Test)), status
}

func (a *Adapter) submit(ctx context.Context, creds credentials, method, path string, body []byte, okStatus string) (*response.Response, int) {
	token, err := encrypt(creds.key, body)
	if err != nil {
		a.logger.Warn("could not encrypt payload", zap.Error(err))
		return response.Failure("Unable to encrypt payload with the gateway key", nil,
			response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.cfg.Test)), 0
	}
	envelope, err := json.Marshal(map[string]string{"token": token, "uuid": creds.keyID})
	if err != nil {
		return response.Failure(err.Error(), nil, response.WithTest(a.cfg.Test)), 0
	}

	raw, err := a.client.Request(ctx, method, a.baseURL+path, envelope, a.headers(creds.token))
	status := statusOf(err)
	if err == nil {
		if valid, violations, verr := a.contract.Validate(raw); verr != nil || !valid {
			a.logger.Warn("charge response failed contract",
				zap.Strings("violations", violations), zap.Error(verr))
			return a.invalidJSON(raw), status
		}
	}
	if declined(status) {
		var reply map[string]any
		if json.Unmarshal(raw, &reply) == nil {
			if msg, _ := reply["messageUser"].(string); msg != "" {
				authorization, _ := reply["requestId"].(string)
				return response.Failure(msg, reply,
					response.WithAuthorization(authorization),
					response.WithErrorCode(gateway.ErrorCardDeclined),
					response.WithTest(a.cfg.Test)), status
			}
		}
	}
	params, failure := a.decode(raw, err)
	if failure != nil {
		return failure, status
	}

	params["access_token"] = creds.token
	params["encryption_key"] = creds.key
	params["encryption_uuid"] = creds.keyID

	gwStatus, _ := params["status"].(string)
	authorization, _ := params["requestId"].(string)
	if gwStatus == okStatus {
		return response.New(true, gwStatus, params,
			response.WithAuthorization(authorization), response.WithTest(a.cfg.Test)), status
	}
	return response.Failure(messageFrom(params), params,
		response.WithAuthorization(authorization),
		response.WithErrorCode(gateway.ErrorCardDeclined),
		response.WithTest(a.cfg.Test)), status
}

func (a *Adapter) headers(token string) map[string]string {
	return map[string]string{
		"Authorization":       "Bearer " + token,
		"Content-Type":        "application/json",
		"Accept":              "application/json",
		"X-Ibm-Client-Id":     a.cfg.ClientID,
		"X-Ibm-Client-Secret": a.cfg.ClientSecret,
	}
}

// decode turns a transport outcome into params, or into a failed Response
// when there is nothing usable to parse.
func (a *Adapter) decode(raw []byte, err error) (map[string]any, *response.Response) {
	if err != nil {
		if _, ok := transport.AsResponseError(err); !ok {
			return nil, response.Failure(err.Error(), nil,
				response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.cfg.Test))
		}
	}
	var params map[string]any
	jerr := json.Unmarshal(raw, &params)
	if err != nil {
		if jerr != nil {
			params = map[string]any{"raw_response": string(raw)}
		}
		return nil, a.failure(params, err.Error())
	}
	if jerr != nil {
		return nil, a.invalidJSON(raw)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

func (a *Adapter) failure(params map[string]any, fallback string) *response.Response {
	msg := messageFrom(params)
	if msg == "" {
		msg = fallback
	}
	return response.Failure(msg, params, response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.cfg.Test))
}

func (a *Adapter) invalidJSON(raw []byte) *response.Response {
	return response.Failure(msgInvalidJSON, map[string]any{"raw_response": string(raw)},
		response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.cfg.Test))
}

func messageFrom(params map[string]any) string {
	for _, key := range []string{"messageUser", "message", "error_description", "error", "status"} {
		if s, ok := params[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func statusOf(err error) int {
	if re, ok := transport.AsResponseError(err); ok {
		return re.StatusCode
	}
	return 0
}
