// Package orbital adapts the Chase Orbital XML gateway.
//
// Authorizations are composite strings "txRefNum|orderID|amount|currency" so
// follow-up captures, voids and refunds can send back every identifier the
// gateway requires without the caller tracking them.
package orbital

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/scrub"
	"github.com/yourorg/payment-gateway/internal/transport"
)

const (
	liveURL = "https://orbital1.chasepaymentech.com/authorize"
	testURL = "https://orbitalvar1.chasepaymentech.com/authorize"

	defaultTerminalID = "001"
	defaultBIN        = "000001"
	defaultCurrency   = "USD"
	industryType      = "EC"

	msgAuthorizeCapture = "AC"
	msgAuthorize        = "A"
	msgRefund           = "R"

	msgInvalidXML = "Invalid XML response"
)

var currencyCodes = map[string]string{
	"USD": "840", "CAD": "124", "GBP": "826", "EUR": "978",
	"BRL": "986", "JPY": "392", "MXN": "484", "AUD": "036",
}

// respCodes maps Orbital RespCode values onto normalized error codes.
var respCodes = map[string]string{
	"05": gateway.ErrorCardDeclined,
	"04": gateway.ErrorCardDeclined,
	"51": gateway.ErrorInsufficientFunds,
	"14": gateway.ErrorIncorrectNumber,
	"33": gateway.ErrorExpiredCard,
	"54": gateway.ErrorExpiredCard,
	"N7": gateway.ErrorIncorrectCVC,
}

// Config is the immutable merchant configuration.
type Config struct {
	Username   string
	Password   string
	MerchantID string
	TerminalID string
	BIN        string
	Test       bool
	// URL overrides the live or sandbox endpoint.
	URL string
}

// Adapter implements gateway.Adapter for Orbital. Profile management is not
// offered, so Store and Unstore answer gateway.ErrNotSupported.
type Adapter struct {
	gateway.Unsupported

	cfg      Config
	url      string
	client   *transport.Client
	logger   *zap.Logger
	scrubber *scrub.Scrubber

	transportOpts []transport.Option
}

// Option configures an Adapter.
type Option func(*Adapter)

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

// New validates cfg, applies defaults and returns an Adapter.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	switch {
	case cfg.Username == "":
		return nil, gateway.MissingCredential(gateway.KindOrbital, "Username")
	case cfg.Password == "":
		return nil, gateway.MissingCredential(gateway.KindOrbital, "Password")
	case cfg.MerchantID == "":
		return nil, gateway.MissingCredential(gateway.KindOrbital, "MerchantID")
	}
	if cfg.TerminalID == "" {
		cfg.TerminalID = defaultTerminalID
	}
	if cfg.BIN == "" {
		cfg.BIN = defaultBIN
	}
	a := &Adapter{
		cfg:    cfg,
		url:    cfg.URL,
		logger: zap.NewNop(),
		scrubber: scrub.New(
			scrub.XMLTag("AccountNum", "CardSecVal", "OrbitalConnectionUsername", "OrbitalConnectionPassword"),
		),
	}
	if a.url == "" {
		a.url = liveURL
		if cfg.Test {
			a.url = testURL
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("gateway", string(gateway.KindOrbital)))
	topts := append([]transport.Option{transport.WithLogger(a.logger), transport.WithScrubber(a.Scrub)}, a.transportOpts...)
	a.client = transport.NewClient(string(gateway.KindOrbital), topts...)
	return a, nil
}

func (a *Adapter) Kind() gateway.Kind { return gateway.KindOrbital }

func (a *Adapter) Purchase(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	return a.newOrder(ctx, msgAuthorizeCapture, amount, pm, opts)
}

func (a *Adapter) Authorize(ctx context.Context, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	return a.newOrder(ctx, msgAuthorize, amount, pm, opts)
}

// Verify runs a zero-amount authorization; Orbital needs no follow-up void.
func (a *Adapter) Verify(ctx context.Context, card gateway.CreditCard, opts gateway.Options) (response.Result, error) {
	return a.newOrder(ctx, msgAuthorize, 0, card, opts)
}

// Capture marks an authorization for settlement. A zero amount captures the
// authorized amount.
func (a *Adapter) Capture(ctx context.Context, amount int64, authorization string, opts gateway.Options) (response.Result, error) {
	auth, err := parseAuthorization(authorization)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		amount = auth.amount
	}
	req := request{MarkForCapture: &markForCapture{
		credentials: a.connection(),
		OrderID:     auth.orderID,
		Amount:      strconv.FormatInt(amount, 10),
		BIN:         a.cfg.BIN,
		MerchantID:  a.cfg.MerchantID,
		TerminalID:  a.cfg.TerminalID,
		TxRefNum:    auth.txRefNum,
	}}
	auth.amount = amount
	return a.commit(ctx, req, auth)
}

func (a *Adapter) Void(ctx context.Context, authorization string, opts gateway.Options) (response.Result, error) {
	auth, err := parseAuthorization(authorization)
	if err != nil {
		return nil, err
	}
	req := request{Reversal: &reversal{
		credentials:       a.connection(),
		TxRefNum:          auth.txRefNum,
		TxRefIdx:          "0",
		OrderID:           auth.orderID,
		BIN:               a.cfg.BIN,
		MerchantID:        a.cfg.MerchantID,
		TerminalID:        a.cfg.TerminalID,
		OnlineReversalInd: "Y",
	}}
	return a.commit(ctx, req, auth)
}

func (a *Adapter) Refund(ctx context.Context, amount int64, authorization string, opts gateway.Options) (response.Result, error) {
	auth, err := parseAuthorization(authorization)
	if err != nil {
		return nil, err
	}
	order, err := a.baseOrder(msgRefund, amount, auth.currency, opts)
	if err != nil {
		return nil, err
	}
	order.OrderID = auth.orderID
	order.TxRefNum = auth.txRefNum
	auth.amount = amount
	return a.commit(ctx, request{NewOrder: order}, auth)
}

// Scrub redacts card data and connection credentials from XML transcripts.
func (a *Adapter) Scrub(transcript string) string {
	return a.scrubber.Scrub(transcript)
}

func (a *Adapter) connection() credentials {
	return credentials{Username: a.cfg.Username, Password: a.cfg.Password}
}

func (a *Adapter) baseOrder(messageType string, amount int64, currency string, opts gateway.Options) (*newOrder, error) {
	code, ok := currencyCodes[currency]
	if !ok {
		return nil, fmt.Errorf("orbital: %q: %w", currency, gateway.ErrUnsupportedCurrency)
	}
	exponent := "2"
	if gateway.ZeroDecimal(currency) {
		exponent = "0"
	}
	return &newOrder{
		credentials:      a.connection(),
		IndustryType:     industryType,
		MessageType:      messageType,
		BIN:              a.cfg.BIN,
		MerchantID:       a.cfg.MerchantID,
		TerminalID:       a.cfg.TerminalID,
		CurrencyCode:     code,
		CurrencyExponent: exponent,
		OrderID:          truncate(opts.OrderID, 22),
		Amount:           strconv.FormatInt(amount, 10),
		Comments:         truncate(opts.Description, 64),
		CustomerEmail:    opts.Email,
		CustomerIP:       opts.IP,
	}, nil
}

func (a *Adapter) newOrder(ctx context.Context, messageType string, amount int64, pm gateway.PaymentMethod, opts gateway.Options) (response.Result, error) {
	currency := strings.ToUpper(opts.CurrencyOr(defaultCurrency))
	order, err := a.baseOrder(messageType, amount, currency, opts)
	if err != nil {
		return nil, err
	}

	switch m := pm.(type) {
	case gateway.CreditCard:
		order.AccountNum = m.Number
		order.Exp = m.ExpiryMMYY()
		if m.VerificationValue != "" {
			order.CardSecValInd = "1"
			order.CardSecVal = m.VerificationValue
		}
		order.AVSname = truncate(m.Name(), 30)
	case gateway.StoredToken:
		order.CustomerRefNum = string(m)
	default:
		return nil, gateway.ErrUnsupportedPaymentMethod
	}
	if addr := opts.BillingAddress; addr != nil {
		order.AVSzip = addr.Zip
		order.AVSaddress1 = truncate(addr.Address1, 30)
		order.AVSaddress2 = truncate(addr.Address2, 30)
		order.AVScity = truncate(addr.City, 20)
		order.AVSstate = addr.State
		order.AVSphoneNum = addr.Phone
		order.AVScountryCode = addr.Country
		if addr.Name != "" {
			order.AVSname = truncate(addr.Name, 30)
		}
	}
	if addr := opts.ShippingAddress; addr != nil {
		order.AVSDestzip = addr.Zip
		order.AVSDestaddress1 = truncate(addr.Address1, 30)
		order.AVSDestaddress2 = truncate(addr.Address2, 30)
		order.AVSDestcity = truncate(addr.City, 20)
		order.AVSDeststate = addr.State
		order.AVSDestphoneNum = addr.Phone
		order.AVSDestname = truncate(addr.Name, 30)
		order.AVSDestcountryCode = addr.Country
	}
	return a.commit(ctx, request{NewOrder: order}, authorizationString{orderID: order.OrderID, amount: amount, currency: currency})
}

// commit posts req and normalizes the answer. auth describes the operation;
// identifiers in the gateway answer take precedence over it.
func (a *Adapter) commit(ctx context.Context, req request, auth authorizationString) (response.Result, error) {
	body, err := encode(req)
	if err != nil {
		return nil, fmt.Errorf("orbital: encode request: %w", err)
	}
	raw, err := a.client.Post(ctx, a.url, body, a.headers())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		if _, ok := transport.AsResponseError(err); !ok {
			return response.Failure(err.Error(), nil,
				response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.cfg.Test)), nil
		}
	}

	kind, params, perr := parse(raw)
	if perr != nil || params["ProcStatus"] == nil {
		a.logger.Warn("unparseable gateway response", zap.Error(perr), zap.NamedError("transport", err))
		return response.Failure(msgInvalidXML, map[string]any{"raw_response": string(raw)},
			response.WithErrorCode(gateway.ErrorProcessing), response.WithTest(a.cfg.Test)), nil
	}
	params["response_type"] = kind
	return a.toResponse(kind, params, auth), nil
}

func (a *Adapter) toResponse(kind string, params map[string]any, auth authorizationString) *response.Response {
	procStatus := field(params, "ProcStatus")
	success := procStatus == "0"
	if kind == "NewOrderResp" {
		success = success && field(params, "ApprovalStatus") == "1"
	}

	message := field(params, "StatusMsg")
	if message == "" {
		message = field(params, "RespMsg")
	}

	if txRef := field(params, "TxRefNum"); txRef != "" {
		auth.txRefNum = txRef
	}
	if orderID := field(params, "OrderID"); orderID != "" {
		auth.orderID = orderID
	}
	var authorization string
	if auth.txRefNum != "" {
		authorization = auth.String()
	}

	opts := []response.Option{response.WithAuthorization(authorization), response.WithTest(a.cfg.Test)}
	if !success {
		opts = append(opts, response.WithErrorCode(errorCode(procStatus, field(params, "RespCode"))))
	}
	return response.New(success, message, params, opts...)
}

func field(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func errorCode(procStatus, respCode string) string {
	if procStatus != "0" {
		return gateway.ErrorProcessing
	}
	if code, ok := respCodes[strings.TrimSpace(respCode)]; ok {
		return code
	}
	return gateway.ErrorCardDeclined
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"MIME-Version":              "1.1",
		"Content-Type":              "application/PTI81",
		"Content-Transfer-Encoding": "text",
		"Request-Number":            "1",
		"Document-Type":             "Request",
		"Interface-Version":         "Go|PaymentGateway|Proprietary Gateway",
		"Merchant-ID":               a.cfg.MerchantID,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// authorizationString is the composite "txRefNum|orderID|amount|currency".
// The order id is the caller's and may itself contain "|"; the other fields
// never do.
type authorizationString struct {
	txRefNum string
	orderID  string
	amount   int64
	currency string
}

func (s authorizationString) String() string {
	return strings.Join([]string{s.txRefNum, s.orderID, strconv.FormatInt(s.amount, 10), s.currency}, "|")
}

func parseAuthorization(authorization string) (authorizationString, error) {
	invalid := fmt.Errorf("orbital: %q: %w", authorization, gateway.ErrInvalidAuthorization)
	txRefNum, rest, ok := strings.Cut(authorization, "|")
	if !ok || txRefNum == "" {
		return authorizationString{}, invalid
	}
	i := strings.LastIndex(rest, "|")
	if i < 0 {
		return authorizationString{}, invalid
	}
	rest, currency := rest[:i], rest[i+1:]
	i = strings.LastIndex(rest, "|")
	if i < 0 {
		return authorizationString{}, invalid
	}
	orderID, amountText := rest[:i], rest[i+1:]
	amount, err := strconv.ParseInt(amountText, 10, 64)
	if err != nil {
		return authorizationString{}, invalid
	}
	return authorizationString{txRefNum: txRefNum, orderID: orderID, amount: amount, currency: currency}, nil
}
