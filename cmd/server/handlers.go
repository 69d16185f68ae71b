package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/processor"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/router"
)

var operationRequestSchema = monitor.MustContractMonitor("operation-request", `{
	"type": "object",
	"properties": {
		"amount": { "type": "integer", "minimum": 0 },
		"currency": { "type": "string", "pattern": "^[A-Za-z]{3}$" },
		"card": {
			"type": "object",
			"properties": {
				"number": { "type": "string", "pattern": "^[0-9 -]{12,23}$" },
				"verification_value": { "type": "string", "pattern": "^[0-9]{3,4}$" },
				"month": { "type": "integer", "minimum": 1, "maximum": 12 },
				"year": { "type": "integer", "minimum": 2000 },
				"first_name": { "type": "string" },
				"last_name": { "type": "string" },
				"brand": { "type": "string" }
			},
			"required": ["number", "month", "year"],
			"additionalProperties": false
		},
		"token": { "type": "string", "minLength": 1 },
		"authorization": { "type": "string", "minLength": 1 },
		"options": { "type": "object" }
	},
	"additionalProperties": false
}`)

type cardRequest struct {
	Number            string `json:"number"`
	VerificationValue string `json:"verification_value"`
	Month             int    `json:"month"`
	Year              int    `json:"year"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Brand             string `json:"brand"`
}

type addressRequest struct {
	Name     string `json:"name"`
	Company  string `json:"company"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

func (a *addressRequest) toAddress() *gateway.Address {
	if a == nil {
		return nil
	}
	addr := gateway.Address(*a)
	return &addr
}

type sessionRequest struct {
	AccessToken   string `json:"access_token"`
	EncryptionKey string `json:"encryption_key"`
	KeyID         string `json:"encryption_uuid"`
}

type optionsRequest struct {
	OrderID         string          `json:"order_id"`
	Description     string          `json:"description"`
	Currency        string          `json:"currency"`
	IP              string          `json:"ip"`
	Email           string          `json:"email"`
	CustomerID      string          `json:"customer_id"`
	BillingAddress  *addressRequest `json:"billing_address"`
	ShippingAddress *addressRequest `json:"shipping_address"`
	Session         *sessionRequest `json:"session"`
}

type operationRequest struct {
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Card          *cardRequest   `json:"card"`
	Token         string         `json:"token"`
	Authorization string         `json:"authorization"`
	Options       optionsRequest `json:"options"`
}

type resultResponse struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	Authorization string           `json:"authorization,omitempty"`
	ErrorCode     string           `json:"error_code,omitempty"`
	Test          bool             `json:"test"`
	Params        map[string]any   `json:"params,omitempty"`
	Responses     []resultResponse `json:"responses,omitempty"`
}

type routeResponse struct {
	resultResponse
	Gateway  gateway.Kind     `json:"gateway,omitempty"`
	Attempts []router.Attempt `json:"attempts"`
}

func toResultResponse(res response.Result) resultResponse {
	out := resultResponse{
		Success:       res.Success(),
		Message:       res.Message(),
		Authorization: res.Authorization(),
		ErrorCode:     res.ErrorCode(),
		Test:          res.Test(),
		Params:        res.Params(),
	}
	if m, ok := res.(*response.MultiResponse); ok {
		for _, r := range m.Responses() {
			out.Responses = append(out.Responses, toResultResponse(r))
		}
	}
	return out
}

// errRequest marks a request that is well-formed JSON but unusable for the
// operation.
var errRequest = errors.New("invalid request")

func (s *server) buildRequest(op gateway.Operation, body operationRequest) (processor.Request, error) {
	req := processor.Request{
		Amount:        body.Amount,
		Authorization: body.Authorization,
		Options: gateway.Options{
			OrderID:         body.Options.OrderID,
			Description:     body.Options.Description,
			Currency:        strings.ToUpper(body.Options.Currency),
			IP:              body.Options.IP,
			Email:           body.Options.Email,
			CustomerID:      body.Options.CustomerID,
			BillingAddress:  body.Options.BillingAddress.toAddress(),
			ShippingAddress: body.Options.ShippingAddress.toAddress(),
		},
	}
	if body.Currency != "" {
		req.Options.Currency = strings.ToUpper(body.Currency)
	}
	if sess := body.Options.Session; sess != nil {
		req.Options.Session = &gateway.Session{
			AccessToken:   sess.AccessToken,
			EncryptionKey: sess.EncryptionKey,
			KeyID:         sess.KeyID,
		}
	}

	var card *gateway.CreditCard
	if body.Card != nil {
		c := gateway.CreditCard(*body.Card)
		if err := c.Validate(s.now()); err != nil {
			return req, fmt.Errorf("%w: %v", errRequest, err)
		}
		card = &c
	}

	switch op {
	case gateway.OpPurchase, gateway.OpAuthorize:
		switch {
		case card != nil:
			req.PaymentMethod = *card
		case body.Token != "":
			req.PaymentMethod = gateway.StoredToken(body.Token)
		default:
			return req, fmt.Errorf("%w: %s requires card or token", errRequest, op)
		}
	case gateway.OpStore, gateway.OpVerify:
		if card == nil {
			return req, fmt.Errorf("%w: %s requires card", errRequest, op)
		}
		req.PaymentMethod = *card
	case gateway.OpCapture, gateway.OpVoid, gateway.OpRefund:
		if body.Authorization == "" {
			return req, fmt.Errorf("%w: %s requires authorization", errRequest, op)
		}
	case gateway.OpUnstore:
		req.Authorization = body.Token
		if req.Authorization == "" {
			req.Authorization = body.Authorization
		}
		if req.Authorization == "" {
			return req, fmt.Errorf("%w: unstore requires token", errRequest)
		}
	}
	return req, nil
}

// decodeOperation validates the body against the request schema and builds
// the processor request. It writes the error response itself and reports
// whether the handler should continue.
func (s *server) decodeOperation(c *gin.Context) (gateway.Operation, processor.Request, bool) {
	op, err := gateway.ParseOperation(c.Param("operation"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", processor.Request{}, false
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return "", processor.Request{}, false
	}
	valid, violations, err := operationRequestSchema.Validate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: body is not JSON"})
		return "", processor.Request{}, false
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
		return "", processor.Request{}, false
	}
	var body operationRequest
	if err := binding.JSON.BindBody(raw, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return "", processor.Request{}, false
	}
	req, err := s.buildRequest(op, body)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return "", processor.Request{}, false
	}
	return op, req, true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, gateway.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, gateway.ErrUnsupportedPaymentMethod), errors.Is(err, gateway.ErrUnsupportedCurrency),
		errors.Is(err, gateway.ErrInvalidAuthorization):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleGatewayOperation(c *gin.Context) {
	kind, err := gateway.ParseKind(c.Param("gateway"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	op, req, ok := s.decodeOperation(c)
	if !ok {
		return
	}

	res, err := s.processor.Execute(c.Request.Context(), kind, op, req)
	if err != nil {
		s.logger.Warn("operation rejected", zap.String("gateway", string(kind)), zap.String("operation", string(op)), zap.Error(err))
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if res.ErrorCode() == processor.ErrorAdapterNotFound {
		status = http.StatusNotFound
	}
	c.JSON(status, toResultResponse(res))
}

func (s *server) handleRoute(c *gin.Context) {
	op, req, ok := s.decodeOperation(c)
	if !ok {
		return
	}
	out, err := s.router.Route(c.Request.Context(), op, req)
	if errors.Is(err, router.ErrNotRoutable) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if out == nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Warn("routed operation ended with adapter error", zap.String("operation", string(op)), zap.Error(err))
	}
	c.JSON(http.StatusOK, routeResponse{
		resultResponse: toResultResponse(out.Result),
		Gateway:        out.Gateway,
		Attempts:       out.Attempts,
	})
}

func (s *server) handleScrub(c *gin.Context) {
	kind, err := gateway.ParseKind(c.Param("gateway"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	a, ok := s.processor.Adapter(kind)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No adapter registered for gateway: %s", kind)})
		return
	}
	transcript, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read transcript"})
		return
	}
	c.String(http.StatusOK, a.Scrub(string(transcript)))
}

func (s *server) handleRetrospective(c *gin.Context) {
	report, err := reporting.NewRetrospectiveReporter().GenerateRetrospective(s.processor.Log().Entries())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *server) handleGateways(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gateways": s.processor.Kinds(),
		"route":    s.router.Gateways(),
	})
}
