package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// PaymentMethod is either a CreditCard or a StoredToken.
type PaymentMethod interface {
	paymentMethod()
}

// CreditCard is a raw card value supplied by the caller.
type CreditCard struct {
	Number            string
	VerificationValue string
	Month             int
	Year              int
	FirstName         string
	LastName          string
	Brand             string
}

func (CreditCard) paymentMethod() {}

// StoredToken is a gateway-issued reference to a previously stored card.
type StoredToken string

func (StoredToken) paymentMethod() {}

var (
	ErrInvalidCardNumber = errors.New("gateway: invalid card number")
	ErrExpiredCard       = errors.New("gateway: card expired")
	ErrInvalidExpiry     = errors.New("gateway: invalid expiry month")
)

// Name is the cardholder name as printed.
func (c CreditCard) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Last4 returns the last four digits of the number.
func (c CreditCard) Last4() string {
	n := digits(c.Number)
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}

// ExpiryMMYY formats the expiry as MMYY.
func (c CreditCard) ExpiryMMYY() string {
	return fmt.Sprintf("%02d%02d", c.Month, c.Year%100)
}

// ExpiryYYYYMM formats the expiry as YYYYMM.
func (c CreditCard) ExpiryYYYYMM() string {
	return fmt.Sprintf("%04d%02d", c.Year, c.Month)
}

// Expired reports whether the card is past the last instant of its expiry
// month at now.
func (c CreditCard) Expired(now time.Time) bool {
	end := time.Date(c.Year, time.Month(c.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return !now.UTC().Before(end)
}

// Validate checks the Luhn digit and the expiry date.
func (c CreditCard) Validate(now time.Time) error {
	if c.Month < 1 || c.Month > 12 {
		return ErrInvalidExpiry
	}
	if !luhn(digits(c.Number)) {
		return ErrInvalidCardNumber
	}
	if c.Expired(now) {
		return ErrExpiredCard
	}
	return nil
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func luhn(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
