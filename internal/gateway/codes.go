package gateway

// Normalized error codes carried by failed Results.
const (
	ErrorCardDeclined      = "card_declined"
	ErrorInsufficientFunds = "insufficient_funds"
	ErrorIncorrectNumber   = "incorrect_number"
	ErrorIncorrectCVC      = "incorrect_cvc"
	ErrorExpiredCard       = "expired_card"
	ErrorProcessing        = "processing_error"
	ErrorRateLimited       = "rate_limited"
)

// IsCardError reports whether code blames the card rather than the gateway.
func IsCardError(code string) bool {
	switch code {
	case ErrorCardDeclined, ErrorInsufficientFunds, ErrorIncorrectNumber, ErrorIncorrectCVC, ErrorExpiredCard:
		return true
	}
	return false
}
