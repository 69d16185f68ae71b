package gateway

// Address is a billing or shipping address.
type Address struct {
	Name     string
	Company  string
	Address1 string
	Address2 string
	City     string
	State    string
	Zip      string
	Country  string
	Phone    string
}

// Session carries credentials a gateway issued in an earlier call so they can
// be reused instead of fetched again.
type Session struct {
	AccessToken   string
	EncryptionKey string
	KeyID         string
}

// Options are the per-operation fields adapters recognize. Absent fields are
// zero values; adapters fill in their own defaults.
type Options struct {
	OrderID         string
	Description     string
	Currency        string
	IP              string
	Email           string
	CustomerID      string
	BillingAddress  *Address
	ShippingAddress *Address
	Session         *Session
}

// CurrencyOr returns the option currency or fallback when unset.
func (o Options) CurrencyOr(fallback string) string {
	if o.Currency == "" {
		return fallback
	}
	return o.Currency
}
