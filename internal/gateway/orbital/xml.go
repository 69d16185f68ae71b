package orbital

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

type request struct {
	XMLName        xml.Name        `xml:"Request"`
	NewOrder       *newOrder       `xml:"NewOrder"`
	MarkForCapture *markForCapture `xml:"MarkForCapture"`
	Reversal       *reversal       `xml:"Reversal"`
}

type credentials struct {
	Username string `xml:"OrbitalConnectionUsername"`
	Password string `xml:"OrbitalConnectionPassword"`
}

type newOrder struct {
	credentials
	IndustryType     string `xml:"IndustryType"`
	MessageType      string `xml:"MessageType"`
	BIN              string `xml:"BIN"`
	MerchantID       string `xml:"MerchantID"`
	TerminalID       string `xml:"TerminalID"`
	AccountNum       string `xml:"AccountNum,omitempty"`
	Exp              string `xml:"Exp,omitempty"`
	CurrencyCode     string `xml:"CurrencyCode"`
	CurrencyExponent string `xml:"CurrencyExponent"`
	CardSecValInd    string `xml:"CardSecValInd,omitempty"`
	CardSecVal       string `xml:"CardSecVal,omitempty"`
	AVSzip           string `xml:"AVSzip,omitempty"`
	AVSaddress1      string `xml:"AVSaddress1,omitempty"`
	AVSaddress2      string `xml:"AVSaddress2,omitempty"`
	AVScity          string `xml:"AVScity,omitempty"`
	AVSstate         string `xml:"AVSstate,omitempty"`
	AVSphoneNum      string `xml:"AVSphoneNum,omitempty"`
	AVSname          string `xml:"AVSname,omitempty"`
	AVScountryCode   string `xml:"AVScountryCode,omitempty"`

	AVSDestzip         string `xml:"AVSDestzip,omitempty"`
	AVSDestaddress1    string `xml:"AVSDestaddress1,omitempty"`
	AVSDestaddress2    string `xml:"AVSDestaddress2,omitempty"`
	AVSDestcity        string `xml:"AVSDestcity,omitempty"`
	AVSDeststate       string `xml:"AVSDeststate,omitempty"`
	AVSDestphoneNum    string `xml:"AVSDestphoneNum,omitempty"`
	AVSDestname        string `xml:"AVSDestname,omitempty"`
	AVSDestcountryCode string `xml:"AVSDestcountryCode,omitempty"`

	CustomerRefNum   string `xml:"CustomerRefNum,omitempty"`
	OrderID          string `xml:"OrderID"`
	Amount           string `xml:"Amount"`
	Comments         string `xml:"Comments,omitempty"`
	CustomerEmail    string `xml:"CustomerEmail,omitempty"`
	CustomerIP       string `xml:"CustomerIpAddress,omitempty"`
	TxRefNum         string `xml:"TxRefNum,omitempty"`
}

type markForCapture struct {
	credentials
	OrderID    string `xml:"OrderID"`
	Amount     string `xml:"Amount"`
	BIN        string `xml:"BIN"`
	MerchantID string `xml:"MerchantID"`
	TerminalID string `xml:"TerminalID"`
	TxRefNum   string `xml:"TxRefNum"`
}

type reversal struct {
	credentials
	TxRefNum          string `xml:"TxRefNum"`
	TxRefIdx          string `xml:"TxRefIdx"`
	OrderID           string `xml:"OrderID"`
	BIN               string `xml:"BIN"`
	MerchantID        string `xml:"MerchantID"`
	TerminalID        string `xml:"TerminalID"`
	OnlineReversalInd string `xml:"OnlineReversalInd"`
}

func encode(req request) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var errNoResponseElement = errors.New("orbital: no response element")

// parse flattens the leaf elements of <Response><XxxResp>...</XxxResp></Response>
// into params and returns the name of the response element.
func parse(raw []byte) (string, map[string]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	params := map[string]any{}
	var (
		kind  string
		depth int
		leaf  bool
		text  strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && kind == "" {
				kind = t.Name.Local
			}
			leaf = true
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if leaf && depth >= 3 {
				params[t.Name.Local] = strings.TrimSpace(text.String())
			}
			leaf = false
			depth--
			text.Reset()
		}
	}
	if kind == "" {
		return "", nil, errNoResponseElement
	}
	return kind, params, nil
}
