package alelo

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// parsePublicKey accepts the key as returned by the gateway: base64 DER,
// or PEM.
func parsePublicKey(encoded string) (*rsa.PublicKey, error) {
	var der []byte
	if block, _ := pem.Decode([]byte(encoded)); block != nil {
		der = block.Bytes
	} else {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("alelo: decode public key: %w", err)
		}
		der = b
	}
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("alelo: public key is not RSA")
		}
		return rsaPub, nil
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("alelo: parse public key: %w", err)
	}
	return pub, nil
}

// encrypt wraps plaintext in a compact RSA-OAEP-256 / A128CBC-HS256 JWE.
func encrypt(encodedKey string, plaintext []byte) (string, error) {
	pub, err := parsePublicKey(encodedKey)
	if err != nil {
		return "", err
	}
	enc, err := jose.NewEncrypter(jose.A128CBC_HS256, jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: pub}, nil)
	if err != nil {
		return "", fmt.Errorf("alelo: build encrypter: %w", err)
	}
	obj, err := enc.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("alelo: encrypt: %w", err)
	}
	return obj.CompactSerialize()
}
