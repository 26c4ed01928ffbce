// Package crypto signs exchange REST requests and stores API secrets
// encrypted at rest.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Credentials are one exchange account's API credentials. Secret is the
// base64 string the exchange issued.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// Empty reports whether no key is configured.
func (c Credentials) Empty() bool { return c.Key == "" || c.Secret == "" }

func (c Credentials) decodedSecret() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: api secret is not base64: %w", err)
	}
	return b, nil
}

// KrakenHeaders signs a private Kraken call. postData is the urlencoded body,
// which must contain the same nonce.
//
// API-Sign = base64(HMAC-SHA512(secret, path + SHA256(nonce + postData)))
func (c Credentials) KrakenHeaders(path, nonce, postData string) (map[string]string, error) {
	secret, err := c.decodedSecret()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256([]byte(nonce + postData))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])

	return map[string]string{
		"API-Key":  c.Key,
		"API-Sign": base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// CoinbaseHeaders signs a Coinbase Exchange (gdax) call with the current
// time.
func (c Credentials) CoinbaseHeaders(method, path, body string) (map[string]string, error) {
	return c.CoinbaseHeadersAt(method, path, body, time.Now().Unix())
}

// CoinbaseHeadersAt is CoinbaseHeaders with a fixed Unix timestamp.
//
// CB-ACCESS-SIGN = base64(HMAC-SHA256(secret, timestamp + method + path + body))
func (c Credentials) CoinbaseHeadersAt(method, path, body string, unixTS int64) (map[string]string, error) {
	secret, err := c.decodedSecret()
	if err != nil {
		return nil, err
	}
	ts := strconv.FormatInt(unixTS, 10)

	return map[string]string{
		"CB-ACCESS-KEY":        c.Key,
		"CB-ACCESS-SIGN":       hmacSHA256Base64(secret, ts+method+path+body),
		"CB-ACCESS-TIMESTAMP":  ts,
		"CB-ACCESS-PASSPHRASE": c.Passphrase,
	}, nil
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (c Credentials) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("Credentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}
