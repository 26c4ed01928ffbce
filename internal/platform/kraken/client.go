// Package kraken implements the exchange gateway for the Kraken REST API.
package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/crypto"
	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// DefaultBaseURL is Kraken's REST root.
const DefaultBaseURL = "https://api.kraken.com"

const apiVersion = "/0"

// APIError is a failed Kraken call. Kind is one of the domain gateway error
// kinds.
type APIError struct {
	Kind     error
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("kraken: HTTP %d", e.Status)
	}
	return "kraken: " + strings.Join(e.Messages, ", ")
}

func (e *APIError) Unwrap() error { return e.Kind }

// Client is the REST client for the Kraken API.
type Client struct {
	baseURL    string
	creds      crypto.Credentials
	httpClient *http.Client

	mu        sync.Mutex
	lastNonce int64
	now       func() time.Time
}

// NewClient creates a new Kraken REST client. creds may be empty for public
// calls only.
func NewClient(baseURL string, creds crypto.Credentials, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// nextNonce returns a strictly increasing millisecond nonce.
func (c *Client) nextNonce() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return strconv.FormatInt(n, 10)
}

// Public calls an unauthenticated endpoint and decodes result into out.
func (c *Client) Public(ctx context.Context, method string, params url.Values, out any) error {
	path := apiVersion + "/public/" + method
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

// Private calls an authenticated endpoint and decodes result into out.
func (c *Client) Private(ctx context.Context, method string, params url.Values, out any) error {
	if c.creds.Empty() {
		return &APIError{Kind: domain.ErrAuthentication, Messages: []string{"api credentials not configured"}}
	}
	if params == nil {
		params = url.Values{}
	}
	nonce := c.nextNonce()
	params.Set("nonce", nonce)
	postData := params.Encode()

	path := apiVersion + "/private/" + method
	headers, err := c.creds.KrakenHeaders(path, nonce, postData)
	if err != nil {
		return &APIError{Kind: domain.ErrAuthentication, Messages: []string{err.Error()}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(postData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &APIError{Kind: domain.ErrGatewayUnavailable, Messages: []string{err.Error()}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: domain.ErrGatewayUnavailable, Status: resp.StatusCode, Messages: []string{err.Error()}}
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if err := checkStatus(resp.StatusCode, env.Error); err != nil {
		return err
	}
	if decodeErr != nil {
		return &APIError{Kind: domain.ErrGatewayUnavailable, Status: resp.StatusCode, Messages: []string{"decode response: " + decodeErr.Error()}}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &APIError{Kind: domain.ErrGatewayUnavailable, Status: resp.StatusCode, Messages: []string{"decode result: " + err.Error()}}
	}
	return nil
}

// checkStatus maps HTTP status codes and Kraken error strings to gateway
// error kinds. Kraken reports most failures as 200 with a non-empty error
// list.
func checkStatus(statusCode int, messages []string) error {
	if len(messages) > 0 {
		return &APIError{Kind: classify(messages[0]), Status: statusCode, Messages: messages}
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &APIError{Kind: domain.ErrAuthentication, Status: statusCode}
	case statusCode == http.StatusNotFound:
		return &APIError{Kind: domain.ErrNotFound, Status: statusCode}
	case statusCode == http.StatusBadRequest:
		return &APIError{Kind: domain.ErrValidation, Status: statusCode}
	default:
		return &APIError{Kind: domain.ErrGatewayUnavailable, Status: statusCode}
	}
}

var errorKinds = []struct {
	prefix string
	kind   error
}{
	{"EAPI:Invalid key", domain.ErrAuthentication},
	{"EAPI:Invalid signature", domain.ErrAuthentication},
	{"EAPI:Invalid nonce", domain.ErrAuthentication},
	{"EGeneral:Permission denied", domain.ErrAuthentication},
	{"EAPI:Rate limit", domain.ErrGatewayUnavailable},
	{"EOrder:Rate limit", domain.ErrGatewayUnavailable},
	{"EService:", domain.ErrGatewayUnavailable},
	{"EGeneral:Temporary lockout", domain.ErrGatewayUnavailable},
	{"EGeneral:Internal error", domain.ErrGatewayUnavailable},
	{"EOrder:Unknown order", domain.ErrNotFound},
	{"EOrder:Invalid order", domain.ErrNotFound},
	{"EFunding:Unknown reference", domain.ErrNotFound},
	{"EGeneral:Invalid arguments", domain.ErrValidation},
	{"EOrder:Insufficient funds", domain.ErrValidation},
	{"EQuery:Unknown asset pair", domain.ErrValidation},
	{"EFunding:", domain.ErrValidation},
	{"EOrder:", domain.ErrValidation},
}

func classify(msg string) error {
	for _, k := range errorKinds {
		if strings.HasPrefix(msg, k.prefix) {
			return k.kind
		}
	}
	return domain.ErrGatewayUnavailable
}
