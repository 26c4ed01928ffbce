// Package gdax implements the exchange gateway for the Coinbase Exchange
// (formerly GDAX) REST API.
package gdax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/crypto"
	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// DefaultBaseURL is the Coinbase Exchange REST root.
const DefaultBaseURL = "https://api.exchange.coinbase.com"

// APIError is a non-2xx response or transport failure. Kind is one of the
// domain gateway error kinds.
type APIError struct {
	Kind    error
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gdax: HTTP %d", e.Status)
	}
	return fmt.Sprintf("gdax: HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Kind }

// Client is the REST client for the Coinbase Exchange API.
type Client struct {
	baseURL    string
	creds      crypto.Credentials
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new client. Requests are signed whenever creds are
// set; public endpoints also work without them.
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

// Get decodes a GET response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doSignedRequest(ctx, http.MethodGet, path, nil, out)
}

// Post sends reqBody as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, reqBody, out any) error {
	return c.doSignedRequest(ctx, http.MethodPost, path, reqBody, out)
}

func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody, out any) error {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if !c.creds.Empty() {
		headers, err := c.creds.CoinbaseHeadersAt(method, path, string(payload), c.now().Unix())
		if err != nil {
			return &APIError{Kind: domain.ErrAuthentication, Message: err.Error()}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &APIError{Kind: domain.ErrGatewayUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: domain.ErrGatewayUnavailable, Status: resp.StatusCode, Message: err.Error()}
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Kind: domain.ErrGatewayUnavailable, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

// checkStatus maps non-2xx HTTP status codes to gateway error kinds.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	e := &APIError{Status: statusCode, Message: apiErr.Message}
	switch {
	case statusCode == http.StatusNotFound:
		e.Kind = domain.ErrNotFound
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = domain.ErrAuthentication
	case statusCode == http.StatusBadRequest:
		e.Kind = domain.ErrValidation
	default:
		// 429 and 5xx.
		e.Kind = domain.ErrGatewayUnavailable
	}
	return e
}
