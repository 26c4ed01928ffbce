package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Option tunes an HTTP-backed sender.
type Option func(*httpSender)

// WithBaseURL points the sender at another API root. Tests use it.
func WithBaseURL(u string) Option {
	return func(h *httpSender) { h.baseURL = u }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *httpSender) { h.client = c }
}

type httpSender struct {
	name    string
	baseURL string
	client  *http.Client
}

func newHTTPSender(name, baseURL string, opts []Option) httpSender {
	h := httpSender{name: name, baseURL: baseURL, client: &http.Client{Timeout: defaultTimeout}}
	for _, o := range opts {
		o(&h)
	}
	return h
}

func (h httpSender) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", h.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", h.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", h.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", h.name, resp.StatusCode, string(respBody))
	}
	return nil
}
