package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds a single reply; status payloads are a few KB.
const maxResponseBytes = 4 << 20

// Transport moves one encoded request to the router and returns the raw reply.
type Transport interface {
	RoundTrip(ctx context.Context, body []byte) ([]byte, error)
}

// HTTPTransport posts requests to the router's /rpc endpoint.
type HTTPTransport struct {
	URL    string
	Client *http.Client
}

// NewHTTPTransport targets address, a bare host ("192.168.8.1") or a base URL.
func NewHTTPTransport(address string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		URL:    Endpoint(address),
		Client: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the /rpc URL for address.
func Endpoint(address string) string {
	address = strings.TrimRight(strings.TrimSpace(address), "/")
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return address + "/rpc"
}

// RoundTrip implements Transport. The body is returned whatever the HTTP
// status; classifying it is the decoder's job.
func (t *HTTPTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", resp.Status, err)
	}
	return raw, nil
}
