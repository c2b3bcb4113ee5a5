package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Client issues one call at a time over a Transport.
type Client struct {
	transport Transport
	encoder   *Encoder
}

// NewClient returns a client with its own id counter.
func NewClient(transport Transport) *Client {
	return &Client{transport: transport, encoder: NewEncoder()}
}

// Call sends method with params and decodes the result into out.
// Network failures are returned as *TransportError and never retried.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	req := c.encoder.Encode(method, params)
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc: encode %s: %w", method, err)
	}
	raw, err := c.transport.RoundTrip(ctx, body)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return err
		}
		return &TransportError{Method: method, Err: err}
	}
	return Decode(raw, out)
}
