package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

func dial(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	return conn, nil
}

func send(conn net.Conn, method string, params any) (string, error) {
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return "", err
		}
		raw = encoded
	}
	req := Request{
		ID:     fmt.Sprintf("cli-%d", time.Now().UnixNano()),
		Method: method,
		Params: raw,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return req.ID, WriteFrame(conn, payload)
}

func receive(conn net.Conn) (*Response, error) {
	respBytes, err := ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &resp, nil
}

// Call sends one request and waits for its response. A daemon-side failure
// is returned as *Error.
func Call(ctx context.Context, socketPath, method string, params any) (*Response, error) {
	conn, err := dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := send(conn, method, params); err != nil {
		return nil, err
	}
	return receive(conn)
}

// Subscribe opens a stream and calls fn for every frame until ctx ends, the
// daemon closes the stream, or fn returns an error.
func Subscribe(ctx context.Context, socketPath, method string, params any, fn func([]byte) error) error {
	conn, err := dial(ctx, socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := send(conn, method, params); err != nil {
		return err
	}
	if _, err := receive(conn); err != nil {
		return err
	}
	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
