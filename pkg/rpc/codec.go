package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
)

// Encoder builds request envelopes with ids unique to the encoder.
type Encoder struct {
	last atomic.Int64
}

// NewEncoder returns an encoder whose first id is 1.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode wraps method and params in a request with the next id.
func (e *Encoder) Encode(method string, params any) Request {
	req, _ := NewRequest(e.last.Add(1), method, params)
	return req
}

// NewRequest builds a request with an explicit id.
func NewRequest(id int64, method string, params any) (Request, error) {
	if id <= 0 {
		return Request{}, ErrInvalidID
	}
	return Request{ID: id, JSONRPC: Version, Method: method, Params: params}, nil
}

// Decode parses raw into out, a pointer to the expected result shape.
//
// The success shape is tried first. Only when it does not fit is the body
// read as an error reply, so a loosely typed result is never mistaken for an
// error. An "Access denied" message yields ErrUnauthorized, any other error
// message a *RemoteError, and a body matching neither shape a *MalformedError.
// A nil out accepts any non-null result.
func Decode(raw []byte, out any) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return &MalformedError{Err: err}
	}
	successErr := decodeSuccess(members, out)
	if successErr == nil {
		return nil
	}
	body, err := decodeError(members)
	if err != nil {
		return &MalformedError{Err: successErr}
	}
	if body.Message == AccessDenied {
		return ErrUnauthorized
	}
	return &RemoteError{Code: body.Code, Message: body.Message}
}

// DecodeAs is Decode for a result type known at compile time.
func DecodeAs[T any](raw []byte) (T, error) {
	var out T
	if err := Decode(raw, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func decodeSuccess(members map[string]json.RawMessage, out any) error {
	if err := checkHeader(members); err != nil {
		return err
	}
	result, ok := members["result"]
	if !ok || isNull(result) {
		return errors.New("missing result")
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("result: %w", err)
	}
	return nil
}

func decodeError(members map[string]json.RawMessage) (ErrorBody, error) {
	if err := checkHeader(members); err != nil {
		return ErrorBody{}, err
	}
	raw, ok := members["error"]
	if !ok || isNull(raw) {
		return ErrorBody{}, errors.New("missing error")
	}
	var shape struct {
		Code    *int    `json:"code"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return ErrorBody{}, fmt.Errorf("error: %w", err)
	}
	if shape.Code == nil || shape.Message == nil {
		return ErrorBody{}, errors.New("error: code and message required")
	}
	return ErrorBody{Code: *shape.Code, Message: *shape.Message}, nil
}

func checkHeader(members map[string]json.RawMessage) error {
	rawID, ok := members["id"]
	if !ok {
		return errors.New("missing id")
	}
	var id int64
	if err := json.Unmarshal(rawID, &id); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if rawVersion, ok := members["jsonrpc"]; ok {
		var version string
		if err := json.Unmarshal(rawVersion, &version); err != nil || version != Version {
			return fmt.Errorf("unsupported jsonrpc version %s", rawVersion)
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// RequireFields reports an error unless the JSON object raw has every named
// member with a non-null value. Result types call it from UnmarshalJSON so a
// reply missing a required member fails the success shape and decodes as
// malformed instead of as zero values.
func RequireFields(raw []byte, names ...string) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return err
	}
	if members == nil {
		return errors.New("expected an object")
	}
	for _, name := range names {
		value, ok := members[name]
		if !ok || isNull(value) {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	return nil
}
