package ipc

import (
	"encoding/json"
	"fmt"
)

// Request models IPC requests.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response models IPC responses.
type Response struct {
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	TraceID string          `json:"traceId,omitempty"`
}

// Error follows the API contract for structured failures.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon error: %s (%s)", e.Message, e.Code)
}

// Error codes returned by the daemon.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL"
	CodeStorage        = "STORAGE_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeRouter         = "ROUTER_ERROR"
)
