package rpc

// Version is the only protocol version the router speaks.
const Version = "2.0"

// Request is the envelope posted to the router's /rpc endpoint.
type Request struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response is a successful reply carrying a typed result.
type Response[T any] struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Result  T      `json:"result"`
}

// ErrorResponse is a failed reply.
type ErrorResponse struct {
	ID      int64     `json:"id"`
	JSONRPC string    `json:"jsonrpc"`
	Error   ErrorBody `json:"error"`
}

// ErrorBody is the error member of a failed reply.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
