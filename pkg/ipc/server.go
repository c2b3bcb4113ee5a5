// Package ipc carries length-prefixed JSON requests between the glwatch CLI
// and daemon over a Unix socket.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// HandlerFunc processes RPC params and returns a result or structured error.
type HandlerFunc func(context.Context, json.RawMessage) (any, *Error)

// StreamFunc opens a subscription. Each value received from the channel is
// written to the client as one frame until the channel closes or the client
// disconnects, at which point ctx is cancelled.
type StreamFunc func(context.Context, json.RawMessage) (<-chan []byte, *Error)

type route struct {
	handler HandlerFunc
	stream  StreamFunc
}

// Server listens for IPC requests over Unix sockets.
type Server struct {
	logger zerolog.Logger
	seq    atomic.Uint64

	mu     sync.RWMutex
	ln     net.Listener
	routes map[string]route
	closed bool
}

// NewServer constructs an IPC server.
func NewServer(logger zerolog.Logger) *Server {
	return &Server{
		logger: logger,
		routes: make(map[string]route),
	}
}

// Register installs a request/response handler for method.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method] = route{handler: handler}
}

// RegisterStream installs a subscription handler for method.
func (s *Server) RegisterStream(method string, stream StreamFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method] = route{stream: stream}
}

// Start begins accepting connections on endpoint. The listener closes when ctx ends.
func (s *Server) Start(ctx context.Context, endpoint string) error {
	if s == nil {
		return errors.New("nil server")
	}
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go s.acceptLoop(ctx, ln)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := readFrame(conn)
		if err != nil {
			return
		}
		traceID := fmt.Sprintf("ipc-%d", s.seq.Add(1))
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			err := s.reply(conn, Response{TraceID: traceID, Error: Errorf(CodeInvalidRequest, "invalid json", nil)})
			if err != nil {
				return
			}
			continue
		}
		log := s.logger.With().Str("method", req.Method).Str("trace", traceID).Logger()
		r, ok := s.lookup(req.Method)
		switch {
		case !ok:
			log.Debug().Msg("unknown method")
			err = s.reply(conn, Response{ID: req.ID, TraceID: traceID,
				Error: Errorf(CodeInvalidRequest, "unknown method", map[string]any{"method": req.Method})})
		case r.stream != nil:
			log.Debug().Msg("stream opened")
			s.serveStream(ctx, conn, req, traceID, r.stream)
			log.Debug().Msg("stream closed")
			return
		default:
			resp := s.dispatch(ctx, req, r.handler)
			resp.TraceID = traceID
			if resp.Error != nil {
				log.Debug().Str("code", resp.Error.Code).Msg(resp.Error.Message)
			}
			err = s.reply(conn, resp)
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request, handler HandlerFunc) Response {
	resp := Response{ID: req.ID}
	result, rpcErr := handler(ctx, req.Params)
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = Errorf(CodeInternal, err.Error(), nil)
		return resp
	}
	resp.OK = true
	resp.Result = raw
	return resp
}

// serveStream owns conn until the subscription ends.
func (s *Server) serveStream(ctx context.Context, conn net.Conn, req Request, traceID string, stream StreamFunc) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, rpcErr := stream(streamCtx, req.Params)
	if rpcErr != nil {
		_ = s.reply(conn, Response{ID: req.ID, TraceID: traceID, Error: rpcErr})
		return
	}
	if err := s.reply(conn, Response{ID: req.ID, TraceID: traceID, OK: true}); err != nil {
		return
	}
	// The client sends nothing more; a read returning means it hung up.
	go func() {
		_, _ = readFrame(conn)
		cancel()
	}()
	for {
		select {
		case <-streamCtx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeFrame(conn, event); err != nil {
				return
			}
		}
	}
}

func (s *Server) lookup(method string) (route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[method]
	return r, ok
}

func (s *Server) reply(conn net.Conn, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return writeFrame(conn, payload)
}

// Stop shuts down the listener. It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Errorf helps build protocol errors.
func Errorf(code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}
