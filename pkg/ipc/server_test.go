package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	socket := filepath.Join(t.TempDir(), "ipc.sock")
	srv := NewServer(zerolog.Nop())
	srv.Register("echo", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		var in map[string]any
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, Errorf(CodeInvalidRequest, "bad params", nil)
		}
		return in, nil
	})
	require.NoError(t, srv.Start(ctx, socket))
	return srv, socket
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"a":1}`)))
	require.Equal(t, 4+7, buf.Len())
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(got))
	_, err = ReadFrame(&buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	header := []byte{0xff, 0xff, 0xff, 0x7f}
	_, err := ReadFrame(bytes.NewReader(header))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCallReturnsResult(t *testing.T) {
	_, socket := startServer(t)
	resp, err := Call(callCtx(t), socket, "echo", map[string]any{"x": "y"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.JSONEq(t, `{"x":"y"}`, string(resp.Result))
	require.NotEmpty(t, resp.TraceID)
}

func TestCallSurfacesHandlerError(t *testing.T) {
	_, socket := startServer(t)
	_, err := Call(callCtx(t), socket, "echo", "not an object")
	var ipcErr *Error
	require.ErrorAs(t, err, &ipcErr)
	require.Equal(t, CodeInvalidRequest, ipcErr.Code)
	require.Equal(t, "bad params", ipcErr.Message)
}

func TestCallUnknownMethod(t *testing.T) {
	_, socket := startServer(t)
	_, err := Call(callCtx(t), socket, "nope", nil)
	var ipcErr *Error
	require.ErrorAs(t, err, &ipcErr)
	require.Equal(t, "nope", ipcErr.Details["method"])
}

func TestSubscribeStreamsUntilClosed(t *testing.T) {
	srv, socket := startServer(t)
	srv.RegisterStream("count", func(ctx context.Context, params json.RawMessage) (<-chan []byte, *Error) {
		ch := make(chan []byte)
		go func() {
			defer close(ch)
			for i := 1; i <= 3; i++ {
				select {
				case ch <- []byte{'0' + byte(i)}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	})

	var got []string
	err := Subscribe(callCtx(t), socket, "count", nil, func(frame []byte) error {
		got = append(got, string(frame))
		return nil
	})
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []string{"1", "2", "3"}, got)
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	srv, socket := startServer(t)
	cancelled := make(chan struct{})
	srv.RegisterStream("forever", func(ctx context.Context, params json.RawMessage) (<-chan []byte, *Error) {
		ch := make(chan []byte, 1)
		ch <- []byte("hello")
		go func() {
			<-ctx.Done()
			close(cancelled)
		}()
		return ch, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	err := Subscribe(ctx, socket, "forever", nil, func(frame []byte) error {
		require.Equal(t, "hello", string(frame))
		cancel()
		return nil
	})
	require.NoError(t, err)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not notice the client leaving")
	}
}

func TestSubscribeRejected(t *testing.T) {
	srv, socket := startServer(t)
	srv.RegisterStream("denied", func(ctx context.Context, params json.RawMessage) (<-chan []byte, *Error) {
		return nil, Errorf(CodeInternal, "unavailable", nil)
	})
	err := Subscribe(callCtx(t), socket, "denied", nil, func([]byte) error {
		return errors.New("unexpected frame")
	})
	var ipcErr *Error
	require.ErrorAs(t, err, &ipcErr)
	require.Equal(t, CodeInternal, ipcErr.Code)
}

func TestStopIsIdempotent(t *testing.T) {
	srv, _ := startServer(t)
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
}
