package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rexliu/glwatch/pkg/rpc"
)

type call struct {
	method string
	params any
}

// scriptedCaller answers each method with a canned raw reply, decoded through rpc.Decode.
type scriptedCaller struct {
	replies map[string][]string
	calls   []call
	err     error
}

func (c *scriptedCaller) Call(ctx context.Context, method string, params any, out any) error {
	c.calls = append(c.calls, call{method: method, params: params})
	if c.err != nil {
		return c.err
	}
	queue := c.replies[method]
	if len(queue) == 0 {
		return errors.New("no scripted reply for " + method)
	}
	raw := queue[0]
	c.replies[method] = queue[1:]
	return rpc.Decode([]byte(raw), out)
}

func newScripted() *scriptedCaller {
	return &scriptedCaller{replies: map[string][]string{
		"challenge": {`{"id":1,"jsonrpc":"2.0","result":{"alg":5,"nonce":"n1","salt":"s1"}}`},
		"login":     {`{"id":2,"jsonrpc":"2.0","result":{"sid":"tok123","username":"root"}}`},
	}}
}

func TestLoginEndToEnd(t *testing.T) {
	caller := newScripted()
	session := NewSession(caller, "root")
	require.False(t, session.Authenticated())

	require.NoError(t, session.Login(context.Background(), "hunter2"))
	require.True(t, session.Authenticated())
	require.Equal(t, "tok123", session.Token())

	require.Len(t, caller.calls, 2)
	require.Equal(t, "challenge", caller.calls[0].method)
	require.Equal(t, map[string]string{"username": "root"}, caller.calls[0].params)
	require.Equal(t, "login", caller.calls[1].method)
	require.Equal(t, map[string]string{
		"username": "root",
		"hash":     "45154f3582036622fdc37ce5e97a6ae9",
	}, caller.calls[1].params)
}

func TestCallWireShape(t *testing.T) {
	caller := newScripted()
	caller.replies["call"] = []string{`{"id":3,"jsonrpc":"2.0","result":{"ok":true}}`}
	session := NewSession(caller, "root")
	require.NoError(t, session.Login(context.Background(), "hunter2"))

	var out map[string]bool
	require.NoError(t, session.Call(context.Background(), "get_status", []any{"system"}, &out))
	require.True(t, out["ok"])

	last := caller.calls[len(caller.calls)-1]
	require.Equal(t, "call", last.method)
	raw, err := json.Marshal(last.params)
	require.NoError(t, err)
	require.JSONEq(t, `["tok123","system","get_status",{}]`, string(raw))
}

func TestCallRequiresLogin(t *testing.T) {
	caller := newScripted()
	session := NewSession(caller, "root")
	err := session.Call(context.Background(), "get_status", []any{"system"}, nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Empty(t, caller.calls)
}

func TestUnauthorizedExpiresSession(t *testing.T) {
	caller := newScripted()
	caller.replies["call"] = []string{
		`{"id":3,"jsonrpc":"2.0","result":{}}`,
		`{"id":4,"jsonrpc":"2.0","error":{"code":-32000,"message":"Access denied"}}`,
	}
	session := NewSession(caller, "root")
	require.NoError(t, session.Login(context.Background(), "hunter2"))

	require.NoError(t, session.Call(context.Background(), "get_status", []any{"system"}, nil))
	require.True(t, session.Authenticated())

	err := session.Call(context.Background(), "get_status", []any{"system"}, nil)
	require.ErrorIs(t, err, rpc.ErrUnauthorized)
	require.False(t, session.Authenticated())

	err = session.Call(context.Background(), "get_status", []any{"system"}, nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRemoteErrorKeepsSession(t *testing.T) {
	caller := newScripted()
	caller.replies["call"] = []string{`{"id":3,"jsonrpc":"2.0","error":{"code":-32602,"message":"Invalid params"}}`}
	session := NewSession(caller, "root")
	require.NoError(t, session.Login(context.Background(), "hunter2"))

	err := session.Call(context.Background(), "get_status", []any{"bogus"}, nil)
	var remote *rpc.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "Invalid params", remote.Message)
	require.True(t, session.Authenticated())
}

func TestLoginFailures(t *testing.T) {
	cases := map[string]struct {
		challenge string
		login     string
		step      string
		check     func(t *testing.T, err error)
	}{
		"unsupported algorithm": {
			challenge: `{"id":1,"jsonrpc":"2.0","result":{"alg":3,"nonce":"n1","salt":"s1"}}`,
			step:      "digest",
			check:     func(t *testing.T, err error) { require.ErrorIs(t, err, ErrUnsupportedAlgorithm) },
		},
		"challenge missing algorithm": {
			challenge: `{"id":1,"jsonrpc":"2.0","result":{"nonce":"n1","salt":"s1"}}`,
			step:      "challenge",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, rpc.ErrMalformedResponse)
				require.NotErrorIs(t, err, ErrUnsupportedAlgorithm)
			},
		},
		"challenge missing salt": {
			challenge: `{"id":1,"jsonrpc":"2.0","result":{"alg":5,"nonce":"n1"}}`,
			step:      "challenge",
			check:     func(t *testing.T, err error) { require.ErrorIs(t, err, rpc.ErrMalformedResponse) },
		},
		"wrong password": {
			challenge: `{"id":1,"jsonrpc":"2.0","result":{"alg":5,"nonce":"n1","salt":"s1"}}`,
			login:     `{"id":2,"jsonrpc":"2.0","error":{"code":-32000,"message":"Access denied"}}`,
			step:      "login",
			check:     func(t *testing.T, err error) { require.ErrorIs(t, err, rpc.ErrUnauthorized) },
		},
		"login remote error": {
			challenge: `{"id":1,"jsonrpc":"2.0","result":{"alg":5,"nonce":"n1","salt":"s1"}}`,
			login:     `{"id":2,"jsonrpc":"2.0","error":{"code":-32001,"message":"Too many attempts"}}`,
			step:      "login",
			check: func(t *testing.T, err error) {
				var remote *rpc.RemoteError
				require.ErrorAs(t, err, &remote)
				require.Equal(t, -32001, remote.Code)
			},
		},
		"login with null sid": {
			challenge: `{"id":1,"jsonrpc":"2.0","result":{"alg":5,"nonce":"n1","salt":"s1"}}`,
			login:     `{"id":2,"jsonrpc":"2.0","result":{"sid":null,"username":"root"}}`,
			step:      "login",
			check:     func(t *testing.T, err error) { require.ErrorIs(t, err, rpc.ErrMalformedResponse) },
		},
		"login without sid": {
			challenge: `{"id":1,"jsonrpc":"2.0","result":{"alg":5,"nonce":"n1","salt":"s1"}}`,
			login:     `{"id":2,"jsonrpc":"2.0","result":{"username":"root"}}`,
			step:      "login",
			check:     func(t *testing.T, err error) { require.ErrorIs(t, err, rpc.ErrMalformedResponse) },
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			caller := &scriptedCaller{replies: map[string][]string{
				"challenge": {tc.challenge},
				"login":     {tc.login},
			}}
			session := NewSession(caller, "root")
			err := session.Login(context.Background(), "hunter2")

			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, tc.step, authErr.Step)
			tc.check(t, err)
			require.False(t, session.Authenticated())
		})
	}
}

func TestLoginTransportFailure(t *testing.T) {
	caller := &scriptedCaller{err: &rpc.TransportError{Method: "challenge", Err: errors.New("connection refused")}}
	session := NewSession(caller, "root")
	err := session.Login(context.Background(), "hunter2")

	var te *rpc.TransportError
	require.ErrorAs(t, err, &te)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestFailedReloginDropsOldToken(t *testing.T) {
	caller := newScripted()
	session := NewSession(caller, "root")
	require.NoError(t, session.Login(context.Background(), "hunter2"))

	caller.err = errors.New("network down")
	require.Error(t, session.Login(context.Background(), "hunter2"))
	require.False(t, session.Authenticated())
}
