// Package auth implements the router's challenge-response login and the
// session token it yields.
//
// A Session is either unauthenticated or holds exactly one token. The token
// is dropped the moment the router answers a call with "Access denied"; the
// caller decides when to log in again.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rexliu/glwatch/pkg/rpc"
)

// ErrNotAuthenticated is returned by Call before a successful Login.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

// Caller performs one decoded RPC round trip. *rpc.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any, out any) error
}

// Challenge is the router's reply to a challenge request.
type Challenge struct {
	Algorithm Algorithm `json:"alg"`
	Nonce     string    `json:"nonce"`
	Salt      string    `json:"salt"`
}

// UnmarshalJSON rejects a challenge missing alg, nonce or salt.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	if err := rpc.RequireFields(data, "alg", "nonce", "salt"); err != nil {
		return err
	}
	type plain Challenge
	return json.Unmarshal(data, (*plain)(c))
}

// LoginResult is the router's reply to a login request.
type LoginResult struct {
	SID      string `json:"sid"`
	Username string `json:"username"`
}

// UnmarshalJSON rejects a login reply without a sid.
func (r *LoginResult) UnmarshalJSON(data []byte) error {
	if err := rpc.RequireFields(data, "sid"); err != nil {
		return err
	}
	type plain LoginResult
	return json.Unmarshal(data, (*plain)(r))
}

// AuthError reports a failed handshake. Err keeps the underlying kind, so
// errors.Is(err, rpc.ErrUnauthorized) still holds for a rejected password.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: login failed at %s: %v", e.Step, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Session owns the login exchange and the resulting token.
type Session struct {
	caller   Caller
	username string

	mu    sync.Mutex
	token string
}

// NewSession returns an unauthenticated session for username.
func NewSession(caller Caller, username string) *Session {
	return &Session{caller: caller, username: username}
}

// Username returns the account the session logs in as.
func (s *Session) Username() string {
	return s.username
}

// Login runs challenge, digest and login. On failure the session is left
// unauthenticated and an *AuthError is returned; Login never retries.
func (s *Session) Login(ctx context.Context, password string) error {
	var challenge Challenge
	if err := s.caller.Call(ctx, "challenge", map[string]string{"username": s.username}, &challenge); err != nil {
		return s.fail("challenge", err)
	}
	if challenge.Nonce == "" || challenge.Salt == "" {
		return s.fail("challenge", &rpc.MalformedError{Err: errors.New("challenge missing nonce or salt")})
	}
	digest, err := Digest(challenge.Algorithm, password, challenge.Salt)
	if err != nil {
		return s.fail("digest", err)
	}
	params := map[string]string{
		"username": s.username,
		"hash":     FinalDigest(s.username, digest, challenge.Nonce),
	}
	var result LoginResult
	if err := s.caller.Call(ctx, "login", params, &result); err != nil {
		return s.fail("login", err)
	}
	if result.SID == "" {
		return s.fail("login", &rpc.MalformedError{Err: errors.New("login reply missing sid")})
	}

	s.mu.Lock()
	s.token = result.SID
	s.mu.Unlock()
	return nil
}

// Call invokes fn through the router's "call" method with params
// [token, args..., fn, {}]. An unauthorized reply clears the token before
// the error is returned.
func (s *Session) Call(ctx context.Context, fn string, args []any, out any) error {
	token := s.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	params := make([]any, 0, len(args)+3)
	params = append(params, token)
	params = append(params, args...)
	params = append(params, fn, map[string]any{})

	err := s.caller.Call(ctx, "call", params, out)
	if errors.Is(err, rpc.ErrUnauthorized) {
		s.expire(token)
	}
	return err
}

// Authenticated reports whether the session holds a token.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Token returns the current session id, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Reset drops the token without contacting the router.
func (s *Session) Reset() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *Session) fail(step string, err error) error {
	s.Reset()
	return &AuthError{Step: step, Err: err}
}

// expire clears token only if no newer login replaced it meanwhile.
func (s *Session) expire(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.token = ""
	}
}
