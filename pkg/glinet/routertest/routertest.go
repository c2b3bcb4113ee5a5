// Package routertest runs an in-process fake GL.iNet router for tests.
package routertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/rexliu/glwatch/pkg/auth"
	"github.com/rexliu/glwatch/pkg/glinet"
	"github.com/rexliu/glwatch/pkg/rpc"
)

// Router speaks the challenge/login/call protocol over /rpc.
type Router struct {
	Username  string
	Password  string
	Algorithm auth.Algorithm
	Salt      string

	srv *httptest.Server

	mu        sync.Mutex
	nonce     int
	challenge string
	sessions  map[string]bool
	nextSID   int
	network   []glinet.NetworkStatus
	ethernet  glinet.EthernetStatus
	tethering glinet.TetheringStatus
	counts    map[string]int
	failNext  *rpc.ErrorBody
	replies   map[string]json.RawMessage
}

// New starts a router accepting root/password with SHA256-crypt.
func New(password string) *Router {
	r := &Router{
		Username:  "root",
		Password:  password,
		Algorithm: auth.SHA256Crypt,
		Salt:      "s1",
		sessions:  make(map[string]bool),
		counts:    make(map[string]int),
		replies:   make(map[string]json.RawMessage),
		network: []glinet.NetworkStatus{
			{Interface: glinet.InterfaceWAN, Online: true, Up: true},
			{Interface: "lan", Online: true, Up: true},
			{Interface: glinet.InterfaceTethering, Online: false, Up: true},
		},
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

// URL is the base URL to hand to glinet.NewClient.
func (r *Router) URL() string { return r.srv.URL }

// Close stops the server.
func (r *Router) Close() { r.srv.Close() }

// SetNetwork replaces the system status interface list.
func (r *Router) SetNetwork(network ...glinet.NetworkStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.network = network
}

// SetDetails sets the detailed cable and tethering payloads.
func (r *Router) SetDetails(ethernet glinet.EthernetStatus, tethering glinet.TetheringStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ethernet = ethernet
	r.tethering = tethering
}

// SetAlgorithm changes the crypt scheme announced in challenges.
func (r *Router) SetAlgorithm(alg auth.Algorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Algorithm = alg
}

// ExpireSessions invalidates every issued sid, as a router reboot or idle timeout would.
func (r *Router) ExpireSessions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]bool)
}

// FailNext makes the next request of any method return an error reply.
func (r *Router) FailNext(code int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = &rpc.ErrorBody{Code: code, Message: message}
}

// ReplyNext makes the next request for method succeed with result verbatim,
// bypassing the usual handling.
func (r *Router) ReplyNext(method, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[method] = json.RawMessage(result)
}

// Count returns how many requests used method ("challenge", "login", "call").
func (r *Router) Count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[method]
}

type request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (r *Router) serve(w http.ResponseWriter, hr *http.Request) {
	if hr.URL.Path != "/rpc" || hr.Method != http.MethodPost {
		http.NotFound(w, hr)
		return
	}
	var req request
	if err := json.NewDecoder(hr.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[req.Method]++

	if r.failNext != nil {
		body := *r.failNext
		r.failNext = nil
		writeJSON(w, rpc.ErrorResponse{ID: req.ID, JSONRPC: rpc.Version, Error: body})
		return
	}

	if raw, ok := r.replies[req.Method]; ok {
		delete(r.replies, req.Method)
		writeJSON(w, rpc.Response[json.RawMessage]{ID: req.ID, JSONRPC: rpc.Version, Result: raw})
		return
	}

	result, body := r.dispatch(req)
	if body != nil {
		writeJSON(w, rpc.ErrorResponse{ID: req.ID, JSONRPC: rpc.Version, Error: *body})
		return
	}
	writeJSON(w, rpc.Response[any]{ID: req.ID, JSONRPC: rpc.Version, Result: result})
}

func (r *Router) dispatch(req request) (any, *rpc.ErrorBody) {
	switch req.Method {
	case "challenge":
		r.nonce++
		r.challenge = fmt.Sprintf("nonce-%d", r.nonce)
		return auth.Challenge{Algorithm: r.Algorithm, Nonce: r.challenge, Salt: r.Salt}, nil
	case "login":
		var params struct {
			Username string `json:"username"`
			Hash     string `json:"hash"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams()
		}
		if !r.validHash(params.Username, params.Hash) {
			return nil, accessDenied()
		}
		r.challenge = ""
		r.nextSID++
		sid := fmt.Sprintf("sid-%d", r.nextSID)
		r.sessions[sid] = true
		return auth.LoginResult{SID: sid, Username: params.Username}, nil
	case "call":
		return r.call(req.Params)
	default:
		return nil, &rpc.ErrorBody{Code: -32601, Message: "Method not found"}
	}
}

func (r *Router) validHash(username, hash string) bool {
	if username != r.Username || r.challenge == "" {
		return false
	}
	digest, err := auth.Digest(r.Algorithm, r.Password, r.Salt)
	if err != nil {
		return false
	}
	return hash == auth.FinalDigest(username, digest, r.challenge)
}

func (r *Router) call(raw json.RawMessage) (any, *rpc.ErrorBody) {
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil || len(params) < 3 {
		return nil, invalidParams()
	}
	var sid, fn string
	if json.Unmarshal(params[0], &sid) != nil || !r.sessions[sid] {
		return nil, accessDenied()
	}
	if json.Unmarshal(params[len(params)-2], &fn) != nil || fn != "get_status" || len(params) != 4 {
		return nil, invalidParams()
	}
	var subsystem string
	if json.Unmarshal(params[1], &subsystem) != nil {
		return nil, invalidParams()
	}
	switch subsystem {
	case glinet.SubsystemSystem:
		return glinet.SystemStatus{Network: append([]glinet.NetworkStatus{}, r.network...)}, nil
	case glinet.SubsystemCable:
		return r.ethernet, nil
	case glinet.SubsystemTethering:
		return r.tethering, nil
	default:
		return nil, invalidParams()
	}
}

func accessDenied() *rpc.ErrorBody {
	return &rpc.ErrorBody{Code: -32000, Message: rpc.AccessDenied}
}

func invalidParams() *rpc.ErrorBody {
	return &rpc.ErrorBody{Code: -32602, Message: "Invalid params"}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
