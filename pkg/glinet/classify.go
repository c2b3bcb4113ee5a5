package glinet

import (
	"errors"

	"github.com/rexliu/glwatch/pkg/auth"
	"github.com/rexliu/glwatch/pkg/rpc"
)

// Kind is the failure class of an error returned by this client.
type Kind int

const (
	KindOK Kind = iota
	KindUnauthorized
	KindRemote
	KindMalformed
	KindTransport
	KindAuth
	KindConfig
	KindNotAuthenticated
	KindInterfaceNotFound
	KindOther
)

var kindNames = [...]string{
	KindOK:                "ok",
	KindUnauthorized:      "unauthorized",
	KindRemote:            "remote",
	KindMalformed:         "malformed",
	KindTransport:         "transport",
	KindAuth:              "auth",
	KindConfig:            "config",
	KindNotAuthenticated:  "not_authenticated",
	KindInterfaceNotFound: "interface_not_found",
	KindOther:             "other",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Classify maps err to exactly one Kind. Handshake failures are KindAuth even
// when the router answered "Access denied", except an unsupported hash
// algorithm, which no retry can fix and is KindConfig.
func Classify(err error) Kind {
	var (
		authErr   *auth.AuthError
		remoteErr *rpc.RemoteError
		transport *rpc.TransportError
	)
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, auth.ErrUnsupportedAlgorithm):
		return KindConfig
	case errors.As(err, &authErr):
		return KindAuth
	case errors.Is(err, rpc.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, auth.ErrNotAuthenticated):
		return KindNotAuthenticated
	case errors.As(err, &remoteErr):
		return KindRemote
	case errors.Is(err, rpc.ErrMalformedResponse):
		return KindMalformed
	case errors.As(err, &transport):
		return KindTransport
	case errors.Is(err, ErrInterfaceNotFound):
		return KindInterfaceNotFound
	default:
		return KindOther
	}
}
