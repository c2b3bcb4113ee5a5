// Package glinet is a client for the status API of GL.iNet routers.
package glinet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rexliu/glwatch/pkg/auth"
	"github.com/rexliu/glwatch/pkg/rpc"
)

const (
	DefaultAddress  = "192.168.8.1"
	DefaultUsername = "root"
	DefaultTimeout  = 10 * time.Second
)

// ErrInterfaceNotFound reports an interface missing from the system status,
// e.g. tethering on hardware without a USB modem.
var ErrInterfaceNotFound = errors.New("glinet: interface not found")

// Client composes an auth session with the named status queries.
type Client struct {
	session *auth.Session
}

// NewClient returns a client for the router at address (host or base URL).
func NewClient(address, username string, timeout time.Duration) *Client {
	if address == "" {
		address = DefaultAddress
	}
	if username == "" {
		username = DefaultUsername
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	caller := rpc.NewClient(rpc.NewHTTPTransport(address, timeout))
	return NewClientWithSession(auth.NewSession(caller, username))
}

// NewClientWithSession wraps an existing session.
func NewClientWithSession(session *auth.Session) *Client {
	return &Client{session: session}
}

// Session exposes the underlying auth session.
func (c *Client) Session() *auth.Session {
	return c.session
}

// Login authenticates the session; see auth.Session.Login.
func (c *Client) Login(ctx context.Context, password string) error {
	return c.session.Login(ctx, password)
}

// Authenticated reports whether the session holds a token.
func (c *Client) Authenticated() bool {
	return c.session.Authenticated()
}

// DetailedTetheringStatus queries get_status "tethering".
func (c *Client) DetailedTetheringStatus(ctx context.Context) (TetheringStatus, error) {
	return getStatus[TetheringStatus](ctx, c, SubsystemTethering)
}

// DetailedEthernetStatus queries get_status "cable".
func (c *Client) DetailedEthernetStatus(ctx context.Context) (EthernetStatus, error) {
	return getStatus[EthernetStatus](ctx, c, SubsystemCable)
}

// SystemStatus queries get_status "system".
func (c *Client) SystemStatus(ctx context.Context) (SystemStatus, error) {
	return getStatus[SystemStatus](ctx, c, SubsystemSystem)
}

// Uplinks fetches the system status once and selects both tracked links.
func (c *Client) Uplinks(ctx context.Context) (Uplinks, error) {
	sys, err := c.SystemStatus(ctx)
	if err != nil {
		return Uplinks{}, err
	}
	ethernet, err := sys.Ethernet()
	if err != nil {
		return Uplinks{}, err
	}
	tethering, err := sys.Tethering()
	if err != nil {
		return Uplinks{}, err
	}
	return Uplinks{Ethernet: ethernet, Tethering: tethering}, nil
}

func getStatus[T any](ctx context.Context, c *Client, subsystem string) (T, error) {
	var out T
	if err := c.session.Call(ctx, "get_status", []any{subsystem}, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Interface returns the network entry named name.
func (s SystemStatus) Interface(name string) (NetworkStatus, error) {
	for _, status := range s.Network {
		if status.Interface == name {
			return status, nil
		}
	}
	return NetworkStatus{}, fmt.Errorf("%w: %q", ErrInterfaceNotFound, name)
}

// Ethernet returns the "wan" entry.
func (s SystemStatus) Ethernet() (NetworkStatus, error) {
	return s.Interface(InterfaceWAN)
}

// Tethering returns the "tethering" entry.
func (s SystemStatus) Tethering() (NetworkStatus, error) {
	return s.Interface(InterfaceTethering)
}
