package glinet

import (
	"encoding/json"

	"github.com/rexliu/glwatch/pkg/rpc"
)

// Subsystems accepted by get_status.
const (
	SubsystemTethering = "tethering"
	SubsystemCable     = "cable"
	SubsystemSystem    = "system"
)

// Interface names reported in the system status network list.
const (
	InterfaceWAN       = "wan"
	InterfaceTethering = "tethering"
)

// IPv4 is the addressing block of a WAN-like interface.
type IPv4 struct {
	Gateway string   `json:"gateway"`
	DNS     []string `json:"dns"`
	IP      string   `json:"ip"`
}

// Status is common to the detailed interface payloads.
type Status struct {
	Status int  `json:"status"`
	IPv4   IPv4 `json:"ipv4"`
}

// SecondWAN describes the cable port's secondary WAN mode.
type SecondWAN struct {
	Mode int `json:"mode"`
}

// EthernetStatus is the get_status "cable" payload.
type EthernetStatus struct {
	Status
	Protocol  string    `json:"protocol"`
	SecondWAN SecondWAN `json:"secondwan"`
	Mode      int       `json:"mode"`
}

// TetheringDevice is a USB or phone device the router can tether through.
type TetheringDevice struct {
	Device string `json:"device"`
	Type   int    `json:"type"`
	Use    bool   `json:"use"`
}

// TetheringStatus is the get_status "tethering" payload.
type TetheringStatus struct {
	Status
	Devices []TetheringDevice `json:"devices"`
}

// NetworkStatus is one interface entry of the system status.
// Up means the link is available, Online that it is carrying traffic.
type NetworkStatus struct {
	Interface string `json:"interface"`
	Online    bool   `json:"online"`
	Up        bool   `json:"up"`
}

// UnmarshalJSON rejects an entry missing interface, online or up.
func (n *NetworkStatus) UnmarshalJSON(data []byte) error {
	if err := rpc.RequireFields(data, "interface", "online", "up"); err != nil {
		return err
	}
	type plain NetworkStatus
	return json.Unmarshal(data, (*plain)(n))
}

// SystemStatus is the get_status "system" payload. Only the network list is
// interpreted; the other members are kept raw.
type SystemStatus struct {
	Client  json.RawMessage   `json:"client,omitempty"`
	Network []NetworkStatus   `json:"network"`
	Service []json.RawMessage `json:"service,omitempty"`
	System  json.RawMessage   `json:"system,omitempty"`
}

// UnmarshalJSON rejects a payload without a network list.
func (s *SystemStatus) UnmarshalJSON(data []byte) error {
	if err := rpc.RequireFields(data, "network"); err != nil {
		return err
	}
	type plain SystemStatus
	return json.Unmarshal(data, (*plain)(s))
}

// Uplinks pairs the two links the monitor tracks.
type Uplinks struct {
	Ethernet  NetworkStatus `json:"ethernet"`
	Tethering NetworkStatus `json:"tethering"`
}
