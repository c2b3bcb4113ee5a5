package core

import "time"

// LinkState records whether an uplink could carry traffic and whether it did.
type LinkState struct {
	Available bool `json:"available"`
	Used      bool `json:"used"`
}

// Sample is one poll of the router's uplinks.
type Sample struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Tethering LinkState `json:"tethering"`
	Ethernet  LinkState `json:"ethernet"`
}

// Active names the uplink in use: "ethernet", "tethering", "both" or "none".
func (s Sample) Active() string {
	switch {
	case s.Ethernet.Used && s.Tethering.Used:
		return "both"
	case s.Ethernet.Used:
		return "ethernet"
	case s.Tethering.Used:
		return "tethering"
	default:
		return "none"
	}
}

// HistoryQuery selects stored samples, newest first.
type HistoryQuery struct {
	Since time.Time `json:"since,omitempty"`
	Until time.Time `json:"until,omitempty"`
	Limit int       `json:"limit,omitempty"`
}
