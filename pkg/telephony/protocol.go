// Package telephony implements the inbound WebSocket media-streaming
// protocol (spec §6) and the single-coroutine-per-connection endpoint loop
// that bridges it to pkg/session and pkg/manager.
package telephony

// InboundEvent is the wire shape of every JSON text frame telephony sends.
// Fields not relevant to a given event's type are left zero. Grounded on
// TwilioMessage in the Lexiq voice-gateway's stream_manager.go, adapted to
// the start/media/stop/mark/connected event names this spec uses rather
// than Twilio's camelCase dialect.
type InboundEvent struct {
	Event         string        `json:"event"`
	StreamID      string        `json:"stream_id,omitempty"`
	CallControlID string        `json:"call_control_id,omitempty"`
	Media         *InboundMedia `json:"media,omitempty"`
	Name          string        `json:"name,omitempty"` // mark event
}

// InboundMedia carries one base64-encoded µ-law 8kHz mono audio frame.
// Only track "inbound" (caller audio) is consumed; "outbound" echoes the
// bot's own audio back from the telephony provider and is discarded.
type InboundMedia struct {
	Track   string `json:"track"`
	Payload string `json:"payload"`
}

// OutboundMedia wraps one synthesized audio frame for delivery back to the
// telephony provider (spec §6).
type OutboundMedia struct {
	Event    string             `json:"event"`
	StreamID string             `json:"stream_id"`
	Media    OutboundMediaFrame `json:"media"`
}

// OutboundMediaFrame is the payload field of OutboundMedia.
type OutboundMediaFrame struct {
	Payload string `json:"payload"`
}

const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"

	TrackInbound  = "inbound"
	TrackOutbound = "outbound"
)
