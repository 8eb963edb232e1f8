package telephony

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fernwave-ai/voicebridge/pkg/manager"
	"github.com/fernwave-ai/voicebridge/pkg/providers/llm"
)

// Logger is the narrow logging surface the endpoint depends on.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type noOpLogger struct{}

func (noOpLogger) Debug(string, ...interface{}) {}
func (noOpLogger) Info(string, ...interface{})  {}
func (noOpLogger) Warn(string, ...interface{})  {}
func (noOpLogger) Error(string, ...interface{}) {}

// pollInterval is the WebSocket receive timeout in the drain+receive loop
// (spec §4.6): frequent enough to keep the drain loop responsive, coarse
// enough not to busy-spin.
const pollInterval = 50 * time.Millisecond

// drainBatch is the max number of TTS frames flushed to telephony per
// outer loop iteration (spec §4.4 Drain loop).
const drainBatch = 5

// upgrader mirrors the Lexiq voice-gateway's stream_manager.go upgrader:
// generous buffers for 20ms µ-law frames, permissive CheckOrigin because
// telephony providers don't send browser-style Origin headers.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Endpoint serves the telephony media-streaming WebSocket (spec §4.6, §6).
// One Endpoint instance is shared across all connections; per-connection
// state (stream id, call id) lives entirely on the goroutine stack of
// ServeHTTP, matching the spec's "single coroutine per connection" model.
type Endpoint struct {
	mgr       *manager.Manager
	bootstrap llm.Bootstrap
	log       Logger
}

// NewEndpoint constructs an Endpoint. bootstrap is the pre-generated
// greeting/system-prompt pair (spec §4.3) injected into every Session this
// endpoint creates; log may be nil.
func NewEndpoint(mgr *manager.Manager, bootstrap llm.Bootstrap, log Logger) *Endpoint {
	if log == nil {
		log = noOpLogger{}
	}
	return &Endpoint{mgr: mgr, bootstrap: bootstrap, log: log}
}

// ServeHTTP upgrades the connection and runs the accept/drain/receive loop
// described in spec §4.6.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	e.log.Info("telephony websocket connected")

	var streamID string
	ctx := r.Context()

	defer func() {
		if streamID != "" {
			if err := e.mgr.Close(streamID); err != nil {
				e.log.Error("error closing session on disconnect", "streamID", streamID, "error", err)
			}
		}
	}()

	for {
		e.drainTTS(conn, streamID)

		conn.SetReadDeadline(time.Now().Add(pollInterval))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				e.log.Warn("websocket read error", "error", err)
			} else {
				e.log.Info("telephony websocket disconnected")
			}
			return
		}

		var evt InboundEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			e.log.Error("malformed telephony frame", "error", err)
			continue
		}

		switch evt.Event {
		case EventConnected:
			e.log.Info("telephony stream connected")

		case EventStart:
			streamID = evt.StreamID
			if streamID == "" {
				streamID = uuid.NewString()
			}
			e.log.Info("stream started", "streamID", streamID, "callControlID", evt.CallControlID)
			if _, err := e.mgr.Create(ctx, evt.CallControlID, streamID, e.bootstrap); err != nil {
				e.log.Error("failed to create session", "streamID", streamID, "error", err)
			}

		case EventMedia:
			if evt.Media == nil || evt.Media.Track != TrackInbound || evt.Media.Payload == "" {
				continue
			}
			if streamID == "" {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(evt.Media.Payload)
			if err != nil {
				e.log.Error("invalid base64 media payload", "error", err)
				continue
			}
			if err := e.mgr.HandleMedia(streamID, frame); err != nil {
				e.log.Warn("handle media failed", "streamID", streamID, "error", err)
			}

		case EventStop:
			e.log.Info("stream stopped", "streamID", streamID)
			if streamID != "" {
				if err := e.mgr.Close(streamID); err != nil {
					e.log.Error("error closing session on stop", "streamID", streamID, "error", err)
				}
			}
			return

		case EventMark:
			e.log.Debug("mark event", "name", evt.Name)
		}
	}
}

// drainTTS flushes up to drainBatch synthesized audio frames to telephony,
// each wrapped as an OutboundMedia event (spec §4.4 Drain loop). A no-op
// before the session exists.
func (e *Endpoint) drainTTS(conn *websocket.Conn, streamID string) {
	if streamID == "" {
		return
	}
	sess := e.mgr.Lookup(streamID)
	if sess == nil {
		return
	}

	for _, frame := range sess.DrainTTS(drainBatch) {
		msg := OutboundMedia{
			Event:    EventMedia,
			StreamID: streamID,
			Media:    OutboundMediaFrame{Payload: base64.StdEncoding.EncodeToString(frame)},
		}
		if err := conn.WriteJSON(msg); err != nil {
			e.log.Error("error sending tts audio", "streamID", streamID, "error", err)
			return
		}
	}
}
