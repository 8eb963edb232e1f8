package telephony

import (
	"encoding/json"
	"net/http"
)

// WebhookEvent is the decoded shape of a telephony provider's HTTP webhook
// POST body (spec §6): {data: {event_type, payload: {call_control_id, ...}}}.
type WebhookEvent struct {
	Data WebhookEventData `json:"data"`
}

// WebhookEventData holds the event type and its payload.
type WebhookEventData struct {
	EventType string          `json:"event_type"`
	Payload   WebhookPayload  `json:"payload"`
}

// WebhookPayload carries the fields this spec's webhook handlers read.
// Other provider-specific fields are ignored.
type WebhookPayload struct {
	CallControlID string `json:"call_control_id"`
	StreamID      string `json:"stream_id"`
	Result        string `json:"result"`
}

const (
	WebhookCallAnswered       = "call.answered"
	WebhookCallHangup         = "call.hangup"
	WebhookStreamingStarted   = "streaming.started"
	WebhookMachineDetectEnded = "call.machine.detection.ended"
)

// CallController is the subset of an outbound call manager's behavior the
// webhook handler needs: starting media streaming once a call is answered.
// Out of core scope (spec §6) — this is a contract for a host embedding
// this module with telephony call-placement, not something this module
// implements end-to-end. Grounded on call_manager.py's handle_webhook_event/
// start_media_streaming split.
type CallController interface {
	StartMediaStreaming(callControlID string) error
}

// WebhookHandler decodes a telephony webhook POST and, on call.answered,
// asks the CallController to start media streaming. Every other event type
// is accepted and logged but otherwise a no-op at this layer; session
// lifecycle transitions (answered/hangup/streaming started) are driven by
// the media WebSocket's own start/stop events, not by the webhook.
type WebhookHandler struct {
	controller CallController
	log        Logger
}

// NewWebhookHandler constructs a WebhookHandler. controller may be nil, in
// which case call.answered events are accepted but not acted on.
func NewWebhookHandler(controller CallController, log Logger) *WebhookHandler {
	if log == nil {
		log = noOpLogger{}
	}
	return &WebhookHandler{controller: controller, log: log}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var evt WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		h.log.Error("malformed webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
		return
	}

	h.log.Info("webhook event", "eventType", evt.Data.EventType, "callControlID", evt.Data.Payload.CallControlID)

	if evt.Data.EventType == WebhookCallAnswered && h.controller != nil {
		if err := h.controller.StartMediaStreaming(evt.Data.Payload.CallControlID); err != nil {
			h.log.Error("failed to start media streaming", "callControlID", evt.Data.Payload.CallControlID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
