package session

import "context"

const (
	// PreGreetingBufferCap bounds the FIFO of inbound audio received before
	// STT is ready (spec §3).
	PreGreetingBufferCap = 500
	// TTSOutQueueCap bounds the FIFO of synthesized audio awaiting
	// transmission to telephony (spec §3).
	TTSOutQueueCap = 1000
	// BargeInChunkThreshold: a speech_started event only triggers barge-in
	// once more than this many TTS frames have been delivered in the
	// current Speaking phase (spec §4.4).
	BargeInChunkThreshold = 10
)

// Role identifies the speaker of a conversation Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the Session's conversation history (spec §3).
type Turn struct {
	Role Role
	Text string
}

// STTClient is the persistent streaming speech-to-text client contract
// (spec §4.1). Implementations own connection lifecycle and the
// transcript-consolidation bookkeeping described there; Session only reacts
// to the two callbacks it registers.
type STTClient interface {
	// Start opens the connection. Must be called once before Send.
	Start(ctx context.Context) error
	// Send forwards one inbound audio frame. Silently dropped if not
	// connected (spec §4.1 Failures).
	Send(frame []byte) error
	// Close tears down the connection. Idempotent.
	Close() error
	// IsConnected reports current connection health.
	IsConnected() bool

	// OnSpeechStarted registers the callback for remote VAD voice onset.
	OnSpeechStarted(cb func())
	// OnInterimTranscript registers the callback for partial text.
	OnInterimTranscript(cb func(text string))
	// OnFinalTranscript registers the callback for a finalized segment;
	// speechFinal signals end-of-utterance per endpointing.
	OnFinalTranscript(cb func(text string, speechFinal bool))
	// OnSpeechEnded registers the callback for the consolidated
	// end-of-utterance event (full_transcript already composed and
	// internal buffers already cleared by the implementation).
	OnSpeechEnded(cb func(fullTranscript string))
}

// TTSClient is the streaming text-to-speech client contract (spec §4.2).
type TTSClient interface {
	// Send appends text to the remote synthesizer; implicitly flushes if
	// text ends with a flush character.
	Send(ctx context.Context, text string) error
	// Stream pumps fragments off the channel, sending whenever a fragment
	// ends with a space or a flush character, and sends any final residue
	// followed by an explicit flush once the channel closes.
	Stream(ctx context.Context, fragments <-chan string) error
	// Flush explicitly asks the remote to emit any buffered audio.
	Flush(ctx context.Context) error
	// Clear discards all pending synthesis immediately (barge-in).
	Clear(ctx context.Context) error
	// Cancel sets the local cancellation flag and issues Clear. Audio
	// callbacks are no-ops until ResetCancel is called.
	Cancel(ctx context.Context)
	// ResetCancel clears the cancellation flag at the start of a new turn.
	ResetCancel()
	// IsActive reports whether synthesis is in flight and not cancelled.
	IsActive() bool
	// Close tears down the connection. Idempotent.
	Close() error

	// OnAudio registers the callback for binary audio frames.
	OnAudio(cb func(frame []byte))
	// OnFlushed registers the callback for the "Flushed" control event.
	OnFlushed(cb func())
}

// LLMClient is the streaming chat-completion client contract (spec §4.3).
// Implementations own system_prompt/messages history and the greeting
// first-call augmentation rule.
type LLMClient interface {
	// GenerateStream appends userText to history, issues a streaming
	// completion, and invokes onFragment for each chunked fragment per the
	// sentence/40-char policy. Returns the full completed text. On ctx
	// cancellation (barge-in) no assistant turn is recorded internally and
	// the returned error wraps context.Canceled.
	GenerateStream(ctx context.Context, userText string, onFragment func(string) error) (full string, err error)
	// SetGreeting records the already-spoken greeting so the first
	// GenerateStream call augments the system prompt per spec §4.3.
	SetGreeting(greeting string)
	// SetSystemPrompt replaces the immutable system prompt for the call.
	SetSystemPrompt(prompt string)
}
