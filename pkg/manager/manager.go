// Package manager implements the process-wide Session Manager: it creates
// and destroys pkg/session.Session instances keyed by telephony stream id,
// and injects the pre-generated greeting/system prompt bootstrap into each
// one (spec §4.5).
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/fernwave-ai/voicebridge/pkg/providers/llm"
	"github.com/fernwave-ai/voicebridge/pkg/session"
)

// Logger is the narrow logging surface the manager depends on, matching
// pkg/session.Logger and internal/logging.Logger.
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

// Factory builds the three streaming clients for one new call. The manager
// is deliberately ignorant of concrete provider types (coder/websocket
// dialers, Bedrock HTTP client, etc.) so it can be tested with fakes.
type Factory interface {
	NewSTT() session.STTClient
	NewTTS() session.TTSClient
	NewLLM() session.LLMClient
}

// entry bundles a live Session with the cancel func for its background
// open task, so Close can unwind both deterministically.
type entry struct {
	sess   *session.Session
	cancel context.CancelFunc
}

// Manager owns the stream_id -> Session map (spec §4.5). It is the only
// component permitted to mutate that map; callers reach Sessions exclusively
// through Create/HandleMedia/Lookup/Close.
type Manager struct {
	factory Factory
	log     Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// New constructs a Manager. log may be nil, in which case logging is a
// no-op.
func New(factory Factory, log Logger) *Manager {
	if log == nil {
		log = noOpLogger{}
	}
	return &Manager{
		factory:  factory,
		log:      log,
		sessions: make(map[string]*entry),
	}
}

// Create instantiates a Session for a newly-started telephony stream, wires
// its bootstrap greeting/system prompt, and spawns a background task that
// opens STT. On success the session enters Greeting; on failure it is
// logged and left in Connecting, to be torn down by a subsequent Close
// (spec §4.5).
//
// TTS in this design connects lazily on first Send (pkg/providers/tts.Stream),
// so the background task does not open TTS; there is no separate TTS
// handshake running alongside STT's dial.
func (m *Manager) Create(ctx context.Context, callID, streamID string, bootstrap llm.Bootstrap) (*session.Session, error) {
	stt := m.factory.NewSTT()
	tts := m.factory.NewTTS()
	llm := m.factory.NewLLM()

	sess, err := session.New(callID, streamID, stt, tts, llm, m.log)
	if err != nil {
		return nil, fmt.Errorf("manager: create session: %w", err)
	}
	sess.SetSystemPrompt(bootstrap.SystemPrompt)
	sess.SetGreeting(bootstrap.Greeting)

	openCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.sessions[streamID] = &entry{sess: sess, cancel: cancel}
	m.mu.Unlock()

	go m.openAndGreet(openCtx, sess, streamID)

	return sess, nil
}

func (m *Manager) openAndGreet(ctx context.Context, sess *session.Session, streamID string) {
	if err := sess.Open(ctx); err != nil {
		m.log.Error("session open failed, leaving in Connecting", "streamID", streamID, "error", err)
		return
	}
	if err := sess.EnterGreeting(ctx); err != nil {
		m.log.Error("greeting protocol failed", "streamID", streamID, "error", err)
	}
}

// HandleMedia forwards one inbound-track audio frame to the Session's gate
// policy. The gate decision (forward to STT, discard, or buffer) lives in
// Session.HandleInboundMedia; the manager only routes by stream id (spec
// §4.5).
func (m *Manager) HandleMedia(streamID string, payload []byte) error {
	sess := m.lookup(streamID)
	if sess == nil {
		return fmt.Errorf("manager: stream %s: %w", streamID, session.ErrNotConnected)
	}
	sess.HandleInboundMedia(payload)
	return nil
}

// Lookup returns the Session for a stream id, or nil if none is registered
// (e.g. after Close, or before the "start" event has arrived).
func (m *Manager) Lookup(streamID string) *session.Session {
	return m.lookup(streamID)
}

func (m *Manager) lookup(streamID string) *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[streamID]
	if !ok {
		return nil
	}
	return e.sess
}

// Close tears down the Session for a stream id: cancels its background open
// task, closes STT and TTS concurrently (via Session.Close), and removes it
// from the map. Idempotent — closing an unknown or already-closed stream id
// is a no-op (spec §4.5).
func (m *Manager) Close(streamID string) error {
	m.mu.Lock()
	e, ok := m.sessions[streamID]
	if ok {
		delete(m.sessions, streamID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	e.cancel()
	return e.sess.Close()
}

// Len reports the number of live sessions. Exposed for tests and metrics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
