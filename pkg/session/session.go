// Package session implements the per-call state machine described in
// spec §3-§5: it multiplexes one STT, one TTS, and one LLM streaming
// client, gates inbound audio across phases, detects barge-in, and
// preserves conversation turn ordering.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Logger is the narrow logging surface the session package depends on,
// matching internal/logging.Logger so callers can pass either a real
// *internal/logging logger or a test double without importing zerolog.
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

// greetingQueueThreshold / greetingFirstWait / greetingDrainTick /
// greetingDrainBound / greetingSettle implement the Greeting protocol
// thresholds and timing from spec §4.4. Left as package variables
// (not untyped consts) so tests can shrink them instead of sleeping real
// wall-clock seconds.
var (
	greetingQueueThreshold = 10
	greetingFirstWait      = time.Second
	greetingDrainTick      = 20 * time.Millisecond
	greetingDrainBound     = 10 * time.Second
	greetingSettle         = 500 * time.Millisecond
)

// Session is one call's orchestration state machine (spec §3).
type Session struct {
	CallID   string
	StreamID string

	stt STTClient
	tts TTSClient
	llm LLMClient
	log Logger

	mu            sync.Mutex
	phase         Phase
	sttGate       bool
	bargeinArmed  bool
	ttsSentChunks int
	conversation  []Turn
	greetingText  string
	systemPrompt  string

	preGreetingBuffer *frameQueue
	ttsOutQueue       *frameQueue

	turnCancel context.CancelFunc
	turnDone   chan struct{}

	closeOnce sync.Once
	closed    bool
}

// New constructs a Session in the Connecting phase and wires the STT/TTS
// callbacks. stt/tts/llm must be non-nil.
func New(callID, streamID string, stt STTClient, tts TTSClient, llm LLMClient, log Logger) (*Session, error) {
	if stt == nil || tts == nil || llm == nil {
		return nil, ErrNilProvider
	}
	if log == nil {
		log = noOpLogger{}
	}
	s := &Session{
		CallID:            callID,
		StreamID:          streamID,
		stt:               stt,
		tts:               tts,
		llm:               llm,
		log:               log,
		phase:             Connecting,
		preGreetingBuffer: newFrameQueue(PreGreetingBufferCap),
		ttsOutQueue:       newFrameQueue(TTSOutQueueCap),
	}
	g := gatesFor(Connecting)
	s.sttGate, s.bargeinArmed = g.sttGate, g.bargeinArmed

	stt.OnSpeechStarted(s.handleSpeechStarted)
	stt.OnSpeechEnded(s.handleSpeechEnded)
	tts.OnAudio(s.handleTTSAudio)
	tts.OnFlushed(s.handleTTSFlushed)
	return s, nil
}

// SetSystemPrompt and SetGreeting configure the pre-generated bootstrap
// material from spec §4.3/§4.5, forwarding the system prompt to the LLM
// client and recording the greeting text for the Greeting phase.
func (s *Session) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	s.systemPrompt = prompt
	s.mu.Unlock()
	s.llm.SetSystemPrompt(prompt)
}

func (s *Session) SetGreeting(greeting string) {
	s.mu.Lock()
	s.greetingText = greeting
	s.mu.Unlock()
	s.llm.SetGreeting(greeting)
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Conversation returns a copy of the turn history.
func (s *Session) Conversation() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.conversation))
	copy(out, s.conversation)
	return out
}

func (s *Session) setPhase(p Phase) {
	g := gatesFor(p)
	s.phase = p
	s.sttGate = g.sttGate
	s.bargeinArmed = g.bargeinArmed
	s.log.Info("phase transition", "callID", s.CallID, "phase", string(p))
}

// Open starts the STT client. TTS clients in this design connect lazily on
// first Send, mirroring pkg/providers/tts.Stream's behavior, so Open only
// needs to bring STT up before audio can be gated through to it. On
// failure the Session remains in Connecting per spec §4.5/§7; the caller
// (Session Manager) is responsible for eventually closing it on `stop`.
func (s *Session) Open(ctx context.Context) error {
	if err := s.stt.Start(ctx); err != nil {
		s.log.Error("stt open failed", "callID", s.CallID, "error", err)
		return ErrSTTFailed
	}
	return nil
}

// EnterGreeting clears the pre-greeting buffer, speaks the greeting text,
// and blocks (on the caller's goroutine) until the Greeting protocol
// completes and the phase has advanced to Listening. Spec §4.4.
func (s *Session) EnterGreeting(ctx context.Context) error {
	s.mu.Lock()
	s.preGreetingBuffer.Clear()
	s.setPhase(Greeting)
	greeting := s.greetingText
	s.mu.Unlock()

	if strings.TrimSpace(greeting) == "" {
		greeting = "Hello, this is an AI assistant calling."
	}
	if err := s.tts.Send(ctx, greeting); err != nil {
		return err
	}
	if err := s.tts.Flush(ctx); err != nil {
		return err
	}

	deadline := time.NewTimer(greetingFirstWait)
	defer deadline.Stop()
waitForStart:
	for {
		if s.ttsOutQueue.Len() > greetingQueueThreshold {
			break waitForStart
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			break waitForStart
		case <-time.After(greetingDrainTick):
		}
	}

	drainDeadline := time.Now().Add(greetingDrainBound)
	for s.ttsOutQueue.Len() > 0 {
		if time.Now().After(drainDeadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(greetingDrainTick):
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(greetingSettle):
	}

	s.mu.Lock()
	s.setPhase(Listening)
	s.mu.Unlock()
	return nil
}

// HandleInboundMedia applies the gate policy of spec §4.4/§4.5 to one
// inbound audio frame.
func (s *Session) HandleInboundMedia(frame []byte) {
	s.mu.Lock()
	phase := s.phase
	gate := s.sttGate
	s.mu.Unlock()

	switch {
	case gate:
		if err := s.stt.Send(frame); err != nil {
			s.log.Warn("stt send failed", "callID", s.CallID, "error", err)
		}
	case phase == Connecting:
		s.preGreetingBuffer.Push(frame)
	default:
		// Greeting (and Terminated): discard per the gate table.
	}
}

// handleSpeechStarted implements the barge-in rule of spec §4.4.
func (s *Session) handleSpeechStarted() {
	s.mu.Lock()
	phase := s.phase
	armed := s.bargeinArmed
	chunks := s.ttsSentChunks
	s.mu.Unlock()

	if !armed || (phase != Thinking && phase != Speaking) {
		return
	}
	if chunks <= BargeInChunkThreshold {
		s.log.Debug("speech_started below chunk threshold, ignoring", "callID", s.CallID, "chunks", chunks)
		return
	}
	s.triggerBargeIn()
}

func (s *Session) triggerBargeIn() {
	s.mu.Lock()
	cancel := s.turnCancel
	s.turnCancel = nil
	s.ttsOutQueue.Clear()
	s.ttsSentChunks = 0
	s.setPhase(Listening)
	s.mu.Unlock()

	s.log.Info("barge-in triggered", "callID", s.CallID)
	if cancel != nil {
		cancel()
	}
	s.tts.Cancel(context.Background())
}

// handleSpeechEnded is the turn trigger (spec §4.4): bound to the STT
// client's already-consolidated speech_ended event, which fires for both
// speech_final and utterance_end. Idempotent against empty transcripts and
// against a second firing while a turn is already in flight.
func (s *Session) handleSpeechEnded(fullTranscript string) {
	text := strings.TrimSpace(fullTranscript)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.phase != Listening {
		// A turn is already in flight (e.g. speech_final immediately
		// followed by utterance_end); second firing is a no-op.
		s.mu.Unlock()
		return
	}
	s.conversation = append(s.conversation, Turn{Role: RoleUser, Text: text})
	s.setPhase(Thinking)
	s.ttsSentChunks = 0
	s.tts.ResetCancel()

	turnCtx, cancel := context.WithCancel(context.Background())
	s.turnCancel = cancel
	done := make(chan struct{})
	s.turnDone = done
	s.mu.Unlock()

	go s.runTurn(turnCtx, done, text)
}

func (s *Session) runTurn(ctx context.Context, done chan struct{}, userText string) {
	defer close(done)

	full, err := s.llm.GenerateStream(ctx, userText, func(fragment string) error {
		return s.tts.Send(ctx, fragment)
	})

	s.mu.Lock()
	if s.turnCancel != nil {
		s.turnCancel = nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Barge-in already transitioned the phase and cleared state;
			// no assistant turn is appended (spec §3 turn-ordering
			// invariant, §7 error handling).
			s.mu.Unlock()
			return
		}
		s.log.Error("llm generation failed", "callID", s.CallID, "error", err)
		// No assistant turn was recorded, but the caller is still on the
		// line: return the session to Listening so a later speech_started/
		// speech_ended can still drive it, instead of stranding it in
		// Thinking with no TTS audio ever in flight to barge in on.
		if s.phase == Thinking || s.phase == Speaking {
			s.setPhase(Listening)
		}
		s.mu.Unlock()
		return
	}

	s.conversation = append(s.conversation, Turn{Role: RoleAssistant, Text: full})
	s.mu.Unlock()
	// Flush outside the lock: a TTS client may invoke its Flushed callback
	// synchronously, and handleTTSFlushed takes s.mu.
	_ = s.tts.Flush(ctx)
}

// handleTTSAudio is the TTS client's on_audio callback. Late audio
// arriving after cancel is dropped per spec §4.4/§5.
func (s *Session) handleTTSAudio(frame []byte) {
	if !s.tts.IsActive() {
		return
	}
	s.ttsOutQueue.Push(frame)

	s.mu.Lock()
	s.ttsSentChunks++
	if s.phase == Thinking {
		s.setPhase(Speaking)
	}
	s.mu.Unlock()
}

// handleTTSFlushed is the TTS client's on_complete callback.
func (s *Session) handleTTSFlushed() {
	s.mu.Lock()
	if s.phase == Speaking {
		s.setPhase(Listening)
	}
	s.mu.Unlock()
}

// DrainTTS returns up to n queued outbound audio frames, in FIFO order,
// for the WebSocket endpoint's drain loop (spec §4.6).
func (s *Session) DrainTTS(n int) [][]byte {
	return s.ttsOutQueue.PopFront(n)
}

// Close idempotently cancels any in-flight turn, closes the STT/TTS
// clients, and transitions to Terminated (spec §3 Lifecycles, §5 Resource
// scoping).
func (s *Session) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel := s.turnCancel
		s.turnCancel = nil
		s.setPhase(Terminated)
		s.ttsOutQueue.Clear()
		s.preGreetingBuffer.Clear()
		s.closed = true
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		var wg sync.WaitGroup
		var sttErr, ttsErr error
		wg.Add(2)
		go func() { defer wg.Done(); sttErr = s.stt.Close() }()
		go func() { defer wg.Done(); ttsErr = s.tts.Close() }()
		wg.Wait()

		if sttErr != nil {
			firstErr = sttErr
		} else if ttsErr != nil {
			firstErr = ttsErr
		}
	})
	return firstErr
}
