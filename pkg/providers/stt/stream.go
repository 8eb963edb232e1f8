// Package stt implements the persistent streaming speech-to-text client
// contract consumed by pkg/session (spec §4.1).
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// Config mirrors the Deepgram-style connection parameters named in spec §6:
// interim results on, endpointing/utterance-end thresholds, VAD events on,
// smart formatting on.
type Config struct {
	APIKey         string
	Model          string
	SampleRate     int
	EndpointingMS  int
	UtteranceEndMS int
	Host           string // overridable for tests
	Scheme         string // "wss" in production, "ws" against a plain-HTTP test server
}

// Stream is the streaming STT client. It owns transcript-consolidation
// bookkeeping (transcript_parts/current_interim, spec §4.1) and exposes the
// callback registrations pkg/session.STTClient expects.
type Stream struct {
	cfg Config

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	transcriptParts []string
	currentInterim  string

	onSpeechStarted func()
	onInterim       func(string)
	onFinal         func(string, bool)
	onEnded         func(string)
}

// New constructs a Stream. Dial happens in Start.
func New(cfg Config) *Stream {
	if cfg.Host == "" {
		cfg.Host = "api.deepgram.com"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 8000
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.EndpointingMS == 0 {
		cfg.EndpointingMS = 300
	}
	if cfg.UtteranceEndMS == 0 {
		cfg.UtteranceEndMS = 1000
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "wss"
	}
	return &Stream{cfg: cfg}
}

// Start opens the persistent connection with interim-results, VAD events,
// endpointing, and utterance-end configured as query parameters, then
// spawns the read loop.
func (s *Stream) Start(ctx context.Context) error {
	q := url.Values{}
	q.Set("model", s.cfg.Model)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("endpointing", strconv.Itoa(s.cfg.EndpointingMS))
	q.Set("utterance_end_ms", strconv.Itoa(s.cfg.UtteranceEndMS))
	q.Set("vad_events", "true")
	q.Set("smart_format", "true")

	u := url.URL{Scheme: s.cfg.Scheme, Host: s.cfg.Host, Path: "/v1/listen", RawQuery: q.Encode()}
	header := map[string][]string{"Authorization": {"Token " + s.cfg.APIKey}}
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("stt: failed to connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	go s.readLoop(ctx)
	return nil
}

// wireMessage is the subset of Deepgram's listen-v1 message shapes this
// client recognizes by "type" discriminator.
type wireMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal      bool `json:"is_final"`
	SpeechFinal  bool `json:"speech_final"`
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		_, payload, err := s.conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
			return
		}
		s.dispatch(payload)
	}
}

func (s *Stream) dispatch(payload []byte) {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "SpeechStarted":
		if s.onSpeechStarted != nil {
			s.onSpeechStarted()
		}
	case "Results":
		s.handleResults(msg)
	case "UtteranceEnd":
		s.handleUtteranceEnd()
	}
}

func (s *Stream) handleResults(msg wireMessage) {
	if len(msg.Channel.Alternatives) == 0 {
		return
	}
	transcript := msg.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return
	}

	s.mu.Lock()
	if msg.IsFinal {
		s.transcriptParts = append(s.transcriptParts, transcript)
	} else {
		s.currentInterim = transcript
	}
	s.mu.Unlock()

	if msg.IsFinal && s.onFinal != nil {
		s.onFinal(transcript, msg.SpeechFinal)
	} else if !msg.IsFinal && s.onInterim != nil {
		s.onInterim(transcript)
	}

	if msg.SpeechFinal {
		s.emitSpeechEnded()
	}
}

func (s *Stream) handleUtteranceEnd() {
	s.emitSpeechEnded()
}

// emitSpeechEnded composes full_transcript = join(transcript_parts, " ")
// and clears both buffers, per spec §4.1. Firing with nothing accumulated
// is a silent no-op: the second of a speech_final/utterance_end pair that
// races the first consolidation is naturally idempotent because the first
// call already cleared the buffer.
func (s *Stream) emitSpeechEnded() {
	s.mu.Lock()
	full := strings.TrimSpace(strings.Join(s.transcriptParts, " "))
	s.transcriptParts = nil
	s.currentInterim = ""
	s.mu.Unlock()

	if full == "" {
		return
	}
	if s.onEnded != nil {
		s.onEnded(full)
	}
}

// Send forwards one inbound audio frame. Silently dropped if not
// connected (spec §4.1 Failures).
func (s *Stream) Send(frame []byte) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		return nil
	}
	if err := conn.Write(context.Background(), websocket.MessageBinary, frame); err != nil {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		return nil
	}
	return nil
}

// Close tears down the connection. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

// IsConnected reports current connection health.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Stream) OnSpeechStarted(cb func())                       { s.onSpeechStarted = cb }
func (s *Stream) OnInterimTranscript(cb func(text string))        { s.onInterim = cb }
func (s *Stream) OnFinalTranscript(cb func(text string, sf bool)) { s.onFinal = cb }
func (s *Stream) OnSpeechEnded(cb func(full string))              { s.onEnded = cb }

// Name identifies the backing vendor, matching the teacher's provider
// Name() convention.
func (s *Stream) Name() string { return "deepgram-stt" }
