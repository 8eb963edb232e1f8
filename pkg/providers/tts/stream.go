// Package tts implements the streaming text-to-speech client contract
// consumed by pkg/session (spec §4.2).
package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/coder/websocket"
)

// flushChars are the sentence-boundary characters that trigger an implicit
// flush after Send, per spec §4.2.
var flushChars = map[rune]struct{}{'.': {}, '!': {}, '?': {}, ':': {}, ';': {}}

func endsWithFlushChar(text string) bool {
	if text == "" {
		return false
	}
	r := []rune(text)
	_, ok := flushChars[r[len(r)-1]]
	return ok
}

func endsWithSpaceOrFlushChar(text string) bool {
	if text == "" {
		return false
	}
	if endsWithFlushChar(text) {
		return true
	}
	r := []rune(text)
	return unicode.IsSpace(r[len(r)-1])
}

// Config carries the vendor connection parameters.
type Config struct {
	APIKey     string
	Model      string
	SampleRate int
	Host       string
	Scheme     string // "wss" in production, "ws" against a plain-HTTP test server
}

// Stream is the streaming TTS client. It holds a single persistent
// connection (opened lazily on first Send, mirroring lokutor.go's
// getConn) and surfaces audio/flushed events via registered callbacks.
type Stream struct {
	cfg Config

	mu        sync.Mutex
	conn      *websocket.Conn
	active    bool
	cancelled bool

	onAudio   func([]byte)
	onFlushed func()
}

// New constructs a Stream.
func New(cfg Config) *Stream {
	if cfg.Host == "" {
		cfg.Host = "api.deepgram.com"
	}
	if cfg.Model == "" {
		cfg.Model = "aura-2-thalia-en"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 8000
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "wss"
	}
	return &Stream{cfg: cfg}
}

func (s *Stream) getConn(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}

	q := url.Values{}
	q.Set("model", s.cfg.Model)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", fmt.Sprintf("%d", s.cfg.SampleRate))
	u := url.URL{Scheme: s.cfg.Scheme, Host: s.cfg.Host, Path: "/v1/speak", RawQuery: q.Encode()}

	header := map[string][]string{"Authorization": {"Token " + s.cfg.APIKey}}
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("tts: failed to connect: %w", err)
	}

	s.conn = conn
	go s.readLoop(conn)
	return conn, nil
}

type controlMessage struct {
	Type string `json:"type"`
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			return
		}

		switch messageType {
		case websocket.MessageBinary:
			// Immediately forward audio, no rebuffering (spec §4.2); a
			// frame that arrives after cancel is surfaced anyway — the
			// Session is responsible for dropping late arrivals by
			// checking IsActive in its own callback, per spec §4.4.
			s.mu.Lock()
			cb := s.onAudio
			s.mu.Unlock()
			if cb != nil {
				cb(payload)
			}
		case websocket.MessageText:
			var msg controlMessage
			if json.Unmarshal(payload, &msg) == nil && msg.Type == "Flushed" {
				s.mu.Lock()
				s.active = false
				cb := s.onFlushed
				s.mu.Unlock()
				if cb != nil {
					cb()
				}
			}
		}
	}
}

// Send appends text to the remote synthesizer; if text ends with a flush
// character, implicitly issues a flush after sending (spec §4.2).
func (s *Stream) Send(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	conn, err := s.getConn(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	req := map[string]interface{}{"type": "Text", "text": text}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		return fmt.Errorf("tts: failed to send text: %w", err)
	}

	if endsWithFlushChar(text) {
		return s.Flush(ctx)
	}
	return nil
}

// Stream pumps fragments off the channel, sending the accumulated pending
// text whenever a fragment ends with a space or a flush character, and
// sends any final residue followed by an explicit flush once the channel
// closes (spec §4.2's stream(fragment_iter) operation). It is a thin
// wrapper over Send/Flush; callers that already chunk text into
// sentence-sized fragments (pkg/session drives TTS directly off the LLM's
// own chunk boundaries) have no need for it, but it gives fragment_iter's
// own boundary policy a standalone, directly-testable home.
func (s *Stream) Stream(ctx context.Context, fragments <-chan string) error {
	var pending strings.Builder
	for frag := range fragments {
		pending.WriteString(frag)
		if endsWithSpaceOrFlushChar(frag) {
			text := pending.String()
			pending.Reset()
			if err := s.Send(ctx, text); err != nil {
				return err
			}
		}
	}
	if pending.Len() > 0 {
		if err := s.Send(ctx, pending.String()); err != nil {
			return err
		}
	}
	return s.Flush(ctx)
}

// Flush explicitly asks the remote to emit any buffered audio.
func (s *Stream) Flush(ctx context.Context) error {
	conn, err := s.getConn(ctx)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]interface{}{"type": "Flush"})
	return conn.Write(ctx, websocket.MessageText, body)
}

// Clear instructs the remote to discard all pending synthesis immediately
// (barge-in).
func (s *Stream) Clear(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	body, _ := json.Marshal(map[string]interface{}{"type": "Clear"})
	return conn.Write(ctx, websocket.MessageText, body)
}

// Cancel sets the local cancellation flag and issues Clear.
func (s *Stream) Cancel(ctx context.Context) {
	s.mu.Lock()
	s.cancelled = true
	s.active = false
	s.mu.Unlock()
	_ = s.Clear(ctx)
}

// ResetCancel clears the cancellation flag at the start of a new turn.
func (s *Stream) ResetCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = false
}

// IsActive reports whether synthesis is in flight and not cancelled.
func (s *Stream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && !s.cancelled
}

// Close tears down the connection. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Stream) OnAudio(cb func([]byte)) { s.mu.Lock(); s.onAudio = cb; s.mu.Unlock() }
func (s *Stream) OnFlushed(cb func())     { s.mu.Lock(); s.onFlushed = cb; s.mu.Unlock() }

// Name identifies the backing vendor, matching the teacher's provider
// Name() convention.
func (s *Stream) Name() string { return "deepgram-tts" }
