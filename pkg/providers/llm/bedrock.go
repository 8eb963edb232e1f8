// Package llm implements the streaming chat-completion client (spec
// §4.3) plus the one-shot Completer backends used for the greeting
// bootstrap.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultSystemPrompt is the fallback system prompt used when neither a
// caller-supplied prompt nor a successful bootstrap generation is
// available (spec §4.3 Greeting bootstrap, §7).
const DefaultSystemPrompt = `You are a helpful AI assistant on a phone call. Follow these guidelines:

1. Keep responses concise and natural - speak as you would in a real conversation
2. Use short sentences that are easy to speak and understand
3. Avoid lists, bullet points, or complex formatting - use flowing speech
4. Don't use special characters, emojis, or markdown
5. If you don't understand something, ask for clarification naturally
6. Be friendly, warm, and conversational
7. Acknowledge what the caller said before responding
8. End responses naturally without asking unnecessary follow-up questions

You're here to help the caller with their request.`

// textPattern scans raw bytes for `"text":"…"` fragments emitted by
// Bedrock's converse-stream wire format (spec §4.3 point 3, §9).
var textPattern = regexp.MustCompile(`"text":"((?:[^"\\]|\\.)*)"`)

type message struct {
	Role    string
	Content string
}

// Config holds Bedrock connection parameters (spec §6).
type Config struct {
	APIKey      string
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	BaseURL     string // overridable for tests
	HTTPClient  *http.Client
}

// Bedrock is the primary streaming LLM client implementing
// session.LLMClient.
type Bedrock struct {
	cfg Config

	mu           sync.Mutex
	systemPrompt string
	greeting     string
	messages     []message
}

// New constructs a Bedrock client. Its system prompt is
// DefaultSystemPrompt until SetSystemPrompt is called.
func New(cfg Config) *Bedrock {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 50
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "us.amazon.nova-pro-v1:0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s", cfg.Region, cfg.ModelID)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Bedrock{cfg: cfg, systemPrompt: DefaultSystemPrompt}
}

func (b *Bedrock) SetSystemPrompt(prompt string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systemPrompt = prompt
}

func (b *Bedrock) SetGreeting(greeting string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.greeting = greeting
}

type wireRequest struct {
	Messages       []wireMessage  `json:"messages"`
	InferenceConfig wireInference `json:"inferenceConfig"`
	System         []wireText     `json:"system,omitempty"`
}

type wireMessage struct {
	Role    string     `json:"role"`
	Content []wireText `json:"content"`
}

type wireText struct {
	Text string `json:"text"`
}

type wireInference struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

// GenerateStream implements spec §4.3: appends the user turn to history,
// issues a streaming converse request, and invokes onFragment per the
// sentence/40-char chunking policy. Remote failures are recovered into an
// apology fragment rather than surfaced as an error, per spec §7's rule that
// an LLM failure still counts as a completed assistant turn. Errors are
// returned only for context cancellation (barge-in) or when onFragment
// itself fails while emitting the apology.
func (b *Bedrock) GenerateStream(ctx context.Context, userText string, onFragment func(string) error) (string, error) {
	b.mu.Lock()
	systemPrompt := b.systemPrompt
	if b.greeting != "" && len(b.messages) == 0 {
		systemPrompt = fmt.Sprintf("%s\n\nYou just said to the caller: \"%s\"\nNow respond to their reply.", systemPrompt, b.greeting)
		b.greeting = ""
	}
	b.messages = append(b.messages, message{Role: "user", Content: userText})
	wireMessages := make([]wireMessage, len(b.messages))
	for i, m := range b.messages {
		wireMessages[i] = wireMessage{Role: m.Role, Content: []wireText{{Text: m.Content}}}
	}
	cfg := b.cfg
	b.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(wireRequest{
		Messages:        wireMessages,
		InferenceConfig: wireInference{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature},
		System:          []wireText{{Text: systemPrompt}},
	})
	if err != nil {
		return b.recordApology(ctx, onFragment, "I'm sorry, I'm having trouble responding.")
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.BaseURL+"/converse-stream", bytes.NewReader(body))
	if err != nil {
		return b.recordApology(ctx, onFragment, "I'm sorry, I'm having trouble responding.")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return b.recordApology(ctx, onFragment, "I'm sorry, I'm having trouble connecting.")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return b.recordApology(ctx, onFragment, "I'm sorry, I'm having trouble connecting.")
	}

	full, chunkErr := b.streamChunks(ctx, resp.Body, onFragment)
	if chunkErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return b.recordApology(ctx, onFragment, "I'm sorry, I'm having trouble responding.")
	}

	if strings.TrimSpace(full) == "" {
		return b.recordApology(ctx, onFragment, "I'm sorry, could you repeat that?")
	}

	b.mu.Lock()
	b.messages = append(b.messages, message{Role: "assistant", Content: full})
	b.mu.Unlock()
	return full, nil
}

// streamChunks reads the chunked body, scans for "text":"…" fragments, and
// yields at sentence boundaries or after 40 characters ending in a space
// (spec §4.3 point 4).
func (b *Bedrock) streamChunks(ctx context.Context, body io.Reader, onFragment func(string) error) (string, error) {
	var buf bytes.Buffer
	var full strings.Builder
	var pending strings.Builder
	chunk := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			return full.String(), ctx.Err()
		}
		n, readErr := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			raw := buf.Bytes()

			matches := textPattern.FindAllSubmatchIndex(raw, -1)
			consumed := 0
			for _, m := range matches {
				text, ok := decodeFragment(raw[m[2]:m[3]])
				consumed = m[1]
				if !ok || text == "" {
					continue
				}
				full.WriteString(text)
				pending.WriteString(text)

				trimmed := strings.TrimRight(pending.String(), " \t")
				endsSentence := strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?")
				endsWithSpace := strings.HasSuffix(text, " ")

				if endsSentence {
					if err := onFragment(pending.String()); err != nil {
						return full.String(), err
					}
					pending.Reset()
				} else if pending.Len() > 40 && endsWithSpace {
					if err := onFragment(pending.String()); err != nil {
						return full.String(), err
					}
					pending.Reset()
				}
			}
			if consumed > 0 {
				buf.Next(consumed)
			}
		}
		if readErr != nil {
			break
		}
	}

	if pending.Len() > 0 {
		if err := onFragment(pending.String()); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

func (b *Bedrock) recordApology(ctx context.Context, onFragment func(string) error, apology string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err := onFragment(apology); err != nil {
		return "", err
	}
	b.mu.Lock()
	b.messages = append(b.messages, message{Role: "assistant", Content: apology})
	b.mu.Unlock()
	return apology, nil
}

// decodeFragment undoes the escape sequences applied by the remote JSON
// framing (spec §4.3 point 3: "decode escape sequences, skip malformed
// fragments"). Malformed fragments are skipped rather than propagated, per
// the graceful-on-malformed-bytes design note in spec §9.
func decodeFragment(raw []byte) (string, bool) {
	quoted := "\"" + string(raw) + "\""
	var out string
	if err := json.Unmarshal([]byte(quoted), &out); err != nil {
		return "", false
	}
	return out, true
}

func (b *Bedrock) Name() string { return fmt.Sprintf("bedrock-%s", b.cfg.ModelID) }
