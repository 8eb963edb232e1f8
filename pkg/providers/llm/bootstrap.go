package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Completer is a one-shot, non-streaming chat-completion backend. The
// teacher's anthropic.go/openai.go/google.go clients satisfy this shape
// exactly and are reused here for the two auxiliary bootstrap prompts
// (spec §4.3 Greeting bootstrap) rather than for in-call turns, which
// always go through the primary streaming Bedrock client.
type Completer interface {
	Complete(ctx context.Context, messages []Msg) (string, error)
	Name() string
}

// Msg is a minimal role/content pair, independent of pkg/session.Turn so
// this package has no dependency on the session state machine.
type Msg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPromptMetaPromptTemplate = `You are creating a system prompt for a voice AI agent that will make a phone call.

The purpose of this call is: %s

Generate a concise system prompt (max 200 words) that:
1. Defines the agent's role and goal for THIS specific call
2. Sets appropriate guardrails for professional conduct
3. Instructs the agent to be conversational and natural
4. Reminds the agent to keep responses short (suitable for voice)
5. Includes any relevant context for the call purpose

Output ONLY the system prompt text, nothing else. Do not include any meta-commentary.`

const greetingMetaPromptTemplate = `Generate a brief, natural opening greeting for a phone call.

The purpose of this call is: %s

Requirements:
- Keep it under 20 words
- Be friendly and professional
- Introduce yourself as an AI assistant
- Naturally lead into the call purpose
- Do NOT ask "how can I help you" - you know why you're calling

Output ONLY the greeting text, nothing else.`

// Bootstrap holds the result of the greeting bootstrap (spec §4.3, §4.5).
type Bootstrap struct {
	SystemPrompt string
	Greeting     string
}

// RunBootstrap generates the tailored system prompt and opening greeting
// for a call purpose, in parallel, via golang.org/x/sync/errgroup. Either
// generation failing independently falls back to its own default rather
// than failing the whole bootstrap (spec §7 Greeting bootstrap failure).
func RunBootstrap(ctx context.Context, completer Completer, purpose string) Bootstrap {
	var result Bootstrap
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result.SystemPrompt = generateSystemPrompt(gctx, completer, purpose)
		return nil
	})
	g.Go(func() error {
		result.Greeting = generateGreeting(gctx, completer, purpose)
		return nil
	})
	_ = g.Wait()
	return result
}

func generateSystemPrompt(ctx context.Context, completer Completer, purpose string) string {
	fallback := fmt.Sprintf("%s\n\nCall purpose: %s", DefaultSystemPrompt, purpose)
	if completer == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	meta := fmt.Sprintf(systemPromptMetaPromptTemplate, purpose)
	text, err := completer.Complete(ctx, []Msg{{Role: "user", Content: meta}})
	if err != nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

func generateGreeting(ctx context.Context, completer Completer, purpose string) string {
	fallback := fmt.Sprintf("Hello, this is an AI assistant calling about %s.", purpose)
	if completer == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	meta := fmt.Sprintf(greetingMetaPromptTemplate, purpose)
	text, err := completer.Complete(ctx, []Msg{{Role: "user", Content: meta}})
	if err != nil {
		return fallback
	}
	greeting := strings.Trim(strings.TrimSpace(text), `"'`)
	if greeting == "" {
		return fallback
	}
	return greeting
}
