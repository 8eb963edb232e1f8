package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBedrock_StreamChunks_FlushesOnSentenceBoundary(t *testing.T) {
	b := New(Config{})

	raw := `{"x":{"text":"This is a flowing response that keeps going "}}` +
		`{"x":{"text":"and now we end this sentence."}}`

	var got []string
	full, err := b.streamChunks(context.Background(), strings.NewReader(raw), func(frag string) error {
		got = append(got, frag)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d: %v", len(got), got)
	}
	if got[0] != "This is a flowing response that keeps going " {
		t.Errorf("expected first fragment to flush at the >40-char space boundary, got %q", got[0])
	}
	if got[1] != "and now we end this sentence." {
		t.Errorf("expected second fragment to flush at the sentence boundary, got %q", got[1])
	}
	if full != "This is a flowing response that keeps going and now we end this sentence." {
		t.Errorf("unexpected full text: %q", full)
	}
}

func TestBedrock_StreamChunks_FlushesLeftoverAtEOF(t *testing.T) {
	b := New(Config{})

	raw := `{"x":{"text":"no trailing punctuation here"}}`

	var got []string
	_, err := b.streamChunks(context.Background(), strings.NewReader(raw), func(frag string) error {
		got = append(got, frag)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "no trailing punctuation here" {
		t.Fatalf("expected leftover pending text flushed once at EOF, got %v", got)
	}
}

func TestBedrock_GenerateStream_AugmentsSystemPromptWithGreetingOnFirstCall(t *testing.T) {
	var capturedSystem string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.System) > 0 {
			capturedSystem = req.System[0].Text
		}
		fmt.Fprint(w, `{"x":{"text":"Sure, I can help with that."}}`)
	}))
	defer server.Close()

	b := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	b.SetGreeting("Hi, this is a test greeting.")

	full, err := b.GenerateStream(context.Background(), "hello", func(string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "Sure, I can help with that." {
		t.Errorf("unexpected completion text: %q", full)
	}

	if !strings.Contains(capturedSystem, "Hi, this is a test greeting.") {
		t.Errorf("expected system prompt to be augmented with the greeting, got %q", capturedSystem)
	}

	b.mu.Lock()
	greetingCleared := b.greeting == ""
	b.mu.Unlock()
	if !greetingCleared {
		t.Error("expected greeting to be cleared after first-call augmentation")
	}

	// A second call must not re-augment: capture system again.
	capturedSystem = ""
	if _, err := b.GenerateStream(context.Background(), "anything else", func(string) error { return nil }); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if strings.Contains(capturedSystem, "test greeting") {
		t.Errorf("expected second call's system prompt to skip greeting augmentation, got %q", capturedSystem)
	}
}

func TestBedrock_GenerateStream_ApologyOnRemoteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})

	var fragments []string
	full, err := b.GenerateStream(context.Background(), "hello", func(frag string) error {
		fragments = append(fragments, frag)
		return nil
	})
	if err != nil {
		t.Fatalf("expected apology fallback instead of an error, got: %v", err)
	}
	if full != "I'm sorry, I'm having trouble connecting." {
		t.Errorf("unexpected apology text: %q", full)
	}
	if len(fragments) != 1 || fragments[0] != full {
		t.Errorf("expected the apology to be emitted as a single fragment, got %v", fragments)
	}

	b.mu.Lock()
	lastRole := b.messages[len(b.messages)-1].Role
	lastContent := b.messages[len(b.messages)-1].Content
	b.mu.Unlock()
	if lastRole != "assistant" || lastContent != full {
		t.Errorf("expected the apology recorded as the assistant turn, got role=%q content=%q", lastRole, lastContent)
	}
}

func TestBedrock_GenerateStream_ContextCancelledReturnsErrorNotApology(t *testing.T) {
	b := New(Config{BaseURL: "http://127.0.0.1:0", HTTPClient: http.DefaultClient})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.GenerateStream(ctx, "hello", func(string) error { return nil })
	if err == nil {
		t.Fatal("expected an error on a pre-cancelled context")
	}
}
