package session

import (
	"context"
	"sync"
)

// fakeSTT is a minimal in-memory STTClient double, in the style of the
// teacher's MockSTTProvider (pkg/orchestrator/orchestrator_test.go).
type fakeSTT struct {
	mu          sync.Mutex
	connected   bool
	sent        [][]byte
	onStarted   func()
	onInterim   func(string)
	onFinal     func(string, bool)
	onEnded     func(string)
	startErr    error
}

func (f *fakeSTT) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSTT) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeSTT) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSTT) OnSpeechStarted(cb func())                       { f.onStarted = cb }
func (f *fakeSTT) OnInterimTranscript(cb func(text string))        { f.onInterim = cb }
func (f *fakeSTT) OnFinalTranscript(cb func(text string, sf bool)) { f.onFinal = cb }
func (f *fakeSTT) OnSpeechEnded(cb func(full string))              { f.onEnded = cb }

func (f *fakeSTT) fireSpeechStarted() {
	if f.onStarted != nil {
		f.onStarted()
	}
}

func (f *fakeSTT) fireSpeechEnded(text string) {
	if f.onEnded != nil {
		f.onEnded(text)
	}
}

// fakeTTS is a minimal in-memory TTSClient double.
type fakeTTS struct {
	mu        sync.Mutex
	active    bool
	cancelled bool
	sent      []string
	flushes   int
	clears    int
	sendErr   error
	onAudio   func([]byte)
	onFlushed func()
}

func (f *fakeTTS) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.active = true
	f.cancelled = false
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeTTS) Stream(ctx context.Context, fragments <-chan string) error {
	for frag := range fragments {
		if err := f.Send(ctx, frag); err != nil {
			return err
		}
	}
	return f.Flush(ctx)
}

func (f *fakeTTS) Flush(ctx context.Context) error {
	f.mu.Lock()
	f.flushes++
	cb := f.onFlushed
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeTTS) Clear(ctx context.Context) error {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
	return nil
}

func (f *fakeTTS) Cancel(ctx context.Context) {
	f.mu.Lock()
	f.cancelled = true
	f.active = false
	f.mu.Unlock()
	_ = f.Clear(ctx)
}

func (f *fakeTTS) ResetCancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = false
}

func (f *fakeTTS) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active && !f.cancelled
}

func (f *fakeTTS) Close() error { return nil }

func (f *fakeTTS) OnAudio(cb func([]byte)) { f.onAudio = cb }
func (f *fakeTTS) OnFlushed(cb func())     { f.onFlushed = cb }

func (f *fakeTTS) deliverAudio(n int) {
	for i := 0; i < n; i++ {
		if f.onAudio != nil {
			f.onAudio([]byte{byte(i)})
		}
	}
}

// fakeLLM is a minimal in-memory LLMClient double.
type fakeLLM struct {
	mu           sync.Mutex
	systemPrompt string
	greeting     string
	response     string
	err          error
	blockUntil   chan struct{}
}

func (f *fakeLLM) SetSystemPrompt(p string) { f.systemPrompt = p }
func (f *fakeLLM) SetGreeting(g string)     { f.greeting = g }

func (f *fakeLLM) GenerateStream(ctx context.Context, userText string, onFragment func(string) error) (string, error) {
	if f.blockUntil != nil {
		select {
		case <-f.blockUntil:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		// Real LLM clients recover remote failures into an apology turn
		// (spec §4.3 point 6, §7); GenerateStream itself returns an error
		// only for context cancellation or a failing onFragment.
		apology := "I'm sorry, could you repeat that?"
		if err := onFragment(apology); err != nil {
			return "", err
		}
		return apology, nil
	}
	if err := onFragment(f.response); err != nil {
		return "", err
	}
	return f.response, nil
}
