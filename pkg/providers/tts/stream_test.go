package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndsWithFlushChar(t *testing.T) {
	assert.True(t, endsWithFlushChar("Hello there."))
	assert.True(t, endsWithFlushChar("Really?"))
	assert.False(t, endsWithFlushChar("Hello there"))
	assert.False(t, endsWithFlushChar(""))
}

func TestStream_SendDeliversAudioThenFlushed(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		for i := 0; i < 2; i++ {
			_, payload, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, map[string]interface{}{"raw": string(payload)})
			mu.Unlock()
		}

		_ = conn.Write(r.Context(), websocket.MessageBinary, []byte{1, 2, 3})
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"type":"Flushed"}`))
		time.Sleep(30 * time.Millisecond)
	}))
	defer server.Close()

	s := New(Config{APIKey: "k", Host: strings.TrimPrefix(server.URL, "http://"), Scheme: "ws"})

	var audio []byte
	flushed := make(chan struct{})
	s.OnAudio(func(frame []byte) { audio = append(audio, frame...) })
	s.OnFlushed(func() { close(flushed) })

	require.NoError(t, s.Send(context.Background(), "Hello there."))

	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Flushed")
	}

	assert.Equal(t, []byte{1, 2, 3}, audio)
	assert.False(t, s.IsActive())
}

func TestStream_StreamSendsOnSpaceOrFlushCharAndFlushesAtClose(t *testing.T) {
	var mu sync.Mutex
	var received []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")
		for {
			_, payload, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, string(payload))
			mu.Unlock()
		}
	}))
	defer server.Close()

	s := New(Config{APIKey: "k", Host: strings.TrimPrefix(server.URL, "http://"), Scheme: "ws"})

	fragments := make(chan string, 4)
	fragments <- "Hold "
	fragments <- "on, "
	fragments <- "please."
	fragments <- "no boundary"
	close(fragments)

	require.NoError(t, s.Stream(context.Background(), fragments))

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	// "please." ends with a flush char, so Send itself issues an implicit
	// flush before the final fragment and Stream's own closing flush.
	require.Len(t, received, 6)
	assert.Contains(t, received[0], `"text":"Hold "`)
	assert.Contains(t, received[1], `"text":"on, "`)
	assert.Contains(t, received[2], `"text":"please."`)
	assert.Contains(t, received[3], `"type":"Flush"`)
	assert.Contains(t, received[4], `"text":"no boundary"`)
	assert.Contains(t, received[5], `"type":"Flush"`)
}

func TestStream_CancelDeactivatesUntilReset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	s := New(Config{APIKey: "k", Host: strings.TrimPrefix(server.URL, "http://"), Scheme: "ws"})
	require.NoError(t, s.Send(context.Background(), "partial"))
	assert.True(t, s.IsActive())

	s.Cancel(context.Background())
	assert.False(t, s.IsActive())

	s.ResetCancel()
	require.NoError(t, s.Send(context.Background(), "next"))
	assert.True(t, s.IsActive())
}
