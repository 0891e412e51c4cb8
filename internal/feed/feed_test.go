package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraiser/internal/config"
	"appraiser/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, ch <-chan model.Post) model.Post {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for post")
		return model.Post{}
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.FeedConfig{Kind: "websocket", URL: "ws://localhost"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "websocket", c.Name())

	c, err = NewClient(config.FeedConfig{Kind: "file", Path: "posts.txt"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "file", c.Name())

	_, err = NewClient(config.FeedConfig{Kind: "none"}, testLogger())
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = NewClient(config.FeedConfig{Kind: "carrier-pigeon"}, testLogger())
	assert.Error(t, err)
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
		ok      bool
	}{
		{"raw text", "  Byter en yran mot HK ", "Byter en yran mot HK", true},
		{"json text", `{"text":"Har två NSA","user":"x"}`, "Har två NSA", true},
		{"json control message", `{"event":"subscriptionStatus"}`, "", false},
		{"json empty text", `{"text":"  "}`, "", false},
		{"invalid json is raw text", `{not json`, "{not json", true},
		{"blank", "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodePayload([]byte(tt.message))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebSocketFeed_Stream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var subscribed atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribed.Store(string(sub))

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscriptionStatus"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"Har två NSA, byter mot ÖG"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("Byter tre skvalborg mot sunwing"))

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed := NewWebSocketFeed(wsURL(srv), `{"action":"subscribe"}`, testLogger())
	out := make(chan model.Post, 4)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Stream(ctx, out) }()

	first := receive(t, out)
	second := receive(t, out)
	assert.Equal(t, "Har två NSA, byter mot ÖG", first.Text)
	assert.Equal(t, "Byter tre skvalborg mot sunwing", second.Text)
	assert.Equal(t, wsURL(srv), first.Source)
	assert.False(t, first.ReceivedAt.IsZero())
	assert.Equal(t, `{"action":"subscribe"}`, subscribed.Load())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}
}

func TestWebSocketFeed_Reconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("post from connection "+string(rune('0'+n))))
		conn.Close()
	}))
	defer srv.Close()

	feed := NewWebSocketFeed(wsURL(srv), "", testLogger())
	out := make(chan model.Post, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = feed.Stream(ctx, out) }()

	assert.Equal(t, "post from connection 1", receive(t, out).Text)
	assert.Equal(t, "post from connection 2", receive(t, out).Text)
}

func TestWebSocketFeed_CancelledWhileDialFails(t *testing.T) {
	feed := NewWebSocketFeed("ws://127.0.0.1:1", "", testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, feed.Stream(ctx, make(chan model.Post)))
}

func TestNextBackoff(t *testing.T) {
	d := initialBackoff
	var seen []time.Duration
	for i := 0; i < 6; i++ {
		seen = append(seen, d)
		d = nextBackoff(d)
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second,
	}, seen)
}

func TestFileFeed_Stream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.txt")
	require.NoError(t, os.WriteFile(path, []byte("Har en yran, byter mot en Sunwing\n\n   \nByter tre skvalborg mot sunwing\n"), 0o600))

	out := make(chan model.Post, 4)
	require.NoError(t, NewFileFeed(path, testLogger()).Stream(context.Background(), out))
	close(out)

	var texts []string
	for p := range out {
		texts = append(texts, p.Text)
		assert.Equal(t, path, p.Source)
	}
	assert.Equal(t, []string{"Har en yran, byter mot en Sunwing", "Byter tre skvalborg mot sunwing"}, texts)
}

func TestFileFeed_Errors(t *testing.T) {
	err := NewFileFeed(filepath.Join(t.TempDir(), "missing.txt"), testLogger()).Stream(context.Background(), make(chan model.Post))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "posts.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o600))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, NewFileFeed(path, testLogger()).Stream(ctx, make(chan model.Post)))
}
