package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"appraiser/internal/model"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 16 * time.Second
)

// WebSocketFeed reads posts from a websocket endpoint and reconnects with
// capped exponential backoff when the connection drops.
type WebSocketFeed struct {
	url       string
	subscribe string
	logger    *slog.Logger
	dialer    *websocket.Dialer
}

// NewWebSocketFeed creates a new WebSocketFeed. subscribe, when non-empty,
// is sent as a text message after every successful connect.
func NewWebSocketFeed(url, subscribe string, logger *slog.Logger) *WebSocketFeed {
	return &WebSocketFeed{
		url:       url,
		subscribe: subscribe,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
	}
}

func (f *WebSocketFeed) Name() string {
	return "websocket"
}

// Stream connects to the endpoint and forwards every text message as a post.
func (f *WebSocketFeed) Stream(ctx context.Context, out chan<- model.Post) error {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			f.logger.Info("WebSocketFeed: context cancelled, shutting down")
			return nil
		}

		f.logger.Info("WebSocketFeed: connecting", "url", f.url, "backoff", backoff)
		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.logger.Error("WebSocketFeed: connection failed", "error", err)
			if !wait(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		// Reset backoff on successful connection
		backoff = initialBackoff

		if f.subscribe != "" {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f.subscribe)); err != nil {
				f.logger.Error("WebSocketFeed: failed to send subscription", "error", err)
				conn.Close()
				if !wait(ctx, backoff) {
					return nil
				}
				backoff = nextBackoff(backoff)
				continue
			}
			f.logger.Info("WebSocketFeed: subscription sent")
		}

		err = f.readLoop(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			f.logger.Info("WebSocketFeed: context cancelled, connection closed")
			return nil
		}
		f.logger.Error("WebSocketFeed: connection lost", "error", err)
		if !wait(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff)
	}
}

// readLoop forwards messages until the connection fails or ctx ends.
func (f *WebSocketFeed) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- model.Post) error {
	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		text, ok := decodePayload(message)
		if !ok {
			f.logger.Debug("WebSocketFeed: ignoring message without text", "message", string(message))
			continue
		}

		post := model.Post{Source: f.url, Text: text, ReceivedAt: time.Now().UTC()}
		select {
		case out <- post:
			f.logger.Debug("WebSocketFeed: sent post", "length", len(text))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodePayload accepts either a JSON object with a "text" field or a raw
// text message. JSON objects without text are control messages.
func decodePayload(message []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(message))
	if trimmed == "" {
		return "", false
	}

	if strings.HasPrefix(trimmed, "{") {
		var msg struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(trimmed), &msg); err == nil {
			if msg.Text == nil {
				return "", false
			}
			text := strings.TrimSpace(*msg.Text)
			return text, text != ""
		}
	}
	return trimmed, true
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
