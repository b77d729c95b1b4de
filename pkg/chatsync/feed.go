package chatsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventHandler receives change-feed row snapshots. Store implements it.
type EventHandler interface {
	HandleMessageInsert(message Message)
	HandleConversationInsert(conversation Conversation)
	HandleConversationUpdate(conversation Conversation)
}

type changeEvent struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Row   json.RawMessage `json:"row"`
}

const feedPingInterval = 30 * time.Second

// FeedConn subscribes to the backend's websocket change feed and dispatches
// decoded events to an EventHandler.
type FeedConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// DialFeed connects to the change feed at the given API base URL (http or
// https scheme; rewritten to ws/wss).
func DialFeed(ctx context.Context, baseURL, token string) (*FeedConn, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path += "/api/v1/ws"
	parsed.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, parsed.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial feed: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		_ = conn.Close()
		return nil, fmt.Errorf("dial feed: unexpected status %d", resp.StatusCode)
	}

	return &FeedConn{conn: conn}, nil
}

// Listen reads events until the connection drops or Close is called. It
// blocks, so callers usually run it on its own goroutine.
func (f *FeedConn) Listen(handler EventHandler) error {
	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(done)

	for {
		_, payload, err := f.conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			closed := f.closed
			f.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}

		var event changeEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("chatsync: drop malformed feed frame: %v", err)
			continue
		}

		switch {
		case event.Table == "messages" && event.Type == "insert":
			var message Message
			if err := json.Unmarshal(event.Row, &message); err != nil {
				log.Printf("chatsync: drop malformed message row: %v", err)
				continue
			}
			handler.HandleMessageInsert(message)
		case event.Table == "conversations" && event.Type == "insert":
			var conversation Conversation
			if err := json.Unmarshal(event.Row, &conversation); err != nil {
				log.Printf("chatsync: drop malformed conversation row: %v", err)
				continue
			}
			handler.HandleConversationInsert(conversation)
		case event.Table == "conversations" && event.Type == "update":
			var conversation Conversation
			if err := json.Unmarshal(event.Row, &conversation); err != nil {
				log.Printf("chatsync: drop malformed conversation row: %v", err)
				continue
			}
			handler.HandleConversationUpdate(conversation)
		default:
			// pong frames and unknown tables
		}
	}
}

func (f *FeedConn) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.closed {
				f.mu.Unlock()
				return
			}
			err := f.conn.WriteJSON(map[string]string{"type": "ping"})
			f.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (f *FeedConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.conn.Close()
}
