package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
	feedBuffer     = 64
)

type feedClient struct {
	pattern string
	send    chan []byte
}

// Feed is a websocket hub. It is a Publisher that pushes every envelope to
// connected clients and an http.Handler that accepts them. Clients choose
// a topic pattern with the "topic" query parameter. A client that cannot
// keep up loses messages rather than stalling publication.
type Feed struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

func NewFeed(log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      log,
		clients:  make(map[*feedClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) Publish(ctx context.Context, topic string, event any) error {
	env, err := NewEnvelope(topic, event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		if !MatchTopic(c.pattern, topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			f.log.Warn("websocket client lagging, dropping event", "topic", topic)
		}
	}
	return nil
}

func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		close(c.send)
		delete(f.clients, c)
	}
	return nil
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Info("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &feedClient{pattern: r.URL.Query().Get("topic"), send: make(chan []byte, feedBuffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	f.log.Debug("websocket client connected", "remote", r.RemoteAddr, "topic", c.pattern)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reads only detect the peer going away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingPeriod)
	defer func() {
		ping.Stop()
		f.remove(c)
		conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
}
