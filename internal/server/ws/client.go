package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one websocket connection and the channels it listens to.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBuffer),
		subs: make(map[string]bool, len(DefaultChannels)),
	}
	for _, ch := range DefaultChannels {
		c.subs[ch] = true
	}
	return c
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

// hello queues the greeting frame. Called from the hub loop before any
// broadcast reaches the client.
func (c *client) hello(mode string, started time.Time) {
	c.mu.RLock()
	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	c.mu.RUnlock()

	frame, err := json.Marshal(map[string]any{
		"type":        "hello",
		"mode":        mode,
		"started_at":  started.UTC().Format(time.RFC3339),
		"server_time": time.Now().UTC().Format(time.RFC3339),
		"channels":    channels,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// readLoop handles subscribe/unsubscribe messages and pongs until the
// connection fails, then deregisters the client.
func (c *client) readLoop() {
	defer func() {
		select {
		case c.hub.leaves <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg subscribeMsg
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		c.apply(msg)
	}
}

func (c *client) apply(msg subscribeMsg) {
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			if !c.hub.ensureChannel(ch) {
				c.hub.logger.Debug("ws: subscription rejected", slog.String("channel", ch))
				continue
			}
			c.mu.Lock()
			c.subs[ch] = true
			c.mu.Unlock()
		}
	case "unsubscribe":
		c.mu.Lock()
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
		c.mu.Unlock()
	}
}

// writeLoop drains send and keeps the connection alive with pings. A closed
// send channel ends the connection with a close frame.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
