// Package ws pushes signal bus traffic to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Connection timing. pingEvery must stay below readTimeout so a healthy
// client always answers before its read deadline.
const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingEvery    = readTimeout * 9 / 10

	maxFrameBytes = 4096
	clientBuffer  = 256

	// maxDynamicChannels caps per-challenge subscriptions opened on demand.
	maxDynamicChannels = 1024
)

// DefaultChannels are the bus channels every client receives on connect.
var DefaultChannels = []string{
	domain.ChannelChallenges,
	domain.ChannelTrades,
	domain.ChannelLifecycle,
}

// subscribeMsg is the JSON message a client sends to change subscriptions.
//
//	{"action":"subscribe","channels":["challenge:42"]}
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// envelope is the frame pushed to clients. Data is the bus payload verbatim.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type busMessage struct {
	channel string
	data    []byte
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// AllowedOrigins restricts browser origins; empty allows any. Requests
	// without an Origin header (non-browser clients) are always accepted.
	AllowedOrigins []string
}

// Hub fans bus messages out to the websocket clients subscribed to each
// channel. Per-challenge channels ("challenge:{id}") are subscribed on the
// bus the first time a client asks for them.
type Hub struct {
	bus      domain.SignalBus
	upgrader websocket.Upgrader
	logger   *slog.Logger
	mode     string
	started  time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}

	joins    chan *client
	leaves   chan *client
	messages chan busMessage
	done     chan struct{}

	subMu      sync.Mutex
	runCtx     context.Context
	subscribed map[string]bool
}

// NewHub creates a hub that bridges bus to websocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	h := &Hub{
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       strings.ToLower(strings.TrimSpace(cfg.Mode)),
		started:    cfg.StartedAt,
		clients:    make(map[*client]struct{}),
		joins:      make(chan *client),
		leaves:     make(chan *client),
		messages:   make(chan busMessage, clientBuffer),
		done:       make(chan struct{}),
		subscribed: make(map[string]bool),
	}
	if h.mode == "" {
		h.mode = "unknown"
	}
	if h.started.IsZero() {
		h.started = time.Now().UTC()
	}
	origins := slices.Clone(cfg.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(origins) == 0 || slices.Contains(origins, origin)
		},
	}
	return h
}

// Run subscribes to the default channels, then serves joins, leaves and bus
// messages until ctx is cancelled. A failed default subscription is returned
// before the loop starts.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	h.subMu.Lock()
	h.runCtx = ctx
	h.subMu.Unlock()

	for _, ch := range DefaultChannels {
		if err := h.subscribe(ctx, ch); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return nil
		case c := <-h.joins:
			h.add(c)
		case c := <-h.leaves:
			h.remove(c)
		case msg := <-h.messages:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws: client connected", slog.Int("total_clients", n))
	c.hello(h.mode, h.started)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// fanOut queues msg on every subscribed client. Clients whose buffer is full
// miss the message.
func (h *Hub) fanOut(msg busMessage) {
	frame, err := json.Marshal(envelope{Channel: msg.channel, Data: rawJSON(msg.data)})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(msg.channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("ws: slow client, message dropped", slog.String("channel", msg.channel))
		}
	}
}

// subscribe opens one bus subscription per channel and pumps it into the
// hub loop.
func (h *Hub) subscribe(ctx context.Context, channel string) error {
	h.subMu.Lock()
	if h.subscribed[channel] {
		h.subMu.Unlock()
		return nil
	}
	h.subscribed[channel] = true
	h.subMu.Unlock()

	feed, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.subMu.Lock()
		delete(h.subscribed, channel)
		h.subMu.Unlock()
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return err
	}
	h.logger.Debug("ws: bus channel subscribed", slog.String("channel", channel))

	go h.pump(ctx, channel, feed)
	return nil
}

func (h *Hub) pump(ctx context.Context, channel string, feed <-chan []byte) {
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return
		case d, ok := <-feed:
			if !ok {
				return
			}
			data = d
		}

		select {
		case h.messages <- busMessage{channel: channel, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// ensureChannel subscribes the hub to a per-challenge channel on demand.
func (h *Hub) ensureChannel(channel string) bool {
	if !allowedChannel(channel) {
		return false
	}

	h.subMu.Lock()
	ctx, open, known := h.runCtx, len(h.subscribed), h.subscribed[channel]
	h.subMu.Unlock()

	switch {
	case known:
		return true
	case ctx == nil, open >= maxDynamicChannels+len(DefaultChannels):
		return false
	}
	return h.subscribe(ctx, channel) == nil
}

// allowedChannel accepts the default channels and "challenge:{id}" with no
// pattern characters.
func allowedChannel(channel string) bool {
	if slices.Contains(DefaultChannels, channel) {
		return true
	}
	id, ok := strings.CutPrefix(channel, "challenge:")
	return ok && id != "" && !strings.ContainsAny(id, "*?[")
}

// HandleWS upgrades the request and registers the client, which starts
// subscribed to DefaultChannels.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	select {
	case h.joins <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// rawJSON passes valid JSON payloads through and quotes anything else.
func rawJSON(b []byte) json.RawMessage {
	if json.Valid(b) {
		return b
	}
	q, _ := json.Marshal(string(b))
	return q
}
