// Package ws streams control-loop events and the published view to
// dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Topics a client can subscribe to. Event topics mirror the signal-bus
// channels; TopicView carries the view published after each tick.
const (
	TopicTrades = domain.ChannelTrades
	TopicSafety = domain.ChannelSafety
	TopicView   = "view"
)

var defaultTopics = []string{TopicTrades, TopicSafety, TopicView}

// ViewSource exposes the latest published view.
type ViewSource interface {
	View() *domain.View
}

// envelope is the frame sent to clients.
type envelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeMsg is what a client sends to change its topics.
type subscribeMsg struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	topics map[string]bool
}

// Config holds the hub settings.
type Config struct {
	// ViewInterval is how often the view is pushed. Zero disables it.
	ViewInterval time.Duration
	// AllowedOrigins limits browser origins. Empty allows all.
	AllowedOrigins []string
}

// Hub fans signal-bus events and periodic views out to WebSocket clients.
type Hub struct {
	cfg      Config
	bus      domain.SignalBus
	views    ViewSource
	upgrader websocket.Upgrader
	logger   *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan envelope

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a Hub. bus may be nil, in which case only views are sent.
func NewHub(cfg Config, bus domain.SignalBus, views ViewSource, logger *slog.Logger) *Hub {
	h := &Hub{
		cfg:        cfg,
		bus:        bus,
		views:      views,
		logger:     logger.With(slog.String("component", "ws_hub")),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 256),
		clients:    make(map[*client]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for _, ch := range []string{TopicTrades, TopicSafety} {
			go h.forward(ctx, ch)
		}
	}

	var viewTick <-chan time.Time
	if h.cfg.ViewInterval > 0 && h.views != nil {
		t := time.NewTicker(h.cfg.ViewInterval)
		defer t.Stop()
		viewTick = t.C
	}
	var lastTick uint64

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case env := <-h.broadcast:
			h.fanOut(env)

		case <-viewTick:
			v := h.views.View()
			if v == nil || v.Tick == lastTick {
				continue
			}
			lastTick = v.Tick
			if env, ok := viewEnvelope(v); ok {
				h.fanOut(env)
			}
		}
	}
}

// forward relays one bus channel into the broadcast queue.
func (h *Hub) forward(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.broadcast <- envelope{Type: "event", Topic: channel, Payload: data}:
			default:
				h.logger.Warn("broadcast queue full, event dropped", slog.String("channel", channel))
			}
		}
	}
}

func (h *Hub) fanOut(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(env.Topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping message for slow client")
		}
	}
}

func viewEnvelope(v *domain.View) (envelope, bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		return envelope{}, false
	}
	return envelope{Type: "view", Topic: TopicView, Payload: payload}, true
}

// HandleWS upgrades the request and registers the client. New clients get
// the current view straight away.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool, len(defaultTopics)),
	}
	for _, t := range defaultTopics {
		c.topics[t] = true
	}

	if h.views != nil {
		if v := h.views.View(); v != nil {
			if env, ok := viewEnvelope(v); ok {
				if data, err := json.Marshal(env); err == nil {
					c.send <- data
				}
			}
		}
	}

	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

// readPump applies subscription changes and keeps the read deadline fresh.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) != nil {
			continue
		}
		c.mu.Lock()
		for _, t := range sub.Subscribe {
			c.topics[t] = true
		}
		for _, t := range sub.Unsubscribe {
			delete(c.topics, t)
		}
		c.mu.Unlock()
	}
}

// writePump sends queued frames as text messages and pings the peer.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
