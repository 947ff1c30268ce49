package pumpportal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TradeHandler is called for every trade message received.
type TradeHandler func(TradeMessage)

// WSClient is a single PumpPortal connection. It does not reconnect by
// itself: Done is closed when the read loop stops and the owner decides
// whether to dial again.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.Mutex
	closed bool

	handlers  []TradeHandler
	handlerMu sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once
	readErr  error
}

// NewWSClient creates a client for wsURL, e.g. "wss://pumpportal.fun/api/data".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect dials the feed and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("pumpportal/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("pumpportal/ws: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)
	return nil
}

// Subscribe starts trade updates for mints.
func (w *WSClient) Subscribe(mints []string) error {
	if len(mints) == 0 {
		return nil
	}
	if err := w.send(Command{Method: methodSubscribe, Keys: mints}); err != nil {
		return fmt.Errorf("pumpportal/ws: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe stops trade updates for mints.
func (w *WSClient) Unsubscribe(mints []string) error {
	if len(mints) == 0 {
		return nil
	}
	if err := w.send(Command{Method: methodUnsubscribe, Keys: mints}); err != nil {
		return fmt.Errorf("pumpportal/ws: unsubscribe: %w", err)
	}
	return nil
}

// OnTrade registers a handler for trade messages.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Done is closed when the connection is lost or closed.
func (w *WSClient) Done() <-chan struct{} { return w.done }

// Err returns the read error that ended the connection, if any.
func (w *WSClient) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readErr
}

// Close shuts the connection down.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.doneOnce.Do(func() { close(w.done) })

	if w.conn != nil {
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return w.conn.Close()
	}
	return nil
}

func (w *WSClient) send(cmd Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil || w.closed {
		return domain.ErrWSDisconnect
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if !w.closed {
				w.readErr = err
			}
			w.mu.Unlock()
			w.doneOnce.Do(func() { close(w.done) })
			conn.Close()
			return
		}
		w.handleMessage(message)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches trade messages. Subscription acknowledgements and
// other frames carry no mint and are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var trade TradeMessage
	if err := json.Unmarshal(raw, &trade); err != nil || trade.Mint == "" || trade.TxType == "" {
		return
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(trade)
	}
}
