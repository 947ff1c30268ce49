package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/platform/pumpportal"
)

// curveServer answers every subscribe command with one trade per key.
type curveServer struct {
	mu       sync.Mutex
	commands []pumpportal.Command
	conns    int
}

func (s *curveServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.mu.Lock()
		s.conns++
		first := s.conns == 1
		s.mu.Unlock()

		for {
			var cmd pumpportal.Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			s.mu.Unlock()

			if cmd.Method != "subscribeTokenTrade" {
				continue
			}
			for _, key := range cmd.Keys {
				msg := pumpportal.TradeMessage{
					Mint:                  key,
					TxType:                "buy",
					VSolInBondingCurve:    30,
					VTokensInBondingCurve: 1_000_000_000,
				}
				raw, _ := json.Marshal(msg)
				if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
					return
				}
			}
			if first {
				// Drop the first connection to force a reconnect.
				return
			}
		}
	}
}

func (s *curveServer) snapshot() ([]pumpportal.Command, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pumpportal.Command(nil), s.commands...), s.conns
}

func TestPumpStreamSubscribesAndReconnects(t *testing.T) {
	srv := &curveServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	up := &recordingUpdater{}
	cfg := StreamConfig{
		URL:         "ws" + strings.TrimPrefix(ts.URL, "http"),
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  20 * time.Millisecond,
	}
	s := NewPumpStream(cfg, up, discard())
	s.Subscribe(wsol)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, conns := srv.snapshot()
		return conns >= 2 && len(up.snapshot()) >= 2
	}, 2*time.Second, 10*time.Millisecond, "resubscribes after the drop")

	s.Subscribe(usdc)
	require.Eventually(t, func() bool {
		for _, u := range up.snapshot() {
			if u.mint == usdc {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	u := up.snapshot()[0]
	assert.Equal(t, wsol, u.mint)
	assert.Equal(t, domain.SourceStream, u.source)
	assert.InDelta(t, 3e-8, u.price, 1e-15)
	assert.Equal(t, []string{usdc, wsol}, s.Wanted())
}

func TestPumpStreamIgnoresUnwantedTrades(t *testing.T) {
	up := &recordingUpdater{}
	s := NewPumpStream(DefaultStreamConfig(), up, discard())
	s.handleTrade(pumpportal.TradeMessage{Mint: wsol, TxType: "buy", VSolInBondingCurve: 1, VTokensInBondingCurve: 10})
	assert.Empty(t, up.snapshot())

	s.Subscribe(wsol)
	s.handleTrade(pumpportal.TradeMessage{Mint: wsol, TxType: "buy"})
	assert.Empty(t, up.snapshot(), "trades without reserves carry no price")

	s.Unsubscribe(wsol)
	assert.Empty(t, s.Wanted())
}
