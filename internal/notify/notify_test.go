package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

type captureSender struct {
	name   string
	err    error
	titles []string
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersByEventName(t *testing.T) {
	s := &captureSender{name: "cap"}
	n := NewNotifier([]Sender{s}, []string{"exit", " halt "}, quiet())

	require.NoError(t, n.Notify(context.Background(), domain.Event{Kind: domain.EventEntry, Symbol: "AAA"}))
	require.NoError(t, n.Notify(context.Background(), domain.Event{Kind: domain.EventExit, Symbol: "AAA"}))
	require.NoError(t, n.Notify(context.Background(), domain.Event{Kind: domain.EventHalt}))

	assert.Equal(t, []string{"Exit AAA", "Trading halted"}, s.titles)
}

func TestNotifierSkipsFailedTrades(t *testing.T) {
	s := &captureSender{name: "cap"}
	n := NewNotifier([]Sender{s}, nil, quiet())

	failed := &domain.TradeRecord{Side: domain.SideSell, Success: false}
	assert.False(t, n.Wants(domain.Event{Kind: domain.EventExit, Trade: failed}))
	assert.True(t, n.Wants(domain.Event{Kind: domain.EventGhost}))
	assert.True(t, n.Wants(domain.Event{Kind: domain.EventGhost, Trade: failed}), "ghost carries the failed sell")
	assert.False(t, n.Wants(domain.Event{Kind: domain.EventRollover}), "rollover is not a default event")
}

func TestNotifierJoinsSenderErrors(t *testing.T) {
	ok := &captureSender{name: "ok"}
	bad := &captureSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, quiet())

	err := n.NotifyAll(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "bad: boom")
	assert.Len(t, ok.titles, 1, "later senders still run")
}

func TestFormat(t *testing.T) {
	title, msg := Format(domain.Event{
		Kind:   domain.EventExit,
		Mint:   "So11111111111111111111111111111111111111112",
		Reason: "trailing-stop",
		PnLSOL: 0.0125,
		Trade:  &domain.TradeRecord{Side: domain.SideSell, SizeSOL: 0.06, Price: 0.0025, State: domain.StateConviction},
	})
	assert.Equal(t, "Exit So11..1112", title)
	assert.Contains(t, msg, "reason: trailing-stop")
	assert.Contains(t, msg, "sell 0.0600 SOL @ 0.0025")
	assert.Contains(t, msg, "pnl: +0.0125 SOL")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	err := NewTelegramSender(srv.URL, "TOKEN", "42").Send(context.Background(), "Exit MY_COIN", "ok")
	require.NoError(t, err)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Exit MY\\_COIN*\nok", got["text"])
}

func TestDiscordSender(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Entry AAA", "body"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorGreen, got.Embeds[0].Color)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer failing.Close()
	assert.Error(t, NewDiscordSender(failing.URL).Send(context.Background(), "x", "y"))
}
