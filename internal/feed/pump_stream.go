package feed

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
	"github.com/alanyoungcy/convexbot/internal/platform/pumpportal"
	"github.com/alanyoungcy/convexbot/internal/service"
)

// PriceUpdater accepts a price observation; the aggregator decides whether
// it wins.
type PriceUpdater interface {
	UpdatePrice(mint string, price float64, source domain.PriceSourceKind) bool
}

// StreamConfig holds the push stream endpoint and reconnect backoff.
type StreamConfig struct {
	URL         string
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultStreamConfig returns the PumpPortal endpoint with a 2s to 30s
// backoff.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:         "wss://pumpportal.fun/api/data",
		BackoffBase: 2 * time.Second,
		BackoffMax:  30 * time.Second,
	}
}

// PumpStream keeps a PumpPortal connection subscribed to the wanted set of
// pre-migration assets and pushes curve prices into the aggregator. It
// reconnects with exponential backoff and resubscribes everything wanted.
//
// Subscribe and Unsubscribe never block: they record intent and the Run loop
// reconciles it with the live connection.
type PumpStream struct {
	cfg     StreamConfig
	updater PriceUpdater
	flow    *TradeFlow
	logger  *slog.Logger

	mu     sync.Mutex
	wanted map[string]struct{}
	dirty  chan struct{}
}

var _ service.StreamSubscriber = (*PumpStream)(nil)

// NewPumpStream creates a PumpStream. updater is usually set later with
// Attach because the aggregator also needs the stream at construction.
func NewPumpStream(cfg StreamConfig, updater PriceUpdater, logger *slog.Logger) *PumpStream {
	return &PumpStream{
		cfg:     cfg,
		updater: updater,
		logger:  logger.With(slog.String("component", "pump_stream")),
		wanted:  make(map[string]struct{}),
		dirty:   make(chan struct{}, 1),
	}
}

// Attach sets the price updater. Call it before Run.
func (s *PumpStream) Attach(updater PriceUpdater) { s.updater = updater }

// TrackFlow feeds every buy seen on the stream into f. Call it before Run.
func (s *PumpStream) TrackFlow(f *TradeFlow) { s.flow = f }

// Subscribe implements service.StreamSubscriber.
func (s *PumpStream) Subscribe(mint string) {
	s.mu.Lock()
	s.wanted[mint] = struct{}{}
	s.mu.Unlock()
	s.markDirty()
}

// Unsubscribe implements service.StreamSubscriber.
func (s *PumpStream) Unsubscribe(mint string) {
	s.mu.Lock()
	delete(s.wanted, mint)
	s.mu.Unlock()
	s.markDirty()
}

// Wanted returns the assets the stream should be subscribed to, sorted.
func (s *PumpStream) Wanted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.wanted))
	for m := range s.wanted {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *PumpStream) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Run connects and keeps the connection alive until ctx is done.
func (s *PumpStream) Run(ctx context.Context) error {
	backoff := s.cfg.BackoffBase
	s.logger.InfoContext(ctx, "pump stream started", slog.String("url", s.cfg.URL))
	defer s.logger.Info("pump stream stopped")

	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.cfg.BackoffBase
		}
		metrics.RecordReconnect()
		s.logger.WarnContext(ctx, "pump stream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.BackoffMax {
			backoff = s.cfg.BackoffMax
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (s *PumpStream) session(ctx context.Context) (connected bool, err error) {
	client := pumpportal.NewWSClient(s.cfg.URL)
	client.OnTrade(s.handleTrade)
	if err := client.Connect(ctx); err != nil {
		return false, err
	}
	defer client.Close()

	subscribed := make(map[string]struct{})
	if err := s.reconcile(client, subscribed); err != nil {
		return true, err
	}
	s.logger.InfoContext(ctx, "pump stream subscribed", slog.Int("assets", len(subscribed)))

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-client.Done():
			if err := client.Err(); err != nil {
				return true, err
			}
			return true, domain.ErrWSDisconnect
		case <-s.dirty:
			if err := s.reconcile(client, subscribed); err != nil {
				return true, err
			}
		}
	}
}

// reconcile sends the subscribe and unsubscribe commands that move the live
// subscription set to the wanted set.
func (s *PumpStream) reconcile(client *pumpportal.WSClient, subscribed map[string]struct{}) error {
	var adds, removes []string
	s.mu.Lock()
	for m := range s.wanted {
		if _, ok := subscribed[m]; !ok {
			adds = append(adds, m)
		}
	}
	for m := range subscribed {
		if _, ok := s.wanted[m]; !ok {
			removes = append(removes, m)
		}
	}
	s.mu.Unlock()
	sort.Strings(adds)
	sort.Strings(removes)

	if err := client.Subscribe(adds); err != nil {
		return err
	}
	for _, m := range adds {
		subscribed[m] = struct{}{}
	}
	if err := client.Unsubscribe(removes); err != nil {
		return err
	}
	for _, m := range removes {
		delete(subscribed, m)
	}
	return nil
}

func (s *PumpStream) handleTrade(tr pumpportal.TradeMessage) {
	s.mu.Lock()
	_, ok := s.wanted[tr.Mint]
	s.mu.Unlock()
	if !ok {
		return
	}
	if s.flow != nil && tr.TxType == "buy" && tr.TraderPublicKey != "" {
		s.flow.ObserveBuy(tr.Mint, tr.TraderPublicKey)
	}
	if price := tr.Price(); price > 0 && s.updater != nil {
		s.updater.UpdatePrice(tr.Mint, price, domain.SourceStream)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
