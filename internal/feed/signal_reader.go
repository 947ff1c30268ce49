package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// SignalReaderConfig holds the stream read parameters.
type SignalReaderConfig struct {
	Count int
	Block time.Duration
	// StartID is the stream ID to read after. "$" reads only new entries.
	StartID string
}

// DefaultSignalReaderConfig returns the production read parameters.
func DefaultSignalReaderConfig() SignalReaderConfig {
	return SignalReaderConfig{Count: 64, Block: 2 * time.Second, StartID: "$"}
}

// SignalReader drains the copy-trade and command streams into the in-process
// queues the control loop empties each tick. Every mint is normalized here,
// once, at ingestion.
type SignalReader struct {
	cfg      SignalReaderConfig
	bus      domain.SignalBus
	signals  Pusher[domain.QueueSignal]
	commands Pusher[domain.Command]
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSignalReader creates a SignalReader.
func NewSignalReader(cfg SignalReaderConfig, bus domain.SignalBus, signals Pusher[domain.QueueSignal], commands Pusher[domain.Command], c clock.Clock, logger *slog.Logger) *SignalReader {
	return &SignalReader{
		cfg:      cfg,
		bus:      bus,
		signals:  signals,
		commands: commands,
		clock:    c,
		logger:   logger.With(slog.String("component", "signal_reader")),
	}
}

// Run reads both streams until ctx is done.
func (r *SignalReader) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.readStream(gctx, domain.StreamCopyTrade, r.handleSignal) })
	g.Go(func() error { return r.readStream(gctx, domain.StreamCommands, r.handleCommand) })
	return g.Wait()
}

func (r *SignalReader) readStream(ctx context.Context, stream string, handle func(domain.StreamMessage) error) error {
	r.logger.InfoContext(ctx, "stream reader started", slog.String("stream", stream))
	defer r.logger.Info("stream reader stopped", slog.String("stream", stream))

	lastID := r.cfg.StartID
	if lastID == "" || lastID == "$" {
		// Pin "new entries" to an ID so nothing appended between two reads
		// is skipped.
		lastID = fmt.Sprintf("%d-0", r.clock.Now().UnixMilli())
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := r.bus.StreamRead(ctx, stream, lastID, r.cfg.Count, r.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.WarnContext(ctx, "stream read failed",
				slog.String("stream", stream),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			lastID = msg.ID
			if err := handle(msg); err != nil {
				r.logger.WarnContext(ctx, "stream entry dropped",
					slog.String("stream", stream),
					slog.String("id", msg.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (r *SignalReader) handleSignal(msg domain.StreamMessage) error {
	sig, err := ParseSignal(msg.Payload, r.clock.Now())
	if err != nil {
		metrics.RecordQueueDrop("signals", "invalid")
		return err
	}
	if sig.ID == "" {
		sig.ID = msg.ID
	}
	return r.signals.Push(sig)
}

func (r *SignalReader) handleCommand(msg domain.StreamMessage) error {
	cmd, err := ParseCommand(msg.Payload, r.clock.Now())
	if err != nil {
		metrics.RecordQueueDrop("commands", "invalid")
		return err
	}
	if cmd.ID == "" {
		cmd.ID = msg.ID
	}
	return r.commands.Push(cmd)
}

// ParseSignal decodes and normalizes a queue signal payload. Missing
// source, action and timestamp default to copytrade, buy and now.
func ParseSignal(payload []byte, now time.Time) (domain.QueueSignal, error) {
	var sig domain.QueueSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return sig, fmt.Errorf("feed: decode signal: %w", err)
	}
	mint, err := domain.NormalizeMint(sig.Mint)
	if err != nil {
		return sig, fmt.Errorf("feed: signal: %w", err)
	}
	sig.Mint = mint
	if sig.Source == "" {
		sig.Source = domain.SourceCopyTrade
	}
	if sig.Action == "" {
		sig.Action = domain.ActionBuy
	}
	if sig.Action != domain.ActionBuy && sig.Action != domain.ActionSell {
		return sig, fmt.Errorf("feed: signal: unknown action %q", sig.Action)
	}
	if sig.SizeSOL < 0 {
		return sig, fmt.Errorf("feed: signal: negative size %g", sig.SizeSOL)
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = now
	}
	return sig, nil
}

// ErrUnknownCommand is returned for a command kind the loop does not know.
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand decodes and validates an operator command payload.
func ParseCommand(payload []byte, now time.Time) (domain.Command, error) {
	var cmd domain.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("feed: decode command: %w", err)
	}
	return ValidateCommand(cmd, now)
}

// ValidateCommand checks kind and arguments and fills the issue time.
func ValidateCommand(cmd domain.Command, now time.Time) (domain.Command, error) {
	if !cmd.Kind.Valid() {
		return cmd, fmt.Errorf("feed: %w: %q", ErrUnknownCommand, cmd.Kind)
	}
	if cmd.Kind == domain.CommandForceSell {
		mint, err := domain.NormalizeMint(cmd.Mint)
		if err != nil {
			return cmd, fmt.Errorf("feed: force_sell: %w", err)
		}
		cmd.Mint = mint
	}
	if cmd.BalanceSOL < 0 {
		return cmd, fmt.Errorf("feed: rollover: negative balance %g", cmd.BalanceSOL)
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = now
	}
	return cmd, nil
}
