package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// TickBatcherConfig controls how accepted prices are batched into the tick
// history sink.
type TickBatcherConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Buffer        int
}

// DefaultTickBatcherConfig returns the production batching policy.
func DefaultTickBatcherConfig() TickBatcherConfig {
	return TickBatcherConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		Buffer:        4096,
	}
}

// TickBatcher collects price ticks and writes them to a TickSink in batches,
// whichever of BatchSize or FlushInterval comes first.
type TickBatcher struct {
	cfg    TickBatcherConfig
	sink   domain.TickSink
	ticks  chan domain.PriceTick
	logger *slog.Logger
}

var _ TickRecorder = (*TickBatcher)(nil)

// NewTickBatcher creates a TickBatcher writing to sink.
func NewTickBatcher(cfg TickBatcherConfig, sink domain.TickSink, logger *slog.Logger) *TickBatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Buffer < cfg.BatchSize {
		cfg.Buffer = cfg.BatchSize * 2
	}
	return &TickBatcher{
		cfg:    cfg,
		sink:   sink,
		ticks:  make(chan domain.PriceTick, cfg.Buffer),
		logger: logger.With(slog.String("component", "tick_batcher")),
	}
}

// Record implements TickRecorder. Ticks are dropped when the buffer is full.
func (b *TickBatcher) Record(tick domain.PriceTick) {
	select {
	case b.ticks <- tick:
	default:
		metrics.RecordQueueDrop("ticks", "full")
	}
}

// Run batches ticks until ctx is cancelled, then flushes the remainder.
func (b *TickBatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.PriceTick, 0, b.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := b.sink.WriteTicks(ctx, batch); err != nil {
			b.logger.WarnContext(ctx, "write ticks failed",
				slog.Int("count", len(batch)),
				slog.String("error", err.Error()),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case t := <-b.ticks:
					batch = append(batch, t)
				default:
					break drain
				}
			}
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(final)
			cancel()
			return nil
		case t := <-b.ticks:
			batch = append(batch, t)
			if len(batch) >= b.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
