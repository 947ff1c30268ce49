// Package executor implements the execution collaborator: a guarded front
// over a paper broker or a remote signing sidecar.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

var (
	// ErrNoBalance is returned by a venue when the wallet holds none of the
	// token being sold.
	ErrNoBalance = errors.New("no token balance")
	// ErrTransient marks a failure worth one more attempt: a quote miss or an
	// upstream timeout.
	ErrTransient = errors.New("transient execution failure")
	// ErrInsufficientFunds is returned when a buy exceeds the SOL balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Order is one swap request handed to a venue.
type Order struct {
	Mint     string      `json:"mint"`
	Side     domain.Side `json:"side"`
	SizeSOL  float64     `json:"size_sol,omitempty"`
	Fraction float64     `json:"fraction,omitempty"`
	All      bool        `json:"all,omitempty"`
	// KnownTokenAmount is the caller's view of the holding, used by venues
	// that cannot query the balance themselves.
	KnownTokenAmount uint64  `json:"known_token_amount,omitempty"`
	ReferencePrice   float64 `json:"reference_price"`
	Reason           string  `json:"reason"`
}

// Venue executes swaps. Implementations return an error for any failure;
// Executor turns errors into unsuccessful fills.
type Venue interface {
	Name() string
	Swap(ctx context.Context, o Order) (domain.Fill, error)
}

// BalanceReader is implemented by venues that can report the SOL balance.
type BalanceReader interface {
	BalanceSOL(ctx context.Context) (float64, error)
}

// Config holds the Executor retry and timeout policy.
type Config struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		RetryDelay: 500 * time.Millisecond,
		MaxRetries: 1,
	}
}

// Executor implements domain.Executor over a Venue. It bounds every call
// with a timeout, retries transient failures, and never returns an error:
// recoverable failures come back as Fill{Success: false}.
type Executor struct {
	venue  Venue
	cfg    Config
	logger *slog.Logger
}

var _ domain.Executor = (*Executor)(nil)

// New creates an Executor over venue.
func New(venue Venue, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		venue:  venue,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor"), slog.String("venue", venue.Name())),
	}
}

// Buy spends sizeSOL on mint.
func (e *Executor) Buy(ctx context.Context, mint string, sizeSOL, refPrice float64, reason string) domain.Fill {
	return e.execute(ctx, Order{Mint: mint, Side: domain.SideBuy, SizeSOL: sizeSOL, ReferencePrice: refPrice, Reason: reason})
}

// Sell sells fraction of the held tokens.
func (e *Executor) Sell(ctx context.Context, mint string, fraction, refPrice float64, reason string) domain.Fill {
	if fraction <= 0 || fraction > 1 {
		return domain.Fill{Err: fmt.Sprintf("fraction %g out of range", fraction)}
	}
	return e.execute(ctx, Order{Mint: mint, Side: domain.SideSell, Fraction: fraction, ReferencePrice: refPrice, Reason: reason})
}

// SellAll liquidates the full holding.
func (e *Executor) SellAll(ctx context.Context, mint string, refPrice float64, reason string, knownTokenAmount uint64) domain.Fill {
	return e.execute(ctx, Order{
		Mint:             mint,
		Side:             domain.SideSell,
		Fraction:         1,
		All:              true,
		KnownTokenAmount: knownTokenAmount,
		ReferencePrice:   refPrice,
		Reason:           reason,
	})
}

// BalanceSOL returns the venue balance when the venue can report it.
func (e *Executor) BalanceSOL(ctx context.Context) (float64, error) {
	br, ok := e.venue.(BalanceReader)
	if !ok {
		return 0, fmt.Errorf("executor: %s cannot report balance", e.venue.Name())
	}
	return br.BalanceSOL(ctx)
}

func (e *Executor) execute(ctx context.Context, o Order) domain.Fill {
	log := e.logger.With(
		slog.String("mint", o.Mint),
		slog.String("side", string(o.Side)),
		slog.String("reason", o.Reason),
	)

	var (
		fill domain.Fill
		err  error
	)
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.Fill{Err: ctx.Err().Error()}
			case <-time.After(e.cfg.RetryDelay):
			}
		}
		fill, err = e.swap(ctx, o)
		if err == nil || !retryable(err) {
			break
		}
		log.Warn("swap failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	switch {
	case errors.Is(err, ErrNoBalance):
		log.Warn("venue reports no balance")
		return domain.Fill{NoBalance: true, Err: err.Error()}
	case err != nil:
		log.Error("swap failed", slog.String("error", err.Error()))
		return domain.Fill{Err: err.Error()}
	case fill.NoBalance:
		return fill
	case !fill.Usable():
		// A success with nothing filled is treated as a failure.
		log.Warn("venue returned an empty fill",
			slog.Bool("success", fill.Success),
			slog.Float64("filled_size_sol", fill.FilledSizeSOL),
		)
		fill.Success = false
		return fill
	}

	log.Info("swap filled",
		slog.Float64("size_sol", fill.FilledSizeSOL),
		slog.Float64("price", fill.FilledPrice),
		slog.String("signature", fill.Signature),
	)
	return fill
}

func (e *Executor) swap(ctx context.Context, o Order) (domain.Fill, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	return e.venue.Swap(ctx, o)
}

func retryable(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

var _ fmt.Stringer = (*Executor)(nil)

// String returns a human-readable description of the executor.
func (e *Executor) String() string {
	return fmt.Sprintf("Executor(venue=%s)", e.venue.Name())
}
