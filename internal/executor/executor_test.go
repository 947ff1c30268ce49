package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

type scriptedVenue struct {
	results []error
	fill    domain.Fill
	orders  []Order
}

func (v *scriptedVenue) Name() string { return "scripted" }

func (v *scriptedVenue) Swap(_ context.Context, o Order) (domain.Fill, error) {
	v.orders = append(v.orders, o)
	if len(v.results) > 0 {
		err := v.results[0]
		v.results = v.results[1:]
		if err != nil {
			return domain.Fill{}, err
		}
	}
	return v.fill, nil
}

func newTestExecutor(v Venue) *Executor {
	cfg := Config{Timeout: time.Second, RetryDelay: time.Millisecond, MaxRetries: 1}
	return New(v, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var okFill = domain.Fill{Success: true, FilledSizeSOL: 0.01, FilledPrice: 1, TokenAmountRaw: 10_000}

func TestExecutorRetriesTransientOnce(t *testing.T) {
	v := &scriptedVenue{results: []error{ErrTransient}, fill: okFill}
	fill := newTestExecutor(v).Buy(context.Background(), "m", 0.01, 1, "copytrade")

	assert.True(t, fill.Usable())
	assert.Len(t, v.orders, 2)
	assert.Equal(t, domain.SideBuy, v.orders[0].Side)
}

func TestExecutorGivesUpAfterRetries(t *testing.T) {
	v := &scriptedVenue{results: []error{ErrTransient, ErrTransient, ErrTransient}, fill: okFill}
	fill := newTestExecutor(v).Buy(context.Background(), "m", 0.01, 1, "copytrade")

	assert.False(t, fill.Success)
	assert.NotEmpty(t, fill.Err)
	assert.Len(t, v.orders, 2)
}

func TestExecutorDoesNotRetryPermanentErrors(t *testing.T) {
	v := &scriptedVenue{results: []error{errors.New("bad mint")}, fill: okFill}
	fill := newTestExecutor(v).SellAll(context.Background(), "m", 1, "stop-loss", 10)

	assert.False(t, fill.Success)
	assert.Len(t, v.orders, 1)
	assert.True(t, v.orders[0].All)
	assert.Equal(t, uint64(10), v.orders[0].KnownTokenAmount)
}

func TestExecutorMapsNoBalance(t *testing.T) {
	v := &scriptedVenue{results: []error{ErrNoBalance}}
	fill := newTestExecutor(v).SellAll(context.Background(), "m", 1, "stop-loss", 0)

	assert.True(t, fill.NoBalance)
	assert.False(t, fill.Success)
}

func TestExecutorRejectsEmptyFill(t *testing.T) {
	v := &scriptedVenue{fill: domain.Fill{Success: true}}
	fill := newTestExecutor(v).Buy(context.Background(), "m", 0.01, 1, "copytrade")
	assert.False(t, fill.Success)
}

func TestExecutorValidatesFraction(t *testing.T) {
	v := &scriptedVenue{fill: okFill}
	fill := newTestExecutor(v).Sell(context.Background(), "m", 1.5, 1, "partial")

	assert.False(t, fill.Success)
	assert.Empty(t, v.orders)
}

func TestExecutorBalance(t *testing.T) {
	_, err := newTestExecutor(&scriptedVenue{}).BalanceSOL(context.Background())
	assert.Error(t, err)

	bal, err := newTestExecutor(NewPaper(frictionless(), nil)).BalanceSOL(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1.0, bal)
}
