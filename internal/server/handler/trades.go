package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// TradeJournal lists recorded executions.
type TradeJournal interface {
	ListByMint(ctx context.Context, mint string, opts domain.ListOpts) ([]domain.TradeRecord, error)
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error)
}

// TradeHandler serves the execution journal.
type TradeHandler struct {
	journal TradeJournal
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(journal TradeJournal, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{journal: journal, logger: logHandler(logger, "trades")}
}

// ListTrades returns recent executions, optionally for one mint.
// GET /api/trades?mint=...&limit=...&offset=...&since=RFC3339
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		trades []domain.TradeRecord
		err    error
	)
	if raw := r.URL.Query().Get("mint"); raw != "" {
		mint, nerr := domain.NormalizeMint(raw)
		if nerr != nil {
			writeError(w, http.StatusBadRequest, nerr.Error())
			return
		}
		trades, err = h.journal.ListByMint(r.Context(), mint, opts)
	} else {
		trades, err = h.journal.ListRecent(r.Context(), opts)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trade journal not configured")
			return
		}
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
