package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// PriceReader answers latest-price queries from the in-process aggregator.
type PriceReader interface {
	GetLatestPrice(mint string) (domain.Quote, bool)
}

// PriceHandler serves latest prices. It prefers the aggregator and falls
// back to the external mirror, which also covers assets this process does
// not track.
type PriceHandler struct {
	prices PriceReader
	mirror domain.PriceCache
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler. mirror may be nil.
func NewPriceHandler(prices PriceReader, mirror domain.PriceCache, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, mirror: mirror, logger: logHandler(logger, "prices")}
}

type priceResponse struct {
	Mint      string    `json:"mint"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
	Stale     bool      `json:"stale"`
}

// GetPrice returns the latest price for one asset.
// GET /api/prices/{mint}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	mint, err := domain.NormalizeMint(r.PathValue("mint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if q, ok := h.prices.GetLatestPrice(mint); ok {
		writeJSON(w, http.StatusOK, priceResponse{
			Mint:      mint,
			Price:     q.Price,
			Source:    string(q.Source),
			UpdatedAt: q.UpdatedAt,
			Stale:     q.Stale,
		})
		return
	}

	if h.mirror != nil {
		price, ts, err := h.mirror.GetPrice(r.Context(), mint)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, priceResponse{Mint: mint, Price: price, Source: "mirror", UpdatedAt: ts})
			return
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.WarnContext(r.Context(), "mirror read failed",
				slog.String("mint", mint),
				slog.String("error", err.Error()),
			)
		}
	}
	writeError(w, http.StatusNotFound, "no price for "+mint)
}
