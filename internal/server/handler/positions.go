package handler

import (
	"net/http"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// PositionHandler serves open positions and the bounce watchlist.
type PositionHandler struct {
	views ViewSource
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(views ViewSource) *PositionHandler {
	return &PositionHandler{views: views}
}

type listPositionsResponse struct {
	Tick      uint64                        `json:"tick"`
	Positions []domain.Position             `json:"positions"`
	Watchlist []domain.BounceWatchlistEntry `json:"watchlist"`
}

// ListPositions returns the positions of the last tick.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	v := currentView(w, h.views)
	if v == nil {
		return
	}
	resp := listPositionsResponse{
		Tick:      v.Tick,
		Positions: v.Positions,
		Watchlist: v.Watchlist,
	}
	if resp.Positions == nil {
		resp.Positions = []domain.Position{}
	}
	if resp.Watchlist == nil {
		resp.Watchlist = []domain.BounceWatchlistEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPosition returns one position.
// GET /api/positions/{mint}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	mint, err := domain.NormalizeMint(r.PathValue("mint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v := currentView(w, h.views)
	if v == nil {
		return
	}
	for _, p := range v.Positions {
		if p.Mint == mint {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no open position for "+mint)
}
