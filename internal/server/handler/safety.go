package handler

import "net/http"

// SafetyHandler serves the Safety Supervisor status.
type SafetyHandler struct {
	views ViewSource
}

// NewSafetyHandler creates a SafetyHandler.
func NewSafetyHandler(views ViewSource) *SafetyHandler {
	return &SafetyHandler{views: views}
}

// GetSafety returns halt, cooldown and account state as of the last tick.
// GET /api/safety
func (h *SafetyHandler) GetSafety(w http.ResponseWriter, r *http.Request) {
	v := currentView(w, h.views)
	if v == nil {
		return
	}
	writeJSON(w, http.StatusOK, v.Safety)
}
