package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/analytics"
	"ms-booking/internal/logger"
)

type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the analytics endpoints on the admin router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/levels", h.GetLevelOccupancies)
		r.Get("/overview", h.GetOverview)
	})
}

func (h *Handler) GetLevelOccupancies(w http.ResponseWriter, r *http.Request) {
	levels, err := h.Service.LevelOccupancies(r.Context())
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetLevelOccupancies failed: %v", err))
		http.Error(w, "failed to compute level occupancy", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(levels); err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetLevelOccupancies: failed to encode response: %v", err))
	}
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Service.Overview(r.Context())
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetOverview failed: %v", err))
		http.Error(w, "failed to compute analytics overview", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(overview); err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetOverview: failed to encode response: %v", err))
	}
}
