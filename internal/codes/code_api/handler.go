package code_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/codes"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type Handler struct {
	CodeService *codes.Service
	Config      *config.Config
	Logger      *logger.Logger
}

func (h *Handler) ListCodes(w http.ResponseWriter, r *http.Request) {
	filter := models.CodeFilter{
		Search: r.URL.Query().Get("search"),
		Status: models.CodeStatus(r.URL.Query().Get("status")),
		Usage:  r.URL.Query().Get("usage"),
	}

	list, err := h.CodeService.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListCodes failed: %v", err))
		http.Error(w, "could not list codes", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateCode(w http.ResponseWriter, r *http.Request) {
	var req models.InvitationCode
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.AllowedLevels) == 0 {
		req.AllowedLevels = models.LevelList(h.Config.Booking.Levels[:1])
	}

	created, err := h.CodeService.Create(r.Context(), req, auth.AdminID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCode failed: %v", err))
		http.Error(w, "Could not create code: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateCode(w http.ResponseWriter, r *http.Request) {
	codeID := chi.URLParam(r, "codeId")

	var req models.InvitationCode
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.CodeService.Update(r.Context(), codeID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateCode %s failed: %v", codeID, err))
		http.Error(w, "Could not update code: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteCode(w http.ResponseWriter, r *http.Request) {
	codeID := chi.URLParam(r, "codeId")

	if err := h.CodeService.Delete(r.Context(), codeID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteCode %s failed: %v", codeID, err))
		http.Error(w, "Could not delete code: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportCodes accepts bulk rows already parsed by the admin frontend. Rows
// with duplicate or missing codes are reported back, not silently dropped.
func (h *Handler) ImportCodes(w http.ResponseWriter, r *http.Request) {
	var rows []models.CodeImportRow
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "no rows provided", http.StatusBadRequest)
		return
	}

	result, err := h.CodeService.Import(r.Context(), rows, h.Config.Booking.Levels[:1], auth.AdminID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ImportCodes failed: %v", err))
		http.Error(w, "Could not import codes: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
