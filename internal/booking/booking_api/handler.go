package booking_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/booking"
	redishold "ms-booking/internal/booking/redis"
	"ms-booking/internal/codes"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type Handler struct {
	BookingService *booking.Service
	CodeService    *codes.Service
	Holds          *redishold.Holds
	Logger         *logger.Logger
}

func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ValidateCode: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.CodeService.Validate(r.Context(), req.Code, req.ParticipantName)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ValidateCode: validation failed: %v", err))
		http.Error(w, "Could not validate code", http.StatusServiceUnavailable)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("ValidateCode: code=%s valid=%t reason=%s", result.Code, result.Valid, result.Reason))
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetSeats(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")

	seats, err := h.BookingService.SeatsForLevel(r.Context(), level)
	if err != nil {
		h.writeError(w, "GetSeats", err)
		return
	}
	writeJSON(w, http.StatusOK, seats)
}

type holdRequest struct {
	HolderID string               `json:"holderId"`
	Requests []models.SeatRequest `json:"requests"`
}

func (h *Handler) HoldSeats(w http.ResponseWriter, r *http.Request) {
	if h.Holds == nil {
		http.Error(w, "seat holds unavailable", http.StatusServiceUnavailable)
		return
	}

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.HolderID == "" || len(req.Requests) == 0 {
		http.Error(w, "holderId and requests are required", http.StatusBadRequest)
		return
	}

	ok, err := h.Holds.HoldSeats(r.Context(), req.Requests, req.HolderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("HoldSeats: redis error: %v", err))
		http.Error(w, "could not hold seats", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"held":   false,
			"detail": "one or more seats are already held",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"held": true})
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req models.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Redeem: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Redeem: code=%s requests=%d", models.NormalizeCode(req.Code), len(req.Requests)))

	created, err := h.BookingService.Redeem(r.Context(), req)
	if err != nil {
		h.writeError(w, "Redeem", err)
		return
	}

	summaries := make([]models.BookingSummary, len(created))
	for i, b := range created {
		summaries[i] = models.BookingSummary{
			ID:        b.ID,
			SeatID:    b.SeatID,
			Level:     b.SessionLevel,
			CreatedAt: b.CreatedAt,
		}
	}
	writeJSON(w, http.StatusCreated, models.RedeemResponse{Success: true, Bookings: summaries})
}

// ListBookings serves the admin booking table; the admin middleware gates it.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	filter := models.BookingFilter{
		Level:  r.URL.Query().Get("level"),
		Code:   r.URL.Query().Get("code"),
		Search: r.URL.Query().Get("search"),
	}

	bookings, err := h.BookingService.ListBookings(r.Context(), filter)
	if err != nil {
		h.writeError(w, "ListBookings", err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// writeError maps service errors onto HTTP statuses. Every rejection reason
// keeps its distinct message; clients show expired, wrong name and taken
// seat differently.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var rejection *booking.Rejection
	if errors.As(err, &rejection) {
		h.Logger.Info("API", fmt.Sprintf("%s: rejected: %v", op, rejection))
		writeJSON(w, statusForReason(rejection.Reason), models.RedeemResponse{
			Success: false,
			Reason:  rejection.Reason,
			Detail:  rejection.Detail,
		})
		return
	}

	if errors.Is(err, booking.ErrStorage) {
		h.Logger.Error("API", fmt.Sprintf("%s: storage failure: %v", op, err))
		writeJSON(w, http.StatusServiceUnavailable, models.RedeemResponse{
			Success: false,
			Reason:  models.ReasonStorageFailure,
			Detail:  "temporary storage failure, please retry",
		})
		return
	}

	h.Logger.Error("API", fmt.Sprintf("%s: internal error: %v", op, err))
	writeJSON(w, http.StatusInternalServerError, models.RedeemResponse{
		Success: false,
		Reason:  models.ReasonInternalError,
		Detail:  "internal error",
	})
}

func statusForReason(reason models.RejectionReason) int {
	switch reason {
	case models.ReasonInvalidRequest:
		return http.StatusBadRequest
	case models.ReasonSeatAlreadyBooked, models.ReasonInsufficientUsage:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
