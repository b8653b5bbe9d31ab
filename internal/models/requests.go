package models

import "time"

// RejectionReason identifies why a validation or redemption request was
// refused. Handlers map each reason to a distinct HTTP status and message.
type RejectionReason string

const (
	ReasonCodeInvalid       RejectionReason = "CODE_INVALID"
	ReasonCodeExpired       RejectionReason = "CODE_EXPIRED"
	ReasonNameMismatch      RejectionReason = "NAME_MISMATCH"
	ReasonInsufficientUsage RejectionReason = "INSUFFICIENT_USAGE"
	ReasonLevelNotAllowed   RejectionReason = "LEVEL_NOT_ALLOWED"
	ReasonSeatNotFound      RejectionReason = "SEAT_NOT_FOUND"
	ReasonSeatAlreadyBooked RejectionReason = "SEAT_ALREADY_BOOKED"
	ReasonInvalidRequest    RejectionReason = "INVALID_REQUEST"
	ReasonStorageFailure    RejectionReason = "STORAGE_FAILURE"
	ReasonInternalError     RejectionReason = "INTERNAL_ERROR"
)

type ValidateCodeRequest struct {
	Code            string `json:"code"`
	ParticipantName string `json:"participantName,omitempty"`
}

// ValidationResult is returned to clients probing a code before redemption.
// RemainingUsage is nil for codes without a usage cap.
type ValidationResult struct {
	Code                    string          `json:"code"`
	Valid                   bool            `json:"valid"`
	Reason                  RejectionReason `json:"reason,omitempty"`
	AllowedLevels           []string        `json:"allowedLevels"`
	RemainingUsage          *int            `json:"remainingUsage"`
	ParticipantNameRequired bool            `json:"participantNameRequired"`
}

type SeatRequest struct {
	SeatID string `json:"seatId"`
	Level  string `json:"level"`
}

type Participant struct {
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Email  string `json:"email"`
}

type RedeemRequest struct {
	Code        string        `json:"code"`
	Participant Participant   `json:"participant"`
	Requests    []SeatRequest `json:"requests"`
}

type BookingSummary struct {
	ID        string    `json:"id"`
	SeatID    string    `json:"seatId"`
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

type RedeemResponse struct {
	Success  bool             `json:"success"`
	Bookings []BookingSummary `json:"bookings,omitempty"`
	Reason   RejectionReason  `json:"reason,omitempty"`
	Detail   string           `json:"detail,omitempty"`
}

type SeatAvailability struct {
	SeatID    string `json:"seatId"`
	Row       string `json:"row"`
	Number    int    `json:"number"`
	Available bool   `json:"available"`
}

// BookingFilter narrows the admin booking list. Search matches customer
// name, email and seat id.
type BookingFilter struct {
	Level  string
	Code   string
	Search string
}

// CodeFilter narrows the admin code list.
type CodeFilter struct {
	Search string
	Status CodeStatus
	Usage  string // "", "used" or "unused"
}

// CodeImportRow is one row of a bulk code import.
type CodeImportRow struct {
	Code            string     `json:"code"`
	ParticipantName string     `json:"participantName,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	MaxUsage        *int       `json:"maxUsage,omitempty"`
	AllowedLevels   []string   `json:"allowedLevels,omitempty"`
}

type SkippedImportRow struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Created int                `json:"created"`
	Skipped []SkippedImportRow `json:"skipped"`
}
