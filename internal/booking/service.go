package booking

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/codes"
	codesdb "ms-booking/internal/codes/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type EventPublisher interface {
	PublishBookingCreated(booking models.Booking) error
	PublishCodeRedeemed(code string, bookings int) error
}

type SeatHolder interface {
	ReleaseSeats(ctx context.Context, requests []models.SeatRequest, holderID string) error
	HeldSeatIDs(ctx context.Context, level string) (map[string]bool, error)
}

type PassGenerator interface {
	GenerateEntryPass(booking models.Booking) ([]byte, error)
}

// Service is the redemption coordinator and the read-side query facade. It
// holds no state of its own; every conflict is arbitrated by the store's
// transaction and constraint guarantees.
type Service struct {
	Bun    *bun.DB
	DB     *bookingdb.DB
	Codes  *codes.Service
	Kafka  EventPublisher
	Holds  SeatHolder
	Passes PassGenerator
	Logger *logger.Logger
}

func NewService(bunDB *bun.DB, store *bookingdb.DB, codeSvc *codes.Service, kafka EventPublisher, holds SeatHolder, passes PassGenerator, log *logger.Logger) *Service {
	return &Service{
		Bun:    bunDB,
		DB:     store,
		Codes:  codeSvc,
		Kafka:  kafka,
		Holds:  holds,
		Passes: passes,
		Logger: log,
	}
}

// Redeem converts a valid code plus seat selections into booking rows.
// Either every requested (seat, level) pair is booked and the code's usage
// is incremented by exactly len(requests), or nothing changes. The in-memory
// checks give callers precise rejections; the unique index on booked
// (seat_id, session_level) and the conditional usage update are what make
// the outcome correct under concurrency.
func (s *Service) Redeem(ctx context.Context, req models.RedeemRequest) ([]models.Booking, error) {
	if err := validateRedeemInput(req); err != nil {
		return nil, err
	}

	// Step 1: re-run the validator against current state. Never trust a
	// client-cached valid result. Expiry transitions persist here even when
	// the redemption itself is rejected.
	ic, result, err := s.Codes.Evaluate(ctx, s.Codes.DB, req.Code, req.Participant.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !result.Valid {
		return nil, rejectionFor(result)
	}

	// Step 2: enough usage left for the whole batch.
	if result.RemainingUsage != nil && len(req.Requests) > *result.RemainingUsage {
		return nil, reject(models.ReasonInsufficientUsage,
			"insufficient usage remaining: you can book up to %d level(s) with this code", *result.RemainingUsage)
	}

	// Step 3: every requested level must be allowed for the code.
	for _, r := range req.Requests {
		if !ic.AllowedLevels.Contains(r.Level) {
			return nil, reject(models.ReasonLevelNotAllowed, "level %q is not allowed for this code", r.Level)
		}
	}

	// Step 4: no duplicate (seat, level) pairs within one call.
	seen := make(map[string]bool, len(req.Requests))
	for _, r := range req.Requests {
		key := r.SeatID + "|" + strings.ToLower(r.Level)
		if seen[key] {
			return nil, reject(models.ReasonInvalidRequest, "duplicate request for seat %s at %s", r.SeatID, r.Level)
		}
		seen[key] = true
	}

	now := time.Now().UTC()
	normalizedCode := models.NormalizeCode(req.Code)
	var created []models.Booking

	// Steps 5-6: existence checks, inserts and the usage increment share one
	// transaction. A conflict anywhere rolls back every booking.
	err = s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		store := bookingdb.New(tx)
		codeStore := codesdb.New(tx)
		created = created[:0]

		seatIDs := make([]string, 0, len(req.Requests))
		for _, r := range req.Requests {
			seatIDs = append(seatIDs, r.SeatID)
		}
		seats, err := store.SeatsByIDs(ctx, seatIDs)
		if err != nil {
			return fmt.Errorf("%w: seat lookup: %v", ErrStorage, err)
		}

		for _, r := range req.Requests {
			if _, ok := seats[r.SeatID]; !ok {
				return reject(models.ReasonSeatNotFound, "seat %s not found", r.SeatID)
			}

			count, err := store.CountBooked(ctx, r.SeatID, r.Level)
			if err != nil {
				return fmt.Errorf("%w: booking lookup: %v", ErrStorage, err)
			}
			if count > 1 {
				return fmt.Errorf("%w: %d booked rows for seat %s at %s", ErrInternal, count, r.SeatID, r.Level)
			}
			if count == 1 {
				return reject(models.ReasonSeatAlreadyBooked, "seat %s is already booked for %s", r.SeatID, r.Level)
			}

			b := models.Booking{
				ID:           uuid.NewString(),
				SeatID:       r.SeatID,
				SessionLevel: r.Level,
				CustomerName: req.Participant.Name,
				MobileNumber: req.Participant.Mobile,
				Email:        req.Participant.Email,
				CodeUsed:     normalizedCode,
				Status:       models.BookingStatusBooked,
				CreatedAt:    now,
			}
			if s.Passes != nil {
				pass, err := s.Passes.GenerateEntryPass(b)
				if err != nil {
					return fmt.Errorf("%w: entry pass generation: %v", ErrInternal, err)
				}
				b.QRCode = pass
			}

			// A concurrent redemption of the same pair surfaces here as a
			// unique-index violation, not as a double booking.
			if err := store.InsertBooking(ctx, &b); err != nil {
				if err == bookingdb.ErrSeatTaken {
					return reject(models.ReasonSeatAlreadyBooked, "seat %s is already booked for %s", r.SeatID, r.Level)
				}
				return fmt.Errorf("%w: booking insert: %v", ErrStorage, err)
			}
			created = append(created, b)
		}

		// Conditional increment: fails when a concurrent redemption consumed
		// the remaining usage, or an admin disabled the code mid-flight.
		ok, err := codeStore.ConsumeUsage(ctx, ic.ID, len(req.Requests))
		if err != nil {
			return fmt.Errorf("%w: usage increment: %v", ErrStorage, err)
		}
		if !ok {
			return reject(models.ReasonInsufficientUsage,
				"insufficient usage remaining: the code was redeemed or changed concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("BOOKING", fmt.Sprintf("Redeemed code %s: %d booking(s)", normalizedCode, len(created)))
	s.afterCommit(ctx, req, created, normalizedCode)
	return created, nil
}

// afterCommit handles the non-transactional side effects of a successful
// redemption: releasing seat holds and publishing events. Failures here are
// logged, never surfaced; the bookings are already durable.
func (s *Service) afterCommit(ctx context.Context, req models.RedeemRequest, created []models.Booking, code string) {
	if s.Holds != nil {
		if err := s.Holds.ReleaseSeats(ctx, req.Requests, code); err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to release seat holds for %s: %v", code, err))
		}
	}
	if s.Kafka == nil {
		return
	}
	for _, b := range created {
		if err := s.Kafka.PublishBookingCreated(b); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish booking created for %s: %v", b.ID, err))
		}
	}
	if err := s.Kafka.PublishCodeRedeemed(code, len(created)); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish code redeemed for %s: %v", code, err))
	}
}

// ---------------- QUERY FACADE ----------------

// SeatsForLevel reports per-level availability. A seat held in Redis by an
// in-flight client shows as unavailable, but the hold is advisory; only a
// booked row makes the seat durably taken.
func (s *Service) SeatsForLevel(ctx context.Context, level string) ([]models.SeatAvailability, error) {
	if strings.TrimSpace(level) == "" {
		return nil, reject(models.ReasonInvalidRequest, "level is required")
	}
	seats, err := s.DB.SeatsForLevel(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if s.Holds != nil {
		held, err := s.Holds.HeldSeatIDs(ctx, level)
		if err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Seat hold lookup failed for %s: %v", level, err))
		} else {
			for i := range seats {
				if held[seats[i].SeatID] {
					seats[i].Available = false
				}
			}
		}
	}
	return seats, nil
}

func (s *Service) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	bookings, err := s.DB.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return bookings, nil
}

func validateRedeemInput(req models.RedeemRequest) error {
	if models.NormalizeCode(req.Code) == "" {
		return reject(models.ReasonInvalidRequest, "code is required")
	}
	if strings.TrimSpace(req.Participant.Name) == "" ||
		strings.TrimSpace(req.Participant.Mobile) == "" ||
		strings.TrimSpace(req.Participant.Email) == "" {
		return reject(models.ReasonInvalidRequest, "participant name, mobile and email are required")
	}
	if len(req.Requests) == 0 {
		return reject(models.ReasonInvalidRequest, "no seat requests provided")
	}
	for _, r := range req.Requests {
		if strings.TrimSpace(r.SeatID) == "" || strings.TrimSpace(r.Level) == "" {
			return reject(models.ReasonInvalidRequest, "each request must have a seat id and a level")
		}
	}
	return nil
}

func rejectionFor(result *models.ValidationResult) *Rejection {
	switch result.Reason {
	case models.ReasonCodeExpired:
		return reject(models.ReasonCodeExpired, "this invitation code has expired")
	case models.ReasonNameMismatch:
		return reject(models.ReasonNameMismatch, "your name does not match the invitation")
	case models.ReasonInvalidRequest:
		return reject(models.ReasonInvalidRequest, "code is required")
	default:
		return reject(models.ReasonCodeInvalid, "this invitation code is not valid")
	}
}
