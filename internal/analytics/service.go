package analytics

import (
	"context"
	"math"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// Service computes read-side occupancy aggregates. Everything is derived
// from the seats and bookings tables on demand; nothing is materialized.
type Service struct {
	db     *bun.DB
	levels []string
}

func NewService(db *bun.DB, levels []string) *Service {
	return &Service{db: db, levels: levels}
}

// LevelOccupancy summarizes how full one session level is.
type LevelOccupancy struct {
	Level            string  `json:"level"`
	TotalSeats       int     `json:"totalSeats"`
	BookedSeats      int     `json:"bookedSeats"`
	AvailableSeats   int     `json:"availableSeats"`
	PercentageFilled float64 `json:"percentageFilled"`
	Status           string  `json:"status"`
}

// OverallAnalytics aggregates participation across all levels.
type OverallAnalytics struct {
	TotalBookings          int              `json:"totalBookings"`
	UniqueParticipants     int              `json:"uniqueParticipants"`
	MultiLevelParticipants int              `json:"multiLevelParticipants"`
	Levels                 []LevelOccupancy `json:"levelStats"`
}

// LevelOccupancies returns per-level fill rates for every configured level.
func (s *Service) LevelOccupancies(ctx context.Context) ([]LevelOccupancy, error) {
	totalSeats, err := s.db.NewSelect().Model((*models.Seat)(nil)).Count(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]LevelOccupancy, 0, len(s.levels))
	for _, level := range s.levels {
		booked, err := s.db.NewSelect().
			Model((*models.Booking)(nil)).
			Where("LOWER(session_level) = LOWER(?)", level).
			Where("status = ?", models.BookingStatusBooked).
			Count(ctx)
		if err != nil {
			return nil, err
		}

		pct := 0.0
		if totalSeats > 0 {
			pct = math.Round(float64(booked)/float64(totalSeats)*1000) / 10
		}
		out = append(out, LevelOccupancy{
			Level:            level,
			TotalSeats:       totalSeats,
			BookedSeats:      booked,
			AvailableSeats:   totalSeats - booked,
			PercentageFilled: pct,
			Status:           fillStatus(pct),
		})
	}
	return out, nil
}

// Overview returns the participation summary shown on the admin dashboard.
func (s *Service) Overview(ctx context.Context) (*OverallAnalytics, error) {
	levels, err := s.LevelOccupancies(ctx)
	if err != nil {
		return nil, err
	}

	total, err := s.db.NewSelect().
		Model((*models.Booking)(nil)).
		Where("status = ?", models.BookingStatusBooked).
		Count(ctx)
	if err != nil {
		return nil, err
	}

	var unique int
	err = s.db.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("COUNT(DISTINCT LOWER(email))").
		Where("status = ?", models.BookingStatusBooked).
		Scan(ctx, &unique)
	if err != nil {
		return nil, err
	}

	var multiLevel int
	err = s.db.NewRaw(
		`SELECT COUNT(*) FROM (
			SELECT LOWER(email) AS email
			FROM bookings
			WHERE status = ?
			GROUP BY LOWER(email)
			HAVING COUNT(DISTINCT LOWER(session_level)) > 1
		) multi`, models.BookingStatusBooked).
		Scan(ctx, &multiLevel)
	if err != nil {
		return nil, err
	}

	return &OverallAnalytics{
		TotalBookings:          total,
		UniqueParticipants:     unique,
		MultiLevelParticipants: multiLevel,
		Levels:                 levels,
	}, nil
}

// fillStatus buckets a fill percentage for the dashboard traffic light:
// green below 60%, yellow between 60% and 85%, red above.
func fillStatus(pct float64) string {
	switch {
	case pct > 85:
		return "red"
	case pct >= 60:
		return "yellow"
	default:
		return "green"
	}
}
