package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// ErrSeatTaken is returned when inserting a booking hits the unique index on
// (seat_id, session_level) among booked rows. The index is the authoritative
// guard against double booking; this error is how a losing writer finds out.
var ErrSeatTaken = errors.New("seat already booked for this level")

// DB is the seat and booking store. It wraps a bun.IDB so the same methods
// run against the root connection or inside a redemption transaction.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

// ---------------- SEATS ----------------

func (d *DB) AllSeats(ctx context.Context) ([]models.Seat, error) {
	var seats []models.Seat
	err := d.Bun.NewSelect().
		Model(&seats).
		Order("row", "number").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return seats, nil
}

// SeatsByIDs returns the subset of the given seat ids that exist in the
// inventory.
func (d *DB) SeatsByIDs(ctx context.Context, ids []string) (map[string]models.Seat, error) {
	found := make(map[string]models.Seat)
	if len(ids) == 0 {
		return found, nil
	}
	var seats []models.Seat
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range seats {
		found[s.ID] = s
	}
	return found, nil
}

func (d *DB) InsertSeats(ctx context.Context, seats []models.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&seats).Exec(ctx)
	return err
}

// ---------------- BOOKINGS ----------------

// CountBooked returns how many booked rows exist for the exact (seat, level)
// pair. The schema allows at most one; a higher count is an invariant
// violation the coordinator must surface, not paper over.
func (d *DB) CountBooked(ctx context.Context, seatID, level string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("seat_id = ?", seatID).
		Where("LOWER(session_level) = LOWER(?)", level).
		Where("status = ?", models.BookingStatusBooked).
		Count(ctx)
}

// BookedSeatIDs returns the ids of seats already booked for the given level.
func (d *DB) BookedSeatIDs(ctx context.Context, level string) (map[string]bool, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Column("seat_id").
		Where("LOWER(session_level) = LOWER(?)", level).
		Where("status = ?", models.BookingStatusBooked).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(ids))
	for _, id := range ids {
		booked[id] = true
	}
	return booked, nil
}

// SeatsForLevel returns the full seat inventory annotated with availability
// for one level. Availability is derived from booked rows at read time;
// the same seat can be free at one level and taken at another.
func (d *DB) SeatsForLevel(ctx context.Context, level string) ([]models.SeatAvailability, error) {
	seats, err := d.AllSeats(ctx)
	if err != nil {
		return nil, err
	}
	booked, err := d.BookedSeatIDs(ctx, level)
	if err != nil {
		return nil, err
	}
	out := make([]models.SeatAvailability, len(seats))
	for i, s := range seats {
		out[i] = models.SeatAvailability{
			SeatID:    s.ID,
			Row:       s.Row,
			Number:    s.Number,
			Available: !booked[s.ID],
		}
	}
	return out, nil
}

// InsertBooking inserts one booking row, translating a unique-index
// violation on (seat_id, session_level) into ErrSeatTaken.
func (d *DB) InsertBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return ErrSeatTaken
	}
	return err
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBookings returns booked rows matching the admin filter, newest first.
func (d *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	q := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.BookingStatusBooked).
		Order("created_at DESC")

	if filter.Level != "" {
		q = q.Where("LOWER(session_level) = LOWER(?)", filter.Level)
	}
	if filter.Code != "" {
		q = q.Where("UPPER(code_used) = ?", models.NormalizeCode(filter.Code))
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where("LOWER(customer_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(seat_id) LIKE ?",
			pattern, pattern, pattern)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// isUniqueViolation recognizes unique-constraint errors from Postgres
// (lib/pq class 23505) and from the SQLite driver used in tests.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
