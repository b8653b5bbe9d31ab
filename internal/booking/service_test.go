package booking_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/booking/qr"
	"ms-booking/internal/codes"
	codesdb "ms-booking/internal/codes/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// mockPublisher records published events so tests can assert on the
// side effects of a committed redemption.
type mockPublisher struct {
	mu       sync.Mutex
	created  []models.Booking
	redeemed map[string]int
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{redeemed: make(map[string]int)}
}

func (m *mockPublisher) PublishBookingCreated(b models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, b)
	return nil
}

func (m *mockPublisher) PublishCodeRedeemed(code string, bookings int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redeemed[code] += bookings
	return nil
}

type testEnv struct {
	svc       *booking.Service
	codes     *codes.Service
	store     *bookingdb.DB
	publisher *mockPublisher
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// A single connection serializes the concurrent redemptions the same way
	// Postgres serializes conflicting writers.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	err = bunDB.ResetModel(ctx, (*models.InvitationCode)(nil), (*models.Seat)(nil), (*models.Booking)(nil))
	require.NoError(t, err)

	_, err = bunDB.ExecContext(ctx, `CREATE UNIQUE INDEX ux_bookings_seat_level
		ON bookings (seat_id, LOWER(session_level))
		WHERE status = 'booked'`)
	require.NoError(t, err)

	log := logger.NewLogger()
	t.Cleanup(log.Close)

	codeSvc := codes.NewService(codesdb.New(bunDB), log)
	store := bookingdb.New(bunDB)
	publisher := newMockPublisher()

	var seats []models.Seat
	for _, row := range []string{"A", "B"} {
		for n := 1; n <= 5; n++ {
			seats = append(seats, models.Seat{ID: fmt.Sprintf("%s%d", row, n), Row: row, Number: n})
		}
	}
	require.NoError(t, store.InsertSeats(ctx, seats))

	svc := booking.NewService(bunDB, store, codeSvc, publisher, nil, qr.NewGenerator("test-secret"), log)

	return &testEnv{svc: svc, codes: codeSvc, store: store, publisher: publisher}
}

func (e *testEnv) seedCode(t *testing.T, code string, maxUsage *int, levels ...string) *models.InvitationCode {
	t.Helper()
	if len(levels) == 0 {
		levels = []string{"Level 1", "Level 2", "Level 3"}
	}
	created, err := e.codes.Create(context.Background(), models.InvitationCode{
		Code:          code,
		MaxUsage:      maxUsage,
		AllowedLevels: models.LevelList(levels),
	}, "test-admin")
	require.NoError(t, err)
	return created
}

func redeemRequest(code string, pairs ...models.SeatRequest) models.RedeemRequest {
	return models.RedeemRequest{
		Code: code,
		Participant: models.Participant{
			Name:   "Asha Rao",
			Mobile: "0771234567",
			Email:  "asha@example.com",
		},
		Requests: pairs,
	}
}

func requireRejection(t *testing.T, err error, reason models.RejectionReason) *booking.Rejection {
	t.Helper()
	var rej *booking.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, reason, rej.Reason)
	return rej
}

func TestRedeemMultipleLevels(t *testing.T) {
	env := setupEnv(t)
	five := 5
	ic := env.seedCode(t, "GURU2025", &five)

	created, err := env.svc.Redeem(context.Background(), redeemRequest("guru2025",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
		models.SeatRequest{SeatID: "B3", Level: "Level 2"},
	))
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, b := range created {
		assert.Equal(t, "GURU2025", b.CodeUsed)
		assert.Equal(t, models.BookingStatusBooked, b.Status)
		assert.NotEmpty(t, b.QRCode)
	}

	reloaded, err := env.codes.DB.GetByID(context.Background(), ic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.CurrentUsage)
	assert.Equal(t, models.CodeStatusActive, reloaded.Status)

	assert.Len(t, env.publisher.created, 2)
	assert.Equal(t, 2, env.publisher.redeemed["GURU2025"])
}

func TestRedeemRollsBackOnConflict(t *testing.T) {
	env := setupEnv(t)
	five := 5
	ic := env.seedCode(t, "GURU2025", &five)

	// B2 at Level 2 is already taken by someone else.
	taken := &models.Booking{
		ID:           "existing",
		SeatID:       "B2",
		SessionLevel: "Level 2",
		CustomerName: "Ravi Kumar",
		MobileNumber: "0719999999",
		Email:        "ravi@example.com",
		CodeUsed:     "OTHER99",
		Status:       models.BookingStatusBooked,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, env.store.InsertBooking(context.Background(), taken))

	_, err := env.svc.Redeem(context.Background(), redeemRequest("GURU2025",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
		models.SeatRequest{SeatID: "B2", Level: "Level 2"},
		models.SeatRequest{SeatID: "A3", Level: "Level 3"},
	))
	requireRejection(t, err, models.ReasonSeatAlreadyBooked)

	// Nothing from the batch may survive, including the pairs that were free.
	all, listErr := env.store.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, listErr)
	require.Len(t, all, 1)
	assert.Equal(t, "existing", all[0].ID)

	reloaded, err := env.codes.DB.GetByID(context.Background(), ic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.CurrentUsage)

	assert.Empty(t, env.publisher.created)
}

func TestRedeemLevelNotAllowed(t *testing.T) {
	env := setupEnv(t)
	env.seedCode(t, "L1ONLY", nil, "Level 1")

	_, err := env.svc.Redeem(context.Background(), redeemRequest("L1ONLY",
		models.SeatRequest{SeatID: "A1", Level: "Level 3"},
	))
	requireRejection(t, err, models.ReasonLevelNotAllowed)
}

func TestRedeemSeatNotFound(t *testing.T) {
	env := setupEnv(t)
	env.seedCode(t, "GURU2025", nil)

	_, err := env.svc.Redeem(context.Background(), redeemRequest("GURU2025",
		models.SeatRequest{SeatID: "Z9", Level: "Level 1"},
	))
	requireRejection(t, err, models.ReasonSeatNotFound)
}

func TestRedeemDuplicatePairInRequest(t *testing.T) {
	env := setupEnv(t)
	env.seedCode(t, "GURU2025", nil)

	_, err := env.svc.Redeem(context.Background(), redeemRequest("GURU2025",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
		models.SeatRequest{SeatID: "A1", Level: "level 1"},
	))
	requireRejection(t, err, models.ReasonInvalidRequest)
}

func TestRedeemBatchLargerThanRemaining(t *testing.T) {
	env := setupEnv(t)
	one := 1
	env.seedCode(t, "JUSTONE", &one)

	_, err := env.svc.Redeem(context.Background(), redeemRequest("JUSTONE",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
		models.SeatRequest{SeatID: "A2", Level: "Level 2"},
	))
	requireRejection(t, err, models.ReasonInsufficientUsage)
}

func TestRedeemExhaustsSingleUseCode(t *testing.T) {
	env := setupEnv(t)
	one := 1
	ic := env.seedCode(t, "JUSTONE", &one)

	created, err := env.svc.Redeem(context.Background(), redeemRequest("JUSTONE",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
	))
	require.NoError(t, err)
	require.Len(t, created, 1)

	reloaded, err := env.codes.DB.GetByID(context.Background(), ic.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusExpired, reloaded.Status)

	// Second attempt with the now exhausted code.
	_, err = env.svc.Redeem(context.Background(), redeemRequest("JUSTONE",
		models.SeatRequest{SeatID: "A2", Level: "Level 1"},
	))
	requireRejection(t, err, models.ReasonCodeExpired)
}

func TestRedeemNameMismatch(t *testing.T) {
	env := setupEnv(t)
	_, err := env.codes.Create(context.Background(), models.InvitationCode{
		Code:            "VIP-RAVI",
		ParticipantName: "Ravi Kumar",
		AllowedLevels:   models.LevelList{"Level 1"},
	}, "test-admin")
	require.NoError(t, err)

	_, err = env.svc.Redeem(context.Background(), redeemRequest("VIP-RAVI",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
	))
	requireRejection(t, err, models.ReasonNameMismatch)
}

func TestRedeemInvalidInput(t *testing.T) {
	env := setupEnv(t)

	cases := []struct {
		name string
		req  models.RedeemRequest
	}{
		{"missing code", models.RedeemRequest{
			Participant: models.Participant{Name: "A", Mobile: "1", Email: "a@b.c"},
			Requests:    []models.SeatRequest{{SeatID: "A1", Level: "Level 1"}},
		}},
		{"missing participant", models.RedeemRequest{
			Code:     "GURU2025",
			Requests: []models.SeatRequest{{SeatID: "A1", Level: "Level 1"}},
		}},
		{"no seat requests", redeemRequest("GURU2025")},
		{"blank seat id", redeemRequest("GURU2025", models.SeatRequest{SeatID: " ", Level: "Level 1"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Redeem(context.Background(), tc.req)
			requireRejection(t, err, models.ReasonInvalidRequest)
		})
	}
}

func TestConcurrentRedemptionsSameSeat(t *testing.T) {
	env := setupEnv(t)

	const workers = 8
	for i := 0; i < workers; i++ {
		env.seedCode(t, fmt.Sprintf("RACE%d", i), nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Redeem(context.Background(), redeemRequest(fmt.Sprintf("RACE%d", i),
				models.SeatRequest{SeatID: "B5", Level: "Level 1"},
			))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		requireRejection(t, err, models.ReasonSeatAlreadyBooked)
	}
	assert.Equal(t, 1, successes, "exactly one redemption may win the seat")

	all, err := env.store.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentRedemptionsSingleUseCode(t *testing.T) {
	env := setupEnv(t)
	one := 1
	ic := env.seedCode(t, "JUSTONE", &one)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Redeem(context.Background(), redeemRequest("JUSTONE",
				models.SeatRequest{SeatID: fmt.Sprintf("A%d", i+1), Level: "Level 1"},
			))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		// Losers see either the conditional increment fail or, when they
		// validate after the winner committed, the expiry it caused.
		var rej *booking.Rejection
		require.ErrorAs(t, err, &rej)
		assert.Contains(t, []models.RejectionReason{
			models.ReasonInsufficientUsage,
			models.ReasonCodeExpired,
		}, rej.Reason)
	}
	assert.Equal(t, 1, successes, "a single-use code admits exactly one redemption")

	reloaded, err := env.codes.DB.GetByID(context.Background(), ic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentUsage)
	assert.Equal(t, models.CodeStatusExpired, reloaded.Status)

	all, err := env.store.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSeatsForLevelRequiresLevel(t *testing.T) {
	env := setupEnv(t)

	_, err := env.svc.SeatsForLevel(context.Background(), "  ")
	requireRejection(t, err, models.ReasonInvalidRequest)
}

func TestSeatsForLevelReflectsBookings(t *testing.T) {
	env := setupEnv(t)
	env.seedCode(t, "GURU2025", nil)

	_, err := env.svc.Redeem(context.Background(), redeemRequest("GURU2025",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
	))
	require.NoError(t, err)

	seats, err := env.svc.SeatsForLevel(context.Background(), "Level 1")
	require.NoError(t, err)

	byID := make(map[string]bool, len(seats))
	for _, s := range seats {
		byID[s.SeatID] = s.Available
	}
	assert.False(t, byID["A1"])
	assert.True(t, byID["A2"])
}

func TestRejectionErrorShape(t *testing.T) {
	env := setupEnv(t)

	_, err := env.svc.Redeem(context.Background(), redeemRequest("UNKNOWN",
		models.SeatRequest{SeatID: "A1", Level: "Level 1"},
	))
	require.Error(t, err)
	assert.False(t, errors.Is(err, booking.ErrStorage))
	assert.False(t, errors.Is(err, booking.ErrInternal))
	requireRejection(t, err, models.ReasonCodeInvalid)
}
