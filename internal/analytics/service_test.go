package analytics_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/analytics"
	"ms-booking/internal/models"
)

var testLevels = []string{"Level 1", "Level 2", "Level 3"}

func setupService(t *testing.T) (*analytics.Service, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	err = bunDB.ResetModel(ctx, (*models.Seat)(nil), (*models.Booking)(nil))
	require.NoError(t, err)

	var seats []models.Seat
	for n := 1; n <= 10; n++ {
		seats = append(seats, models.Seat{ID: fmt.Sprintf("A%d", n), Row: "A", Number: n})
	}
	_, err = bunDB.NewInsert().Model(&seats).Exec(ctx)
	require.NoError(t, err)

	return analytics.NewService(bunDB, testLevels), bunDB
}

func book(t *testing.T, bunDB *bun.DB, seatID, level, email string) {
	t.Helper()
	b := &models.Booking{
		ID:           fmt.Sprintf("bk-%s-%s", seatID, level),
		SeatID:       seatID,
		SessionLevel: level,
		CustomerName: "Asha Rao",
		MobileNumber: "0771234567",
		Email:        email,
		CodeUsed:     "GURU2025",
		Status:       models.BookingStatusBooked,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := bunDB.NewInsert().Model(b).Exec(context.Background())
	require.NoError(t, err)
}

func TestLevelOccupancyBuckets(t *testing.T) {
	svc, bunDB := setupService(t)

	// Level 1 at 90%, Level 2 at 60%, Level 3 at 10%.
	for n := 1; n <= 9; n++ {
		book(t, bunDB, fmt.Sprintf("A%d", n), "Level 1", fmt.Sprintf("p%d@example.com", n))
	}
	for n := 1; n <= 6; n++ {
		book(t, bunDB, fmt.Sprintf("A%d", n), "Level 2", fmt.Sprintf("q%d@example.com", n))
	}
	book(t, bunDB, "A1", "Level 3", "r1@example.com")

	levels, err := svc.LevelOccupancies(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 3)

	byLevel := map[string]analytics.LevelOccupancy{}
	for _, l := range levels {
		byLevel[l.Level] = l
	}

	assert.Equal(t, 90.0, byLevel["Level 1"].PercentageFilled)
	assert.Equal(t, "red", byLevel["Level 1"].Status)
	assert.Equal(t, 1, byLevel["Level 1"].AvailableSeats)

	assert.Equal(t, 60.0, byLevel["Level 2"].PercentageFilled)
	assert.Equal(t, "yellow", byLevel["Level 2"].Status)

	assert.Equal(t, 10.0, byLevel["Level 3"].PercentageFilled)
	assert.Equal(t, "green", byLevel["Level 3"].Status)
}

func TestLevelOccupancyEmptyVenue(t *testing.T) {
	svc, _ := setupService(t)

	levels, err := svc.LevelOccupancies(context.Background())
	require.NoError(t, err)
	for _, l := range levels {
		assert.Equal(t, 10, l.TotalSeats)
		assert.Equal(t, 0, l.BookedSeats)
		assert.Equal(t, 0.0, l.PercentageFilled)
		assert.Equal(t, "green", l.Status)
	}
}

func TestOverviewParticipants(t *testing.T) {
	svc, bunDB := setupService(t)

	// Asha attends two levels, Ravi one, and Asha's email casing varies.
	book(t, bunDB, "A1", "Level 1", "asha@example.com")
	book(t, bunDB, "A1", "Level 2", "ASHA@example.com")
	book(t, bunDB, "A2", "Level 1", "ravi@example.com")

	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, overview.TotalBookings)
	assert.Equal(t, 2, overview.UniqueParticipants)
	assert.Equal(t, 1, overview.MultiLevelParticipants)
	assert.Len(t, overview.Levels, 3)
}
