// Command seed populates the seat inventory and, optionally, a set of demo
// invitation codes. It is safe to run repeatedly; existing rows are left
// untouched.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/config"
	"ms-booking/internal/models"
)

func verifyConnection(cfg *config.Config) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.PostgresDSN())
	if err != nil {
		log.Fatalf("[Database] Failed to open PostgreSQL: %v", err)
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatalf("[Database] Failed to connect to PostgreSQL: %v", err)
	}
	log.Println("[Database] PostgreSQL connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func buildSeats(rows string, perRow int) []models.Seat {
	var seats []models.Seat
	for _, r := range strings.Split(rows, ",") {
		r = strings.TrimSpace(strings.ToUpper(r))
		if r == "" {
			continue
		}
		for n := 1; n <= perRow; n++ {
			seats = append(seats, models.Seat{
				ID:     fmt.Sprintf("%s%d", r, n),
				Row:    r,
				Number: n,
			})
		}
	}
	return seats
}

func demoCodes(levels []string) []models.InvitationCode {
	now := time.Now().UTC()
	maxFive := 5
	maxOne := 1
	name := "Asha Rao"

	return []models.InvitationCode{
		{
			ID:            uuid.New().String(),
			Code:          "GURU2025",
			Status:        models.CodeStatusActive,
			MaxUsage:      &maxFive,
			AllowedLevels: models.LevelList(levels),
			CreatedBy:     "seed",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:              uuid.New().String(),
			Code:            "VIP-ASHA",
			Status:          models.CodeStatusActive,
			MaxUsage:        &maxOne,
			ParticipantName: name,
			AllowedLevels:   models.LevelList(levels[:1]),
			CreatedBy:       "seed",
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

func main() {
	_ = godotenv.Load()

	rows := flag.String("rows", getEnv("SEAT_ROWS", "A,B,C"), "comma separated seat rows")
	perRow := flag.Int("per-row", 10, "seats per row")
	withCodes := flag.Bool("demo", false, "also insert demo invitation codes")
	flag.Parse()

	cfg := config.Load()
	bunDB := verifyConnection(cfg)
	defer bunDB.Close()

	ctx := context.Background()

	seats := buildSeats(*rows, *perRow)
	res, err := bunDB.NewInsert().
		Model(&seats).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		log.Fatalf("[Seed] Failed to insert seats: %v", err)
	}
	inserted, _ := res.RowsAffected()
	log.Printf("[Seed] Seat inventory ready: %d seats defined, %d newly inserted", len(seats), inserted)

	if *withCodes {
		codes := demoCodes(cfg.Booking.Levels)
		res, err := bunDB.NewInsert().
			Model(&codes).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			log.Fatalf("[Seed] Failed to insert demo codes: %v", err)
		}
		inserted, _ := res.RowsAffected()
		log.Printf("[Seed] Demo codes ready: %d newly inserted", inserted)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
