package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"log"

	"github.com/go-redis/redis/v8"

	"ms-booking/internal/models"
)

// Holds keeps short-lived advisory claims on (seat, level) pairs while a
// client walks from seat selection to redemption. A hold reduces collisions
// in the UI; it is never the correctness guard. The booking table's unique
// index is.
type Holds struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewHolds(client *redis.Client) *Holds {
	return &Holds{
		Client: client,
		Logger: log.Default(),
	}
}

// holdDuration returns the hold TTL from the environment or the default.
func (h *Holds) holdDuration() time.Duration {
	defaultDuration := 5 * time.Minute

	ttlStr := os.Getenv("SEAT_HOLD_TTL_MINUTES")
	if ttlStr == "" {
		return defaultDuration
	}
	ttlMin, err := strconv.Atoi(ttlStr)
	if err != nil {
		h.Logger.Println("REDIS: invalid SEAT_HOLD_TTL_MINUTES value '" + ttlStr + "', using default 5 minutes")
		return defaultDuration
	}
	return time.Duration(ttlMin) * time.Minute
}

func holdKey(seatID, level string) string {
	return fmt.Sprintf("seat_hold:%s:%s", strings.ToLower(level), seatID)
}

// HoldSeat claims a single pair for holderID. Returns false when someone
// else holds it.
func (h *Holds) HoldSeat(ctx context.Context, seatID, level, holderID string) (bool, error) {
	return h.Client.SetNX(ctx, holdKey(seatID, level), holderID, h.holdDuration()).Result()
}

// ReleaseSeat drops a hold, but only when holderID still owns it.
func (h *Holds) ReleaseSeat(ctx context.Context, seatID, level, holderID string) error {
	key := holdKey(seatID, level)
	val, err := h.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == holderID {
		_, err := h.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// HoldSeats claims every requested pair or none: on the first conflict it
// releases what it already took and reports failure.
func (h *Holds) HoldSeats(ctx context.Context, requests []models.SeatRequest, holderID string) (bool, error) {
	held := []models.SeatRequest{}
	for _, r := range requests {
		ok, err := h.HoldSeat(ctx, r.SeatID, r.Level, holderID)
		if err != nil || !ok {
			for _, taken := range held {
				_ = h.ReleaseSeat(ctx, taken.SeatID, taken.Level, holderID)
			}
			return false, err
		}
		held = append(held, r)
	}
	return true, nil
}

// ReleaseSeats drops holds on every requested pair, returning the first
// error encountered.
func (h *Holds) ReleaseSeats(ctx context.Context, requests []models.SeatRequest, holderID string) error {
	var firstErr error
	for _, r := range requests {
		if err := h.ReleaseSeat(ctx, r.SeatID, r.Level, holderID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HeldSeatIDs returns the seat ids currently held for a level.
func (h *Holds) HeldSeatIDs(ctx context.Context, level string) (map[string]bool, error) {
	prefix := fmt.Sprintf("seat_hold:%s:", strings.ToLower(level))
	held := make(map[string]bool)
	var cursor uint64
	for {
		keys, next, err := h.Client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			held[strings.TrimPrefix(key, prefix)] = true
		}
		if next == 0 {
			return held, nil
		}
		cursor = next
	}
}
