package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// DB is the invitation-code store. It wraps a bun.IDB so the same methods
// run against the root connection or inside a redemption transaction.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

// GetByCode looks up a code case-insensitively by its normalized form.
// Returns (nil, nil) when no such code exists.
func (d *DB) GetByCode(ctx context.Context, code string) (*models.InvitationCode, error) {
	var ic models.InvitationCode
	err := d.Bun.NewSelect().
		Model(&ic).
		Where("UPPER(code) = ?", models.NormalizeCode(code)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ic, nil
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.InvitationCode, error) {
	var ic models.InvitationCode
	err := d.Bun.NewSelect().
		Model(&ic).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ic, nil
}

func (d *DB) Insert(ctx context.Context, ic *models.InvitationCode) error {
	_, err := d.Bun.NewInsert().Model(ic).Exec(ctx)
	return err
}

func (d *DB) InsertMany(ctx context.Context, ics []*models.InvitationCode) error {
	if len(ics) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&ics).Exec(ctx)
	return err
}

func (d *DB) Update(ctx context.Context, ic *models.InvitationCode) error {
	_, err := d.Bun.NewUpdate().
		Model(ic).
		Column("code", "status", "current_usage", "max_usage", "expires_at",
			"participant_name", "allowed_levels", "updated_at").
		Where("id = ?", ic.ID).
		Exec(ctx)
	return err
}

func (d *DB) Delete(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.InvitationCode)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// SetStatus records a status transition, used for the idempotent expiry
// side effect during validation.
func (d *DB) SetStatus(ctx context.Context, id string, status models.CodeStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.InvitationCode)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ConsumeUsage atomically increments current_usage by n, expiring the code
// when the cap is reached. The WHERE clause makes the increment a
// compare-and-swap: it only fires while the code is active and the new usage
// stays within max_usage. Returns false when the guard fails, meaning a
// concurrent redemption or admin edit won the race.
func (d *DB) ConsumeUsage(ctx context.Context, id string, n int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.InvitationCode)(nil)).
		Set("current_usage = current_usage + ?", n).
		Set("status = CASE WHEN max_usage IS NOT NULL AND current_usage + ? >= max_usage THEN ? ELSE status END",
			n, models.CodeStatusExpired).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.CodeStatusActive).
		Where("(max_usage IS NULL OR current_usage + ? <= max_usage)", n).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// List returns codes matching the admin filter, newest first.
func (d *DB) List(ctx context.Context, filter models.CodeFilter) ([]models.InvitationCode, error) {
	var ics []models.InvitationCode
	q := d.Bun.NewSelect().Model(&ics).Order("created_at DESC")

	if filter.Search != "" {
		pattern := "%" + models.NormalizeCode(filter.Search) + "%"
		q = q.Where("UPPER(code) LIKE ? OR UPPER(participant_name) LIKE ?", pattern, pattern)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	switch filter.Usage {
	case "used":
		q = q.Where("current_usage > 0")
	case "unused":
		q = q.Where("current_usage = 0")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if ics == nil {
		ics = []models.InvitationCode{}
	}
	return ics, nil
}

// ExistingCodes returns which of the given normalized codes are already in
// the store. Used by bulk import to report duplicates instead of failing.
func (d *DB) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(codes) == 0 {
		return existing, nil
	}
	var found []string
	err := d.Bun.NewSelect().
		Model((*models.InvitationCode)(nil)).
		Column("code").
		Where("UPPER(code) IN (?)", bun.In(codes)).
		Scan(ctx, &found)
	if err != nil {
		return nil, err
	}
	for _, c := range found {
		existing[models.NormalizeCode(c)] = true
	}
	return existing, nil
}
