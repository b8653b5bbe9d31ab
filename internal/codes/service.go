package codes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/codes/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// AdvanceExpiry applies the automatic expiry transitions to a code in place
// and reports whether the status changed. It is the single place where a
// code moves to expired by date or by exhausted usage; both the validator
// and the redemption coordinator call it instead of re-checking the rules
// themselves. Disabled codes never auto-transition.
func AdvanceExpiry(ic *models.InvitationCode, now time.Time) bool {
	if ic.Status != models.CodeStatusActive {
		return false
	}
	if ic.ExpiresAt != nil && ic.ExpiresAt.Before(now) {
		ic.Status = models.CodeStatusExpired
		return true
	}
	if ic.MaxUsage != nil && ic.CurrentUsage >= *ic.MaxUsage {
		ic.Status = models.CodeStatusExpired
		return true
	}
	return false
}

type Service struct {
	DB     *db.DB
	Logger *logger.Logger
}

func NewService(store *db.DB, log *logger.Logger) *Service {
	return &Service{DB: store, Logger: log}
}

// Validate runs the redemption preconditions for a code without consuming
// anything. Safe to call speculatively: its only writes are the idempotent
// expiry transitions. The coordinator re-runs the same checks through
// Evaluate before committing, so a stale valid result never turns into a
// stale booking.
func (s *Service) Validate(ctx context.Context, rawCode, participantName string) (*models.ValidationResult, error) {
	_, result, err := s.Evaluate(ctx, s.DB, rawCode, participantName)
	return result, err
}

// Evaluate is Validate against an explicit store, so the coordinator can run
// it on a transaction-scoped store. Returns the code row alongside the
// result; the row is nil when the code does not exist.
func (s *Service) Evaluate(ctx context.Context, store *db.DB, rawCode, participantName string) (*models.InvitationCode, *models.ValidationResult, error) {
	normalized := models.NormalizeCode(rawCode)
	result := &models.ValidationResult{Code: normalized, AllowedLevels: []string{}}

	if normalized == "" {
		result.Reason = models.ReasonInvalidRequest
		return nil, result, nil
	}

	ic, err := store.GetByCode(ctx, normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("code lookup failed: %w", err)
	}
	if ic == nil {
		s.Logger.Info("CODES", fmt.Sprintf("Validate: code %s not found", normalized))
		result.Reason = models.ReasonCodeInvalid
		return nil, result, nil
	}

	if changed := AdvanceExpiry(ic, time.Now().UTC()); changed {
		if err := store.SetStatus(ctx, ic.ID, ic.Status); err != nil {
			return nil, nil, fmt.Errorf("expiry transition failed: %w", err)
		}
		s.Logger.Info("CODES", fmt.Sprintf("Validate: code %s transitioned to expired", normalized))
	}

	switch ic.Status {
	case models.CodeStatusActive:
	case models.CodeStatusExpired:
		result.Reason = models.ReasonCodeExpired
		return ic, result, nil
	default:
		result.Reason = models.ReasonCodeInvalid
		return ic, result, nil
	}

	if participantName != "" && !ic.NameMatches(participantName) {
		result.Reason = models.ReasonNameMismatch
		return ic, result, nil
	}

	result.Valid = true
	result.AllowedLevels = append(result.AllowedLevels, ic.AllowedLevels...)
	result.RemainingUsage = ic.Remaining()
	result.ParticipantNameRequired = strings.TrimSpace(ic.ParticipantName) != ""
	return ic, result, nil
}

// ---------------- ADMIN OPERATIONS ----------------

func (s *Service) Create(ctx context.Context, ic models.InvitationCode, createdBy string) (*models.InvitationCode, error) {
	ic.Code = models.NormalizeCode(ic.Code)
	if ic.Code == "" {
		return nil, fmt.Errorf("code is required")
	}
	if len(ic.AllowedLevels) == 0 {
		return nil, fmt.Errorf("at least one allowed level is required")
	}
	if ic.MaxUsage != nil && *ic.MaxUsage <= 0 {
		return nil, fmt.Errorf("max usage must be positive")
	}

	existing, err := s.DB.GetByCode(ctx, ic.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("code %s already exists", ic.Code)
	}

	now := time.Now().UTC()
	ic.ID = uuid.NewString()
	if ic.Status == "" {
		ic.Status = models.CodeStatusActive
	}
	ic.CurrentUsage = 0
	ic.CreatedBy = createdBy
	ic.CreatedAt = now
	ic.UpdatedAt = now

	if err := s.DB.Insert(ctx, &ic); err != nil {
		return nil, fmt.Errorf("failed to create code: %w", err)
	}
	s.Logger.Info("CODES", fmt.Sprintf("Created invitation code %s", ic.Code))
	return &ic, nil
}

func (s *Service) Update(ctx context.Context, id string, update models.InvitationCode) (*models.InvitationCode, error) {
	ic, err := s.DB.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("code %s not found: %w", id, err)
	}

	if update.Code != "" {
		ic.Code = models.NormalizeCode(update.Code)
	}
	if update.Status != "" {
		ic.Status = update.Status
	}
	if len(update.AllowedLevels) > 0 {
		ic.AllowedLevels = update.AllowedLevels
	}
	ic.MaxUsage = update.MaxUsage
	ic.ExpiresAt = update.ExpiresAt
	ic.ParticipantName = strings.TrimSpace(update.ParticipantName)
	ic.UpdatedAt = time.Now().UTC()

	if err := s.DB.Update(ctx, ic); err != nil {
		return nil, fmt.Errorf("failed to update code: %w", err)
	}
	return ic, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.DB.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, filter models.CodeFilter) ([]models.InvitationCode, error) {
	return s.DB.List(ctx, filter)
}

// Import creates codes in bulk. Rows with a missing code, a code already in
// the store, or a code duplicated earlier in the batch are reported in the
// result rather than aborting the whole import.
func (s *Service) Import(ctx context.Context, rows []models.CodeImportRow, defaultLevels []string, createdBy string) (*models.ImportResult, error) {
	result := &models.ImportResult{Skipped: []models.SkippedImportRow{}}
	if len(rows) == 0 {
		return result, nil
	}

	normalized := make([]string, 0, len(rows))
	for _, row := range rows {
		if code := models.NormalizeCode(row.Code); code != "" {
			normalized = append(normalized, code)
		}
	}
	existing, err := s.DB.ExistingCodes(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var toInsert []*models.InvitationCode
	for _, row := range rows {
		code := models.NormalizeCode(row.Code)
		if code == "" {
			result.Skipped = append(result.Skipped, models.SkippedImportRow{Code: row.Code, Reason: "code is required"})
			continue
		}
		if existing[code] {
			result.Skipped = append(result.Skipped, models.SkippedImportRow{Code: code, Reason: "code already exists"})
			continue
		}
		if seen[code] {
			result.Skipped = append(result.Skipped, models.SkippedImportRow{Code: code, Reason: "duplicate code in batch"})
			continue
		}
		seen[code] = true

		maxUsage := row.MaxUsage
		if maxUsage == nil {
			one := 1
			maxUsage = &one
		}
		levels := row.AllowedLevels
		if len(levels) == 0 {
			levels = defaultLevels
		}
		toInsert = append(toInsert, &models.InvitationCode{
			ID:              uuid.NewString(),
			Code:            code,
			Status:          models.CodeStatusActive,
			MaxUsage:        maxUsage,
			ExpiresAt:       row.ExpiresAt,
			ParticipantName: strings.TrimSpace(row.ParticipantName),
			AllowedLevels:   models.LevelList(levels),
			CreatedBy:       createdBy,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.DB.InsertMany(ctx, toInsert); err != nil {
		return nil, fmt.Errorf("bulk insert failed: %w", err)
	}
	result.Created = len(toInsert)
	s.Logger.Info("CODES", fmt.Sprintf("Imported %d codes, skipped %d", result.Created, len(result.Skipped)))
	return result, nil
}
