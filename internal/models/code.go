package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type CodeStatus string

const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusDisabled CodeStatus = "disabled"
	CodeStatusExpired  CodeStatus = "expired"
)

// LevelList stores the allowed session levels as a JSON array so the same
// model works against Postgres and the SQLite test databases.
type LevelList []string

func (l LevelList) Value() (driver.Value, error) {
	if l == nil {
		l = LevelList{}
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *LevelList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = LevelList{}
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return fmt.Errorf("unsupported level list type %T", src)
	}
}

func (l LevelList) Contains(level string) bool {
	for _, allowed := range l {
		if strings.EqualFold(allowed, level) {
			return true
		}
	}
	return false
}

type InvitationCode struct {
	bun.BaseModel `bun:"table:invitation_codes"`

	ID              string     `bun:"id,pk" json:"id"`
	Code            string     `bun:"code,notnull" json:"code"`
	Status          CodeStatus `bun:"status,notnull" json:"status"`
	CurrentUsage    int        `bun:"current_usage,notnull" json:"currentUsage"`
	MaxUsage        *int       `bun:"max_usage" json:"maxUsage"`
	ExpiresAt       *time.Time `bun:"expires_at" json:"expiresAt"`
	ParticipantName string     `bun:"participant_name,nullzero" json:"participantName"`
	AllowedLevels   LevelList  `bun:"allowed_levels" json:"allowedLevels"`
	CreatedBy       string     `bun:"created_by,nullzero" json:"createdBy"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
}

// NormalizeCode canonicalizes an invitation code for storage and lookup.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeName canonicalizes a participant name for comparison: case folded
// and with runs of whitespace collapsed.
func NormalizeName(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

// Remaining returns the usage still available on the code, or nil when the
// code has no usage cap.
func (c *InvitationCode) Remaining() *int {
	if c.MaxUsage == nil {
		return nil
	}
	left := *c.MaxUsage - c.CurrentUsage
	if left < 0 {
		left = 0
	}
	return &left
}

// NameMatches reports whether the provided participant name satisfies the
// name binding on the code. Codes without a bound name accept any caller.
func (c *InvitationCode) NameMatches(provided string) bool {
	if strings.TrimSpace(c.ParticipantName) == "" {
		return true
	}
	return NormalizeName(provided) == NormalizeName(c.ParticipantName)
}
