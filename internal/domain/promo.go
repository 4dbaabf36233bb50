package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PromoCode is a distributable code that grants access when redeemed
type PromoCode struct {
	Code         string     `json:"code" db:"code"`
	Active       bool       `json:"active" db:"active"`
	PlanType     PlanType   `json:"plan_type" db:"plan_type"`
	DurationDays *int       `json:"duration_days,omitempty" db:"duration_days"`
	MaxUses      int        `json:"max_uses" db:"max_uses"`
	CurrentUses  int        `json:"current_uses" db:"current_uses"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Exhausted reports whether the code has no uses left
func (c *PromoCode) Exhausted() bool {
	return c.CurrentUses >= c.MaxUses
}

// ExpiredAt reports whether the code is past its expiry at now
func (c *PromoCode) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Redemption anchors "this user used this code"; unique on (Code, UserID)
type Redemption struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Code       string    `json:"code" db:"code"`
	UserID     string    `json:"user_id" db:"user_id"`
	RedeemedAt time.Time `json:"redeemed_at" db:"redeemed_at"`
}

// NormalizeCode trims and upper-cases a human-entered code
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
