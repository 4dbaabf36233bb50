package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlanType is the kind of paid access a grant confers
type PlanType string

const (
	PlanNone     PlanType = "none"
	PlanPremium  PlanType = "premium"
	PlanLifetime PlanType = "lifetime"
)

// Rank orders plans so that a stronger grant is never replaced by a weaker one.
func (p PlanType) Rank() int {
	switch p {
	case PlanLifetime:
		return 2
	case PlanPremium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p names a grantable plan
func (p PlanType) Valid() bool {
	return p == PlanPremium || p == PlanLifetime
}

// GrantSource tells where a subscription record came from
type GrantSource string

const (
	GrantSourceStripeSubscription GrantSource = "stripe_subscription"
	GrantSourceStripeLifetime     GrantSource = "stripe_lifetime"
	GrantSourceAdmin              GrantSource = "admin_grant"
	GrantSourcePromo              GrantSource = "promo_grant"
)

// IsLocal reports whether the grant cannot be verified against the processor
func (s GrantSource) IsLocal() bool {
	return s == GrantSourceAdmin || s == GrantSourcePromo
}

// Subscription statuses used by this service. Processor statuses are stored as-is.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// SubscriptionRecord is one grant of paid access in the local billing store.
// ExternalSubscriptionID is the upsert key; it is synthetic for grants that
// have no processor subscription behind them.
type SubscriptionRecord struct {
	ID                     uuid.UUID   `json:"id" db:"id"`
	UserID                 *string     `json:"user_id,omitempty" db:"user_id"`
	ExternalCustomerID     string      `json:"external_customer_id" db:"external_customer_id"`
	ExternalSubscriptionID string      `json:"external_subscription_id" db:"external_subscription_id"`
	PlanType               PlanType    `json:"plan_type" db:"plan_type"`
	GrantSource            GrantSource `json:"grant_source" db:"grant_source"`
	Status                 string      `json:"status" db:"status"`
	Amount                 int64       `json:"amount" db:"amount"`
	Currency               string      `json:"currency" db:"currency"`
	CurrentPeriodStart     *time.Time  `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd       *time.Time  `json:"current_period_end,omitempty" db:"current_period_end"`
	CancelAtPeriodEnd      bool        `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CanceledAt             *time.Time  `json:"canceled_at,omitempty" db:"canceled_at"`
	CustomerEmail          string      `json:"customer_email" db:"customer_email"`
	CreatedAt              time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at" db:"updated_at"`
}

// IsActiveAt reports whether the record grants access at the given instant.
// A missing period end means the grant does not lapse on its own.
func (s *SubscriptionRecord) IsActiveAt(now time.Time) bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}

// OwnedBy reports whether the record is associated with userID
func (s *SubscriptionRecord) OwnedBy(userID string) bool {
	return s != nil && s.UserID != nil && *s.UserID == userID
}

// BetterGrant reports whether a should win over b when both are active local
// grants for the same user: lifetime first, then the later period end, then
// the most recently updated row.
func BetterGrant(a, b *SubscriptionRecord) bool {
	if a.PlanType.Rank() != b.PlanType.Rank() {
		return a.PlanType.Rank() > b.PlanType.Rank()
	}
	switch {
	case a.CurrentPeriodEnd == nil && b.CurrentPeriodEnd != nil:
		return true
	case a.CurrentPeriodEnd != nil && b.CurrentPeriodEnd == nil:
		return false
	case a.CurrentPeriodEnd != nil && b.CurrentPeriodEnd != nil && !a.CurrentPeriodEnd.Equal(*b.CurrentPeriodEnd):
		return a.CurrentPeriodEnd.After(*b.CurrentPeriodEnd)
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

// Synthetic keys for records that have no processor subscription id.
func LifetimeSubscriptionKey(paymentIntentID string) string {
	return "lifetime_" + paymentIntentID
}

func PromoGrantKey(userID string) string {
	return "promo_grant_" + userID
}

func AdminGrantKey(userID string) string {
	return "admin_grant_" + userID
}

func PromoCustomerID(code, userID string) string {
	return "promo_" + code + "_" + userID
}

func AdminCustomerID(userID string) string {
	return "admin_granted_" + userID
}

// StringPtr is a small helper for nullable string columns
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}

// MergeGrant folds an incoming local grant into the existing row with the same
// key. A lifetime grant is never downgraded and a period is never shortened.
// Identity fields of the existing row are kept.
func MergeGrant(existing, incoming *SubscriptionRecord) *SubscriptionRecord {
	if existing == nil {
		return incoming
	}
	merged := *incoming
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt

	if existing.Status == SubscriptionStatusActive && existing.PlanType.Rank() > incoming.PlanType.Rank() {
		merged.PlanType = existing.PlanType
	}
	if existing.Status == SubscriptionStatusActive && existing.CurrentPeriodEnd != nil && incoming.CurrentPeriodEnd != nil &&
		existing.CurrentPeriodEnd.After(*incoming.CurrentPeriodEnd) {
		merged.CurrentPeriodEnd = existing.CurrentPeriodEnd
	}
	if merged.PlanType == PlanLifetime && existing.PlanType == PlanLifetime && existing.CurrentPeriodEnd != nil &&
		(merged.CurrentPeriodEnd == nil || existing.CurrentPeriodEnd.After(*merged.CurrentPeriodEnd)) {
		merged.CurrentPeriodEnd = existing.CurrentPeriodEnd
	}
	return &merged
}
