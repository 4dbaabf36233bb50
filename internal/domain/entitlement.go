package domain

import "time"

// EntitlementSource names the resolver branch that produced a verdict
type EntitlementSource string

const (
	SourceNone             EntitlementSource = "none"
	SourceLocalGrant       EntitlementSource = "local_grant"
	SourceLiveSubscription EntitlementSource = "live_subscription"
	SourceLivePurchase     EntitlementSource = "live_purchase"
)

// Entitlement is the answer to "may this user access paid features"
type Entitlement struct {
	Plan      PlanType          `json:"plan"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Source    EntitlementSource `json:"source"`
}

// Entitled reports whether the verdict grants paid access
func (e Entitlement) Entitled() bool {
	return e.Plan.Valid()
}

// NotEntitled is the verdict when no source grants access
func NotEntitled() Entitlement {
	return Entitlement{Plan: PlanNone, Source: SourceNone}
}

// RedemptionResult is returned after a code has been turned into a grant
type RedemptionResult struct {
	GrantedPlan PlanType  `json:"granted_plan"`
	PeriodEnd   time.Time `json:"period_end"`
}

// SyncResult aggregates a reconciliation run
type SyncResult struct {
	SyncedSubscriptions int `json:"synced_subscriptions"`
	SyncedPayments      int `json:"synced_payments"`
	Skipped             int `json:"skipped"`
	Failed              int `json:"failed"`
}

// BillingCounts is a row count snapshot of the billing tables
type BillingCounts struct {
	Subscriptions int `json:"subscriptions" db:"subscriptions"`
	Payments      int `json:"payments" db:"payments"`
	Redemptions   int `json:"redemptions" db:"redemptions"`
}
