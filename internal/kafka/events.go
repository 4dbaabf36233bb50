package kafka

import "time"

// Topic suffixes; the configured prefix is prepended with a dot
const (
	TopicEntitlementGranted = "entitlement_granted"
	TopicEntitlementRevoked = "entitlement_revoked"
	TopicSyncCompleted      = "sync_completed"
)

// Topics lists every topic suffix this service publishes to
func Topics() []string {
	return []string{TopicEntitlementGranted, TopicEntitlementRevoked, TopicSyncCompleted}
}

// TopicName joins prefix and suffix
func TopicName(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}

// EntitlementEvent announces a local grant change
type EntitlementEvent struct {
	UserID     string     `json:"user_id"`
	Plan       string     `json:"plan"`
	Source     string     `json:"source"`
	Code       string     `json:"code,omitempty"`
	PeriodEnd  *time.Time `json:"period_end,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// SyncCompletedEvent reports a finished reconciliation run
type SyncCompletedEvent struct {
	TriggeredBy         string    `json:"triggered_by"`
	SyncedSubscriptions int       `json:"synced_subscriptions"`
	SyncedPayments      int       `json:"synced_payments"`
	Skipped             int       `json:"skipped"`
	Failed              int       `json:"failed"`
	Partial             bool      `json:"partial"`
	DurationMillis      int64     `json:"duration_ms"`
	OccurredAt          time.Time `json:"occurred_at"`
}
