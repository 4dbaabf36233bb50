package repository

import (
	"context"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
)

// BillingStore is the local billing store. Processor-derived rows are upserted
// on their external keys, never inserted on internal ids.
type BillingStore interface {
	// UpsertSubscription inserts or updates the row keyed by
	// ExternalSubscriptionID. A nil UserID never clears a known owner.
	UpsertSubscription(ctx context.Context, rec *domain.SubscriptionRecord) error

	// UpsertPayment inserts or updates the row keyed by PaymentIntentID
	UpsertPayment(ctx context.Context, rec *domain.PaymentRecord) error

	// GetSubscription returns the row with the external key or ErrNotFound
	GetSubscription(ctx context.Context, externalSubscriptionID string) (*domain.SubscriptionRecord, error)

	// ListUserSubscriptions returns every row owned by the user, newest first
	ListUserSubscriptions(ctx context.Context, userID string) ([]domain.SubscriptionRecord, error)

	// FindActiveLocalGrant returns the best admin or promo grant of the user
	// that is active at now, or ErrNotFound
	FindActiveLocalGrant(ctx context.Context, userID string, now time.Time) (*domain.SubscriptionRecord, error)

	// ApplyPromoGrant records the redemption anchor, reserves one use of the
	// code and upserts the promo grant in one unit. It returns ErrDuplicate
	// when the (code, user) pair was already redeemed and ErrUsesExhausted
	// when the code has no use left; nothing is written in either case.
	ApplyPromoGrant(ctx context.Context, redemption domain.Redemption, grant *domain.SubscriptionRecord) (*domain.SubscriptionRecord, error)

	// CountRecords reports row counts of the billing tables
	CountRecords(ctx context.Context) (domain.BillingCounts, error)
}

// CodeStore reads promo codes and their redemption anchors
type CodeStore interface {
	GetCode(ctx context.Context, code string) (*domain.PromoCode, error)
	HasRedemption(ctx context.Context, code, userID string) (bool, error)
	SaveCode(ctx context.Context, code domain.PromoCode) error
}

// UserDirectory is the local identity directory
type UserDirectory interface {
	// FindUserIDByEmail matches case-insensitively; ErrNotFound when absent
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}
