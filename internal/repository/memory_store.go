package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/google/uuid"
)

// InMemoryStore implements BillingStore, CodeStore and UserDirectory in
// memory. One mutex guards all maps so ApplyPromoGrant is atomic and the
// same uniqueness rules as the SQL schema hold.
type InMemoryStore struct {
	subscriptions map[string]domain.SubscriptionRecord // by external_subscription_id
	payments      map[string]domain.PaymentRecord      // by payment_intent_id
	codes         map[string]domain.PromoCode          // by code
	redemptions   map[string]domain.Redemption         // by code|user_id
	users         map[string]domain.User               // by lower(email)
	mutex         sync.RWMutex
	now           func() time.Time
	log           *logger.Logger
}

var (
	_ BillingStore  = (*InMemoryStore)(nil)
	_ CodeStore     = (*InMemoryStore)(nil)
	_ UserDirectory = (*InMemoryStore)(nil)
	_ BillingStore  = (*CachedBillingStore)(nil)
)

// NewInMemoryStore creates an empty store
func NewInMemoryStore(log *logger.Logger) *InMemoryStore {
	return &InMemoryStore{
		subscriptions: make(map[string]domain.SubscriptionRecord),
		payments:      make(map[string]domain.PaymentRecord),
		codes:         make(map[string]domain.PromoCode),
		redemptions:   make(map[string]domain.Redemption),
		users:         make(map[string]domain.User),
		now:           time.Now,
		log:           log,
	}
}

func redemptionKey(code, userID string) string {
	return code + "|" + userID
}

// UpsertSubscription inserts or updates by external subscription id
func (r *InMemoryStore) UpsertSubscription(ctx context.Context, rec *domain.SubscriptionRecord) error {
	if rec == nil || rec.ExternalSubscriptionID == "" {
		return ErrInvalidData
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.upsertSubscriptionLocked(rec)
	return nil
}

func (r *InMemoryStore) upsertSubscriptionLocked(rec *domain.SubscriptionRecord) {
	now := r.now()
	row := *rec
	if existing, ok := r.subscriptions[rec.ExternalSubscriptionID]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if row.UserID == nil {
			row.UserID = existing.UserID
		}
	} else {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	r.subscriptions[rec.ExternalSubscriptionID] = row

	rec.ID = row.ID
	rec.UserID = row.UserID
	rec.CreatedAt = row.CreatedAt
	rec.UpdatedAt = row.UpdatedAt
}

// UpsertPayment inserts or updates by payment intent id
func (r *InMemoryStore) UpsertPayment(ctx context.Context, rec *domain.PaymentRecord) error {
	if rec == nil || rec.PaymentIntentID == "" {
		return ErrInvalidData
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	row := *rec
	if existing, ok := r.payments[rec.PaymentIntentID]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if row.UserID == nil {
			row.UserID = existing.UserID
		}
	} else {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	r.payments[rec.PaymentIntentID] = row

	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	rec.UpdatedAt = row.UpdatedAt
	return nil
}

// GetSubscription returns a copy of the row with the external key
func (r *InMemoryStore) GetSubscription(ctx context.Context, externalSubscriptionID string) (*domain.SubscriptionRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	row, ok := r.subscriptions[externalSubscriptionID]
	if !ok {
		return nil, domain.NewNotFoundError("subscription", externalSubscriptionID)
	}
	return &row, nil
}

// ListUserSubscriptions returns the user's rows, most recently updated first
func (r *InMemoryStore) ListUserSubscriptions(ctx context.Context, userID string) ([]domain.SubscriptionRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]domain.SubscriptionRecord, 0)
	for _, row := range r.subscriptions {
		if row.OwnedBy(userID) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// FindActiveLocalGrant picks the best active admin or promo grant
func (r *InMemoryStore) FindActiveLocalGrant(ctx context.Context, userID string, now time.Time) (*domain.SubscriptionRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var best *domain.SubscriptionRecord
	for _, row := range r.subscriptions {
		if !row.GrantSource.IsLocal() || !row.OwnedBy(userID) || !row.IsActiveAt(now) {
			continue
		}
		candidate := row
		if best == nil || domain.BetterGrant(&candidate, best) {
			best = &candidate
		}
	}
	if best == nil {
		return nil, domain.NewNotFoundError("local grant", userID)
	}
	return best, nil
}

// ApplyPromoGrant writes the anchor, the use reservation and the merged grant
// under one lock
func (r *InMemoryStore) ApplyPromoGrant(ctx context.Context, redemption domain.Redemption, grant *domain.SubscriptionRecord) (*domain.SubscriptionRecord, error) {
	if grant == nil || grant.ExternalSubscriptionID == "" {
		return nil, ErrInvalidData
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := redemptionKey(redemption.Code, redemption.UserID)
	if _, exists := r.redemptions[key]; exists {
		return nil, domain.NewDuplicateError("redemption", "code,user_id", key)
	}

	code, ok := r.codes[redemption.Code]
	if !ok {
		return nil, domain.NewNotFoundError("promo code", redemption.Code)
	}
	if code.Exhausted() {
		return nil, fmt.Errorf("%w: %s", ErrUsesExhausted, redemption.Code)
	}
	code.CurrentUses++
	code.UpdatedAt = r.now()
	r.codes[redemption.Code] = code

	var existing *domain.SubscriptionRecord
	if row, ok := r.subscriptions[grant.ExternalSubscriptionID]; ok {
		existing = &row
	}
	merged := domain.MergeGrant(existing, grant)
	r.upsertSubscriptionLocked(merged)

	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	r.redemptions[key] = redemption

	out := *merged
	return &out, nil
}

// CountRecords reports the sizes of the billing maps
func (r *InMemoryStore) CountRecords(ctx context.Context) (domain.BillingCounts, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return domain.BillingCounts{
		Subscriptions: len(r.subscriptions),
		Payments:      len(r.payments),
		Redemptions:   len(r.redemptions),
	}, nil
}

// GetCode returns a copy of the code record
func (r *InMemoryStore) GetCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, ok := r.codes[code]
	if !ok {
		return nil, domain.NewNotFoundError("promo code", code)
	}
	return &c, nil
}

// HasRedemption checks the (code, user) anchor
func (r *InMemoryStore) HasRedemption(ctx context.Context, code, userID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.redemptions[redemptionKey(code, userID)]
	return ok, nil
}

// SaveCode creates or replaces a promo code. The code is normalized and the
// use counter of an existing code is kept.
func (r *InMemoryStore) SaveCode(ctx context.Context, code domain.PromoCode) error {
	code.Code = domain.NormalizeCode(code.Code)
	if code.Code == "" {
		return ErrInvalidData
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	if existing, ok := r.codes[code.Code]; ok {
		if code.MaxUses < existing.CurrentUses {
			return fmt.Errorf("%w: max_uses below current uses of %s", ErrInvalidData, code.Code)
		}
		code.CreatedAt = existing.CreatedAt
		code.CurrentUses = existing.CurrentUses
	} else {
		code.CreatedAt = now
	}
	code.UpdatedAt = now
	r.codes[code.Code] = code
	return nil
}

// SaveUser adds a user to the identity directory. E-mails are unique
// case-insensitively.
func (r *InMemoryStore) SaveUser(ctx context.Context, user domain.User) error {
	key := strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID == "" || key == "" {
		return ErrInvalidData
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, ok := r.users[key]; ok && existing.ID != user.ID {
		return domain.NewDuplicateError("user", "email", user.Email)
	}
	r.users[key] = user
	return nil
}

// FindUserIDByEmail looks the e-mail up in the index
func (r *InMemoryStore) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	user, ok := r.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", domain.NewNotFoundError("user", email)
	}
	return user.ID, nil
}
