package repository

import (
	"context"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
)

// CachedBillingStore is a read-through cache in front of a BillingStore.
// Only positive local-grant lookups are cached; every write that can change a
// user's grants invalidates that user's entry. Cache failures never fail the
// call.
type CachedBillingStore struct {
	repo  BillingStore
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedBillingStore wraps repo with cache
func NewCachedBillingStore(repo BillingStore, cache *RedisCacheRepository, log *logger.Logger) *CachedBillingStore {
	return &CachedBillingStore{repo: repo, cache: cache, log: log}
}

// UpsertSubscription writes through and invalidates the owner's entry
func (r *CachedBillingStore) UpsertSubscription(ctx context.Context, rec *domain.SubscriptionRecord) error {
	if err := r.repo.UpsertSubscription(ctx, rec); err != nil {
		return err
	}
	r.invalidate(ctx, rec.UserID)
	return nil
}

func (r *CachedBillingStore) UpsertPayment(ctx context.Context, rec *domain.PaymentRecord) error {
	return r.repo.UpsertPayment(ctx, rec)
}

func (r *CachedBillingStore) GetSubscription(ctx context.Context, externalSubscriptionID string) (*domain.SubscriptionRecord, error) {
	return r.repo.GetSubscription(ctx, externalSubscriptionID)
}

func (r *CachedBillingStore) ListUserSubscriptions(ctx context.Context, userID string) ([]domain.SubscriptionRecord, error) {
	return r.repo.ListUserSubscriptions(ctx, userID)
}

// FindActiveLocalGrant serves from the cache when the cached grant is still
// active at now
func (r *CachedBillingStore) FindActiveLocalGrant(ctx context.Context, userID string, now time.Time) (*domain.SubscriptionRecord, error) {
	cached, err := r.cache.GetCachedLocalGrant(ctx, userID)
	if err != nil {
		r.log.Warnw("Error getting local grant from cache", "error", err, "userID", userID)
	}
	if cached != nil && cached.IsActiveAt(now) {
		r.log.Debugw("Local grant found in cache", "userID", userID)
		return cached, nil
	}

	grant, err := r.repo.FindActiveLocalGrant(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheLocalGrant(ctx, userID, grant); err != nil {
		r.log.Warnw("Failed to cache local grant", "error", err, "userID", userID)
	}
	return grant, nil
}

// ApplyPromoGrant writes through and invalidates the redeeming user's entry
func (r *CachedBillingStore) ApplyPromoGrant(ctx context.Context, redemption domain.Redemption, grant *domain.SubscriptionRecord) (*domain.SubscriptionRecord, error) {
	merged, err := r.repo.ApplyPromoGrant(ctx, redemption, grant)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, &redemption.UserID)
	return merged, nil
}

func (r *CachedBillingStore) CountRecords(ctx context.Context) (domain.BillingCounts, error) {
	return r.repo.CountRecords(ctx)
}

func (r *CachedBillingStore) invalidate(ctx context.Context, userID *string) {
	if userID == nil || *userID == "" {
		return
	}
	if err := r.cache.InvalidateLocalGrant(ctx, *userID); err != nil {
		r.log.Warnw("Failed to invalidate local grant cache", "error", err, "userID", *userID)
	}
}
