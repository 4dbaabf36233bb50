package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/entitlement-service/internal/catalog"
	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/internal/metrics"
	"github.com/Dhoini/entitlement-service/internal/repository"
	"github.com/Dhoini/entitlement-service/pkg/logger"
)

// EntitlementService decides whether a user currently holds paid access
type EntitlementService interface {
	// Resolve checks local grants, then live subscriptions, then live
	// lifetime purchases, and stops at the first match.
	Resolve(ctx context.Context, caller *domain.Caller) (domain.Entitlement, error)
}

type entitlementService struct {
	store     repository.BillingStore
	processor Processor
	catalog   *catalog.Catalog
	metrics   metrics.BillingMetrics
	now       func() time.Time
	log       *logger.Logger
}

// NewEntitlementService creates the resolver
func NewEntitlementService(
	store repository.BillingStore,
	processor Processor,
	cat *catalog.Catalog,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) EntitlementService {
	return &entitlementService{
		store:     store,
		processor: processor,
		catalog:   cat,
		metrics:   billingMetrics,
		now:       time.Now,
		log:       log,
	}
}

// Resolve returns NotEntitled together with ErrUnauthenticated or
// ErrSessionExpired when the caller cannot be trusted, so that "log in again"
// never looks like "not a subscriber".
func (s *entitlementService) Resolve(ctx context.Context, caller *domain.Caller) (domain.Entitlement, error) {
	now := s.now()
	if err := caller.Authenticate(now); err != nil {
		s.metrics.IncResolution("unauthenticated")
		return domain.NotEntitled(), err
	}

	verdict, err := s.resolve(ctx, caller, now)
	s.metrics.IncResolution(string(verdict.Source))
	if err != nil {
		s.log.Warnw("Entitlement resolution incomplete", "user_id", caller.UserID, "error", err)
		return verdict, err
	}

	s.log.Debugw("Entitlement resolved", "user_id", caller.UserID, "plan", verdict.Plan, "source", verdict.Source)
	return verdict, nil
}

func (s *entitlementService) resolve(ctx context.Context, caller *domain.Caller, now time.Time) (domain.Entitlement, error) {
	grant, err := s.store.FindActiveLocalGrant(ctx, caller.UserID, now)
	switch {
	case err == nil:
		return domain.Entitlement{
			Plan:      grant.PlanType,
			ExpiresAt: grant.CurrentPeriodEnd,
			Source:    domain.SourceLocalGrant,
		}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.NotEntitled(), fmt.Errorf("find local grant: %w", err)
	}

	if caller.Email == "" {
		return domain.NotEntitled(), nil
	}

	customer, err := s.processor.FindCustomerByEmail(ctx, caller.Email)
	if err != nil {
		return domain.NotEntitled(), fmt.Errorf("find processor customer: %w", err)
	}
	if customer == nil {
		return domain.NotEntitled(), nil
	}

	if verdict, ok, err := s.liveSubscription(ctx, customer.ID); err != nil || ok {
		return verdict, err
	}
	return s.livePurchase(ctx, customer.ID)
}

func (s *entitlementService) liveSubscription(ctx context.Context, customerID string) (domain.Entitlement, bool, error) {
	subs, err := s.processor.ListSubscriptions(ctx, customerID, statusFilterActive)
	if err != nil {
		return domain.NotEntitled(), false, fmt.Errorf("list active subscriptions: %w", err)
	}

	for _, sub := range subs {
		if sub.Status != domain.SubscriptionStatusActive || !s.catalog.AnyPremium(sub.ProductIDs) {
			continue
		}
		return domain.Entitlement{
			Plan:      domain.PlanPremium,
			ExpiresAt: sub.CurrentPeriodEnd,
			Source:    domain.SourceLiveSubscription,
		}, true, nil
	}
	return domain.NotEntitled(), false, nil
}

// livePurchase scans succeeded payments for a lifetime line item. A payment
// whose sessions cannot be read is skipped; if nothing matches the first such
// error is reported alongside the negative verdict.
func (s *entitlementService) livePurchase(ctx context.Context, customerID string) (domain.Entitlement, error) {
	payments, err := s.processor.ListSucceededPaymentIntents(ctx, customerID)
	if err != nil {
		return domain.NotEntitled(), fmt.Errorf("list succeeded payments: %w", err)
	}

	var firstErr error
	for _, payment := range payments {
		match, err := findLifetimePurchase(ctx, s.processor, s.catalog, payment.ID)
		if err != nil {
			s.log.Warnw("Skipping payment during lifetime lookup", "payment_intent_id", payment.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if match != nil {
			return domain.Entitlement{Plan: domain.PlanLifetime, Source: domain.SourceLivePurchase}, nil
		}
	}
	return domain.NotEntitled(), firstErr
}
