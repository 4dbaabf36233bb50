package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/internal/kafka"
	"github.com/Dhoini/entitlement-service/internal/metrics"
	"github.com/Dhoini/entitlement-service/internal/repository"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/google/uuid"
)

// GrantRequest is a manual override issued by the owner
type GrantRequest struct {
	UserID string          `json:"user_id" validate:"required"`
	Email  string          `json:"email" validate:"omitempty,email"`
	Plan   domain.PlanType `json:"plan" validate:"required,oneof=premium lifetime"`
	// Days is ignored for lifetime grants
	Days int `json:"days" validate:"omitempty,min=1"`
}

// AdminGrantService manages administrator-issued grants
type AdminGrantService interface {
	Grant(ctx context.Context, caller *domain.Caller, req GrantRequest) (*domain.SubscriptionRecord, error)
	Revoke(ctx context.Context, caller *domain.Caller, userID string) error
	ListUserSubscriptions(ctx context.Context, caller *domain.Caller, userID string) ([]domain.SubscriptionRecord, error)
}

type adminGrantService struct {
	store     repository.BillingStore
	publisher kafka.Publisher
	effects   nonCritical
	now       func() time.Time
	log       *logger.Logger
}

// NewAdminGrantService creates the admin grant service
func NewAdminGrantService(
	store repository.BillingStore,
	publisher kafka.Publisher,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) AdminGrantService {
	if publisher == nil {
		publisher = kafka.NoopPublisher{}
	}
	return &adminGrantService{
		store:     store,
		publisher: publisher,
		effects:   nonCritical{log: log, metrics: billingMetrics},
		now:       time.Now,
		log:       log,
	}
}

func (s *adminGrantService) authorize(caller *domain.Caller) error {
	if err := caller.Authenticate(s.now()); err != nil {
		return err
	}
	if !caller.IsOwner() {
		return domain.ErrForbidden
	}
	return nil
}

// Grant upserts the user's admin grant row. Re-granting replaces the plan
// and the period.
func (s *adminGrantService) Grant(ctx context.Context, caller *domain.Caller, req GrantRequest) (*domain.SubscriptionRecord, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	if req.UserID == "" || !req.Plan.Valid() {
		return nil, domain.ErrInvalidInput
	}

	now := s.now()
	grant := &domain.SubscriptionRecord{
		ID:                     uuid.New(),
		UserID:                 domain.StringPtr(req.UserID),
		ExternalCustomerID:     domain.AdminCustomerID(req.UserID),
		ExternalSubscriptionID: domain.AdminGrantKey(req.UserID),
		PlanType:               req.Plan,
		GrantSource:            domain.GrantSourceAdmin,
		Status:                 domain.SubscriptionStatusActive,
		CurrentPeriodStart:     domain.TimePtr(now),
		CustomerEmail:          req.Email,
	}
	switch {
	case req.Plan == domain.PlanLifetime:
		grant.CurrentPeriodEnd = domain.TimePtr(now.UTC().AddDate(lifetimeGrantYears, 0, 0))
	case req.Days > 0:
		end, _ := GrantPeriodEnd(&domain.PromoCode{PlanType: domain.PlanPremium, DurationDays: &req.Days}, now)
		grant.CurrentPeriodEnd = &end
	default:
		return nil, fmt.Errorf("%w: premium grants need days", domain.ErrInvalidInput)
	}

	if err := s.store.UpsertSubscription(ctx, grant); err != nil {
		s.log.Error("Failed to store admin grant for user %s: %v", req.UserID, err)
		return nil, err
	}

	s.effects.run(ctx, effectPublishGranted, func(ctx context.Context) error {
		return s.publisher.PublishEntitlementGranted(ctx, kafka.EntitlementEvent{
			UserID:     req.UserID,
			Plan:       string(grant.PlanType),
			Source:     string(domain.GrantSourceAdmin),
			PeriodEnd:  grant.CurrentPeriodEnd,
			OccurredAt: now,
		})
	})

	s.log.Infow("Admin grant issued", "user_id", req.UserID, "plan", req.Plan, "by", caller.UserID)
	return grant, nil
}

// Revoke cancels the user's admin grant. The row is kept.
func (s *adminGrantService) Revoke(ctx context.Context, caller *domain.Caller, userID string) error {
	if err := s.authorize(caller); err != nil {
		return err
	}

	grant, err := s.store.GetSubscription(ctx, domain.AdminGrantKey(userID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error("Error fetching admin grant of user %s: %v", userID, err)
		}
		return err
	}
	if grant.Status == domain.SubscriptionStatusCanceled {
		return nil
	}

	now := s.now()
	grant.Status = domain.SubscriptionStatusCanceled
	grant.CanceledAt = domain.TimePtr(now)
	if err := s.store.UpsertSubscription(ctx, grant); err != nil {
		return err
	}

	s.effects.run(ctx, effectPublishRevoked, func(ctx context.Context) error {
		return s.publisher.PublishEntitlementRevoked(ctx, kafka.EntitlementEvent{
			UserID:     userID,
			Plan:       string(grant.PlanType),
			Source:     string(domain.GrantSourceAdmin),
			OccurredAt: now,
		})
	})

	s.log.Infow("Admin grant revoked", "user_id", userID, "by", caller.UserID)
	return nil
}

func (s *adminGrantService) ListUserSubscriptions(ctx context.Context, caller *domain.Caller, userID string) ([]domain.SubscriptionRecord, error) {
	if err := caller.Authenticate(s.now()); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && caller.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return s.store.ListUserSubscriptions(ctx, userID)
}
