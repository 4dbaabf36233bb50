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

// lifetimeGrantYears is how far out a lifetime grant ends
const lifetimeGrantYears = 100

// SaveCodeRequest creates or replaces a promo code
type SaveCodeRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Active       bool            `json:"active"`
	PlanType     domain.PlanType `json:"plan_type" validate:"required,oneof=premium lifetime"`
	DurationDays *int            `json:"duration_days" validate:"omitempty,min=1"`
	MaxUses      int             `json:"max_uses" validate:"min=1"`
	ExpiresAt    *time.Time      `json:"expires_at"`
}

// RedemptionService turns promo codes into local grants
type RedemptionService interface {
	Redeem(ctx context.Context, caller *domain.Caller, rawCode string) (domain.RedemptionResult, error)
	SaveCode(ctx context.Context, caller *domain.Caller, req SaveCodeRequest) (domain.PromoCode, error)
}

type redemptionService struct {
	store     repository.BillingStore
	codes     repository.CodeStore
	publisher kafka.Publisher
	metrics   metrics.BillingMetrics
	effects   nonCritical
	now       func() time.Time
	log       *logger.Logger
}

// NewRedemptionService creates the code redemption service
func NewRedemptionService(
	store repository.BillingStore,
	codes repository.CodeStore,
	publisher kafka.Publisher,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) RedemptionService {
	if publisher == nil {
		publisher = kafka.NoopPublisher{}
	}
	return &redemptionService{
		store:     store,
		codes:     codes,
		publisher: publisher,
		metrics:   billingMetrics,
		effects:   nonCritical{log: log, metrics: billingMetrics},
		now:       time.Now,
		log:       log,
	}
}

// Redeem validates the code and grants access. Every rejection is a
// *domain.RedemptionError and writes nothing.
func (s *redemptionService) Redeem(ctx context.Context, caller *domain.Caller, rawCode string) (domain.RedemptionResult, error) {
	now := s.now()
	if err := caller.Authenticate(now); err != nil {
		return domain.RedemptionResult{}, err
	}

	result, err := s.redeem(ctx, caller, domain.NormalizeCode(rawCode), now)
	if reason, ok := domain.RedemptionReasonOf(err); ok {
		s.metrics.IncRedemption(string(reason))
		s.log.Infow("Code redemption rejected", "user_id", caller.UserID, "reason", reason)
		return domain.RedemptionResult{}, err
	}
	if err != nil {
		s.metrics.IncRedemption("error")
		s.log.Errorw("Code redemption failed", "user_id", caller.UserID, "error", err)
		return domain.RedemptionResult{}, err
	}

	s.metrics.IncRedemption("granted")
	return result, nil
}

func (s *redemptionService) redeem(ctx context.Context, caller *domain.Caller, code string, now time.Time) (domain.RedemptionResult, error) {
	if code == "" {
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonCodeNotFound, code)
	}

	promo, err := s.codes.GetCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonCodeNotFound, code)
	}
	if err != nil {
		return domain.RedemptionResult{}, fmt.Errorf("get code %s: %w", code, err)
	}

	switch {
	case !promo.Active:
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonCodeInactive, code)
	case promo.ExpiredAt(now):
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonCodeExpired, code)
	case promo.Exhausted():
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonCodeExhausted, code)
	}

	redeemed, err := s.codes.HasRedemption(ctx, code, caller.UserID)
	if err != nil {
		return domain.RedemptionResult{}, fmt.Errorf("check redemption of %s: %w", code, err)
	}
	if redeemed {
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonAlreadyRedeemed, code)
	}

	periodEnd, ok := GrantPeriodEnd(promo, now)
	if !ok {
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonInvalidCodeSetup, code)
	}

	grant := &domain.SubscriptionRecord{
		ID:                     uuid.New(),
		UserID:                 domain.StringPtr(caller.UserID),
		ExternalCustomerID:     domain.PromoCustomerID(code, caller.UserID),
		ExternalSubscriptionID: domain.PromoGrantKey(caller.UserID),
		PlanType:               promo.PlanType,
		GrantSource:            domain.GrantSourcePromo,
		Status:                 domain.SubscriptionStatusActive,
		CurrentPeriodStart:     domain.TimePtr(now),
		CurrentPeriodEnd:       domain.TimePtr(periodEnd),
		CustomerEmail:          caller.Email,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	redemption := domain.Redemption{
		ID:         uuid.New(),
		Code:       code,
		UserID:     caller.UserID,
		RedeemedAt: now,
	}

	// the (code, user) anchor decides double submits and the conditional
	// use reservation decides the last use of the code
	applied, err := s.store.ApplyPromoGrant(ctx, redemption, grant)
	if errors.Is(err, domain.ErrDuplicate) {
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonAlreadyRedeemed, code)
	}
	// the last use went to a concurrent redemption after the read above
	if errors.Is(err, domain.ErrUsesExhausted) {
		return domain.RedemptionResult{}, domain.NewRedemptionError(domain.ReasonCodeExhausted, code)
	}
	if err != nil {
		return domain.RedemptionResult{}, fmt.Errorf("apply promo grant: %w", err)
	}

	s.effects.run(ctx, effectPublishGranted, func(ctx context.Context) error {
		return s.publisher.PublishEntitlementGranted(ctx, kafka.EntitlementEvent{
			UserID:     caller.UserID,
			Plan:       string(applied.PlanType),
			Source:     string(domain.GrantSourcePromo),
			Code:       code,
			PeriodEnd:  applied.CurrentPeriodEnd,
			OccurredAt: now,
		})
	})

	s.log.Infow("Code redeemed", "user_id", caller.UserID, "code", code, "plan", applied.PlanType)

	result := domain.RedemptionResult{GrantedPlan: applied.PlanType, PeriodEnd: periodEnd}
	if applied.CurrentPeriodEnd != nil {
		result.PeriodEnd = *applied.CurrentPeriodEnd
	}
	return result, nil
}

// GrantPeriodEnd computes when a grant from code ends: lifetime codes run
// for a century, others for DurationDays ending at 23:59:59.999 UTC of the
// last day. ok is false when the code cannot produce a grant.
func GrantPeriodEnd(code *domain.PromoCode, now time.Time) (time.Time, bool) {
	switch code.PlanType {
	case domain.PlanLifetime:
		return now.UTC().AddDate(lifetimeGrantYears, 0, 0), true
	case domain.PlanPremium:
		if code.DurationDays == nil || *code.DurationDays <= 0 {
			return time.Time{}, false
		}
		day := now.UTC().AddDate(0, 0, *code.DurationDays)
		return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), time.UTC), true
	default:
		return time.Time{}, false
	}
}

// SaveCode lets an admin create or replace a promo code
func (s *redemptionService) SaveCode(ctx context.Context, caller *domain.Caller, req SaveCodeRequest) (domain.PromoCode, error) {
	if err := caller.Authenticate(s.now()); err != nil {
		return domain.PromoCode{}, err
	}
	if !caller.IsAdmin() {
		return domain.PromoCode{}, domain.ErrForbidden
	}

	code := domain.PromoCode{
		Code:         domain.NormalizeCode(req.Code),
		Active:       req.Active,
		PlanType:     req.PlanType,
		DurationDays: req.DurationDays,
		MaxUses:      req.MaxUses,
		ExpiresAt:    req.ExpiresAt,
	}
	if code.Code == "" || code.MaxUses < 1 {
		return domain.PromoCode{}, domain.ErrInvalidInput
	}
	if _, ok := GrantPeriodEnd(&code, s.now()); !ok {
		return domain.PromoCode{}, fmt.Errorf("%w: premium codes need duration_days", domain.ErrInvalidInput)
	}
	if code.PlanType == domain.PlanLifetime {
		code.DurationDays = nil
	}

	if err := s.codes.SaveCode(ctx, code); err != nil {
		s.log.Error("Failed to save promo code %s: %v", code.Code, err)
		return domain.PromoCode{}, err
	}

	saved, err := s.codes.GetCode(ctx, code.Code)
	if err != nil {
		return domain.PromoCode{}, err
	}
	s.log.Infow("Promo code saved", "code", saved.Code, "by", caller.UserID)
	return *saved, nil
}
