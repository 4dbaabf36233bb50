package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/entitlement-service/internal/catalog"
	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/internal/metrics"
	"github.com/Dhoini/entitlement-service/pkg/logger"
)

// Discount labels reported to metrics
const (
	discountNone          = "none"
	discountCoupon        = "coupon"
	discountPromotionCode = "promotion_code"
	discountUnresolved    = "unresolved"
)

// CheckoutRequest is a user's request for a hosted checkout
type CheckoutRequest struct {
	PriceID      string              `json:"price_id" validate:"required"`
	Mode         domain.CheckoutMode `json:"mode" validate:"omitempty,oneof=subscription payment"`
	DiscountCode string              `json:"discount_code" validate:"omitempty,max=64"`
}

// CheckoutURLs are the redirect targets after the hosted page
type CheckoutURLs struct {
	SuccessURL string
	CancelURL  string
}

// CheckoutService builds hosted checkout sessions
type CheckoutService interface {
	CreateSession(ctx context.Context, caller *domain.Caller, req CheckoutRequest) (string, error)
}

type checkoutService struct {
	processor Processor
	catalog   *catalog.Catalog
	urls      CheckoutURLs
	metrics   metrics.BillingMetrics
	now       func() time.Time
	log       *logger.Logger
}

// NewCheckoutService creates the checkout session builder
func NewCheckoutService(
	processor Processor,
	cat *catalog.Catalog,
	urls CheckoutURLs,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) CheckoutService {
	return &checkoutService{
		processor: processor,
		catalog:   cat,
		urls:      urls,
		metrics:   billingMetrics,
		now:       time.Now,
		log:       log,
	}
}

// CreateSession returns the redirect URL of a new checkout session. A
// discount code that resolves to nothing never blocks the purchase.
func (s *checkoutService) CreateSession(ctx context.Context, caller *domain.Caller, req CheckoutRequest) (string, error) {
	if err := caller.Authenticate(s.now()); err != nil {
		return "", err
	}
	if caller.Email == "" {
		return "", fmt.Errorf("%w: caller has no e-mail", domain.ErrInvalidInput)
	}

	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		return "", fmt.Errorf("%w: price id is required", domain.ErrInvalidInput)
	}
	mode := req.Mode
	switch mode {
	case "":
		mode = domain.CheckoutModeSubscription
	case domain.CheckoutModeSubscription, domain.CheckoutModePayment:
	default:
		return "", fmt.Errorf("%w: unknown checkout mode %q", domain.ErrInvalidInput, mode)
	}

	s.log.Debug("Creating checkout session for user: %s, price: %s, mode: %s", caller.UserID, priceID, mode)

	customer, err := s.processor.FindOrCreateCustomer(ctx, caller.Email, caller.UserID)
	if err != nil {
		s.log.Error("Failed to resolve processor customer for user %s: %v", caller.UserID, err)
		return "", fmt.Errorf("resolve customer: %w", err)
	}

	discount, label := s.resolveDiscount(ctx, req.DiscountCode)

	session, err := s.processor.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{
		PriceID:           priceID,
		Mode:              mode,
		CustomerID:        customer.ID,
		ClientReferenceID: caller.UserID,
		Discount:          discount,
		// the processor rejects pre-applied discounts combined with the
		// on-page promotion code field
		AllowPromotionCodes: discount == nil,
		SuccessURL:          s.urls.SuccessURL,
		CancelURL:           s.urls.CancelURL,
		Metadata: map[string]string{
			metadataUserID: caller.UserID,
			"plan":         string(s.catalog.PlanForMode(mode)),
		},
	})
	if err != nil {
		s.log.Error("Failed to create checkout session for user %s: %v", caller.UserID, err)
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if session.URL == "" {
		return "", domain.NewExternalServiceError("stripe", "CreateCheckoutSession", "", 0, errors.New("session has no url"))
	}

	s.metrics.IncCheckout(string(mode), label)
	s.log.Infow("Checkout session created", "user_id", caller.UserID, "session_id", session.ID, "discount", label)
	return session.URL, nil
}

// resolveDiscount tries the raw string as a coupon id, then as a promotion
// code. Failure of both leaves the session at full price.
func (s *checkoutService) resolveDiscount(ctx context.Context, raw string) (*domain.Discount, string) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return nil, discountNone
	}

	coupon, err := s.processor.RetrieveCoupon(ctx, code)
	if err == nil && coupon != nil {
		return coupon, discountCoupon
	}
	s.log.Debugw("Discount code is not a coupon", "code", code, "error", err)

	promo, err := s.processor.FindPromotionCode(ctx, code)
	if err == nil && promo != nil {
		return promo, discountPromotionCode
	}

	s.log.Warnw("Discount code could not be resolved, continuing at full price", "code", code, "error", err)
	return nil, discountUnresolved
}
