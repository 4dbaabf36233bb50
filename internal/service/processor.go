package service

import (
	"context"
	"fmt"

	"github.com/Dhoini/entitlement-service/internal/catalog"
	"github.com/Dhoini/entitlement-service/internal/domain"
)

// Processor is the payment processor as seen by the services. It is
// implemented by internal/stripe.Client.
type Processor interface {
	FindCustomerByEmail(ctx context.Context, email string) (*domain.ProcessorCustomer, error)
	FindOrCreateCustomer(ctx context.Context, email, userID string) (*domain.ProcessorCustomer, error)
	ListSubscriptions(ctx context.Context, customerID, status string) ([]domain.ProcessorSubscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.ProcessorSubscription, error)
	ListSucceededPaymentIntents(ctx context.Context, customerID string) ([]domain.ProcessorPayment, error)
	GetPaymentIntent(ctx context.Context, id string) (*domain.ProcessorPayment, error)
	ListCheckoutSessions(ctx context.Context, paymentIntentID string) ([]domain.CheckoutSessionRef, error)
	ListSessionLineItems(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	RetrieveCoupon(ctx context.Context, id string) (*domain.Discount, error)
	FindPromotionCode(ctx context.Context, code string) (*domain.Discount, error)
	CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (*domain.CheckoutSession, error)
}

// Subscription list filters understood by the processor
const (
	statusFilterActive = "active"
	statusFilterAll    = "all"
)

// metadataUserID binds processor objects to the internal user id
const metadataUserID = "user_id"

// lifetimeMatch is a checkout session that sold the lifetime product
type lifetimeMatch struct {
	session   domain.CheckoutSessionRef
	productID string
}

// findLifetimePurchase resolves the checkout sessions behind a payment and
// reports the first one with a lifetime line item. It returns nil when the
// payment did not buy the lifetime product.
func findLifetimePurchase(ctx context.Context, proc Processor, cat *catalog.Catalog, paymentIntentID string) (*lifetimeMatch, error) {
	sessions, err := proc.ListCheckoutSessions(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("list checkout sessions for %s: %w", paymentIntentID, err)
	}

	for _, session := range sessions {
		items, err := proc.ListSessionLineItems(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list line items of %s: %w", session.ID, err)
		}
		for _, item := range items {
			if cat.IsLifetime(item.ProductID) {
				return &lifetimeMatch{session: session, productID: item.ProductID}, nil
			}
		}
	}
	return nil, nil
}
