package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// metadata key linking a Stripe object to the internal user id
	metadataUserIDKey = "user_id"

	serviceName = "stripe"
)

// Config configures the Stripe client
type Config struct {
	APIKey string
	// APIURL overrides the API host, used against stripe-mock and in tests
	APIURL string
}

// Client is the payment processor client. Every call goes through the
// Retrier; the SDK's own network retries are disabled.
type Client struct {
	api   *client.API
	retry *Retrier
	log   *logger.Logger
}

// NewClient creates a Client with its own SDK backends
func NewClient(cfg Config, retry *Retrier, log *logger.Logger) *Client {
	backendCfg := func(url string) *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		}
		if url != "" {
			bc.URL = stripe.String(url)
		}
		return bc
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg(cfg.APIURL)),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg("")),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg("")),
	}

	api := &client.API{}
	api.Init(cfg.APIKey, backends)

	return &Client{api: api, retry: retry, log: log}
}

// FindCustomerByEmail returns the first customer with the e-mail, or nil
func (sc *Client) FindCustomerByEmail(ctx context.Context, email string) (*domain.ProcessorCustomer, error) {
	cus, err := call(ctx, sc.retry, "find_customer", func() (*stripe.Customer, error) {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.Limit = stripe.Int64(1)

		it := sc.api.Customers.List(params)
		if it.Next() {
			return it.Customer(), nil
		}
		return nil, it.Err()
	})
	if err != nil {
		return nil, sc.wrap("FindCustomerByEmail", err)
	}
	if cus == nil {
		return nil, nil
	}
	return toProcessorCustomer(cus), nil
}

// FindOrCreateCustomer reuses the customer with the e-mail or creates one
// tagged with the internal user id
func (sc *Client) FindOrCreateCustomer(ctx context.Context, email, userID string) (*domain.ProcessorCustomer, error) {
	existing, err := sc.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		sc.log.Debugw("Found existing Stripe customer", "stripeCustomerID", existing.ID, "userID", userID)
		return existing, nil
	}

	cus, err := call(ctx, sc.retry, "create_customer", func() (*stripe.Customer, error) {
		params := &stripe.CustomerParams{
			Email:    stripe.String(email),
			Metadata: map[string]string{metadataUserIDKey: userID},
		}
		params.Context = ctx
		return sc.api.Customers.New(params)
	})
	if err != nil {
		return nil, sc.wrap("CreateCustomer", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", userID)
	return toProcessorCustomer(cus), nil
}

// ListSubscriptions lists subscriptions with the given status filter
// ("active", "all", ...). An empty customerID lists across all customers.
func (sc *Client) ListSubscriptions(ctx context.Context, customerID, status string) ([]domain.ProcessorSubscription, error) {
	subs, err := call(ctx, sc.retry, "list_subscriptions", func() ([]domain.ProcessorSubscription, error) {
		params := &stripe.SubscriptionListParams{}
		if customerID != "" {
			params.Customer = stripe.String(customerID)
		}
		if status != "" {
			params.Status = stripe.String(status)
		}
		params.Context = ctx
		params.AddExpand("data.customer")

		var out []domain.ProcessorSubscription
		it := sc.api.Subscriptions.List(params)
		for it.Next() {
			out = append(out, toProcessorSubscription(it.Subscription()))
		}
		return out, it.Err()
	})
	if err != nil {
		return nil, sc.wrap("ListSubscriptions", err)
	}
	return subs, nil
}

// GetSubscription fetches one subscription with its customer expanded
func (sc *Client) GetSubscription(ctx context.Context, id string) (*domain.ProcessorSubscription, error) {
	sub, err := call(ctx, sc.retry, "get_subscription", func() (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		params.AddExpand("customer")
		return sc.api.Subscriptions.Get(id, params)
	})
	if err != nil {
		return nil, sc.wrap("GetSubscription", err)
	}
	out := toProcessorSubscription(sub)
	return &out, nil
}

// ListSucceededPaymentIntents lists succeeded payment intents. An empty
// customerID lists across all customers.
func (sc *Client) ListSucceededPaymentIntents(ctx context.Context, customerID string) ([]domain.ProcessorPayment, error) {
	payments, err := call(ctx, sc.retry, "list_payment_intents", func() ([]domain.ProcessorPayment, error) {
		params := &stripe.PaymentIntentListParams{}
		if customerID != "" {
			params.Customer = stripe.String(customerID)
		}
		params.Context = ctx
		params.AddExpand("data.customer")

		var out []domain.ProcessorPayment
		it := sc.api.PaymentIntents.List(params)
		for it.Next() {
			pi := it.PaymentIntent()
			if pi.Status != stripe.PaymentIntentStatusSucceeded {
				continue
			}
			out = append(out, toProcessorPayment(pi))
		}
		return out, it.Err()
	})
	if err != nil {
		return nil, sc.wrap("ListPaymentIntents", err)
	}
	return payments, nil
}

// GetPaymentIntent fetches one payment intent with its customer expanded
func (sc *Client) GetPaymentIntent(ctx context.Context, id string) (*domain.ProcessorPayment, error) {
	pi, err := call(ctx, sc.retry, "get_payment_intent", func() (*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		params.AddExpand("customer")
		return sc.api.PaymentIntents.Get(id, params)
	})
	if err != nil {
		return nil, sc.wrap("GetPaymentIntent", err)
	}
	out := toProcessorPayment(pi)
	return &out, nil
}

// ListCheckoutSessions lists the checkout sessions that created a payment intent
func (sc *Client) ListCheckoutSessions(ctx context.Context, paymentIntentID string) ([]domain.CheckoutSessionRef, error) {
	sessions, err := call(ctx, sc.retry, "list_checkout_sessions", func() ([]domain.CheckoutSessionRef, error) {
		params := &stripe.CheckoutSessionListParams{PaymentIntent: stripe.String(paymentIntentID)}
		params.Context = ctx

		var out []domain.CheckoutSessionRef
		it := sc.api.CheckoutSessions.List(params)
		for it.Next() {
			out = append(out, toSessionRef(it.CheckoutSession()))
		}
		return out, it.Err()
	})
	if err != nil {
		return nil, sc.wrap("ListCheckoutSessions", err)
	}
	return sessions, nil
}

// ListSessionLineItems lists the purchased lines of a checkout session
func (sc *Client) ListSessionLineItems(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	items, err := call(ctx, sc.retry, "list_line_items", func() ([]domain.LineItem, error) {
		params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
		params.Context = ctx

		var out []domain.LineItem
		it := sc.api.CheckoutSessions.ListLineItems(params)
		for it.Next() {
			out = append(out, toLineItem(it.LineItem()))
		}
		return out, it.Err()
	})
	if err != nil {
		return nil, sc.wrap("ListSessionLineItems", err)
	}
	return items, nil
}

// RetrieveCoupon returns the coupon id when it exists and is still valid
func (sc *Client) RetrieveCoupon(ctx context.Context, id string) (*domain.Discount, error) {
	coupon, err := call(ctx, sc.retry, "retrieve_coupon", func() (*stripe.Coupon, error) {
		params := &stripe.CouponParams{}
		params.Context = ctx
		return sc.api.Coupons.Get(id, params)
	})
	if err != nil {
		return nil, sc.wrap("RetrieveCoupon", err)
	}
	if !coupon.Valid {
		return nil, domain.NewNotFoundError("coupon", id)
	}
	return &domain.Discount{CouponID: coupon.ID}, nil
}

// FindPromotionCode resolves a customer-facing promotion code
func (sc *Client) FindPromotionCode(ctx context.Context, code string) (*domain.Discount, error) {
	promo, err := call(ctx, sc.retry, "find_promotion_code", func() (*stripe.PromotionCode, error) {
		params := &stripe.PromotionCodeListParams{
			Code:   stripe.String(code),
			Active: stripe.Bool(true),
		}
		params.Context = ctx
		params.Limit = stripe.Int64(1)

		it := sc.api.PromotionCodes.List(params)
		if it.Next() {
			return it.PromotionCode(), nil
		}
		return nil, it.Err()
	})
	if err != nil {
		return nil, sc.wrap("FindPromotionCode", err)
	}
	if promo == nil {
		return nil, domain.NewNotFoundError("promotion code", code)
	}
	return &domain.Discount{PromotionCodeID: promo.ID}, nil
}

// CreateCheckoutSession creates a hosted checkout session
func (sc *Client) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	session, err := call(ctx, sc.retry, "create_checkout_session", func() (*stripe.CheckoutSession, error) {
		params := &stripe.CheckoutSessionParams{
			Customer: stripe.String(req.CustomerID),
			Mode:     stripe.String(string(req.Mode)),
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(req.PriceID),
					Quantity: stripe.Int64(1),
				},
			},
			SuccessURL: stripe.String(req.SuccessURL),
			CancelURL:  stripe.String(req.CancelURL),
		}
		if req.ClientReferenceID != "" {
			params.ClientReferenceID = stripe.String(req.ClientReferenceID)
		}
		if d := req.Discount; d != nil {
			discount := &stripe.CheckoutSessionDiscountParams{}
			if d.CouponID != "" {
				discount.Coupon = stripe.String(d.CouponID)
			} else {
				discount.PromotionCode = stripe.String(d.PromotionCodeID)
			}
			params.Discounts = []*stripe.CheckoutSessionDiscountParams{discount}
		}
		if req.AllowPromotionCodes {
			params.AllowPromotionCodes = stripe.Bool(true)
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		params.Context = ctx
		return sc.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, sc.wrap("CreateCheckoutSession", err)
	}

	sc.log.Infow("Stripe checkout session created", "sessionID", session.ID, "mode", string(req.Mode))
	return &domain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// wrap logs the failure and converts permanent Stripe errors into the domain
// taxonomy. Transient and context errors pass through unchanged.
func (sc *Client) wrap(operation string, err error) error {
	logStripeError(sc.log, operation, err)

	if errors.Is(err, domain.ErrTransient) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("stripe %s: %w", operation, domain.ErrNotFound)
		}
		return domain.NewExternalServiceError(serviceName, operation, string(stripeErr.Code), stripeErr.HTTPStatusCode, err)
	}
	return domain.NewExternalServiceError(serviceName, operation, "", 0, err)
}

// logStripeError logs the details of a failed Stripe call
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
