package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// WebhookEvent is the part of a verified Stripe event that triggers a resync
type WebhookEvent struct {
	ID              string
	Type            string
	SubscriptionID  string
	PaymentIntentID string
}

// ParseWebhook verifies the Stripe-Signature header and extracts the ids of
// the objects that need a resync. Events of other types come back with both
// ids empty.
func ParseWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature: %v", domain.ErrInvalidInput, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription payload: %v", domain.ErrInvalidInput, err)
		}
		out.SubscriptionID = sub.ID

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: checkout session payload: %v", domain.ErrInvalidInput, err)
		}
		switch {
		case session.Subscription != nil:
			out.SubscriptionID = session.Subscription.ID
		case session.PaymentIntent != nil:
			out.PaymentIntentID = session.PaymentIntent.ID
		}
	}
	return out, nil
}
