package stripe

import (
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

func unixPtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func toProcessorCustomer(c *stripe.Customer) *domain.ProcessorCustomer {
	return &domain.ProcessorCustomer{ID: c.ID, Email: c.Email}
}

// toProcessorSubscription flattens the subscription items into product ids and
// sums the per-period amount of all items
func toProcessorSubscription(s *stripe.Subscription) domain.ProcessorSubscription {
	out := domain.ProcessorSubscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: unixPtr(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixPtr(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         unixPtr(s.CanceledAt),
		Currency:           string(s.Currency),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
		out.CustomerEmail = s.Customer.Email
	}
	if s.Items == nil {
		return out
	}
	for _, item := range s.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		if item.Price.Product != nil {
			out.ProductIDs = append(out.ProductIDs, item.Price.Product.ID)
		}
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		out.Amount += item.Price.UnitAmount * qty
		if out.Currency == "" {
			out.Currency = string(item.Price.Currency)
		}
	}
	return out
}

func toProcessorPayment(pi *stripe.PaymentIntent) domain.ProcessorPayment {
	out := domain.ProcessorPayment{
		ID:            pi.ID,
		Amount:        pi.Amount,
		Currency:      string(pi.Currency),
		Status:        string(pi.Status),
		Metadata:      pi.Metadata,
		CustomerEmail: pi.ReceiptEmail,
		CreatedAt:     time.Unix(pi.Created, 0).UTC(),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
		if out.CustomerEmail == "" {
			out.CustomerEmail = pi.Customer.Email
		}
	}
	return out
}

func toSessionRef(s *stripe.CheckoutSession) domain.CheckoutSessionRef {
	ref := domain.CheckoutSessionRef{
		ID:            s.ID,
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if ref.CustomerEmail == "" && s.CustomerDetails != nil {
		ref.CustomerEmail = s.CustomerDetails.Email
	}
	return ref
}

func toLineItem(li *stripe.LineItem) domain.LineItem {
	out := domain.LineItem{Description: li.Description}
	if li.Price != nil {
		out.PriceID = li.Price.ID
		if li.Price.Product != nil {
			out.ProductID = li.Price.Product.ID
		}
	}
	return out
}
