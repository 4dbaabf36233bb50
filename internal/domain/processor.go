package domain

import "time"

// Views of payment processor objects, independent of the SDK types.

// ProcessorCustomer is a customer record at the processor
type ProcessorCustomer struct {
	ID    string
	Email string
}

// ProcessorSubscription is a recurring subscription at the processor
type ProcessorSubscription struct {
	ID                 string
	CustomerID         string
	CustomerEmail      string
	Status             string
	ProductIDs         []string
	Amount             int64
	Currency           string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

// ProcessorPayment is a payment intent at the processor
type ProcessorPayment struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	Amount        int64
	Currency      string
	Status        string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// CheckoutSessionRef is the part of a checkout session the engine needs
type CheckoutSessionRef struct {
	ID            string
	CustomerEmail string
	Metadata      map[string]string
}

// LineItem is one purchased line of a checkout session
type LineItem struct {
	ProductID   string
	PriceID     string
	Description string
}

// Discount is a resolved coupon or promotion code
type Discount struct {
	CouponID        string
	PromotionCodeID string
}

// CheckoutMode is the billing mode of a checkout session
type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// CheckoutSessionRequest carries everything needed to create a hosted checkout
type CheckoutSessionRequest struct {
	PriceID             string
	Mode                CheckoutMode
	CustomerID          string
	ClientReferenceID   string
	Discount            *Discount
	AllowPromotionCodes bool
	SuccessURL          string
	CancelURL           string
	Metadata            map[string]string
}

// CheckoutSession is a created hosted checkout
type CheckoutSession struct {
	ID  string
	URL string
}
