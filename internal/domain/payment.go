package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentType distinguishes one-time charges from subscription invoices
type PaymentType string

const (
	PaymentTypeOneTime   PaymentType = "one_time"
	PaymentTypeRecurring PaymentType = "recurring"
)

// PaymentStatusSucceeded is the processor status of a completed charge
const PaymentStatusSucceeded = "succeeded"

// Payment metadata keys
const (
	PaymentMetadataSessionID = "checkout_session_id"
	PaymentMetadataProduct   = "product"
)

// PaymentRecord is one completed one-time charge, keyed by PaymentIntentID
type PaymentRecord struct {
	ID                 uuid.UUID         `json:"id" db:"id"`
	PaymentIntentID    string            `json:"payment_intent_id" db:"payment_intent_id"`
	ExternalCustomerID string            `json:"external_customer_id" db:"external_customer_id"`
	UserID             *string           `json:"user_id,omitempty" db:"user_id"`
	Amount             int64             `json:"amount" db:"amount"`
	Currency           string            `json:"currency" db:"currency"`
	Status             string            `json:"status" db:"status"`
	PaymentType        PaymentType       `json:"payment_type" db:"payment_type"`
	CustomerEmail      string            `json:"customer_email" db:"customer_email"`
	Metadata           map[string]string `json:"metadata,omitempty" db:"-"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}
