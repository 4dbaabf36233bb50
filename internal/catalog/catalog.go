// Package catalog holds the processor product identities that separate the
// premium (recurring) offering from the lifetime (one-time) offering. Every
// component compares product references through this package only.
package catalog

import "github.com/Dhoini/entitlement-service/internal/domain"

// Catalog maps processor product ids to plans
type Catalog struct {
	premiumProductID  string
	lifetimeProductID string
}

// New creates a Catalog. Both ids are compared by exact string equality.
func New(premiumProductID, lifetimeProductID string) *Catalog {
	return &Catalog{
		premiumProductID:  premiumProductID,
		lifetimeProductID: lifetimeProductID,
	}
}

// PremiumProductID returns the recurring product id
func (c *Catalog) PremiumProductID() string {
	return c.premiumProductID
}

// LifetimeProductID returns the one-time product id
func (c *Catalog) LifetimeProductID() string {
	return c.lifetimeProductID
}

// IsPremium reports whether productID is the premium product
func (c *Catalog) IsPremium(productID string) bool {
	return productID != "" && productID == c.premiumProductID
}

// IsLifetime reports whether productID is the lifetime product
func (c *Catalog) IsLifetime(productID string) bool {
	return productID != "" && productID == c.lifetimeProductID
}

// PlanFor returns the plan a product grants, PlanNone when unknown
func (c *Catalog) PlanFor(productID string) domain.PlanType {
	switch {
	case c.IsLifetime(productID):
		return domain.PlanLifetime
	case c.IsPremium(productID):
		return domain.PlanPremium
	default:
		return domain.PlanNone
	}
}

// AnyPremium reports whether any of productIDs is the premium product
func (c *Catalog) AnyPremium(productIDs []string) bool {
	for _, id := range productIDs {
		if c.IsPremium(id) {
			return true
		}
	}
	return false
}

// PlanForMode is the plan a checkout in the given mode is expected to grant
func (c *Catalog) PlanForMode(mode domain.CheckoutMode) domain.PlanType {
	if mode == domain.CheckoutModePayment {
		return domain.PlanLifetime
	}
	return domain.PlanPremium
}
