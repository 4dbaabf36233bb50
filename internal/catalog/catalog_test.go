package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dhoini/entitlement-service/internal/domain"
)

func TestCatalogExactMatch(t *testing.T) {
	c := New("prod_premium", "prod_lifetime")

	assert.True(t, c.IsPremium("prod_premium"))
	assert.False(t, c.IsPremium("prod_premium "))
	assert.False(t, c.IsPremium("PROD_PREMIUM"))
	assert.False(t, c.IsPremium(""))
	assert.True(t, c.IsLifetime("prod_lifetime"))
	assert.False(t, c.IsLifetime("prod_premium"))
}

func TestCatalogPlanFor(t *testing.T) {
	c := New("prod_premium", "prod_lifetime")

	assert.Equal(t, domain.PlanPremium, c.PlanFor("prod_premium"))
	assert.Equal(t, domain.PlanLifetime, c.PlanFor("prod_lifetime"))
	assert.Equal(t, domain.PlanNone, c.PlanFor("prod_other"))
	assert.True(t, c.AnyPremium([]string{"prod_other", "prod_premium"}))
	assert.False(t, c.AnyPremium(nil))
	assert.Equal(t, domain.PlanLifetime, c.PlanForMode(domain.CheckoutModePayment))
	assert.Equal(t, domain.PlanPremium, c.PlanForMode(domain.CheckoutModeSubscription))
}

func TestEmptyCatalogMatchesNothing(t *testing.T) {
	c := New("", "")
	assert.False(t, c.IsPremium(""))
	assert.False(t, c.IsLifetime(""))
}
