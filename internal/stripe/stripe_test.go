package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "sk_test_123", APIURL: srv.URL}, newTestRetrier(3, nil), logger.NewNop())
}

func TestFindCustomerByEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "ann@example.com", r.URL.Query().Get("email"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/customers","has_more":false,
			"data":[{"id":"cus_1","object":"customer","email":"ann@example.com"}]}`))
	})

	cus, err := c.FindCustomerByEmail(context.Background(), "ann@example.com")

	require.NoError(t, err)
	require.NotNil(t, cus)
	assert.Equal(t, "cus_1", cus.ID)
}

func TestFindCustomerByEmailNoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/customers","has_more":false,"data":[]}`))
	})

	cus, err := c.FindCustomerByEmail(context.Background(), "nobody@example.com")

	require.NoError(t, err)
	assert.Nil(t, cus)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"try later"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/customers","has_more":false,
			"data":[{"id":"cus_9","object":"customer","email":"bo@example.com"}]}`))
	})

	cus, err := c.FindCustomerByEmail(context.Background(), "bo@example.com")

	require.NoError(t, err)
	assert.Equal(t, "cus_9", cus.ID)
	assert.EqualValues(t, 3, hits.Load())
}

func TestClientDoesNotRetryMissingCoupon(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such coupon"}}`))
	})

	_, err := c.RetrieveCoupon(context.Background(), "SPRING")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualValues(t, 1, hits.Load())
}

func TestListSessionLineItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_1/line_items", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/checkout/sessions/cs_1/line_items","has_more":false,
			"data":[{"id":"li_1","object":"item","description":"Lifetime","price":{"id":"price_1","object":"price","product":"prod_lifetime"}}]}`))
	})

	items, err := c.ListSessionLineItems(context.Background(), "cs_1")

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "prod_lifetime", items[0].ProductID)
	assert.Equal(t, "price_1", items[0].PriceID)
}

func TestParseWebhookSubscriptionEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.updated",
		"data":{"object":{"id":"sub_42","object":"subscription"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := ParseWebhook(signed.Payload, signed.Header, "whsec_test")

	require.NoError(t, err)
	assert.Equal(t, "sub_42", event.SubscriptionID)
	assert.Empty(t, event.PaymentIntentID)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	_, err := ParseWebhook([]byte(`{}`), "t=1,v1=deadbeef", "whsec_test")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
