package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/internal/middleware"
	"github.com/Dhoini/entitlement-service/internal/service"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/Dhoini/entitlement-service/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
)

type mockEntitlements struct{ mock.Mock }

func (m *mockEntitlements) Resolve(ctx context.Context, caller *domain.Caller) (domain.Entitlement, error) {
	args := m.Called(ctx, caller)
	return args.Get(0).(domain.Entitlement), args.Error(1)
}

type mockCheckout struct{ mock.Mock }

func (m *mockCheckout) CreateSession(ctx context.Context, caller *domain.Caller, r service.CheckoutRequest) (string, error) {
	args := m.Called(ctx, caller, r)
	return args.String(0), args.Error(1)
}

type mockRedemption struct{ mock.Mock }

func (m *mockRedemption) Redeem(ctx context.Context, caller *domain.Caller, code string) (domain.RedemptionResult, error) {
	args := m.Called(ctx, caller, code)
	return args.Get(0).(domain.RedemptionResult), args.Error(1)
}

func (m *mockRedemption) SaveCode(ctx context.Context, caller *domain.Caller, r service.SaveCodeRequest) (domain.PromoCode, error) {
	args := m.Called(ctx, caller, r)
	return args.Get(0).(domain.PromoCode), args.Error(1)
}

type mockSync struct{ mock.Mock }

func (m *mockSync) RunSync(ctx context.Context, caller *domain.Caller) (domain.SyncResult, error) {
	args := m.Called(ctx, caller)
	return args.Get(0).(domain.SyncResult), args.Error(1)
}

func (m *mockSync) SyncSubscription(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockSync) SyncPurchase(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

var testCaller = &domain.Caller{UserID: "u1", Email: "ann@example.com", Role: domain.RoleUser}

// withCaller stands in for the JWT middleware
func withCaller(caller *domain.Caller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextCallerKey, caller)
		c.Next()
	}
}

func newRouter(handlers ...func(r gin.IRoutes)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("", withCaller(testCaller))
	for _, h := range handlers {
		h(group)
	}
	return router
}

func serve(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	request := httptest.NewRequest(method, path, &buf)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestGetEntitlement(t *testing.T) {
	ents := &mockEntitlements{}
	h := NewBillingHandler(ents, &mockCheckout{}, &mockRedemption{}, logger.NewNop())
	router := newRouter(func(r gin.IRoutes) { r.GET("/entitlement", h.GetEntitlement) })

	end := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	ents.On("Resolve", mock.Anything, testCaller).Return(domain.Entitlement{
		Plan: domain.PlanPremium, ExpiresAt: &end, Source: domain.SourceLiveSubscription,
	}, nil).Once()

	recorder := serve(router, http.MethodGet, "/entitlement", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"plan":"premium","expires_at":"2025-04-01T00:00:00Z","source":"live_subscription"}`, recorder.Body.String())
}

func TestGetEntitlementSessionExpired(t *testing.T) {
	ents := &mockEntitlements{}
	h := NewBillingHandler(ents, &mockCheckout{}, &mockRedemption{}, logger.NewNop())
	router := newRouter(func(r gin.IRoutes) { r.GET("/entitlement", h.GetEntitlement) })
	ents.On("Resolve", mock.Anything, testCaller).Return(domain.NotEntitled(), domain.ErrSessionExpired)

	recorder := serve(router, http.MethodGet, "/entitlement", nil)

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	var body res.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, res.CodeSessionExpired, body.Code)
}

func TestCreateCheckout(t *testing.T) {
	checkout := &mockCheckout{}
	h := NewBillingHandler(&mockEntitlements{}, checkout, &mockRedemption{}, logger.NewNop())
	router := newRouter(func(r gin.IRoutes) { r.POST("/checkout", h.CreateCheckout) })

	want := service.CheckoutRequest{PriceID: "price_1", Mode: domain.CheckoutModePayment, DiscountCode: "SPRING"}
	checkout.On("CreateSession", mock.Anything, testCaller, want).Return("https://checkout.example.com/cs_1", nil)

	recorder := serve(router, http.MethodPost, "/checkout", map[string]string{
		"price_id": "price_1", "mode": "payment", "discount_code": "SPRING",
	})

	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.JSONEq(t, `{"url":"https://checkout.example.com/cs_1"}`, recorder.Body.String())
}

func TestCreateCheckoutValidation(t *testing.T) {
	checkout := &mockCheckout{}
	h := NewBillingHandler(&mockEntitlements{}, checkout, &mockRedemption{}, logger.NewNop())
	router := newRouter(func(r gin.IRoutes) { r.POST("/checkout", h.CreateCheckout) })

	recorder := serve(router, http.MethodPost, "/checkout", map[string]string{"mode": "setup"})

	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	var body res.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, res.CodeInvalidRequest, body.Code)
	assert.Empty(t, checkout.Calls)
}

func TestRedeemCodeReasons(t *testing.T) {
	tests := []struct {
		reason domain.RedemptionReason
		status int
	}{
		{domain.ReasonCodeNotFound, http.StatusNotFound},
		{domain.ReasonCodeExpired, http.StatusGone},
		{domain.ReasonCodeExhausted, http.StatusGone},
		{domain.ReasonAlreadyRedeemed, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			redemption := &mockRedemption{}
			h := NewBillingHandler(&mockEntitlements{}, &mockCheckout{}, redemption, logger.NewNop())
			router := newRouter(func(r gin.IRoutes) { r.POST("/codes/redeem", h.RedeemCode) })
			redemption.On("Redeem", mock.Anything, testCaller, "WELCOME2025").
				Return(domain.RedemptionResult{}, domain.NewRedemptionError(tt.reason, "WELCOME2025"))

			recorder := serve(router, http.MethodPost, "/codes/redeem", map[string]string{"code": "WELCOME2025"})

			require.Equal(t, tt.status, recorder.Code)
			var body res.ErrorResponse
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
			assert.Equal(t, string(tt.reason), body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestRedeemCodeSuccess(t *testing.T) {
	redemption := &mockRedemption{}
	h := NewBillingHandler(&mockEntitlements{}, &mockCheckout{}, redemption, logger.NewNop())
	router := newRouter(func(r gin.IRoutes) { r.POST("/codes/redeem", h.RedeemCode) })
	end := time.Date(2025, 4, 9, 23, 59, 59, 999_000_000, time.UTC)
	redemption.On("Redeem", mock.Anything, testCaller, "welcome2025").
		Return(domain.RedemptionResult{GrantedPlan: domain.PlanPremium, PeriodEnd: end}, nil)

	recorder := serve(router, http.MethodPost, "/codes/redeem", map[string]string{"code": "welcome2025"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"granted_plan":"premium","period_end":"2025-04-09T23:59:59.999Z"}`, recorder.Body.String())
}

func TestRunSyncReportsPartialResult(t *testing.T) {
	sync := &mockSync{}
	h := NewAdminHandler(sync, nil, nil, logger.NewNop())
	router := newRouter(func(r gin.IRoutes) { r.POST("/admin/billing/sync", h.RunSync) })
	sync.On("RunSync", mock.Anything, testCaller).
		Return(domain.SyncResult{SyncedSubscriptions: 3}, context.DeadlineExceeded)

	recorder := serve(router, http.MethodPost, "/admin/billing/sync", nil)

	require.Equal(t, http.StatusGatewayTimeout, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"synced_subscriptions":3`)
}

func TestRunSyncForbidden(t *testing.T) {
	sync := &mockSync{}
	h := NewAdminHandler(sync, nil, nil, logger.NewNop())
	router := newRouter(func(r gin.IRoutes) { r.POST("/admin/billing/sync", h.RunSync) })
	sync.On("RunSync", mock.Anything, testCaller).Return(domain.SyncResult{}, domain.ErrForbidden)

	recorder := serve(router, http.MethodPost, "/admin/billing/sync", nil)

	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func signedWebhook(t *testing.T, payload string) (*bytes.Reader, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})
	return bytes.NewReader(signed.Payload), signed.Header
}

func TestWebhookSyncsSubscription(t *testing.T) {
	sync := &mockSync{}
	h, err := NewWebhookHandler("whsec_test", sync, logger.NewNop())
	require.NoError(t, err)
	router := newRouter(func(r gin.IRoutes) { r.POST("/webhooks/stripe", h.HandleStripeWebhook) })
	sync.On("SyncSubscription", mock.Anything, "sub_42").Return(nil).Once()

	body, header := signedWebhook(t, `{"id":"evt_1","object":"event","type":"customer.subscription.deleted",
		"data":{"object":{"id":"sub_42","object":"subscription"}}}`)
	request := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", body)
	request.Header.Set("Stripe-Signature", header)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	sync.AssertExpectations(t)
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	sync := &mockSync{}
	h, err := NewWebhookHandler("whsec_test", sync, logger.NewNop())
	require.NoError(t, err)
	router := newRouter(func(r gin.IRoutes) { r.POST("/webhooks/stripe", h.HandleStripeWebhook) })

	request := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	request.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, sync.Calls)

	_, err = NewWebhookHandler("", sync, logger.NewNop())
	assert.Error(t, err)
}
