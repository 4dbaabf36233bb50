package service

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/entitlement-service/internal/catalog"
	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/internal/kafka"
	"github.com/stretchr/testify/mock"
)

const (
	premiumProduct  = "prod_premium"
	lifetimeProduct = "prod_lifetime"
)

var testNow = time.Date(2025, 3, 10, 15, 4, 5, 0, time.UTC)

func testCatalog() *catalog.Catalog {
	return catalog.New(premiumProduct, lifetimeProduct)
}

func fixedClock() time.Time { return testNow }

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) FindCustomerByEmail(ctx context.Context, email string) (*domain.ProcessorCustomer, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(*domain.ProcessorCustomer), args.Error(1)
}

func (m *mockProcessor) FindOrCreateCustomer(ctx context.Context, email, userID string) (*domain.ProcessorCustomer, error) {
	args := m.Called(ctx, email, userID)
	return args.Get(0).(*domain.ProcessorCustomer), args.Error(1)
}

func (m *mockProcessor) ListSubscriptions(ctx context.Context, customerID, status string) ([]domain.ProcessorSubscription, error) {
	args := m.Called(ctx, customerID, status)
	return args.Get(0).([]domain.ProcessorSubscription), args.Error(1)
}

func (m *mockProcessor) GetSubscription(ctx context.Context, id string) (*domain.ProcessorSubscription, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.ProcessorSubscription), args.Error(1)
}

func (m *mockProcessor) ListSucceededPaymentIntents(ctx context.Context, customerID string) ([]domain.ProcessorPayment, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]domain.ProcessorPayment), args.Error(1)
}

func (m *mockProcessor) GetPaymentIntent(ctx context.Context, id string) (*domain.ProcessorPayment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.ProcessorPayment), args.Error(1)
}

func (m *mockProcessor) ListCheckoutSessions(ctx context.Context, paymentIntentID string) ([]domain.CheckoutSessionRef, error) {
	args := m.Called(ctx, paymentIntentID)
	return args.Get(0).([]domain.CheckoutSessionRef), args.Error(1)
}

func (m *mockProcessor) ListSessionLineItems(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]domain.LineItem), args.Error(1)
}

func (m *mockProcessor) RetrieveCoupon(ctx context.Context, id string) (*domain.Discount, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.Discount), args.Error(1)
}

func (m *mockProcessor) FindPromotionCode(ctx context.Context, code string) (*domain.Discount, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(*domain.Discount), args.Error(1)
}

func (m *mockProcessor) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

// recordingMetrics counts the calls the assertions care about
type recordingMetrics struct {
	mu          sync.Mutex
	resolutions map[string]int
	redemptions map[string]int
	checkouts   map[string]int
	synced      map[string]int
	skipped     map[string]int
	sideEffects map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		resolutions: map[string]int{},
		redemptions: map[string]int{},
		checkouts:   map[string]int{},
		synced:      map[string]int{},
		skipped:     map[string]int{},
		sideEffects: map[string]int{},
	}
}

func (m *recordingMetrics) IncResolution(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions[source]++
}

func (m *recordingMetrics) IncRedemption(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemptions[outcome]++
}

func (m *recordingMetrics) IncCheckout(mode, discount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts[mode+"/"+discount]++
}

func (m *recordingMetrics) AddSynced(kind string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced[kind] += n
}

func (m *recordingMetrics) IncSyncSkipped(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[kind]++
}

func (m *recordingMetrics) IncSyncFailure(string)             {}
func (m *recordingMetrics) ObserveSyncDuration(time.Duration) {}
func (m *recordingMetrics) IncProcessorRetry(string)          {}

func (m *recordingMetrics) IncSideEffectFailure(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sideEffects[name]++
}

// recordingPublisher keeps published events; err fails every publish
type recordingPublisher struct {
	mu      sync.Mutex
	granted []kafka.EntitlementEvent
	revoked []kafka.EntitlementEvent
	syncs   []kafka.SyncCompletedEvent
	err     error
}

func (p *recordingPublisher) PublishEntitlementGranted(_ context.Context, event kafka.EntitlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.granted = append(p.granted, event)
	return nil
}

func (p *recordingPublisher) PublishEntitlementRevoked(_ context.Context, event kafka.EntitlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *recordingPublisher) PublishSyncCompleted(_ context.Context, event kafka.SyncCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.syncs = append(p.syncs, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func userCaller(id, email string) *domain.Caller {
	return &domain.Caller{UserID: id, Email: email, Role: domain.RoleUser, ExpiresAt: testNow.Add(time.Hour)}
}

func ownerCaller() *domain.Caller {
	return &domain.Caller{UserID: "owner-1", Email: "owner@example.com", Role: domain.RoleOwner, ExpiresAt: testNow.Add(time.Hour)}
}
