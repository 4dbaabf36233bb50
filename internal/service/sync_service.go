package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/entitlement-service/internal/catalog"
	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/internal/kafka"
	"github.com/Dhoini/entitlement-service/internal/metrics"
	"github.com/Dhoini/entitlement-service/internal/repository"
	"github.com/Dhoini/entitlement-service/pkg/logger"
)

// Record kinds used as metric labels
const (
	kindSubscription = "subscription"
	kindPayment      = "payment"
)

// SyncService makes the local billing store converge with the processor
type SyncService interface {
	// RunSync pulls every subscription and lifetime purchase. Only the owner
	// may run it. Per-record failures are counted, not returned.
	RunSync(ctx context.Context, caller *domain.Caller) (domain.SyncResult, error)

	// SyncSubscription re-reads one subscription, e.g. after a webhook
	SyncSubscription(ctx context.Context, subscriptionID string) error

	// SyncPurchase re-reads one payment and stores it if it bought lifetime
	SyncPurchase(ctx context.Context, paymentIntentID string) error
}

type syncService struct {
	store     repository.BillingStore
	users     repository.UserDirectory
	processor Processor
	catalog   *catalog.Catalog
	publisher kafka.Publisher
	metrics   metrics.BillingMetrics
	effects   nonCritical
	timeout   time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewSyncService creates the reconciliation job. A zero timeout means the
// run is bounded only by ctx.
func NewSyncService(
	store repository.BillingStore,
	users repository.UserDirectory,
	processor Processor,
	cat *catalog.Catalog,
	publisher kafka.Publisher,
	billingMetrics metrics.BillingMetrics,
	timeout time.Duration,
	log *logger.Logger,
) SyncService {
	if publisher == nil {
		publisher = kafka.NoopPublisher{}
	}
	return &syncService{
		store:     store,
		users:     users,
		processor: processor,
		catalog:   cat,
		publisher: publisher,
		metrics:   billingMetrics,
		effects:   nonCritical{log: log, metrics: billingMetrics},
		timeout:   timeout,
		now:       time.Now,
		log:       log,
	}
}

// userMemo caches e-mail lookups for the duration of one run
type userMemo struct {
	users repository.UserDirectory
	byKey map[string]*string
}

func newUserMemo(users repository.UserDirectory) *userMemo {
	return &userMemo{users: users, byKey: make(map[string]*string)}
}

// resolve returns nil for unknown e-mails; such records are kept unowned
func (m *userMemo) resolve(ctx context.Context, email string) (*string, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return nil, nil
	}
	if id, ok := m.byKey[key]; ok {
		return id, nil
	}

	id, err := m.users.FindUserIDByEmail(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		m.byKey[key] = nil
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("resolve user %s: %w", key, err)
	}
	m.byKey[key] = &id
	return &id, nil
}

// RunSync returns the partial result together with the context error when
// the deadline fires mid-run.
func (s *syncService) RunSync(ctx context.Context, caller *domain.Caller) (domain.SyncResult, error) {
	if err := caller.Authenticate(s.now()); err != nil {
		return domain.SyncResult{}, err
	}
	if !caller.IsOwner() {
		s.log.Warnw("Sync rejected for non-owner", "user_id", caller.UserID, "role", caller.Role)
		return domain.SyncResult{}, domain.ErrForbidden
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := s.now()
	s.log.Info("Billing sync started by %s", caller.UserID)

	var result domain.SyncResult
	memo := newUserMemo(s.users)

	err := s.syncSubscriptions(ctx, memo, &result)
	if err == nil {
		err = s.syncPayments(ctx, memo, &result)
	}

	elapsed := s.now().Sub(started)
	s.metrics.AddSynced(kindSubscription, result.SyncedSubscriptions)
	s.metrics.AddSynced(kindPayment, result.SyncedPayments)
	s.metrics.ObserveSyncDuration(elapsed)

	s.effects.run(ctx, effectPublishSync, func(ctx context.Context) error {
		return s.publisher.PublishSyncCompleted(ctx, kafka.SyncCompletedEvent{
			TriggeredBy:         caller.UserID,
			SyncedSubscriptions: result.SyncedSubscriptions,
			SyncedPayments:      result.SyncedPayments,
			Skipped:             result.Skipped,
			Failed:              result.Failed,
			Partial:             err != nil,
			DurationMillis:      elapsed.Milliseconds(),
			OccurredAt:          s.now(),
		})
	})

	if err != nil {
		s.log.Errorw("Billing sync stopped early", "error", err,
			"subscriptions", result.SyncedSubscriptions, "payments", result.SyncedPayments)
		return result, err
	}

	s.log.Infow("Billing sync finished",
		"subscriptions", result.SyncedSubscriptions,
		"payments", result.SyncedPayments,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", elapsed)
	return result, nil
}

func (s *syncService) syncSubscriptions(ctx context.Context, memo *userMemo, result *domain.SyncResult) error {
	subs, err := s.processor.ListSubscriptions(ctx, "", statusFilterAll)
	if err != nil {
		s.metrics.IncSyncFailure("list_subscriptions")
		return fmt.Errorf("list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		synced, err := s.upsertSubscription(ctx, memo, sub)
		switch {
		case err != nil:
			result.Failed++
			s.metrics.IncSyncFailure(kindSubscription)
			s.log.Warnw("Failed to sync subscription", "subscription_id", sub.ID, "error", err)
		case !synced:
			result.Skipped++
			s.metrics.IncSyncSkipped(kindSubscription)
		default:
			result.SyncedSubscriptions++
		}
	}
	return nil
}

func (s *syncService) syncPayments(ctx context.Context, memo *userMemo, result *domain.SyncResult) error {
	payments, err := s.processor.ListSucceededPaymentIntents(ctx, "")
	if err != nil {
		s.metrics.IncSyncFailure("list_payments")
		return fmt.Errorf("list payments: %w", err)
	}

	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return err
		}
		synced, err := s.upsertPurchase(ctx, memo, payment)
		switch {
		case err != nil:
			result.Failed++
			s.metrics.IncSyncFailure(kindPayment)
			s.log.Warnw("Failed to sync payment", "payment_intent_id", payment.ID, "error", err)
		case !synced:
			result.Skipped++
			s.metrics.IncSyncSkipped(kindPayment)
		default:
			result.SyncedPayments++
		}
	}
	return nil
}

// upsertSubscription stores a premium subscription keyed on its processor
// id. It reports false for subscriptions of other products; those are
// counted as skipped and never stored.
func (s *syncService) upsertSubscription(ctx context.Context, memo *userMemo, sub domain.ProcessorSubscription) (bool, error) {
	if !s.catalog.AnyPremium(sub.ProductIDs) {
		s.log.Debugw("Skipping subscription of a non-premium product", "subscription_id", sub.ID, "products", sub.ProductIDs)
		return false, nil
	}

	userID, err := memo.resolve(ctx, sub.CustomerEmail)
	if err != nil {
		return false, err
	}

	rec := &domain.SubscriptionRecord{
		UserID:                 userID,
		ExternalCustomerID:     sub.CustomerID,
		ExternalSubscriptionID: sub.ID,
		PlanType:               domain.PlanPremium,
		GrantSource:            domain.GrantSourceStripeSubscription,
		Status:                 sub.Status,
		Amount:                 sub.Amount,
		Currency:               sub.Currency,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             sub.CanceledAt,
		CustomerEmail:          sub.CustomerEmail,
	}
	if err := s.store.UpsertSubscription(ctx, rec); err != nil {
		return false, fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}
	return true, nil
}

// upsertPurchase stores a lifetime purchase as a synthetic-keyed grant plus
// the payment row. It reports false for payments that bought something else.
func (s *syncService) upsertPurchase(ctx context.Context, memo *userMemo, payment domain.ProcessorPayment) (bool, error) {
	match, err := findLifetimePurchase(ctx, s.processor, s.catalog, payment.ID)
	if err != nil {
		return false, err
	}
	if match == nil {
		return false, nil
	}

	email := match.session.CustomerEmail
	if email == "" {
		email = payment.CustomerEmail
	}

	// the checkout metadata binds the session to the buyer directly
	userID := domain.StringPtr(match.session.Metadata[metadataUserID])
	if userID == nil {
		if userID, err = memo.resolve(ctx, email); err != nil {
			return false, err
		}
	}

	grant := &domain.SubscriptionRecord{
		UserID:                 userID,
		ExternalCustomerID:     payment.CustomerID,
		ExternalSubscriptionID: domain.LifetimeSubscriptionKey(payment.ID),
		PlanType:               domain.PlanLifetime,
		GrantSource:            domain.GrantSourceStripeLifetime,
		Status:                 domain.SubscriptionStatusActive,
		Amount:                 payment.Amount,
		Currency:               payment.Currency,
		CurrentPeriodStart:     domain.TimePtr(payment.CreatedAt),
		CustomerEmail:          email,
	}
	if err := s.store.UpsertSubscription(ctx, grant); err != nil {
		return false, fmt.Errorf("upsert lifetime grant %s: %w", payment.ID, err)
	}

	rec := &domain.PaymentRecord{
		PaymentIntentID:    payment.ID,
		ExternalCustomerID: payment.CustomerID,
		UserID:             userID,
		Amount:             payment.Amount,
		Currency:           payment.Currency,
		Status:             payment.Status,
		PaymentType:        domain.PaymentTypeOneTime,
		CustomerEmail:      email,
		Metadata: map[string]string{
			domain.PaymentMetadataSessionID: match.session.ID,
			domain.PaymentMetadataProduct:   match.productID,
		},
	}
	if err := s.store.UpsertPayment(ctx, rec); err != nil {
		return false, fmt.Errorf("upsert payment %s: %w", payment.ID, err)
	}
	return true, nil
}

func (s *syncService) SyncSubscription(ctx context.Context, subscriptionID string) error {
	sub, err := s.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}

	synced, err := s.upsertSubscription(ctx, newUserMemo(s.users), *sub)
	if err != nil {
		s.metrics.IncSyncFailure(kindSubscription)
		return err
	}
	if !synced {
		s.log.Debug("Ignoring subscription %s of a non-premium product", subscriptionID)
		return nil
	}
	s.metrics.AddSynced(kindSubscription, 1)
	s.log.Infow("Subscription synced", "subscription_id", subscriptionID, "status", sub.Status)
	return nil
}

func (s *syncService) SyncPurchase(ctx context.Context, paymentIntentID string) error {
	payment, err := s.processor.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return fmt.Errorf("get payment %s: %w", paymentIntentID, err)
	}
	if payment.Status != domain.PaymentStatusSucceeded {
		s.log.Debug("Ignoring payment %s in status %s", paymentIntentID, payment.Status)
		return nil
	}

	synced, err := s.upsertPurchase(ctx, newUserMemo(s.users), *payment)
	if err != nil {
		s.metrics.IncSyncFailure(kindPayment)
		return err
	}
	if synced {
		s.metrics.AddSynced(kindPayment, 1)
		s.log.Infow("Lifetime purchase synced", "payment_intent_id", paymentIntentID)
	}
	return nil
}
