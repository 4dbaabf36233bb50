package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/internal/repository"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ repository.BillingStore  = (*BillingRepository)(nil)
	_ repository.CodeStore     = (*CodeRepository)(nil)
	_ repository.UserDirectory = (*UserRepository)(nil)
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const subscriptionColumns = `
	id, user_id, external_customer_id, external_subscription_id, plan_type, grant_source,
	status, amount, currency, current_period_start, current_period_end,
	cancel_at_period_end, canceled_at, customer_email, created_at, updated_at`

const upsertSubscriptionQuery = `
	INSERT INTO subscriptions (
		id, user_id, external_customer_id, external_subscription_id, plan_type, grant_source,
		status, amount, currency, current_period_start, current_period_end,
		cancel_at_period_end, canceled_at, customer_email, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
	ON CONFLICT (external_subscription_id) DO UPDATE SET
		user_id              = COALESCE(EXCLUDED.user_id, subscriptions.user_id),
		external_customer_id = EXCLUDED.external_customer_id,
		plan_type            = EXCLUDED.plan_type,
		grant_source         = EXCLUDED.grant_source,
		status               = EXCLUDED.status,
		amount               = EXCLUDED.amount,
		currency             = EXCLUDED.currency,
		current_period_start = EXCLUDED.current_period_start,
		current_period_end   = EXCLUDED.current_period_end,
		cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		canceled_at          = EXCLUDED.canceled_at,
		customer_email       = EXCLUDED.customer_email,
		updated_at           = now()
	RETURNING id, user_id, created_at, updated_at`

// BillingRepository implements the billing store on PostgreSQL
type BillingRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewBillingRepository creates a BillingRepository
func NewBillingRepository(db *pgxpool.Pool, log *logger.Logger) *BillingRepository {
	return &BillingRepository{db: db, log: log}
}

func scanSubscription(row pgx.Row) (*domain.SubscriptionRecord, error) {
	var (
		rec         domain.SubscriptionRecord
		planType    string
		grantSource string
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ExternalCustomerID,
		&rec.ExternalSubscriptionID,
		&planType,
		&grantSource,
		&rec.Status,
		&rec.Amount,
		&rec.Currency,
		&rec.CurrentPeriodStart,
		&rec.CurrentPeriodEnd,
		&rec.CancelAtPeriodEnd,
		&rec.CanceledAt,
		&rec.CustomerEmail,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.PlanType = domain.PlanType(planType)
	rec.GrantSource = domain.GrantSource(grantSource)
	return &rec, nil
}

func upsertSubscription(ctx context.Context, q querier, rec *domain.SubscriptionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := q.QueryRow(ctx, upsertSubscriptionQuery,
		rec.ID,
		rec.UserID,
		rec.ExternalCustomerID,
		rec.ExternalSubscriptionID,
		string(rec.PlanType),
		string(rec.GrantSource),
		rec.Status,
		rec.Amount,
		rec.Currency,
		rec.CurrentPeriodStart,
		rec.CurrentPeriodEnd,
		rec.CancelAtPeriodEnd,
		rec.CanceledAt,
		rec.CustomerEmail,
	).Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription %s: %w", rec.ExternalSubscriptionID, err)
	}
	return nil
}

// UpsertSubscription inserts or updates on external_subscription_id
func (r *BillingRepository) UpsertSubscription(ctx context.Context, rec *domain.SubscriptionRecord) error {
	if rec == nil || rec.ExternalSubscriptionID == "" {
		return domain.ErrInvalidInput
	}
	if err := upsertSubscription(ctx, r.db, rec); err != nil {
		return err
	}
	r.log.Debugw("Subscription upserted", "externalSubscriptionID", rec.ExternalSubscriptionID, "status", rec.Status)
	return nil
}

// UpsertPayment inserts or updates on payment_intent_id
func (r *BillingRepository) UpsertPayment(ctx context.Context, rec *domain.PaymentRecord) error {
	if rec == nil || rec.PaymentIntentID == "" {
		return domain.ErrInvalidInput
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal payment metadata: %w", err)
	}

	query := `
		INSERT INTO payments (
			id, payment_intent_id, external_customer_id, user_id, amount, currency,
			status, payment_type, customer_email, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (payment_intent_id) DO UPDATE SET
			external_customer_id = EXCLUDED.external_customer_id,
			user_id              = COALESCE(EXCLUDED.user_id, payments.user_id),
			amount               = EXCLUDED.amount,
			currency             = EXCLUDED.currency,
			status               = EXCLUDED.status,
			payment_type         = EXCLUDED.payment_type,
			customer_email       = EXCLUDED.customer_email,
			metadata             = EXCLUDED.metadata,
			updated_at           = now()
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		rec.ID,
		rec.PaymentIntentID,
		rec.ExternalCustomerID,
		rec.UserID,
		rec.Amount,
		rec.Currency,
		rec.Status,
		string(rec.PaymentType),
		rec.CustomerEmail,
		string(metadataJSON),
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment %s: %w", rec.PaymentIntentID, err)
	}
	return nil
}

// GetSubscription returns the row with the external key
func (r *BillingRepository) GetSubscription(ctx context.Context, externalSubscriptionID string) (*domain.SubscriptionRecord, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_subscription_id = $1`

	rec, err := scanSubscription(r.db.QueryRow(ctx, query, externalSubscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("subscription", externalSubscriptionID)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return rec, nil
}

// ListUserSubscriptions returns the user's rows, most recently updated first
func (r *BillingRepository) ListUserSubscriptions(ctx context.Context, userID string) ([]domain.SubscriptionRecord, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SubscriptionRecord, 0)
	for rows.Next() {
		rec, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return out, nil
}

// FindActiveLocalGrant picks the best active admin or promo grant in SQL,
// in the same order as domain.BetterGrant
func (r *BillingRepository) FindActiveLocalGrant(ctx context.Context, userID string, now time.Time) (*domain.SubscriptionRecord, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		  AND grant_source IN ($2, $3)
		  AND status = $4
		  AND (current_period_end IS NULL OR current_period_end > $5)
		ORDER BY
			CASE plan_type WHEN 'lifetime' THEN 2 WHEN 'premium' THEN 1 ELSE 0 END DESC,
			current_period_end DESC NULLS FIRST,
			updated_at DESC
		LIMIT 1`

	rec, err := scanSubscription(r.db.QueryRow(ctx, query,
		userID,
		string(domain.GrantSourceAdmin),
		string(domain.GrantSourcePromo),
		domain.SubscriptionStatusActive,
		now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("local grant", userID)
		}
		return nil, fmt.Errorf("failed to find local grant: %w", err)
	}
	return rec, nil
}

// ApplyPromoGrant inserts the redemption anchor first, so a concurrent
// redemption of the same pair blocks on the unique index and then fails.
// It then reserves a use with a conditional update, which serializes
// redemptions of the code by different users on its row lock, and merges
// the grant into the locked existing row.
func (r *BillingRepository) ApplyPromoGrant(ctx context.Context, redemption domain.Redemption, grant *domain.SubscriptionRecord) (*domain.SubscriptionRecord, error) {
	if grant == nil || grant.ExternalSubscriptionID == "" {
		return nil, domain.ErrInvalidInput
	}
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}

	var merged *domain.SubscriptionRecord
	err := WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO code_redemptions (id, code, user_id, redeemed_at) VALUES ($1, $2, $3, $4)`,
			redemption.ID, redemption.Code, redemption.UserID, redemption.RedeemedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDuplicateError("redemption", "code,user_id", redemption.Code+"|"+redemption.UserID)
			}
			return fmt.Errorf("failed to insert redemption: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE promo_codes SET current_uses = current_uses + 1, updated_at = now()
			 WHERE code = $1 AND current_uses < max_uses`,
			redemption.Code,
		)
		if err != nil {
			return fmt.Errorf("failed to reserve code use: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", domain.ErrUsesExhausted, redemption.Code)
		}

		existing, err := scanSubscription(tx.QueryRow(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_id = $1 FOR UPDATE`,
			grant.ExternalSubscriptionID,
		))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to lock grant row: %w", err)
		}

		merged = domain.MergeGrant(existing, grant)
		return upsertSubscription(ctx, tx, merged)
	})
	if err != nil {
		return nil, err
	}

	r.log.Infow("Promo grant applied", "code", redemption.Code, "userID", redemption.UserID, "plan", string(merged.PlanType))
	return merged, nil
}

// CountRecords reports row counts of the billing tables
func (r *BillingRepository) CountRecords(ctx context.Context) (domain.BillingCounts, error) {
	var counts domain.BillingCounts
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM subscriptions),
			(SELECT count(*) FROM payments),
			(SELECT count(*) FROM code_redemptions)`,
	).Scan(&counts.Subscriptions, &counts.Payments, &counts.Redemptions)
	if err != nil {
		return domain.BillingCounts{}, fmt.Errorf("failed to count billing records: %w", err)
	}
	return counts, nil
}
