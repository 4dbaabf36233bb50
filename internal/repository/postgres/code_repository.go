package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CodeRepository reads and maintains promo codes
type CodeRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewCodeRepository creates a CodeRepository
func NewCodeRepository(db *pgxpool.Pool, log *logger.Logger) *CodeRepository {
	return &CodeRepository{db: db, log: log}
}

// GetCode returns the code record or a not-found error
func (r *CodeRepository) GetCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	query := `
		SELECT code, active, plan_type, duration_days, max_uses, current_uses, expires_at, created_at, updated_at
		FROM promo_codes
		WHERE code = $1`

	var (
		c        domain.PromoCode
		planType string
	)
	err := r.db.QueryRow(ctx, query, code).Scan(
		&c.Code,
		&c.Active,
		&planType,
		&c.DurationDays,
		&c.MaxUses,
		&c.CurrentUses,
		&c.ExpiresAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("promo code", code)
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	c.PlanType = domain.PlanType(planType)
	return &c, nil
}

// HasRedemption checks the (code, user) anchor
func (r *CodeRepository) HasRedemption(ctx context.Context, code, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM code_redemptions WHERE code = $1 AND user_id = $2)`,
		code, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check redemption: %w", err)
	}
	return exists, nil
}

// SaveCode creates the code or replaces its settings. The use counter of an
// existing code is kept.
func (r *CodeRepository) SaveCode(ctx context.Context, code domain.PromoCode) error {
	code.Code = domain.NormalizeCode(code.Code)
	if code.Code == "" {
		return domain.ErrInvalidInput
	}

	query := `
		INSERT INTO promo_codes (code, active, plan_type, duration_days, max_uses, current_uses, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (code) DO UPDATE SET
			active        = EXCLUDED.active,
			plan_type     = EXCLUDED.plan_type,
			duration_days = EXCLUDED.duration_days,
			max_uses      = EXCLUDED.max_uses,
			expires_at    = EXCLUDED.expires_at,
			updated_at    = now()`

	_, err := r.db.Exec(ctx, query,
		code.Code,
		code.Active,
		string(code.PlanType),
		code.DurationDays,
		code.MaxUses,
		code.CurrentUses,
		code.ExpiresAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: max_uses below current uses of %s", domain.ErrInvalidInput, code.Code)
		}
		return fmt.Errorf("failed to save promo code: %w", err)
	}
	r.log.Infow("Promo code saved", "code", code.Code, "plan", string(code.PlanType))
	return nil
}
