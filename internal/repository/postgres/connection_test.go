package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestConstraintViolationCodes(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "code_redemptions_code_user_id_key"}
	check := &pgconn.PgError{Code: "23514", ConstraintName: "promo_codes_uses_within_max"}

	tests := []struct {
		name      string
		err       error
		wantUniq  bool
		wantCheck bool
	}{
		{name: "unique", err: unique, wantUniq: true},
		{name: "wrapped unique", err: fmt.Errorf("failed to insert redemption: %w", unique), wantUniq: true},
		{name: "check", err: check, wantCheck: true},
		{name: "wrapped check", err: fmt.Errorf("exec: %w", check), wantCheck: true},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}},
		{name: "plain", err: errors.New("duplicate key value")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantUniq, isUniqueViolation(tt.err))
			assert.Equal(t, tt.wantCheck, isCheckViolation(tt.err))
		})
	}
}

func TestApplyPromoGrantRejectsGrantWithoutKey(t *testing.T) {
	repo := NewBillingRepository(nil, logger.NewNop())

	_, err := repo.ApplyPromoGrant(context.Background(), domain.Redemption{Code: "WELCOME", UserID: "u1"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = repo.ApplyPromoGrant(context.Background(), domain.Redemption{Code: "WELCOME", UserID: "u1"}, &domain.SubscriptionRecord{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSaveCodeRejectsBlankCode(t *testing.T) {
	repo := NewCodeRepository(nil, logger.NewNop())

	err := repo.SaveCode(context.Background(), domain.PromoCode{Code: "   ", MaxUses: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
