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

// UserRepository reads the identity directory
type UserRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewUserRepository creates a UserRepository
func NewUserRepository(db *pgxpool.Pool, log *logger.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

// FindUserIDByEmail uses the lower(email) unique index
func (r *UserRepository) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE lower(email) = lower($1)`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.NewNotFoundError("user", email)
		}
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	return id, nil
}
