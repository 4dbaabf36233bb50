package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	localGrantKeyPrefix = "entitlement:local_grant:"

	defaultCacheTTL = time.Minute
)

// RedisCacheRepository caches local grants in Redis
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", addr)
	return client, nil
}

// NewRedisCacheRepository wraps an existing client. A non-positive ttl falls
// back to one minute.
func NewRedisCacheRepository(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCacheRepository{client: client, ttl: ttl, log: log}
}

// Close closes the Redis connection
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheLocalGrant stores the user's best local grant
func (r *RedisCacheRepository) CacheLocalGrant(ctx context.Context, userID string, grant *domain.SubscriptionRecord) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal local grant: %w", err)
	}

	if err := r.client.Set(ctx, localGrantKeyPrefix+userID, data, r.ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache local grant in Redis", "error", err, "userID", userID)
		return fmt.Errorf("failed to cache local grant: %w", err)
	}

	r.log.Debugw("Local grant cached", "userID", userID)
	return nil
}

// GetCachedLocalGrant returns nil, nil on a cache miss
func (r *RedisCacheRepository) GetCachedLocalGrant(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	data, err := r.client.Get(ctx, localGrantKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get local grant from cache: %w", err)
	}

	var grant domain.SubscriptionRecord
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached local grant: %w", err)
	}
	return &grant, nil
}

// InvalidateLocalGrant drops the cached grant of the user
func (r *RedisCacheRepository) InvalidateLocalGrant(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, localGrantKeyPrefix+userID).Err(); err != nil {
		r.log.Errorw("Failed to invalidate local grant cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate local grant cache: %w", err)
	}

	r.log.Debugw("Local grant cache invalidated", "userID", userID)
	return nil
}
