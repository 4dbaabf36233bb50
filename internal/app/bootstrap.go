package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/entitlement-service/internal/catalog"
	"github.com/Dhoini/entitlement-service/internal/config"
	"github.com/Dhoini/entitlement-service/internal/db"
	"github.com/Dhoini/entitlement-service/internal/kafka"
	"github.com/Dhoini/entitlement-service/internal/kafka/producer"
	"github.com/Dhoini/entitlement-service/internal/metrics"
	"github.com/Dhoini/entitlement-service/internal/repository"
	"github.com/Dhoini/entitlement-service/internal/repository/postgres"
	"github.com/Dhoini/entitlement-service/internal/service"
	"github.com/Dhoini/entitlement-service/internal/stripe"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

const systemMetricsInterval = 15 * time.Second

// stores bundles the three views of the local store
type stores struct {
	billing repository.BillingStore
	codes   repository.CodeStore
	users   repository.UserDirectory
	counts  metrics.CountSource
}

// Build wires storage, the processor client, the event publisher and the
// services according to cfg. The returned App must be closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry, log)

	st, storeClosers, err := openStores(ctx, cfg, log)
	closers = append(closers, storeClosers...)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			// the cache is optional, the store answers on its own
			log.Warnw("Redis unavailable, local grants are read uncached", "error", err)
		} else {
			cache := repository.NewRedisCacheRepository(redisClient, cfg.Redis.GrantTTL, log)
			closers = append(closers, cache.Close)
			st.billing = repository.NewCachedBillingStore(st.billing, cache, log)
		}
	}

	publisher, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	closers = append(closers, publisher.Close)

	systemMetrics := metrics.NewSystemMetrics(registry, st.counts, log)
	systemMetrics.StartRecording(systemMetricsInterval)
	closers = append(closers, func() error {
		systemMetrics.Stop()
		return nil
	})

	retrier := stripe.NewRetrier(stripe.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Step:        cfg.Retry.Step,
		MaxInterval: cfg.Retry.MaxInterval,
	}, billingMetrics.IncProcessorRetry, log)
	processor := stripe.NewClient(stripe.Config{APIKey: cfg.Stripe.APIKey, APIURL: cfg.Stripe.APIURL}, retrier, log)

	cat := catalog.New(cfg.Catalog.PremiumProductID, cfg.Catalog.LifetimeProductID)
	urls := service.CheckoutURLs{SuccessURL: cfg.Checkout.SuccessURL, CancelURL: cfg.Checkout.CancelURL}

	services := Services{
		Entitlements: service.NewEntitlementService(st.billing, processor, cat, billingMetrics, log),
		Checkout:     service.NewCheckoutService(processor, cat, urls, billingMetrics, log),
		Redemption:   service.NewRedemptionService(st.billing, st.codes, publisher, billingMetrics, log),
		Sync:         service.NewSyncService(st.billing, st.users, processor, cat, publisher, billingMetrics, cfg.Sync.Timeout, log),
		Grants:       service.NewAdminGrantService(st.billing, publisher, billingMetrics, log),
	}

	a, err = NewApp(cfg, registry, services, log)
	if err != nil {
		return nil, err
	}
	for _, c := range closers {
		a.onClose(c)
	}
	return a, nil
}

// openStores returns the store selected by storage.driver
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (stores, []func() error, error) {
	switch cfg.Storage.Driver {
	case "memory":
		mem := repository.NewInMemoryStore(log)
		log.Warnw("Using in-memory billing store, data is lost on restart")
		return stores{billing: mem, codes: mem, users: mem, counts: mem}, nil, nil

	case "postgres":
		var closers []func() error

		dbClient, err := db.NewDBClient(ctx, cfg.Database.DSN, log)
		if err != nil {
			return stores{}, closers, err
		}
		closers = append(closers, dbClient.Close)

		if cfg.Database.Migrate {
			if err := dbClient.Migrate(ctx); err != nil {
				return stores{}, closers, err
			}
		}

		pool, err := postgres.NewConnection(ctx, cfg.Database.DSN, log)
		if err != nil {
			return stores{}, closers, err
		}
		closers = append(closers, func() error {
			pool.Close()
			return nil
		})

		return stores{
			billing: postgres.NewBillingRepository(pool, log),
			codes:   postgres.NewCodeRepository(pool, log),
			users:   postgres.NewUserRepository(pool, log),
			counts:  dbClient,
		}, closers, nil
	}
	return stores{}, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// openPublisher returns the event publisher selected by kafka.driver. A
// broker that cannot be reached degrades to the no-op publisher since events
// are never part of a billing decision.
func openPublisher(ctx context.Context, cfg *config.Config, log *logger.Logger) (kafka.Publisher, error) {
	if cfg.Kafka.Driver == "none" || len(cfg.Kafka.Brokers) == 0 {
		log.Infow("Event publishing disabled")
		return kafka.NoopPublisher{}, nil
	}

	if err := kafka.EnsureKafkaTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log); err != nil {
		log.Warnw("Failed to ensure Kafka topics", "error", err)
	}

	var sink kafka.Sink
	switch cfg.Kafka.Driver {
	case "kafka-go":
		w, err := kafka.NewWriterSink(cfg.Kafka.Brokers, log)
		if err != nil {
			log.Errorw("Failed to create Kafka writer, events are dropped", "error", err)
			return kafka.NoopPublisher{}, nil
		}
		sink = w
	case "sarama":
		saramaCfg := kafka.NewSaramaConfig(kafka.NewConfig(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix))
		p, err := producer.Dial(cfg.Kafka.Brokers, saramaCfg, log)
		if err != nil {
			log.Errorw("Failed to create Kafka producer, events are dropped", "error", err)
			return kafka.NoopPublisher{}, nil
		}
		sink = p
	default:
		return nil, fmt.Errorf("unknown kafka driver %q", cfg.Kafka.Driver)
	}

	return kafka.NewPublisher(sink, cfg.Kafka.TopicPrefix, log), nil
}
