package app

import (
	"errors"
	"time"

	"github.com/Dhoini/entitlement-service/internal/config"
	"github.com/Dhoini/entitlement-service/internal/http/handlers"
	"github.com/Dhoini/entitlement-service/internal/middleware"
	"github.com/Dhoini/entitlement-service/internal/service"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Services groups the billing services the HTTP layer depends on
type Services struct {
	Entitlements service.EntitlementService
	Checkout     service.CheckoutService
	Redemption   service.RedemptionService
	Sync         service.SyncService
	Grants       service.AdminGrantService
}

// App is the container for every component of the application
type App struct {
	Config           *config.Config
	Registry         *prometheus.Registry
	Services         Services
	BillingHandler   *handlers.BillingHandler
	AdminHandler     *handlers.AdminHandler
	WebhookHandler   *handlers.WebhookHandler
	AuthMiddleware   *middleware.JWTMiddleware
	LoggerMiddleware gin.HandlerFunc
	Logger           *logger.Logger

	closers []func() error
}

// NewApp builds the HTTP layer on top of already constructed services
func NewApp(cfg *config.Config, registry *prometheus.Registry, services Services, log *logger.Logger) (*App, error) {
	webhookHandler, err := handlers.NewWebhookHandler(cfg.Stripe.WebhookSecret, services.Sync, log)
	if err != nil {
		return nil, err
	}

	validator := &middleware.DefaultTokenValidator{
		Secret: []byte(cfg.Auth.JWTSecret),
		Leeway: 30 * time.Second,
	}

	return &App{
		Config:           cfg,
		Registry:         registry,
		Services:         services,
		BillingHandler:   handlers.NewBillingHandler(services.Entitlements, services.Checkout, services.Redemption, log),
		AdminHandler:     handlers.NewAdminHandler(services.Sync, services.Grants, services.Redemption, log),
		WebhookHandler:   webhookHandler,
		AuthMiddleware:   middleware.NewJWTMiddleware(log, validator),
		LoggerMiddleware: middleware.RequestLogger(log),
		Logger:           log,
	}, nil
}

// onClose registers a cleanup step. Steps run in reverse order.
func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every resource opened by Build
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
