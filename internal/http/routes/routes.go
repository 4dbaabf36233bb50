package routes

import (
	"net/http"

	"github.com/Dhoini/entitlement-service/internal/app"
	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every route of the service on router
func SetupRoutes(router *gin.Engine, app *app.App, log *logger.Logger) {
	router.Use(app.LoggerMiddleware)
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		// public
		api.POST("/webhooks/stripe", app.WebhookHandler.HandleStripeWebhook)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		auth := api.Group("")
		auth.Use(app.AuthMiddleware.RequireAuth())

		auth.GET("/entitlement", app.BillingHandler.GetEntitlement)
		auth.POST("/checkout", app.BillingHandler.CreateCheckout)
		auth.POST("/codes/redeem", app.BillingHandler.RedeemCode)
		auth.GET("/users/:user_id/subscriptions", app.AdminHandler.ListUserSubscriptions)

		admin := auth.Group("/admin")
		{
			admin.PUT("/codes", app.AuthMiddleware.RequireRole(domain.RoleAdmin, domain.RoleOwner), app.AdminHandler.SaveCode)

			owner := admin.Group("")
			owner.Use(app.AuthMiddleware.RequireRole(domain.RoleOwner))
			owner.POST("/billing/sync", app.AdminHandler.RunSync)
			owner.POST("/grants", app.AdminHandler.GrantAccess)
			owner.DELETE("/grants/:user_id", app.AdminHandler.RevokeAccess)
		}
	}

	log.Infow("API routes successfully configured")
}
