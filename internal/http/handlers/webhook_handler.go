package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/entitlement-service/internal/service"
	"github.com/Dhoini/entitlement-service/internal/stripe"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/Dhoini/entitlement-service/pkg/res"

	"github.com/gin-gonic/gin"
)

const (
	// Stripe payloads stay well below this
	maxRequestBodySize = int64(65536)
)

// WebhookHandler re-syncs single records when Stripe reports a change
type WebhookHandler struct {
	sync          service.SyncService
	log           *logger.Logger
	webhookSecret string
}

func NewWebhookHandler(webhookSecret string, sync service.SyncService, log *logger.Logger) (*WebhookHandler, error) {
	if webhookSecret == "" {
		log.Errorw("Stripe webhook secret is not configured")
		return nil, errors.New("stripe webhook secret is not configured")
	}
	return &WebhookHandler{
		sync:          sync,
		log:           log,
		webhookSecret: webhookSecret,
	}, nil
}

// HandleStripeWebhook handles POST /webhooks/stripe. Processing failures
// answer 5xx so that Stripe redelivers the event.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()

	if err != nil {
		h.log.Errorw("Failed to read webhook request body", "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Cannot read request body", Code: res.CodeInvalidRequest}, http.StatusBadRequest)
		c.Abort()
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		h.log.Warnw("Missing Stripe-Signature header")
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Missing Stripe-Signature header", Code: res.CodeInvalidRequest}, http.StatusBadRequest)
		c.Abort()
		return
	}

	event, err := stripe.ParseWebhook(payload, sigHeader, h.webhookSecret)
	if err != nil {
		h.log.Errorw("Webhook signature verification failed", "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Webhook signature verification failed", Code: res.CodeInvalidRequest}, http.StatusBadRequest)
		c.Abort()
		return
	}

	h.log.Infow("Received verified Stripe event", "eventID", event.ID, "eventType", event.Type)

	switch {
	case event.SubscriptionID != "":
		err = h.sync.SyncSubscription(ctx, event.SubscriptionID)
	case event.PaymentIntentID != "":
		err = h.sync.SyncPurchase(ctx, event.PaymentIntentID)
	default:
		h.log.Debugw("Ignoring Stripe event", "eventID", event.ID, "eventType", event.Type)
	}
	if err != nil {
		h.log.Errorw("Failed to process Stripe event", "eventID", event.ID, "eventType", event.Type, "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Event processing failed", Code: res.CodeInternal}, http.StatusInternalServerError)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
