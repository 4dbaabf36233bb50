package handlers

import (
	"net/http"

	"github.com/Dhoini/entitlement-service/internal/middleware"
	"github.com/Dhoini/entitlement-service/internal/service"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/Dhoini/entitlement-service/pkg/req"
	"github.com/Dhoini/entitlement-service/pkg/res"
	"github.com/gin-gonic/gin"
)

// BillingHandler serves the user-facing entitlement, checkout and code routes
type BillingHandler struct {
	entitlements service.EntitlementService
	checkout     service.CheckoutService
	redemption   service.RedemptionService
	log          *logger.Logger
}

func NewBillingHandler(
	entitlements service.EntitlementService,
	checkout service.CheckoutService,
	redemption service.RedemptionService,
	log *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		entitlements: entitlements,
		checkout:     checkout,
		redemption:   redemption,
		log:          log,
	}
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

type RedeemCodeRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// GetEntitlement handles GET /entitlement
func (h *BillingHandler) GetEntitlement(c *gin.Context) {
	verdict, err := h.entitlements.Resolve(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	res.JsonResponse(c.Writer, verdict, http.StatusOK)
}

// CreateCheckout handles POST /checkout
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	body, err := req.HandleBody[service.CheckoutRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	url, err := h.checkout.CreateSession(c.Request.Context(), middleware.CallerFrom(c), *body)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	res.JsonResponse(c.Writer, CheckoutResponse{URL: url}, http.StatusCreated)
}

// RedeemCode handles POST /codes/redeem
func (h *BillingHandler) RedeemCode(c *gin.Context) {
	body, err := req.HandleBody[RedeemCodeRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	result, err := h.redemption.Redeem(c.Request.Context(), middleware.CallerFrom(c), body.Code)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusOK)
}
