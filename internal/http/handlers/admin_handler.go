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

// AdminHandler serves the privileged billing routes
type AdminHandler struct {
	sync       service.SyncService
	grants     service.AdminGrantService
	redemption service.RedemptionService
	log        *logger.Logger
}

func NewAdminHandler(
	sync service.SyncService,
	grants service.AdminGrantService,
	redemption service.RedemptionService,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		sync:       sync,
		grants:     grants,
		redemption: redemption,
		log:        log,
	}
}

// RunSync handles POST /admin/billing/sync. A run cut short still reports
// what it synced in the error details.
func (h *AdminHandler) RunSync(c *gin.Context) {
	result, err := h.sync.RunSync(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		writeError(c, h.log, err, result)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// GrantAccess handles POST /admin/grants
func (h *AdminHandler) GrantAccess(c *gin.Context) {
	body, err := req.HandleBody[service.GrantRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	grant, err := h.grants.Grant(c.Request.Context(), middleware.CallerFrom(c), *body)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	res.JsonResponse(c.Writer, grant, http.StatusCreated)
}

// RevokeAccess handles DELETE /admin/grants/:user_id
func (h *AdminHandler) RevokeAccess(c *gin.Context) {
	if err := h.grants.Revoke(c.Request.Context(), middleware.CallerFrom(c), c.Param("user_id")); err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveCode handles PUT /admin/codes
func (h *AdminHandler) SaveCode(c *gin.Context) {
	body, err := req.HandleBody[service.SaveCodeRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	code, err := h.redemption.SaveCode(c.Request.Context(), middleware.CallerFrom(c), *body)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	res.JsonResponse(c.Writer, code, http.StatusOK)
}

// ListUserSubscriptions handles GET /users/:user_id/subscriptions. Users may
// read their own rows; admins any user's.
func (h *AdminHandler) ListUserSubscriptions(c *gin.Context) {
	rows, err := h.grants.ListUserSubscriptions(c.Request.Context(), middleware.CallerFrom(c), c.Param("user_id"))
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	res.JsonResponse(c.Writer, rows, http.StatusOK)
}
