package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/Dhoini/entitlement-service/pkg/res"
	"github.com/gin-gonic/gin"
)

var redemptionStatus = map[domain.RedemptionReason]int{
	domain.ReasonCodeNotFound:     http.StatusNotFound,
	domain.ReasonCodeInactive:     http.StatusGone,
	domain.ReasonCodeExpired:      http.StatusGone,
	domain.ReasonCodeExhausted:    http.StatusGone,
	domain.ReasonAlreadyRedeemed:  http.StatusConflict,
	domain.ReasonInvalidCodeSetup: http.StatusUnprocessableEntity,
}

// errorReply maps an error of the service layer onto an HTTP status and body
func errorReply(err error) (int, res.ErrorResponse) {
	var rerr *domain.RedemptionError
	if errors.As(err, &rerr) {
		status, ok := redemptionStatus[rerr.Reason]
		if !ok {
			status = http.StatusUnprocessableEntity
		}
		return status, res.ErrorResponse{Error: rerr.Message(), Code: string(rerr.Reason)}
	}

	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized, res.ErrorResponse{Error: "Session expired, please sign in again", Code: res.CodeSessionExpired}
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, res.ErrorResponse{Error: "Authentication required", Code: res.CodeUnauthenticated}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, res.ErrorResponse{Error: "Insufficient permissions", Code: res.CodeForbidden}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, res.ErrorResponse{Error: err.Error(), Code: res.CodeInvalidRequest}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, res.ErrorResponse{Error: "Resource not found", Code: res.CodeNotFound}
	case errors.Is(err, domain.ErrTransient), errors.Is(err, domain.ErrExternalServiceUnavailable):
		return http.StatusBadGateway, res.ErrorResponse{Error: "Payment processor unavailable, try again later", Code: res.CodeProcessor}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, res.ErrorResponse{Error: "Operation timed out", Code: res.CodeProcessor}
	default:
		return http.StatusInternalServerError, res.ErrorResponse{Error: "Internal server error", Code: res.CodeInternal}
	}
}

// writeError replies with the mapped error and aborts the chain
func writeError(c *gin.Context, log *logger.Logger, err error, details any) {
	status, body := errorReply(err)
	body.Details = details
	_ = c.Error(err)
	res.JsonErrorResponse(c.Writer, body, status, log)
	c.Abort()
}
