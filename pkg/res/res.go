package res

import (
	"encoding/json"
	"net/http"

	"github.com/Dhoini/entitlement-service/pkg/logger"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`                // user-readable message
	Code      string `json:"code,omitempty"`       // machine-readable cause, e.g. session_expired
	Details   any    `json:"details,omitempty"`    // validation errors and similar
	DebugInfo string `json:"debug_info,omitempty"` // development only
}

// Machine-readable error codes
const (
	CodeUnauthenticated = "unauthenticated"
	CodeSessionExpired  = "session_expired"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeInvalidRequest  = "invalid_request"
	CodeProcessor       = "processor_unavailable"
	CodeInternal        = "internal_error"
)

// JsonResponse writes data as JSON with the given status
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse writes an error reply and logs it
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *logger.Logger) {
	JsonResponse(w, errResponse, status)
	if status >= http.StatusInternalServerError {
		log.Errorw("Error response", "status", status, "code", errResponse.Code, "error", errResponse.Error)
		return
	}
	log.Debugw("Error response", "status", status, "code", errResponse.Code, "error", errResponse.Error)
}
