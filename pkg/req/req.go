package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/Dhoini/entitlement-service/pkg/res"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Decode reads a JSON body into T. An empty body yields the zero value.
func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	if body == nil {
		return payload, nil
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return payload, err
	}
	return payload, nil
}

// IsValid runs the struct tags of payload through the validator
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// FieldErrors flattens validator errors into field -> failed rule
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// HandleBody decodes and validates the request body. On failure the error
// reply is already written.
func HandleBody[T any](w http.ResponseWriter, r *http.Request, log *logger.Logger) (*T, error) {
	body, err := Decode[T](r.Body)
	if err != nil {
		log.Warnw("Failed to decode request body", "path", r.URL.Path, "error", err)
		res.JsonErrorResponse(w, res.ErrorResponse{
			Error: "Malformed request body",
			Code:  res.CodeInvalidRequest,
		}, http.StatusBadRequest, log)
		return nil, err
	}

	if err := IsValid(body); err != nil {
		log.Warnw("Request body failed validation", "path", r.URL.Path, "error", err)
		res.JsonErrorResponse(w, res.ErrorResponse{
			Error:   "Invalid request data",
			Code:    res.CodeInvalidRequest,
			Details: FieldErrors(err),
		}, http.StatusUnprocessableEntity, log)
		return nil, err
	}
	return &body, nil
}
