package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the JSON body of every error response
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// RenderJSON writes v as JSON with the given status
func RenderJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// RenderError renders a standard error response
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	RenderErrorWithCode(w, statusCode, err, "")
}

// RenderErrorWithCode renders an error with a specific error code. Request
// validation errors are rendered field by field.
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		RenderValidationError(w, verrs)
		return
	}

	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}

	RenderJSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    code,
	})
}

// RenderValidationError renders request validation errors as a 422
func RenderValidationError(w http.ResponseWriter, verrs validator.ValidationErrors) {
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := fieldName(fe)
		fields[name] = append(fields[name], validationMessage(fe))
	}

	RenderJSON(w, http.StatusUnprocessableEntity, &ErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  fields,
	})
}

// fieldName drops the top-level struct from the namespace, e.g.
// "batchRequest.items[3].op" becomes "items[3].op"
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must have at most %s entries", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, errors.New(message))
}

// RenderUnauthorized renders a 401 Unauthorized error
func RenderUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="pathsec"`)
	RenderError(w, http.StatusUnauthorized, errors.New(message))
}

// RenderForbidden renders a 403 Forbidden error
func RenderForbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Access denied"
	}
	RenderError(w, http.StatusForbidden, errors.New(message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, errors.New(message))
}

// RenderMethodNotAllowed renders a 405 Method Not Allowed error
func RenderMethodNotAllowed(w http.ResponseWriter) {
	RenderError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// RenderRequestTooLarge renders a 413 for bodies over limit bytes
func RenderRequestTooLarge(w http.ResponseWriter, limit int64) {
	RenderError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", limit))
}

// RenderTooManyRequests renders a 429 Too Many Requests error
func RenderTooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	RenderError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
}

// RenderInternalError renders a 500 without exposing err to the client
func RenderInternalError(w http.ResponseWriter) {
	RenderError(w, http.StatusInternalServerError, errors.New("An unexpected error occurred"))
}

// RenderServiceUnavailable renders a 503 Service Unavailable error
func RenderServiceUnavailable(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	RenderError(w, http.StatusServiceUnavailable, errors.New(message))
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
