package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/davidleathers/coaching-backoffice/internal/domain/errors"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Fields    map[string]string      `json:"fields,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSON(w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta:    ResponseMeta{RequestID: requestIDFrom(r.Context()), Timestamp: time.Now().UTC()},
	})
}

// writeError maps err onto the envelope. AppErrors keep their status and
// code; anything else is an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := &ErrorResponse{Code: "INTERNAL_ERROR", Message: "An internal error occurred"}
	status := http.StatusInternalServerError

	var verrs validator.ValidationErrors
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &verrs):
		status = http.StatusBadRequest
		resp = &ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed", Fields: fieldErrors(verrs)}
	case errors.As(err, &appErr):
		status = appErr.StatusCode
		resp = &ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details, Retryable: appErr.Retryable}
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	writeJSON(w, status, ResponseEnvelope{
		Success: false,
		Error:   resp,
		Meta:    ResponseMeta{RequestID: requestIDFrom(r.Context()), Timestamp: time.Now().UTC()},
	})
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			out[name] = "is required"
		default:
			out[name] = fmt.Sprintf("failed %s validation", fe.Tag())
		}
	}
	return out
}
