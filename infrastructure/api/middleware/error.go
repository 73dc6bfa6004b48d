package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/helixml/diffsum/domain/pipeline"
)

// JSONAPIError is one entry of a JSON:API error response.
type JSONAPIError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	ID     string `json:"id,omitempty"`
}

// JSONAPIErrorResponse wraps JSON:API errors.
type JSONAPIErrorResponse struct {
	Errors []JSONAPIError `json:"errors"`
}

// WriteError writes a JSON:API formatted error response. The status follows
// the error type; unknown errors are 500s.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status, title, detail := classify(err)
	requestID := middleware.GetReqID(r.Context())

	if logger != nil {
		logger.ErrorContext(r.Context(), "request error",
			"status", status,
			"error", err.Error(),
			"path", r.URL.Path,
		)
	}

	resp := JSONAPIErrorResponse{
		Errors: []JSONAPIError{
			{
				Status: http.StatusText(status),
				Title:  title,
				Detail: detail,
				ID:     requestID,
			},
		},
	}

	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func classify(err error) (int, string, string) {
	var apiErr *APIError
	var authErr *AuthenticationError

	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code(), "API Error", apiErr.Message()
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, "Authentication Failed", authErr.Error()
	case errors.Is(err, pipeline.ErrNoUnits):
		return http.StatusBadRequest, "Validation Error", err.Error()
	case errors.Is(err, pipeline.ErrTemplateNotFound):
		return http.StatusUnprocessableEntity, "Unknown Template", err.Error()
	case errors.Is(err, pipeline.ErrBackend):
		return http.StatusBadGateway, "Generation Failed", err.Error()
	case errors.Is(err, pipeline.ErrCancelled):
		return http.StatusServiceUnavailable, "Cancelled", err.Error()
	default:
		return http.StatusInternalServerError, "Internal Server Error", err.Error()
	}
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
