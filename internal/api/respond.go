package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/geo"
	"github.com/youchews/youchews-api/internal/model"
	"github.com/youchews/youchews-api/internal/preference"
	"github.com/youchews/youchews-api/internal/scorer"
)

const (
	msgRecommended     = "Recommendations generated successfully"
	msgNoneNearby      = "No restaurants found nearby"
	msgPrefsUpdated    = "User preferences updated successfully"
	msgProfileNotFound = "User not found"
	msgInternal        = "Internal server error"
	msgIDMismatch      = "Unauthorized, id does not match token"
)

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type recommendationsBody struct {
	Status          int                      `json:"status"`
	Message         string                   `json:"message"`
	Recommendations []model.Recommendation   `json:"data"`
	Meta            model.RecommendationMeta `json:"metadata"`
}

type preferencesBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Status: status, Message: msg})
}

// writeServiceError maps a pipeline error to its HTTP status. Scorer
// diagnostics stay in the log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, geo.ErrInvalidLocation),
		errors.Is(err, geo.ErrInvalidSearch),
		errors.Is(err, preference.ErrMissingField),
		errors.Is(err, preference.ErrInvalidField):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, preference.ErrProfileNotFound):
		return http.StatusNotFound, msgProfileNotFound
	case errors.Is(err, scorer.ErrTimeout):
		return http.StatusGatewayTimeout, "Recommendation engine timed out"
	case errors.Is(err, scorer.ErrUnavailable):
		return http.StatusServiceUnavailable, "Recommendation engine unavailable, try again later"
	}
	if kind := scorer.KindOf(err); kind != "" {
		return http.StatusBadGateway, fmt.Sprintf("Recommendation engine failed: %s", kind)
	}
	return http.StatusInternalServerError, msgInternal
}
