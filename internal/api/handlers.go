package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/auth"
	"github.com/youchews/youchews-api/internal/model"
	"github.com/youchews/youchews-api/internal/recommend"
)

const maxBodyBytes = 1 << 20

type recommendRequest struct {
	ID       *int64   `json:"id" validate:"omitempty,gt=0"`
	Lat      *float64 `json:"lat" validate:"required,latitude"`
	Lon      *float64 `json:"lon" validate:"required,longitude"`
	RadiusKM float64  `json:"radius_km" validate:"gte=0"`
	Count    int      `json:"count" validate:"gte=0"`
}

type preferencesRequest struct {
	ID   *int64                `json:"id" validate:"omitempty,gt=0"`
	Pref []model.FeedbackEvent `json:"pref" validate:"required"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecommendationsGet(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authorize(w, r, s.cfg.RecommendRole)
	if !ok {
		return
	}
	q := r.URL.Query()
	var req recommendRequest
	var err error
	if req.ID, err = optionalInt(q.Get("id")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter: id")
		return
	}
	if req.Lat, err = optionalFloat(q.Get("lat")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter: lat")
		return
	}
	if req.Lon, err = optionalFloat(q.Get("lon")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter: lon")
		return
	}
	if v := q.Get("radius_km"); v != "" {
		if req.RadiusKM, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid query parameter: radius_km")
			return
		}
	}
	if v := q.Get("count"); v != "" {
		if req.Count, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid query parameter: count")
			return
		}
	}
	s.recommend(w, r, user, req)
}

func (s *Server) handleRecommendationsPost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authorize(w, r, s.cfg.RecommendRole)
	if !ok {
		return
	}
	var req recommendRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.recommend(w, r, user, req)
}

// recommend runs the pipeline for an authorized user.
func (s *Server) recommend(w http.ResponseWriter, r *http.Request, user *auth.User, req recommendRequest) {
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	userID, ok := resolveUserID(w, user, req.ID)
	if !ok {
		return
	}

	res, err := s.svc.Recommend(r.Context(), recommend.Query{
		UserID:   userID,
		Lat:      req.Lat,
		Lon:      req.Lon,
		RadiusKM: req.RadiusKM,
		Count:    req.Count,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	msg := msgRecommended
	if len(res.Recommendations) == 0 {
		msg = msgNoneNearby
	}
	writeJSON(w, http.StatusOK, recommendationsBody{
		Status:          http.StatusOK,
		Message:         msg,
		Recommendations: res.Recommendations,
		Meta:            res.Meta,
	})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authorize(w, r, s.cfg.FeedbackRole)
	if !ok {
		return
	}
	var req preferencesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	userID, ok := resolveUserID(w, user, req.ID)
	if !ok {
		return
	}

	out, err := s.svc.LogPreferences(r.Context(), userID, req.Pref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesBody{
		Status:  http.StatusOK,
		Message: msgPrefsUpdated,
		Applied: out.Applied,
		Skipped: out.Skipped,
	})
}

// authorize checks the bearer token. Failed decisions are written verbatim.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, role string) (*auth.User, bool) {
	d := s.authz.Authorize(r.Context(), role, bearerToken(r))
	if !d.OK() {
		writeJSON(w, d.Status, errorBody{Status: d.Status, Message: d.Message})
		return nil, false
	}
	return d.User, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// bearerToken returns the second word of the Authorization header.
func bearerToken(r *http.Request) string {
	_, token, _ := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	return strings.TrimSpace(token)
}

// resolveUserID defaults to the token's user. A different explicit id is
// rejected.
func resolveUserID(w http.ResponseWriter, user *auth.User, id *int64) (int64, bool) {
	if id == nil {
		return user.ID, true
	}
	if *id != user.ID {
		writeError(w, http.StatusForbidden, msgIDMismatch)
		return 0, false
	}
	return *id, true
}

func optionalInt(v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optionalFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
