// Package api exposes the recommendation pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/youchews/youchews-api/internal/auth"
	"github.com/youchews/youchews-api/internal/model"
	"github.com/youchews/youchews-api/internal/preference"
	"github.com/youchews/youchews-api/internal/recommend"
)

// Recommender is the pipeline the handlers call into.
type Recommender interface {
	Recommend(ctx context.Context, q recommend.Query) (*recommend.Result, error)
	LogPreferences(ctx context.Context, userID int64, events []model.FeedbackEvent) (preference.Outcome, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the HTTP surface.
type Config struct {
	RecommendRole     string
	FeedbackRole      string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server holds the handler dependencies.
type Server struct {
	svc      Recommender
	authz    auth.Authorizer
	health   Pinger
	cfg      Config
	validate *validator.Validate
}

// NewServer creates a Server. health may be nil.
func NewServer(svc Recommender, authz auth.Authorizer, health Pinger, cfg Config) *Server {
	if cfg.RecommendRole == "" {
		cfg.RecommendRole = "user"
	}
	if cfg.FeedbackRole == "" {
		cfg.FeedbackRole = "user"
	}
	return &Server{
		svc:      svc,
		authz:    authz,
		health:   health,
		cfg:      cfg,
		validate: newValidator(),
	}
}

// Routes returns the router with all middleware installed.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(s.cfg.CORSOrigins))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))

		r.Get("/recommendations", s.handleRecommendationsGet)
		r.Post("/recommendations", s.handleRecommendationsPost)
		r.Post("/preferences", s.handlePreferences)
	})

	return r
}
