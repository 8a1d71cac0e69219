// Package recommend runs the recommendation pipeline: geo selection,
// scoring, hydration, and the feedback loop that updates preference
// profiles.
package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/youchews/youchews-api/internal/geo"
	"github.com/youchews/youchews-api/internal/hydrate"
	"github.com/youchews/youchews-api/internal/metrics"
	"github.com/youchews/youchews-api/internal/model"
	"github.com/youchews/youchews-api/internal/preference"
	"github.com/youchews/youchews-api/internal/scorer"
	"github.com/youchews/youchews-api/internal/store"
)

// Config tunes the pipeline.
type Config struct {
	RadiusKM       float64
	MaxRadiusKM    float64
	CandidateLimit int
	Count          int
	MaxCount       int
	ScorerTimeout  time.Duration
	// ScorerDriver labels scorer metrics.
	ScorerDriver string
}

// Query is one recommendation request. Zero RadiusKM and Count select the
// configured defaults.
type Query struct {
	UserID   int64
	Lat      *float64
	Lon      *float64
	RadiusKM float64
	Count    int
}

// Result is the ranked recommendations plus how they were produced.
type Result struct {
	Recommendations []model.Recommendation   `json:"data"`
	Meta            model.RecommendationMeta `json:"metadata"`
}

// Service wires the pipeline components to the stores.
type Service struct {
	filter   *geo.Filter
	profiles store.Profiles
	scorer   scorer.Scorer
	hydrator *hydrate.Hydrator
	cfg      Config
}

// NewService creates a Service.
func NewService(catalog geo.Catalog, profiles store.Profiles, sc scorer.Scorer, h *hydrate.Hydrator, cfg Config) *Service {
	return &Service{
		filter:   geo.NewFilter(catalog),
		profiles: profiles,
		scorer:   sc,
		hydrator: h,
		cfg:      cfg,
	}
}

// Recommend returns up to q.Count restaurants near the query point, best
// first. No nearby restaurants is a successful, empty result and the scorer
// is not called. Scorer failures are returned as *scorer.Error.
func (s *Service) Recommend(ctx context.Context, q Query) (*Result, error) {
	origin, err := geo.NewPoint(q.Lat, q.Lon)
	if err != nil {
		return nil, err
	}
	radius, count, err := s.resolve(q)
	if err != nil {
		return nil, err
	}

	var (
		candidates model.CandidateSet
		profile    *model.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		set, err := s.filter.SelectNearby(gctx, origin, radius, s.cfg.CandidateLimit)
		if err != nil {
			return err
		}
		candidates = set
		return nil
	})
	g.Go(func() error {
		p, err := s.profiles.GetProfile(gctx, q.UserID)
		if err != nil {
			return eris.Wrapf(err, "recommend: load profile %d", q.UserID)
		}
		profile = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, eris.Wrapf(preference.ErrProfileNotFound, "user %d", q.UserID)
	}

	metrics.RecordCandidates(len(candidates))
	result := &Result{
		Recommendations: []model.Recommendation{},
		Meta: model.RecommendationMeta{
			UserLocation:         model.Location{Lat: origin.Lat, Lon: origin.Lon},
			SearchRadiusKM:       radius,
			CandidatesConsidered: len(candidates),
		},
	}
	if len(candidates) == 0 {
		return result, nil
	}

	ranked, err := s.score(ctx, scorer.Request{
		CandidateIDs: candidates.IDs(),
		UserID:       q.UserID,
		Count:        count,
	})
	if err != nil {
		return nil, err
	}

	recs := s.hydrator.Hydrate(candidates, ranked)
	if len(recs) > count {
		recs = recs[:count]
	}
	result.Recommendations = recs
	result.Meta.RecommendationsReturned = len(recs)

	zap.L().Info("recommend: served",
		zap.Int64("user_id", q.UserID),
		zap.Int("candidates", len(candidates)),
		zap.Int("ranked", len(ranked)),
		zap.Int("returned", len(recs)),
	)
	return result, nil
}

func (s *Service) score(ctx context.Context, req scorer.Request) ([]int64, error) {
	start := time.Now()
	ranked, err := s.scorer.Score(ctx, req, s.cfg.ScorerTimeout)

	outcome := string(scorer.KindOf(err))
	if err != nil && outcome == "" {
		outcome = "error"
	}
	metrics.RecordScorerCall(s.cfg.ScorerDriver, outcome, time.Since(start))

	if err != nil {
		zap.L().Error("recommend: scorer failed",
			zap.Int64("user_id", req.UserID),
			zap.Int("candidates", len(req.CandidateIDs)),
			zap.String("kind", outcome),
			zap.Error(err),
		)
		return nil, err
	}
	return ranked, nil
}

// resolve applies defaults and bounds to the radius and count.
func (s *Service) resolve(q Query) (float64, int, error) {
	radius := q.RadiusKM
	if radius == 0 {
		radius = s.cfg.RadiusKM
	}
	if radius <= 0 || (s.cfg.MaxRadiusKM > 0 && radius > s.cfg.MaxRadiusKM) {
		return 0, 0, eris.Wrapf(geo.ErrInvalidSearch, "radius_km must be in (0, %v], got %v", s.cfg.MaxRadiusKM, radius)
	}

	count := q.Count
	if count == 0 {
		count = s.cfg.Count
	}
	if count <= 0 || (s.cfg.MaxCount > 0 && count > s.cfg.MaxCount) {
		return 0, 0, eris.Wrapf(geo.ErrInvalidSearch, "count must be in [1, %d], got %d", s.cfg.MaxCount, count)
	}
	return radius, count, nil
}

// LogPreferences merges feedback events into the user's profile and saves
// it. The read and write are not atomic; concurrent feedback for one user
// can lose an update.
func (s *Service) LogPreferences(ctx context.Context, userID int64, events []model.FeedbackEvent) (preference.Outcome, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return preference.Outcome{}, eris.Wrapf(err, "recommend: load profile %d", userID)
	}
	if profile == nil {
		return preference.Outcome{}, eris.Wrapf(preference.ErrProfileNotFound, "user %d", userID)
	}

	out, err := preference.ApplyFeedback(profile, events)
	if err != nil {
		return preference.Outcome{}, err
	}

	if out.Applied > 0 {
		err := s.profiles.SaveProfile(ctx, &model.Profile{UserID: userID, Preferences: out.Preferences})
		if errors.Is(err, store.ErrNotFound) {
			return preference.Outcome{}, eris.Wrapf(preference.ErrProfileNotFound, "user %d", userID)
		}
		if err != nil {
			return preference.Outcome{}, eris.Wrapf(err, "recommend: save profile %d", userID)
		}
	}

	metrics.RecordFeedback(out.Applied, out.Skipped)
	zap.L().Info("recommend: preferences logged",
		zap.Int64("user_id", userID),
		zap.Int("applied", out.Applied),
		zap.Int("skipped", out.Skipped),
	)
	return out, nil
}
