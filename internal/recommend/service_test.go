package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/youchews/youchews-api/internal/geo"
	"github.com/youchews/youchews-api/internal/hydrate"
	"github.com/youchews/youchews-api/internal/model"
	"github.com/youchews/youchews-api/internal/preference"
	"github.com/youchews/youchews-api/internal/scorer"
	"github.com/youchews/youchews-api/internal/store"
)

const (
	originLat = 37.354
	originLon = -121.955
	kmPerDeg  = geo.EarthRadiusKM * 3.141592653589793 / 180
)

type fakeStore struct {
	mu       sync.Mutex
	rows     []model.Restaurant
	profiles map[int64]*model.Profile
	saved    []model.Profile
	queryErr error
	saveErr  error
}

func (f *fakeStore) QueryNearby(context.Context, *geom.Bounds) ([]model.Restaurant, error) {
	return f.rows, f.queryErr
}

func (f *fakeStore) GetProfile(_ context.Context, userID int64) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) SaveProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *p)
	f.profiles[p.UserID] = p
	return nil
}

// kmNorth places a restaurant km kilometers due north of the origin.
func kmNorth(id int64, km float64) model.Restaurant {
	return model.Restaurant{
		ID:   id,
		Name: "R",
		Info: model.RestaurantInfo{
			Lat: model.NewCoordinate(originLat + km/kmPerDeg),
			Lon: model.NewCoordinate(originLon),
		},
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows: []model.Restaurant{kmNorth(3, 15), kmNorth(2, 8), kmNorth(1, 2)},
		profiles: map[int64]*model.Profile{
			7: {UserID: 7, Preferences: []model.PreferenceEntry{{ItemID: 9, LikeLevel: 8}}},
		},
	}
}

var testConfig = Config{
	RadiusKM:       10,
	MaxRadiusKM:    100,
	CandidateLimit: 50,
	Count:          10,
	MaxCount:       50,
	ScorerTimeout:  time.Second,
	ScorerDriver:   "stub",
}

func newService(st *fakeStore, sc scorer.Scorer) *Service {
	return NewService(st, st, sc, hydrate.New(hydrate.DefaultCurve), testConfig)
}

func loc(lat, lon float64) (*float64, *float64) { return &lat, &lon }

func query(userID int64) Query {
	lat, lon := loc(originLat, originLon)
	return Query{UserID: userID, Lat: lat, Lon: lon}
}

func TestRecommend_RanksNearbyCandidates(t *testing.T) {
	st := newFakeStore()
	var got scorer.Request
	svc := newService(st, scorer.ScorerFunc(func(_ context.Context, req scorer.Request, timeout time.Duration) ([]int64, error) {
		got = req
		assert.Equal(t, time.Second, timeout)
		return []int64{2, 1}, nil
	}))

	res, err := svc.Recommend(context.Background(), query(7))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, got.CandidateIDs, "candidates within 10 km, nearest first")
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, 10, got.Count)

	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, int64(2), res.Recommendations[0].ID)
	assert.Equal(t, 1, res.Recommendations[0].Rank)
	assert.InDelta(t, 8.0, res.Recommendations[0].DistanceKM, 0.01)
	assert.Equal(t, int64(1), res.Recommendations[1].ID)
	assert.Greater(t, res.Recommendations[0].RecommendationScore, res.Recommendations[1].RecommendationScore)

	assert.Equal(t, model.Location{Lat: originLat, Lon: originLon}, res.Meta.UserLocation)
	assert.InDelta(t, 10.0, res.Meta.SearchRadiusKM, 1e-9)
	assert.Equal(t, 2, res.Meta.CandidatesConsidered)
	assert.Equal(t, 2, res.Meta.RecommendationsReturned)
}

func TestRecommend_NoCandidatesSkipsScorer(t *testing.T) {
	st := newFakeStore()
	st.rows = []model.Restaurant{kmNorth(3, 50)}
	called := false
	svc := newService(st, scorer.ScorerFunc(func(context.Context, scorer.Request, time.Duration) ([]int64, error) {
		called = true
		return nil, nil
	}))

	res, err := svc.Recommend(context.Background(), query(7))
	require.NoError(t, err)
	assert.False(t, called)
	assert.NotNil(t, res.Recommendations)
	assert.Empty(t, res.Recommendations)
	assert.Zero(t, res.Meta.CandidatesConsidered)
}

func TestRecommend_EmptyScorerOutput(t *testing.T) {
	svc := newService(newFakeStore(), scorer.ScorerFunc(func(context.Context, scorer.Request, time.Duration) ([]int64, error) {
		return []int64{}, nil
	}))

	res, err := svc.Recommend(context.Background(), query(7))
	require.NoError(t, err)
	assert.Empty(t, res.Recommendations)
	assert.Equal(t, 2, res.Meta.CandidatesConsidered)
	assert.Zero(t, res.Meta.RecommendationsReturned)
}

func TestRecommend_DropsUnknownAndTruncates(t *testing.T) {
	svc := newService(newFakeStore(), scorer.ScorerFunc(func(context.Context, scorer.Request, time.Duration) ([]int64, error) {
		return []int64{99, 1, 3, 2}, nil
	}))

	q := query(7)
	q.Count = 1
	res, err := svc.Recommend(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, int64(1), res.Recommendations[0].ID)
}

func TestRecommend_ProfileNotFound(t *testing.T) {
	svc := newService(newFakeStore(), scorer.ScorerFunc(func(context.Context, scorer.Request, time.Duration) ([]int64, error) {
		t.Fatal("scorer must not be called")
		return nil, nil
	}))

	_, err := svc.Recommend(context.Background(), query(404))
	require.Error(t, err)
	assert.True(t, errors.Is(err, preference.ErrProfileNotFound))
}

func TestRecommend_InvalidQuery(t *testing.T) {
	lat, lon := loc(originLat, originLon)
	bad := 120.0

	tests := []struct {
		name    string
		q       Query
		wantErr error
	}{
		{"missing lat", Query{UserID: 7, Lon: lon}, geo.ErrInvalidLocation},
		{"lat out of range", Query{UserID: 7, Lat: &bad, Lon: lon}, geo.ErrInvalidLocation},
		{"radius too large", Query{UserID: 7, Lat: lat, Lon: lon, RadiusKM: 500}, geo.ErrInvalidSearch},
		{"negative radius", Query{UserID: 7, Lat: lat, Lon: lon, RadiusKM: -1}, geo.ErrInvalidSearch},
		{"count too large", Query{UserID: 7, Lat: lat, Lon: lon, Count: 51}, geo.ErrInvalidSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(newFakeStore(), scorer.ScorerFunc(func(context.Context, scorer.Request, time.Duration) ([]int64, error) {
				return nil, nil
			}))
			_, err := svc.Recommend(context.Background(), tt.q)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), err.Error())
		})
	}
}

func TestRecommend_ScorerFailure(t *testing.T) {
	svc := newService(newFakeStore(), scorer.ScorerFunc(func(context.Context, scorer.Request, time.Duration) ([]int64, error) {
		return nil, &scorer.Error{Kind: scorer.KindNonZeroExit, ExitCode: 1, Detail: "Traceback: boom"}
	}))

	_, err := svc.Recommend(context.Background(), query(7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, scorer.ErrNonZeroExit))
	assert.Contains(t, err.Error(), "Traceback: boom")
}

func TestRecommend_CatalogError(t *testing.T) {
	st := newFakeStore()
	st.queryErr = eris.New("db down")
	svc := newService(st, scorer.ScorerFunc(func(context.Context, scorer.Request, time.Duration) ([]int64, error) {
		return nil, nil
	}))

	_, err := svc.Recommend(context.Background(), query(7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Empty(t, scorer.KindOf(err))
}

func TestLogPreferences_SavesMergedProfile(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, nil)
	nine, fortyTwo := int64(9), int64(42)
	two, eight := 2.0, 9.0

	out, err := svc.LogPreferences(context.Background(), 7, []model.FeedbackEvent{
		{ItemID: &nine, LikeLevel: &two},
		{ItemID: &fortyTwo, LikeLevel: &eight},
		{LikeLevel: &two},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Applied)
	assert.Equal(t, 1, out.Skipped)

	require.Len(t, st.saved, 1)
	assert.Equal(t, []model.PreferenceEntry{{ItemID: 9, LikeLevel: 5}, {ItemID: 42, LikeLevel: 7}}, st.saved[0].Preferences)
}

func TestLogPreferences_NothingAppliedSkipsSave(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, nil)

	out, err := svc.LogPreferences(context.Background(), 7, []model.FeedbackEvent{{}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Skipped)
	assert.Empty(t, st.saved)
}

func TestLogPreferences_Errors(t *testing.T) {
	one := int64(1)
	pol := 3

	t.Run("profile not found", func(t *testing.T) {
		svc := newService(newFakeStore(), nil)
		_, err := svc.LogPreferences(context.Background(), 404, nil)
		assert.True(t, errors.Is(err, preference.ErrProfileNotFound))
	})

	t.Run("invalid event", func(t *testing.T) {
		st := newFakeStore()
		svc := newService(st, nil)
		_, err := svc.LogPreferences(context.Background(), 7, []model.FeedbackEvent{{ItemID: &one, Polarity: &pol}})
		assert.True(t, errors.Is(err, preference.ErrInvalidField))
		assert.Empty(t, st.saved)
	})

	t.Run("profile removed before save", func(t *testing.T) {
		st := newFakeStore()
		st.saveErr = eris.Wrap(store.ErrNotFound, "sqlite: save profile 7")
		svc := newService(st, nil)
		p := 1
		_, err := svc.LogPreferences(context.Background(), 7, []model.FeedbackEvent{{ItemID: &one, Polarity: &p}})
		assert.True(t, errors.Is(err, preference.ErrProfileNotFound))
	})
}
