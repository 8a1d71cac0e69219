package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youchews/youchews-api/internal/auth"
	"github.com/youchews/youchews-api/internal/config"
	"github.com/youchews/youchews-api/internal/recommend"
	"github.com/youchews/youchews-api/internal/scorer"
	"github.com/youchews/youchews-api/internal/store"
)

const (
	originLat = 37.3349
	originLon = -121.8881
)

// useTestConfig installs a sqlite-backed config for the duration of the test.
func useTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(dir, "youchews.db")
	c.Auth.JWTSecret = "cmd-test-secret"
	c.Auth.TokenTTLHours = 5
	c.Auth.RecommendRole = "user"
	c.Auth.FeedbackRole = "user"
	c.Scorer.Driver = "content"
	c.Scorer.TimeoutSecs = 5
	c.Recommend.RadiusKM = 10
	c.Recommend.MaxRadiusKM = 100
	c.Recommend.CandidateLimit = 50
	c.Recommend.Count = 10
	c.Recommend.MaxCount = 50
	c.Recommend.ScoreBase = 9.8
	c.Recommend.ScoreStep = 0.15
	c.Server.Port = 3000

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCommand(t *testing.T, c *cobra.Command) {
	t.Helper()
	c.SetContext(context.Background())
	require.NoError(t, c.RunE(c, nil))
}

const restaurantsJSON = `[
	{"id": 1, "name": "Taco Loco", "restaurant_info": {"lat": 37.3394, "lon": -121.8881, "flavors": ["spicy", "savory"], "cuisine": ["mexican"], "price": 2}},
	{"id": 2, "name": "Burrito Barn", "restaurant_info": {"lat": "37.3439", "lon": "-121.8881", "flavors": "spicy, smoky", "cuisine": "[\"mexican\"]"}},
	{"id": 3, "name": "Sweet Crumbs", "restaurant_info": {"lat": 37.3484, "lon": -121.8881, "flavors": ["sweet"], "categories": ["bakery"]}},
	{"id": 4, "name": "Faraway Deli", "restaurant_info": {"lat": 38.5, "lon": -121.8881, "flavors": ["salty"]}}
]`

const usersJSON = `[
	{"user_id": 7, "user_preferences": [{"item_id": 1, "like_level": 9}]},
	{"user_id": 8, "user_preferences": []}
]`

func TestInitStore(t *testing.T) {
	useTestConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.IsType(t, &store.SQLiteStore{}, st)

	cfg.Store.Driver = "mysql"
	_, err = initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitScorer(t *testing.T) {
	useTestConfig(t)

	assert.IsType(t, &scorer.ContentScorer{}, initScorer(nil))

	cfg.Scorer.Driver = "process"
	cfg.Scorer.Command = "python3"
	assert.IsType(t, &scorer.ProcessScorer{}, initScorer(nil))

	cfg.Scorer.BreakerThreshold = 3
	assert.IsType(t, &scorer.Breaker{}, initScorer(nil))
}

func TestInitEnv_ValidationFails(t *testing.T) {
	useTestConfig(t)
	cfg.Recommend.RadiusKM = 0

	_, err := initEnv(context.Background(), "recommend")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommend.radius_km")
}

func TestInitEnv_RedisUnavailable(t *testing.T) {
	useTestConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	env, err := initEnv(context.Background(), "recommend")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Redis)
	assert.IsType(t, &store.SQLiteStore{}, env.Store)
}

func TestInitEnv_WithRedisCache(t *testing.T) {
	useTestConfig(t)
	mr := miniredis.RunT(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.CatalogTTLSecs = 60

	env, err := initEnv(context.Background(), "recommend")
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Redis)
	assert.IsType(t, &store.CachedStore{}, env.Store)
}

func TestImportAndRecommend(t *testing.T) {
	dir := useTestConfig(t)
	ctx := context.Background()

	importFile = writeFile(t, dir, "restaurants.json", restaurantsJSON)
	runCommand(t, importRestaurantsCmd)
	importFile = writeFile(t, dir, "users.json", usersJSON)
	runCommand(t, importUsersCmd)

	env, err := initEnv(ctx, "recommend")
	require.NoError(t, err)
	defer env.Close()

	lat, lon := originLat, originLon
	res, err := env.Service.Recommend(ctx, recommend.Query{UserID: 7, Lat: &lat, Lon: &lon})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Meta.CandidatesConsidered)
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, int64(2), res.Recommendations[0].ID, "closest match to the liked taqueria")
	assert.Equal(t, int64(3), res.Recommendations[1].ID)
	assert.Equal(t, 1, res.Recommendations[0].Rank)
	assert.InDelta(t, 9.8, res.Recommendations[0].RecommendationScore, 1e-9)
	assert.Contains(t, res.Recommendations[0].Categories, "mexican")

	// A profile with no preferences falls back to proximity order.
	res, err = env.Service.Recommend(ctx, recommend.Query{UserID: 8, Lat: &lat, Lon: &lon, Count: 2})
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, int64(1), res.Recommendations[0].ID)
	assert.Equal(t, int64(2), res.Recommendations[1].ID)
}

func TestImportRestaurants_Replace(t *testing.T) {
	dir := useTestConfig(t)
	ctx := context.Background()

	importFile = writeFile(t, dir, "restaurants.json", restaurantsJSON)
	runCommand(t, importRestaurantsCmd)

	importFile = writeFile(t, dir, "one.json", `[{"id": 9, "name": "Solo", "restaurant_info": {"lat": 1, "lon": 1}}]`)
	importReplace = true
	t.Cleanup(func() { importReplace = false })
	runCommand(t, importRestaurantsCmd)

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	rows, err := st.QueryNearby(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9), rows[0].ID)
}

func TestImportRestaurants_InvalidatesCatalogCache(t *testing.T) {
	dir := useTestConfig(t)
	mr := miniredis.RunT(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.CatalogTTLSecs = 60
	ctx := context.Background()

	importFile = writeFile(t, dir, "restaurants.json", restaurantsJSON)
	runCommand(t, importRestaurantsCmd)

	env, err := initEnv(ctx, "recommend")
	require.NoError(t, err)
	defer env.Close()
	rows, err := env.Store.QueryNearby(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.True(t, mr.Exists("youchews:catalog:all"))

	importFile = writeFile(t, dir, "one.json", `[{"id": 9, "name": "Solo", "restaurant_info": {"lat": 1, "lon": 1}}]`)
	runCommand(t, importRestaurantsCmd)

	assert.False(t, mr.Exists("youchews:catalog:all"))
	rows, err = env.Store.QueryNearby(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestReadJSONFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := readJSONFile[recommend.Query](filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")

	_, err = readJSONFile[recommend.Query](writeFile(t, dir, "bad.json", `{"not": "an array"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestRecommendCommand_PrintsJSON(t *testing.T) {
	dir := useTestConfig(t)

	importFile = writeFile(t, dir, "restaurants.json", restaurantsJSON)
	runCommand(t, importRestaurantsCmd)
	importFile = writeFile(t, dir, "users.json", usersJSON)
	runCommand(t, importUsersCmd)

	recommendUser, recommendLat, recommendLon = 7, originLat, originLon
	recommendRadius, recommendCount = 0, 1
	t.Cleanup(func() { recommendUser, recommendCount = 0, 0 })

	var out bytes.Buffer
	recommendCmd.SetOut(&out)
	t.Cleanup(func() { recommendCmd.SetOut(nil) })
	runCommand(t, recommendCmd)

	var res struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
		Metadata struct {
			RecommendationsReturned int `json:"recommendations_returned"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Data, 1)
	assert.Equal(t, int64(2), res.Data[0].ID)
	assert.Equal(t, 1, res.Metadata.RecommendationsReturned)
}

func TestTokenCommand_IssuesVerifiableToken(t *testing.T) {
	useTestConfig(t)
	tokenUser, tokenName, tokenRole = 7, "sam", "user"
	t.Cleanup(func() { tokenUser, tokenName = 0, "" })

	var out bytes.Buffer
	tokenCmd.SetOut(&out)
	t.Cleanup(func() { tokenCmd.SetOut(nil) })
	runCommand(t, tokenCmd)

	authz, err := initAuthorizer()
	require.NoError(t, err)
	d := authz.Authorize(context.Background(), "user", strings.TrimSpace(out.String()))
	require.True(t, d.OK(), d.Message)
	assert.Equal(t, &auth.User{ID: 7, Name: "sam", Role: "user"}, d.User)
}

func TestAPIConfig(t *testing.T) {
	useTestConfig(t)
	cfg.Server.CORSOrigins = []string{"https://youchews.app"}
	cfg.Server.RateLimitRequests = 20
	cfg.Server.RateLimitWindowSecs = 30

	ac := apiConfig()
	assert.Equal(t, "user", ac.RecommendRole)
	assert.Equal(t, []string{"https://youchews.app"}, ac.CORSOrigins)
	assert.Equal(t, 20, ac.RateLimitRequests)
	assert.Equal(t, "30s", ac.RateLimitWindow.String())
}
