package hydrate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youchews/youchews-api/internal/model"
)

func candidate(id int64, name string, km float64) model.Candidate {
	return model.Candidate{
		Restaurant: model.Restaurant{ID: id, Name: name},
		DistanceKM: km,
	}
}

func TestHydrate_FollowsRankedOrder(t *testing.T) {
	h := New(DefaultCurve)
	cands := model.CandidateSet{
		candidate(1, "One", 1.234),
		candidate(2, "Two", 2.5),
		candidate(3, "Three", 3.0),
	}

	recs := h.Hydrate(cands, []int64{3, 1})
	require.Len(t, recs, 2)

	assert.Equal(t, int64(3), recs[0].ID)
	assert.Equal(t, int64(1), recs[1].ID)
	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, 2, recs[1].Rank)
	assert.InDelta(t, 9.8, recs[0].RecommendationScore, 1e-9)
	assert.InDelta(t, 9.65, recs[1].RecommendationScore, 1e-9)
	assert.Greater(t, recs[0].RecommendationScore, recs[1].RecommendationScore)
}

func TestHydrate_DistanceRounding(t *testing.T) {
	h := New(DefaultCurve)
	recs := h.Hydrate(model.CandidateSet{candidate(1, "One", 1.23456)}, []int64{1})
	require.Len(t, recs, 1)

	assert.InDelta(t, 1.23, recs[0].DistanceKM, 1e-9)
	assert.InDelta(t, 0.77, recs[0].DistanceMiles, 1e-9)
}

func TestHydrate_DropsUnknownAndDuplicateIDs(t *testing.T) {
	h := New(DefaultCurve)
	cands := model.CandidateSet{candidate(1, "One", 1), candidate(2, "Two", 2)}

	recs := h.Hydrate(cands, []int64{99, 2, 2, 1, 2})
	require.Len(t, recs, 2)

	assert.Equal(t, int64(2), recs[0].ID)
	assert.Equal(t, int64(1), recs[1].ID)
	assert.Equal(t, []int{1, 2}, []int{recs[0].Rank, recs[1].Rank})
	assert.InDelta(t, 9.8, recs[0].RecommendationScore, 1e-9)
}

func TestHydrate_EmptyInputs(t *testing.T) {
	h := New(DefaultCurve)

	recs := h.Hydrate(nil, []int64{1, 2})
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	recs = h.Hydrate(model.CandidateSet{candidate(1, "One", 1)}, nil)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestHydrate_ScoresStrictlyDecrease(t *testing.T) {
	h := New(Curve{Base: 9.8, Step: 0.001})

	cands := make(model.CandidateSet, 0, 100)
	ranked := make([]int64, 0, 100)
	for i := int64(1); i <= 100; i++ {
		cands = append(cands, candidate(i, "R", float64(i)))
		ranked = append(ranked, 101-i)
	}

	recs := h.Hydrate(cands, ranked)
	require.Len(t, recs, 100)
	for i := 1; i < len(recs); i++ {
		assert.Less(t, recs[i].RecommendationScore, recs[i-1].RecommendationScore, "rank %d", recs[i].Rank)
		assert.Equal(t, i+1, recs[i].Rank)
	}
}

func TestHydrate_ScoresMayGoNegative(t *testing.T) {
	assert.InDelta(t, -0.7, DefaultCurve.Score(70), 1e-9)
}

func TestHydrate_Defaults(t *testing.T) {
	h := New(DefaultCurve)
	recs := h.Hydrate(model.CandidateSet{candidate(5, "", 0.5)}, []int64{5})
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, "Unknown", r.Name)
	assert.Equal(t, "Unknown", r.Address)
	assert.Equal(t, "Unknown", r.FormattedAddress)
	assert.Equal(t, "Unknown", r.ServiceStyle)
	assert.Equal(t, "$", r.PriceLevel)
	assert.Equal(t, []string{}, r.Categories)
	assert.Equal(t, []string{}, r.Flavors)
}

func TestHydrate_FormatsInfo(t *testing.T) {
	h := New(DefaultCurve)
	c := candidate(7, "Taco Loco", 1)
	c.Info = model.RestaurantInfo{
		Address:    "1 Main St",
		Price:      json.RawMessage(`2`),
		Attributes: model.Attributes{ServiceType: "counter"},
		Categories: json.RawMessage(`["Tacos","Mexican"]`),
		Cuisine:    json.RawMessage(`"mexican, Street Food"`),
		Flavors:    json.RawMessage(`"[\"spicy\", \"smoky\"]"`),
	}

	recs := h.Hydrate(model.CandidateSet{c}, []int64{7})
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, "1 Main St", r.Address)
	assert.Equal(t, "1 Main St", r.FormattedAddress)
	assert.Equal(t, "$$", r.PriceLevel)
	assert.Equal(t, "counter", r.ServiceStyle)
	assert.Equal(t, []string{"Tacos", "Mexican", "Street Food"}, r.Categories)
	assert.Equal(t, []string{"spicy", "smoky"}, r.Flavors)
}
