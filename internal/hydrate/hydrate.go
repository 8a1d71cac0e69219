// Package hydrate turns a scorer's ranked ids back into display-ready
// recommendations.
package hydrate

import (
	"math"

	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/model"
)

const kmToMiles = 0.621371

// minStep keeps consecutive rounded scores distinct.
const minStep = 0.01

// Curve is the synthetic relevance score assigned by rank:
// score(i) = round(Base - i*Step, 2) for the 0-based position i.
type Curve struct {
	Base float64
	Step float64
}

// DefaultCurve is the score curve used when none is configured.
var DefaultCurve = Curve{Base: 9.8, Step: 0.15}

// Score returns the rounded score for 0-based position i.
func (c Curve) Score(i int) float64 {
	return round2(c.Base - float64(i)*c.Step)
}

// Hydrator joins ranked ids to candidate records.
type Hydrator struct {
	curve Curve
}

// New creates a Hydrator. A step below 0.01 is raised to 0.01 so scores
// stay strictly decreasing after rounding.
func New(curve Curve) *Hydrator {
	if curve.Step < minStep {
		curve.Step = minStep
	}
	return &Hydrator{curve: curve}
}

// Hydrate returns one recommendation per ranked id that is present in
// candidates, in ranked order. Unknown and repeated ids are dropped, so ranks
// stay dense. It never fails; empty input gives an empty, non-nil slice.
func (h *Hydrator) Hydrate(candidates model.CandidateSet, ranked []int64) []model.Recommendation {
	out := make([]model.Recommendation, 0, min(len(candidates), len(ranked)))
	if len(candidates) == 0 || len(ranked) == 0 {
		return out
	}

	byID := make(map[int64]model.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	var unknown int
	seen := make(map[int64]struct{}, len(ranked))
	for _, id := range ranked {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		c, ok := byID[id]
		if !ok {
			unknown++
			continue
		}

		i := len(out)
		rec := format(c)
		rec.RecommendationScore = h.curve.Score(i)
		rec.Rank = i + 1
		out = append(out, rec)
	}

	if unknown > 0 {
		zap.L().Warn("hydrate: scorer returned ids outside the candidate set",
			zap.Int("unknown", unknown),
			zap.Int("ranked", len(ranked)),
		)
	}

	return out
}

func format(c model.Candidate) model.Recommendation {
	info := c.Info

	address := orDefault(info.Address, unknown)
	formatted := orDefault(info.FormattedAddress, address)
	style := orDefault(info.ServiceStyle, orDefault(info.Attributes.ServiceType, unknown))

	return model.Recommendation{
		ID:               c.ID,
		Name:             orDefault(c.Name, unknown),
		Address:          address,
		FormattedAddress: formatted,
		Categories:       dedupe(append(NormalizeList(info.Categories), NormalizeList(info.Cuisine)...)),
		PriceLevel:       PriceLevel(info.Price),
		ServiceStyle:     style,
		Flavors:          NormalizeList(info.Flavors),
		DistanceKM:       round2(c.DistanceKM),
		DistanceMiles:    round2(c.DistanceKM * kmToMiles),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
