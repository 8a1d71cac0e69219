package geo

import (
	"cmp"
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/model"
)

// Catalog reads restaurants for a geographic search. Implementations may use
// bounds to pre-filter rows; a nil bounds means no pre-filter. Returning rows
// outside bounds is allowed.
type Catalog interface {
	QueryNearby(ctx context.Context, bounds *geom.Bounds) ([]model.Restaurant, error)
}

// Filter selects catalog restaurants around a point.
type Filter struct {
	catalog Catalog
}

// NewFilter creates a Filter over the given catalog.
func NewFilter(catalog Catalog) *Filter {
	return &Filter{catalog: catalog}
}

// SelectNearby returns up to limit restaurants within radiusKM of origin,
// nearest first, ties broken by ascending id. Restaurants without
// coordinates are skipped. An empty set is a normal result.
func (f *Filter) SelectNearby(ctx context.Context, origin Point, radiusKM float64, limit int) (model.CandidateSet, error) {
	if radiusKM <= 0 {
		return nil, eris.Wrapf(ErrInvalidSearch, "radius_km must be > 0, got %v", radiusKM)
	}
	if limit <= 0 {
		return nil, eris.Wrapf(ErrInvalidSearch, "limit must be > 0, got %d", limit)
	}

	box := BoundingBox(origin, radiusKM)
	rows, err := f.catalog.QueryNearby(ctx, box)
	if err != nil {
		return nil, eris.Wrap(err, "geo: query catalog")
	}

	set := Select(rows, origin, radiusKM, box)
	if len(set) > limit {
		set = set[:limit]
	}

	zap.L().Debug("geo: candidates selected",
		zap.Int("catalog_rows", len(rows)),
		zap.Int("candidates", len(set)),
		zap.Float64("radius_km", radiusKM),
	)

	return set, nil
}

// Select computes distances for rows and returns those within radiusKM of
// origin sorted by (distance, id). box may be nil.
func Select(rows []model.Restaurant, origin Point, radiusKM float64, box *geom.Bounds) model.CandidateSet {
	set := make(model.CandidateSet, 0, len(rows))
	var missing int
	for _, r := range rows {
		lat, lon, ok := r.Coordinates()
		if !ok {
			missing++
			continue
		}
		if box != nil && !box.OverlapsPoint(geom.XY, geom.Coord{lon, lat}) {
			continue
		}
		d := Distance(origin, Point{Lat: lat, Lon: lon})
		if d > radiusKM {
			continue
		}
		set = append(set, model.Candidate{Restaurant: r, DistanceKM: d})
	}

	if missing > 0 {
		zap.L().Debug("geo: skipped restaurants without coordinates", zap.Int("count", missing))
	}

	slices.SortStableFunc(set, func(a, b model.Candidate) int {
		if c := cmp.Compare(a.DistanceKM, b.DistanceKM); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return set
}
