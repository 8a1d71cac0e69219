// Package store persists the restaurant catalog and user preference
// profiles.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/model"
)

// ErrNotFound is returned by writes that target a missing record.
var ErrNotFound = eris.New("store: not found")

// ImportMode controls how ImportRestaurants treats existing rows.
type ImportMode int

const (
	// ImportUpsert inserts new rows and overwrites rows with the same id.
	ImportUpsert ImportMode = iota
	// ImportReplace deletes the whole catalog before loading.
	ImportReplace
)

// Catalog reads restaurant rows.
type Catalog interface {
	// QueryNearby returns rows whose coordinates may fall inside bounds
	// (lon on X, lat on Y). A nil bounds returns the whole catalog.
	QueryNearby(ctx context.Context, bounds *geom.Bounds) ([]model.Restaurant, error)
	// GetRestaurants returns the rows for ids in no particular order.
	// Unknown ids are ignored.
	GetRestaurants(ctx context.Context, ids []int64) ([]model.Restaurant, error)
}

// Profiles reads and writes preference profiles.
type Profiles interface {
	// GetProfile returns nil, nil when the user has no profile record.
	GetProfile(ctx context.Context, userID int64) (*model.Profile, error)
	// SaveProfile replaces the stored preference list. It returns
	// ErrNotFound when the user has no profile record.
	SaveProfile(ctx context.Context, profile *model.Profile) error
}

// Store is the persistence interface for the recommendation service.
type Store interface {
	Catalog
	Profiles

	// Bulk loading
	ImportRestaurants(ctx context.Context, rows []model.Restaurant, mode ImportMode) (int64, error)
	ImportProfiles(ctx context.Context, profiles []model.Profile) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// decodeInfo parses a restaurant_info document. A document that does not
// decode is logged and treated as empty, which drops the row from geo search
// without failing the whole read.
func decodeInfo(id int64, raw []byte) model.RestaurantInfo {
	var info model.RestaurantInfo
	if len(raw) == 0 {
		return info
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		zap.L().Warn("store: undecodable restaurant_info",
			zap.Int64("restaurant_id", id),
			zap.Error(err),
		)
		return model.RestaurantInfo{}
	}
	return info
}

// decodePreferences parses a user_preferences document. NULL and empty
// values decode to an empty list.
func decodePreferences(raw []byte) ([]model.PreferenceEntry, error) {
	prefs := []model.PreferenceEntry{}
	if len(raw) == 0 || string(raw) == "null" {
		return prefs, nil
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, eris.Wrap(err, "store: decode user_preferences")
	}
	if prefs == nil {
		prefs = []model.PreferenceEntry{}
	}
	return prefs, nil
}

func encodePreferences(prefs []model.PreferenceEntry) ([]byte, error) {
	if prefs == nil {
		prefs = []model.PreferenceEntry{}
	}
	b, err := json.Marshal(prefs)
	return b, eris.Wrap(err, "store: encode user_preferences")
}

// boxArgs returns min lat, max lat, min lon, max lon.
func boxArgs(b *geom.Bounds) (float64, float64, float64, float64) {
	return b.Min(1), b.Max(1), b.Min(0), b.Max(0)
}
