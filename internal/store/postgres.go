package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/youchews/youchews-api/internal/db"
	"github.com/youchews/youchews-api/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	restaurantsTable = "restaurants"
	usersTable       = "users"
)

var restaurantColumns = []string{"id", "name", "restaurant_info"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// The lat/lon columns are derived from restaurant_info so rows written by
// other services are indexed too. Non-numeric values become NULL.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id              BIGINT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	restaurant_info JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE restaurants ADD COLUMN IF NOT EXISTS lat DOUBLE PRECISION GENERATED ALWAYS AS (
	CASE WHEN btrim(restaurant_info->>'lat') ~ '^[-+]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][-+]?[0-9]+)?$'
	     THEN btrim(restaurant_info->>'lat')::double precision END
) STORED;

ALTER TABLE restaurants ADD COLUMN IF NOT EXISTS lon DOUBLE PRECISION GENERATED ALWAYS AS (
	CASE WHEN btrim(restaurant_info->>'lon') ~ '^[-+]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][-+]?[0-9]+)?$'
	     THEN btrim(restaurant_info->>'lon')::double precision END
) STORED;

CREATE INDEX IF NOT EXISTS idx_restaurants_lat_lon ON restaurants(lat, lon);

CREATE TABLE IF NOT EXISTS users (
	id               BIGINT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	user_preferences JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) QueryNearby(ctx context.Context, bounds *geom.Bounds) ([]model.Restaurant, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if bounds == nil {
		rows, err = s.pool.Query(ctx, `SELECT id, name, restaurant_info FROM restaurants`)
	} else {
		minLat, maxLat, minLon, maxLon := boxArgs(bounds)
		rows, err = s.pool.Query(ctx,
			`SELECT id, name, restaurant_info FROM restaurants WHERE lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4`,
			minLat, maxLat, minLon, maxLon,
		)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query nearby restaurants")
	}
	return collectRestaurants(rows, "postgres: scan nearby restaurants")
}

func (s *PostgresStore) GetRestaurants(ctx context.Context, ids []int64) ([]model.Restaurant, error) {
	if len(ids) == 0 {
		return []model.Restaurant{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, restaurant_info FROM restaurants WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get restaurants")
	}
	return collectRestaurants(rows, "postgres: scan restaurants")
}

func collectRestaurants(rows pgx.Rows, action string) ([]model.Restaurant, error) {
	defer rows.Close()

	out := []model.Restaurant{}
	for rows.Next() {
		var (
			r    model.Restaurant
			info []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &info); err != nil {
			return nil, eris.Wrap(err, action)
		}
		r.Info = decodeInfo(r.ID, info)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), action)
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	var (
		p   model.Profile
		raw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_preferences FROM users WHERE id = $1`,
		userID,
	).Scan(&p.UserID, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get profile %d", userID)
	}

	p.Preferences, err = decodePreferences(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %d", userID)
	}
	return &p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, profile *model.Profile) error {
	prefs, err := encodePreferences(profile.Preferences)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET user_preferences = $1, updated_at = now() WHERE id = $2`,
		prefs, profile.UserID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save profile %d", profile.UserID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: save profile %d", profile.UserID)
	}
	return nil
}

func (s *PostgresStore) ImportRestaurants(ctx context.Context, rows []model.Restaurant, mode ImportMode) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	data, err := restaurantRows(rows)
	if err != nil {
		return 0, err
	}

	if mode == ImportUpsert {
		n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        restaurantsTable,
			Columns:      restaurantColumns,
			ConflictKeys: []string{"id"},
			TouchCols:    []string{"updated_at"},
		}, data)
		return n, eris.Wrap(err, "postgres: import restaurants")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import restaurants: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM restaurants`); err != nil {
		return 0, eris.Wrap(err, "postgres: import restaurants: clear catalog")
	}
	n, err := db.CopyFrom(ctx, tx, restaurantsTable, restaurantColumns, data)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import restaurants")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: import restaurants: commit tx")
	}
	return n, nil
}

func (s *PostgresStore) ImportProfiles(ctx context.Context, profiles []model.Profile) (int64, error) {
	data := make([][]any, 0, len(profiles))
	for _, p := range profiles {
		prefs, err := encodePreferences(p.Preferences)
		if err != nil {
			return 0, err
		}
		data = append(data, []any{p.UserID, prefs})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        usersTable,
		Columns:      []string{"id", "user_preferences"},
		ConflictKeys: []string{"id"},
		TouchCols:    []string{"updated_at"},
	}, data)
	return n, eris.Wrap(err, "postgres: import profiles")
}

func restaurantRows(rows []model.Restaurant) ([][]any, error) {
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		info, err := json.Marshal(r.Info)
		if err != nil {
			return nil, eris.Wrapf(err, "store: encode restaurant_info %d", r.ID)
		}
		data = append(data, []any{r.ID, r.Name, info})
	}
	return data, nil
}
