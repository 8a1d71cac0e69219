package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/youchews/youchews-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	restaurant_info TEXT NOT NULL DEFAULT '{}',
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users (
	id               INTEGER PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	user_preferences TEXT NOT NULL DEFAULT '[]',
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Coordinates may be numbers or numeric strings; CAST handles both. Rows
// whose values do not parse still pass the box check when it contains 0 and
// are dropped later by the distance filter.
const sqliteNearby = `SELECT id, name, restaurant_info FROM restaurants
	WHERE CAST(json_extract(restaurant_info, '$.lat') AS REAL) BETWEEN ? AND ?
	  AND CAST(json_extract(restaurant_info, '$.lon') AS REAL) BETWEEN ? AND ?`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) QueryNearby(ctx context.Context, bounds *geom.Bounds) ([]model.Restaurant, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if bounds == nil {
		rows, err = s.db.QueryContext(ctx, `SELECT id, name, restaurant_info FROM restaurants`)
	} else {
		minLat, maxLat, minLon, maxLon := boxArgs(bounds)
		rows, err = s.db.QueryContext(ctx, sqliteNearby, minLat, maxLat, minLon, maxLon)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query nearby restaurants")
	}
	return scanRestaurants(rows, "sqlite: scan nearby restaurants")
}

func (s *SQLiteStore) GetRestaurants(ctx context.Context, ids []int64) ([]model.Restaurant, error) {
	if len(ids) == 0 {
		return []model.Restaurant{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, name, restaurant_info FROM restaurants WHERE id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get restaurants")
	}
	return scanRestaurants(rows, "sqlite: scan restaurants")
}

func scanRestaurants(rows *sql.Rows, action string) ([]model.Restaurant, error) {
	defer rows.Close() //nolint:errcheck

	out := []model.Restaurant{}
	for rows.Next() {
		var (
			r    model.Restaurant
			info sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &info); err != nil {
			return nil, eris.Wrap(err, action)
		}
		r.Info = decodeInfo(r.ID, []byte(info.String))
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), action)
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	var (
		p   model.Profile
		raw sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_preferences FROM users WHERE id = ?`,
		userID,
	).Scan(&p.UserID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %d", userID)
	}

	p.Preferences, err = decodePreferences([]byte(raw.String))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %d", userID)
	}
	return &p, nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, profile *model.Profile) error {
	prefs, err := encodePreferences(profile.Preferences)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET user_preferences = ?, updated_at = datetime('now') WHERE id = ?`,
		string(prefs), profile.UserID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save profile %d", profile.UserID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: save profile %d", profile.UserID)
	}
	return nil
}

func (s *SQLiteStore) ImportRestaurants(ctx context.Context, rows []model.Restaurant, mode ImportMode) (int64, error) {
	data, err := restaurantRows(rows)
	if err != nil {
		return 0, err
	}

	return s.inTx(ctx, "sqlite: import restaurants", func(tx *sql.Tx) error {
		if mode == ImportReplace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM restaurants`); err != nil {
				return eris.Wrap(err, "clear catalog")
			}
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO restaurants (id, name, restaurant_info) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			   restaurant_info = excluded.restaurant_info, updated_at = datetime('now')`)
		if err != nil {
			return eris.Wrap(err, "prepare insert")
		}
		defer stmt.Close() //nolint:errcheck

		for _, row := range data {
			if _, err := stmt.ExecContext(ctx, row[0], row[1], string(row[2].([]byte))); err != nil {
				return eris.Wrapf(err, "insert restaurant %v", row[0])
			}
		}
		return nil
	}, int64(len(data)))
}

func (s *SQLiteStore) ImportProfiles(ctx context.Context, profiles []model.Profile) (int64, error) {
	return s.inTx(ctx, "sqlite: import profiles", func(tx *sql.Tx) error {
		for _, p := range profiles {
			prefs, err := encodePreferences(p.Preferences)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (id, user_preferences) VALUES (?, ?)
				 ON CONFLICT(id) DO UPDATE SET user_preferences = excluded.user_preferences,
				   updated_at = datetime('now')`,
				p.UserID, string(prefs),
			); err != nil {
				return eris.Wrapf(err, "insert profile %d", p.UserID)
			}
		}
		return nil
	}, int64(len(profiles)))
}

// inTx runs fn in a transaction and reports n rows on success.
func (s *SQLiteStore) inTx(ctx context.Context, action string, fn func(tx *sql.Tx) error, n int64) (int64, error) {
	if n == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: begin tx", action)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return 0, eris.Wrap(err, action)
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "%s: commit tx", action)
	}
	return n, nil
}
