package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes how staged rows merge into a table.
type UpsertConfig struct {
	// Table may be schema-qualified ("public.restaurants").
	Table string
	// Columns lists the row values in order.
	Columns []string
	// ConflictKeys is the unique key the merge matches on.
	ConflictKeys []string
	// UpdateCols are overwritten on a key match. Nil means every column
	// outside ConflictKeys; an empty result turns the merge into DO NOTHING.
	UpdateCols []string
	// TouchCols are set to now() whenever the merge updates a row.
	TouchCols []string
}

// Validate reports a config that cannot produce a merge statement.
func (c UpsertConfig) Validate() error {
	switch {
	case c.Table == "":
		return eris.New("db: bulk upsert: table is required")
	case len(c.Columns) == 0:
		return eris.Errorf("db: bulk upsert %s: columns are required", c.Table)
	case len(c.ConflictKeys) == 0:
		return eris.Errorf("db: bulk upsert %s: conflict keys are required", c.Table)
	}
	return nil
}

// BulkUpsert stages rows in a transaction-scoped temp table with COPY and
// merges them into cfg.Table in one statement. It returns the number of rows
// inserted or updated. No rows is a no-op.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert %s: begin", cfg.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := pgx.Identifier{tempTableName(cfg.Table)}
	stageSQL := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), identifier(cfg.Table).Sanitize())

	if _, err := tx.Exec(ctx, stageSQL); err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert %s: create staging table", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, stage, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert %s: copy into staging table", cfg.Table)
	}
	tag, err := tx.Exec(ctx, upsertSQL(cfg, stage[0]))
	if err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert %s: merge", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert %s: commit", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

func upsertSQL(cfg UpsertConfig, stage string) string {
	cols := quoteAndJoin(cfg.Columns)

	onConflict := "DO NOTHING"
	if update := updateColumns(cfg); len(update) > 0 {
		assignments := make([]string, 0, len(update)+len(cfg.TouchCols))
		for _, col := range update {
			q := pgx.Identifier{col}.Sanitize()
			assignments = append(assignments, q+" = EXCLUDED."+q)
		}
		for _, col := range cfg.TouchCols {
			assignments = append(assignments, pgx.Identifier{col}.Sanitize()+" = now()")
		}
		onConflict = "DO UPDATE SET " + strings.Join(assignments, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		identifier(cfg.Table).Sanitize(), cols, cols,
		pgx.Identifier{stage}.Sanitize(), quoteAndJoin(cfg.ConflictKeys), onConflict)
}

func updateColumns(cfg UpsertConfig) []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	var out []string
	for _, c := range cfg.Columns {
		if !slices.Contains(cfg.ConflictKeys, c) {
			out = append(out, c)
		}
	}
	return out
}

func tempTableName(table string) string {
	return "_tmp_upsert_" + strings.ReplaceAll(table, ".", "_")
}

// identifier splits a schema-qualified name like "public.restaurants".
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

func quoteAndJoin(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(parts, ", ")
}
