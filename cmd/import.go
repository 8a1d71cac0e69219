package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/model"
	"github.com/youchews/youchews-api/internal/store"
)

var (
	importFile    string
	importReplace bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load catalog or profile data from JSON files",
}

var importRestaurantsCmd = &cobra.Command{
	Use:   "restaurants",
	Short: "Import restaurants from a JSON array of {id, name, restaurant_info}",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := readJSONFile[model.Restaurant](importFile)
		if err != nil {
			return err
		}
		mode := store.ImportUpsert
		if importReplace {
			mode = store.ImportReplace
		}
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			n, err := st.ImportRestaurants(ctx, rows, mode)
			if err != nil {
				return eris.Wrap(err, "import restaurants")
			}
			zap.L().Info("import complete",
				zap.Int64("restaurants", n),
				zap.String("file", importFile),
				zap.Bool("replace", importReplace),
			)
			return nil
		})
	},
}

var importUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Import preference profiles from a JSON array of {user_id, user_preferences}",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := readJSONFile[model.Profile](importFile)
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			n, err := st.ImportProfiles(ctx, profiles)
			if err != nil {
				return eris.Wrap(err, "import users")
			}
			zap.L().Info("import complete",
				zap.Int64("users", n),
				zap.String("file", importFile),
			)
			return nil
		})
	},
}

// withStore opens and migrates the configured store, then runs fn against it.
// With Redis configured, fn sees the cached store so catalog writes drop
// stale cache entries.
func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	if err := cfg.Validate("store"); err != nil {
		return err
	}
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	cached, rdb := withCache(ctx, st)
	if rdb != nil {
		defer rdb.Close() //nolint:errcheck
	}
	return fn(ctx, cached)
}

func readJSONFile[T any](path string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	return out, nil
}

func init() {
	for _, c := range []*cobra.Command{importRestaurantsCmd, importUsersCmd} {
		c.Flags().StringVar(&importFile, "file", "", "path to JSON file (required)")
		_ = c.MarkFlagRequired("file")
		importCmd.AddCommand(c)
	}
	importRestaurantsCmd.Flags().BoolVar(&importReplace, "replace", false, "delete the existing catalog first")
	rootCmd.AddCommand(importCmd)
}
