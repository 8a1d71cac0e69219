package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/youchews/youchews-api/internal/recommend"
)

var (
	recommendUser   int64
	recommendLat    float64
	recommendLon    float64
	recommendRadius float64
	recommendCount  int
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print recommendations for one user and location as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "recommend")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Recommend(ctx, recommend.Query{
			UserID:   recommendUser,
			Lat:      &recommendLat,
			Lon:      &recommendLon,
			RadiusKM: recommendRadius,
			Count:    recommendCount,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	f := recommendCmd.Flags()
	f.Int64Var(&recommendUser, "user", 0, "user id (required)")
	f.Float64Var(&recommendLat, "lat", 0, "latitude in degrees (required)")
	f.Float64Var(&recommendLon, "lon", 0, "longitude in degrees (required)")
	f.Float64Var(&recommendRadius, "radius", 0, "search radius in km (default from config)")
	f.IntVar(&recommendCount, "count", 0, "number of results (default from config)")
	_ = recommendCmd.MarkFlagRequired("user")
	_ = recommendCmd.MarkFlagRequired("lat")
	_ = recommendCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(recommendCmd)
}
