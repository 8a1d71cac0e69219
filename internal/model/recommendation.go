package model

// Recommendation is one ranked, display-ready result.
type Recommendation struct {
	ID                  int64    `json:"id"`
	Name                string   `json:"name"`
	Address             string   `json:"address"`
	FormattedAddress    string   `json:"formatted_address"`
	Categories          []string `json:"categories"`
	PriceLevel          string   `json:"price_level"`
	ServiceStyle        string   `json:"service_style"`
	Flavors             []string `json:"flavors"`
	DistanceKM          float64  `json:"distance_km"`
	DistanceMiles       float64  `json:"distance_miles"`
	RecommendationScore float64  `json:"recommendation_score"`
	Rank                int      `json:"rank"`
}

// Location is a lat/lon pair in degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RecommendationMeta describes how a recommendation response was produced.
type RecommendationMeta struct {
	UserLocation            Location `json:"user_location"`
	SearchRadiusKM          float64  `json:"search_radius_km"`
	CandidatesConsidered    int      `json:"candidates_considered"`
	RecommendationsReturned int      `json:"recommendations_returned"`
}
