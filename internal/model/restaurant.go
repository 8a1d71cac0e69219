package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Restaurant is a catalog row. The catalog is owned by the restaurant
// service; the recommender only reads it.
type Restaurant struct {
	ID   int64          `json:"id"`
	Name string         `json:"name"`
	Info RestaurantInfo `json:"restaurant_info"`
}

// RestaurantInfo mirrors the restaurant_info JSON document. List-valued
// fields keep their raw JSON because producers have written them as arrays,
// JSON-encoded strings and comma-separated strings over time.
//
// A decoded RestaurantInfo remembers its source document and encodes back to
// it unchanged, so keys this type does not model survive an import.
type RestaurantInfo struct {
	Address          string          `json:"address,omitempty"`
	FormattedAddress string          `json:"formatted_address,omitempty"`
	Lat              Coordinate      `json:"lat"`
	Lon              Coordinate      `json:"lon"`
	Price            json.RawMessage `json:"price,omitempty"`
	ServiceStyle     string          `json:"service_style,omitempty"`
	Attributes       Attributes      `json:"attributes"`
	Categories       json.RawMessage `json:"categories,omitempty"`
	Cuisine          json.RawMessage `json:"cuisine,omitempty"`
	Flavors          json.RawMessage `json:"flavors,omitempty"`
	Menu             json.RawMessage `json:"menu,omitempty"`

	doc json.RawMessage
}

// restaurantInfoFields has the fields of RestaurantInfo without its methods.
type restaurantInfoFields RestaurantInfo

// UnmarshalJSON implements json.Unmarshaler.
func (ri *RestaurantInfo) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}
	var f restaurantInfoFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*ri = RestaurantInfo(f)
	ri.doc = bytes.Clone(b)
	return nil
}

// MarshalJSON implements json.Marshaler. A decoded value encodes to its
// source document; a constructed one encodes its fields.
func (ri RestaurantInfo) MarshalJSON() ([]byte, error) {
	if len(ri.doc) > 0 {
		return ri.doc, nil
	}
	f := restaurantInfoFields(ri)
	f.doc = nil
	return json.Marshal(f)
}

// Attributes holds nested restaurant attributes.
type Attributes struct {
	ServiceType string `json:"service_type,omitempty"`
}

// Coordinates returns the restaurant position and whether both parts are set.
func (r Restaurant) Coordinates() (lat, lon float64, ok bool) {
	if !r.Info.Lat.Valid || !r.Info.Lon.Valid {
		return 0, 0, false
	}
	return r.Info.Lat.Value, r.Info.Lon.Value, true
}

// Coordinate is an optional degree value that decodes from a JSON number or
// a numeric string. Empty strings and null leave it unset.
type Coordinate struct {
	Value float64
	Valid bool
}

// NewCoordinate returns a set Coordinate.
func NewCoordinate(v float64) Coordinate {
	return Coordinate{Value: v, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = Coordinate{}
		return nil
	}
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" {
		*c = Coordinate{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Unparseable coordinates exclude the row from geo search; they are
		// not a decoding failure for the whole document.
		*c = Coordinate{}
		return nil //nolint:nilerr
	}
	*c = Coordinate{Value: v, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(c.Value, 'f', -1, 64)), nil
}

// Candidate is a restaurant within the search radius.
type Candidate struct {
	Restaurant
	DistanceKM float64 `json:"distance_km"`
}

// CandidateSet is ordered by ascending distance from the query point.
type CandidateSet []Candidate

// IDs returns the candidate ids in set order.
func (s CandidateSet) IDs() []int64 {
	ids := make([]int64, len(s))
	for i, c := range s {
		ids[i] = c.ID
	}
	return ids
}
